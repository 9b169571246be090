package domain

import "context"

type tokenUsageKey struct{}

// TokenUsage tallies provider calls made on behalf of one request. The HTTP
// handler attaches it to the context, provider decorators add to it.
type TokenUsage struct {
	TotalTokens int
	Calls       int
}

// ContextWithTokenUsage returns a context carrying a fresh tally.
func ContextWithTokenUsage(ctx context.Context) (context.Context, *TokenUsage) {
	u := &TokenUsage{}
	return context.WithValue(ctx, tokenUsageKey{}, u), u
}

// TokenUsageFromContext returns the tally, or nil if none is attached.
func TokenUsageFromContext(ctx context.Context) *TokenUsage {
	u, _ := ctx.Value(tokenUsageKey{}).(*TokenUsage)
	return u
}

// Add records one call. Safe on a nil receiver. Cache hits count as calls
// with zero tokens.
func (u *TokenUsage) Add(tokens int) {
	if u == nil {
		return
	}
	u.Calls++
	u.TotalTokens += tokens
}
