package domain

import "errors"

var (
	// ErrImageNotFound signals a missing image record.
	ErrImageNotFound = errors.New("image not found")
	// ErrInvalidID signals an id that NewID could not have produced.
	ErrInvalidID = errors.New("invalid image id")
	// ErrInvalidRequest signals malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTransient signals a retryable store failure (timeout, throttling, connection loss).
	ErrTransient = errors.New("transient store error")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrUnknownField signals an embedding field that is not configured.
	ErrUnknownField = errors.New("unknown embedding field")
	// ErrUnsupportedDistance signals a distance measure the index was not built for.
	ErrUnsupportedDistance = errors.New("unsupported distance measure")
	// ErrRateLimited signals a provider rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrProviderError signals an annotation or embedding provider failure.
	ErrProviderError = errors.New("provider error")
	// ErrBudgetExceeded signals that a provider token budget is spent.
	ErrBudgetExceeded = errors.New("provider token budget exceeded")
	// ErrEmptyEmbedding signals that a provider returned no vector.
	ErrEmptyEmbedding = errors.New("empty embedding")
	// ErrNotConfigured signals a component disabled by configuration.
	ErrNotConfigured = errors.New("not configured")
)
