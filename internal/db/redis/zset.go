package redis

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/imagedex/internal/db"
)

// Incr atomically increments a counter and returns the new value.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	cmd := s.b().Incr().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpIncr, Err: err}
	}
	return n, nil
}

// ZAddNX adds member with score unless it is already present; an existing
// member keeps its original score.
func (s *Store) ZAddNX(ctx context.Context, key string, score float64, member string) error {
	cmd := s.b().Arbitrary("ZADD").Keys(key).
		Args("NX", strconv.FormatFloat(score, 'f', -1, 64), member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZAdd, Err: err}
	}
	return nil
}

// ZRangeAfter returns up to limit members with a score strictly greater than
// after, in ascending score order. An empty after starts at the lowest score.
func (s *Store) ZRangeAfter(ctx context.Context, key, after string, limit int) ([]db.ScoredMember, error) {
	lower := "-inf"
	if after != "" {
		lower = "(" + after
	}

	cmd := s.b().Arbitrary("ZRANGE").Keys(key).
		Args(lower, "+inf", "BYSCORE", "LIMIT", "0", strconv.Itoa(limit), "WITHSCORES").Build()
	scores, err := s.do(ctx, cmd).AsZScores()
	if err != nil {
		return nil, &db.Error{Op: db.OpZRange, Err: err}
	}

	out := make([]db.ScoredMember, len(scores))
	for i, z := range scores {
		out[i] = db.ScoredMember{Member: z.Member, Score: z.Score}
	}
	return out, nil
}

// ZRem removes member from the sorted set.
func (s *Store) ZRem(ctx context.Context, key, member string) error {
	cmd := s.b().Zrem().Key(key).Member(member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZRem, Err: err}
	}
	return nil
}
