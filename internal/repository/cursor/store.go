// Package cursor persists the enrichment resume cursor in a key-value store.
package cursor

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/imagedex/internal/db"
)

// kv is the consumer interface for cursor persistence (ISP).
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
}

// Store reads and writes one cursor under a fixed key.
type Store struct {
	kv  kv
	key string
}

// New creates a cursor store.
func New(s kv, key string) *Store {
	return &Store{kv: s, key: key}
}

// Load returns the saved cursor, or "" when none was saved.
func (s *Store) Load(ctx context.Context) (string, error) {
	data, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("load cursor %s: %w", s.key, err)
	}
	return string(data), nil
}

// Save overwrites the cursor. An empty cursor clears it.
func (s *Store) Save(ctx context.Context, cursor string) error {
	if cursor == "" {
		return s.Clear(ctx)
	}
	if err := s.kv.Set(ctx, s.key, []byte(cursor)); err != nil {
		return fmt.Errorf("save cursor %s: %w", s.key, err)
	}
	return nil
}

// Clear removes the cursor so the next run starts from the beginning.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Del(ctx, s.key); err != nil {
		return fmt.Errorf("clear cursor %s: %w", s.key, err)
	}
	return nil
}
