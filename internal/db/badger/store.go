// Package badger is a local embedded key-value store for state that should
// survive restarts without a network database: the enrichment resume cursor
// and the text embedding cache.
package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/db"
)

// Compile-time check: Store implements db.KVStore.
var _ db.KVStore = (*Store)(nil)

// Options configures the store.
type Options struct {
	// Dir holds the data files. Required unless InMemory is set.
	Dir string
	// InMemory keeps everything in memory (tests).
	InMemory bool
	// Logger receives badger warnings and errors. Nil silences them.
	Logger *zap.Logger
}

// Store implements db.KVStore on BadgerDB.
type Store struct {
	db *badgerdb.DB
}

// Open opens or creates the database.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger: dir is required for on-disk mode")
	}
	dbOpts := badgerdb.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dbOpts = dbOpts.WithLogger(zapLogger{log.Sugar().Named("badger")})

	bdb, err := badgerdb.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: bdb}, nil
}

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return val, nil
}

// Set stores a value.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// SetWithTTL stores a value that expires after ttl.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.SetEntry(badgerdb.NewEntry([]byte(key), value).WithTTL(ttl))
	})
	if err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// Del removes a key. Removing an absent key is not an error.
func (s *Store) Del(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// zapLogger adapts zap to badger.Logger. Info and debug output is dropped.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Errorf(f string, v ...any)   { l.s.Errorf(f, v...) }
func (l zapLogger) Warningf(f string, v ...any) { l.s.Warnf(f, v...) }
func (zapLogger) Infof(string, ...any)          {}
func (zapLogger) Debugf(string, ...any)         {}
