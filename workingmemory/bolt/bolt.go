// Package bolt provides a durable core.WorkingMemoryStore in a bbolt
// database. Snapshots live in the "working_memory" bucket keyed by scope key;
// every Put is a single read-modify-write transaction, so a cancelled or
// failed write never leaves a torn document behind.
package bolt

import (
	"context"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/boltutil"
	"github.com/hupe1980/threadmem/logging"
)

var snapshotsBucket = []byte("working_memory")

// Options configures the store.
type Options struct {
	Logger logging.Logger
	Now    func() time.Time
}

// Store is a bbolt backed WorkingMemoryStore.
type Store struct {
	db     *bbolt.DB
	ownsDB bool
	opts   Options
}

var _ core.WorkingMemoryStore = (*Store)(nil)

// New uses an already opened database, typically shared with the thread
// store. The caller keeps ownership of db.
func New(db *bbolt.DB, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Now:    func() time.Time { return time.Now().UTC() },
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := boltutil.EnsureBuckets(db, snapshotsBucket); err != nil {
		return nil, err
	}
	return &Store{db: db, opts: opts}, nil
}

// Open opens the database file at path and returns a Store owning it.
func Open(path string, optFns ...func(o *Options)) (*Store, error) {
	db, err := boltutil.Open(path)
	if err != nil {
		return nil, err
	}
	s, err := New(db, optFns...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// Get loads the scope's snapshot.
func (s *Store) Get(ctx context.Context, scope core.Scope) (*core.WorkingMemorySnapshot, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var snap core.WorkingMemorySnapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		found, err := boltutil.GetJSON(tx.Bucket(snapshotsBucket), []byte(scope.Key()), &snap)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: working memory for %s", core.ErrNotFound, scope)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Put replaces the scope's document inside one write transaction.
func (s *Store) Put(ctx context.Context, scope core.Scope, content string) (*core.WorkingMemorySnapshot, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	var next core.WorkingMemorySnapshot
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(snapshotsBucket)
		key := []byte(scope.Key())

		var (
			prev    core.WorkingMemorySnapshot
			prevPtr *core.WorkingMemorySnapshot
		)
		found, err := boltutil.GetJSON(b, key, &prev)
		if err != nil {
			return err
		}
		if found {
			prevPtr = &prev
		}

		var changed bool
		next, changed = core.NextSnapshot(prevPtr, scope, content, s.opts.Now())
		if !changed {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return boltutil.PutJSON(b, key, next)
	})
	if err != nil {
		return nil, err
	}
	s.opts.Logger.Debug("workingmemory.put", "scope", scope.Key(), "version", next.Version)
	return &next, nil
}

// Delete removes the scope's snapshot. Deleting an absent scope is a no-op.
func (s *Store) Delete(ctx context.Context, scope core.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return tx.Bucket(snapshotsBucket).Delete([]byte(scope.Key()))
	})
}
