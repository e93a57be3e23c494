package workingmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/logging"
)

// StoreOptions configures an InMemoryStore.
type StoreOptions struct {
	Logger logging.Logger
	Now    func() time.Time
}

// InMemoryStore is a process-local WorkingMemoryStore. Snapshots are stored by
// value and swapped under a lock, so a reader never sees a partial write.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]core.WorkingMemorySnapshot // scope key -> snapshot
	opts      StoreOptions
}

var _ core.WorkingMemoryStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store.
func NewInMemoryStore(optFns ...func(o *StoreOptions)) *InMemoryStore {
	opts := StoreOptions{
		Logger: logging.NoOpLogger{},
		Now:    func() time.Time { return time.Now().UTC() },
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{snapshots: map[string]core.WorkingMemorySnapshot{}, opts: opts}
}

// Get returns a copy of the scope's snapshot.
func (s *InMemoryStore) Get(ctx context.Context, scope core.Scope) (*core.WorkingMemorySnapshot, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[scope.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: working memory for %s", core.ErrNotFound, scope)
	}
	return &snap, nil
}

// Put replaces the scope's document. Identical content keeps the version.
func (s *InMemoryStore) Put(ctx context.Context, scope core.Scope, content string) (*core.WorkingMemorySnapshot, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var prev *core.WorkingMemorySnapshot
	if snap, ok := s.snapshots[scope.Key()]; ok {
		prev = &snap
	}
	next, changed := core.NextSnapshot(prev, scope, content, s.opts.Now())
	if changed {
		s.snapshots[scope.Key()] = next
		s.opts.Logger.Debug("workingmemory.put", "scope", scope.Key(), "version", next.Version)
	}
	return &next, nil
}

// Delete removes the scope's snapshot. Deleting an absent scope is a no-op.
func (s *InMemoryStore) Delete(ctx context.Context, scope core.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, scope.Key())
	return nil
}
