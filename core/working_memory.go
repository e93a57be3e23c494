package core

import (
	"context"
	"time"
)

// WorkingMemorySnapshot is the single template-shaped text blob held per
// scope. Version increases only when the content actually changes.
type WorkingMemorySnapshot struct {
	Scope     Scope     `json:"scope"`
	Content   string    `json:"content"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkingMemoryStore persists one snapshot per scope. Put replaces the whole
// document atomically; writing identical content leaves the snapshot
// untouched. Get returns ErrNotFound for a scope that was never written.
type WorkingMemoryStore interface {
	Get(ctx context.Context, scope Scope) (*WorkingMemorySnapshot, error)
	Put(ctx context.Context, scope Scope, content string) (*WorkingMemorySnapshot, error)
	Delete(ctx context.Context, scope Scope) error
}

// NextSnapshot computes the snapshot that results from writing content over
// prev (which may be nil). changed is false when the write is a no-op.
func NextSnapshot(prev *WorkingMemorySnapshot, scope Scope, content string, now time.Time) (next WorkingMemorySnapshot, changed bool) {
	if prev != nil && prev.Content == content {
		return *prev, false
	}
	next = WorkingMemorySnapshot{Scope: scope, Content: content, Version: 1, UpdatedAt: now}
	if prev != nil {
		next.Version = prev.Version + 1
	}
	return next, true
}
