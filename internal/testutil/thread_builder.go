package testutil

import (
	"context"
	"testing"

	"github.com/hupe1980/threadmem/core"
)

// ThreadBuilder seeds a thread with messages in a store.
// Example:
//
//	th := NewThreadBuilder("user-1").Messages(UserTexts("a", "b")...).Build(t, store)
type ThreadBuilder struct {
	resourceID string
	title      string
	messages   []core.Message
}

// NewThreadBuilder creates a builder for a thread owned by resourceID.
func NewThreadBuilder(resourceID string) *ThreadBuilder {
	return &ThreadBuilder{resourceID: resourceID}
}

// Title sets the initial title (chainable).
func (b *ThreadBuilder) Title(title string) *ThreadBuilder { b.title = title; return b }

// Messages appends messages to seed in order (chainable).
func (b *ThreadBuilder) Messages(msgs ...core.Message) *ThreadBuilder {
	b.messages = append(b.messages, msgs...)
	return b
}

// Build creates the thread in store and appends the seeded messages, failing
// the test on any error.
func (b *ThreadBuilder) Build(t testing.TB, store core.ThreadStore) *core.Thread {
	t.Helper()
	ctx := context.Background()
	th, err := store.CreateThread(ctx, b.resourceID, b.title)
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	for _, m := range b.messages {
		if _, err := store.AppendMessage(ctx, th.ID, m); err != nil {
			t.Fatalf("append message: %v", err)
		}
	}
	return th
}
