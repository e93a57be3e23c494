package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/threadmem/core"
)

// RunWorkingMemoryStoreSuite exercises the core.WorkingMemoryStore contract
// against a fresh store returned by newStore for each subtest.
func RunWorkingMemoryStoreSuite(t *testing.T, newStore func(t *testing.T) core.WorkingMemoryStore) {
	ctx := context.Background()
	scope := core.ThreadScope("t1")

	t.Run("GetUnknownScope", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, scope)
		assert.ErrorIs(t, err, core.ErrNotFound)

		_, err = s.Get(ctx, core.ThreadScope(""))
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
	})

	t.Run("PutReplacesWholeDocument", func(t *testing.T) {
		s := newStore(t)
		first, err := s.Put(ctx, scope, "# User\n- Name: Ada")
		require.NoError(t, err)
		assert.EqualValues(t, 1, first.Version)

		second, err := s.Put(ctx, scope, "# User\n- Location: Berlin")
		require.NoError(t, err)
		assert.EqualValues(t, 2, second.Version)

		got, err := s.Get(ctx, scope)
		require.NoError(t, err)
		assert.Equal(t, "# User\n- Location: Berlin", got.Content)
		assert.Equal(t, scope, got.Scope)
	})

	t.Run("SameContentIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		once, err := s.Put(ctx, scope, "fact")
		require.NoError(t, err)
		twice, err := s.Put(ctx, scope, "fact")
		require.NoError(t, err)
		assert.Equal(t, once.Version, twice.Version)
		assert.True(t, once.UpdatedAt.Equal(twice.UpdatedAt))
	})

	t.Run("ScopesAreIndependent", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Put(ctx, core.ThreadScope("x"), "thread")
		require.NoError(t, err)
		_, err = s.Put(ctx, core.ResourceScope("x"), "resource")
		require.NoError(t, err)

		got, err := s.Get(ctx, core.ThreadScope("x"))
		require.NoError(t, err)
		assert.Equal(t, "thread", got.Content)
		got, err = s.Get(ctx, core.ResourceScope("x"))
		require.NoError(t, err)
		assert.Equal(t, "resource", got.Content)
	})

	t.Run("CancelledPutDoesNotApply", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Put(ctx, scope, "kept")
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = s.Put(cctx, scope, "lost")
		assert.ErrorIs(t, err, context.Canceled)

		got, err := s.Get(ctx, scope)
		require.NoError(t, err)
		assert.Equal(t, "kept", got.Content)
	})

	t.Run("ConcurrentPutsNeverTear", func(t *testing.T) {
		s := newStore(t)
		docs := []string{"alpha document", "beta document", "gamma document"}
		var wg sync.WaitGroup
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func(doc string) {
				defer wg.Done()
				_, err := s.Put(ctx, scope, doc)
				assert.NoError(t, err)
			}(docs[i%len(docs)])
		}
		wg.Wait()

		got, err := s.Get(ctx, scope)
		require.NoError(t, err)
		assert.Contains(t, docs, got.Content)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Put(ctx, scope, "x")
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, scope))
		_, err = s.Get(ctx, scope)
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.NoError(t, s.Delete(ctx, scope))
	})
}
