package testutil

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/threadmem/core"
)

// RunThreadStoreSuite exercises the core.ThreadStore contract against a
// fresh store returned by newStore for each subtest.
func RunThreadStoreSuite(t *testing.T, newStore func(t *testing.T) core.ThreadStore) {
	ctx := context.Background()

	t.Run("CreateThreadRequiresResource", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateThread(ctx, "", "x")
		assert.ErrorIs(t, err, core.ErrInvalidArgument)

		th, err := s.CreateThread(ctx, "user-1", "Dinner plans")
		require.NoError(t, err)
		got, err := s.GetThread(ctx, th.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dinner plans", got.Title)
		assert.Equal(t, "user-1", got.ResourceID)
	})

	t.Run("UnknownThread", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetThread(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrNotFound)
		_, err = s.AppendMessage(ctx, "missing", core.NewTextMessage(core.RoleUser, "hi"))
		assert.ErrorIs(t, err, core.ErrNotFound)
		_, err = s.GetRecentMessages(ctx, "missing", 3)
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.ErrorIs(t, s.DeleteThread(ctx, "missing"), core.ErrNotFound)
	})

	t.Run("AppendAssignsSequentialPositions", func(t *testing.T) {
		s := newStore(t)
		th := NewThreadBuilder("user-1").Build(t, s)
		for i := 0; i < 5; i++ {
			seq, err := s.AppendMessage(ctx, th.ID, core.NewTextMessage(core.RoleUser, "m"))
			require.NoError(t, err)
			assert.EqualValues(t, i, seq)
		}
		msg, err := s.GetMessage(ctx, core.MessageRef{ThreadID: th.ID, Seq: 3})
		require.NoError(t, err)
		assert.EqualValues(t, 3, msg.Seq)
		assert.Equal(t, th.ID, msg.ThreadID)
		assert.False(t, msg.CreatedAt.IsZero())

		_, err = s.GetMessage(ctx, core.MessageRef{ThreadID: th.ID, Seq: 5})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("AppendRejectsInvalidMessages", func(t *testing.T) {
		s := newStore(t)
		th := NewThreadBuilder("user-1").Build(t, s)
		_, err := s.AppendMessage(ctx, th.ID, core.Message{Role: core.RoleUser})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
	})

	t.Run("ConcurrentAppendsNeverShareAPosition", func(t *testing.T) {
		s := newStore(t)
		th := NewThreadBuilder("user-1").Build(t, s)
		const writers, perWriter = 8, 25

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			seqs []int64
		)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					seq, err := s.AppendMessage(ctx, th.ID, core.NewTextMessage(core.RoleUser, "x"))
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					seqs = append(seqs, seq)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Len(t, seqs, writers*perWriter)
		sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
		for i, seq := range seqs {
			require.EqualValues(t, i, seq, "positions must be 0..N-1 without gaps or repeats")
		}
		all, err := s.GetRecentMessages(ctx, th.ID, 0)
		require.NoError(t, err)
		assert.Len(t, all, writers*perWriter)
	})

	t.Run("GetRecentMessages", func(t *testing.T) {
		s := newStore(t)
		empty := NewThreadBuilder("user-1").Build(t, s)
		msgs, err := s.GetRecentMessages(ctx, empty.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, msgs)

		th := NewThreadBuilder("user-1").Messages(UserTexts("a", "b", "c", "d")...).Build(t, s)

		msgs, err = s.GetRecentMessages(ctx, th.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "d"}, Texts(msgs))
		assert.Equal(t, []int64{2, 3}, Seqs(msgs))

		msgs, err = s.GetRecentMessages(ctx, th.ID, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d"}, Texts(msgs))

		msgs, err = s.GetRecentMessages(ctx, th.ID, 0)
		require.NoError(t, err)
		assert.Len(t, msgs, 4)
	})

	t.Run("GetMessagesInRangeClamps", func(t *testing.T) {
		s := newStore(t)
		th := NewThreadBuilder("user-1").Messages(UserTexts("a", "b", "c", "d", "e")...).Build(t, s)

		msgs, err := s.GetMessagesInRange(ctx, th.ID, 2, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c", "d"}, Texts(msgs))

		msgs, err = s.GetMessagesInRange(ctx, th.ID, 0, 3, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, Texts(msgs))

		msgs, err = s.GetMessagesInRange(ctx, th.ID, 4, 1, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "e"}, Texts(msgs))

		msgs, err = s.GetMessagesInRange(ctx, th.ID, 9, 1, 1)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("ReturnedValuesAreCopies", func(t *testing.T) {
		s := newStore(t)
		th := NewThreadBuilder("user-1").
			Messages(NewMessageBuilder().User("hello").Meta("k", "v").Build()).
			Build(t, s)

		msgs, err := s.GetRecentMessages(ctx, th.ID, 1)
		require.NoError(t, err)
		msgs[0].Metadata["k"] = "mutated"
		msgs[0].Content.Text = "mutated"

		again, err := s.GetRecentMessages(ctx, th.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, "hello", again[0].Content.Text)
		assert.Equal(t, "v", again[0].Metadata["k"])
	})

	t.Run("StructuredPayloadRoundTrip", func(t *testing.T) {
		s := newStore(t)
		th := NewThreadBuilder("user-1").
			Messages(NewMessageBuilder().ToolResult(map[string]any{"temperature": "21C"}).Build()).
			Build(t, s)
		msg, err := s.GetMessage(ctx, core.MessageRef{ThreadID: th.ID, Seq: 0})
		require.NoError(t, err)
		assert.Equal(t, core.RoleTool, msg.Role)
		assert.Equal(t, "21C", msg.Content.Data["temperature"])
	})

	t.Run("ListUpdateDelete", func(t *testing.T) {
		s := newStore(t)
		a := NewThreadBuilder("user-1").Title("first").Build(t, s)
		b := NewThreadBuilder("user-1").Messages(UserTexts("x")...).Build(t, s)
		NewThreadBuilder("user-2").Build(t, s)

		list, err := s.ListThreads(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.ElementsMatch(t, []string{a.ID, b.ID}, []string{list[0].ID, list[1].ID})

		updated, err := s.UpdateThread(ctx, b.ID, "generated", map[string]string{"topic": "food"})
		require.NoError(t, err)
		assert.Equal(t, "generated", updated.Title)
		assert.Equal(t, "food", updated.Metadata["topic"])

		kept, err := s.UpdateThread(ctx, b.ID, "", map[string]string{"lang": "en"})
		require.NoError(t, err)
		assert.Equal(t, "generated", kept.Title)
		assert.Equal(t, "food", kept.Metadata["topic"])
		assert.Equal(t, "en", kept.Metadata["lang"])

		require.NoError(t, s.DeleteThread(ctx, b.ID))
		_, err = s.GetThread(ctx, b.ID)
		assert.ErrorIs(t, err, core.ErrNotFound)
		_, err = s.GetRecentMessages(ctx, b.ID, 0)
		assert.ErrorIs(t, err, core.ErrNotFound)

		list, err = s.ListThreads(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, a.ID, list[0].ID)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		s := newStore(t)
		th := NewThreadBuilder("user-1").Build(t, s)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.AppendMessage(cctx, th.ID, core.NewTextMessage(core.RoleUser, "late"))
		assert.ErrorIs(t, err, context.Canceled)

		msgs, err := s.GetRecentMessages(ctx, th.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs, "cancelled append must not commit")
	})
}
