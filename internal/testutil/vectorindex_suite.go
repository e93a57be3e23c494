package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/threadmem/core"
)

const suiteModel = "suite-model"

func record(threadID string, seq int64, vec ...float32) core.EmbeddingRecord {
	return core.EmbeddingRecord{
		Ref:       core.MessageRef{ThreadID: threadID, Seq: seq},
		Embedding: core.Embedding{Vector: vec, Model: suiteModel},
	}
}

func query(vec ...float32) core.Embedding {
	return core.Embedding{Vector: vec, Model: suiteModel}
}

// RunVectorIndexSuite exercises the core.VectorIndex contract against a
// fresh index returned by newIndex for each subtest.
func RunVectorIndexSuite(t *testing.T, newIndex func(t *testing.T) core.VectorIndex) {
	ctx := context.Background()
	scope := core.ThreadScope("t1")

	t.Run("OrdersByDescendingSimilarity", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, scope, record("t1", 0, 1, 0, 0)))
		require.NoError(t, idx.Upsert(ctx, scope, record("t1", 1, 0.7, 0.7, 0)))
		require.NoError(t, idx.Upsert(ctx, scope, record("t1", 2, 0, 0, 1)))

		hits, err := idx.Query(ctx, scope, query(1, 0.1, 0), 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.EqualValues(t, 0, hits[0].Ref.Seq)
		assert.EqualValues(t, 1, hits[1].Ref.Seq)
		assert.EqualValues(t, 2, hits[2].Ref.Seq)
		assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
		assert.GreaterOrEqual(t, hits[1].Score, hits[2].Score)
	})

	t.Run("TiesPreferMoreRecentPosition", func(t *testing.T) {
		idx := newIndex(t)
		for seq := int64(0); seq < 3; seq++ {
			require.NoError(t, idx.Upsert(ctx, scope, record("t1", seq, 1, 1, 0)))
		}
		require.NoError(t, idx.Upsert(ctx, scope, record("t1", 3, 0, 0, 1)))

		hits, err := idx.Query(ctx, scope, query(1, 1, 0), 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.EqualValues(t, 2, hits[0].Ref.Seq)
	})

	t.Run("UnderfullIsNotAnError", func(t *testing.T) {
		idx := newIndex(t)
		hits, err := idx.Query(ctx, scope, query(1, 0, 0), 5)
		require.NoError(t, err)
		assert.Empty(t, hits)

		require.NoError(t, idx.Upsert(ctx, scope, record("t1", 0, 1, 0, 0)))
		hits, err = idx.Query(ctx, scope, query(1, 0, 0), 5)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		idx := newIndex(t)
		_, err := idx.Query(ctx, scope, query(1, 0, 0), 0)
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
		_, err = idx.Query(ctx, core.ThreadScope(""), query(1, 0, 0), 1)
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
		assert.ErrorIs(t, idx.Upsert(ctx, scope, record("t1", 0)), core.ErrInvalidArgument)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, scope, record("t1", 0, 1, 0, 0)))

		_, err := idx.Query(ctx, scope, query(1, 0), 1)
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)

		err = idx.Upsert(ctx, scope, record("t1", 1, 1, 0, 0, 0))
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	})

	t.Run("UpsertIsIdempotentPerRef", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, scope, record("t1", 0, 1, 0, 0)))
		require.NoError(t, idx.Upsert(ctx, scope, record("t1", 0, 1, 0, 0)))
		require.NoError(t, idx.Upsert(ctx, scope, record("t1", 0, 0, 1, 0)))

		hits, err := idx.Query(ctx, scope, query(0, 1, 0), 5)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
	})

	t.Run("ModelsAreIsolatedAndReembeddingReplaces", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, scope, record("t1", 0, 1, 0, 0)))

		other := core.Embedding{Vector: []float32{1, 0}, Model: "other-model"}
		hits, err := idx.Query(ctx, scope, other, 1)
		require.NoError(t, err)
		assert.Empty(t, hits, "vectors of another model are never candidates")

		require.NoError(t, idx.Upsert(ctx, scope, core.EmbeddingRecord{
			Ref:       core.MessageRef{ThreadID: "t1", Seq: 0},
			Embedding: other,
		}))
		hits, err = idx.Query(ctx, scope, other, 1)
		require.NoError(t, err)
		assert.Len(t, hits, 1)

		hits, err = idx.Query(ctx, scope, query(1, 0, 0), 1)
		require.NoError(t, err)
		assert.Empty(t, hits, "re-embedding replaces the old model's record")
	})

	t.Run("ScopesAreIsolated", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, scope, record("t1", 0, 1, 0, 0)))
		hits, err := idx.Query(ctx, core.ThreadScope("t2"), query(1, 0, 0), 1)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("DeleteAndDeleteThread", func(t *testing.T) {
		idx := newIndex(t)
		res := core.ResourceScope("user-1")
		require.NoError(t, idx.Upsert(ctx, res, record("t1", 0, 1, 0, 0)))
		require.NoError(t, idx.Upsert(ctx, res, record("t1", 1, 0.9, 0.1, 0)))
		require.NoError(t, idx.Upsert(ctx, res, record("t2", 0, 0.8, 0.2, 0)))

		require.NoError(t, idx.Delete(ctx, res, core.MessageRef{ThreadID: "t1", Seq: 1}))
		hits, err := idx.Query(ctx, res, query(1, 0, 0), 5)
		require.NoError(t, err)
		require.Len(t, hits, 2)

		require.NoError(t, idx.DeleteThread(ctx, res, "t1"))
		hits, err = idx.Query(ctx, res, query(1, 0, 0), 5)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "t2", hits[0].Ref.ThreadID)
	})
}
