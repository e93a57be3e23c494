package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/testutil"
)

var _ core.VectorIndex = (*Index)(nil)

func TestIndex_Contract(t *testing.T) {
	testutil.RunVectorIndexSuite(t, func(t *testing.T) core.VectorIndex {
		idx, err := New()
		require.NoError(t, err)
		return idx
	})
}

func TestIndex_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	scope := core.ThreadScope("t1")
	rec := core.EmbeddingRecord{
		Ref:       core.MessageRef{ThreadID: "t1", Seq: 4},
		Embedding: core.Embedding{Vector: []float32{0, 1, 0}, Model: "m"},
	}

	idx, err := New(func(o *Options) { o.PersistDir = dir })
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, scope, rec))

	reopened, err := New(func(o *Options) { o.PersistDir = dir })
	require.NoError(t, err)

	hits, err := reopened.Query(ctx, scope, core.Embedding{Vector: []float32{0, 1, 0}, Model: "m"}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, rec.Ref, hits[0].Ref)

	_, err = reopened.Query(ctx, scope, core.Embedding{Vector: []float32{0, 1}, Model: "m"}, 1)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch, "dimensionality survives a reopen")
}

func TestCollectionName(t *testing.T) {
	key := collectionKey{scope: "thread:abc", model: "text-embedding-3-small"}
	gotKey, dims, ok := parseCollectionName(collectionName(key, 1536))
	require.True(t, ok)
	assert.Equal(t, key, gotKey)
	assert.Equal(t, 1536, dims)

	_, _, ok = parseCollectionName("not-ours")
	assert.False(t, ok)

	odd := collectionKey{scope: "resource:acme|eu", model: "team|model%2F"}
	gotKey, dims, ok = parseCollectionName(collectionName(odd, 3))
	require.True(t, ok)
	assert.Equal(t, odd, gotKey)
	assert.Equal(t, 3, dims)
}

func TestIndex_PersistenceWithSeparatorInResource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	scope := core.ResourceScope("acme|eu")
	rec := core.EmbeddingRecord{
		Ref:       core.MessageRef{ThreadID: "t1", Seq: 0},
		Embedding: core.Embedding{Vector: []float32{1, 0, 0}, Model: "kw|v1"},
	}
	q := core.Embedding{Vector: []float32{1, 0, 0}, Model: "kw|v1"}

	idx, err := New(func(o *Options) { o.PersistDir = dir })
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, scope, rec))
	hits, err := idx.Query(ctx, scope, q, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	reopened, err := New(func(o *Options) { o.PersistDir = dir })
	require.NoError(t, err)
	hits, err = reopened.Query(ctx, scope, q, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, rec.Ref, hits[0].Ref)

	require.NoError(t, reopened.DeleteThread(ctx, scope, "t1"))
	hits, err = reopened.Query(ctx, scope, q, 1)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
