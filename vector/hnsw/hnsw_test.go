package hnsw

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/testutil"
)

var _ core.VectorIndex = (*Index)(nil)

func TestIndex_Contract(t *testing.T) {
	testutil.RunVectorIndexSuite(t, func(t *testing.T) core.VectorIndex {
		return New()
	})
}

func TestIndex_FindsNearestInLargerGraph(t *testing.T) {
	ctx := context.Background()
	scope := core.ResourceScope("user-1")
	idx := New(func(o *Options) { o.EfSearch = 64 })

	for seq := int64(0); seq < 200; seq++ {
		v := []float32{float32(seq%7) + 1, float32(seq%11) + 1, float32(seq%13) + 1}
		require.NoError(t, idx.Upsert(ctx, scope, core.EmbeddingRecord{
			Ref:       core.MessageRef{ThreadID: fmt.Sprintf("t%d", seq%3), Seq: seq},
			Embedding: core.Embedding{Vector: v, Model: "m"},
		}))
	}
	target := core.MessageRef{ThreadID: "t0", Seq: 1000}
	require.NoError(t, idx.Upsert(ctx, scope, core.EmbeddingRecord{
		Ref:       target,
		Embedding: core.Embedding{Vector: []float32{-5, 9, -3}, Model: "m"},
	}))

	hits, err := idx.Query(ctx, scope, core.Embedding{Vector: []float32{-5, 9, -3}, Model: "m"}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, target, hits[0].Ref)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
}

func TestIndex_ReplaceAndDeleteKeepGraphUsable(t *testing.T) {
	ctx := context.Background()
	scope := core.ThreadScope("t1")
	vec := func(seq int64, shift float32) []float32 {
		return []float32{float32(seq%5) + 1 + shift, float32(seq%9) + 1, float32(seq%4) + 2}
	}

	for _, n := range []int{16, 17, 31, 64, 100, 200} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			idx := New()
			upsert := func(seq int64, shift float32) {
				require.NoError(t, idx.Upsert(ctx, scope, core.EmbeddingRecord{
					Ref:       core.MessageRef{ThreadID: "t1", Seq: seq},
					Embedding: core.Embedding{Vector: vec(seq, shift), Model: "m"},
				}))
			}
			q := core.Embedding{Vector: []float32{1, 1, 1}, Model: "m"}

			for seq := int64(0); seq < int64(n); seq++ {
				upsert(seq, 0)
			}
			for seq := int64(0); seq < int64(n); seq++ {
				upsert(seq, 0.5)
			}
			hits, err := idx.Query(ctx, scope, q, 5)
			require.NoError(t, err)
			assert.Len(t, hits, 5)

			refs := make([]core.MessageRef, 0, n/2)
			for seq := int64(0); seq < int64(n); seq += 2 {
				refs = append(refs, core.MessageRef{ThreadID: "t1", Seq: seq})
			}
			require.NoError(t, idx.Delete(ctx, scope, refs...))
			upsert(1, 1)

			hits, err = idx.Query(ctx, scope, q, n)
			require.NoError(t, err)
			assert.NotEmpty(t, hits)
			assert.LessOrEqual(t, len(hits), n-len(refs))
			for _, h := range hits {
				assert.EqualValues(t, 1, h.Ref.Seq%2, "deleted refs never come back")
			}

			for _, ref := range refs {
				upsert(ref.Seq, 0)
			}
			hits, err = idx.Query(ctx, scope, q, 5)
			require.NoError(t, err)
			assert.Len(t, hits, 5)

			require.NoError(t, idx.DeleteThread(ctx, scope, "t1"))
			hits, err = idx.Query(ctx, scope, q, 1)
			require.NoError(t, err)
			assert.Empty(t, hits)
			upsert(0, 0)
			hits, err = idx.Query(ctx, scope, q, 1)
			require.NoError(t, err)
			assert.Len(t, hits, 1)
		})
	}
}
