// Package hnsw implements core.VectorIndex on coder/hnsw graphs. One graph is
// kept per (scope, model). Candidates returned by the approximate search are
// re-scored with exact cosine similarity before the recency tie-break.
package hnsw

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/logging"
	"github.com/hupe1980/threadmem/vector"
)

// Options tunes the graphs created by the index.
type Options struct {
	// M is the maximum number of neighbours per node (hnsw default 16).
	M int
	// EfSearch is the search candidate list size (hnsw default 20).
	EfSearch int
	Logger   logging.Logger
}

type graphKey struct {
	scope string
	model string
}

// graph owns the vectors of one (scope, model). coder/hnsw leaves a graph
// unusable after Graph.Delete (and Add of an existing key deletes
// internally), so replaced or removed entries only mark the graph stale and
// it is rebuilt from entries before the next search.
type graph struct {
	g       *hnsw.Graph[string]
	dims    int
	entries map[string]entry
	stale   bool
}

type entry struct {
	ref core.MessageRef
	vec []float32
}

// Index is an in-memory HNSW VectorIndex. All graph access is serialized by
// a single mutex because coder/hnsw graphs are not safe for concurrent writes.
type Index struct {
	mu     sync.Mutex
	graphs map[graphKey]*graph
	opts   Options
}

// New creates an empty index.
func New(optFns ...func(o *Options)) *Index {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Index{graphs: map[graphKey]*graph{}, opts: opts}
}

func (i *Index) newGraph(dims int) *graph {
	return &graph{g: i.newHNSW(), dims: dims, entries: map[string]entry{}}
}

func (i *Index) newHNSW() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	if i.opts.M > 0 {
		g.M = i.opts.M
	}
	if i.opts.EfSearch > 0 {
		g.EfSearch = i.opts.EfSearch
	}
	return g
}

// rebuild replaces a stale graph with a fresh one holding every entry.
func (i *Index) rebuild(gr *graph) {
	if !gr.stale {
		return
	}
	g := i.newHNSW()
	nodes := make([]hnsw.Node[string], 0, len(gr.entries))
	for id, e := range gr.entries {
		nodes = append(nodes, hnsw.MakeNode(id, e.vec))
	}
	if len(nodes) > 0 {
		g.Add(nodes...)
	}
	gr.g = g
	gr.stale = false
	i.opts.Logger.Debug("vector.hnsw.rebuild", "nodes", len(nodes))
}

func nodeKey(ref core.MessageRef) string { return ref.String() }

func dimensionMismatch(got, want int) error {
	return fmt.Errorf("%w: got %d dimensions, index holds %d", core.ErrDimensionMismatch, got, want)
}

// Upsert adds or replaces the node for rec.Ref in the graph of its model and
// evicts the ref from the scope's other model graphs.
func (i *Index) Upsert(ctx context.Context, scope core.Scope, rec core.EmbeddingRecord) error {
	if err := core.ValidateRecord(scope, rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	key := graphKey{scope: scope.Key(), model: rec.Embedding.Model}
	dims := len(rec.Embedding.Vector)
	id := nodeKey(rec.Ref)
	vec := append([]float32(nil), rec.Embedding.Vector...)

	i.mu.Lock()
	defer i.mu.Unlock()

	gr, ok := i.graphs[key]
	switch {
	case !ok, len(gr.entries) == 0 && gr.dims != dims:
		gr = i.newGraph(dims)
		i.graphs[key] = gr
	case gr.dims != dims:
		return dimensionMismatch(dims, gr.dims)
	}

	_, exists := gr.entries[id]
	gr.entries[id] = entry{ref: rec.Ref, vec: vec}
	if exists || gr.stale {
		gr.stale = true
	} else {
		gr.g.Add(hnsw.MakeNode(id, vec))
	}

	for other, og := range i.graphs {
		if other.scope != key.scope || other.model == key.model {
			continue
		}
		if _, found := og.entries[id]; found {
			delete(og.entries, id)
			og.stale = true
		}
		if len(og.entries) == 0 {
			delete(i.graphs, other)
		}
	}
	return nil
}

// Query searches the graph of the query's model in scope.
func (i *Index) Query(ctx context.Context, scope core.Scope, query core.Embedding, topK int) ([]core.Hit, error) {
	if err := core.ValidateQuery(scope, query, topK); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	gr, ok := i.graphs[graphKey{scope: scope.Key(), model: query.Model}]
	if !ok || len(gr.entries) == 0 {
		return []core.Hit{}, nil
	}
	if len(query.Vector) != gr.dims {
		return nil, dimensionMismatch(len(query.Vector), gr.dims)
	}
	i.rebuild(gr)

	nodes := gr.g.Search(query.Vector, vector.CandidatePool(topK, len(gr.entries)))
	hits := make([]core.Hit, 0, len(nodes))
	for _, n := range nodes {
		e, ok := gr.entries[n.Key]
		if !ok {
			continue
		}
		hits = append(hits, core.Hit{
			Ref:   e.ref,
			Score: float64(1 - hnsw.CosineDistance(query.Vector, e.vec)),
		})
	}
	core.SortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Delete removes refs from every model graph of scope.
func (i *Index) Delete(ctx context.Context, scope core.Scope, refs ...core.MessageRef) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return i.deleteMatching(ctx, scope, func(ref core.MessageRef) bool {
		for _, r := range refs {
			if r == ref {
				return true
			}
		}
		return false
	})
}

// DeleteThread removes every node of threadID from scope.
func (i *Index) DeleteThread(ctx context.Context, scope core.Scope, threadID string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return i.deleteMatching(ctx, scope, func(ref core.MessageRef) bool { return ref.ThreadID == threadID })
}

func (i *Index) deleteMatching(ctx context.Context, scope core.Scope, match func(core.MessageRef) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	removed := 0
	for key, gr := range i.graphs {
		if key.scope != scope.Key() {
			continue
		}
		for id, e := range gr.entries {
			if !match(e.ref) {
				continue
			}
			delete(gr.entries, id)
			gr.stale = true
			removed++
		}
		if len(gr.entries) == 0 {
			delete(i.graphs, key)
		}
	}
	i.opts.Logger.Debug("vector.hnsw.delete", "scope", scope.Key(), "removed", removed)
	return nil
}
