// Package chromem implements core.VectorIndex on top of chromem-go, a pure Go
// embedded vector database. Every (scope, model, dimensionality) triple gets
// its own collection; the dimensionality is part of the collection name so a
// persisted database can be reopened without a side table.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/logging"
)

const (
	metaThreadID = "thread_id"
	metaSeq      = "seq"
	metaModel    = "model"

	nameSep = "|"
)

// errNoEmbeddingFunc guards against chromem computing embeddings on its own;
// every document and query arrives with a precomputed vector.
var errNoEmbeddingFunc = errors.New("chromem: documents must carry precomputed embeddings")

// Options configures the chromem index.
type Options struct {
	// PersistDir enables on-disk persistence when non-empty.
	PersistDir string
	// Compress gzips persisted files.
	Compress bool
	Logger   logging.Logger
}

// collectionKey identifies the collection for one scope and model.
type collectionKey struct {
	scope string
	model string
}

type entry struct {
	col  *chromem.Collection
	dims int
}

// Index is a chromem-go backed VectorIndex. Queries are exhaustive, so ties
// are resolved exactly by recency.
type Index struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[collectionKey]*entry
	opts        Options
}

// New creates an index, in memory or persisted under Options.PersistDir.
func New(optFns ...func(o *Options)) (*Index, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	var db *chromem.DB
	if opts.PersistDir != "" {
		var err error
		db, err = chromem.NewPersistentDB(opts.PersistDir, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("open persistent db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	idx := &Index{db: db, collections: map[collectionKey]*entry{}, opts: opts}
	for name, col := range db.ListCollections() {
		key, dims, ok := parseCollectionName(name)
		if !ok {
			opts.Logger.Warn("vector.chromem.skip_collection", "name", name)
			continue
		}
		idx.collections[key] = &entry{col: col, dims: dims}
	}
	return idx, nil
}

// collectionName path-escapes scope and model so caller supplied ids that
// contain the separator survive a reopen.
func collectionName(key collectionKey, dims int) string {
	return strings.Join([]string{
		url.PathEscape(key.scope),
		url.PathEscape(key.model),
		strconv.Itoa(dims),
	}, nameSep)
}

func parseCollectionName(name string) (collectionKey, int, bool) {
	parts := strings.Split(name, nameSep)
	if len(parts) != 3 {
		return collectionKey{}, 0, false
	}
	dims, err := strconv.Atoi(parts[2])
	if err != nil {
		return collectionKey{}, 0, false
	}
	scope, err := url.PathUnescape(parts[0])
	if err != nil {
		return collectionKey{}, 0, false
	}
	model, err := url.PathUnescape(parts[1])
	if err != nil {
		return collectionKey{}, 0, false
	}
	return collectionKey{scope: scope, model: model}, dims, true
}

func rejectEmbedding(context.Context, string) ([]float32, error) { return nil, errNoEmbeddingFunc }

func docID(ref core.MessageRef) string { return ref.String() }

func dimensionMismatch(got, want int) error {
	return fmt.Errorf("%w: got %d dimensions, index holds %d", core.ErrDimensionMismatch, got, want)
}

// Upsert stores rec in the collection of its model. A record of the same ref
// under another model in the same scope is removed so re-embedding replaces
// rather than duplicates.
func (i *Index) Upsert(ctx context.Context, scope core.Scope, rec core.EmbeddingRecord) error {
	if err := core.ValidateRecord(scope, rec); err != nil {
		return err
	}
	key := collectionKey{scope: scope.Key(), model: rec.Embedding.Model}
	dims := len(rec.Embedding.Vector)

	i.mu.Lock()
	defer i.mu.Unlock()

	e, ok := i.collections[key]
	if ok && e.dims != dims {
		if e.col.Count() > 0 {
			return dimensionMismatch(dims, e.dims)
		}
		i.dropLocked(key, e)
		ok = false
	}
	if !ok {
		col, err := i.db.GetOrCreateCollection(collectionName(key, dims), nil, rejectEmbedding)
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		e = &entry{col: col, dims: dims}
		i.collections[key] = e
	}

	doc := chromem.Document{
		ID:        docID(rec.Ref),
		Content:   rec.Ref.String(),
		Embedding: append([]float32(nil), rec.Embedding.Vector...),
		Metadata: map[string]string{
			metaThreadID: rec.Ref.ThreadID,
			metaSeq:      strconv.FormatInt(rec.Ref.Seq, 10),
			metaModel:    rec.Embedding.Model,
		},
	}
	if err := e.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	for other, oe := range i.collections {
		if other.scope != key.scope || other.model == key.model || oe.col.Count() == 0 {
			continue
		}
		if err := oe.col.Delete(ctx, nil, nil, doc.ID); err != nil {
			return fmt.Errorf("drop stale embedding: %w", err)
		}
	}
	return nil
}

func (i *Index) dropLocked(key collectionKey, e *entry) {
	if err := i.db.DeleteCollection(collectionName(key, e.dims)); err != nil {
		i.opts.Logger.Warn("vector.chromem.drop_failed", "collection", collectionName(key, e.dims), "error", err.Error())
	}
	delete(i.collections, key)
}

// Query returns up to topK hits for the query's model in scope.
func (i *Index) Query(ctx context.Context, scope core.Scope, query core.Embedding, topK int) ([]core.Hit, error) {
	if err := core.ValidateQuery(scope, query, topK); err != nil {
		return nil, err
	}
	// held for the whole query so a concurrent delete cannot shrink the
	// collection below the requested result count
	i.mu.RLock()
	defer i.mu.RUnlock()

	e, ok := i.collections[collectionKey{scope: scope.Key(), model: query.Model}]
	if !ok {
		return []core.Hit{}, nil
	}
	if len(query.Vector) != e.dims {
		return nil, dimensionMismatch(len(query.Vector), e.dims)
	}
	n := e.col.Count()
	if n == 0 {
		return []core.Hit{}, nil
	}

	// exhaustive: chromem scans every document anyway and ordering among
	// equal similarities must be decided here, not by the heap
	results, err := e.col.QueryEmbedding(ctx, query.Vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]core.Hit, 0, len(results))
	for _, r := range results {
		seq, err := strconv.ParseInt(r.Metadata[metaSeq], 10, 64)
		if err != nil {
			i.opts.Logger.Warn("vector.chromem.skip_result", "id", r.ID, "error", err.Error())
			continue
		}
		hits = append(hits, core.Hit{
			Ref:   core.MessageRef{ThreadID: r.Metadata[metaThreadID], Seq: seq},
			Score: float64(r.Similarity),
		})
	}
	core.SortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Delete removes the given refs from every model collection of scope.
func (i *Index) Delete(ctx context.Context, scope core.Scope, refs ...core.MessageRef) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}
	ids := make([]string, len(refs))
	for n, ref := range refs {
		ids[n] = docID(ref)
	}
	return i.deleteWhere(ctx, scope, nil, ids)
}

// DeleteThread removes every embedding of threadID from scope.
func (i *Index) DeleteThread(ctx context.Context, scope core.Scope, threadID string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return i.deleteWhere(ctx, scope, map[string]string{metaThreadID: threadID}, nil)
}

func (i *Index) deleteWhere(ctx context.Context, scope core.Scope, where map[string]string, ids []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for key, e := range i.collections {
		if key.scope != scope.Key() || e.col.Count() == 0 {
			continue
		}
		if err := e.col.Delete(ctx, where, nil, ids...); err != nil {
			return fmt.Errorf("chromem delete: %w", err)
		}
	}
	return nil
}
