// Package cache memoizes embeddings in a ristretto cache. Entries are keyed by
// model identity and text, so swapping the wrapped model never serves stale
// vectors.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/logging"
)

// Options configures the cache.
type Options struct {
	// MaxCost bounds the cache size in bytes of vector data (default 64 MiB).
	MaxCost int64
	// NumCounters is the number of admission counters (default 10x the
	// expected entry count at 384 dimensions).
	NumCounters int64
	Logger      logging.Logger
}

// Embedder wraps another embedder. Errors are never cached.
type Embedder struct {
	next   core.Embedder
	cache  *ristretto.Cache
	logger logging.Logger
}

var _ core.Embedder = (*Embedder)(nil)

// New wraps next with a cache.
func New(next core.Embedder, optFns ...func(o *Options)) (*Embedder, error) {
	if next == nil {
		return nil, fmt.Errorf("%w: embedder must not be nil", core.ErrInvalidArgument)
	}
	opts := Options{MaxCost: 64 << 20, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.NumCounters <= 0 {
		opts.NumCounters = opts.MaxCost / (384 * 4) * 10
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: opts.NumCounters,
		MaxCost:     opts.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{next: next, cache: c, logger: opts.Logger}, nil
}

// embeddingLogger is implemented by logging.MemoryLogger. Only misses reach
// the wrapped embedder and get logged through it.
type embeddingLogger interface {
	LogEmbedding(model string, dims int, dur time.Duration, err error)
}

func cacheKey(model, text string) string { return model + "\x00" + text }

// Embed returns the cached vector for text or computes and stores it.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(e.next.Model(), text)
	if v, ok := e.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			e.logger.Debug("embedder.cache.hit", "model", e.next.Model())
			return append([]float32(nil), vec...), nil
		}
	}

	start := time.Now()
	vec, err := e.next.Embed(ctx, text)
	if el, ok := e.logger.(embeddingLogger); ok {
		el.LogEmbedding(e.next.Model(), len(vec), time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	stored := append([]float32(nil), vec...)
	e.cache.Set(key, stored, int64(len(stored)*4))
	return vec, nil
}

// Dimensions delegates to the wrapped embedder.
func (e *Embedder) Dimensions() int { return e.next.Dimensions() }

// Model delegates to the wrapped embedder.
func (e *Embedder) Model() string { return e.next.Model() }

// Wait blocks until buffered writes are applied. Mostly useful in tests.
func (e *Embedder) Wait() { e.cache.Wait() }

// Close releases the cache.
func (e *Embedder) Close() { e.cache.Close() }
