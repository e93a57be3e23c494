// Package mock provides deterministic embedders for tests.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/hupe1980/threadmem/core"
)

// Options configures the hash embedder.
type Options struct {
	// Dimensions is the vector size (default 384).
	Dimensions int
	// Model is the identity stamped onto vectors (default "mock-hash").
	Model string
}

// HashEmbedder derives a pseudo-random unit vector from the FNV hash of the
// text. Equal texts embed identically; different texts are nearly orthogonal.
type HashEmbedder struct {
	dimensions int
	model      string
}

var _ core.Embedder = (*HashEmbedder)(nil)

// New creates a hash embedder.
func New(optFns ...func(o *Options)) *HashEmbedder {
	opts := Options{Dimensions: 384, Model: "mock-hash"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &HashEmbedder{dimensions: opts.Dimensions, model: opts.Model}
}

// Embed creates a deterministic embedding from text.
func (m *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		// LCG step mapped into [-1, 1]
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *HashEmbedder) Dimensions() int { return m.dimensions }

// Model returns the model identity.
func (m *HashEmbedder) Model() string { return m.model }

// KeywordEmbedder maps text onto a small, human readable space: one axis per
// keyword group counting the tokens that belong to it, plus a constant bias
// axis so texts without any keyword still have a direction.
type KeywordEmbedder struct {
	model string
	axes  map[string]int
	dims  int
	calls atomic.Int64
}

var _ core.Embedder = (*KeywordEmbedder)(nil)

// NewKeyword creates a keyword embedder. Each group lists words that share an
// axis, e.g. NewKeyword("kw", []string{"food", "pizza", "pasta"}, []string{"weather"}).
func NewKeyword(model string, groups ...[]string) *KeywordEmbedder {
	axes := map[string]int{}
	for i, group := range groups {
		for _, word := range group {
			axes[strings.ToLower(word)] = i
		}
	}
	return &KeywordEmbedder{model: model, axes: axes, dims: len(groups) + 1}
}

// Embed counts keyword occurrences per axis.
func (k *KeywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.calls.Add(1)
	vec := make([]float32, k.dims)
	vec[k.dims-1] = 1
	for _, tok := range Tokenize(text) {
		if axis, ok := k.axes[tok]; ok {
			vec[axis]++
		}
	}
	return vec, nil
}

// Dimensions returns the number of keyword groups plus the bias axis.
func (k *KeywordEmbedder) Dimensions() int { return k.dims }

// Model returns the model identity.
func (k *KeywordEmbedder) Model() string { return k.model }

// Calls reports how many times Embed ran.
func (k *KeywordEmbedder) Calls() int64 { return k.calls.Load() }

// FailingEmbedder always fails. By default the error wraps
// core.ErrTransientUpstream, like a provider outage would.
type FailingEmbedder struct {
	Err  error
	Dims int
	Name string
}

var _ core.Embedder = (*FailingEmbedder)(nil)

// NewFailing creates an embedder that returns err (or a transient upstream
// failure when err is nil) from every Embed call.
func NewFailing(err error) *FailingEmbedder {
	if err == nil {
		err = fmt.Errorf("%w: embedding provider unavailable", core.ErrTransientUpstream)
	}
	return &FailingEmbedder{Err: err, Dims: 3, Name: "mock-failing"}
}

// Embed returns the configured error.
func (f *FailingEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, f.Err }

// Dimensions returns the configured size.
func (f *FailingEmbedder) Dimensions() int { return f.Dims }

// Model returns the configured model identity.
func (f *FailingEmbedder) Model() string { return f.Name }

// Tokenize lowercases text and splits it on anything that is not a letter or
// a digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
