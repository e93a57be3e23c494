// Package openai implements core.Embedder with the OpenAI Embeddings API.
package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/upstream"
	"github.com/hupe1980/threadmem/logging"
)

var defaultDimensions = map[string]int{
	openai.EmbeddingModelTextEmbedding3Small: 1536,
	openai.EmbeddingModelTextEmbedding3Large: 3072,
	openai.EmbeddingModelTextEmbeddingAda002: 1536,
}

// Options configures the OpenAI embedder.
type Options struct {
	Model string
	// Dimensions shortens text-embedding-3 vectors when set. Zero keeps the
	// model's native size.
	Dimensions int
	// APIKey overrides the OPENAI_API_KEY environment variable.
	APIKey string
	// BaseURL points the client at a compatible endpoint.
	BaseURL string
	// MaxRetries overrides the SDK's retry count when non-negative.
	MaxRetries int
	Logger     logging.Logger
}

// Embedder calls the Embeddings API once per text.
type Embedder struct {
	client *openai.Client
	opts   Options
	dims   int
}

var _ core.Embedder = (*Embedder)(nil)

func defaultOptions() Options {
	return Options{
		Model:      openai.EmbeddingModelTextEmbedding3Small,
		MaxRetries: -1,
		Logger:     logging.NoOpLogger{},
	}
}

// New creates an embedder with its own client.
func New(optFns ...func(o *Options)) (*Embedder, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxRetries >= 0 {
		clientOpts = append(clientOpts, option.WithMaxRetries(opts.MaxRetries))
	}
	client := openai.NewClient(clientOpts...)
	return newEmbedder(&client, opts)
}

// NewFromClient creates an embedder from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) (*Embedder, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return newEmbedder(client, opts)
}

func newEmbedder(client *openai.Client, opts Options) (*Embedder, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: embedding model must be set", core.ErrInvalidArgument)
	}
	dims := opts.Dimensions
	if dims == 0 {
		dims = defaultDimensions[opts.Model]
	}
	if dims <= 0 {
		return nil, fmt.Errorf("%w: unknown dimensions for model %q, set Options.Dimensions", core.ErrInvalidArgument, opts.Model)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Embedder{client: client, opts: opts, dims: dims}, nil
}

// Embed requests the embedding of text. Rate limiting, server errors and
// network failures wrap core.ErrTransientUpstream.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: e.opts.Model,
	}
	if e.opts.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.opts.Dimensions))
	}

	start := time.Now()
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		err = upstream.Classify("openai embeddings", err)
		e.logCall(0, time.Since(start), err)
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: openai embeddings: empty response", core.ErrTransientUpstream)
	}
	raw := resp.Data[0].Embedding
	if len(raw) != e.dims {
		return nil, fmt.Errorf("%w: openai returned %d dimensions, expected %d", core.ErrDimensionMismatch, len(raw), e.dims)
	}
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	e.logCall(len(vec), time.Since(start), nil)
	return vec, nil
}

// embeddingLogger is implemented by logging.MemoryLogger.
type embeddingLogger interface {
	LogEmbedding(model string, dims int, dur time.Duration, err error)
}

func (e *Embedder) logCall(dims int, dur time.Duration, err error) {
	if el, ok := e.opts.Logger.(embeddingLogger); ok {
		el.LogEmbedding(e.opts.Model, dims, dur, err)
		return
	}
	if err != nil {
		e.opts.Logger.Warn("embedder.openai.failed", "model", e.opts.Model, "error", err.Error())
		return
	}
	e.opts.Logger.Debug("embedder.openai.embed", "model", e.opts.Model, "dimensions", dims, "duration", dur)
}

// Dimensions returns the vector size produced by the configured model.
func (e *Embedder) Dimensions() int { return e.dims }

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.opts.Model }
