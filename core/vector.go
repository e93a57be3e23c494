package core

import (
	"context"
	"fmt"
	"sort"
)

// ScopeKind selects whether memory is isolated per conversation or shared
// across all threads of a resource.
type ScopeKind string

const (
	ScopeThread   ScopeKind = "thread"
	ScopeResource ScopeKind = "resource"
)

// Scope identifies the partition a vector or working memory snapshot
// belongs to.
type Scope struct {
	Kind ScopeKind `json:"kind" yaml:"kind"`
	ID   string    `json:"id" yaml:"id"`
}

// ThreadScope returns the scope of a single conversation.
func ThreadScope(threadID string) Scope { return Scope{Kind: ScopeThread, ID: threadID} }

// ResourceScope returns the scope shared by every thread of a resource.
func ResourceScope(resourceID string) Scope { return Scope{Kind: ScopeResource, ID: resourceID} }

// ScopeFor resolves the scope of the given kind for a thread owned by resourceID.
func ScopeFor(kind ScopeKind, threadID, resourceID string) Scope {
	if kind == ScopeResource {
		return ResourceScope(resourceID)
	}
	return ThreadScope(threadID)
}

// Key renders the scope as a stable storage key ("thread:<id>").
func (s Scope) Key() string { return string(s.Kind) + ":" + s.ID }

// String implements fmt.Stringer.
func (s Scope) String() string { return s.Key() }

// Validate reports ErrInvalidArgument for unknown kinds or empty ids.
func (s Scope) Validate() error {
	if s.Kind != ScopeThread && s.Kind != ScopeResource {
		return fmt.Errorf("%w: unknown scope kind %q", ErrInvalidArgument, s.Kind)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: scope id must not be empty", ErrInvalidArgument)
	}
	return nil
}

// Embedding is a vector tagged with the identity of the model that produced
// it. Vectors of different models are never compared.
type Embedding struct {
	Vector []float32 `json:"vector"`
	Model  string    `json:"model"`
}

// EmbeddingRecord links an embedding back to its source message.
type EmbeddingRecord struct {
	Ref       MessageRef `json:"ref"`
	Embedding Embedding  `json:"embedding"`
}

// Hit is a single similarity search result.
type Hit struct {
	Ref   MessageRef `json:"ref"`
	Score float64    `json:"score"`
}

// VectorIndex stores message embeddings per scope and answers k-nearest
// neighbour queries.
//
// Contract:
//   - Upsert is idempotent per ref; a new model's embedding replaces the old one
//   - Query returns hits by descending cosine similarity, ties broken by the
//     more recent sequence position; fewer than topK hits is not an error
//   - A query whose dimensionality differs from the stored vectors of the
//     same model fails with ErrDimensionMismatch
type VectorIndex interface {
	Upsert(ctx context.Context, scope Scope, rec EmbeddingRecord) error
	Query(ctx context.Context, scope Scope, query Embedding, topK int) ([]Hit, error)
	Delete(ctx context.Context, scope Scope, refs ...MessageRef) error
	DeleteThread(ctx context.Context, scope Scope, threadID string) error
}

// Embedder turns text into a vector. Implementations must be deterministic
// for a fixed model version and should wrap recoverable failures with
// ErrTransientUpstream.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Model() string
}

// SortHits orders hits by descending score, then by descending sequence
// position, then by thread id so results are deterministic.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Ref.Seq != b.Ref.Seq {
			return a.Ref.Seq > b.Ref.Seq
		}
		return a.Ref.ThreadID < b.Ref.ThreadID
	})
}

// ValidateQuery performs the argument checks shared by VectorIndex backends.
func ValidateQuery(scope Scope, query Embedding, topK int) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if topK <= 0 {
		return fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidArgument, topK)
	}
	if len(query.Vector) == 0 {
		return fmt.Errorf("%w: query vector must not be empty", ErrInvalidArgument)
	}
	return nil
}

// ValidateRecord performs the argument checks shared by VectorIndex backends.
func ValidateRecord(scope Scope, rec EmbeddingRecord) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if rec.Ref.ThreadID == "" || rec.Ref.Seq < 0 {
		return fmt.Errorf("%w: invalid message ref %s", ErrInvalidArgument, rec.Ref)
	}
	if len(rec.Embedding.Vector) == 0 {
		return fmt.Errorf("%w: embedding vector must not be empty", ErrInvalidArgument)
	}
	return nil
}
