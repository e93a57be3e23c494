package recall

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/logging"
	"github.com/hupe1980/threadmem/workingmemory"
)

// MessageRange is the window kept around each semantic hit.
type MessageRange struct {
	Before int `json:"before" yaml:"before"`
	After  int `json:"after" yaml:"after"`
}

// SemanticRecall configures similarity based retrieval.
type SemanticRecall struct {
	Enabled      bool
	TopK         int
	MessageRange MessageRange
	// Scope searches only the current thread or every thread of the resource.
	Scope core.ScopeKind
}

// Options configures an Assembler.
type Options struct {
	// LastMessages is the size of the recency window; 0 disables it.
	LastMessages   int
	SemanticRecall SemanticRecall
	Logger         logging.Logger
}

// WorkingMemorySource supplies the working memory block. A nil block means
// working memory is disabled.
type WorkingMemorySource interface {
	Current(ctx context.Context, t workingmemory.Target) (*workingmemory.Block, error)
}

// Request describes one recall.
type Request struct {
	ThreadID   string
	ResourceID string
	// Query is embedded for semantic recall. When empty, the latest user
	// message of the recency window is used.
	Query string
}

// Assembler builds Contexts. It holds no per-request state and is safe for
// concurrent use.
type Assembler struct {
	threads  core.ThreadStore
	index    core.VectorIndex
	embedder core.Embedder
	wm       WorkingMemorySource
	opts     Options
}

// recallLogger is implemented by logging.MemoryLogger.
type recallLogger interface {
	LogRecall(recent, semantic, hits int, degraded bool, dur time.Duration)
}

// NewAssembler creates an Assembler. index and embedder may be nil when
// semantic recall is disabled; wm may be nil when working memory is unused.
func NewAssembler(
	threads core.ThreadStore,
	index core.VectorIndex,
	embedder core.Embedder,
	wm WorkingMemorySource,
	optFns ...func(o *Options),
) (*Assembler, error) {
	opts := Options{
		LastMessages: 10,
		SemanticRecall: SemanticRecall{
			TopK:         4,
			MessageRange: MessageRange{Before: 1, After: 1},
			Scope:        core.ScopeThread,
		},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if threads == nil {
		return nil, fmt.Errorf("%w: thread store must not be nil", core.ErrInvalidArgument)
	}
	if opts.LastMessages < 0 {
		return nil, fmt.Errorf("%w: lastMessages must not be negative", core.ErrInvalidArgument)
	}
	if sr := opts.SemanticRecall; sr.Enabled {
		switch {
		case index == nil || embedder == nil:
			return nil, fmt.Errorf("%w: semantic recall needs a vector index and an embedder", core.ErrInvalidArgument)
		case sr.TopK <= 0:
			return nil, fmt.Errorf("%w: topK must be positive, got %d", core.ErrInvalidArgument, sr.TopK)
		case sr.MessageRange.Before < 0 || sr.MessageRange.After < 0:
			return nil, fmt.Errorf("%w: message range must not be negative", core.ErrInvalidArgument)
		case sr.Scope != core.ScopeThread && sr.Scope != core.ScopeResource:
			return nil, fmt.Errorf("%w: unknown recall scope %q", core.ErrInvalidArgument, sr.Scope)
		}
	}
	return &Assembler{threads: threads, index: index, embedder: embedder, wm: wm, opts: opts}, nil
}

// Assemble builds the context window for req.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Context, error) {
	start := time.Now()
	if req.ThreadID == "" {
		return nil, fmt.Errorf("%w: thread id must not be empty", core.ErrInvalidArgument)
	}

	out := &Context{ThreadID: req.ThreadID, ResourceID: req.ResourceID}
	merged := newMessageSet()

	var recent []core.Message
	if a.opts.LastMessages > 0 {
		var err error
		recent, err = a.threads.GetRecentMessages(ctx, req.ThreadID, a.opts.LastMessages)
		if err != nil {
			return nil, fmt.Errorf("recent messages: %w", err)
		}
		merged.add(recent...)
	} else if _, err := a.threads.GetThread(ctx, req.ThreadID); err != nil {
		return nil, err
	}

	semantic := 0
	if a.opts.SemanticRecall.Enabled {
		hits, degraded, err := a.semantic(ctx, req, recent)
		if err != nil {
			return nil, err
		}
		out.Hits = hits
		out.Degraded = degraded
		for _, hit := range hits {
			window, err := a.expand(ctx, hit)
			if err != nil {
				return nil, err
			}
			semantic += merged.add(window...)
		}
	}

	out.Messages, out.CrossThread = merged.split(req.ThreadID)

	if a.wm != nil {
		block, err := a.wm.Current(ctx, workingmemory.Target{ThreadID: req.ThreadID, ResourceID: req.ResourceID})
		if err != nil {
			return nil, fmt.Errorf("working memory: %w", err)
		}
		out.WorkingMemory = block
	}

	if rl, ok := a.opts.Logger.(recallLogger); ok {
		rl.LogRecall(len(recent), semantic, len(out.Hits), out.Degraded, time.Since(start))
	} else {
		a.opts.Logger.Debug("recall.assembled",
			"thread_id", req.ThreadID,
			"recent_count", len(recent),
			"semantic_count", semantic,
			"hit_count", len(out.Hits),
			"degraded", out.Degraded,
		)
	}
	return out, nil
}

// semantic embeds the query and searches the index. Embedder failures are
// logged and reported as degraded instead of failing the recall.
func (a *Assembler) semantic(ctx context.Context, req Request, recent []core.Message) ([]core.Hit, bool, error) {
	query := req.Query
	if query == "" {
		query = latestUserText(recent)
	}
	if query == "" {
		return nil, false, nil
	}

	sr := a.opts.SemanticRecall
	scope := core.ScopeFor(sr.Scope, req.ThreadID, req.ResourceID)
	if err := scope.Validate(); err != nil {
		return nil, false, err
	}

	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		a.opts.Logger.Warn("recall.embed.failed",
			"thread_id", req.ThreadID,
			"model", a.embedder.Model(),
			"transient", core.IsTransient(err),
			"error", err.Error(),
		)
		return nil, true, nil
	}

	hits, err := a.index.Query(ctx, scope, core.Embedding{Vector: vec, Model: a.embedder.Model()}, sr.TopK)
	if err != nil {
		return nil, false, fmt.Errorf("vector query: %w", err)
	}
	return hits, false, nil
}

// expand loads the message range around hit. A hit pointing at a thread
// that no longer exists is skipped.
func (a *Assembler) expand(ctx context.Context, hit core.Hit) ([]core.Message, error) {
	r := a.opts.SemanticRecall.MessageRange
	window, err := a.threads.GetMessagesInRange(ctx, hit.Ref.ThreadID, hit.Ref.Seq, r.Before, r.After)
	if errors.Is(err, core.ErrNotFound) {
		a.opts.Logger.Warn("recall.hit.stale", "ref", hit.Ref.String())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", hit.Ref, err)
	}
	return window, nil
}

func latestUserText(msgs []core.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleUser && msgs[i].Content.Text != "" {
			return msgs[i].Content.Text
		}
	}
	return ""
}

// messageSet deduplicates messages by reference.
type messageSet struct {
	seen map[core.MessageRef]core.Message
}

func newMessageSet() *messageSet {
	return &messageSet{seen: map[core.MessageRef]core.Message{}}
}

// add inserts msgs and returns how many were new.
func (s *messageSet) add(msgs ...core.Message) int {
	added := 0
	for _, m := range msgs {
		if _, ok := s.seen[m.Ref()]; ok {
			continue
		}
		s.seen[m.Ref()] = m
		added++
	}
	return added
}

// split returns the current thread's messages by ascending seq and the other
// threads' messages grouped per thread. Groups are ordered by the creation
// time of their earliest message.
func (s *messageSet) split(threadID string) ([]core.Message, []ThreadWindow) {
	own := []core.Message{}
	others := map[string][]core.Message{}
	for ref, m := range s.seen {
		if ref.ThreadID == threadID {
			own = append(own, m)
			continue
		}
		others[ref.ThreadID] = append(others[ref.ThreadID], m)
	}
	sortBySeq(own)

	windows := make([]ThreadWindow, 0, len(others))
	for id, msgs := range others {
		sortBySeq(msgs)
		windows = append(windows, ThreadWindow{ThreadID: id, Messages: msgs})
	}
	sort.Slice(windows, func(i, j int) bool {
		a, b := windows[i].Messages[0].CreatedAt, windows[j].Messages[0].CreatedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return windows[i].ThreadID < windows[j].ThreadID
	})
	return own, windows
}

func sortBySeq(msgs []core.Message) {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })
}
