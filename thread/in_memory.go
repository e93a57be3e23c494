package thread

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/logging"
)

// Options configures an InMemoryStore.
type Options struct {
	// Logger receives append/delete diagnostics (defaults to NoOpLogger).
	Logger logging.Logger
	// Now returns the timestamp stamped on threads and messages.
	Now func() time.Time
}

// threadLog is the per-thread state. Its mutex is the append lock that
// serializes sequence allocation for one thread.
type threadLog struct {
	mu       sync.Mutex
	thread   *core.Thread
	messages []core.Message
	deleted  bool
}

// InMemoryStore is a volatile ThreadStore keeping threads in a process local
// map. The map is guarded by an RWMutex; every thread additionally carries its
// own append lock so appends to different threads never contend. Returned
// threads and messages are copies.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*threadLog
	opts    Options
}

// NewInMemoryStore constructs an empty in-memory thread store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Now:    func() time.Time { return time.Now().UTC() },
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{threads: make(map[string]*threadLog), opts: opts}
}

// CreateThread registers a new thread owned by resourceID.
func (s *InMemoryStore) CreateThread(ctx context.Context, resourceID, title string) (*core.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	th, err := core.NewThread(resourceID, title)
	if err != nil {
		return nil, err
	}
	th.CreatedAt = s.opts.Now()
	th.UpdatedAt = th.CreatedAt

	s.mu.Lock()
	s.threads[th.ID] = &threadLog{thread: th}
	s.mu.Unlock()

	s.opts.Logger.Debug("thread.create", "thread_id", th.ID, "resource_id", resourceID)
	return th.Clone(), nil
}

// lookup returns the live log for threadID with its lock held. The caller
// must unlock it.
func (s *InMemoryStore) lookup(threadID string) (*threadLog, error) {
	s.mu.RLock()
	tl, ok := s.threads[threadID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: thread %q", core.ErrNotFound, threadID)
	}
	tl.mu.Lock()
	if tl.deleted {
		tl.mu.Unlock()
		return nil, fmt.Errorf("%w: thread %q", core.ErrNotFound, threadID)
	}
	return tl, nil
}

// GetThread returns a copy of the thread.
func (s *InMemoryStore) GetThread(ctx context.Context, threadID string) (*core.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tl, err := s.lookup(threadID)
	if err != nil {
		return nil, err
	}
	defer tl.mu.Unlock()
	return tl.thread.Clone(), nil
}

// ListThreads returns the resource's threads ordered by creation time.
func (s *InMemoryStore) ListThreads(ctx context.Context, resourceID string) ([]*core.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	logs := slices.Collect(maps.Values(s.threads))
	s.mu.RUnlock()

	out := []*core.Thread{}
	for _, tl := range logs {
		tl.mu.Lock()
		if !tl.deleted && tl.thread.ResourceID == resourceID {
			out = append(out, tl.thread.Clone())
		}
		tl.mu.Unlock()
	}
	core.SortThreads(out)
	return out, nil
}

// UpdateThread replaces title and merges metadata. An empty title keeps the
// current one.
func (s *InMemoryStore) UpdateThread(ctx context.Context, threadID, title string, metadata map[string]string) (*core.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tl, err := s.lookup(threadID)
	if err != nil {
		return nil, err
	}
	defer tl.mu.Unlock()
	tl.thread.ApplyUpdate(title, metadata, s.opts.Now())
	return tl.thread.Clone(), nil
}

// DeleteThread removes the thread and all of its messages.
func (s *InMemoryStore) DeleteThread(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	tl, ok := s.threads[threadID]
	delete(s.threads, threadID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: thread %q", core.ErrNotFound, threadID)
	}
	tl.mu.Lock()
	tl.deleted = true
	count := len(tl.messages)
	tl.messages = nil
	tl.mu.Unlock()

	s.opts.Logger.Info("thread.delete", "thread_id", threadID, "message_count", count)
	return nil
}

// AppendMessage assigns the next sequence position under the thread's append
// lock and stores a copy of msg.
func (s *InMemoryStore) AppendMessage(ctx context.Context, threadID string, msg core.Message) (int64, error) {
	if err := core.ValidateMessage(msg); err != nil {
		return 0, err
	}
	tl, err := s.lookup(threadID)
	if err != nil {
		return 0, err
	}
	defer tl.mu.Unlock()
	// checked under the lock so a cancelled caller never commits
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	stored := msg.Clone()
	stored.ThreadID = threadID
	stored.Seq = int64(len(tl.messages))
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.opts.Now()
	}
	tl.messages = append(tl.messages, stored)
	tl.thread.UpdatedAt = stored.CreatedAt

	s.opts.Logger.Debug("thread.append", "thread_id", threadID, "seq", stored.Seq, "role", string(stored.Role))
	return stored.Seq, nil
}

// GetMessage returns a single message by reference.
func (s *InMemoryStore) GetMessage(ctx context.Context, ref core.MessageRef) (core.Message, error) {
	if err := ctx.Err(); err != nil {
		return core.Message{}, err
	}
	tl, err := s.lookup(ref.ThreadID)
	if err != nil {
		return core.Message{}, err
	}
	defer tl.mu.Unlock()
	if ref.Seq < 0 || ref.Seq >= int64(len(tl.messages)) {
		return core.Message{}, fmt.Errorf("%w: message %s", core.ErrNotFound, ref)
	}
	return tl.messages[ref.Seq].Clone(), nil
}

// GetRecentMessages returns the last limit messages in ascending order, or
// the full history when limit <= 0.
func (s *InMemoryStore) GetRecentMessages(ctx context.Context, threadID string, limit int) ([]core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tl, err := s.lookup(threadID)
	if err != nil {
		return nil, err
	}
	defer tl.mu.Unlock()
	start := 0
	if limit > 0 && limit < len(tl.messages) {
		start = len(tl.messages) - limit
	}
	return cloneMessages(tl.messages[start:]), nil
}

// GetMessagesInRange returns the contiguous window around center, clamped to
// the thread's boundaries.
func (s *InMemoryStore) GetMessagesInRange(ctx context.Context, threadID string, center int64, before, after int) ([]core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tl, err := s.lookup(threadID)
	if err != nil {
		return nil, err
	}
	defer tl.mu.Unlock()
	lo, hi, ok := core.RangeBounds(int64(len(tl.messages)), center, before, after)
	if !ok {
		return []core.Message{}, nil
	}
	return cloneMessages(tl.messages[lo : hi+1]), nil
}

func cloneMessages(in []core.Message) []core.Message {
	out := make([]core.Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

