package core

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author category of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	default:
		return false
	}
}

// Thread is a single conversation's ordered message log owned by a resource
// (typically a user). Only Title and Metadata change after creation.
type Thread struct {
	ID         string            `json:"id"`
	ResourceID string            `json:"resource_id"`
	Title      string            `json:"title,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewThread allocates a thread with a fresh id. It fails with
// ErrInvalidArgument when resourceID is empty.
func NewThread(resourceID, title string) (*Thread, error) {
	if resourceID == "" {
		return nil, fmt.Errorf("%w: resource id must not be empty", ErrInvalidArgument)
	}
	now := time.Now().UTC()
	return &Thread{
		ID:         NewID(),
		ResourceID: resourceID,
		Title:      title,
		Metadata:   map[string]string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Clone returns a deep copy of the thread.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	c := *t
	c.Metadata = maps.Clone(t.Metadata)
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	return &c
}

// ApplyUpdate sets a new title (an empty title keeps the current one) and
// merges metadata.
func (t *Thread) ApplyUpdate(title string, metadata map[string]string, now time.Time) {
	if title != "" {
		t.Title = title
	}
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}
	maps.Copy(t.Metadata, metadata)
	t.UpdatedAt = now
}

// SortThreads orders threads by creation time, then id.
func SortThreads(threads []*Thread) {
	sort.Slice(threads, func(i, j int) bool {
		if !threads[i].CreatedAt.Equal(threads[j].CreatedAt) {
			return threads[i].CreatedAt.Before(threads[j].CreatedAt)
		}
		return threads[i].ID < threads[j].ID
	})
}

// Content is either plain text, a structured payload (tool arguments or
// results) or both.
type Content struct {
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// IsEmpty reports whether the content carries neither text nor data.
func (c Content) IsEmpty() bool { return c.Text == "" && len(c.Data) == 0 }

// Message belongs to exactly one thread. Seq is assigned by the ThreadStore
// on append, starts at 0 and is strictly increasing per thread.
type Message struct {
	ThreadID  string            `json:"thread_id"`
	Seq       int64             `json:"seq"`
	Role      Role              `json:"role"`
	Content   Content           `json:"content"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Ref returns the composite reference identifying the message.
func (m Message) Ref() MessageRef { return MessageRef{ThreadID: m.ThreadID, Seq: m.Seq} }

// Clone returns a deep copy so callers can't mutate store internals.
func (m Message) Clone() Message {
	m.Metadata = maps.Clone(m.Metadata)
	m.Content.Data = maps.Clone(m.Content.Data)
	return m
}

// NewTextMessage builds an unsaved message with text content.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: Content{Text: text}}
}

// MessageRef is the stable composite key (thread id, sequence position) used
// by both the thread store and the vector index.
type MessageRef struct {
	ThreadID string `json:"thread_id"`
	Seq      int64  `json:"seq"`
}

// String renders the reference as "threadID#seq".
func (r MessageRef) String() string { return fmt.Sprintf("%s#%d", r.ThreadID, r.Seq) }

// ThreadStore is the durable, ordered append log of messages per thread.
//
// Contract:
//   - AppendMessage atomically assigns the next sequence position; two appends
//     never receive the same position
//   - GetRecentMessages returns the last limit messages ascending, all of them
//     when limit <= 0, and an empty slice for an empty thread
//   - GetMessagesInRange clamps at thread boundaries without error
//   - Unknown thread ids yield ErrNotFound
type ThreadStore interface {
	CreateThread(ctx context.Context, resourceID, title string) (*Thread, error)
	GetThread(ctx context.Context, threadID string) (*Thread, error)
	ListThreads(ctx context.Context, resourceID string) ([]*Thread, error)
	UpdateThread(ctx context.Context, threadID, title string, metadata map[string]string) (*Thread, error)
	DeleteThread(ctx context.Context, threadID string) error

	AppendMessage(ctx context.Context, threadID string, msg Message) (int64, error)
	GetMessage(ctx context.Context, ref MessageRef) (Message, error)
	GetRecentMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
	GetMessagesInRange(ctx context.Context, threadID string, center int64, before, after int) ([]Message, error)
}

// ValidateMessage checks caller supplied fields before an append.
func ValidateMessage(msg Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, msg.Role)
	}
	if msg.Content.IsEmpty() {
		return fmt.Errorf("%w: message content must not be empty", ErrInvalidArgument)
	}
	return nil
}

// RangeBounds computes the inclusive [lo, hi] window around center clamped
// to [0, count-1]. ok is false when the window is empty.
func RangeBounds(count, center int64, before, after int) (lo, hi int64, ok bool) {
	if count <= 0 || center < 0 || center >= count {
		return 0, 0, false
	}
	if before < 0 {
		before = 0
	}
	if after < 0 {
		after = 0
	}
	lo = max(center-int64(before), 0)
	hi = min(center+int64(after), count-1)
	return lo, hi, true
}

// NewID returns a random unique identifier.
func NewID() string { return uuid.NewString() }
