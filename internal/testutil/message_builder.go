package testutil

import (
	"time"

	"github.com/hupe1980/threadmem/core"
)

// MessageBuilder provides a fluent helper for constructing messages in tests.
// Example:
//
//	msg := NewMessageBuilder().User("I like pizza").Meta("lang", "en").Build()
type MessageBuilder struct {
	role      core.Role
	text      string
	data      map[string]any
	metadata  map[string]string
	createdAt time.Time
}

// NewMessageBuilder creates a builder defaulting to the user role.
func NewMessageBuilder() *MessageBuilder { return &MessageBuilder{role: core.RoleUser} }

// User sets user role text (chainable).
func (b *MessageBuilder) User(t string) *MessageBuilder { b.role, b.text = core.RoleUser, t; return b }

// Assistant sets assistant role text (chainable).
func (b *MessageBuilder) Assistant(t string) *MessageBuilder {
	b.role, b.text = core.RoleAssistant, t
	return b
}

// System sets system role text (chainable).
func (b *MessageBuilder) System(t string) *MessageBuilder { b.role, b.text = core.RoleSystem, t; return b }

// ToolResult sets the tool role with a structured payload (chainable).
func (b *MessageBuilder) ToolResult(data map[string]any) *MessageBuilder {
	b.role, b.data = core.RoleTool, data
	return b
}

// Meta adds a metadata pair (chainable).
func (b *MessageBuilder) Meta(k, v string) *MessageBuilder {
	if b.metadata == nil {
		b.metadata = map[string]string{}
	}
	b.metadata[k] = v
	return b
}

// At pins the creation timestamp (chainable).
func (b *MessageBuilder) At(ts time.Time) *MessageBuilder { b.createdAt = ts; return b }

// Build constructs the core.Message value.
func (b *MessageBuilder) Build() core.Message {
	return core.Message{
		Role:      b.role,
		Content:   core.Content{Text: b.text, Data: b.data},
		Metadata:  b.metadata,
		CreatedAt: b.createdAt,
	}
}

// UserTexts builds one user message per text.
func UserTexts(texts ...string) []core.Message {
	out := make([]core.Message, len(texts))
	for i, t := range texts {
		out[i] = NewMessageBuilder().User(t).Build()
	}
	return out
}

// Texts extracts the text content of msgs in order.
func Texts(msgs []core.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content.Text
	}
	return out
}

// Seqs extracts the sequence positions of msgs in order.
func Seqs(msgs []core.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Seq
	}
	return out
}
