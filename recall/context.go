package recall

import (
	"strings"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/workingmemory"
)

// ThreadWindow holds recalled messages of another thread.
type ThreadWindow struct {
	ThreadID string         `json:"thread_id"`
	Messages []core.Message `json:"messages"`
}

// Context is the assembled context window for one turn.
type Context struct {
	ThreadID   string `json:"thread_id"`
	ResourceID string `json:"resource_id,omitempty"`

	// Messages are the thread's recent and recalled messages, deduplicated
	// and ordered by sequence position.
	Messages []core.Message `json:"messages"`
	// CrossThread holds hits from other threads of the resource.
	CrossThread []ThreadWindow `json:"cross_thread,omitempty"`
	// WorkingMemory is nil when working memory is disabled.
	WorkingMemory *workingmemory.Block `json:"working_memory,omitempty"`
	// Hits are the raw similarity results in rank order.
	Hits []core.Hit `json:"hits,omitempty"`
	// Degraded reports that semantic recall was skipped after an embedder
	// failure.
	Degraded bool `json:"degraded"`
}

// Format renders the context as plain text for a prompt: the working memory
// block first, then other threads, then the conversation.
func (c *Context) Format() string {
	var b strings.Builder
	if c.WorkingMemory != nil {
		b.WriteString("## Working memory\n")
		b.WriteString(c.WorkingMemory.Content)
		b.WriteString("\n\n")
	}
	if len(c.CrossThread) > 0 {
		b.WriteString("## From earlier conversations\n")
		for _, w := range c.CrossThread {
			b.WriteString("### Thread ")
			b.WriteString(w.ThreadID)
			b.WriteString("\n")
			writeMessages(&b, w.Messages)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Conversation\n")
	writeMessages(&b, c.Messages)
	return strings.TrimRight(b.String(), "\n")
}

func writeMessages(b *strings.Builder, msgs []core.Message) {
	for _, m := range msgs {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content.Text)
		b.WriteString("\n")
	}
}
