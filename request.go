package threadmem

import (
	"fmt"
	"strings"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/util"
	"github.com/hupe1980/threadmem/model"
	"github.com/hupe1980/threadmem/recall"
	"github.com/hupe1980/threadmem/tool"
)

// PrepareRequest builds the model request for the next turn of run's thread.
//
// instructions is rendered as a text/template against the run's container,
// so "{{.region}}" reads the run value stored under "region". The working
// memory section and messages recalled from other threads are appended to
// the instructions; the thread's recalled messages become the request
// messages. The run's container must satisfy its schema.
func (m *Memory) PrepareRequest(run *core.RunContext, instructions, query string) (model.Request, *recall.Context, error) {
	if err := run.Container.Validate(); err != nil {
		return model.Request{}, nil, err
	}
	system, err := util.RenderTemplate(instructions, run.Container.Snapshot())
	if err != nil {
		return model.Request{}, nil, fmt.Errorf("%w: render instructions: %v", core.ErrInvalidArgument, err)
	}

	recalled, err := m.Recall(run.Context, run.ThreadID, query)
	if err != nil {
		return model.Request{}, nil, err
	}
	wm, err := m.Instructions(run.Context, run.ThreadID)
	if err != nil {
		return model.Request{}, nil, err
	}

	sections := []string{}
	if s := strings.TrimSpace(system); s != "" {
		sections = append(sections, s)
	}
	if wm != "" {
		sections = append(sections, wm)
	}
	if len(recalled.CrossThread) > 0 {
		sections = append(sections, formatCrossThread(recalled.CrossThread))
	}

	req := model.Request{
		Instructions: strings.Join(sections, "\n\n"),
		Messages:     recalled.Messages,
		Tools:        tool.Definitions(m.Tools()),
	}
	run.LogDebug("memory.request.prepared",
		"thread_id", run.ThreadID,
		"run_id", run.RunID,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)
	return req, recalled, nil
}

func formatCrossThread(windows []recall.ThreadWindow) string {
	var b strings.Builder
	b.WriteString("Relevant messages from earlier conversations with this user:")
	for _, w := range windows {
		for _, msg := range w.Messages {
			b.WriteString("\n- ")
			b.WriteString(string(msg.Role))
			b.WriteString(": ")
			b.WriteString(msg.Content.Text)
		}
	}
	return b.String()
}
