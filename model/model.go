package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/threadmem/core"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction describes the concrete function target of a tool call.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []core.Message   `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string      `json:"id"`
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains a generation and returns the final (non partial) response.
func Collect(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)
	var final *Response
	for respCh != nil || errCh != nil {
		select {
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !r.Partial {
				final = &r
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	if final == nil {
		return Response{}, fmt.Errorf("model %s returned no final response", m.Info().Name)
	}
	return *final, nil
}

// RenderToolResult flattens a tool message into text for providers that
// cannot pair it with the originating call.
func RenderToolResult(msg core.Message) string {
	if msg.Content.Text != "" {
		return "[tool result] " + msg.Content.Text
	}
	b, err := json.Marshal(msg.Content.Data)
	if err != nil {
		return "[tool result]"
	}
	return "[tool result] " + string(b)
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
type MockModel struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	toolCalls map[string][]ToolCall
	err       error
	requests  []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
		toolCalls: make(map[string][]ToolCall),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// AddToolCall registers a tool call emitted when prompt is the last message.
func (m *MockModel) AddToolCall(prompt, name string, args map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, _ := json.Marshal(args)
	m.toolCalls[prompt] = append(m.toolCalls[prompt], ToolCall{
		ID:       fmt.Sprintf("call_%d", len(m.toolCalls[prompt])),
		Type:     "function",
		Function: ToolCallFunction{Name: name, Arguments: raw},
	})
}

// FailWith makes every subsequent Generate call fail with err.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	failure := m.err
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if failure != nil {
			errCh <- failure
			return
		}
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		input := strings.TrimSpace(req.Messages[len(req.Messages)-1].Content.Text)

		m.mu.Lock()
		full := m.responses[input]
		calls := append([]ToolCall(nil), m.toolCalls[input]...)
		m.mu.Unlock()
		if full == "" && len(calls) == 0 {
			full = fmt.Sprintf("Mock response to: %s", input)
		}

		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		finish := "stop"
		if len(calls) > 0 {
			finish = "tool_calls"
		}
		respCh <- Response{Text: full, ToolCalls: calls, FinishReason: finish}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
