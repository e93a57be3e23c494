// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API, including streaming and function calling.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/upstream"
	"github.com/hupe1980/threadmem/model"
)

// aggCall aggregates streamed tool call deltas until the finish reason.
type aggCall struct{ id, name, args string }

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

var _ model.Model = (*Model)(nil)

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
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
	client := openai.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req, buildMessages(req))
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildMessages converts thread messages into OpenAI chat messages. Tool
// results are flattened to user text because the originating call ids are
// not part of the stored history.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content.Text))
		case core.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content.Text))
		case core.RoleTool:
			messages = append(messages, openai.UserMessage(model.RenderToolResult(msg)))
		default:
			if msg.Content.Text != "" {
				messages = append(messages, openai.UserMessage(msg.Content.Text))
			}
		}
	}
	return messages
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var text strings.Builder
	toolAgg := map[int64]*aggCall{}
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				text.WriteString(ch.Delta.Content)
				out <- model.Response{ID: ck.ID, Partial: true, Text: ch.Delta.Content}
			}
			for _, tc := range ch.Delta.ToolCalls {
				ac, ok := toolAgg[tc.Index]
				if !ok {
					ac = &aggCall{}
					toolAgg[tc.Index] = ac
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				ac.args += tc.Function.Arguments
			}
			if ch.FinishReason != "" {
				out <- model.Response{
					ID:           ck.ID,
					Text:         text.String(),
					ToolCalls:    flushCalls(toolAgg),
					FinishReason: ch.FinishReason,
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- upstream.Classify("openai chat", err)
	}
}

// flushCalls returns the aggregated calls in stream index order.
func flushCalls(agg map[int64]*aggCall) []model.ToolCall {
	if len(agg) == 0 {
		return nil
	}
	idx := make([]int64, 0, len(agg))
	for i := range agg {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })
	calls := make([]model.ToolCall, 0, len(idx))
	for _, i := range idx {
		ac := agg[i]
		calls = append(calls, toolCall(ac.id, ac.name, ac.args))
	}
	return calls
}

func toolCall(id, name, args string) model.ToolCall {
	if args == "" {
		args = "{}"
	}
	return model.ToolCall{
		ID:       id,
		Type:     "function",
		Function: model.ToolCallFunction{Name: name, Arguments: json.RawMessage(args)},
	}
}

func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- upstream.Classify("openai chat", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("openai chat: no choices returned")
		return
	}
	ch0 := resp.Choices[0]
	calls := make([]model.ToolCall, 0, len(ch0.Message.ToolCalls))
	for _, tc := range ch0.Message.ToolCalls {
		calls = append(calls, toolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	out <- model.Response{
		ID:           resp.ID,
		Text:         ch0.Message.Content,
		ToolCalls:    calls,
		FinishReason: ch0.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
