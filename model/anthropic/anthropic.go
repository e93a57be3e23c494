// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/upstream"
	"github.com/hupe1980/threadmem/model"
)

// Options configures the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

var _ model.Model = (*Model)(nil)

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// NewModel creates a new Anthropic model using the official client.
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
	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements model.Model. Streaming requests are served with a
// single final response.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			Messages:    buildMessages(req.Messages),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}
		if system := systemBlocks(req); len(system) > 0 {
			params.System = system
		}
		if len(req.Tools) > 0 {
			params.Tools = buildTools(req.Tools)
		}

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- upstream.Classify("anthropic messages", err)
			return
		}

		var (
			text  string
			calls []model.ToolCall
		)
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text += block.AsText().Text
			case "tool_use":
				toolBlock := block.AsToolUse()
				args := json.RawMessage("{}")
				if toolBlock.Input != nil {
					if raw, err := json.Marshal(toolBlock.Input); err == nil {
						args = raw
					}
				}
				calls = append(calls, model.ToolCall{
					ID:       toolBlock.ID,
					Type:     "function",
					Function: model.ToolCallFunction{Name: toolBlock.Name, Arguments: args},
				})
			}
		}

		finishReason := "stop"
		if resp.StopReason != "" {
			finishReason = string(resp.StopReason)
		}
		out <- model.Response{
			ID:           resp.ID,
			Text:         text,
			ToolCalls:    calls,
			FinishReason: finishReason,
			Usage: &model.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
		}
	}()

	return out, errCh
}

// buildMessages converts thread messages to Anthropic message params.
// System messages are lifted into the system prompt by systemBlocks.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleSystem:
			continue
		case core.RoleAssistant:
			if msg.Content.Text != "" {
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content.Text)))
			}
		case core.RoleTool:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(model.RenderToolResult(msg))))
		default:
			if msg.Content.Text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content.Text)))
			}
		}
	}
	return messages
}

func systemBlocks(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, msg := range req.Messages {
		if msg.Role == core.RoleSystem && msg.Content.Text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Content.Text})
		}
	}
	return blocks
}

// buildTools converts tool definitions to the Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if params := tool.Function.Parameters; params != nil {
			if properties, ok := params["properties"]; ok {
				inputSchema.Properties = properties
			}
			inputSchema.Required = requiredNames(params["required"])
		}
		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Function.Name)
		if out[i].OfTool != nil && tool.Function.Description != "" {
			out[i].OfTool.Description = anthropic.String(tool.Function.Description)
		}
	}
	return out
}

func requiredNames(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		names := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
