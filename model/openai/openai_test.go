package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/model"
)

func TestModel_GenerateNonStreaming(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "Dinner plans",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "update_working_memory", "arguments": "{\"memory\":\"likes pizza\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
		}`))
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})
	resp, err := model.Collect(context.Background(), m, model.Request{
		Instructions: "Summarize",
		Messages: []core.Message{
			core.NewTextMessage(core.RoleUser, "I like pizza"),
			core.NewTextMessage(core.RoleAssistant, "Noted"),
		},
		Tools: []model.ToolDefinition{{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:       "update_working_memory",
				Parameters: map[string]any{"type": "object"},
			},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Dinner plans", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "update_working_memory", resp.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"memory":"likes pizza"}`, string(resp.ToolCalls[0].Function.Arguments))
	assert.Equal(t, 7, resp.Usage.TotalTokens)

	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 3, "instructions become a leading system message")
	assert.Len(t, got["tools"], 1)
}

func TestModel_Info(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "test" })
	assert.Equal(t, "openai", m.Info().Provider)
	assert.Equal(t, "gpt-4o-mini", m.Info().Name)
}
