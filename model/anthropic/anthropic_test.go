package anthropic

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

func TestModel_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-sonnet-20241022",
			"content": [{"type": "text", "text": "Italian food"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 4, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})
	resp, err := model.Collect(context.Background(), m, model.Request{
		Instructions: "Write a title",
		Messages: []core.Message{
			core.NewTextMessage(core.RoleSystem, "Be brief"),
			core.NewTextMessage(core.RoleUser, "I like pizza"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Italian food", resp.Text)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 6, resp.Usage.TotalTokens)

	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 1, "system messages move to the system prompt")
	system, ok := got["system"].([]any)
	require.True(t, ok)
	assert.Len(t, system, 2)
}

func TestRequiredNames(t *testing.T) {
	assert.Equal(t, []string{"memory"}, requiredNames([]string{"memory"}))
	assert.Equal(t, []string{"memory"}, requiredNames([]any{"memory", 3}))
	assert.Nil(t, requiredNames(nil))
}
