package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/threadmem/core"
)

func TestMockModel_Collect(t *testing.T) {
	ctx := context.Background()
	m := NewMockModel("mock", "test")
	m.AddResponse("hello", "hi there")

	resp, err := Collect(ctx, m, Request{
		Messages: []core.Message{core.NewTextMessage(core.RoleUser, "hello")},
		Stream:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Len(t, m.Requests(), 1)

	resp, err = Collect(ctx, m, Request{Messages: []core.Message{core.NewTextMessage(core.RoleUser, "other")}})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: other", resp.Text)
}

func TestMockModel_ToolCalls(t *testing.T) {
	m := NewMockModel("mock", "test")
	m.AddToolCall("remember", "update_working_memory", map[string]any{"memory": "# User\n- likes pizza"})

	resp, err := Collect(context.Background(), m, Request{
		Messages: []core.Message{core.NewTextMessage(core.RoleUser, "remember")},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, "update_working_memory", resp.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"memory":"# User\n- likes pizza"}`, string(resp.ToolCalls[0].Function.Arguments))
}

func TestCollect_Errors(t *testing.T) {
	m := NewMockModel("mock", "test")
	_, err := Collect(context.Background(), m, Request{})
	assert.Error(t, err)

	boom := errors.New("boom")
	m.FailWith(boom)
	_, err = Collect(context.Background(), m, Request{
		Messages: []core.Message{core.NewTextMessage(core.RoleUser, "x")},
	})
	assert.ErrorIs(t, err, boom)
}

func TestRenderToolResult(t *testing.T) {
	msg := core.Message{Role: core.RoleTool, Content: core.Content{Data: map[string]any{"temp": "21C"}}}
	assert.Equal(t, `[tool result] {"temp":"21C"}`, RenderToolResult(msg))

	msg.Content.Text = "sunny"
	assert.Equal(t, "[tool result] sunny", RenderToolResult(msg))
}
