package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/logging"
	"github.com/hupe1980/threadmem/model"
)

func newRun(schema *core.Schema) *core.RunContext {
	return core.NewRunContext(context.Background(), "t1", "user-1", schema, logging.NoOpLogger{})
}

func sumTool() *FunctionTool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}
	return NewFunctionTool("sum", "Add numbers", params, func(_ *core.RunContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

func TestFunctionTool_Success(t *testing.T) {
	result, err := sumTool().Call(newRun(nil), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	_, err := sumTool().Call(newRun(nil), map[string]any{"a": 1.0})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.RunContext, _ map[string]any) (any, error) {
		return nil, core.ErrNotFound
	})
	_, err := execTool.Call(newRun(nil), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	custom := NewToolError("custom", "nope", "CUSTOM")
	params := map[string]any{"type": "object"}
	ft := NewFunctionTool("custom", "Custom", params, func(_ *core.RunContext, _ map[string]any) (any, error) {
		return nil, custom
	})
	_, err := ft.Call(newRun(nil), map[string]any{})
	assert.Same(t, custom, err)
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	type args struct {
		Memory string `json:"memory" description:"Full document"`
	}
	ft := NewFunctionToolFromStruct("remember", "Remember", args{}, func(_ *core.RunContext, a map[string]any) (any, error) {
		return a["memory"], nil
	})
	_, err := ft.Call(newRun(nil), map[string]any{})
	assert.Error(t, err, "required list derived from the struct is enforced")

	out, err := ft.Call(newRun(nil), map[string]any{"memory": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestExecute(t *testing.T) {
	tools := []Tool{sumTool(), NewRunStateTool()}

	defs := Definitions(tools)
	require.Len(t, defs, 2)
	assert.Equal(t, "sum", defs[0].Function.Name)
	assert.Equal(t, "function", defs[1].Type)

	out, err := Execute(newRun(nil), tools, model.ToolCall{
		ID:       "call_1",
		Function: model.ToolCallFunction{Name: "sum", Arguments: json.RawMessage(`{"a":1,"b":2}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out)

	_, err = Execute(newRun(nil), tools, model.ToolCall{Function: model.ToolCallFunction{Name: "missing"}})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)

	_, err = Execute(newRun(nil), tools, model.ToolCall{
		Function: model.ToolCallFunction{Name: "sum", Arguments: json.RawMessage(`[1]`)},
	})
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestRunStateTool(t *testing.T) {
	tenant := core.NewKey[string]("tenant")
	run := newRun(core.NewSchema(tenant.Field()))
	st := NewRunStateTool()

	res, err := st.Call(run, map[string]any{"operation": "set_state", "key": "tenant", "value": "acme"})
	require.NoError(t, err)
	assert.Equal(t, "acme", res.(map[string]any)["value"])

	got, err := tenant.Get(run.Container)
	require.NoError(t, err)
	assert.Equal(t, "acme", got)

	res, err = st.Call(run, map[string]any{"operation": "get_state", "key": "tenant"})
	require.NoError(t, err)
	assert.Equal(t, true, res.(map[string]any)["exists"])

	res, err = st.Call(run, map[string]any{"operation": "list_keys"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant"}, res.(map[string]any)["keys"])

	_, err = st.Call(run, map[string]any{"operation": "set_state", "key": "tenant", "value": 42.0})
	assert.ErrorIs(t, err, core.ErrInvalidArgument, "schema type mismatch surfaces through the tool")

	_, err = st.Call(run, map[string]any{"operation": "set_state", "key": "undeclared", "value": "x"})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = st.Call(run, map[string]any{"operation": "get_state"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestRunStateTool_CoercesJSONNumbers(t *testing.T) {
	budget := core.NewKey[int]("token_budget")
	ratio := core.NewKey[float32]("ratio")
	retries := core.NewKey[uint8]("retries")
	run := newRun(core.NewSchema(budget.Field(), ratio.Field(), retries.Field()))
	tools := []Tool{NewRunStateTool()}

	set := func(args string) error {
		_, err := Execute(run, tools, model.ToolCall{
			Function: model.ToolCallFunction{Name: "run_state", Arguments: json.RawMessage(args)},
		})
		return err
	}

	require.NoError(t, set(`{"operation":"set_state","key":"token_budget","value":2048}`))
	got, err := budget.Get(run.Container)
	require.NoError(t, err)
	assert.Equal(t, 2048, got)

	require.NoError(t, set(`{"operation":"set_state","key":"ratio","value":0.5}`))
	r, err := ratio.Get(run.Container)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), r)

	require.NoError(t, set(`{"operation":"set_state","key":"retries","value":3}`))
	n, err := retries.Get(run.Container)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), n)

	assert.ErrorIs(t, set(`{"operation":"set_state","key":"token_budget","value":1.5}`), core.ErrInvalidArgument)
	assert.ErrorIs(t, set(`{"operation":"set_state","key":"retries","value":-1}`), core.ErrInvalidArgument)
	assert.ErrorIs(t, set(`{"operation":"set_state","key":"retries","value":300}`), core.ErrInvalidArgument)

	got, err = budget.Get(run.Container)
	require.NoError(t, err)
	assert.Equal(t, 2048, got, "rejected writes leave the value untouched")
}

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
	assert.Nil(t, errors.Unwrap(err))
}
