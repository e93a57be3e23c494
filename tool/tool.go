// Package tool implements the function calling surface threadmem hands to a
// caller's generation loop: tools with schema validated arguments, uniform
// error handling and the glue that turns a model.ToolCall into an execution.
package tool

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/util"
	"github.com/hupe1980/threadmem/model"
)

// Tool is a capability the model can invoke during a run.
//
// Tools receive the run's RunContext, giving them the cancellation context,
// the thread and resource identifiers and the run's RuntimeContainer.
// Implementations must be safe for concurrent use across runs.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description is shown to the model to explain when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with already decoded arguments.
	Call(run *core.RunContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "TOOL_NOT_FOUND"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the underlying cause when Details holds an error.
func (e *ToolError) Unwrap() error {
	err, _ := e.Details.(error)
	return err
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Definition describes t for a model request.
func Definition(t Tool) model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// Definitions describes every tool for a model request.
func Definitions(tools []Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = Definition(t)
	}
	return defs
}

// Execute routes a model tool call to the matching tool. Unknown tools and
// undecodable arguments are reported as *ToolError.
func Execute(run *core.RunContext, tools []Tool, call model.ToolCall) (any, error) {
	name := call.Function.Name
	var target Tool
	for _, t := range tools {
		if t.Name() == name {
			target = t
			break
		}
	}
	if target == nil {
		return nil, NewToolError(name, "no such tool", CodeNotFound)
	}

	args := map[string]any{}
	if len(call.Function.Arguments) > 0 {
		if err := json.Unmarshal(call.Function.Arguments, &args); err != nil {
			return nil, &ToolError{
				Tool:    name,
				Message: fmt.Sprintf("arguments are not a JSON object: %v", err),
				Code:    CodeValidation,
			}
		}
	}
	run.LogDebug("tool.execute", "tool", name, "call_id", call.ID, "run_id", run.RunID)
	return target.Call(run, args)
}
