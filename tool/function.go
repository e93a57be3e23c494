package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Arguments are validated against the declared schema before the function
// runs, and failures are normalized to *ToolError:
//
//	VALIDATION_ERROR -> schema / argument mismatch
//	EXECUTION_ERROR  -> the function returned a plain error
//	(custom codes are preserved when the function returns *ToolError itself)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(run *core.RunContext, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(run *core.RunContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(run *core.RunContext, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (json tags name the fields, description tags document them).
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(run *core.RunContext, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args against the declared schema then invokes the function.
func (t *FunctionTool) Call(run *core.RunContext, args map[string]any) (any, error) {
	logger := run.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "run_id", run.RunID, "thread_id", run.ThreadID)

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(run, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
			Details: err,
		}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
