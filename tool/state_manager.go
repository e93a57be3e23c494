package tool

import (
	"fmt"
	"math"
	"reflect"

	"github.com/hupe1980/threadmem/core"
)

// RunStateTool lets a model read and write the run's RuntimeContainer.
// Writes go through the container schema, so a model can never store a value
// of the wrong type or under an undeclared key of a strict schema.
type RunStateTool struct {
	name        string
	description string
}

var _ Tool = (*RunStateTool)(nil)

// NewRunStateTool creates the run_state tool.
func NewRunStateTool() *RunStateTool {
	return &RunStateTool{
		name: "run_state",
		description: "Reads and writes per-run configuration values. " +
			"Supports operations: get_state, set_state, list_keys.",
	}
}

// Name returns the tool identifier.
func (t *RunStateTool) Name() string { return t.name }

// Description returns the tool description.
func (t *RunStateTool) Description() string { return t.description }

// Parameters returns the JSON schema for tool parameters.
func (t *RunStateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"get_state", "set_state", "list_keys"},
				"description": "The operation to perform",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "Container key for get_state/set_state",
			},
			"value": map[string]any{
				"description": "Value for set_state (any type accepted by the schema)",
			},
		},
		"required": []string{"operation"},
	}
}

// Call implements the Tool interface.
func (t *RunStateTool) Call(run *core.RunContext, args map[string]any) (any, error) {
	operation, _ := args["operation"].(string)
	switch operation {
	case "get_state":
		key, err := t.key(args)
		if err != nil {
			return nil, err
		}
		value, exists := run.GetState(key)
		return map[string]any{"key": key, "value": value, "exists": exists}, nil
	case "set_state":
		key, err := t.key(args)
		if err != nil {
			return nil, err
		}
		value := coerceNumber(run.Container.Schema(), key, args["value"])
		if err := run.SetState(key, value); err != nil {
			return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeValidation, Details: err}
		}
		run.LogDebug("tool.run_state.set", "key", key, "run_id", run.RunID)
		return map[string]any{"key": key, "value": value}, nil
	case "list_keys":
		return map[string]any{"keys": run.Container.Keys()}, nil
	default:
		return nil, NewToolError(t.name, fmt.Sprintf("unknown operation %q", operation), CodeValidation)
	}
}

func (t *RunStateTool) key(args map[string]any) (string, error) {
	key, _ := args["key"].(string)
	if key == "" {
		return "", NewToolError(t.name, "key parameter is required", CodeValidation)
	}
	return key, nil
}

// coerceNumber converts a JSON number (always float64 after decoding) to the
// numeric kind the schema declares for key. Fractional values for integer
// fields and values out of range are returned unchanged and rejected by the
// schema check.
func coerceNumber(schema *core.Schema, key string, v any) any {
	f, ok := v.(float64)
	if !ok {
		return v
	}
	field, ok := schema.Field(key)
	if !ok || field.Type == nil {
		return v
	}
	target := reflect.New(field.Type).Elem()
	switch {
	case target.CanInt():
		if f != math.Trunc(f) || target.OverflowInt(int64(f)) || math.Abs(f) > 1<<53 {
			return v
		}
		target.SetInt(int64(f))
	case target.CanUint():
		if f < 0 || f != math.Trunc(f) || f > 1<<53 || target.OverflowUint(uint64(f)) {
			return v
		}
		target.SetUint(uint64(f))
	case target.CanFloat():
		if target.OverflowFloat(f) {
			return v
		}
		target.SetFloat(f)
	default:
		return v
	}
	return target.Interface()
}
