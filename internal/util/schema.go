package util

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ValidationError reports a tool argument that does not match its schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema derives a JSON object schema from the exported fields of a
// struct value. Field names follow the json tag; a description tag becomes
// the property description. Fields that are neither pointers nor omitempty
// are required. Non-struct values yield an empty object schema.
func CreateSchema(v any) map[string]any {
	properties := map[string]any{}
	schema := map[string]any{"type": "object", "properties": properties}

	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return schema
	}

	var required []string
	for _, f := range reflect.VisibleFields(t) {
		name, optional, ok := jsonField(f)
		if !ok {
			continue
		}
		prop := map[string]any{"type": jsonType(f.Type)}
		if d := f.Tag.Get("description"); d != "" {
			prop["description"] = d
		}
		properties[name] = prop
		if !optional && f.Type.Kind() != reflect.Pointer {
			required = append(required, name)
		}
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// jsonField resolves the encoded name of f and whether it is omitempty.
func jsonField(f reflect.StructField) (name string, omitEmpty, ok bool) {
	if !f.IsExported() || f.Anonymous {
		return "", false, false
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, false
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	return name, slices.Contains(strings.Split(opts, ","), "omitempty"), true
}

func jsonType(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return "string"
	}
}

// ValidateParameters checks decoded tool arguments against an object schema:
// required fields, property types and string enums. Unknown properties are
// allowed. Required and enum lists may be []string or decoded []any.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, name := range stringList(schema["required"]) {
		if _, ok := params[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for name, value := range params {
		prop, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}
		want, _ := prop["type"].(string)
		if !matchesType(value, want) {
			return &ValidationError{
				Field:   name,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", want, value),
			}
		}
		enum := stringList(prop["enum"])
		if s, isString := value.(string); isString && len(enum) > 0 && !slices.Contains(enum, s) {
			return &ValidationError{
				Field:   name,
				Value:   value,
				Message: "must be one of " + strings.Join(enum, ", "),
			}
		}
	}
	return nil
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// matchesType reports whether value fits the JSON schema type. nil fits any
// type and unknown types accept everything.
func matchesType(value any, want string) bool {
	if value == nil {
		return true
	}
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "number", "integer":
		rv := reflect.ValueOf(value)
		switch {
		case rv.CanInt(), rv.CanUint():
			return true
		case rv.CanFloat():
			// decoded JSON numbers are float64
			return want == "number" || rv.Float() == float64(int64(rv.Float()))
		default:
			return false
		}
	default:
		return true
	}
}
