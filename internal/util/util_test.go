package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateParameters_RequiredShapes(t *testing.T) {
	for name, required := range map[string]any{
		"go literal":   []string{"memory"},
		"decoded json": []any{"memory"},
	} {
		t.Run(name, func(t *testing.T) {
			schema := map[string]any{
				"type":       "object",
				"properties": map[string]any{"memory": map[string]any{"type": "string"}},
				"required":   required,
			}
			err := ValidateParameters(map[string]any{}, schema)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, "memory", vErr.Field)

			assert.NoError(t, ValidateParameters(map[string]any{"memory": "x"}, schema))
		})
	}
}

func TestValidateParameters_TypesAndEnum(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"n":  map[string]any{"type": "integer"},
			"op": map[string]any{"type": "string", "enum": []string{"get", "set"}},
		},
	}
	assert.NoError(t, ValidateParameters(map[string]any{"n": 3.0, "op": "get"}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"n": 3.5}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"op": "drop"}, schema))
}

func TestCreateSchema(t *testing.T) {
	type args struct {
		Memory string  `json:"memory" description:"Full document"`
		Note   *string `json:"note"`
	}
	schema := CreateSchema(args{})
	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "memory")
	assert.Contains(t, props, "note")
	assert.Equal(t, []string{"memory"}, schema["required"])
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("# User {{.ResourceID}}\n- Thread: {{.ThreadID | upper}}", map[string]any{
		"ResourceID": "alice",
		"ThreadID":   "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, "# User alice\n- Thread: T1", out)

	out, err = RenderTemplate("no markers <b>", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers <b>", out)

	out, err = RenderTemplate("{{.X}} & <tag>", map[string]any{"X": "a<b"})
	require.NoError(t, err)
	assert.Equal(t, "a<b & <tag>", out, "text is not HTML escaped")

	_, err = RenderTemplate("{{.Broken", nil)
	assert.Error(t, err)
}
