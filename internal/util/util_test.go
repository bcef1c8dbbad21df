package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listArgs struct {
	Path  string `json:"path" description:"Directory path"`
	Depth *int   `json:"depth,omitempty"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(listArgs{})
	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "path")
	assert.Equal(t, "Directory path", props["path"].(map[string]any)["description"])
	assert.Equal(t, []string{"path"}, RequiredFields(schema))
	assert.Equal(t, "integer", props["depth"].(map[string]any)["type"])

	empty := CreateSchema(42)
	assert.Equal(t, map[string]any{}, empty["properties"])
	assert.NotContains(t, empty, "required")
}

func TestValidateParametersNull(t *testing.T) {
	schema := CreateSchema(listArgs{})

	err := ValidateParameters(map[string]any{"path": nil}, schema)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "path", ve.Field)
	assert.Equal(t, "required field must not be null", ve.Message)

	assert.NoError(t, ValidateParameters(map[string]any{"path": "src", "depth": nil}, schema))
}

func TestDecodeArgs(t *testing.T) {
	var args listArgs
	require.NoError(t, DecodeArgs(map[string]any{"path": "src", "depth": float64(2)}, &args))
	assert.Equal(t, "src", args.Path)
	require.NotNil(t, args.Depth)
	assert.Equal(t, 2, *args.Depth)

	args = listArgs{}
	require.NoError(t, DecodeArgs(map[string]any{"path": "src", "depth": nil}, &args))
	assert.Nil(t, args.Depth)

	assert.Error(t, DecodeArgs(map[string]any{"path": "src", "depth": 1.5}, &args))
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":  map[string]any{"type": "string"},
			"limit": map[string]any{"type": "integer"},
		},
		"required": []any{"path"},
	}

	require.NoError(t, ValidateParameters(map[string]any{"path": "src", "limit": float64(3)}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "path", ve.Field)

	err = ValidateParameters(map[string]any{"path": 42.0}, schema)
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "expected type string")

	err = ValidateParameters(map[string]any{"path": "a", "limit": 1.5}, schema)
	assert.Error(t, err)
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Repo {{.owner}}/{{.repo}} on {{default \"main\" .branch}} & <b>", map[string]any{
		"owner": "paulthebutcher",
		"repo":  "ethos",
	})
	require.NoError(t, err)
	assert.Equal(t, "Repo paulthebutcher/ethos on main & <b>", out)

	out, err = RenderTemplate("no markers", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers", out)

	out, err = RenderTemplate(`{{join ", " .tools}}`, map[string]any{"tools": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "a, b", out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}
