package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query string `json:"query" description:"search terms"`
	Limit int    `json:"limit,omitempty"`
}

func TestCreateSchemaAndValidate(t *testing.T) {
	schema := CreateSchema(searchArgs{})
	assert.Equal(t, []string{"query"}, schema["required"])

	require.NoError(t, ValidateParameters(map[string]any{"query": "go", "limit": float64(3)}, schema))

	err := ValidateParameters(map[string]any{"limit": float64(3)}, schema)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Details)

	err = ValidateParameters(map[string]any{"query": 7}, schema)
	assert.Error(t, err)
}

func TestValidateDocument(t *testing.T) {
	schema := []byte(`{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`)
	assert.NoError(t, ValidateDocument(schema, []byte(`{"name":"x"}`)))
	assert.Error(t, ValidateDocument(schema, []byte(`{"name":1}`)))
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	out, err = RenderTemplate("Task: {{.Task}}\n{{bullets .Names}}", map[string]any{
		"Task":  "a < b",
		"Names": []string{"x", "y"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Task: a < b\n- x\n- y", out)

	_, err = RenderTemplate("{{.Missing}}", map[string]any{})
	assert.Error(t, err)
}

func TestRenderTemplate_ReusesParsedTemplate(t *testing.T) {
	const text = "{{upper .Name}} / {{default \"none\" .Role}}"
	for _, name := range []string{"coder", "critic"} {
		out, err := RenderTemplate(text, map[string]any{"Name": name, "Role": ""})
		require.NoError(t, err)
		assert.Equal(t, strings.ToUpper(name)+" / none", out)
	}

	_, err := RenderTemplate("{{.Broken", nil)
	assert.ErrorContains(t, err, "parse template")
}

func TestCreateSchema_NonStruct(t *testing.T) {
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, CreateSchema(42))
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, CreateSchema(nil))

	schema := CreateSchema(&searchArgs{})
	props := schema["properties"].(map[string]any)
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])
}
