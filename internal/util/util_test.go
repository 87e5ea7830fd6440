package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type address struct {
	Street  string    `json:"street" description:"Street and number"`
	Country string    `json:"country" enum:"DE, AT"`
	Note    *string   `json:"note"`
	Lines   []string  `json:"lines,omitempty"`
	Since   time.Time `json:"since,omitempty"`
	secret  string
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(&address{})

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"street", "country"}, schema["required"])

	props := schema["properties"].(map[string]any)
	assert.Len(t, props, 5)
	assert.Equal(t, "Street and number", props["street"].(map[string]any)["description"])
	assert.Equal(t, []any{"DE", "AT"}, props["country"].(map[string]any)["enum"])
	assert.Equal(t, map[string]any{"type": "array", "items": map[string]any{"type": "string"}}, props["lines"])
	assert.Equal(t, "date-time", props["since"].(map[string]any)["format"])
}

func TestCreateSchema_NonStruct(t *testing.T) {
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, CreateSchema(42))
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, CreateSchema(nil))
}

func render(t *testing.T, tmpl Template, data map[string]any) string {
	t.Helper()

	out, err := ExecuteTemplate(tmpl, data)
	require.NoError(t, err)

	return out
}

func TestParseTemplate(t *testing.T) {
	tmpl, err := ParseTemplate("display", `Hello {{ .name | title }}, total {{ money .total }}`)
	require.NoError(t, err)

	assert.Equal(t, "Hello Ada, total 12.50", render(t, tmpl, map[string]any{"name": "ada", "total": 12.5}))
}

func TestParseTemplate_EscapesHTML(t *testing.T) {
	tmpl, err := ParseTemplate("display", `{{ .name }}`)
	require.NoError(t, err)

	assert.Equal(t, "&lt;b&gt;x&lt;/b&gt;", render(t, tmpl, map[string]any{"name": "<b>x</b>"}))
}

func TestParsePromptTemplate_RendersVerbatim(t *testing.T) {
	tmpl, err := ParsePromptTemplate("prompt", `Customer: {{ .name }}, total {{ money .total }}`)
	require.NoError(t, err)

	out := render(t, tmpl, map[string]any{"name": "O'Brien & Sons <b>", "total": 3})
	assert.Equal(t, "Customer: O'Brien & Sons <b>, total 3.00", out)
}

func TestParseTemplate_Errors(t *testing.T) {
	_, err := ParseTemplate("display", "{{ .broken")
	assert.Error(t, err)

	_, err = ParsePromptTemplate("prompt", "{{ .broken")
	assert.Error(t, err)
}
