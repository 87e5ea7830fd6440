package util

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strings"
	"text/template"
)

var templateFuncs = map[string]any{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	},
	"join": func(sep string, items []any) string {
		strItems := make([]string, len(items))
		for i, item := range items {
			strItems[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(strItems, sep)
	},
	"money": func(v any) string {
		switch n := v.(type) {
		case float64:
			return fmt.Sprintf("%.2f", n)
		case int:
			return fmt.Sprintf("%d.00", n)
		default:
			return fmt.Sprintf("%v", v)
		}
	},
}

// Template is implemented by both text and html templates.
type Template interface {
	Execute(w io.Writer, data any) error
}

// ParseTemplate compiles text as an html/template with the helper funcs.
// Output is HTML-escaped since rendered values are shown to end users.
// Missing keys render as empty values.
func ParseTemplate(name, text string) (*htmltemplate.Template, error) {
	return htmltemplate.New(name).Funcs(htmltemplate.FuncMap(templateFuncs)).Option("missingkey=zero").Parse(text)
}

// ParsePromptTemplate compiles text as a text/template with the helper
// funcs. Values are rendered verbatim, as a model expects them.
func ParsePromptTemplate(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(template.FuncMap(templateFuncs)).Option("missingkey=zero").Parse(text)
}

// ExecuteTemplate runs a compiled template against data.
func ExecuteTemplate(tmpl Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
