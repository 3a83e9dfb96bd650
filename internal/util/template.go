package util

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

var promptFuncs = template.FuncMap{
	"default": func(fallback, v any) any {
		if v == nil || v == "" {
			return fallback
		}
		return v
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
	"bullets": func(items []string) string {
		lines := make([]string, len(items))
		for i, it := range items {
			lines[i] = "- " + it
		}
		return strings.Join(lines, "\n")
	},
}

// Prompts are rendered once per turn, so parsed templates are kept by text.
var parsed sync.Map // string -> *template.Template

// RenderTemplate renders a prompt template against data. Text without
// template markers is returned unchanged. A key missing from data is an
// error.
func RenderTemplate(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := lookupTemplate(text)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return b.String(), nil
}

func lookupTemplate(text string) (*template.Template, error) {
	if t, ok := parsed.Load(text); ok {
		return t.(*template.Template), nil
	}
	t, err := template.New("prompt").Option("missingkey=error").Funcs(promptFuncs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	actual, _ := parsed.LoadOrStore(text, t)
	return actual.(*template.Template), nil
}
