package util

import (
	"bytes"
	"strings"
	"text/template"
)

var templateFuncs = template.FuncMap{
	"join": func(sep string, items []string) string { return strings.Join(items, sep) },
	"trim": strings.TrimSpace,
	"default": func(fallback string, val any) any {
		if s, ok := val.(string); val == nil || ok && strings.TrimSpace(s) == "" {
			return fallback
		}
		return val
	},
}

// RenderTemplate renders prompt text with text/template. Output is not HTML
// escaped since it is sent to models verbatim, and missing keys render as
// empty strings.
func RenderTemplate(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Funcs(templateFuncs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
