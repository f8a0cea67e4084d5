package pages

import (
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"time"
)

const (
	TemplateSuffix = ".tmpl"

	shortTS     = "Jan 02 15:04"
	shortTSYear = "2006 Jan 02 15:04"
	longTS      = "2006-01-02 15:04:05 MST"
)

// Funcs returns the template helpers. Timestamps are unix seconds shown in
// loc.
func Funcs(loc *time.Location) template.FuncMap {
	format := func(layout string) func(int64) string {
		return func(ts int64) string {
			return time.Unix(ts, 0).In(loc).Format(layout)
		}
	}

	return template.FuncMap{
		"tsShort":  format(shortTS),
		"tsShortY": format(shortTSYear),
		"tsLong":   format(longTS),
		"br":       joinBR,
		"join": func(sep string, items []string) string {
			return strings.Join(items, sep)
		},
	}
}

// joinBR escapes each item and joins them with <br> line breaks.
func joinBR(items []string) template.HTML {
	escaped := make([]string, len(items))
	for i, item := range items {
		escaped[i] = template.HTMLEscapeString(item)
	}
	return template.HTML(strings.Join(escaped, "<br>"))
}

// LoadTemplate parses dir/name with the helpers for loc. The template is
// named after the file.
func LoadTemplate(dir, name string, loc *time.Location) (*template.Template, error) {
	path := filepath.Join(dir, name)
	tpl, err := template.New(filepath.Base(path)).Funcs(Funcs(loc)).ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
	}
	return tpl, nil
}

// OutputName maps a template file name to the page it renders.
func OutputName(templateName string) string {
	return strings.TrimSuffix(templateName, TemplateSuffix)
}
