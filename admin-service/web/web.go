// Package web содержит HTML шаблоны админки.
package web

import (
	"embed"
	"fmt"
	"html/template"

	"chunked-loader/shared/models"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Templates разбирает все шаблоны. Имя шаблона — имя файла.
func Templates() (*template.Template, error) {
	tmpl, err := template.New("").Funcs(FuncMap()).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse admin templates: %w", err)
	}
	return tmpl, nil
}

// FuncMap — функции, доступные в шаблонах.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"isBoolean": func(p models.SettingProperty) bool { return p.Type == models.SettingTypeBoolean },
		"isInteger": func(p models.SettingProperty) bool { return p.Type == models.SettingTypeInteger },
	}
}
