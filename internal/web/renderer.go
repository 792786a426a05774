// Package web renders the site's HTML pages. It is deliberately thin glue:
// the handlers pass a page name, a title and an optional user snapshot, and
// everything else lives in the templates.
package web

import (
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"

	"bfitweb/bfit-server/internal/auth"
)

type PageData struct {
	Title string
	User  *auth.SessionUser
}

type TemplateRenderer struct {
	templates *template.Template
}

// NewTemplateRenderer parses every *.html file in dir. Each file's base name
// (without extension) is its page name.
func NewTemplateRenderer(dir string) (*TemplateRenderer, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("template directory is required")
	}
	tmpl, err := template.ParseGlob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &TemplateRenderer{templates: tmpl}, nil
}

func (r *TemplateRenderer) Render(w io.Writer, page, title string, user *auth.SessionUser) error {
	name := page + ".html"
	if r.templates.Lookup(name) == nil {
		return fmt.Errorf("unknown page %q", page)
	}
	if err := r.templates.ExecuteTemplate(w, name, PageData{Title: title, User: user}); err != nil {
		return fmt.Errorf("render %q: %w", page, err)
	}
	return nil
}
