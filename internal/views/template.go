package views

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"
)

// Template wraps a parsed template with helper methods for rendering.
type Template struct {
	tmpl *template.Template
}

// TemplateData is the standard data structure passed to all templates.
// It contains common fields that every page might need.
type TemplateData struct {
	// Current authenticated user (nil if not logged in)
	CurrentUser interface{}

	// CSRF hidden input field for forms
	CSRFToken template.HTML

	// Flash messages
	Error   string
	Success string
	Warning string

	// Page-specific data
	Data interface{}

	// Additional metadata
	Title string

	// Request info (useful for active nav highlighting)
	CurrentPath string
}

// DefaultFuncMap returns the default template functions available in all templates.
func DefaultFuncMap() template.FuncMap {
	return template.FuncMap{
		"upper":    strings.ToUpper,
		"lower":    strings.ToLower,
		"truncate": truncate,

		"formatDate":     formatDate,
		"formatDateTime": formatDateTime,
		"timeAgo":        timeAgo,

		"percentage": percentage,

		"resultClass": resultClass,
	}
}

// ParseFS parses page templates from the given filesystem. The base
// layout is always included; pages define their own "content" block.
func ParseFS(fsys fs.FS, patterns ...string) (*Template, error) {
	tmpl := template.New("").Funcs(DefaultFuncMap())

	baseContent, err := fs.ReadFile(fsys, "layouts/base.gohtml")
	if err != nil {
		return nil, fmt.Errorf("failed to read base template: %w", err)
	}
	tmpl, err = tmpl.Parse(string(baseContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base template: %w", err)
	}

	for _, pattern := range patterns {
		content, err := fs.ReadFile(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", pattern, err)
		}
		tmpl, err = tmpl.Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", pattern, err)
		}
	}

	return &Template{tmpl: tmpl}, nil
}

// MustParseFS is like ParseFS but panics on error.
// Use this during initialization when templates must be valid.
func MustParseFS(fsys fs.FS, patterns ...string) *Template {
	tmpl, err := ParseFS(fsys, patterns...)
	if err != nil {
		panic(fmt.Sprintf("failed to parse templates: %v", err))
	}
	return tmpl
}

// Execute renders the template to the given writer with the provided data.
func (t *Template) Execute(w io.Writer, data *TemplateData) error {
	return t.tmpl.ExecuteTemplate(w, "base", data)
}

// ExecuteHTTP renders the template as an HTTP response.
// It handles errors gracefully and sets appropriate headers.
func (t *Template) ExecuteHTTP(w http.ResponseWriter, r *http.Request, data *TemplateData) {
	t.ExecuteHTTPWithStatus(w, r, http.StatusOK, data)
}

// ExecuteHTTPWithStatus renders the template with a custom HTTP status code.
func (t *Template) ExecuteHTTPWithStatus(w http.ResponseWriter, r *http.Request, status int, data *TemplateData) {
	if data != nil {
		data.CurrentPath = r.URL.Path
	}

	// Render to buffer first to catch errors
	buf := &bytes.Buffer{}
	if err := t.Execute(buf, data); err != nil {
		log.Printf("Template execution error: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// Template function implementations

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func formatDate(t time.Time) string {
	return t.Format("Jan 2, 2006")
}

func formatDateTime(t time.Time) string {
	return t.Format("Jan 2, 2006 3:04 PM")
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// percentage formats a [0,1] confidence as a percentage with one
// decimal, e.g. 0.9371 -> "93.7%".
func percentage(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func resultClass(result string) string {
	switch result {
	case "forged":
		return "result-forged"
	case "authentic":
		return "result-authentic"
	default:
		return "result-pending"
	}
}
