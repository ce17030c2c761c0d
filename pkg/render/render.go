package render

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// ReportHeaderTemplate names the template drawn at the top of a report.
const ReportHeaderTemplate = "report_header.tmpl"

// ReportHeader is the data the report header template is executed with.
type ReportHeader struct {
	SessionID    string
	GeneratedAt  time.Time
	ResultStatus string
	ReturnCode   *int
	Logs         int
	Screenshots  int
	Assets       int
}

// Engine renders templates embedded in the package.
type Engine struct {
	templates *template.Template
}

// New initialises an Engine by parsing all embedded templates.
func New() (*Engine, error) {
	t, err := template.New("render").Funcs(template.FuncMap{
		"plural": plural,
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Engine{templates: t}, nil
}

// Render executes the named template with the provided data and returns the rendered string.
func (e *Engine) Render(name string, data any) (string, error) {
	if e == nil || e.templates == nil {
		return "", fmt.Errorf("nil engine")
	}

	buf := bytes.NewBuffer(nil)
	if err := e.templates.ExecuteTemplate(buf, name, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// Lines renders the named template and returns its non-blank lines.
func (e *Engine) Lines(name string, data any) ([]string, error) {
	out, err := e.Render(name, data)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimRight(line, " \t\r"); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
