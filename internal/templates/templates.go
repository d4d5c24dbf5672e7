// Package templates holds the embedded skeleton files used when model
// generation fails or comes back too short. Rendering them is the last
// tier of the artifact-completeness guarantee, so they must always
// succeed: every template is parsed once at startup and rendering takes
// only plain string fields.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed files/*.tmpl
var templateFS embed.FS

// Template names.
const (
	Tools  = "tools.py.tmpl"
	Agents = "agents.py.tmpl"
	Tasks  = "tasks.py.tmpl"
	Crew   = "crew.py.tmpl"

	FallbackDoc = "fallback_doc.md.tmpl"
)

// ToolsData fills the skeleton tool module.
type ToolsData struct {
	Project    string
	ToolClass  string // e.g. "SpotifyMCPTool"
	Service    string // e.g. "spotify"
	ServiceEnv string // e.g. "SPOTIFY"
}

// AgentsData fills the skeleton agent definitions.
type AgentsData struct {
	Project     string
	ToolImports string // comma-joined class names for the import line
	ToolInits   string // one "name = Class()" line per tool
	ToolsList   string // comma-joined instance names
	FirstTool   string // single instance name for the writer agent
}

// TasksData fills the skeleton task definitions.
type TasksData struct {
	Project string
}

// CrewData fills the skeleton crew wiring.
type CrewData struct {
	Project string
}

// FallbackDocData fills the minimal pipeline document written when a
// Scope, Architecture or ImplementationPlan model call fails.
type FallbackDocData struct {
	Title   string
	Request string
	Notice  string
}

// Renderer renders a named template with the matching data struct.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// EmbedRenderer is the embedded-filesystem Renderer.
type EmbedRenderer struct {
	tmpl *template.Template
}

// NewRenderer parses all embedded templates.
func NewRenderer() (*EmbedRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "files/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &EmbedRenderer{tmpl: tmpl}, nil
}

// Render executes the named template.
func (r *EmbedRenderer) Render(name string, data any) (string, error) {
	t := r.tmpl.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("unknown template %q", name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
