package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/crewforge/crewforge/internal/gateway"
	"github.com/crewforge/crewforge/internal/templates"
)

// CompletionContext carries what the Completer needs to regenerate or
// skeleton-fill an artifact.
type CompletionContext struct {
	UserRequest string
	ToolCode    string // content of tools.py, when already produced
	Service     string // integration service name, e.g. "spotify"
}

// Completer enforces the artifact completeness guarantee: after Complete
// returns, every expected artifact exists with content at least MinSize
// bytes long, no matter how the model behaved.
type Completer struct {
	client  gateway.Client
	render  templates.Renderer
	minSize int
	log     *slog.Logger
}

// NewCompleter builds a Completer. A nil client disables the regeneration
// tier and goes straight to skeletons.
func NewCompleter(client gateway.Client, render templates.Renderer, minSize int, log *slog.Logger) *Completer {
	return &Completer{client: client, render: render, minSize: minSize, log: log}
}

// Complete returns a copy of artifacts with every expected entry filled.
// Short or absent artifacts are regenerated one at a time with a narrow
// model call; anything still missing falls back to the deterministic
// skeleton templates.
func (c *Completer) Complete(ctx context.Context, artifacts map[Artifact]string, expected []Artifact, cc CompletionContext) map[Artifact]string {
	out := make(map[Artifact]string, len(expected))
	for k, v := range artifacts {
		out[k] = v
	}

	for _, name := range expected {
		if len(out[name]) >= c.minSize {
			continue
		}

		if content, ok := c.regenerate(ctx, name, cc); ok {
			out[name] = content
			continue
		}

		content, err := c.skeleton(name, cc)
		if err != nil {
			// Templates are embedded and parsed at startup; this only
			// trips on a data-shape bug. Keep the guarantee anyway.
			c.log.Error("skeleton render failed", "artifact", string(name), "error", err)
			content = fmt.Sprintf("# %s\n# Placeholder for: %s\n%s\n", name, cc.UserRequest, strings.Repeat("#\n", c.minSize/2))
		}
		out[name] = content
	}

	return out
}

// regenerate asks the model for exactly one artifact and reports whether
// the result was usable.
func (c *Completer) regenerate(ctx context.Context, name Artifact, cc CompletionContext) (string, bool) {
	if c.client == nil {
		return "", false
	}

	prompt := fmt.Sprintf(
		"The user requested: %q\n\nProduce only the file %s for a CrewAI crew serving that request. "+
			"Reply with a single fenced code block tagged `python name=%s`.",
		cc.UserRequest, name, name)
	if cc.ToolCode != "" && name != ArtifactTools {
		prompt += fmt.Sprintf("\n\nThe crew's tools.py already exists:\n\n```python\n%s\n```\n\nImport and use its tools.", cc.ToolCode)
	}

	resp, err := c.client.Complete(ctx, gateway.Request{Prompt: prompt})
	if err != nil {
		c.log.Warn("artifact regeneration failed", "artifact", string(name), "error", err)
		return "", false
	}

	got := Assemble(resp.Content, []Artifact{name})
	if content := got[name]; len(content) >= c.minSize {
		return content, true
	}
	c.log.Warn("regenerated artifact too short", "artifact", string(name))
	return "", false
}

// skeleton renders the deterministic template for an artifact.
func (c *Completer) skeleton(name Artifact, cc CompletionContext) (string, error) {
	project := projectName(cc.UserRequest)

	switch name {
	case ArtifactTools:
		service := cc.Service
		if service == "" {
			service = "search"
		}
		return c.render.Render(templates.Tools, templates.ToolsData{
			Project:    project,
			ToolClass:  toolClassName(service),
			Service:    service,
			ServiceEnv: strings.ToUpper(service),
		})
	case ArtifactAgents:
		classes := toolClasses(cc.ToolCode)
		instances := make([]string, len(classes))
		var inits strings.Builder
		for i, cls := range classes {
			instances[i] = strings.ToLower(cls)
			fmt.Fprintf(&inits, "%s = %s()\n", instances[i], cls)
		}
		return c.render.Render(templates.Agents, templates.AgentsData{
			Project:     project,
			ToolImports: strings.Join(classes, ", "),
			ToolInits:   inits.String(),
			ToolsList:   strings.Join(instances, ", "),
			FirstTool:   instances[0],
		})
	case ArtifactTasks:
		return c.render.Render(templates.Tasks, templates.TasksData{Project: project})
	case ArtifactCrew:
		return c.render.Render(templates.Crew, templates.CrewData{Project: project})
	default:
		return "", fmt.Errorf("no skeleton for artifact %q", name)
	}
}

// projectName derives a short project name from the request: the word
// following "for", "about" or "using", cleaned to alphanumerics.
func projectName(request string) string {
	words := strings.Fields(request)
	for i, word := range words {
		switch strings.ToLower(word) {
		case "for", "about", "using":
			if i+1 < len(words) {
				if name := cleanName(words[i+1]); name != "" {
					return name
				}
			}
		}
	}
	return "MyAgent"
}

func cleanName(word string) string {
	var b strings.Builder
	for _, r := range strings.Trim(word, ",.:;") {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// toolClasses scans python source for class definitions, line by line.
func toolClasses(source string) []string {
	var classes []string
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(trimmed, "class ")
		if !ok {
			continue
		}
		end := strings.IndexAny(rest, "(:")
		if end <= 0 {
			continue
		}
		name := strings.TrimSpace(rest[:end])
		if name != "" {
			classes = append(classes, name)
		}
	}
	if len(classes) == 0 {
		classes = []string{"MCPTool"}
	}
	return classes
}

// toolClassName builds a class name like SpotifyMCPTool from a service id.
func toolClassName(service string) string {
	cleaned := cleanName(service)
	if cleaned == "" {
		cleaned = "Generic"
	}
	return cleaned + "MCPTool"
}
