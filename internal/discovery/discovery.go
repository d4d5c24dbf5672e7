// Package discovery runs the tool discovery and integration subflow:
// given a user request, decide which external services the crew needs,
// find the closest corpus template, and synthesize a complete artifact
// set around it. The subflow is ephemeral — nothing here is persisted
// between invocations — and it always terminates with a full set of
// artifacts, degrading tier by tier when the model or corpus cannot help.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/crewforge/crewforge/internal/assembly"
	"github.com/crewforge/crewforge/internal/gateway"
	"github.com/crewforge/crewforge/internal/knowledge"
	"github.com/crewforge/crewforge/internal/progress"
)

// serviceKeywords maps a known integration service to the request words
// that suggest it.
var serviceKeywords = map[string][]string{
	"spotify": {"spotify", "playlist", "music", "song", "track", "album"},
	"github":  {"github", "repository", "repo", "pull request", "issues", "commit"},
	"youtube": {"youtube", "video", "transcript", "channel"},
	"twitter": {"twitter", "tweet", "x.com"},
	"slack":   {"slack", "channel message", "workspace"},
	"weather": {"weather", "forecast", "temperature"},
	"search":  {"search the web", "web search", "google", "serper", "research"},
	"sheets":  {"spreadsheet", "google sheets", "excel", "csv"},
}

// ToolRequirement is one service the crew needs, with the model's
// confidence in that judgement.
type ToolRequirement struct {
	Service    string  `json:"service"`
	Confidence float64 `json:"confidence"`
}

// requirementResponse is the JSON shape requested from the model during
// structured requirement extraction.
type requirementResponse struct {
	Primary   []ToolRequirement `json:"primary"`
	Secondary []ToolRequirement `json:"secondary"`
}

// Result is the outcome of one discovery run.
type Result struct {
	// Services detected by keyword scan, sorted.
	Services []string
	// Primary and Secondary requirements after structured extraction
	// (or the keyword-scan degradation of it).
	Primary   []ToolRequirement
	Secondary []ToolRequirement
	// Template is the corpus match used for synthesis, nil when
	// generation ran from scratch.
	Template *knowledge.TemplateMatch
	// Artifacts is the complete generated set.
	Artifacts map[assembly.Artifact]string
}

// TemplateFinder is the slice of the knowledge store discovery needs.
type TemplateFinder interface {
	FindSimilar(ctx context.Context, purpose string) (*knowledge.TemplateMatch, error)
}

// Discoverer executes the subflow.
type Discoverer struct {
	client             gateway.Client
	corpus             TemplateFinder
	completer          *assembly.Completer
	generateAgentFiles bool
	log                *slog.Logger
}

// New builds a Discoverer. corpus may be nil when no corpus is
// configured; the ranking step is then skipped.
func New(client gateway.Client, corpus TemplateFinder, completer *assembly.Completer, generateAgentFiles bool, log *slog.Logger) *Discoverer {
	return &Discoverer{
		client:             client,
		corpus:             corpus,
		completer:          completer,
		generateAgentFiles: generateAgentFiles,
		log:                log,
	}
}

// DetectServices runs the keyword scan and returns suspected services in
// sorted order.
func DetectServices(request string) []string {
	lowered := strings.ToLower(request)
	var services []string
	for service, keywords := range serviceKeywords {
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				services = append(services, service)
				break
			}
		}
	}
	sort.Strings(services)
	return services
}

// Run executes the full subflow for one request. It never returns an
// error for model or corpus trouble — each step degrades — so the only
// failure mode left is context cancellation, reported via the artifacts
// simply coming from skeletons.
func (d *Discoverer) Run(ctx context.Context, request string, emit progress.Writer) *Result {
	res := &Result{Services: DetectServices(request)}

	// Structured requirement extraction, degrading to the keyword scan.
	res.Primary, res.Secondary = d.extractRequirements(ctx, request, res.Services)

	if len(res.Primary) > 0 {
		emit(fmt.Sprintf("Detected integrations: %s\n", joinServices(res.Primary)))
	}

	// Candidate ranking against the corpus. An explicit "none" is fine.
	if d.corpus != nil {
		match, err := d.corpus.FindSimilar(ctx, request)
		if err != nil {
			d.log.Warn("template lookup failed", "error", err)
		} else if match != nil {
			res.Template = match
			emit(fmt.Sprintf("Found matching template: %s (score %.2f)\n", match.Name, match.Score))
		}
	}
	if res.Template == nil {
		emit("No matching template found, generating custom tool code...\n")
	}

	// Synthesis + verification.
	res.Artifacts = d.synthesize(ctx, request, res, emit)
	return res
}

// extractRequirements asks the model to classify required integrations
// as JSON. Any failure degrades to a flat primary list built from the
// keyword scan with neutral confidence.
func (d *Discoverer) extractRequirements(ctx context.Context, request string, detected []string) (primary, secondary []ToolRequirement) {
	degrade := func() ([]ToolRequirement, []ToolRequirement) {
		out := make([]ToolRequirement, len(detected))
		for i, s := range detected {
			out[i] = ToolRequirement{Service: s, Confidence: 0.5}
		}
		return out, nil
	}

	known := make([]string, 0, len(serviceKeywords))
	for s := range serviceKeywords {
		known = append(known, s)
	}
	sort.Strings(known)

	prompt := fmt.Sprintf(
		"The user requested: %q\n\nWhich external services does a crew serving this request need? "+
			"Known services: %s. Reply with JSON only, shaped as "+
			`{"primary": [{"service": "...", "confidence": 0.0}], "secondary": [...]}.`,
		request, strings.Join(known, ", "))

	resp, err := d.client.Complete(ctx, gateway.Request{Prompt: prompt})
	if err != nil {
		d.log.Warn("requirement extraction failed, using keyword scan", "error", err)
		return degrade()
	}

	var parsed requirementResponse
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		d.log.Warn("requirement extraction returned unparseable JSON", "error", err)
		return degrade()
	}
	if len(parsed.Primary) == 0 {
		return degrade()
	}
	return parsed.Primary, parsed.Secondary
}

// synthesize produces the artifact set: adapt the matched template or
// generate from scratch, then let the completer enforce the size floor.
func (d *Discoverer) synthesize(ctx context.Context, request string, res *Result, emit progress.Writer) map[assembly.Artifact]string {
	expected := []assembly.Artifact{assembly.ArtifactTools}
	if d.generateAgentFiles {
		expected = assembly.AllArtifacts
	} else {
		emit("Only generating tools code as configured; agent files will not be created.\n")
	}

	artifacts := make(map[assembly.Artifact]string)
	service := primaryService(res)

	if res.Template != nil {
		emit(fmt.Sprintf("Adapting template %s to your request...\n", res.Template.Name))
		artifacts = d.adaptTemplate(ctx, request, res.Template, expected)
	} else {
		emit("Generating tool code from scratch...\n")
		artifacts = d.generateFromScratch(ctx, request, service, expected)
	}

	cc := assembly.CompletionContext{
		UserRequest: request,
		ToolCode:    artifacts[assembly.ArtifactTools],
		Service:     service,
	}
	completed := d.completer.Complete(ctx, artifacts, expected, cc)

	for _, name := range expected {
		if artifacts[name] != completed[name] {
			emit(fmt.Sprintf("Created %s (fallback method)\n", name))
		} else {
			emit(fmt.Sprintf("Created %s\n", name))
		}
	}
	return completed
}

// adaptTemplate seeds the artifact set from the corpus template, then
// asks the model to tailor it to the request.
func (d *Discoverer) adaptTemplate(ctx context.Context, request string, tmpl *knowledge.TemplateMatch, expected []assembly.Artifact) map[assembly.Artifact]string {
	artifacts := map[assembly.Artifact]string{}
	seed := map[assembly.Artifact]string{
		assembly.ArtifactTools:  tmpl.ToolsCode,
		assembly.ArtifactAgents: tmpl.AgentsCode,
		assembly.ArtifactTasks:  tmpl.TasksCode,
		assembly.ArtifactCrew:   tmpl.CrewCode,
	}
	for _, name := range expected {
		if seed[name] != "" {
			artifacts[name] = seed[name]
		}
	}

	prompt := fmt.Sprintf(
		"The user requested: %q\n\nAdapt this existing crew template to the request. "+
			"Reply with one fenced code block per file, each tagged `python name=<file>`.\n\n%s",
		request, renderSeed(artifacts))

	resp, err := d.client.Complete(ctx, gateway.Request{Prompt: prompt})
	if err != nil {
		d.log.Warn("template adaptation failed, keeping template as-is", "error", err)
		return artifacts
	}

	adapted := assembly.Assemble(resp.Content, expected)
	for name, content := range adapted {
		artifacts[name] = content
	}
	return artifacts
}

// generateFromScratch asks the model for the full artifact set in one
// call.
func (d *Discoverer) generateFromScratch(ctx context.Context, request, service string, expected []assembly.Artifact) map[assembly.Artifact]string {
	names := make([]string, len(expected))
	for i, a := range expected {
		names[i] = string(a)
	}

	prompt := fmt.Sprintf(
		"The user requested: %q\n\nCreate a CrewAI crew serving that request. ", request)
	if service != "" {
		prompt += fmt.Sprintf("Integrate the %s service. ", service)
	}
	prompt += fmt.Sprintf(
		"Produce the files: %s. Reply with one fenced code block per file, each tagged `python name=<file>`.",
		strings.Join(names, ", "))

	resp, err := d.client.Complete(ctx, gateway.Request{Prompt: prompt})
	if err != nil {
		d.log.Warn("generation from scratch failed", "error", err)
		return map[assembly.Artifact]string{}
	}
	return assembly.Assemble(resp.Content, expected)
}

func renderSeed(artifacts map[assembly.Artifact]string) string {
	var b strings.Builder
	for _, name := range assembly.AllArtifacts {
		content, ok := artifacts[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "```python name=%s\n%s\n```\n\n", name, strings.TrimRight(content, "\n"))
	}
	return b.String()
}

func primaryService(res *Result) string {
	if len(res.Primary) > 0 {
		return res.Primary[0].Service
	}
	if len(res.Services) > 0 {
		return res.Services[0]
	}
	return ""
}

func joinServices(reqs []ToolRequirement) string {
	names := make([]string, len(reqs))
	for i, r := range reqs {
		names[i] = r.Service
	}
	return strings.Join(names, ", ")
}

// extractJSON trims prose and code fences around a JSON object so a
// chatty model reply still parses.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
