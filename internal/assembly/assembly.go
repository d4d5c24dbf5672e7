// Package assembly turns raw model output into a complete set of named
// artifact files. Extraction never fails outward: text that yields no
// usable regions simply produces an empty mapping, and the Completer
// guarantees every expected artifact ends up present and non-trivial.
package assembly

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

// Artifact names the closed set of crew source files.
type Artifact string

const (
	ArtifactTools  Artifact = "tools.py"
	ArtifactAgents Artifact = "agents.py"
	ArtifactTasks  Artifact = "tasks.py"
	ArtifactCrew   Artifact = "crew.py"
)

// AllArtifacts is the full expected set in assembly order.
var AllArtifacts = []Artifact{ArtifactTools, ArtifactAgents, ArtifactTasks, ArtifactCrew}

// validArtifacts is the set of recognized artifact names.
var validArtifacts = map[Artifact]bool{
	ArtifactTools:  true,
	ArtifactAgents: true,
	ArtifactTasks:  true,
	ArtifactCrew:   true,
}

// ErrExtraction reports that model output yielded no usable code regions.
// Callers recover from it by regenerating or falling back to skeletons;
// it never propagates past the assembly layer.
var ErrExtraction = errors.New("no extractable code regions")

// Block is one fenced code region tagged with the artifact it belongs to.
// Name is empty when no tier could classify the region.
type Block struct {
	Name    Artifact
	Lang    string
	Content string
}

// Extract scans text line by line for fenced code regions and classifies
// each one. Classification tiers, strongest first:
//
//  1. explicit fence attribute: ```python name=agents.py
//  2. first-line comment hint:  # agents.py
//  3. content hint: a constructor call (Agent(, Task(, Crew() names the
//     region; tool-looking content (BaseTool, def _run) maps to tools.py
//
// Regions matching no tier come back with an empty Name.
func Extract(text string) ([]Block, error) {
	var blocks []Block

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		inFence bool
		lang    string
		tag     Artifact
		lines   []string
	)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if !inFence {
			if strings.HasPrefix(trimmed, "```") {
				inFence = true
				lang, tag = parseFenceInfo(strings.TrimPrefix(trimmed, "```"))
				lines = lines[:0]
			}
			continue
		}

		if trimmed == "```" {
			inFence = false
			content := strings.Join(lines, "\n")
			if strings.TrimSpace(content) == "" {
				continue
			}
			name := tag
			if name == "" {
				name = classify(lines)
			}
			blocks = append(blocks, Block{Name: name, Lang: lang, Content: content + "\n"})
			continue
		}

		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan model output: %w", err)
	}

	if len(blocks) == 0 {
		return nil, ErrExtraction
	}
	return blocks, nil
}

// parseFenceInfo splits a fence info string like "python name=agents.py"
// into language and an explicit artifact tag.
func parseFenceInfo(info string) (lang string, tag Artifact) {
	for i, field := range strings.Fields(info) {
		if i == 0 && !strings.Contains(field, "=") {
			lang = field
			continue
		}
		if value, ok := strings.CutPrefix(field, "name="); ok {
			candidate := Artifact(strings.Trim(value, `"'`))
			if validArtifacts[candidate] {
				tag = candidate
			}
		}
	}
	return lang, tag
}

// classify applies the comment-hint and content-hint tiers to an
// untagged region.
func classify(lines []string) Artifact {
	// First non-blank line as a file comment: "# agents.py".
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if hint, ok := strings.CutPrefix(trimmed, "#"); ok {
			for name := range validArtifacts {
				if strings.Contains(hint, string(name)) {
					return name
				}
			}
		}
		break
	}

	// Content hints, checked most specific first: crew wiring mentions
	// Crew(, task files mention Task(, agent files mention Agent(.
	// Tool modules are recognized by their class shape.
	var hasAgent, hasTask, hasCrew, hasTool bool
	for _, line := range lines {
		switch {
		case strings.Contains(line, "Crew("):
			hasCrew = true
		case strings.Contains(line, "Task("):
			hasTask = true
		case strings.Contains(line, "Agent("):
			hasAgent = true
		}
		if strings.Contains(line, "BaseTool") || strings.Contains(line, "def _run") {
			hasTool = true
		}
	}
	switch {
	case hasCrew:
		return ArtifactCrew
	case hasTask:
		return ArtifactTasks
	case hasAgent:
		return ArtifactAgents
	case hasTool:
		return ArtifactTools
	}
	return ""
}

// Assemble maps extracted regions onto the expected artifact set. The
// first region classified for an artifact wins; later duplicates are
// ignored. Unclassified regions fill remaining expected slots in order,
// so a single anonymous code block still lands somewhere useful; any
// left over after that are kept under generic snippet names rather than
// discarded, so entry-point code the model volunteers (a main.py, a run
// script) still reaches the caller. The result is deterministic for a
// given input.
func Assemble(text string, expected []Artifact) map[Artifact]string {
	out := make(map[Artifact]string, len(expected))

	blocks, err := Extract(text)
	if err != nil {
		return out
	}

	wanted := make(map[Artifact]bool, len(expected))
	for _, a := range expected {
		wanted[a] = true
	}

	var anonymous []Block
	for _, b := range blocks {
		if b.Name == "" {
			anonymous = append(anonymous, b)
			continue
		}
		if wanted[b.Name] && out[b.Name] == "" {
			out[b.Name] = b.Content
		}
	}

	// Fill gaps with anonymous regions in expected order.
	i := 0
	for _, a := range expected {
		if out[a] != "" {
			continue
		}
		if i >= len(anonymous) {
			break
		}
		out[a] = anonymous[i].Content
		i++
	}

	// Surplus anonymous regions get generic names in emission order.
	for n := 1; i < len(anonymous); i++ {
		name := Artifact(fmt.Sprintf("snippet_%d.py", n))
		for out[name] != "" {
			n++
			name = Artifact(fmt.Sprintf("snippet_%d.py", n))
		}
		out[name] = anonymous[i].Content
		n++
	}

	return out
}
