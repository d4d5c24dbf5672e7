package assembly

import (
	"errors"
	"reflect"
	"testing"
)

func TestExtract_ExplicitNameAttribute(t *testing.T) {
	text := "Here you go:\n```python name=agents.py\nfrom crewai import Agent\n```\n"

	blocks, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want 1", len(blocks))
	}
	if blocks[0].Name != ArtifactAgents {
		t.Errorf("Name = %q, want %q", blocks[0].Name, ArtifactAgents)
	}
	if blocks[0].Lang != "python" {
		t.Errorf("Lang = %q, want python", blocks[0].Lang)
	}
}

func TestExtract_CommentHint(t *testing.T) {
	text := "```python\n# tasks.py\nsomething = 1\n```\n"

	blocks, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if blocks[0].Name != ArtifactTasks {
		t.Errorf("Name = %q, want %q", blocks[0].Name, ArtifactTasks)
	}
}

func TestExtract_ContentHints(t *testing.T) {
	tests := []struct {
		name string
		code string
		want Artifact
	}{
		{"agent constructor", "researcher = Agent(role='r')", ArtifactAgents},
		{"task constructor", "t = Task(description='d')", ArtifactTasks},
		{"crew constructor", "c = Crew(tasks=[])", ArtifactCrew},
		{"tool class shape", "class FooTool(BaseTool):\n    def _run(self): pass", ArtifactTools},
		{"no hint at all", "print('hello')", Artifact("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks, err := Extract("```python\n" + tt.code + "\n```\n")
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if blocks[0].Name != tt.want {
				t.Errorf("Name = %q, want %q", blocks[0].Name, tt.want)
			}
		})
	}
}

func TestExtract_ExplicitNameBeatsContent(t *testing.T) {
	// Content says Agent( but the fence attribute says crew.py.
	text := "```python name=crew.py\nc = Agent(role='x')\n```\n"

	blocks, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if blocks[0].Name != ArtifactCrew {
		t.Errorf("Name = %q, want explicit attribute to win", blocks[0].Name)
	}
}

func TestExtract_NoRegions(t *testing.T) {
	for _, text := range []string{"", "just prose, no code", "```python\n\n```"} {
		if _, err := Extract(text); !errors.Is(err, ErrExtraction) {
			t.Errorf("Extract(%q) error = %v, want ErrExtraction", text, err)
		}
	}
}

func TestAssemble_FirstDuplicateWins(t *testing.T) {
	text := "```python name=tools.py\nfirst = 1\n```\n" +
		"```python name=tools.py\nsecond = 2\n```\n"

	got := Assemble(text, []Artifact{ArtifactTools})
	if got[ArtifactTools] != "first = 1\n" {
		t.Errorf("tools.py = %q, want first region kept", got[ArtifactTools])
	}
}

func TestAssemble_AnonymousFillsGapsInOrder(t *testing.T) {
	// One tagged region plus one anonymous region; the anonymous one
	// should fill the first unfilled expected slot.
	text := "```python name=crew.py\nc = Crew(tasks=[])\n```\n" +
		"```\nmystery_code = True\n```\n"

	got := Assemble(text, []Artifact{ArtifactTools, ArtifactCrew})
	if got[ArtifactCrew] == "" {
		t.Error("crew.py missing")
	}
	if got[ArtifactTools] != "mystery_code = True\n" {
		t.Errorf("tools.py = %q, want anonymous region", got[ArtifactTools])
	}
}

func TestAssemble_SurplusAnonymousKeptAsSnippets(t *testing.T) {
	// Every expected slot is already filled; leftover anonymous regions
	// must survive under generic names instead of being dropped.
	text := "```python name=tools.py\nclass SearchTool:\n    pass\n```\n" +
		"```python\nif __name__ == '__main__':\n    run()\n```\n" +
		"```python\nprint('extra helper')\n```\n"

	got := Assemble(text, []Artifact{ArtifactTools})
	if got[ArtifactTools] == "" {
		t.Fatal("tools.py missing")
	}
	if got[Artifact("snippet_1.py")] != "if __name__ == '__main__':\n    run()\n" {
		t.Errorf("snippet_1.py = %q, want the main-entry region", got[Artifact("snippet_1.py")])
	}
	if got[Artifact("snippet_2.py")] != "print('extra helper')\n" {
		t.Errorf("snippet_2.py = %q, want the second surplus region", got[Artifact("snippet_2.py")])
	}
	if len(got) != 3 {
		t.Errorf("Assemble kept %d artifacts, want 3: %v", len(got), got)
	}
}

func TestAssemble_GarbageInput(t *testing.T) {
	got := Assemble("no code here at all", AllArtifacts)
	if len(got) != 0 {
		t.Errorf("Assemble(garbage) = %v, want empty map", got)
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	text := "```python name=agents.py\na = Agent()\n```\n" +
		"```python\nx = 1\n```\n" +
		"```python\ny = Task(description='d')\n```\n"

	first := Assemble(text, AllArtifacts)
	second := Assemble(text, AllArtifacts)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Assemble not deterministic: %v vs %v", first, second)
	}
}

func TestProjectName(t *testing.T) {
	tests := []struct {
		request string
		want    string
	}{
		{"build an agent for spotify playlists", "Spotify"},
		{"something about weather, please", "Weather"},
		{"an agent using GitHub", "GitHub"},
		{"no keyword present", "MyAgent"},
		{"", "MyAgent"},
	}
	for _, tt := range tests {
		if got := projectName(tt.request); got != tt.want {
			t.Errorf("projectName(%q) = %q, want %q", tt.request, got, tt.want)
		}
	}
}

func TestToolClasses(t *testing.T) {
	source := "import os\n\nclass SpotifyMCPTool(BaseTool):\n    pass\n\nclass HelperTool:\n    pass\n"
	got := toolClasses(source)
	want := []string{"SpotifyMCPTool", "HelperTool"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("toolClasses() = %v, want %v", got, want)
	}

	if got := toolClasses(""); !reflect.DeepEqual(got, []string{"MCPTool"}) {
		t.Errorf("toolClasses(empty) = %v, want [MCPTool]", got)
	}
}
