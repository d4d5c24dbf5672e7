// Package server wires the crew builder's components and creates the
// MCP server instance.
//
// This is the composition root: it reads configuration, builds the
// concrete gateway clients, stores and the workflow engine, and injects
// them into the tools that depend on abstractions. No business logic
// lives here — only wiring.
package server

import (
	"fmt"

	"github.com/crewforge/crewforge/internal/assembly"
	"github.com/crewforge/crewforge/internal/config"
	"github.com/crewforge/crewforge/internal/discovery"
	"github.com/crewforge/crewforge/internal/engine"
	"github.com/crewforge/crewforge/internal/gateway"
	"github.com/crewforge/crewforge/internal/knowledge"
	"github.com/crewforge/crewforge/internal/session"
	"github.com/crewforge/crewforge/internal/templates"
	"github.com/crewforge/crewforge/internal/tools"
	"github.com/crewforge/crewforge/internal/workspace"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with the crew-building
// tools registered. This is the single place where all dependencies are
// resolved.
//
// The returned cleanup function closes the session and corpus
// databases and must be called on shutdown (typically via defer). It is
// always non-nil and safe to call even when New fails partway.
func New() (*server.MCPServer, func(), error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, noop, fmt.Errorf("loading configuration: %w", err)
	}

	log := newLogger(cfg.LogLevel)

	// --- Model gateway clients ---

	primary, err := gateway.NewForModel(cfg, cfg.PrimaryModel)
	if err != nil {
		return nil, noop, fmt.Errorf("creating primary model client: %w", err)
	}
	reasoner, err := gateway.NewForModel(cfg, cfg.ReasonerModel)
	if err != nil {
		return nil, noop, fmt.Errorf("creating reasoner model client: %w", err)
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, noop, fmt.Errorf("creating template renderer: %w", err)
	}

	// --- Session store (required) ---

	sessions, err := session.NewSQLiteStore(cfg.SessionDBPath)
	if err != nil {
		return nil, noop, fmt.Errorf("opening session store: %w", err)
	}
	cleanup := func() {
		if err := sessions.Close(); err != nil {
			log.Warn("session store close", "error", err)
		}
	}

	// --- Knowledge corpus (optional) ---
	//
	// Corpus similarity needs an embedding endpoint, which only the
	// OpenAI provider offers here. Without it the pipeline still works:
	// discovery falls back to from-scratch generation and the scope step
	// skips page grounding.

	var corpus *knowledge.Store
	if cfg.Provider == config.ProviderOpenAI {
		corpus, err = knowledge.NewStore(cfg.CorpusPath, gateway.NewOpenAIEmbedder(cfg))
		if err != nil {
			log.Warn("knowledge corpus disabled", "error", err)
			corpus = nil
		} else {
			sessionCleanup := cleanup
			cleanup = func() {
				if err := corpus.Close(); err != nil {
					log.Warn("knowledge corpus close", "error", err)
				}
				sessionCleanup()
			}
		}
	} else {
		log.Info("knowledge corpus disabled", "provider", cfg.Provider)
	}

	// Typed-nil guard: a nil *knowledge.Store must become a nil
	// interface, not an interface holding a nil pointer.
	var finder discovery.TemplateFinder
	var pages engine.PageLister
	if corpus != nil {
		finder = corpus
		pages = corpus
	}

	// --- Workflow engine ---

	completer := assembly.NewCompleter(primary, renderer, cfg.MinArtifactSize, log)
	discoverer := discovery.New(primary, finder, completer, cfg.GenerateAgentFiles, log)

	eng := engine.New(engine.Deps{
		Store:      sessions,
		Primary:    primary,
		Reasoner:   reasoner,
		Discoverer: discoverer,
		Pages:      pages,
		Sink:       workspace.NewDir(cfg.WorkspaceRoot),
		Render:     renderer,
		Log:        log,
	})

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"crewforge",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---

	buildTool := tools.NewBuildTool(eng)
	s.AddTool(buildTool.Definition(), buildTool.Handle)

	resumeTool := tools.NewResumeTool(eng)
	s.AddTool(resumeTool.Definition(), resumeTool.Handle)

	statusTool := tools.NewStatusTool(eng)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	return s, cleanup, nil
}

// noop is a no-op cleanup function used as the default until the stores
// have been opened.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to drive the crew builder.
func serverInstructions() string {
	return `You have access to crewforge, an MCP server that builds CrewAI
agent crews from natural-language requests.

## Tools

- crew_build: start a new session. Pass the user's request in "message".
  The server scopes the project, designs an architecture, plans the
  implementation and generates tools.py, agents.py, tasks.py and crew.py
  into the workbench folder. The response contains a session id.
- crew_resume: continue a session with the user's next message. Change
  requests regenerate the crew files; a message saying the user is done
  closes the session with a summary.
- crew_status: inspect a session without running anything.

## Workflow

1. When the user asks for an AI agent or automation crew, call
   crew_build with their request verbatim (plus any context they gave).
2. Relay the response to the user, including the generated file list.
3. When the user replies, call crew_resume with the same session id and
   their message. Do NOT decide yourself whether they are done — pass
   the message through and let the server route it.
4. Repeat until the session completes.

## Notes

- Generated files land under the workbench folder, one subdirectory per
  session.
- The server degrades gracefully: when a model call fails you still get
  skeleton files plus a notice in the output. Tell the user when that
  happens.
- Only one call per session runs at a time. A "session busy" error means
  a previous call is still in flight; wait and retry.`
}
