package tools

import (
	"context"
	"strings"

	"github.com/crewforge/crewforge/internal/engine"
	"github.com/crewforge/crewforge/internal/progress"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// BuildTool handles the crew_build MCP tool. It opens a new session and
// runs the full pipeline until the first suspension.
type BuildTool struct {
	eng *engine.Engine
}

// NewBuildTool creates a BuildTool backed by the given engine.
func NewBuildTool(eng *engine.Engine) *BuildTool {
	return &BuildTool{eng: eng}
}

// Definition returns the MCP tool definition for registration.
func (t *BuildTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_build",
		mcp.WithDescription(
			"Build an AI agent crew from a natural-language request. "+
				"Scopes the project, designs the architecture, plans the "+
				"implementation and generates tools.py, agents.py, tasks.py "+
				"and crew.py into the workbench folder. Returns a session id "+
				"for follow-up refinements via crew_resume.",
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("What the agent crew should do, e.g. \"Build an agent for Spotify playlists\"."),
		),
		mcp.WithString("session_id",
			mcp.Description("Optional session id. Generated when omitted; supply one to make runs addressable by the caller."),
		),
	)
}

// Handle processes the crew_build tool call.
func (t *BuildTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := strings.TrimSpace(req.GetString("message", ""))
	if message == "" {
		return mcp.NewToolResultError("`message` is required: describe what the agent crew should do."), nil
	}

	sessionID := strings.TrimSpace(req.GetString("session_id", ""))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return runAndCollect(func(emit progress.Writer) (*engine.Outcome, error) {
		return t.eng.Start(ctx, sessionID, message, emit)
	})
}
