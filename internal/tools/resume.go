package tools

import (
	"context"
	"strings"

	"github.com/crewforge/crewforge/internal/engine"
	"github.com/crewforge/crewforge/internal/progress"
	"github.com/mark3labs/mcp-go/mcp"
)

// ResumeTool handles the crew_resume MCP tool. It feeds the next user
// message into a suspended session: refinement requests regenerate the
// crew files, a satisfied reply ends the conversation.
type ResumeTool struct {
	eng *engine.Engine
}

// NewResumeTool creates a ResumeTool backed by the given engine.
func NewResumeTool(eng *engine.Engine) *ResumeTool {
	return &ResumeTool{eng: eng}
}

// Definition returns the MCP tool definition for registration.
func (t *ResumeTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_resume",
		mcp.WithDescription(
			"Continue a suspended crew-building session. Pass the user's "+
				"next message: change requests regenerate the crew files, a "+
				"message indicating the user is done closes the session with "+
				"a summary.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by crew_build."),
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The user's follow-up message."),
		),
	)
}

// Handle processes the crew_resume tool call.
func (t *ResumeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := strings.TrimSpace(req.GetString("session_id", ""))
	if sessionID == "" {
		return mcp.NewToolResultError("`session_id` is required: use the id returned by crew_build."), nil
	}
	message := strings.TrimSpace(req.GetString("message", ""))
	if message == "" {
		return mcp.NewToolResultError("`message` is required: pass the user's follow-up."), nil
	}

	return runAndCollect(func(emit progress.Writer) (*engine.Outcome, error) {
		return t.eng.Resume(ctx, sessionID, message, emit)
	})
}
