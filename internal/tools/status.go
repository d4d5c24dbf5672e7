package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/crewforge/crewforge/internal/engine"
	"github.com/mark3labs/mcp-go/mcp"
)

// StatusTool handles the crew_status MCP tool. It reports where a
// session stands without running any pipeline work.
type StatusTool struct {
	eng *engine.Engine
}

// NewStatusTool creates a StatusTool backed by the given engine.
func NewStatusTool(eng *engine.Engine) *StatusTool {
	return &StatusTool{eng: eng}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("crew_status",
		mcp.WithDescription(
			"Show the current state of a crew-building session: pipeline "+
				"position, which planning documents exist, and conversation "+
				"length. Read-only.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by crew_build."),
		),
	)
}

// Handle processes the crew_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := strings.TrimSpace(req.GetString("session_id", ""))
	if sessionID == "" {
		return mcp.NewToolResultError("`session_id` is required: use the id returned by crew_build."), nil
	}

	st, err := t.eng.Status(ctx, sessionID)
	if err != nil {
		if busyOrBadState(err) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("loading session %q: %w", sessionID, err)
	}

	var docs strings.Builder
	docs.WriteString("| Document | Status |\n")
	docs.WriteString("|----------|--------|\n")
	for _, d := range []struct {
		name    string
		content string
	}{
		{"scope.md", st.Scope},
		{"architecture.md", st.Architecture},
		{"implementation_plan.md", st.Plan},
	} {
		marker := "pending"
		if strings.TrimSpace(d.content) != "" {
			marker = fmt.Sprintf("written (%d bytes)", len(d.content))
		}
		fmt.Fprintf(&docs, "| %s | %s |\n", d.name, marker)
	}

	response := fmt.Sprintf(
		"# Session Status\n\n"+
			"**ID:** `%s`\n"+
			"**Position:** %s\n"+
			"**Last request:** %s\n"+
			"**Turns logged:** %d\n"+
			"**Created:** %s\n"+
			"**Updated:** %s\n\n"+
			"## Planning Documents\n\n%s",
		st.SessionID, st.Position, st.LatestUserMessage,
		len(st.MessageLog), st.CreatedAt, st.UpdatedAt,
		docs.String(),
	)

	return mcp.NewToolResultText(response), nil
}
