// Package tools implements the MCP tool handlers for the crew builder.
//
// Each file holds one tool. Tools depend on the engine, not on storage
// or providers directly; the composition root in internal/server wires
// the concrete dependencies.
package tools

import (
	"errors"
	"strings"

	"github.com/crewforge/crewforge/internal/engine"
	"github.com/crewforge/crewforge/internal/progress"
	"github.com/mark3labs/mcp-go/mcp"
)

// runAndCollect executes one engine call while capturing its progress
// transcript, then folds transcript and outcome into a single tool
// result. MCP tool calls are synchronous, so the transcript is drained
// after the call rather than relayed live.
func runAndCollect(call func(emit progress.Writer) (*engine.Outcome, error)) (*mcp.CallToolResult, error) {
	stream := progress.NewStream()
	outcome, err := call(stream.Write)
	stream.Close()

	if err != nil {
		if busyOrBadState(err) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}

	var b strings.Builder
	for _, chunk := range stream.Drain() {
		b.WriteString(chunk)
	}
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(outcome.Reply)
	return mcp.NewToolResultText(b.String()), nil
}

// busyOrBadState reports whether the error is a caller mistake (wrong
// session, wrong step, concurrent call) rather than an internal failure.
// Caller mistakes come back as tool errors the model can read and react
// to; internal failures propagate as protocol errors.
func busyOrBadState(err error) bool {
	var stateErr *engine.SessionStateError
	return errors.Is(err, engine.ErrSessionBusy) || errors.As(err, &stateErr)
}
