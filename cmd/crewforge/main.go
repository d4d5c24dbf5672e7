// crewforge: CrewAI agent-builder MCP server
//
// An MCP server that turns natural-language requests into working
// CrewAI agent crews: it scopes the project, designs the architecture,
// plans the implementation and generates the crew's Python files.
//
// Usage:
//
//	crewforge serve      # Start MCP server (stdio transport)
//	crewforge version    # Print the version
package main

import (
	"fmt"
	"os"

	cfserver "github.com/crewforge/crewforge/internal/server"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("crewforge v%s\n", cfserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	s, cleanup, err := cfserver.New()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// ServeStdio blocks until stdin closes and already handles
	// SIGINT/SIGTERM internally.
	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `crewforge v%s — CrewAI agent-builder MCP server

Usage:
  crewforge serve      Start the MCP server (stdio transport)
  crewforge version    Print the version

Configuration (environment):
  CREWFORGE_PROVIDER        anthropic | openai | ollama (default: openai)
  CREWFORGE_API_KEY         API key (required unless provider is ollama)
  CREWFORGE_PRIMARY_MODEL   Conversational/codegen model
  CREWFORGE_REASONER_MODEL  Scope-definition model
  CREWFORGE_WORKSPACE       Output folder for generated crews (default: workbench)

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "crewforge": {
        "command": "crewforge",
        "args": ["serve"]
      }
    }
  }
`, cfserver.Version)
}
