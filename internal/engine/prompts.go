package engine

import (
	"fmt"
	"strings"
)

// --- Step prompts ---

const scopeSystem = `You are a solution architect for multi-agent automations built on CrewAI.
Write a detailed scope document for the user's request: objectives, the
agents involved, external integrations, and what is explicitly out of
scope. Reply in markdown.`

const architectureSystem = `You are a solution architect. Given a scope document, describe the
architecture of the crew: each agent's role, the tools it uses, how
tasks hand off to each other, and the data that flows between them.
Reply in markdown.`

const planSystem = `You are a technical lead. Given a scope and an architecture, produce a
concrete implementation plan for the crew's source files (tools.py,
agents.py, tasks.py, crew.py): what goes in each file and in what
order to build them. Reply in markdown.`

// routerSystem classifies whether the user wants to finish or keep
// iterating. Anything but a clear "end" keeps the conversation going.
const routerSystem = `Decide whether the user's latest message means the conversation is over
or they want more changes to their crew. Reply with exactly one word:
"end" if they are done, "continue" otherwise.`

const closingSystem = `The user is finishing a crew-building session. Summarize briefly what
was built for them, where the files live, and how to run the crew.
Be warm and short.`

func scopePrompt(request string, referencePages []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user requested: %q\n", request)
	if len(referencePages) > 0 {
		b.WriteString("\nRelevant documentation pages available for grounding:\n")
		for _, page := range referencePages {
			fmt.Fprintf(&b, "- %s\n", page)
		}
	}
	b.WriteString("\nWrite the scope document.")
	return b.String()
}

func architecturePrompt(request, scope string) string {
	return fmt.Sprintf("The user requested: %q\n\nScope document:\n\n%s\n\nWrite the architecture document.", request, scope)
}

func planPrompt(request, scope, architecture string) string {
	return fmt.Sprintf(
		"The user requested: %q\n\nScope document:\n\n%s\n\nArchitecture document:\n\n%s\n\nWrite the implementation plan.",
		request, scope, architecture)
}

func routerPrompt(message string) string {
	return fmt.Sprintf("The user's latest message: %q", message)
}

// resumePrompt is the text handed back when a session suspends.
func resumePrompt(sessionID string) string {
	return fmt.Sprintf(
		"Your crew files are ready in the workbench folder. "+
			"Review them and tell me what to adjust, or say you're done. (session %s)", sessionID)
}

// closingFallback is used when the closing model call fails.
const closingFallback = "Your crew is ready in the workbench folder. Run crew.py to start it. Thanks for building with crewforge!"
