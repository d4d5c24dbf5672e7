// Package engine drives the crew-building pipeline: Scope →
// Architecture → ImplementationPlan → CodeGeneration → AwaitingUser,
// then per user turn either another CodeGeneration round or
// Terminating → End. A session suspends by saving its State and
// returning an explicit Suspended outcome; nothing about control flow
// lives outside the State.
package engine

import "fmt"

// --- Step enum ---

// Step is a discrete position in the pipeline. Position alone determines
// what a resumed session does next.
type Step string

const (
	StepScope        Step = "scope"
	StepArchitecture Step = "architecture"
	StepPlan         Step = "implementation_plan"
	StepCodeGen      Step = "code_generation"
	StepAwaitingUser Step = "awaiting_user"
	StepTerminating  Step = "terminating"
	StepEnd          Step = "end"
)

// validSteps is the set of allowed steps.
var validSteps = map[Step]bool{
	StepScope:        true,
	StepArchitecture: true,
	StepPlan:         true,
	StepCodeGen:      true,
	StepAwaitingUser: true,
	StepTerminating:  true,
	StepEnd:          true,
}

// ValidateStep returns an error if the step is not recognized.
func ValidateStep(s Step) error {
	if !validSteps[s] {
		return fmt.Errorf("invalid step %q", s)
	}
	return nil
}

// transitions lists the legal successor steps for each step.
var transitions = map[Step][]Step{
	StepScope:        {StepArchitecture},
	StepArchitecture: {StepPlan},
	StepPlan:         {StepCodeGen},
	StepCodeGen:      {StepAwaitingUser},
	StepAwaitingUser: {StepCodeGen, StepTerminating},
	StepTerminating:  {StepEnd},
	StepEnd:          {},
}

// CanTransition reports whether moving from one step to another is legal.
func CanTransition(from, to Step) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// --- Session state ---

// State is everything a session needs to suspend and resume. It is
// persisted as a whole on every transition.
type State struct {
	SessionID         string `json:"session_id"`
	LatestUserMessage string `json:"latest_user_message"`
	// MessageLog holds every conversation turn as raw serialized bytes,
	// append-only, in order.
	MessageLog   [][]byte `json:"message_log"`
	Scope        string   `json:"scope"`
	Architecture string   `json:"architecture"`
	Plan         string   `json:"plan"`
	Position     Step     `json:"position"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

// NewState returns the initial state for a fresh session.
func NewState(sessionID, userMessage string) *State {
	now := timeNow().UTC().Format("2006-01-02T15:04:05Z07:00")
	return &State{
		SessionID:         sessionID,
		LatestUserMessage: userMessage,
		Position:          StepScope,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Advance moves the state to a successor step, validating the
// transition.
func (s *State) Advance(to Step) error {
	if !CanTransition(s.Position, to) {
		return fmt.Errorf("illegal transition %s -> %s in session %q", s.Position, to, s.SessionID)
	}
	s.Position = to
	s.UpdatedAt = timeNow().UTC().Format("2006-01-02T15:04:05Z07:00")
	return nil
}

// AppendTurn records one conversation turn in the message log.
func (s *State) AppendTurn(raw []byte) {
	s.MessageLog = append(s.MessageLog, raw)
}
