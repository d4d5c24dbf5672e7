package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/crewforge/crewforge/internal/assembly"
	"github.com/crewforge/crewforge/internal/discovery"
	"github.com/crewforge/crewforge/internal/gateway"
	"github.com/crewforge/crewforge/internal/progress"
	"github.com/crewforge/crewforge/internal/templates"
	"github.com/crewforge/crewforge/internal/workspace"
)

// ErrSessionBusy reports a Start or Resume against a session that is
// already mid-step. The caller retries after the active call returns.
var ErrSessionBusy = errors.New("session busy")

// SessionStateError reports a call that does not fit the session's
// persisted position: resuming an unknown session, starting a duplicate
// one, or resuming past End.
type SessionStateError struct {
	SessionID string
	Reason    string
}

func (e *SessionStateError) Error() string {
	return fmt.Sprintf("session %q: %s", e.SessionID, e.Reason)
}

// Store persists session state between turns. Load returns (nil, nil)
// for a session that was never saved.
type Store interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, st *State) error
	Delete(ctx context.Context, id string) error
}

// PageLister enumerates documentation page titles for scope grounding.
type PageLister interface {
	ListReferencePages(ctx context.Context) ([]string, error)
}

// OutcomeStatus says how a Start or Resume call ended.
type OutcomeStatus string

const (
	// OutcomeSuspended: the session is waiting for the next user turn.
	OutcomeSuspended OutcomeStatus = "suspended"
	// OutcomeCompleted: the session reached End.
	OutcomeCompleted OutcomeStatus = "completed"
)

// Outcome is the result of one engine call.
type Outcome struct {
	SessionID string
	Status    OutcomeStatus
	// Reply is the resume prompt when suspended, or the closing message
	// when completed.
	Reply string
	// Files lists workspace-relative paths written during this call.
	Files []string
}

// Deps bundles everything the engine needs.
type Deps struct {
	Store      Store
	Primary    gateway.Client
	Reasoner   gateway.Client
	Discoverer *discovery.Discoverer
	Pages      PageLister // optional; nil skips scope grounding
	Sink       workspace.Sink
	Render     templates.Renderer
	Log        *slog.Logger
}

// Engine drives sessions through the pipeline.
type Engine struct {
	deps  Deps
	locks lockRegistry
}

// New builds an Engine.
func New(deps Deps) *Engine {
	return &Engine{deps: deps, locks: lockRegistry{held: make(map[string]bool)}}
}

// lockRegistry serializes work per session id. Acquire fails fast
// instead of blocking so a concurrent caller gets ErrSessionBusy rather
// than a queue.
type lockRegistry struct {
	mu   sync.Mutex
	held map[string]bool
}

func (r *lockRegistry) acquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held[id] {
		return false
	}
	r.held[id] = true
	return true
}

func (r *lockRegistry) release(id string) {
	r.mu.Lock()
	delete(r.held, id)
	r.mu.Unlock()
}

// Start runs a fresh session through Scope, Architecture,
// ImplementationPlan and CodeGeneration, then suspends at AwaitingUser.
// Every step that needs the model degrades on failure instead of
// aborting the pipeline.
func (e *Engine) Start(ctx context.Context, sessionID, userMessage string, emit progress.Writer) (*Outcome, error) {
	if !e.locks.acquire(sessionID) {
		return nil, ErrSessionBusy
	}
	defer e.locks.release(sessionID)

	existing, err := e.deps.Store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &SessionStateError{SessionID: sessionID, Reason: "already started; use resume"}
	}

	st := NewState(sessionID, userMessage)
	e.appendTurn(st, gateway.Message{Role: gateway.RoleUser, Content: userMessage})

	// Scope.
	emit("Defining scope...\n")
	st.Scope = e.runDocStep(ctx, scopeSystem, e.scopeUserPrompt(ctx, userMessage), "Scope", userMessage, emit)
	e.writeDoc(st, "scope.md", st.Scope, emit)
	if err := e.advanceAndSave(ctx, st, StepArchitecture); err != nil {
		return nil, err
	}

	// Architecture.
	emit("Designing architecture...\n")
	st.Architecture = e.runDocStep(ctx, architectureSystem, architecturePrompt(userMessage, st.Scope), "Architecture", userMessage, emit)
	e.writeDoc(st, "architecture.md", st.Architecture, emit)
	if err := e.advanceAndSave(ctx, st, StepPlan); err != nil {
		return nil, err
	}

	// Implementation plan.
	emit("Planning implementation...\n")
	st.Plan = e.runDocStep(ctx, planSystem, planPrompt(userMessage, st.Scope, st.Architecture), "Implementation Plan", userMessage, emit)
	e.writeDoc(st, "implementation_plan.md", st.Plan, emit)
	if err := e.advanceAndSave(ctx, st, StepCodeGen); err != nil {
		return nil, err
	}

	// Code generation.
	files := e.runCodeGen(ctx, st, emit)

	return e.suspend(ctx, st, files)
}

// Resume continues a suspended session with a new user message. The
// routing decision is a single model call; anything unclear keeps the
// conversation going.
func (e *Engine) Resume(ctx context.Context, sessionID, userMessage string, emit progress.Writer) (*Outcome, error) {
	if !e.locks.acquire(sessionID) {
		return nil, ErrSessionBusy
	}
	defer e.locks.release(sessionID)

	st, err := e.deps.Store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, &SessionStateError{SessionID: sessionID, Reason: "unknown session"}
	}
	if st.Position != StepAwaitingUser {
		return nil, &SessionStateError{SessionID: sessionID, Reason: fmt.Sprintf("cannot resume at step %q", st.Position)}
	}

	st.LatestUserMessage = userMessage
	e.appendTurn(st, gateway.Message{Role: gateway.RoleUser, Content: userMessage})

	if e.route(ctx, userMessage) == "end" {
		return e.terminate(ctx, st, emit)
	}

	if err := e.advanceAndSave(ctx, st, StepCodeGen); err != nil {
		return nil, err
	}
	files := e.runCodeGen(ctx, st, emit)
	return e.suspend(ctx, st, files)
}

// Status returns the persisted state for a session, without locking.
func (e *Engine) Status(ctx context.Context, sessionID string) (*State, error) {
	st, err := e.deps.Store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, &SessionStateError{SessionID: sessionID, Reason: "unknown session"}
	}
	return st, nil
}

// --- Steps ---

// runDocStep performs one document-producing model call, degrading to
// the fallback template on provider failure.
func (e *Engine) runDocStep(ctx context.Context, system, prompt, title, request string, emit progress.Writer) string {
	client := e.deps.Primary
	if title == "Scope" {
		client = e.deps.Reasoner
	}

	resp, err := client.Complete(ctx, gateway.Request{System: system, Prompt: prompt})
	if err != nil {
		e.deps.Log.Warn("document step degraded", "step", title, "error", err)
		emit(fmt.Sprintf("Model unavailable during %s; recording a minimal document and continuing.\n", strings.ToLower(title)))
		doc, rerr := e.deps.Render.Render(templates.FallbackDoc, templates.FallbackDocData{
			Title:   title,
			Request: request,
			Notice:  fmt.Sprintf("Model unavailable while producing the %s document.", strings.ToLower(title)),
		})
		if rerr != nil {
			e.deps.Log.Error("fallback document render failed", "step", title, "error", rerr)
			return fmt.Sprintf("# %s\n\n%s\n", title, request)
		}
		return doc
	}
	return resp.Content
}

// scopeUserPrompt grounds the scope call on corpus doc pages when a
// lister is configured.
func (e *Engine) scopeUserPrompt(ctx context.Context, request string) string {
	var pages []string
	if e.deps.Pages != nil {
		var err error
		pages, err = e.deps.Pages.ListReferencePages(ctx)
		if err != nil {
			e.deps.Log.Warn("reference page listing failed", "error", err)
		}
	}
	return scopePrompt(request, pages)
}

// writeDoc persists a pipeline document into the session workspace. A
// write failure is reported and skipped; the document still lives in
// state.
func (e *Engine) writeDoc(st *State, name, content string, emit progress.Writer) {
	p := path.Join(st.SessionID, name)
	if err := e.deps.Sink.Write(p, content); err != nil {
		e.deps.Log.Error("document write failed", "path", p, "error", err)
		emit(fmt.Sprintf("Could not write %s; continuing.\n", name))
	}
}

// runCodeGen executes the discovery subflow and persists its artifacts.
// Any failure inside is degraded and reported; the step always
// completes.
func (e *Engine) runCodeGen(ctx context.Context, st *State, emit progress.Writer) []string {
	emit("Generating crew code...\n")

	res := e.deps.Discoverer.Run(ctx, st.LatestUserMessage, emit)

	names := make([]assembly.Artifact, 0, len(res.Artifacts))
	for name := range res.Artifacts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	var files []string
	for _, name := range names {
		p := path.Join(st.SessionID, string(name))
		if err := e.deps.Sink.Write(p, res.Artifacts[name]); err != nil {
			e.deps.Log.Error("artifact write failed", "path", p, "error", err)
			emit(fmt.Sprintf("Could not write %s; continuing with the remaining files.\n", name))
			continue
		}
		files = append(files, p)
	}

	emit("\nAgent creation complete! Your files are ready in the workbench folder.\n")
	return files
}

// route classifies the user's resume message as "end" or "continue".
func (e *Engine) route(ctx context.Context, message string) string {
	resp, err := e.deps.Primary.Complete(ctx, gateway.Request{System: routerSystem, Prompt: routerPrompt(message)})
	if err != nil {
		e.deps.Log.Warn("routing call failed, continuing conversation", "error", err)
		return "continue"
	}
	verdict := strings.ToLower(strings.TrimSpace(resp.Content))
	if verdict == "end" {
		return "end"
	}
	if verdict != "continue" {
		e.deps.Log.Warn("unknown routing verdict, continuing conversation", "verdict", verdict)
	}
	return "continue"
}

// suspend parks the session at AwaitingUser and hands back the resume
// prompt.
func (e *Engine) suspend(ctx context.Context, st *State, files []string) (*Outcome, error) {
	reply := resumePrompt(st.SessionID)
	e.appendTurn(st, gateway.Message{Role: gateway.RoleAssistant, Content: reply})

	if err := e.advanceAndSave(ctx, st, StepAwaitingUser); err != nil {
		return nil, err
	}

	return &Outcome{
		SessionID: st.SessionID,
		Status:    OutcomeSuspended,
		Reply:     reply,
		Files:     files,
	}, nil
}

// terminate replays the whole conversation to produce a closing message,
// streams it, and moves the session to End.
func (e *Engine) terminate(ctx context.Context, st *State, emit progress.Writer) (*Outcome, error) {
	if err := e.advanceAndSave(ctx, st, StepTerminating); err != nil {
		return nil, err
	}

	history := e.replayLog(st)

	var closing strings.Builder
	err := e.deps.Primary.Stream(ctx, gateway.Request{System: closingSystem, History: history}, func(text string) error {
		closing.WriteString(text)
		emit(text)
		return nil
	})
	if err != nil || strings.TrimSpace(closing.String()) == "" {
		if err != nil {
			e.deps.Log.Warn("closing message stream failed", "error", err)
		}
		closing.Reset()
		closing.WriteString(closingFallback)
		emit(closingFallback)
	}

	e.appendTurn(st, gateway.Message{Role: gateway.RoleAssistant, Content: closing.String()})

	if err := e.advanceAndSave(ctx, st, StepEnd); err != nil {
		return nil, err
	}

	return &Outcome{
		SessionID: st.SessionID,
		Status:    OutcomeCompleted,
		Reply:     closing.String(),
	}, nil
}

// --- Helpers ---

func (e *Engine) appendTurn(st *State, msg gateway.Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		e.deps.Log.Error("turn serialization failed", "session", st.SessionID, "error", err)
		return
	}
	st.AppendTurn(raw)
}

// replayLog decodes the message log into gateway history, skipping
// entries that no longer parse.
func (e *Engine) replayLog(st *State) []gateway.Message {
	history := make([]gateway.Message, 0, len(st.MessageLog))
	for _, raw := range st.MessageLog {
		var msg gateway.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			e.deps.Log.Warn("skipping unreadable log entry", "session", st.SessionID, "error", err)
			continue
		}
		history = append(history, msg)
	}
	return history
}

func (e *Engine) advanceAndSave(ctx context.Context, st *State, to Step) error {
	if err := st.Advance(to); err != nil {
		return err
	}
	if err := e.deps.Store.Save(ctx, st); err != nil {
		return fmt.Errorf("save session %q: %w", st.SessionID, err)
	}
	return nil
}
