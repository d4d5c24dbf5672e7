// Package gateway is the single seam between the workflow engine and the
// model backends. Callers depend on the Client interface; which provider
// answers is decided once, at construction, from configuration.
//
// The gateway performs no retries and keeps no conversation state: every
// Request carries everything the call needs, and every failure comes back
// as a *ProviderError the caller can inspect or degrade on.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewforge/crewforge/internal/config"
)

// errEmptyEmbedding reports an embeddings response with no vectors.
var errEmptyEmbedding = errors.New("empty embedding response")

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one prior conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a self-contained model call. History carries prior turns in
// order; Prompt is the new user turn appended after them.
type Request struct {
	System    string
	Prompt    string
	History   []Message
	MaxTokens int
}

// Response is the model's reply to a Complete call.
type Response struct {
	Content string
	Model   string
}

// StreamFunc receives incremental text as the model produces it.
// Returning an error aborts the stream.
type StreamFunc func(text string) error

// Client is what the rest of the repo programs against.
type Client interface {
	// Complete performs one non-streaming model call.
	Complete(ctx context.Context, req Request) (*Response, error)
	// Stream performs one streaming model call, delivering text via fn.
	Stream(ctx context.Context, req Request, fn StreamFunc) error
}

// ProviderError wraps any failure from a model backend, including
// timeouts, with enough context to log and degrade on.
type ProviderError struct {
	Provider string // anthropic | openai | ollama
	Op       string // complete | stream | embed
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// New builds the Client for the configured provider. The returned client
// uses cfg.PrimaryModel; callers that need the reasoner model construct a
// second client via NewForModel.
func New(cfg config.Config) (Client, error) {
	return NewForModel(cfg, cfg.PrimaryModel)
}

// NewForModel builds a Client bound to a specific model id, keeping every
// other setting from cfg.
func NewForModel(cfg config.Config, model string) (Client, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return newAnthropicClient(cfg, model), nil
	case config.ProviderOpenAI:
		return newOpenAIClient(cfg, model), nil
	case config.ProviderOllama:
		return newOllamaClient(cfg, model)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
