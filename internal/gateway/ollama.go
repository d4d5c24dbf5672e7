package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"

	"github.com/crewforge/crewforge/internal/config"
)

// ollamaClient adapts the Ollama chat API to the Client interface. Ollama
// names its generation parameters differently from the hosted providers
// (num_predict instead of a max tokens field) and passes them in a
// free-form Options map.
type ollamaClient struct {
	client    *ollama.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

func newOllamaClient(cfg config.Config, model string) (*ollamaClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", cfg.BaseURL, err)
	}

	return &ollamaClient{
		client:    ollama.NewClient(base, http.DefaultClient),
		model:     model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.RequestTimeout,
	}, nil
}

func (c *ollamaClient) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var content strings.Builder
	err := c.client.Chat(ctx, c.buildRequest(req, false), func(res ollama.ChatResponse) error {
		content.WriteString(res.Message.Content)
		return nil
	})
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Op: "complete", Err: err}
	}

	return &Response{Content: content.String(), Model: c.model}, nil
}

func (c *ollamaClient) Stream(ctx context.Context, req Request, fn StreamFunc) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.client.Chat(ctx, c.buildRequest(req, true), func(res ollama.ChatResponse) error {
		if res.Message.Content == "" {
			return nil
		}
		return fn(res.Message.Content)
	})
	if err != nil {
		return &ProviderError{Provider: "ollama", Op: "stream", Err: err}
	}
	return nil
}

func (c *ollamaClient) buildRequest(req Request, stream bool) *ollama.ChatRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]ollama.Message, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.History {
		messages = append(messages, ollama.Message{Role: string(m.Role), Content: m.Content})
	}
	if req.Prompt != "" {
		messages = append(messages, ollama.Message{Role: "user", Content: req.Prompt})
	}

	return &ollama.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"num_predict": maxTokens,
			"num_ctx":     8192,
		},
	}
}
