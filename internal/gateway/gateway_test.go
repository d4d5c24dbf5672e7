package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/crewforge/crewforge/internal/config"
)

func testConfig(p config.Provider) config.Config {
	return config.Config{
		Provider:       p,
		PrimaryModel:   "test-model",
		APIKey:         "test-key",
		BaseURL:        "http://localhost:11434",
		MaxTokens:      256,
		RequestTimeout: 5 * time.Second,
	}
}

func TestNew_ProviderSelection(t *testing.T) {
	tests := []struct {
		provider config.Provider
		wantType string
	}{
		{config.ProviderAnthropic, "*gateway.anthropicClient"},
		{config.ProviderOpenAI, "*gateway.openaiClient"},
		{config.ProviderOllama, "*gateway.ollamaClient"},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			client, err := New(testConfig(tt.provider))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			switch tt.provider {
			case config.ProviderAnthropic:
				if _, ok := client.(*anthropicClient); !ok {
					t.Errorf("New() returned %T, want %s", client, tt.wantType)
				}
			case config.ProviderOpenAI:
				if _, ok := client.(*openaiClient); !ok {
					t.Errorf("New() returned %T, want %s", client, tt.wantType)
				}
			case config.ProviderOllama:
				if _, ok := client.(*ollamaClient); !ok {
					t.Errorf("New() returned %T, want %s", client, tt.wantType)
				}
			}
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(testConfig(config.Provider("bedrock")))
	if err == nil {
		t.Fatal("New() error = nil, want unsupported provider error")
	}
}

func TestNewForModel_BindsModel(t *testing.T) {
	client, err := NewForModel(testConfig(config.ProviderAnthropic), "reasoner-model")
	if err != nil {
		t.Fatalf("NewForModel() error = %v", err)
	}
	ac := client.(*anthropicClient)
	if ac.model != "reasoner-model" {
		t.Errorf("model = %q, want %q", ac.model, "reasoner-model")
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ProviderError{Provider: "ollama", Op: "complete", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}

	var perr *ProviderError
	if !errors.As(error(err), &perr) {
		t.Fatal("errors.As failed for *ProviderError")
	}
	if perr.Provider != "ollama" || perr.Op != "complete" {
		t.Errorf("ProviderError = %+v, want provider=ollama op=complete", perr)
	}
}

func TestOllamaClient_BadHost(t *testing.T) {
	cfg := testConfig(config.ProviderOllama)
	cfg.BaseURL = "://not-a-url"

	if _, err := newOllamaClient(cfg, cfg.PrimaryModel); err == nil {
		t.Fatal("newOllamaClient() error = nil, want parse error")
	}
}

func TestOllamaBuildRequest_Options(t *testing.T) {
	cfg := testConfig(config.ProviderOllama)
	c, err := newOllamaClient(cfg, "llama3")
	if err != nil {
		t.Fatalf("newOllamaClient() error = %v", err)
	}

	req := c.buildRequest(Request{
		System:  "be terse",
		Prompt:  "hello",
		History: []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hey"}},
	}, false)

	if req.Options["num_predict"] != 256 {
		t.Errorf("num_predict = %v, want 256", req.Options["num_predict"])
	}
	if got := len(req.Messages); got != 4 {
		t.Fatalf("len(Messages) = %d, want 4 (system + 2 history + prompt)", got)
	}
	if req.Messages[0].Role != "system" {
		t.Errorf("Messages[0].Role = %q, want system", req.Messages[0].Role)
	}
	if req.Messages[3].Content != "hello" {
		t.Errorf("Messages[3].Content = %q, want prompt last", req.Messages[3].Content)
	}
	if *req.Stream {
		t.Error("Stream = true, want false for Complete")
	}
}
