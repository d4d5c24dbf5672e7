// Package config builds the immutable process configuration from the
// environment. The Config is constructed once at startup and passed
// explicitly to every component; nothing in the repo reads the
// environment after FromEnv returns.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Provider selects which model backend the gateway talks to.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
)

// validProviders is the set of allowed providers.
var validProviders = map[Provider]bool{
	ProviderAnthropic: true,
	ProviderOpenAI:    true,
	ProviderOllama:    true,
}

// ValidateProvider returns an error if the provider is not recognized.
func ValidateProvider(p Provider) error {
	if !validProviders[p] {
		return fmt.Errorf("invalid provider %q: must be one of: anthropic, openai, ollama", p)
	}
	return nil
}

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultProvider        = ProviderOpenAI
	DefaultPrimaryModel    = "gpt-4o-mini"
	DefaultReasonerModel   = "o3-mini"
	DefaultEmbedModel      = "text-embedding-3-small"
	DefaultOllamaHost      = "http://localhost:11434"
	DefaultMinArtifactSize = 50
	DefaultRequestTimeout  = 120 * time.Second
	DefaultMaxTokens       = 4096
)

// Config is the immutable process configuration.
type Config struct {
	// Provider backend and model identifiers.
	Provider      Provider
	PrimaryModel  string // drives CodeGen and conversational steps
	ReasonerModel string // drives Scope definition
	EmbedModel    string // embedding model for corpus similarity

	// Provider endpoints and credentials.
	APIKey         string // anthropic/openai key; unused for ollama
	BaseURL        string // optional override; ollama host when provider=ollama
	MaxTokens      int
	RequestTimeout time.Duration

	// Storage locations.
	CorpusPath    string // sqlite corpus of doc pages + tool templates
	SessionDBPath string // sqlite session store
	WorkspaceRoot string // per-session artifact directories

	// GenerateAgentFiles controls whether the discovery subflow emits
	// agents/tasks/crew artifacts alongside tool code. The flag is
	// authoritative: detected agent-building intent can enable agent-file
	// generation only when this is true; false always suppresses them.
	GenerateAgentFiles bool

	// MinArtifactSize is the minimum byte length below which a generated
	// artifact is treated as absent and regenerated or skeleton-filled.
	MinArtifactSize int

	LogLevel string // debug | info | warn | error
}

// FromEnv reads the CREWFORGE_* environment and returns a validated Config.
func FromEnv() (Config, error) {
	cfg := Config{
		Provider:           Provider(envOr("CREWFORGE_PROVIDER", string(DefaultProvider))),
		PrimaryModel:       envOr("CREWFORGE_PRIMARY_MODEL", DefaultPrimaryModel),
		ReasonerModel:      envOr("CREWFORGE_REASONER_MODEL", DefaultReasonerModel),
		EmbedModel:         envOr("CREWFORGE_EMBED_MODEL", DefaultEmbedModel),
		APIKey:             os.Getenv("CREWFORGE_API_KEY"),
		BaseURL:            os.Getenv("CREWFORGE_BASE_URL"),
		CorpusPath:         envOr("CREWFORGE_CORPUS_PATH", defaultDataPath("corpus.db")),
		SessionDBPath:      envOr("CREWFORGE_SESSION_DB", defaultDataPath("sessions.db")),
		WorkspaceRoot:      envOr("CREWFORGE_WORKSPACE", "workbench"),
		GenerateAgentFiles: envBool("CREWFORGE_GENERATE_AGENT_FILES", true),
		MinArtifactSize:    DefaultMinArtifactSize,
		MaxTokens:          DefaultMaxTokens,
		RequestTimeout:     DefaultRequestTimeout,
		LogLevel:           envOr("CREWFORGE_LOG_LEVEL", "info"),
	}

	if v := os.Getenv("CREWFORGE_MIN_ARTIFACT_SIZE"); v != "" {
		// 0 would make every empty artifact count as healthy, so it is
		// rejected along with negatives.
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid CREWFORGE_MIN_ARTIFACT_SIZE %q", v)
		}
		cfg.MinArtifactSize = n
	}
	if v := os.Getenv("CREWFORGE_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid CREWFORGE_REQUEST_TIMEOUT %q", v)
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("CREWFORGE_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid CREWFORGE_MAX_TOKENS %q", v)
		}
		cfg.MaxTokens = n
	}

	if err := ValidateProvider(cfg.Provider); err != nil {
		return Config{}, err
	}
	if cfg.Provider != ProviderOllama && cfg.APIKey == "" {
		return Config{}, fmt.Errorf("provider %s requires CREWFORGE_API_KEY", cfg.Provider)
	}
	if cfg.Provider == ProviderOllama && cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaHost
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".crewforge", name)
}
