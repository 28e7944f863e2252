package llm

import (
	"fmt"
	"os"
	"time"
)

// Config selects and configures the model providers. It is loaded as the
// "llm" section of the application config.
type Config struct {
	// Provider serves Generate: "anthropic", "openai", "gemini" or "mock".
	Provider string `koanf:"provider"`
	// Embedder serves Embed: "openai", "gemini" or "mock". Empty reuses
	// Provider when that provider can embed.
	Embedder string `koanf:"embedder"`

	Anthropic AnthropicConfig `koanf:"anthropic"`
	OpenAI    OpenAIConfig    `koanf:"openai"`
	Gemini    GeminiConfig    `koanf:"gemini"`
	Retry     RetryConfig     `koanf:"retry"`

	// MockDims is the vector size of the mock embedder.
	MockDims int `koanf:"mock_dims"`
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
}

// OpenAIConfig holds OpenAI-specific configuration.
type OpenAIConfig struct {
	APIKey         string `koanf:"api_key"`
	Model          string `koanf:"model"`
	EmbeddingModel string `koanf:"embedding_model"`
	BaseURL        string `koanf:"base_url"` // OpenAI-compatible endpoints
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey         string `koanf:"api_key"`
	Model          string `koanf:"model"`
	EmbeddingModel string `koanf:"embedding_model"`
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	InitialWait time.Duration `koanf:"initial_wait"`
	MaxWait     time.Duration `koanf:"max_wait"`
	Multiplier  float64       `koanf:"multiplier"`
}

// DefaultConfig returns the offline configuration: mock providers only.
func DefaultConfig() Config {
	return Config{
		Provider:  "mock",
		Anthropic: AnthropicConfig{Model: "claude-haiku"},
		OpenAI:    OpenAIConfig{Model: "gpt-4o-mini"},
		Gemini:    GeminiConfig{Model: "gemini-flash"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 200 * time.Millisecond,
			MaxWait:     2 * time.Second,
			Multiplier:  2.0,
		},
		MockDims: 64,
	}
}

// WithDiscoveredKeys fills empty API keys from the providers' standard
// environment variables.
func (c Config) WithDiscoveredKeys() Config {
	if c.Anthropic.APIKey == "" {
		c.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	return c
}

// EmbedderName resolves which provider serves embeddings.
func (c Config) EmbedderName() string {
	if c.Embedder != "" {
		return c.Embedder
	}
	if c.Provider == "anthropic" {
		return "mock"
	}
	return c.Provider
}

// Validate checks that the selected providers have their API keys set.
func (c Config) Validate() error {
	if err := c.requireKey(c.Provider); err != nil {
		return err
	}
	switch name := c.EmbedderName(); name {
	case "anthropic":
		return fmt.Errorf("anthropic does not provide embeddings")
	default:
		return c.requireKey(name)
	}
}

func (c Config) requireKey(provider string) error {
	switch provider {
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("llm.anthropic.api_key is required for the anthropic provider")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("llm.openai.api_key is required for the openai provider")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("llm.gemini.api_key is required for the gemini provider")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown LLM provider: %q", provider)
	}
	return nil
}
