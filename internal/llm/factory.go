package llm

import (
	"context"
	"fmt"

	"github.com/abhisek/parasort/internal/logging"
)

// NewProvider creates the configured Provider wrapped with retry and
// logging: caller → retry → logging → base.
func NewProvider(ctx context.Context, cfg Config, logger *logging.Logger) (Provider, error) {
	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	return WithRetry(WithLogging(base, logger), cfg.Retry), nil
}

// NewEmbedder creates the configured Embedder with the same middleware.
func NewEmbedder(ctx context.Context, cfg Config, logger *logging.Logger) (Embedder, error) {
	var (
		base Embedder
		err  error
	)
	name := cfg.EmbedderName()
	switch name {
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "mock":
		return NewMockEmbedder(cfg.MockDims), nil
	default:
		return nil, fmt.Errorf("no embedder for provider %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s embedder: %w", name, err)
	}

	return WithEmbedRetry(WithEmbedLogging(base, logger), cfg.Retry), nil
}
