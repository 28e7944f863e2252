package similarity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/parasort/internal/llm"
	"github.com/abhisek/parasort/internal/logging"
)

// Provider kinds.
const (
	KindNone  = "none"
	KindIndex = "index"
	KindJudge = "judge"
)

// Config is the "similarity" section of the application config.
type Config struct {
	Provider string        `koanf:"provider"`
	Timeout  time.Duration `koanf:"timeout"`
	// Threshold is the minimum score at which an exemplar rule fires.
	Threshold float64 `koanf:"threshold"`
	// Bonus is the rule weight of every exemplar glob.
	Bonus float64 `koanf:"bonus"`
	// Neighbors caps how many exemplars an index lookup returns.
	Neighbors int             `koanf:"neighbors"`
	Rate      float64         `koanf:"rate"`
	Burst     int             `koanf:"burst"`
	Retry     llm.RetryConfig `koanf:"retry"`

	Exemplars     []Exemplar `koanf:"exemplars"`
	ExemplarsFile string     `koanf:"exemplars_file"`
}

// DefaultConfig returns the stock settings. The semantic signal is off
// until a provider is chosen.
func DefaultConfig() Config {
	return Config{
		Provider:  KindNone,
		Timeout:   2 * time.Second,
		Threshold: 0.75,
		Bonus:     2.0,
		Neighbors: 5,
		Rate:      5,
		Burst:     5,
		Retry: llm.RetryConfig{
			MaxAttempts: 3,
			InitialWait: 100 * time.Millisecond,
			MaxWait:     time.Second,
			Multiplier:  2.0,
		},
	}
}

// New builds the configured provider with retry and rate limiting.
// It returns nil for KindNone.
func New(ctx context.Context, cfg Config, llmCfg llm.Config, logger *logging.Logger) (Provider, error) {
	exemplars := cfg.Exemplars
	if cfg.ExemplarsFile != "" {
		fromFile, err := LoadExemplars(cfg.ExemplarsFile)
		if err != nil {
			return nil, err
		}
		exemplars = append(append([]Exemplar(nil), exemplars...), fromFile...)
	}

	// Retries are applied once, around the whole lookup.
	llmCfg.Retry = llm.RetryConfig{MaxAttempts: 1}

	var base Provider
	switch cfg.Provider {
	case KindNone, "":
		return nil, nil
	case KindIndex:
		if llmCfg.EmbedderName() == "mock" && llmCfg.Provider != "mock" && logger != nil {
			logger.Warn(ctx, "no embedding provider configured, using the offline mock embedder",
				zap.String("llm_provider", llmCfg.Provider))
		}
		embedder, err := llm.NewEmbedder(ctx, llmCfg, logger)
		if err != nil {
			return nil, err
		}
		idx, err := NewIndex(ctx, embedder, exemplars, cfg.Neighbors)
		if err != nil {
			return nil, err
		}
		base = idx
	case KindJudge:
		p, err := llm.NewProvider(ctx, llmCfg, logger)
		if err != nil {
			return nil, err
		}
		j, err := NewJudge(p, exemplars)
		if err != nil {
			return nil, err
		}
		base = j
	default:
		return nil, fmt.Errorf("unknown similarity provider %q", cfg.Provider)
	}

	return WithRateLimit(WithRetry(base, cfg.Retry), cfg.Rate, cfg.Burst), nil
}
