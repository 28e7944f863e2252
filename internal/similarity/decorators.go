package similarity

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/abhisek/parasort/internal/features"
	"github.com/abhisek/parasort/internal/llm"
)

type retrying struct {
	inner Provider
	cfg   llm.RetryConfig
}

// WithRetry retries failed lookups with exponential backoff. The caller's
// Await timeout still bounds the total time spent.
func WithRetry(p Provider, cfg llm.RetryConfig) Provider {
	return &retrying{inner: p, cfg: cfg}
}

func (r *retrying) Similar(ctx context.Context, text string) ([]features.Similarity, error) {
	return llm.Retry(ctx, r.cfg, func(ctx context.Context) ([]features.Similarity, error) {
		return r.inner.Similar(ctx, text)
	})
}

type limited struct {
	inner   Provider
	limiter *rate.Limiter
}

// WithRateLimit allows at most perSecond lookups per second with the
// given burst. Waiting for a token counts against the caller's timeout.
func WithRateLimit(p Provider, perSecond float64, burst int) Provider {
	if perSecond <= 0 {
		return p
	}
	return &limited{inner: p, limiter: rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))}
}

func (l *limited) Similar(ctx context.Context, text string) ([]features.Similarity, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.Similar(ctx, text)
}
