package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Retry calls fn until it succeeds, returns a permanent error, or the
// attempts in cfg run out. Waits grow exponentially with ±20% jitter and
// honor a rate limit's RetryAfter. Context errors are never retried.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero           T
		lastErr        error
		invalidRetried bool
	)
	attempts := max(cfg.MaxAttempts, 1)

	for attempt := range attempts {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !retryable(err, &invalidRetried) || attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff(cfg, attempt, err)):
		}
	}
	return zero, lastErr
}

// retryable reports whether err is worth another attempt. A schema
// violation gets exactly one retry.
func retryable(err error, invalidRetried *bool) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var maxTok *ErrMaxTokensExceeded
	if errors.As(err, &maxTok) {
		return false
	}

	var invResp *ErrInvalidResponse
	if errors.As(err, &invResp) {
		if *invalidRetried {
			return false
		}
		*invalidRetried = true
		return true
	}

	// Rate limits, outages and network errors are transient.
	return true
}

func backoff(cfg RetryConfig, attempt int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	wait := float64(cfg.InitialWait) * math.Pow(mult, float64(attempt))
	if cfg.MaxWait > 0 && wait > float64(cfg.MaxWait) {
		wait = float64(cfg.MaxWait)
	}

	wait += wait * 0.2 * (2*rand.Float64() - 1)
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

// RetryProvider retries transient Generate errors.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps a Provider with retry logic.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	return Retry(ctx, r.config, func(ctx context.Context) (*Response, error) {
		return r.inner.Generate(ctx, req)
	})
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// RetryEmbedder retries transient Embed errors.
type RetryEmbedder struct {
	inner  Embedder
	config RetryConfig
}

// WithEmbedRetry wraps an Embedder with retry logic.
func WithEmbedRetry(e Embedder, cfg RetryConfig) Embedder {
	return &RetryEmbedder{inner: e, config: cfg}
}

func (r *RetryEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return Retry(ctx, r.config, func(ctx context.Context) ([][]float32, error) {
		return r.inner.Embed(ctx, texts)
	})
}

func (r *RetryEmbedder) EmbeddingModel() string {
	return r.inner.EmbeddingModel()
}
