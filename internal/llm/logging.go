package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/parasort/internal/logging"
)

// LoggingProvider records every request at debug level and failures at warn.
type LoggingProvider struct {
	inner  Provider
	logger *logging.Logger
}

// WithLogging wraps a Provider with request logging.
func WithLogging(p Provider, logger *logging.Logger) Provider {
	return &LoggingProvider{inner: p, logger: logger.Named("llm")}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)

	fields := []zap.Field{
		zap.String("model", l.inner.ModelID()),
		zap.String("purpose", PurposeFrom(ctx)),
		zap.Duration("latency", time.Since(start)),
	}
	if req.Schema != nil {
		fields = append(fields, zap.String("schema", req.Schema.Name))
	}
	if err != nil {
		l.logger.Warn(ctx, "llm request failed", append(fields, zap.Error(err))...)
		return nil, err
	}

	l.logger.Debug(ctx, "llm request",
		append(fields,
			zap.String("served_by", resp.Model),
			zap.Int("input_tokens", resp.Usage.InputTokens),
			zap.Int("output_tokens", resp.Usage.OutputTokens))...)
	return resp, nil
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// LoggingEmbedder records every embedding batch.
type LoggingEmbedder struct {
	inner  Embedder
	logger *logging.Logger
}

// WithEmbedLogging wraps an Embedder with request logging.
func WithEmbedLogging(e Embedder, logger *logging.Logger) Embedder {
	return &LoggingEmbedder{inner: e, logger: logger.Named("llm")}
}

func (l *LoggingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vecs, err := l.inner.Embed(ctx, texts)

	fields := []zap.Field{
		zap.String("model", l.inner.EmbeddingModel()),
		zap.String("purpose", PurposeFrom(ctx)),
		zap.Int("inputs", len(texts)),
		zap.Duration("latency", time.Since(start)),
	}
	if err != nil {
		l.logger.Warn(ctx, "embedding request failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	l.logger.Debug(ctx, "embedding request", fields...)
	return vecs, nil
}

func (l *LoggingEmbedder) EmbeddingModel() string {
	return l.inner.EmbeddingModel()
}
