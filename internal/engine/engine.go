// Package engine runs the classification pipeline: feature extraction,
// rule scoring, the category decision, PARA mapping and tagging, with an
// optional bounded wait on the semantic-similarity signal.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/parasort/internal/classify"
	"github.com/abhisek/parasort/internal/config"
	"github.com/abhisek/parasort/internal/features"
	"github.com/abhisek/parasort/internal/logging"
	"github.com/abhisek/parasort/internal/metrics"
	"github.com/abhisek/parasort/internal/para"
	"github.com/abhisek/parasort/internal/rules"
	"github.com/abhisek/parasort/internal/similarity"
	"github.com/abhisek/parasort/internal/tags"
)

// Learner is the part of the learning store the engine depends on.
type Learner interface {
	Weights() *rules.Weights
	UseConfig(cfg *rules.Config)
	RecordClassification(ctx context.Context, res *classify.Result) error
}

// Pipeline is one immutable set of compiled tables. The engine swaps
// whole pipelines; a classification reads exactly one.
type Pipeline struct {
	Rules       *rules.Config
	Classifier  *classify.Classifier
	Table       *para.Table
	Tags        *tags.Extractor
	UserContext para.UserContext

	// Similarity is optional. When set, lookups wait at most
	// SimilarityTimeout before classification proceeds without them.
	Similarity        similarity.Provider
	SimilarityTimeout time.Duration
}

// NewPipeline assembles a pipeline from a compiled configuration.
func NewPipeline(c *config.Compiled, sim similarity.Provider, timeout time.Duration) *Pipeline {
	return &Pipeline{
		Rules:             c.Rules,
		Classifier:        c.Classifier,
		Table:             c.Table,
		Tags:              c.Tags,
		UserContext:       c.UserContext,
		Similarity:        sim,
		SimilarityTimeout: timeout,
	}
}

func (p *Pipeline) validate() error {
	switch {
	case p == nil:
		return &rules.ConfigurationError{Reason: "pipeline is nil"}
	case p.Rules == nil:
		return &rules.ConfigurationError{Reason: "pipeline has no rule table"}
	case p.Classifier == nil:
		return &rules.ConfigurationError{Reason: "pipeline has no classifier"}
	case p.Table == nil:
		return &rules.ConfigurationError{Reason: "pipeline has no mapping table"}
	case p.Tags == nil:
		return &rules.ConfigurationError{Reason: "pipeline has no tag extractor"}
	}
	return nil
}

// Engine classifies notes. It is safe for concurrent use.
type Engine struct {
	pipeline atomic.Pointer[Pipeline]

	learner Learner
	metrics *metrics.Recorder
	logger  *logging.Logger
	now     func() time.Time
	newID   func() string
	workers int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLearner supplies the weights source and result history. Without
// one, the engine scores with configured weights only and keeps no history.
func WithLearner(l Learner) Option {
	return func(e *Engine) { e.learner = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDs overrides result ID generation.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithWorkers bounds ClassifyAll parallelism.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// New creates an Engine running p.
func New(p *Pipeline, opts ...Option) (*Engine, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		logger:  logging.NewNop(),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		workers: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	e.logger = e.logger.Named("engine")
	e.pipeline.Store(p)
	if e.learner != nil {
		e.learner.UseConfig(p.Rules)
	}
	return e, nil
}

// Pipeline returns the pipeline currently in effect.
func (e *Engine) Pipeline() *Pipeline {
	return e.pipeline.Load()
}

// Reload swaps in p. Classifications already running finish on the
// pipeline they started with.
func (e *Engine) Reload(ctx context.Context, p *Pipeline) error {
	if err := p.validate(); err != nil {
		return err
	}
	prev := e.pipeline.Swap(p)
	if e.learner != nil {
		e.learner.UseConfig(p.Rules)
	}
	e.logger.Info(ctx, "configuration reloaded",
		zap.Strings("categories", p.Rules.Categories()),
		zap.Bool("similarity", p.Similarity != nil),
		zap.Bool("replaced", prev != nil))
	return nil
}

func (e *Engine) weights() *rules.Weights {
	if e.learner == nil {
		return rules.EmptyWeights()
	}
	if w := e.learner.Weights(); w != nil {
		return w
	}
	return rules.EmptyWeights()
}

// Classify runs the pipeline on one note and records the result. It
// fails only on malformed input, cancellation or a history write error;
// a missing semantic signal marks the result instead.
func (e *Engine) Classify(ctx context.Context, note features.Note) (*classify.Result, error) {
	return e.classify(ctx, note)
}

func (e *Engine) classify(ctx context.Context, note features.Note) (*classify.Result, error) {
	start := e.now()
	p := e.pipeline.Load()
	w := e.weights()
	ctx = logging.WithNoteID(ctx, note.ID)

	text := note.Text()
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("classify %s: %w", note.ID, features.ErrMalformedText)
	}

	var opts []features.Option
	if p.Similarity != nil {
		pending := similarity.Lookup(ctx, p.Similarity, text)
		scores, err := pending.Await(ctx, p.SimilarityTimeout)
		var warn *similarity.DegradedSignalWarning
		switch {
		case err == nil:
			opts = append(opts, features.WithSimilarity(scores))
		case errors.As(err, &warn):
			e.logger.Warn(ctx, "classifying without semantic signal",
				zap.String("reason", warn.Reason), zap.Error(warn.Err))
			e.metrics.Degraded(warn.Reason)
			opts = append(opts, features.WithoutSemanticSignal())
		default:
			return nil, fmt.Errorf("classify %s: %w", note.ID, err)
		}
	}

	fs, err := features.Extract(text, note.Metadata, opts...)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", note.ID, err)
	}

	score := rules.Score(fs, p.Rules, w)
	res := p.Classifier.Classify(score)
	dest := p.Table.Map(res.Category, fs, p.UserContext)

	res.ID = e.newID()
	res.NoteID = note.ID
	res.Bucket = string(dest.Bucket)
	res.FolderHint = dest.Folder
	res.TemplateHint = dest.Template
	res.Project = dest.Project
	res.WeightsVersion = w.Version()
	res.WithoutSemanticSignal = fs.SemanticUnavailable
	res.ClassifiedAt = e.now().UTC()
	res.Tags = p.Tags.Extract(fs, res)

	if e.learner != nil {
		if err := e.learner.RecordClassification(ctx, res); err != nil {
			return nil, fmt.Errorf("classify %s: %w", note.ID, err)
		}
	}

	took := e.now().Sub(start)
	e.metrics.ObserveClassification(res.Category, res.FellBack, res.WeightsVersion, took)
	e.logger.Debug(ctx, "classified",
		zap.String("result_id", res.ID),
		zap.String("category", res.Category),
		zap.String("raw_category", res.RawCategory),
		zap.Float64("confidence", res.Confidence),
		zap.Bool("fell_back", res.FellBack),
		zap.String("bucket", res.Bucket),
		zap.Int64("weights_version", res.WeightsVersion),
		zap.Duration("took", took))
	return res, nil
}
