package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/parasort/internal/classify"
	"github.com/abhisek/parasort/internal/config"
	"github.com/abhisek/parasort/internal/engine"
	"github.com/abhisek/parasort/internal/learning"
	"github.com/abhisek/parasort/internal/logging"
	"github.com/abhisek/parasort/internal/metrics"
	"github.com/abhisek/parasort/internal/similarity"
	"github.com/abhisek/parasort/internal/store"
)

// deps holds everything a command may need. Fields are filled by
// openDeps according to what the command asks for.
type deps struct {
	configPath string
	cfg        *config.Config
	compiled   *config.Compiled
	logger     *logging.Logger
	store      *store.Store
	learning   *learning.Store
	metrics    *metrics.Recorder
	engine     *engine.Engine
}

// loadConfig reads --config and applies --log-level.
func loadConfig(cmd *cobra.Command) (string, *config.Config, *config.Compiled, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return "", nil, nil, fmt.Errorf("load config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	compiled, err := cfg.Compile()
	if err != nil {
		return "", nil, nil, fmt.Errorf("compile config: %w", err)
	}
	if path == "" {
		path = config.DefaultPath()
	}
	return path, cfg, compiled, nil
}

// openDeps loads the configuration, opens the store and the learning
// store and, when withEngine is set, builds the engine.
func openDeps(cmd *cobra.Command, withEngine bool) (*deps, error) {
	ctx := cmd.Context()
	path, cfg, compiled, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	d := &deps{configPath: path, cfg: cfg, compiled: compiled, logger: logger, metrics: metrics.New()}

	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	d.store, err = store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d.learning, err = learning.New(ctx, learning.ReposFrom(d.store), compiled.Rules, compiled.Learning,
		learning.WithLogger(logger))
	if err != nil {
		d.close()
		return nil, fmt.Errorf("open learning store: %w", err)
	}

	if !withEngine {
		return d, nil
	}
	p := d.pipeline(ctx, cfg, compiled)
	var learner engine.Learner = d.learning
	if !cfg.Engine.PersistHistory {
		learner = weightsOnly{d.learning}
	}
	d.engine, err = engine.New(p,
		engine.WithLearner(learner),
		engine.WithMetrics(d.metrics),
		engine.WithLogger(logger),
		engine.WithWorkers(cfg.Engine.Workers))
	if err != nil {
		d.close()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	logger.Debug(ctx, "engine ready",
		zap.String("db", dbPath),
		zap.Int64("weights_version", d.learning.Weights().Version()),
		zap.Bool("similarity", p.Similarity != nil))
	return d, nil
}

// pipeline builds an engine pipeline, including the similarity provider
// when one is configured. A provider that cannot be built is logged and
// classification continues on rules alone.
func (d *deps) pipeline(ctx context.Context, cfg *config.Config, compiled *config.Compiled) *engine.Pipeline {
	sim, err := similarity.New(ctx, cfg.Similarity, cfg.LLM, d.logger)
	if err != nil {
		d.logger.Warn(ctx, "similarity provider unavailable", zap.Error(err))
		fmt.Fprintln(os.Stderr, "similarity provider unavailable:", err)
		sim = nil
	}
	return engine.NewPipeline(compiled, sim, cfg.Similarity.Timeout)
}

// reload applies an edited configuration to a running engine. Learning
// parameters are swapped first so a rejected pipeline leaves both halves
// on the previous configuration.
func (d *deps) reload(ctx context.Context, cfg *config.Config, compiled *config.Compiled) error {
	prev := d.learning.Params()
	if err := d.learning.UseParams(compiled.Learning); err != nil {
		return err
	}
	if err := d.engine.Reload(ctx, d.pipeline(ctx, cfg, compiled)); err != nil {
		_ = d.learning.UseParams(prev)
		return err
	}
	return nil
}

func (d *deps) close() {
	if d.store != nil {
		d.store.Close()
	}
	if d.logger != nil {
		_ = d.logger.Sync()
	}
}

// weightsOnly serves learned weights without recording results.
type weightsOnly struct {
	*learning.Store
}

func (weightsOnly) RecordClassification(context.Context, *classify.Result) error {
	return nil
}
