package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/esomin/gpu-market-intel/internal/analyzer/price"
	"github.com/esomin/gpu-market-intel/internal/analyzer/risk"
	"github.com/esomin/gpu-market-intel/internal/analyzer/sentiment"
	"github.com/esomin/gpu-market-intel/internal/config"
	"github.com/esomin/gpu-market-intel/internal/extractor/feed"
	priceExtractor "github.com/esomin/gpu-market-intel/internal/extractor/price"
	"github.com/esomin/gpu-market-intel/internal/logging"
	"github.com/esomin/gpu-market-intel/internal/pipeline"
	"github.com/esomin/gpu-market-intel/internal/retry"
	"github.com/esomin/gpu-market-intel/internal/scheduler"
	"github.com/esomin/gpu-market-intel/internal/store"
)

// app bundles every wired component a CLI command might need, plus Close
// to release the database handle.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *store.DB
	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler
}

func (a *app) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// wireApp loads configuration and constructs every component the CLI needs,
// mirroring the daemon's own wiring in cmd/pipeline.
func wireApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.Setup(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	retryCfg := retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}

	db, err := store.New(cfg.Store.Path, store.WithPoolSize(cfg.Store.PoolSize), store.WithRetryConfig(retryCfg))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Migrate(context.TODO()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	composite := store.NewComposite(db)

	priceX := priceExtractor.New(
		priceExtractor.WithLogger(logger),
		priceExtractor.WithRetryConfig(retryCfg),
	)
	feedX := feed.New(
		feed.WithLogger(logger),
		feed.WithRetryConfig(retryCfg),
	)

	priceA := price.New(composite, price.WithLogger(logger))
	sentimentA := sentiment.New(composite, sentiment.WithWeights(cfg.Risk.Weights))
	riskC := risk.New(composite, risk.WithThreshold(cfg.Risk.Threshold), risk.WithLogger(logger))

	p := pipeline.New(composite, priceX, feedX, priceA, sentimentA, riskC, pipeline.WithLogger(logger))

	sched := scheduler.New(scheduler.WithLogger(logger))

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		pipeline:  p,
		scheduler: sched,
	}, nil
}
