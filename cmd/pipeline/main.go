package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

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

const (
	jobPriceCrawl       = "price-crawl"
	jobRedditCollection = "reddit-collection"
	metricsAddr         = ":9090"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logger.Info("starting gpu market intel pipeline daemon",
		slog.String("store_path", cfg.Store.Path),
		slog.String("price_crawl_schedule", cfg.Schedule.PriceCrawl),
		slog.String("reddit_collection_schedule", cfg.Schedule.RedditCollection))

	retryCfg := retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}

	db, err := store.New(cfg.Store.Path, store.WithPoolSize(cfg.Store.PoolSize), store.WithRetryConfig(retryCfg))
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	composite := store.NewComposite(db)

	priceX := priceExtractor.New(priceExtractor.WithLogger(logger), priceExtractor.WithRetryConfig(retryCfg))
	feedX := feed.New(feed.WithLogger(logger), feed.WithRetryConfig(retryCfg))

	priceA := price.New(composite, price.WithLogger(logger))
	sentimentA := sentiment.New(composite, sentiment.WithWeights(cfg.Risk.Weights))
	riskC := risk.New(composite, risk.WithThreshold(cfg.Risk.Threshold), risk.WithLogger(logger))

	p := pipeline.New(composite, priceX, feedX, priceA, sentimentA, riskC, pipeline.WithLogger(logger))

	sched := scheduler.New(scheduler.WithLogger(logger))
	if err := sched.Register(jobPriceCrawl, cfg.Schedule.PriceCrawl, func(ctx context.Context) error {
		_, err := p.RunPriceOnly(ctx)
		return err
	}); err != nil {
		logger.Error("failed to register job", slog.String("job_id", jobPriceCrawl), slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := sched.Register(jobRedditCollection, cfg.Schedule.RedditCollection, func(ctx context.Context) error {
		_, err := p.RunSignalsOnly(ctx)
		return err
	}); err != nil {
		logger.Error("failed to register job", slog.String("job_id", jobRedditCollection), slog.String("error", err.Error()))
		os.Exit(1)
	}
	sched.Start()

	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", slog.String("error", err.Error()))
	}
}
