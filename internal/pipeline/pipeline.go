// Package pipeline orchestrates one end-to-end extract/normalize/load/
// analyze pass over the GPU market data.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esomin/gpu-market-intel/internal/analyzer/risk"
	"github.com/esomin/gpu-market-intel/internal/analyzer/sentiment"
	"github.com/esomin/gpu-market-intel/internal/metrics"
	"github.com/esomin/gpu-market-intel/internal/normalizer"
	"github.com/esomin/gpu-market-intel/internal/store"
	"github.com/esomin/gpu-market-intel/pkg/models"
)

// PriceExtractor is the slice of C3 the pipeline needs.
type PriceExtractor interface {
	ExtractChipset(ctx context.Context, chipset models.Chipset) ([]models.RawPriceRecord, error)
}

// FeedExtractor is the slice of C4 the pipeline needs.
type FeedExtractor interface {
	ExtractAll(ctx context.Context) ([]models.MarketSignal, error)
}

// PriceAnalyzer is the slice of C6 the pipeline needs.
type PriceAnalyzer interface {
	ComputeChangePct(ctx context.Context, productID int64, current decimal.Decimal) (*decimal.Decimal, error)
}

// SentimentAnalyzer is the slice of C7 the pipeline needs.
type SentimentAnalyzer interface {
	Score(ctx context.Context) (float64, error)
}

// RiskCalculator is the slice of C8 the pipeline needs.
type RiskCalculator interface {
	Evaluate(ctx context.Context, in risk.Inputs) (risk.Result, error)
}

// Phase names the pipeline's linear state machine.
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseExtract   Phase = "extract"
	PhaseTransform Phase = "transform"
	PhaseLoad      Phase = "load"
	PhaseAnalyze   Phase = "analyze"
	PhaseDone      Phase = "done"
)

// Stats is returned by every run invocation for the caller to log.
type Stats struct {
	ProductsUpserted int
	PricesInserted   int
	SignalsInserted  int
	AlertsFired      int
	Errors           []string
	Duration         time.Duration
	Success          bool
	FinalPhase       Phase

	fatal bool
}

func (s *Stats) recordError(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// recordStoreError records a per-record error like recordError, but also
// marks the run fatal when err is an unrecoverable store unavailability
// (the Retryer exhausted every attempt) — the one condition that flips
// Stats.Success to false rather than just accumulating a per-record error.
func (s *Stats) recordStoreError(err error, format string, args ...any) {
	s.recordError(format, args...)
	if errors.Is(err, store.ErrStoreUnavailable) {
		s.fatal = true
	}
}

// ErrAlreadyRunning is returned (and logged) when a second invocation
// overlaps with one already in flight.
var ErrAlreadyRunning = fmt.Errorf("pipeline: a run is already in progress")

// Pipeline wires the extractors, normalizer, analyzers, and store together.
type Pipeline struct {
	store      store.Store
	prices     PriceExtractor
	feeds      FeedExtractor
	priceA     PriceAnalyzer
	sentimentA SentimentAnalyzer
	riskC      RiskCalculator
	logger     *slog.Logger
	chipsets   []models.Chipset

	mu      sync.Mutex
	running bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithChipsets overrides the closed chipset set a price run iterates.
func WithChipsets(chipsets ...models.Chipset) Option {
	return func(p *Pipeline) { p.chipsets = chipsets }
}

// New constructs a Pipeline.
func New(
	s store.Store,
	prices PriceExtractor,
	feeds FeedExtractor,
	priceA PriceAnalyzer,
	sentimentA SentimentAnalyzer,
	riskC RiskCalculator,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		store:      s,
		prices:     prices,
		feeds:      feeds,
		priceA:     priceA,
		sentimentA: sentimentA,
		riskC:      riskC,
		logger:     slog.Default(),
		chipsets:   models.ValidChipsets,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsRunning reports whether a run is currently in flight.
func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// tryAcquire claims the single-flight slot, returning false if a run is
// already in progress.
func (p *Pipeline) tryAcquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	p.running = true
	return true
}

func (p *Pipeline) release() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

// RunPriceOnly extracts prices for every configured chipset, normalizes
// them, upserts products, computes price_change_pct, and inserts the price
// observations.
func (p *Pipeline) RunPriceOnly(ctx context.Context) (*Stats, error) {
	if !p.tryAcquire() {
		p.logger.WarnContext(ctx, "pipeline run skipped: already in progress")
		return nil, ErrAlreadyRunning
	}
	defer p.release()

	start := time.Now()
	stats := &Stats{FinalPhase: PhaseInit}
	p.runPriceOnlyLocked(ctx, stats)
	stats.Duration = time.Since(start)
	stats.Success = !stats.fatal
	stats.FinalPhase = PhaseDone
	metrics.RecordPipelineRun("price", string(stats.FinalPhase), stats.Duration)
	return stats, nil
}

func (p *Pipeline) runPriceOnlyLocked(ctx context.Context, stats *Stats) {
	stats.FinalPhase = PhaseExtract
	for _, chipset := range p.chipsets {
		extractStart := time.Now()
		records, err := p.prices.ExtractChipset(ctx, chipset)
		if err != nil {
			p.logger.ErrorContext(ctx, "price extraction failed", "chipset", chipset, "error", err)
			stats.recordError("extract[%s]: %v", chipset, err)
			metrics.RecordExtraction("danawa", "error", time.Since(extractStart))
			metrics.RecordExtractionError("danawa")
			continue
		}
		metrics.RecordExtraction("danawa", "success", time.Since(extractStart))
		metrics.RecordRecordsExtracted("danawa", len(records))

		stats.FinalPhase = PhaseTransform
		for _, record := range records {
			identity, err := normalizer.Normalize(record.RawProductName)
			if err != nil {
				p.logger.WarnContext(ctx, "normalization rejected record", "raw_name", record.RawProductName, "error", err)
				stats.recordError("normalize[%s]: %v", record.RawProductName, err)
				metrics.RecordNormalizationRejection(normalizer.ReasonOf(err))
				continue
			}

			productID, err := p.store.UpsertProduct(ctx, identity)
			if err != nil {
				p.logger.ErrorContext(ctx, "upsert product failed", "identity", identity, "error", err)
				stats.recordStoreError(err, "upsert-product[%s]: %v", identity.ModelName, err)
				continue
			}
			stats.ProductsUpserted++
			metrics.ProductsUpserted.Inc()

			stats.FinalPhase = PhaseLoad
			pct, err := p.priceA.ComputeChangePct(ctx, productID, record.Price)
			if err != nil {
				p.logger.WarnContext(ctx, "price_change_pct computation failed", "product_id", productID, "error", err)
				stats.recordError("price-change[%d]: %v", productID, err)
			}

			err = p.store.InsertPrice(ctx, models.PriceObservation{
				ProductID:      productID,
				Price:          record.Price,
				Source:         record.Source,
				SourceURL:      record.SourceURL,
				RecordedAt:     record.RecordedAt,
				PriceChangePct: pct,
			})
			if err != nil {
				p.logger.ErrorContext(ctx, "insert price failed", "product_id", productID, "error", err)
				stats.recordStoreError(err, "insert-price[%d]: %v", productID, err)
				continue
			}
			stats.PricesInserted++
			metrics.PricesInserted.Inc()
		}
	}
}

// RunSignalsOnly extracts every configured subreddit feed and inserts the
// matched market signals.
func (p *Pipeline) RunSignalsOnly(ctx context.Context) (*Stats, error) {
	if !p.tryAcquire() {
		p.logger.WarnContext(ctx, "pipeline run skipped: already in progress")
		return nil, ErrAlreadyRunning
	}
	defer p.release()

	start := time.Now()
	stats := &Stats{FinalPhase: PhaseInit}
	p.runSignalsOnlyLocked(ctx, stats)
	stats.Duration = time.Since(start)
	stats.Success = !stats.fatal
	stats.FinalPhase = PhaseDone
	metrics.RecordPipelineRun("signals", string(stats.FinalPhase), stats.Duration)
	return stats, nil
}

func (p *Pipeline) runSignalsOnlyLocked(ctx context.Context, stats *Stats) {
	stats.FinalPhase = PhaseExtract
	extractStart := time.Now()
	signals, err := p.feeds.ExtractAll(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "feed extraction failed", "error", err)
		stats.recordError("extract-feeds: %v", err)
		metrics.RecordExtraction("reddit", "error", time.Since(extractStart))
		return
	}
	metrics.RecordExtraction("reddit", "success", time.Since(extractStart))
	metrics.RecordRecordsExtracted("reddit", len(signals))

	stats.FinalPhase = PhaseLoad
	for _, signal := range signals {
		if err := p.store.InsertSignal(ctx, signal); err != nil {
			p.logger.ErrorContext(ctx, "insert signal failed", "keyword", signal.Keyword, "post_url", signal.PostURL, "error", err)
			stats.recordStoreError(err, "insert-signal[%s]: %v", signal.Keyword, err)
			continue
		}
		stats.SignalsInserted++
		metrics.SignalsInserted.Inc()
	}
}

// RunFull runs RunPriceOnly then RunSignalsOnly, then for every known
// product computes sentiment + risk and conditionally inserts an alert.
// Analysis always runs even if extraction phases logged errors — a partial
// price/signal ingest still leaves useful analyzable state.
func (p *Pipeline) RunFull(ctx context.Context) (*Stats, error) {
	if !p.tryAcquire() {
		p.logger.WarnContext(ctx, "pipeline run skipped: already in progress")
		return nil, ErrAlreadyRunning
	}
	defer p.release()

	start := time.Now()
	stats := &Stats{FinalPhase: PhaseInit}

	p.runPriceOnlyLocked(ctx, stats)
	p.runSignalsOnlyLocked(ctx, stats)

	stats.FinalPhase = PhaseAnalyze
	p.runAnalysis(ctx, stats)

	stats.Duration = time.Since(start)
	stats.Success = !stats.fatal
	stats.FinalPhase = PhaseDone
	metrics.RecordPipelineRun("full", string(stats.FinalPhase), stats.Duration)
	return stats, nil
}

// newReleaseWindowDays mirrors the sentiment analyzer's default aggregation
// window, so "new release" mentions feeding the risk formula cover the same
// period as the sentiment score itself.
const newReleaseWindowDays = 7

func (p *Pipeline) runAnalysis(ctx context.Context, stats *Stats) {
	sentimentScore, err := p.sentimentA.Score(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "sentiment analysis failed", "error", err)
		stats.recordError("sentiment: %v", err)
		return
	}

	newReleaseMentions, err := p.newReleaseMentionCount(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "new-release mention count failed", "error", err)
		stats.recordStoreError(err, "new-release-mentions: %v", err)
		return
	}

	products, err := p.listProducts(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "product listing for analysis failed", "error", err)
		stats.recordStoreError(err, "list-products: %v", err)
		return
	}

	for _, productID := range products {
		currentPrice, err := p.store.LatestPrice(ctx, productID)
		if err != nil {
			p.logger.ErrorContext(ctx, "latest price lookup failed", "product_id", productID, "error", err)
			stats.recordStoreError(err, "latest-price[%d]: %v", productID, err)
			continue
		}
		if currentPrice == nil {
			continue
		}

		result, err := p.riskC.Evaluate(ctx, risk.Inputs{
			ProductID:          productID,
			CurrentPrice:       *currentPrice,
			NewReleaseMentions: newReleaseMentions,
			SentimentScore:     sentimentScore,
		})
		if err != nil {
			p.logger.ErrorContext(ctx, "risk evaluation failed", "product_id", productID, "error", err)
			stats.recordError("risk[%d]: %v", productID, err)
			continue
		}
		if result.SkipReason != "" {
			continue
		}
		metrics.RecordRiskIndex(fmt.Sprintf("%d", productID), result.RiskIndex)
		if !result.HighRisk {
			continue
		}

		if _, err := p.store.InsertAlert(ctx, *result.Alert); err != nil {
			p.logger.ErrorContext(ctx, "insert alert failed", "product_id", productID, "error", err)
			stats.recordStoreError(err, "insert-alert[%d]: %v", productID, err)
			continue
		}
		stats.AlertsFired++
		metrics.AlertsFired.Inc()
	}
}

// newReleaseMentionCount sums the "new release" keyword count across the
// trailing newReleaseWindowDays, the sitewide signal the risk formula's
// mention term is anchored to.
func (p *Pipeline) newReleaseMentionCount(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	counts, err := p.store.KeywordCounts(ctx, now.AddDate(0, 0, -newReleaseWindowDays), now)
	if err != nil {
		return 0, err
	}
	return counts["new release"], nil
}

func (p *Pipeline) listProducts(ctx context.Context) ([]int64, error) {
	products, err := p.store.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(products))
	for i, prod := range products {
		ids[i] = prod.ID
	}
	return ids, nil
}
