// Package risk combines price movement and sentiment signals into a
// composite risk index and decides whether to fire an alert.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esomin/gpu-market-intel/pkg/models"
)

// DefaultThreshold is used when config doesn't override it.
const DefaultThreshold = 100.0

// HistoryStore is the slice of StorePort the calculator needs for the
// avg_7d_ago baseline.
type HistoryStore interface {
	HistoricalPrices(ctx context.Context, productID int64, from, to time.Time) ([]models.PriceObservation, error)
}

// Inputs bundles everything Evaluate needs for one product.
type Inputs struct {
	ProductID           int64
	CurrentPrice        decimal.Decimal
	NewReleaseMentions  int
	SentimentScore      float64
}

// Result is the outcome of evaluating one product.
type Result struct {
	RiskIndex   float64
	HighRisk    bool
	Alert       *models.RiskAlert
	SkipReason  string // non-empty when the product was skipped for missing inputs
}

// Factors bundles the base-formula inputs and output a ScoreAdjuster may use
// to nudge the composite risk index before the threshold check.
type Factors struct {
	ProductID          int64
	PriceDelta         float64
	NewReleaseMentions int
	SentimentScore     float64
	BaseRiskIndex      float64
}

// ScoreAdjuster is a pluggable hook run after the base
// (current_price - avg_7d_ago) + (new_release_mentions * mentionWeight)
// formula, letting a caller fold in additional signals without changing
// Calculator itself.
type ScoreAdjuster interface {
	Adjust(ctx context.Context, factors Factors) (float64, error)
}

// noopAdjuster is the default ScoreAdjuster: it passes BaseRiskIndex
// through unchanged.
type noopAdjuster struct{}

func (noopAdjuster) Adjust(_ context.Context, factors Factors) (float64, error) {
	return factors.BaseRiskIndex, nil
}

// Calculator evaluates risk = (current_price - avg_7d_ago) + (new_release_mentions * 0.3)
// and decides whether risk exceeds the configured threshold.
type Calculator struct {
	store     HistoryStore
	threshold float64
	adjuster  ScoreAdjuster
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(threshold float64) Option {
	return func(c *Calculator) { c.threshold = threshold }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calculator) { c.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// WithScoreAdjuster overrides the default no-op ScoreAdjuster.
func WithScoreAdjuster(adjuster ScoreAdjuster) Option {
	return func(c *Calculator) { c.adjuster = adjuster }
}

// New constructs a Calculator backed by store.
func New(store HistoryStore, opts ...Option) *Calculator {
	c := &Calculator{
		store:     store,
		threshold: DefaultThreshold,
		adjuster:  noopAdjuster{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// mentionWeight is the coefficient applied to new_release_mention_count in
// the composite formula.
const mentionWeight = 0.3

// Evaluate computes the risk index for in and, when it exceeds the
// configured threshold, builds the Alert to be persisted. When the 7-day
// baseline has no observations, Evaluate skips the product with a
// SkipReason rather than guessing.
func (c *Calculator) Evaluate(ctx context.Context, in Inputs) (Result, error) {
	now := c.now()
	avg, err := c.avg7dAgo(ctx, in.ProductID, now)
	if err != nil {
		return Result{}, fmt.Errorf("risk calculator: %w", err)
	}
	if avg == nil {
		c.logger.WarnContext(ctx, "skipping risk evaluation: no 7-day-ago baseline", "product_id", in.ProductID)
		return Result{SkipReason: "no-7-day-history"}, nil
	}

	priceDelta, _ := in.CurrentPrice.Sub(*avg).Float64()
	baseRiskIndex := priceDelta + float64(in.NewReleaseMentions)*mentionWeight

	riskIndex, err := c.adjuster.Adjust(ctx, Factors{
		ProductID:          in.ProductID,
		PriceDelta:         priceDelta,
		NewReleaseMentions: in.NewReleaseMentions,
		SentimentScore:     in.SentimentScore,
		BaseRiskIndex:      baseRiskIndex,
	})
	if err != nil {
		return Result{}, fmt.Errorf("risk calculator: score adjuster: %w", err)
	}

	result := Result{RiskIndex: riskIndex, HighRisk: riskIndex > c.threshold}
	if !result.HighRisk {
		return result, nil
	}

	result.Alert = &models.RiskAlert{
		ProductID: in.ProductID,
		RiskIndex: riskIndex,
		Threshold: c.threshold,
		ContributingFactors: map[string]float64{
			"price_delta":          priceDelta,
			"new_release_mentions": float64(in.NewReleaseMentions),
			"sentiment_score":      in.SentimentScore,
		},
	}
	return result, nil
}

func (c *Calculator) avg7dAgo(ctx context.Context, productID int64, now time.Time) (*decimal.Decimal, error) {
	windowStart := now.AddDate(0, 0, -8)
	windowEnd := now.AddDate(0, 0, -6)

	observations, err := c.store.HistoricalPrices(ctx, productID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("history lookup: %w", err)
	}
	if len(observations) == 0 {
		return nil, nil
	}

	sum := decimal.Zero
	for _, obs := range observations {
		sum = sum.Add(obs.Price)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(observations))))
	return &avg, nil
}
