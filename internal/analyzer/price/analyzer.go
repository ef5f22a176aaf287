// Package price computes price_change_pct for a product against its
// trailing 7-day-ago price window.
package price

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esomin/gpu-market-intel/pkg/models"
)

// HistoryStore is the slice of StorePort the analyzer needs.
type HistoryStore interface {
	HistoricalPrices(ctx context.Context, productID int64, from, to time.Time) ([]models.PriceObservation, error)
}

// ErrNonPositivePrice is returned when current price is <= 0.
var ErrNonPositivePrice = fmt.Errorf("price analyzer: current price must be greater than zero")

// Analyzer computes price_change_pct against the [now-8d, now-6d] window.
type Analyzer struct {
	store  HistoryStore
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New constructs an Analyzer backed by store.
func New(store HistoryStore, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ComputeChangePct returns (current - avg_7d_ago) / avg_7d_ago * 100,
// rounded to two decimal places, where avg_7d_ago averages observations in
// [now-8d, now-6d]. It returns nil (not an error) when that window has no
// observations — the caller must accept nulls per the data model.
func (a *Analyzer) ComputeChangePct(ctx context.Context, productID int64, current decimal.Decimal) (*decimal.Decimal, error) {
	if !current.IsPositive() {
		return nil, ErrNonPositivePrice
	}

	now := a.now()
	windowStart := now.AddDate(0, 0, -8)
	windowEnd := now.AddDate(0, 0, -6)

	observations, err := a.store.HistoricalPrices(ctx, productID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("price analyzer: history lookup: %w", err)
	}
	if len(observations) == 0 {
		a.logger.WarnContext(ctx, "no 7-day-ago history for price_change_pct",
			"product_id", productID, "window_start", windowStart, "window_end", windowEnd)
		return nil, nil
	}

	sum := decimal.Zero
	for _, obs := range observations {
		sum = sum.Add(obs.Price)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(observations))))
	if avg.IsZero() {
		a.logger.WarnContext(ctx, "avg_7d_ago is zero, cannot compute price_change_pct", "product_id", productID)
		return nil, nil
	}

	pct := current.Sub(avg).Div(avg).Mul(decimal.NewFromInt(100)).Round(2)
	return &pct, nil
}
