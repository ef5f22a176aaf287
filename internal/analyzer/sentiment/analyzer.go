// Package sentiment aggregates keyword mentions into a weighted score.
package sentiment

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// KeywordCounter is the slice of StorePort the analyzer needs.
type KeywordCounter interface {
	KeywordCounts(ctx context.Context, from, to time.Time) (map[string]int, error)
}

// DefaultWindowDays is the default aggregation window.
const DefaultWindowDays = 7

// defaultWeight applies to any keyword without an explicit weight.
const defaultWeight = 1.0

// weights maps curated keywords to their scoring weight. Matching is
// case-insensitive; callers should normalize keys through Weight.
var weights = map[string]float64{
	"new release": 3.0,
	"price drop":  2.0,
}

// Weight returns the configured weight for keyword, or defaultWeight if the
// keyword isn't in the curated table.
func Weight(keyword string) float64 {
	if w, ok := weights[strings.ToLower(keyword)]; ok {
		return w
	}
	return defaultWeight
}

// Analyzer computes Σ(count_k × w_k) over a day window.
type Analyzer struct {
	store         KeywordCounter
	windowDays    int
	now           func() time.Time
	weights       map[string]float64
	defaultWeight float64
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithWindowDays overrides the default 7-day aggregation window.
func WithWindowDays(days int) Option {
	return func(a *Analyzer) { a.windowDays = days }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithWeights overrides the curated keyword weight table, e.g. from
// Config.Risk.Weights, so the scoring weights are tunable without a
// rebuild. A "default" entry in weights, if present, replaces
// defaultWeight for any keyword not otherwise listed.
func WithWeights(weights map[string]float64) Option {
	return func(a *Analyzer) {
		if w, ok := weights["default"]; ok {
			a.defaultWeight = w
		}
		a.weights = make(map[string]float64, len(weights))
		for k, v := range weights {
			if k == "default" {
				continue
			}
			a.weights[strings.ToLower(k)] = v
		}
	}
}

// New constructs an Analyzer backed by store, defaulting to the built-in
// curated weight table unless WithWeights overrides it.
func New(store KeywordCounter, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:         store,
		windowDays:    DefaultWindowDays,
		now:           time.Now,
		weights:       weights,
		defaultWeight: defaultWeight,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// weight returns this Analyzer's configured weight for keyword, or its
// defaultWeight if the keyword isn't in the table.
func (a *Analyzer) weight(keyword string) float64 {
	if w, ok := a.weights[strings.ToLower(keyword)]; ok {
		return w
	}
	return a.defaultWeight
}

// Score aggregates mention counts over the configured window and returns
// Σ(count_k × w_k). It has no upper bound, and is idempotent: running twice
// against identical stored data yields identical scores.
func (a *Analyzer) Score(ctx context.Context) (float64, error) {
	now := a.now()
	from := now.AddDate(0, 0, -a.windowDays)

	counts, err := a.store.KeywordCounts(ctx, from, now)
	if err != nil {
		return 0, fmt.Errorf("sentiment analyzer: keyword counts: %w", err)
	}

	var score float64
	for keyword, count := range counts {
		score += float64(count) * a.weight(keyword)
	}
	return score, nil
}
