package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esomin/gpu-market-intel/internal/analyzer/risk"
	"github.com/esomin/gpu-market-intel/pkg/models"
)

type fakeStore struct {
	mu        sync.Mutex
	products  []*models.Product
	nextID    int64
	prices    []models.PriceObservation
	signals   []models.MarketSignal
	alerts    []models.RiskAlert
	failPrice bool
}

func (f *fakeStore) UpsertProduct(ctx context.Context, identity models.ProductIdentity) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.products = append(f.products, &models.Product{ID: f.nextID, Brand: identity.Brand, ModelName: identity.ModelName, Chipset: identity.Chipset})
	return f.nextID, nil
}

func (f *fakeStore) InsertPrice(ctx context.Context, obs models.PriceObservation) error {
	if f.failPrice {
		return errors.New("store unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = append(f.prices, obs)
	return nil
}

func (f *fakeStore) InsertSignal(ctx context.Context, signal models.MarketSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signal)
	return nil
}

func (f *fakeStore) InsertAlert(ctx context.Context, alert models.RiskAlert) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return int64(len(f.alerts)), nil
}

func (f *fakeStore) HistoricalPrices(ctx context.Context, productID int64, from, to time.Time) ([]models.PriceObservation, error) {
	return nil, nil
}

func (f *fakeStore) LatestPrice(ctx context.Context, productID int64) (*decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.prices) - 1; i >= 0; i-- {
		if f.prices[i].ProductID == productID {
			p := f.prices[i].Price
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) KeywordCounts(ctx context.Context, from, to time.Time) (map[string]int, error) {
	return nil, nil
}

func (f *fakeStore) List(ctx context.Context) ([]*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products, nil
}

type fakePriceExtractor struct {
	records map[models.Chipset][]models.RawPriceRecord
	err     error
}

func (f *fakePriceExtractor) ExtractChipset(ctx context.Context, chipset models.Chipset) ([]models.RawPriceRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[chipset], nil
}

type fakeFeedExtractor struct {
	signals []models.MarketSignal
	err     error
}

func (f *fakeFeedExtractor) ExtractAll(ctx context.Context) ([]models.MarketSignal, error) {
	return f.signals, f.err
}

type fakePriceAnalyzer struct{}

func (fakePriceAnalyzer) ComputeChangePct(ctx context.Context, productID int64, current decimal.Decimal) (*decimal.Decimal, error) {
	return nil, nil
}

type fakeSentimentAnalyzer struct{ score float64 }

func (f fakeSentimentAnalyzer) Score(ctx context.Context) (float64, error) { return f.score, nil }

type fakeRiskCalculator struct{ highRisk bool }

func (f fakeRiskCalculator) Evaluate(ctx context.Context, in risk.Inputs) (risk.Result, error) {
	if !f.highRisk {
		return risk.Result{}, nil
	}
	return risk.Result{
		HighRisk: true,
		Alert:    &models.RiskAlert{ProductID: in.ProductID, RiskIndex: 500, Threshold: 100},
	}, nil
}

func TestRunPriceOnly_NormalizesUpsertsAndInserts(t *testing.T) {
	s := &fakeStore{}
	prices := &fakePriceExtractor{records: map[models.Chipset][]models.RawPriceRecord{
		models.ChipsetRTX4070: {{RawProductName: "ASUS TUF RTX 4070 O12G 12GB", Price: decimal.NewFromInt(899000)}},
	}}
	p := New(s, prices, &fakeFeedExtractor{}, fakePriceAnalyzer{}, fakeSentimentAnalyzer{}, fakeRiskCalculator{}, WithChipsets(models.ChipsetRTX4070))

	stats, err := p.RunPriceOnly(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Success)
	assert.Equal(t, 1, stats.ProductsUpserted)
	assert.Equal(t, 1, stats.PricesInserted)
	assert.Empty(t, stats.Errors)
}

func TestRunPriceOnly_NormalizationFailureIsIsolated(t *testing.T) {
	s := &fakeStore{}
	prices := &fakePriceExtractor{records: map[models.Chipset][]models.RawPriceRecord{
		models.ChipsetRTX4070: {
			{RawProductName: "unrecognizable junk with no brand or vram", Price: decimal.NewFromInt(1)},
			{RawProductName: "MSI VENTUS RTX 4070 12GB", Price: decimal.NewFromInt(800000)},
		},
	}}
	p := New(s, prices, &fakeFeedExtractor{}, fakePriceAnalyzer{}, fakeSentimentAnalyzer{}, fakeRiskCalculator{}, WithChipsets(models.ChipsetRTX4070))

	stats, err := p.RunPriceOnly(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Success)
	assert.Equal(t, 1, stats.ProductsUpserted)
	assert.Len(t, stats.Errors, 1)
}

func TestRunPriceOnly_ExtractionFailureDoesNotAbortOtherChipsets(t *testing.T) {
	s := &fakeStore{}
	prices := &fakePriceExtractor{err: errors.New("site unreachable")}
	p := New(s, prices, &fakeFeedExtractor{}, fakePriceAnalyzer{}, fakeSentimentAnalyzer{}, fakeRiskCalculator{})

	stats, err := p.RunPriceOnly(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Success, "extraction errors are recorded, not fatal")
	assert.Len(t, stats.Errors, len(models.ValidChipsets), "every chipset is still attempted after the first failure")
}

func TestRunSignalsOnly_InsertsEverySignal(t *testing.T) {
	s := &fakeStore{}
	feeds := &fakeFeedExtractor{signals: []models.MarketSignal{
		{Keyword: "new release", PostURL: "https://reddit.com/a"},
		{Keyword: "price drop", PostURL: "https://reddit.com/b"},
	}}
	p := New(s, &fakePriceExtractor{}, feeds, fakePriceAnalyzer{}, fakeSentimentAnalyzer{}, fakeRiskCalculator{})

	stats, err := p.RunSignalsOnly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SignalsInserted)
}

func TestRunFull_FiresAlertsForHighRiskProducts(t *testing.T) {
	s := &fakeStore{}
	prices := &fakePriceExtractor{records: map[models.Chipset][]models.RawPriceRecord{
		models.ChipsetRTX4070: {{RawProductName: "ZOTAC Gaming RTX 4070 Twin Edge 12GB", Price: decimal.NewFromInt(850000)}},
	}}
	p := New(s, prices, &fakeFeedExtractor{}, fakePriceAnalyzer{}, fakeSentimentAnalyzer{score: 10}, fakeRiskCalculator{highRisk: true}, WithChipsets(models.ChipsetRTX4070))

	stats, err := p.RunFull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AlertsFired)
	assert.Len(t, s.alerts, 1)
}

func TestPipeline_RejectsOverlappingRun(t *testing.T) {
	s := &fakeStore{}
	p := New(s, &fakePriceExtractor{}, &fakeFeedExtractor{}, fakePriceAnalyzer{}, fakeSentimentAnalyzer{}, fakeRiskCalculator{})

	require.True(t, p.tryAcquire())
	defer p.release()

	_, err := p.RunPriceOnly(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)
}
