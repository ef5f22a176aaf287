package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esomin/gpu-market-intel/pkg/models"
)

type fakeHistoryStore struct {
	observations []models.PriceObservation
}

func (f *fakeHistoryStore) HistoricalPrices(ctx context.Context, productID int64, from, to time.Time) ([]models.PriceObservation, error) {
	return f.observations, nil
}

func TestEvaluate_S6NoAlertBelowThreshold(t *testing.T) {
	store := &fakeHistoryStore{observations: []models.PriceObservation{{Price: decimal.NewFromInt(1000000)}}}
	c := New(store, WithThreshold(100))

	result, err := c.Evaluate(context.Background(), Inputs{
		ProductID: 1, CurrentPrice: decimal.NewFromInt(950000), NewReleaseMentions: 15,
	})
	require.NoError(t, err)
	assert.InDelta(t, -49995.5, result.RiskIndex, 0.001)
	assert.False(t, result.HighRisk)
	assert.Nil(t, result.Alert)
}

func TestEvaluate_S6AlertFiresAboveThreshold(t *testing.T) {
	store := &fakeHistoryStore{observations: []models.PriceObservation{{Price: decimal.NewFromInt(950000)}}}
	c := New(store, WithThreshold(100))

	result, err := c.Evaluate(context.Background(), Inputs{
		ProductID: 1, CurrentPrice: decimal.NewFromInt(1000000), NewReleaseMentions: 200, SentimentScore: 12.5,
	})
	require.NoError(t, err)
	assert.InDelta(t, 50060.0, result.RiskIndex, 0.001)
	assert.True(t, result.HighRisk)
	require.NotNil(t, result.Alert)
	assert.Equal(t, 100.0, result.Alert.Threshold)
	assert.Contains(t, result.Alert.ContributingFactors, "price_delta")
	assert.Contains(t, result.Alert.ContributingFactors, "new_release_mentions")
	assert.Contains(t, result.Alert.ContributingFactors, "sentiment_score")
}

func TestEvaluate_SkipsWhenNoBaseline(t *testing.T) {
	c := New(&fakeHistoryStore{})

	result, err := c.Evaluate(context.Background(), Inputs{ProductID: 1, CurrentPrice: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	assert.Equal(t, "no-7-day-history", result.SkipReason)
	assert.Nil(t, result.Alert)
}
