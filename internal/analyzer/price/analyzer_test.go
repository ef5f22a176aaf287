package price

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

func TestComputeChangePct_RejectsNonPositive(t *testing.T) {
	a := New(&fakeHistoryStore{})
	_, err := a.ComputeChangePct(context.Background(), 1, decimal.Zero)
	require.ErrorIs(t, err, ErrNonPositivePrice)
}

func TestComputeChangePct_NoHistoryReturnsNilNoError(t *testing.T) {
	a := New(&fakeHistoryStore{})
	pct, err := a.ComputeChangePct(context.Background(), 1, decimal.NewFromInt(900000))
	require.NoError(t, err)
	assert.Nil(t, pct)
}

func TestComputeChangePct_AveragesWindowAndRounds(t *testing.T) {
	store := &fakeHistoryStore{observations: []models.PriceObservation{
		{Price: decimal.NewFromInt(1000000)},
		{Price: decimal.NewFromInt(1000000)},
	}}
	a := New(store)

	pct, err := a.ComputeChangePct(context.Background(), 1, decimal.NewFromInt(950000))
	require.NoError(t, err)
	require.NotNil(t, pct)
	assert.True(t, decimal.NewFromFloat(-5.00).Equal(*pct), "got %s", pct.String())
}
