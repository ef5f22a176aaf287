package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esomin/gpu-market-intel/pkg/models"
)

func seedProduct(t *testing.T, db *DB) int64 {
	t.Helper()
	id, err := NewProductStore(db).UpsertProduct(context.Background(), models.ProductIdentity{
		Brand: "ASUS", Chipset: models.ChipsetRTX4070, ModelName: "TUF", VRAM: "12GB",
	})
	require.NoError(t, err)
	return id
}

func TestInsertPrice_RejectsForeignKeyViolation(t *testing.T) {
	db := newTestDB(t)
	store := NewPriceStore(db)

	err := store.InsertPrice(context.Background(), models.PriceObservation{
		ProductID: 99999, Price: decimal.NewFromInt(1), Source: models.SourceDanawa, RecordedAt: time.Now(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreConstraint)
}

func TestInsertPrice_RejectsNonPositive(t *testing.T) {
	db := newTestDB(t)
	productID := seedProduct(t, db)
	store := NewPriceStore(db)

	err := store.InsertPrice(context.Background(), models.PriceObservation{
		ProductID: productID, Price: decimal.Zero, Source: models.SourceDanawa, RecordedAt: time.Now(),
	})
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestInsertPrice_ConflictUpdatesWithoutDuplicating(t *testing.T) {
	db := newTestDB(t)
	productID := seedProduct(t, db)
	store := NewPriceStore(db)
	ctx := context.Background()
	recordedAt := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	err := store.InsertPrice(ctx, models.PriceObservation{
		ProductID: productID, Price: decimal.NewFromInt(899000), Source: models.SourceDanawa, RecordedAt: recordedAt,
	})
	require.NoError(t, err)

	err = store.InsertPrice(ctx, models.PriceObservation{
		ProductID: productID, Price: decimal.NewFromInt(850000), Source: models.SourceDanawa, RecordedAt: recordedAt,
	})
	require.NoError(t, err)

	obs, err := store.HistoricalPrices(ctx, productID, recordedAt.Add(-time.Hour), recordedAt.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.True(t, decimal.NewFromInt(850000).Equal(obs[0].Price))
}

func TestLatestPrice_ReturnsNilWhenNoneRecorded(t *testing.T) {
	db := newTestDB(t)
	productID := seedProduct(t, db)
	store := NewPriceStore(db)

	price, err := store.LatestPrice(context.Background(), productID)
	require.NoError(t, err)
	assert.Nil(t, price)
}

func TestLatestPrice_ReturnsMostRecentlyRecorded(t *testing.T) {
	db := newTestDB(t)
	productID := seedProduct(t, db)
	store := NewPriceStore(db)
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertPrice(ctx, models.PriceObservation{
		ProductID: productID, Price: decimal.NewFromInt(800000), Source: models.SourceDanawa, RecordedAt: base,
	}))
	require.NoError(t, store.InsertPrice(ctx, models.PriceObservation{
		ProductID: productID, Price: decimal.NewFromInt(850000), Source: models.SourceDanawa, RecordedAt: base.AddDate(0, 0, 1),
	}))

	price, err := store.LatestPrice(ctx, productID)
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, decimal.NewFromInt(850000).Equal(*price))
}

func TestHistoricalPrices_OrdersAscendingByRecordedAt(t *testing.T) {
	db := newTestDB(t)
	productID := seedProduct(t, db)
	store := NewPriceStore(db)
	ctx := context.Background()

	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i, offset := range []int{3, 1, 2} {
		err := store.InsertPrice(ctx, models.PriceObservation{
			ProductID: productID, Price: decimal.NewFromInt(int64(800000 + i)),
			Source: models.SourceDanawa, RecordedAt: base.AddDate(0, 0, offset),
		})
		require.NoError(t, err)
	}

	obs, err := store.HistoricalPrices(ctx, productID, base, base.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.Len(t, obs, 3)
	assert.True(t, obs[0].RecordedAt.Before(obs[1].RecordedAt))
	assert.True(t, obs[1].RecordedAt.Before(obs[2].RecordedAt))
}
