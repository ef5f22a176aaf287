package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esomin/gpu-market-intel/pkg/models"
)

// PriceStore handles price observation persistence.
type PriceStore struct {
	db *DB
}

// NewPriceStore creates a new price store.
func NewPriceStore(db *DB) *PriceStore {
	return &PriceStore{db: db}
}

// InsertPrice inserts a price observation or, on a (sku_id, source,
// recorded_at) conflict, updates price/source_url/price_change_pct. Re-runs
// may recompute price_change_pct once more history is available, so the
// row is never a pure no-op on conflict.
func (s *PriceStore) InsertPrice(ctx context.Context, obs models.PriceObservation) error {
	if !obs.Price.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, obs.Price.String())
	}

	query := `
		INSERT INTO price_logs (sku_id, price, source, source_url, recorded_at, price_change_pct)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sku_id, source, recorded_at) DO UPDATE SET
			price = excluded.price,
			source_url = excluded.source_url,
			price_change_pct = excluded.price_change_pct
	`

	return s.db.WithRetry(ctx, "insert_price", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			obs.ProductID, obs.Price.String(), obs.Source, obs.SourceURL, obs.RecordedAt,
			nullDecimalString(obs.PriceChangePct),
		)
		if err != nil {
			return fmt.Errorf("insert price: %w", err)
		}
		return nil
	})
}

// HistoricalPrices returns observations for productID in [from, to], ordered
// by recorded_at ascending. Consumed by the price analyzer to compute
// 7-day-ago rolling averages.
func (s *PriceStore) HistoricalPrices(ctx context.Context, productID int64, from, to time.Time) ([]models.PriceObservation, error) {
	query := `
		SELECT id, sku_id, price, source, source_url, recorded_at, price_change_pct
		FROM price_logs
		WHERE sku_id = ? AND recorded_at >= ? AND recorded_at <= ?
		ORDER BY recorded_at ASC
	`

	var out []models.PriceObservation
	err := s.db.WithRetry(ctx, "historical_prices", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, productID, from, to)
		if err != nil {
			return fmt.Errorf("historical prices: %w", err)
		}
		defer rows.Close()

		out = nil
		for rows.Next() {
			var obs models.PriceObservation
			var priceStr string
			var pctStr sql.NullString
			if err := rows.Scan(&obs.ID, &obs.ProductID, &priceStr, &obs.Source, &obs.SourceURL, &obs.RecordedAt, &pctStr); err != nil {
				return fmt.Errorf("historical prices: scan: %w", err)
			}
			price, err := decimal.NewFromString(priceStr)
			if err != nil {
				return fmt.Errorf("historical prices: parse price: %w", err)
			}
			obs.Price = price
			if pctStr.Valid {
				pct, err := decimal.NewFromString(pctStr.String)
				if err != nil {
					return fmt.Errorf("historical prices: parse price_change_pct: %w", err)
				}
				obs.PriceChangePct = &pct
			}
			out = append(out, obs)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LatestPrice returns the most recent price recorded for productID across
// every source, or nil if none exists yet. Consumed by the risk calculator
// to anchor the current side of the price-delta term.
func (s *PriceStore) LatestPrice(ctx context.Context, productID int64) (*decimal.Decimal, error) {
	var price *decimal.Decimal
	err := s.db.WithRetry(ctx, "latest_price", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `
			SELECT price FROM price_logs
			WHERE sku_id = ?
			ORDER BY recorded_at DESC
			LIMIT 1
		`, productID)

		var priceStr string
		if err := row.Scan(&priceStr); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				price = nil
				return nil
			}
			return fmt.Errorf("latest price: %w", err)
		}
		parsed, err := decimal.NewFromString(priceStr)
		if err != nil {
			return fmt.Errorf("latest price: parse: %w", err)
		}
		price = &parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return price, nil
}

func nullDecimalString(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
