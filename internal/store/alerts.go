package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/esomin/gpu-market-intel/pkg/models"
)

// AlertStore handles risk alert persistence.
type AlertStore struct {
	db *DB
}

// NewAlertStore creates a new alert store.
func NewAlertStore(db *DB) *AlertStore {
	return &AlertStore{db: db}
}

// InsertAlert inserts a risk alert. There is no conflict target — alerts
// are a time-series, and duplicate firings across runs are semantically
// meaningful, not noise.
func (s *AlertStore) InsertAlert(ctx context.Context, alert models.RiskAlert) (int64, error) {
	factorsJSON, err := json.Marshal(alert.ContributingFactors)
	if err != nil {
		return 0, fmt.Errorf("insert alert: marshal factors: %w", err)
	}

	query := `
		INSERT INTO risk_alerts (sku_id, risk_index, threshold, contributing_factors, acknowledged, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`

	var id int64
	err = s.db.WithRetry(ctx, "insert_alert", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, query,
			alert.ProductID, alert.RiskIndex, alert.Threshold, string(factorsJSON), alert.Acknowledged,
		)
		if err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Acknowledge marks an alert as acknowledged. Acknowledgement is the only
// mutation operators may perform on an alert row.
func (s *AlertStore) Acknowledge(ctx context.Context, id int64) error {
	return s.db.WithRetry(ctx, "acknowledge_alert", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `UPDATE risk_alerts SET acknowledged = 1 WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("acknowledge alert: %w", err)
		}
		return nil
	})
}
