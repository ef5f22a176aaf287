package models

import "time"

// RiskAlert is an append-only record of a risk-index threshold breach for a
// product. There is no natural key — every firing is its own row, even if
// the same product breaches again before the prior alert is acknowledged.
type RiskAlert struct {
	ID                  int64
	ProductID           int64
	RiskIndex           float64
	Threshold           float64 // threshold in effect at firing time
	ContributingFactors map[string]float64
	Acknowledged        bool
	CreatedAt           time.Time
}
