package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource identifies the upstream site a price observation came from.
// The column is free-form text in storage — the schema tolerates the
// legacy 에누리 value referenced by the original source's check constraint —
// but this engine only ever writes SourceDanawa.
const SourceDanawa = "다나와"

// RawPricePoint is one (time, price) sample from a listing's historical
// price chart, produced by PriceExtractor before normalization.
type RawPricePoint struct {
	RecordedAt time.Time
	Price      decimal.Decimal
}

// RawPriceRecord is what PriceExtractor hands to the pipeline for a single
// scraped listing, before the product name has been normalized.
//
// Price is a decimal.Decimal rather than a tagged field because
// go-playground/validator has no built-in rule for it; ValidatePositive
// offers the positivity check on the raw record, and the StorePort boundary
// rejects a non-positive price on its own (PriceStore.InsertPrice). No code
// runs the validator over the `validate` tags below.
type RawPriceRecord struct {
	RawProductName string `validate:"required"`
	Price          decimal.Decimal
	Source         string `validate:"required"`
	SourceURL      string
	RecordedAt     time.Time
	History        []RawPricePoint // up to ~90 days, same listing
}

// ValidatePositive reports whether Price is strictly greater than zero, the
// ValidationError condition spec.md §7 requires at the boundary.
func (r RawPriceRecord) ValidatePositive() bool {
	return r.Price.IsPositive()
}

// PriceObservation is one persisted price point for a product at one
// source at one time. Natural key: (ProductID, Source, RecordedAt).
type PriceObservation struct {
	ID              int64
	ProductID       int64
	Price           decimal.Decimal
	Source          string
	SourceURL       string
	RecordedAt      time.Time
	PriceChangePct  *decimal.Decimal // nil when insufficient 7-day history
}
