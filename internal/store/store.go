package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esomin/gpu-market-intel/pkg/models"
)

// Store is the StorePort boundary the pipeline and analyzers consume. It
// composes the four table-scoped stores behind one interface so callers
// don't need to know about *DB.
type Store interface {
	UpsertProduct(ctx context.Context, identity models.ProductIdentity) (int64, error)
	InsertPrice(ctx context.Context, obs models.PriceObservation) error
	InsertSignal(ctx context.Context, signal models.MarketSignal) error
	InsertAlert(ctx context.Context, alert models.RiskAlert) (int64, error)
	HistoricalPrices(ctx context.Context, productID int64, from, to time.Time) ([]models.PriceObservation, error)
	LatestPrice(ctx context.Context, productID int64) (*decimal.Decimal, error)
	KeywordCounts(ctx context.Context, from, to time.Time) (map[string]int, error)
	List(ctx context.Context) ([]*models.Product, error)
}

// Composite wires the table-scoped stores together behind Store.
type Composite struct {
	*ProductStore
	*PriceStore
	*SignalStore
	*AlertStore
}

// NewComposite builds a Composite backed by db, with every migration
// already applied via db.Migrate.
func NewComposite(db *DB) *Composite {
	return &Composite{
		ProductStore: NewProductStore(db),
		PriceStore:   NewPriceStore(db),
		SignalStore:  NewSignalStore(db),
		AlertStore:   NewAlertStore(db),
	}
}

var _ Store = (*Composite)(nil)
