package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/esomin/gpu-market-intel/pkg/models"
)

// ProductStore handles product (SKU) persistence.
type ProductStore struct {
	db *DB
}

// NewProductStore creates a new product store.
func NewProductStore(db *DB) *ProductStore {
	return &ProductStore{db: db}
}

// UpsertProduct inserts a new product or, on a (brand, model_name) conflict,
// updates chipset/vram/is_oc/updated_at — the latest observation is always
// authoritative for product specs. The row's id is preserved across
// updates. Runs through the Retryer: a SQLITE_BUSY/LOCKED contention error
// is retried, a constraint violation is not.
func (s *ProductStore) UpsertProduct(ctx context.Context, identity models.ProductIdentity) (int64, error) {
	if !identity.Chipset.IsValid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChipset, identity.Chipset)
	}

	query := `
		INSERT INTO products (brand, model_name, chipset, vram, is_oc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(brand, model_name) DO UPDATE SET
			chipset = excluded.chipset,
			vram = excluded.vram,
			is_oc = excluded.is_oc,
			updated_at = CURRENT_TIMESTAMP
	`

	var id int64
	err := s.db.WithRetry(ctx, "upsert_product", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			identity.Brand, identity.ModelName, string(identity.Chipset), identity.VRAM, identity.IsOC,
		)
		if err != nil {
			return fmt.Errorf("upsert product: %w", err)
		}

		return s.db.QueryRowContext(ctx,
			`SELECT id FROM products WHERE brand = ? AND model_name = ?`,
			identity.Brand, identity.ModelName,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert product: fetch id: %w", err)
	}

	return id, nil
}

// Get retrieves a product by id.
func (s *ProductStore) Get(ctx context.Context, id int64) (*models.Product, error) {
	query := `
		SELECT id, brand, model_name, chipset, vram, is_oc, created_at, updated_at
		FROM products
		WHERE id = ?
	`

	p := &models.Product{}
	var chipset string
	err := s.db.WithRetry(ctx, "get_product", func(ctx context.Context) error {
		err := s.db.QueryRowContext(ctx, query, id).Scan(
			&p.ID, &p.Brand, &p.ModelName, &chipset, &p.VRAM, &p.IsOC, &p.CreatedAt, &p.UpdatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Chipset = models.Chipset(chipset)

	return p, nil
}

// List returns every known product, ordered by brand then model name.
func (s *ProductStore) List(ctx context.Context) ([]*models.Product, error) {
	query := `
		SELECT id, brand, model_name, chipset, vram, is_oc, created_at, updated_at
		FROM products
		ORDER BY brand, model_name
	`

	var products []*models.Product
	err := s.db.WithRetry(ctx, "list_products", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("list products: %w", err)
		}
		defer rows.Close()

		products = nil
		for rows.Next() {
			p := &models.Product{}
			var chipset string
			if err := rows.Scan(&p.ID, &p.Brand, &p.ModelName, &chipset, &p.VRAM, &p.IsOC, &p.CreatedAt, &p.UpdatedAt); err != nil {
				return fmt.Errorf("list products: scan: %w", err)
			}
			p.Chipset = models.Chipset(chipset)
			products = append(products, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}
