// Package store implements the StorePort boundary: idempotent persistence
// and historical queries over a SQLite-backed relational schema.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/esomin/gpu-market-intel/internal/retry"
)

// DefaultPoolSize mirrors spec.md §6's store.pool_size default. go-sqlite3
// serializes writers regardless of this bound, so in practice it caps
// concurrent readers (historical-price and keyword-count queries) during a
// pipeline run.
const DefaultPoolSize = 5

// DB wraps the SQL database connection.
type DB struct {
	*sql.DB
	retryCfg retry.Config
}

// Option configures DB construction.
type Option func(*dbOptions)

type dbOptions struct {
	poolSize int
	retryCfg retry.Config
}

// WithPoolSize overrides DefaultPoolSize.
func WithPoolSize(n int) Option {
	return func(o *dbOptions) { o.poolSize = n }
}

// WithRetryConfig overrides the backoff schedule every store operation
// retries under.
func WithRetryConfig(cfg retry.Config) Option {
	return func(o *dbOptions) { o.retryCfg = cfg }
}

// New opens (creating if necessary) the SQLite database at dbPath with WAL
// mode for concurrent readers and foreign keys enforced.
func New(dbPath string, opts ...Option) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	o := dbOptions{poolSize: DefaultPoolSize, retryCfg: retry.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(o.poolSize)
	db.SetMaxIdleConns(o.poolSize)

	return &DB{DB: db, retryCfg: o.retryCfg}, nil
}

// WithRetry runs fn through the Retryer, classifying the SQLite error it
// returns (if any) so a SQLITE_BUSY/SQLITE_LOCKED contention error is
// retried and a constraint violation is not. op names the operation for
// retry metrics and IOError messages. If every retry attempt is exhausted
// against a transient condition, the returned error wraps
// ErrStoreUnavailable — the one case spec.md treats as fatal to a run.
func (db *DB) WithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, db.retryCfg, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return classifySQLiteErr(op, err)
		}
		return nil
	})
	if err == nil {
		return nil
	}

	var ioErr *retry.IOError
	if errors.As(err, &ioErr) && !ioErr.Permanent {
		return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	}
	return err
}

// classifySQLiteErr turns a raw SQLite driver error into a retry.IOError
// when it's worth retrying (busy/locked), into the ErrStoreConstraint
// sentinel when it's a FK or check-constraint violation (never retried —
// the same row will violate it again), and passes everything else through
// unchanged.
func classifySQLiteErr(op string, err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return retry.Transient(op, 0, err)
	case sqlite3.ErrConstraint:
		return fmt.Errorf("%s: %w: %v", op, ErrStoreConstraint, err)
	default:
		return err
	}
}

// Migrate runs all schema migrations. Every statement is an idempotent
// CREATE TABLE/INDEX IF NOT EXISTS so Migrate is safe to call on every
// startup.
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationProducts,
		migrationPriceLogs,
		migrationMarketSignals,
		migrationRiskAlerts,
		migrationIndexes,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

const migrationProducts = `
CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	brand TEXT NOT NULL,
	model_name TEXT NOT NULL,
	chipset TEXT NOT NULL,
	vram TEXT NOT NULL,
	is_oc INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

	UNIQUE(brand, model_name)
);
`

const migrationPriceLogs = `
CREATE TABLE IF NOT EXISTS price_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sku_id INTEGER NOT NULL,
	price TEXT NOT NULL,
	source TEXT NOT NULL,
	source_url TEXT,
	recorded_at DATETIME NOT NULL,
	price_change_pct TEXT,

	UNIQUE(sku_id, source, recorded_at),
	FOREIGN KEY (sku_id) REFERENCES products(id)
);
`

const migrationMarketSignals = `
CREATE TABLE IF NOT EXISTS market_signals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	keyword TEXT NOT NULL,
	post_title TEXT,
	post_url TEXT NOT NULL,
	subreddit TEXT,
	sentiment_score REAL NOT NULL DEFAULT 0,
	mention_count INTEGER NOT NULL DEFAULT 1,
	date DATETIME NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

	UNIQUE(keyword, date, post_url)
);
`

const migrationRiskAlerts = `
CREATE TABLE IF NOT EXISTS risk_alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sku_id INTEGER NOT NULL,
	risk_index REAL NOT NULL,
	threshold REAL NOT NULL,
	contributing_factors TEXT NOT NULL DEFAULT '{}',
	acknowledged INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

	FOREIGN KEY (sku_id) REFERENCES products(id)
);
`

const migrationIndexes = `
CREATE INDEX IF NOT EXISTS idx_price_logs_sku_recorded ON price_logs(sku_id, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_market_signals_keyword_date ON market_signals(keyword, date);
CREATE INDEX IF NOT EXISTS idx_risk_alerts_sku_id ON risk_alerts(sku_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_risk_alerts_ack_created ON risk_alerts(acknowledged, created_at DESC);
`
