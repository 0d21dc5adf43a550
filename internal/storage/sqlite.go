package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var db *sql.DB

// Querier is satisfied by *sql.DB and *sql.Tx. Every write helper takes one so
// the service can group an operation into a single transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InitDB initializes the SQLite database connection with WAL mode.
//
// The pool is pinned to one connection: all writes are serialized, which is
// the single-writer model settlement relies on. It also keeps ":memory:"
// databases (one per connection) consistent in tests.
func InitDB(dbPath string) error {
	var err error

	if dbPath != ":memory:" {
		dbPath, err = filepath.Abs(dbPath)
		if err != nil {
			return err
		}
	}

	db, err = sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return err
	}

	// Run migrations
	if err := runMigrations(); err != nil {
		return err
	}

	return nil
}

// DB returns the database connection
func DB() *sql.DB {
	return db
}

// runMigrations creates the necessary tables
func runMigrations() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			address TEXT PRIMARY KEY,
			balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS markets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			question TEXT NOT NULL,
			asset TEXT NOT NULL,
			target_price TEXT NOT NULL,
			is_above INTEGER NOT NULL,
			deadline INTEGER NOT NULL,
			min_bet INTEGER NOT NULL,
			fee_bps INTEGER NOT NULL,
			creator TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			yes_pool INTEGER NOT NULL DEFAULT 0,
			no_pool INTEGER NOT NULL DEFAULT 0,
			resolved INTEGER NOT NULL DEFAULT 0,
			outcome INTEGER NOT NULL DEFAULT 0,
			settlement_price TEXT NOT NULL DEFAULT '',
			resolved_at INTEGER NOT NULL DEFAULT 0,
			accumulated_fees INTEGER NOT NULL DEFAULT 0,
			forfeited_amount INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			market_id INTEGER NOT NULL,
			address TEXT NOT NULL,
			yes_amount INTEGER NOT NULL DEFAULT 0,
			no_amount INTEGER NOT NULL DEFAULT 0,
			claimed INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (market_id, address),
			FOREIGN KEY (market_id) REFERENCES markets(id)
		)`,
		`CREATE TABLE IF NOT EXISTS ledger (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			owner TEXT NOT NULL,
			fee_balance INTEGER NOT NULL DEFAULT 0,
			forfeited_balance INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS price_feeds (
			asset TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			market_id INTEGER NOT NULL DEFAULT 0,
			address TEXT NOT NULL,
			amount INTEGER NOT NULL DEFAULT 0,
			details TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		// Create indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_markets_open ON markets(resolved, deadline)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_address ON positions(address)`,
		`CREATE INDEX IF NOT EXISTS idx_events_address ON events(address, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_market ON events(market_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// WithTx runs fn inside a transaction, committing if fn returns nil and
// rolling back otherwise. fn must use tx, not the package connection: the pool
// holds a single connection and would block.
func WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CloseDB closes the database connection
func CloseDB() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
