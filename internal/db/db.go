// Package db provides an optional PostgreSQL mirror of the run artifacts.
// The JSON files stay authoritative; the mirror exists for reporting across
// machines and runs.
package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

// psql builds statements with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// schemaStatements creates the mirror tables when missing.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS processed_identities (
		nik         TEXT PRIMARY KEY,
		category    TEXT NOT NULL,
		attributes  JSONB NOT NULL DEFAULT '{}'::jsonb,
		run_id      UUID NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS invalid_identities (
		nik         TEXT PRIMARY KEY,
		run_id      UUID NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS diagnostic_log (
		id         BIGSERIAL PRIMARY KEY,
		run_id     UUID NOT NULL,
		entry      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS batch_runs (
		run_id       UUID PRIMARY KEY,
		started_at   TIMESTAMPTZ NOT NULL,
		finished_at  TIMESTAMPTZ NOT NULL,
		stop_reason  TEXT NOT NULL,
		final_weight INTEGER NOT NULL,
		max_weight   INTEGER NOT NULL,
		iterations   INTEGER NOT NULL DEFAULT 0,
		completed    INTEGER NOT NULL DEFAULT 0,
		invalid      INTEGER NOT NULL DEFAULT 0,
		aborted      INTEGER NOT NULL DEFAULT 0,
		failed       INTEGER NOT NULL DEFAULT 0
	)`,
}

// EnsureSchema creates the mirror tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
