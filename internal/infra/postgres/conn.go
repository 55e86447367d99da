package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool connection pool
type DB struct {
	*pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// LockTimeout bounds how long a statement waits for a row lock
	LockTimeout time.Duration
}

// NewPool creates a new database connection pool
func NewPool(ctx context.Context, cfg Config) (*DB, error) {
	config, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = orDefault(cfg.MaxConns, 25)
	config.MinConns = orDefault(cfg.MinConns, 2)
	config.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, time.Hour)
	config.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, 30*time.Minute)

	// Row locks must not wait forever behind a stuck transaction
	if cfg.LockTimeout > 0 {
		config.ConnConfig.RuntimeParams["lock_timeout"] = fmt.Sprintf("%d", cfg.LockTimeout.Milliseconds())
	}

	// Create connection pool
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health checks the database connection health
func (db *DB) Health(ctx context.Context) error {
	return db.Ping(ctx)
}

// SchemaReady reports whether the financial core migration has been applied
func (db *DB) SchemaReady(ctx context.Context) (bool, error) {
	var ok bool
	err := db.QueryRow(ctx, `SELECT to_regclass('public.ledger_entries') IS NOT NULL`).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return ok, nil
}
