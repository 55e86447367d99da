package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/moneyguard/internal/platform/idempotency"
)

// IdempotencyRepository implements idempotency.Store using PostgreSQL
type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

// NewIdempotencyRepository creates a new PostgreSQL idempotency store
func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

var _ idempotency.Store = (*IdempotencyRepository)(nil)

// Claim inserts the key as pending, or takes over a failed or stale pending record.
// The primary key on idempotency_keys.key decides the race between concurrent claimers.
func (r *IdempotencyRepository) Claim(ctx context.Context, rec *idempotency.Record, staleBefore time.Time) (*idempotency.Record, bool, error) {
	q := getQueryer(ctx, r.pool)

	var key string
	err := q.QueryRow(ctx, `
		INSERT INTO idempotency_keys (key, action, status, created_at, updated_at)
		VALUES ($1, $2, 'pending', $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET status = 'pending', error = '', updated_at = EXCLUDED.updated_at
		WHERE idempotency_keys.status = 'failed'
			OR (idempotency_keys.status = 'pending' AND idempotency_keys.updated_at < $5)
		RETURNING key
	`, rec.Key, rec.Action, rec.CreatedAt, rec.UpdatedAt, staleBefore).Scan(&key)
	if err == nil {
		return nil, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}

	existing, err := r.Get(ctx, rec.Key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("idempotency key %s vanished during claim", rec.Key)
	}
	return existing, false, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, key string, result []byte) error {
	tag, err := getQueryer(ctx, r.pool).Exec(ctx,
		`UPDATE idempotency_keys SET status = 'succeeded', result = $2, error = '', updated_at = NOW() WHERE key = $1`,
		key, result)
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency key %s not found", key)
	}
	return nil
}

func (r *IdempotencyRepository) Fail(ctx context.Context, key string, reason string) error {
	tag, err := getQueryer(ctx, r.pool).Exec(ctx,
		`UPDATE idempotency_keys SET status = 'failed', error = $2, updated_at = NOW() WHERE key = $1`,
		key, reason)
	if err != nil {
		return fmt.Errorf("failed to fail idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency key %s not found", key)
	}
	return nil
}

// Get returns the record for key, or nil when none exists
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	var rec idempotency.Record
	err := getQueryer(ctx, r.pool).QueryRow(ctx, `
		SELECT key, action, status, result, error, created_at, updated_at
		FROM idempotency_keys WHERE key = $1
	`, key).Scan(&rec.Key, &rec.Action, &rec.Status, &rec.Result, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	return &rec, nil
}
