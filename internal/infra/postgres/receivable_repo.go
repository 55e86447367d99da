package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/moneyguard/internal/chargeback"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// ReceivableRepository implements chargeback.Repository using PostgreSQL
type ReceivableRepository struct {
	pool *pgxpool.Pool
}

// NewReceivableRepository creates a new PostgreSQL receivable repository
func NewReceivableRepository(pool *pgxpool.Pool) *ReceivableRepository {
	return &ReceivableRepository{pool: pool}
}

var _ chargeback.Repository = (*ReceivableRepository)(nil)

const receivableColumns = `id, wallet_id, payment_id, amount, paid, status, entry_id, created_at, updated_at`

func (r *ReceivableRepository) CreateReceivable(ctx context.Context, rec *chargeback.Receivable) error {
	_, err := getQueryer(ctx, r.pool).Exec(ctx, `
		INSERT INTO receivables (`+receivableColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.WalletID, rec.PaymentID, int64(rec.Amount), int64(rec.Paid), string(rec.Status),
		rec.EntryID, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create receivable: %w", err)
	}
	return nil
}

// ListOutstandingForUpdate locks a wallet's pending receivables, oldest first
func (r *ReceivableRepository) ListOutstandingForUpdate(ctx context.Context, walletID uuid.UUID) ([]*chargeback.Receivable, error) {
	return r.list(ctx, `
		SELECT `+receivableColumns+` FROM receivables
		WHERE wallet_id = $1 AND status = 'pending'
		ORDER BY created_at, id
		FOR UPDATE
	`, walletID)
}

func (r *ReceivableRepository) UpdateReceivable(ctx context.Context, rec *chargeback.Receivable) error {
	tag, err := getQueryer(ctx, r.pool).Exec(ctx,
		`UPDATE receivables SET paid = $2, status = $3, updated_at = $4 WHERE id = $1`,
		rec.ID, int64(rec.Paid), string(rec.Status), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update receivable: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("receivable %s not found", rec.ID)
	}
	return nil
}

func (r *ReceivableRepository) ListReceivables(ctx context.Context, walletID uuid.UUID) ([]*chargeback.Receivable, error) {
	return r.list(ctx, `
		SELECT `+receivableColumns+` FROM receivables
		WHERE wallet_id = $1
		ORDER BY created_at, id
	`, walletID)
}

func (r *ReceivableRepository) list(ctx context.Context, query string, walletID uuid.UUID) ([]*chargeback.Receivable, error) {
	rows, err := getQueryer(ctx, r.pool).Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to list receivables: %w", err)
	}
	defer rows.Close()

	var out []*chargeback.Receivable
	for rows.Next() {
		var rec chargeback.Receivable
		var amount, paid int64
		if err := rows.Scan(&rec.ID, &rec.WalletID, &rec.PaymentID, &amount, &paid, &rec.Status,
			&rec.EntryID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan receivable: %w", err)
		}
		rec.Amount, rec.Paid = money.Amount(amount), money.Amount(paid)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receivables: %w", err)
	}
	return out, nil
}
