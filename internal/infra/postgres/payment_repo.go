package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/moneyguard/internal/payment"
	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// PaymentRepository implements payment.Repository using PostgreSQL
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PostgreSQL payment repository
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

var _ payment.Repository = (*PaymentRepository)(nil)

func (r *PaymentRepository) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := getQueryer(ctx, r.pool).Exec(ctx, `
		INSERT INTO payments (id, wallet_id, company_id, amount, gateway_fee, gateway_ref, status, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.WalletID, p.CompanyID, int64(p.Amount), int64(p.GatewayFee), p.GatewayRef,
		string(p.Status), p.IdempotencyKey, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "payments_idempotency_key_key") {
			return apperrors.DuplicateRequest("a payment with this idempotency key already exists", err)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

const paymentColumns = `id, wallet_id, company_id, amount, gateway_fee, gateway_ref, status, idempotency_key, created_at, updated_at`

func (r *PaymentRepository) getPayment(ctx context.Context, query string, id uuid.UUID) (*payment.Payment, error) {
	var p payment.Payment
	var amount, fee int64
	err := getQueryer(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&p.ID, &p.WalletID, &p.CompanyID, &amount, &fee, &p.GatewayRef, &p.Status, &p.IdempotencyKey, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	p.Amount, p.GatewayFee = money.Amount(amount), money.Amount(fee)
	return &p, nil
}

func (r *PaymentRepository) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *PaymentRepository) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (r *PaymentRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status payment.Status, at time.Time) error {
	tag, err := getQueryer(ctx, r.pool).Exec(ctx,
		`UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) CreateBonus(ctx context.Context, b *payment.Bonus) error {
	_, err := getQueryer(ctx, r.pool).Exec(ctx, `
		INSERT INTO bonuses (id, wallet_id, payment_id, gross, tds, status, credit_txn_id, tds_txn_id, created_at, reversed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.WalletID, b.PaymentID, int64(b.Gross), int64(b.TDS), string(b.Status),
		b.CreditTxnID, b.TDSTxnID, b.CreatedAt, b.ReversedAt)
	if err != nil {
		return fmt.Errorf("failed to create bonus: %w", err)
	}
	return nil
}

func (r *PaymentRepository) ListActiveBonusesForUpdate(ctx context.Context, paymentID uuid.UUID) ([]*payment.Bonus, error) {
	rows, err := getQueryer(ctx, r.pool).Query(ctx, `
		SELECT id, wallet_id, payment_id, gross, tds, status, credit_txn_id, tds_txn_id, created_at, reversed_at
		FROM bonuses
		WHERE payment_id = $1 AND status = 'active'
		ORDER BY created_at, id
		FOR UPDATE
	`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bonuses: %w", err)
	}
	defer rows.Close()

	var out []*payment.Bonus
	for rows.Next() {
		var b payment.Bonus
		var gross, tds int64
		if err := rows.Scan(&b.ID, &b.WalletID, &b.PaymentID, &gross, &tds, &b.Status,
			&b.CreditTxnID, &b.TDSTxnID, &b.CreatedAt, &b.ReversedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bonus: %w", err)
		}
		b.Gross, b.TDS = money.Amount(gross), money.Amount(tds)
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bonuses: %w", err)
	}
	return out, nil
}

func (r *PaymentRepository) MarkBonusReversed(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := getQueryer(ctx, r.pool).Exec(ctx,
		`UPDATE bonuses SET status = 'reversed', reversed_at = $2 WHERE id = $1 AND status = 'active'`, id, at)
	if err != nil {
		return fmt.Errorf("failed to reverse bonus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrBonusNotFound
	}
	return nil
}
