package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/moneyguard/internal/inventory"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// InventoryRepository implements inventory.Repository using PostgreSQL
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository creates a new PostgreSQL inventory repository
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

var _ inventory.Repository = (*InventoryRepository)(nil)

const batchColumns = `id, company_id, total_received, value_remaining, allocated, status, entry_id, created_at, updated_at`

func scanBatch(row pgx.Row) (*inventory.Batch, error) {
	var b inventory.Batch
	var total, remaining, allocated int64
	err := row.Scan(&b.ID, &b.CompanyID, &total, &remaining, &allocated, &b.Status, &b.EntryID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.TotalReceived, b.ValueRemaining, b.Allocated = money.Amount(total), money.Amount(remaining), money.Amount(allocated)
	return &b, nil
}

func (r *InventoryRepository) CreateBatch(ctx context.Context, b *inventory.Batch) error {
	_, err := getQueryer(ctx, r.pool).Exec(ctx, `
		INSERT INTO inventory_batches (`+batchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.CompanyID, int64(b.TotalReceived), int64(b.ValueRemaining), int64(b.Allocated),
		string(b.Status), b.EntryID, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

func (r *InventoryRepository) getBatch(ctx context.Context, query string, id uuid.UUID) (*inventory.Batch, error) {
	b, err := scanBatch(getQueryer(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return b, nil
}

func (r *InventoryRepository) GetBatch(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	return r.getBatch(ctx, `SELECT `+batchColumns+` FROM inventory_batches WHERE id = $1`, id)
}

func (r *InventoryRepository) GetBatchForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	return r.getBatch(ctx, `SELECT `+batchColumns+` FROM inventory_batches WHERE id = $1 FOR UPDATE`, id)
}

func (r *InventoryRepository) UpdateBatch(ctx context.Context, b *inventory.Batch) error {
	tag, err := getQueryer(ctx, r.pool).Exec(ctx, `
		UPDATE inventory_batches
		SET value_remaining = $2, allocated = $3, status = $4, updated_at = $5
		WHERE id = $1
	`, b.ID, int64(b.ValueRemaining), int64(b.Allocated), string(b.Status), b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrBatchNotFound
	}
	return nil
}

// ListOpenBatchesForUpdate locks a company's open batches in FIFO order
func (r *InventoryRepository) ListOpenBatchesForUpdate(ctx context.Context, companyID uuid.UUID) ([]*inventory.Batch, error) {
	return r.listBatches(ctx, `
		SELECT `+batchColumns+` FROM inventory_batches
		WHERE company_id = $1 AND status = 'active' AND value_remaining > 0
		ORDER BY created_at, id
		FOR UPDATE
	`, companyID)
}

func (r *InventoryRepository) ListBatches(ctx context.Context) ([]*inventory.Batch, error) {
	return r.listBatches(ctx, `SELECT `+batchColumns+` FROM inventory_batches ORDER BY created_at, id`)
}

func (r *InventoryRepository) listBatches(ctx context.Context, query string, args ...any) ([]*inventory.Batch, error) {
	rows, err := getQueryer(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var out []*inventory.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}
	return out, nil
}

func (r *InventoryRepository) InsertAllocation(ctx context.Context, a *inventory.Allocation) error {
	_, err := getQueryer(ctx, r.pool).Exec(ctx, `
		INSERT INTO inventory_allocations (id, batch_id, company_id, payment_id, amount, reversed, created_at, reversed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.BatchID, a.CompanyID, a.PaymentID, int64(a.Amount), a.Reversed, a.CreatedAt, a.ReversedAt)
	if err != nil {
		return fmt.Errorf("failed to insert allocation: %w", err)
	}
	return nil
}

func (r *InventoryRepository) ListActiveAllocations(ctx context.Context, paymentID uuid.UUID) ([]*inventory.Allocation, error) {
	rows, err := getQueryer(ctx, r.pool).Query(ctx, `
		SELECT id, batch_id, company_id, payment_id, amount, reversed, created_at, reversed_at
		FROM inventory_allocations
		WHERE payment_id = $1 AND NOT reversed
		ORDER BY created_at, id
	`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	defer rows.Close()

	var out []*inventory.Allocation
	for rows.Next() {
		var a inventory.Allocation
		var amount int64
		if err := rows.Scan(&a.ID, &a.BatchID, &a.CompanyID, &a.PaymentID, &amount, &a.Reversed, &a.CreatedAt, &a.ReversedAt); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		a.Amount = money.Amount(amount)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocations: %w", err)
	}
	return out, nil
}

func (r *InventoryRepository) MarkAllocationReversed(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := getQueryer(ctx, r.pool).Exec(ctx,
		`UPDATE inventory_allocations SET reversed = TRUE, reversed_at = $2 WHERE id = $1 AND NOT reversed`, id, at)
	if err != nil {
		return fmt.Errorf("failed to reverse allocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("allocation %s not found or already reversed", id)
	}
	return nil
}
