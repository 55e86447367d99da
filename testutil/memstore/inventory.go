package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/inventory"
)

// InventoryRepo implements inventory.Repository
type InventoryRepo struct{ s *Store }

// Inventory returns the inventory repository
func (s *Store) Inventory() *InventoryRepo { return &InventoryRepo{s: s} }

var _ inventory.Repository = (*InventoryRepo)(nil)

func (r *InventoryRepo) CreateBatch(ctx context.Context, b *inventory.Batch) error {
	return r.s.with(ctx, func(d *data) error {
		d.batches[b.ID] = *b
		d.batchOrder = append(d.batchOrder, b.ID)
		return nil
	})
}

func (r *InventoryRepo) GetBatch(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	var out *inventory.Batch
	err := r.s.with(ctx, func(d *data) error {
		b, ok := d.batches[id]
		if !ok {
			return inventory.ErrBatchNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (r *InventoryRepo) GetBatchForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	return r.GetBatch(ctx, id)
}

func (r *InventoryRepo) UpdateBatch(ctx context.Context, b *inventory.Batch) error {
	return r.s.with(ctx, func(d *data) error {
		if _, ok := d.batches[b.ID]; !ok {
			return inventory.ErrBatchNotFound
		}
		d.batches[b.ID] = *b
		return nil
	})
}

func (r *InventoryRepo) ListOpenBatchesForUpdate(ctx context.Context, companyID uuid.UUID) ([]*inventory.Batch, error) {
	var out []*inventory.Batch
	err := r.s.with(ctx, func(d *data) error {
		for _, id := range d.batchOrder {
			b := d.batches[id]
			if b.CompanyID == companyID && b.Status == inventory.BatchActive && b.ValueRemaining > 0 {
				out = append(out, &b)
			}
		}
		return nil
	})
	return out, err
}

func (r *InventoryRepo) ListBatches(ctx context.Context) ([]*inventory.Batch, error) {
	var out []*inventory.Batch
	err := r.s.with(ctx, func(d *data) error {
		for _, id := range d.batchOrder {
			b := d.batches[id]
			out = append(out, &b)
		}
		return nil
	})
	return out, err
}

func (r *InventoryRepo) InsertAllocation(ctx context.Context, a *inventory.Allocation) error {
	return r.s.with(ctx, func(d *data) error {
		d.allocations = append(d.allocations, *a)
		return nil
	})
}

func (r *InventoryRepo) ListActiveAllocations(ctx context.Context, paymentID uuid.UUID) ([]*inventory.Allocation, error) {
	var out []*inventory.Allocation
	err := r.s.with(ctx, func(d *data) error {
		for _, a := range d.allocations {
			if a.PaymentID == paymentID && !a.Reversed {
				a := a
				out = append(out, &a)
			}
		}
		return nil
	})
	return out, err
}

func (r *InventoryRepo) MarkAllocationReversed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.s.with(ctx, func(d *data) error {
		for i := range d.allocations {
			if d.allocations[i].ID == id {
				d.allocations[i].Reversed = true
				d.allocations[i].ReversedAt = &at
				return nil
			}
		}
		return notFound("allocation", id)
	})
}
