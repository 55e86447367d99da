package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines inventory persistence.
// The ForUpdate reads hold row locks until the surrounding transaction ends.
type Repository interface {
	CreateBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, id uuid.UUID) (*Batch, error)
	GetBatchForUpdate(ctx context.Context, id uuid.UUID) (*Batch, error)
	UpdateBatch(ctx context.Context, b *Batch) error
	// ListOpenBatchesForUpdate returns active batches with value remaining, oldest first
	ListOpenBatchesForUpdate(ctx context.Context, companyID uuid.UUID) ([]*Batch, error)
	ListBatches(ctx context.Context) ([]*Batch, error)

	InsertAllocation(ctx context.Context, a *Allocation) error
	ListActiveAllocations(ctx context.Context, paymentID uuid.UUID) ([]*Allocation, error)
	MarkAllocationReversed(ctx context.Context, id uuid.UUID, at time.Time) error
}
