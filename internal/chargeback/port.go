package chargeback

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists receivables
type Repository interface {
	CreateReceivable(ctx context.Context, r *Receivable) error
	// ListOutstandingForUpdate locks and returns pending receivables, oldest first
	ListOutstandingForUpdate(ctx context.Context, walletID uuid.UUID) ([]*Receivable, error)
	UpdateReceivable(ctx context.Context, r *Receivable) error
	ListReceivables(ctx context.Context, walletID uuid.UUID) ([]*Receivable, error)
}
