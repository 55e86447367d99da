package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines payment and bonus persistence
type Repository interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) error

	CreateBonus(ctx context.Context, b *Bonus) error
	// ListActiveBonusesForUpdate follows the bonus.payment_id back-link and locks the rows
	ListActiveBonusesForUpdate(ctx context.Context, paymentID uuid.UUID) ([]*Bonus, error)
	MarkBonusReversed(ctx context.Context, id uuid.UUID, at time.Time) error
}
