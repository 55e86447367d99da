package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/payment"
)

// PaymentRepo implements payment.Repository
type PaymentRepo struct{ s *Store }

// Payments returns the payment repository
func (s *Store) Payments() *PaymentRepo { return &PaymentRepo{s: s} }

var _ payment.Repository = (*PaymentRepo)(nil)

func (r *PaymentRepo) CreatePayment(ctx context.Context, p *payment.Payment) error {
	return r.s.with(ctx, func(d *data) error {
		d.payments[p.ID] = *p
		return nil
	})
}

func (r *PaymentRepo) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var out *payment.Payment
	err := r.s.with(ctx, func(d *data) error {
		p, ok := d.payments[id]
		if !ok {
			return payment.ErrPaymentNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *PaymentRepo) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.GetPayment(ctx, id)
}

func (r *PaymentRepo) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status payment.Status, at time.Time) error {
	if err := r.s.fault(OpUpdatePaymentStatus); err != nil {
		return err
	}
	return r.s.with(ctx, func(d *data) error {
		p, ok := d.payments[id]
		if !ok {
			return payment.ErrPaymentNotFound
		}
		p.Status = status
		p.UpdatedAt = at
		d.payments[id] = p
		return nil
	})
}

func (r *PaymentRepo) CreateBonus(ctx context.Context, b *payment.Bonus) error {
	return r.s.with(ctx, func(d *data) error {
		d.bonuses = append(d.bonuses, *b)
		return nil
	})
}

func (r *PaymentRepo) ListActiveBonusesForUpdate(ctx context.Context, paymentID uuid.UUID) ([]*payment.Bonus, error) {
	var out []*payment.Bonus
	err := r.s.with(ctx, func(d *data) error {
		for _, b := range d.bonuses {
			if b.PaymentID != nil && *b.PaymentID == paymentID && b.Status == payment.BonusActive {
				b := b
				out = append(out, &b)
			}
		}
		return nil
	})
	return out, err
}

func (r *PaymentRepo) MarkBonusReversed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.s.with(ctx, func(d *data) error {
		for i := range d.bonuses {
			if d.bonuses[i].ID == id {
				d.bonuses[i].Status = payment.BonusReversed
				d.bonuses[i].ReversedAt = &at
				return nil
			}
		}
		return payment.ErrBonusNotFound
	})
}
