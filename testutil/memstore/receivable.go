package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/chargeback"
)

// ReceivableRepo implements chargeback.Repository
type ReceivableRepo struct{ s *Store }

// Receivables returns the receivable repository
func (s *Store) Receivables() *ReceivableRepo { return &ReceivableRepo{s: s} }

var _ chargeback.Repository = (*ReceivableRepo)(nil)

func (r *ReceivableRepo) CreateReceivable(ctx context.Context, rec *chargeback.Receivable) error {
	if err := r.s.fault(OpCreateReceivable); err != nil {
		return err
	}
	return r.s.with(ctx, func(d *data) error {
		d.receivables = append(d.receivables, *rec)
		return nil
	})
}

func (r *ReceivableRepo) ListOutstandingForUpdate(ctx context.Context, walletID uuid.UUID) ([]*chargeback.Receivable, error) {
	var out []*chargeback.Receivable
	err := r.s.with(ctx, func(d *data) error {
		for _, rec := range d.receivables {
			if rec.WalletID == walletID && rec.Status == chargeback.ReceivablePending {
				rec := rec
				out = append(out, &rec)
			}
		}
		return nil
	})
	return out, err
}

func (r *ReceivableRepo) UpdateReceivable(ctx context.Context, rec *chargeback.Receivable) error {
	return r.s.with(ctx, func(d *data) error {
		for i := range d.receivables {
			if d.receivables[i].ID == rec.ID {
				d.receivables[i] = *rec
				return nil
			}
		}
		return notFound("receivable", rec.ID)
	})
}

func (r *ReceivableRepo) ListReceivables(ctx context.Context, walletID uuid.UUID) ([]*chargeback.Receivable, error) {
	var out []*chargeback.Receivable
	err := r.s.with(ctx, func(d *data) error {
		for _, rec := range d.receivables {
			if rec.WalletID == walletID {
				rec := rec
				out = append(out, &rec)
			}
		}
		return nil
	})
	return out, err
}
