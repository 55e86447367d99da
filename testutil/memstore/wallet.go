package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/wallet"
)

// WalletRepo implements wallet.Repository
type WalletRepo struct{ s *Store }

// Wallets returns the wallet repository
func (s *Store) Wallets() *WalletRepo { return &WalletRepo{s: s} }

var _ wallet.Repository = (*WalletRepo)(nil)

func (r *WalletRepo) Create(ctx context.Context, w *wallet.Wallet) error {
	return r.s.with(ctx, func(d *data) error {
		d.wallets[w.ID] = *w
		return nil
	})
}

func (r *WalletRepo) Get(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	var out *wallet.Wallet
	err := r.s.with(ctx, func(d *data) error {
		w, ok := d.wallets[id]
		if !ok {
			return wallet.ErrWalletNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

func (r *WalletRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	return r.Get(ctx, id)
}

func (r *WalletRepo) Update(ctx context.Context, w *wallet.Wallet) error {
	return r.s.with(ctx, func(d *data) error {
		if _, ok := d.wallets[w.ID]; !ok {
			return wallet.ErrWalletNotFound
		}
		d.wallets[w.ID] = *w
		return nil
	})
}

func (r *WalletRepo) InsertTransaction(ctx context.Context, t *wallet.Transaction) error {
	return r.s.with(ctx, func(d *data) error {
		d.walletTxns = append(d.walletTxns, *t)
		return nil
	})
}

func (r *WalletRepo) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]*wallet.Transaction, error) {
	var out []*wallet.Transaction
	err := r.s.with(ctx, func(d *data) error {
		for _, t := range d.walletTxns {
			if t.WalletID == walletID {
				t := t
				out = append(out, &t)
			}
		}
		return nil
	})
	return out, err
}

func (r *WalletRepo) SumTransactions(ctx context.Context, walletID uuid.UUID) (wallet.Sums, error) {
	var sums wallet.Sums
	err := r.s.with(ctx, func(d *data) error {
		for i := range d.walletTxns {
			if d.walletTxns[i].WalletID == walletID {
				sums.Add(&d.walletTxns[i])
			}
		}
		return nil
	})
	return sums, err
}
