package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/inventory"
	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/reconciliation"
	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// SourceRepo implements reconciliation.Source
type SourceRepo struct{ s *Store }

// Reconciliation returns the reconciliation source
func (s *Store) Reconciliation() *SourceRepo { return &SourceRepo{s: s} }

var _ reconciliation.Source = (*SourceRepo)(nil)

func (r *SourceRepo) WalletStates(ctx context.Context) ([]reconciliation.WalletState, error) {
	if err := r.s.fault(OpWalletStates); err != nil {
		return nil, err
	}
	var out []reconciliation.WalletState
	err := r.s.with(ctx, func(d *data) error {
		sums := make(map[uuid.UUID]*wallet.Sums, len(d.wallets))
		for i := range d.walletTxns {
			t := &d.walletTxns[i]
			if sums[t.WalletID] == nil {
				sums[t.WalletID] = &wallet.Sums{}
			}
			sums[t.WalletID].Add(t)
		}
		for id, w := range d.wallets {
			st := reconciliation.WalletState{WalletID: id, Stored: w.Balance}
			if s := sums[id]; s != nil {
				st.Credits, st.Debits = s.Credits, s.Debits
			}
			out = append(out, st)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].WalletID.String() < out[j].WalletID.String() })
	return out, err
}

func (r *SourceRepo) TransactionTotals(ctx context.Context) (reconciliation.Totals, error) {
	var sums wallet.Sums
	err := r.s.with(ctx, func(d *data) error {
		for i := range d.walletTxns {
			sums.Add(&d.walletTxns[i])
		}
		return nil
	})
	return reconciliation.Totals{Credits: sums.Credits, Debits: sums.Debits}, err
}

func (r *SourceRepo) DanglingPairs(ctx context.Context) ([]reconciliation.DanglingPair, error) {
	out := []reconciliation.DanglingPair{}
	err := r.s.with(ctx, func(d *data) error {
		known := make(map[uuid.UUID]bool, len(d.walletTxns))
		for _, t := range d.walletTxns {
			known[t.ID] = true
		}
		for _, t := range d.walletTxns {
			if t.PairedTransactionID != nil && !known[*t.PairedTransactionID] {
				out = append(out, reconciliation.DanglingPair{TransactionID: t.ID, PairedID: *t.PairedTransactionID})
			}
		}
		return nil
	})
	return out, err
}

func (r *SourceRepo) ActiveBatches(ctx context.Context) ([]reconciliation.BatchState, error) {
	var out []reconciliation.BatchState
	err := r.s.with(ctx, func(d *data) error {
		allocated := make(map[uuid.UUID]money.Amount)
		for _, a := range d.allocations {
			if !a.Reversed {
				allocated[a.BatchID] += a.Amount
			}
		}
		for _, id := range d.batchOrder {
			b := d.batches[id]
			if b.Status != inventory.BatchActive {
				continue
			}
			out = append(out, reconciliation.BatchState{
				BatchID:        b.ID,
				CompanyID:      b.CompanyID,
				TotalReceived:  b.TotalReceived,
				ValueRemaining: b.ValueRemaining,
				Allocated:      allocated[b.ID],
			})
		}
		return nil
	})
	return out, err
}

func (r *SourceRepo) AccountBalances(ctx context.Context) ([]ledger.AccountBalance, error) {
	var out []ledger.AccountBalance
	err := r.s.with(ctx, func(d *data) error {
		out = d.accountBalances()
		return nil
	})
	return out, err
}

func (r *SourceRepo) UnbalancedEntries(ctx context.Context) ([]ledger.EntryImbalance, error) {
	var out []ledger.EntryImbalance
	err := r.s.with(ctx, func(d *data) error {
		out = d.unbalancedEntries()
		return nil
	})
	return out, err
}
