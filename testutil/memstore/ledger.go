package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// LedgerRepo implements ledger.Repository
type LedgerRepo struct{ s *Store }

// Ledger returns the ledger repository
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{s: s} }

var _ ledger.Repository = (*LedgerRepo)(nil)

func (r *LedgerRepo) EnsureAccounts(ctx context.Context, accounts []*ledger.Account) error {
	return r.s.with(ctx, func(d *data) error {
		for _, a := range accounts {
			if _, ok := d.accountByCode[a.Code]; ok {
				continue
			}
			d.accounts[a.ID] = *a
			d.accountByCode[a.Code] = a.ID
			d.balances[a.ID] = 0
		}
		return nil
	})
}

func (r *LedgerRepo) ListAccounts(ctx context.Context) ([]*ledger.Account, error) {
	var out []*ledger.Account
	err := r.s.with(ctx, func(d *data) error {
		for _, a := range d.accounts {
			a := a
			out = append(out, &a)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r *LedgerRepo) InsertEntry(ctx context.Context, e *ledger.Entry) error {
	return r.s.with(ctx, func(d *data) error {
		if e.ReversesEntryID != nil {
			if _, ok := d.reversals[*e.ReversesEntryID]; ok {
				return ledger.ErrAlreadyReversed
			}
			d.reversals[*e.ReversesEntryID] = e.ID
		}
		cp := *e
		cp.Lines = append([]ledger.Line(nil), e.Lines...)
		d.entries[e.ID] = cp
		d.entryOrder = append(d.entryOrder, e.ID)
		return nil
	})
}

func (r *LedgerRepo) GetEntry(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	var out *ledger.Entry
	err := r.s.with(ctx, func(d *data) error {
		e, ok := d.entries[id]
		if !ok {
			return ledger.ErrEntryNotFound
		}
		e.Lines = append([]ledger.Line(nil), e.Lines...)
		out = &e
		return nil
	})
	return out, err
}

func (r *LedgerRepo) HasReversal(ctx context.Context, entryID uuid.UUID) (bool, error) {
	var found bool
	err := r.s.with(ctx, func(d *data) error {
		_, found = d.reversals[entryID]
		return nil
	})
	return found, err
}

func (r *LedgerRepo) ListEntriesByReference(ctx context.Context, ref ledger.Reference) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	err := r.s.with(ctx, func(d *data) error {
		for _, id := range d.entryOrder {
			e := d.entries[id]
			if e.Reference == ref {
				e.Lines = append([]ledger.Line(nil), e.Lines...)
				out = append(out, &e)
			}
		}
		return nil
	})
	return out, err
}

func (r *LedgerRepo) EntryTotals(ctx context.Context, entryID uuid.UUID) (debits, credits money.Amount, err error) {
	err = r.s.with(ctx, func(d *data) error {
		e, ok := d.entries[entryID]
		if !ok {
			return ledger.ErrEntryNotFound
		}
		debits, credits = e.Totals()
		return nil
	})
	return debits, credits, err
}

func (r *LedgerRepo) GetBalanceForUpdate(ctx context.Context, accountID uuid.UUID) (money.Amount, error) {
	var out money.Amount
	err := r.s.with(ctx, func(d *data) error {
		b, ok := d.balances[accountID]
		if !ok {
			return notFound("account", accountID)
		}
		out = b
		return nil
	})
	return out, err
}

func (r *LedgerRepo) SetBalance(ctx context.Context, accountID uuid.UUID, balance money.Amount) error {
	return r.s.with(ctx, func(d *data) error {
		if _, ok := d.balances[accountID]; !ok {
			return notFound("account", accountID)
		}
		d.balances[accountID] = balance
		return nil
	})
}

func (r *LedgerRepo) ListBalances(ctx context.Context) ([]ledger.AccountBalance, error) {
	var out []ledger.AccountBalance
	err := r.s.with(ctx, func(d *data) error {
		out = d.accountBalances()
		return nil
	})
	return out, err
}

func (r *LedgerRepo) UnbalancedEntries(ctx context.Context) ([]ledger.EntryImbalance, error) {
	var out []ledger.EntryImbalance
	err := r.s.with(ctx, func(d *data) error {
		out = d.unbalancedEntries()
		return nil
	})
	return out, err
}

func (d *data) accountBalances() []ledger.AccountBalance {
	debits := make(map[uuid.UUID]money.Amount)
	credits := make(map[uuid.UUID]money.Amount)
	for _, e := range d.entries {
		for _, l := range e.Lines {
			if l.Side == ledger.SideDebit {
				debits[l.AccountID] += l.Amount
			} else {
				credits[l.AccountID] += l.Amount
			}
		}
	}

	out := make([]ledger.AccountBalance, 0, len(d.accounts))
	for id, a := range d.accounts {
		out = append(out, ledger.AccountBalance{
			AccountID:    id,
			Code:         a.Code,
			Name:         a.Name,
			Type:         a.Type,
			Balance:      d.balances[id],
			TotalDebits:  debits[id],
			TotalCredits: credits[id],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (d *data) unbalancedEntries() []ledger.EntryImbalance {
	out := []ledger.EntryImbalance{}
	for _, id := range d.entryOrder {
		e := d.entries[id]
		if dr, cr := e.Totals(); dr != cr {
			out = append(out, ledger.EntryImbalance{EntryID: id, Debits: dr, Credits: cr})
		}
	}
	return out
}
