// Package memstore is an in-memory implementation of every persistence port and of
// txn.Manager. Transactions are serialised by one mutex and roll back by restoring a
// snapshot, so row locks are implicit. Unit tests use it in place of PostgreSQL.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/chargeback"
	"github.com/kislikjeka/moneyguard/internal/inventory"
	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/payment"
	"github.com/kislikjeka/moneyguard/internal/platform/audit"
	"github.com/kislikjeka/moneyguard/internal/platform/idempotency"
	"github.com/kislikjeka/moneyguard/internal/shared/txn"
	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

type data struct {
	accounts      map[uuid.UUID]ledger.Account
	accountByCode map[ledger.Code]uuid.UUID
	balances      map[uuid.UUID]money.Amount
	entries       map[uuid.UUID]ledger.Entry
	entryOrder    []uuid.UUID
	reversals     map[uuid.UUID]uuid.UUID

	wallets    map[uuid.UUID]wallet.Wallet
	walletTxns []wallet.Transaction

	batches     map[uuid.UUID]inventory.Batch
	batchOrder  []uuid.UUID
	allocations []inventory.Allocation

	payments map[uuid.UUID]payment.Payment
	bonuses  []payment.Bonus

	receivables []chargeback.Receivable

	idempotency map[string]idempotency.Record
	audit       []audit.Event
}

func newData() *data {
	return &data{
		accounts:      make(map[uuid.UUID]ledger.Account),
		accountByCode: make(map[ledger.Code]uuid.UUID),
		balances:      make(map[uuid.UUID]money.Amount),
		entries:       make(map[uuid.UUID]ledger.Entry),
		reversals:     make(map[uuid.UUID]uuid.UUID),
		wallets:       make(map[uuid.UUID]wallet.Wallet),
		batches:       make(map[uuid.UUID]inventory.Batch),
		payments:      make(map[uuid.UUID]payment.Payment),
		idempotency:   make(map[string]idempotency.Record),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *data) clone() *data {
	entries := make(map[uuid.UUID]ledger.Entry, len(d.entries))
	for id, e := range d.entries {
		e.Lines = append([]ledger.Line(nil), e.Lines...)
		entries[id] = e
	}
	return &data{
		accounts:      cloneMap(d.accounts),
		accountByCode: cloneMap(d.accountByCode),
		balances:      cloneMap(d.balances),
		entries:       entries,
		entryOrder:    append([]uuid.UUID(nil), d.entryOrder...),
		reversals:     cloneMap(d.reversals),
		wallets:       cloneMap(d.wallets),
		walletTxns:    append([]wallet.Transaction(nil), d.walletTxns...),
		batches:       cloneMap(d.batches),
		batchOrder:    append([]uuid.UUID(nil), d.batchOrder...),
		allocations:   append([]inventory.Allocation(nil), d.allocations...),
		payments:      cloneMap(d.payments),
		bonuses:       append([]payment.Bonus(nil), d.bonuses...),
		receivables:   append([]chargeback.Receivable(nil), d.receivables...),
		idempotency:   cloneMap(d.idempotency),
		audit:         append([]audit.Event(nil), d.audit...),
	}
}

// Store holds all state
type Store struct {
	txMu sync.Mutex
	d    *data
	// Commits counts committed top-level transactions
	commits int

	faultMu sync.Mutex
	faults  map[string]error
}

// New creates an empty store
func New() *Store {
	return &Store{d: newData(), faults: make(map[string]error)}
}

// Repository operations FailOn can target
const (
	OpCreateReceivable    = "CreateReceivable"
	OpAppendAudit         = "AppendAudit"
	OpUpdatePaymentStatus = "UpdatePaymentStatus"
	OpWalletStates        = "WalletStates"
)

// FailOn makes the next call of op return err. The fault fires once.
func (s *Store) FailOn(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return err
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}

// Do implements txn.Manager. A context that already carries a transaction joins it; with
// opts.Savepoint a failure inside the joined call restores the state it started from.
func (s *Store) Do(ctx context.Context, opts txn.Options, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		if !opts.Savepoint {
			return fn(ctx)
		}
		mark := s.d.clone()
		defer func() {
			if p := recover(); p != nil {
				s.d = mark
				panic(p)
			}
			if err != nil {
				s.d = mark
			}
		}()
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.d.clone()
	defer func() {
		if p := recover(); p != nil {
			s.d = snapshot
			panic(p)
		}
		if err != nil {
			s.d = snapshot
			return
		}
		s.commits++
	}()

	return fn(context.WithValue(ctx, txKey{}, true))
}

// Commits returns how many top-level transactions committed
func (s *Store) Commits() int {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.commits
}

// with runs fn against the state, inside the caller's transaction or as its own
func (s *Store) with(ctx context.Context, fn func(d *data) error) error {
	if inTx(ctx) {
		return fn(s.d)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s.d)
}

var _ txn.Manager = (*Store)(nil)

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v not found", kind, id)
}
