package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/pkg/money"
)

// Repository defines the interface for ledger persistence operations.
// Methods take part in the transaction carried by ctx.
type Repository interface {
	// Account operations
	EnsureAccounts(ctx context.Context, accounts []*Account) error
	ListAccounts(ctx context.Context) ([]*Account, error)

	// Entry operations (entries are immutable once inserted)
	InsertEntry(ctx context.Context, entry *Entry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error)
	HasReversal(ctx context.Context, entryID uuid.UUID) (bool, error)
	ListEntriesByReference(ctx context.Context, ref Reference) ([]*Entry, error)
	EntryTotals(ctx context.Context, entryID uuid.UUID) (debits, credits money.Amount, err error)

	// Balance operations
	GetBalanceForUpdate(ctx context.Context, accountID uuid.UUID) (money.Amount, error)
	SetBalance(ctx context.Context, accountID uuid.UUID, balance money.Amount) error
	ListBalances(ctx context.Context) ([]AccountBalance, error)

	// Integrity reads
	UnbalancedEntries(ctx context.Context) ([]EntryImbalance, error)
}
