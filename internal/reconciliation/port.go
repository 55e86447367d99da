package reconciliation

import (
	"context"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// WalletState is a wallet's stored balance next to the totals of its transaction log
type WalletState struct {
	WalletID uuid.UUID
	Stored   money.Amount
	Credits  money.Amount
	Debits   money.Amount
}

// Computed is credits minus debits over non-reversed transactions
func (w WalletState) Computed() money.Amount {
	return w.Credits - w.Debits
}

// Totals are platform-wide transaction sums by class
type Totals struct {
	Credits money.Amount
	Debits  money.Amount
}

// DanglingPair is a transaction whose paired_transaction_id does not resolve
type DanglingPair struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	PairedID      uuid.UUID `json:"paired_id"`
}

// BatchState is an inventory batch's three quantities
type BatchState struct {
	BatchID        uuid.UUID
	CompanyID      uuid.UUID
	TotalReceived  money.Amount
	ValueRemaining money.Amount
	Allocated      money.Amount
}

// Source reads the append-only logs and stored state the checks compare.
// Methods take part in the transaction carried by ctx.
type Source interface {
	WalletStates(ctx context.Context) ([]WalletState, error)
	TransactionTotals(ctx context.Context) (Totals, error)
	DanglingPairs(ctx context.Context) ([]DanglingPair, error)
	ActiveBatches(ctx context.Context) ([]BatchState, error)
	AccountBalances(ctx context.Context) ([]ledger.AccountBalance, error)
	UnbalancedEntries(ctx context.Context) ([]ledger.EntryImbalance, error)
}

// ReportCache keeps the latest report for dashboards
type ReportCache interface {
	Save(ctx context.Context, r *Report) error
	Latest(ctx context.Context) (*Report, error)
}
