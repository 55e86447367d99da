package reconciliation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// ErrNoReport is returned when no run has completed yet
var ErrNoReport = errors.New("no reconciliation report available")

// Trigger says why a run happened
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Status summarises a run
type Status string

const (
	StatusBalanced           Status = "balanced"
	StatusDiscrepanciesFound Status = "discrepancies_found"
)

// WalletMismatch is a wallet whose stored balance differs from its transaction log
type WalletMismatch struct {
	WalletID    uuid.UUID    `json:"wallet_id"`
	Stored      money.Amount `json:"stored"`
	Computed    money.Amount `json:"computed"`
	Discrepancy money.Amount `json:"discrepancy"`
}

// WalletCheck is the per-wallet check
type WalletCheck struct {
	Checked    int              `json:"checked"`
	Mismatches []WalletMismatch `json:"mismatches"`
	Passed     bool             `json:"passed"`
}

// SystemCheck compares platform-wide credits and debits
type SystemCheck struct {
	Credits money.Amount `json:"credits"`
	Debits  money.Amount `json:"debits"`
	Net     money.Amount `json:"net"`
	Passed  bool         `json:"passed"`
}

// EquationCheck evaluates the accounting equation over stored and recomputed balances
type EquationCheck struct {
	Stored   ledger.Equation `json:"stored"`
	Computed ledger.Equation `json:"computed"`
	Passed   bool            `json:"passed"`
}

// LiabilityCheck compares what wallets hold with what the ledger says is owed to them:
// the sum of stored wallet balances against Wallet-Liability plus Bonus-Liability.
type LiabilityCheck struct {
	Wallets    money.Amount `json:"wallets"`
	Ledger     money.Amount `json:"ledger"`
	Difference money.Amount `json:"difference"`
	Passed     bool         `json:"passed"`
}

// AccountMismatch is an account whose stored balance differs from its lines
type AccountMismatch struct {
	Code     ledger.Code  `json:"code"`
	Stored   money.Amount `json:"stored"`
	Computed money.Amount `json:"computed"`
}

// AccountCheck compares every account's stored balance with its lines
type AccountCheck struct {
	Checked    int               `json:"checked"`
	Mismatches []AccountMismatch `json:"mismatches"`
	Passed     bool              `json:"passed"`
}

// EntryCheck lists persisted entries whose lines do not balance
type EntryCheck struct {
	Unbalanced []ledger.EntryImbalance `json:"unbalanced"`
	Passed     bool                    `json:"passed"`
}

// PairCheck lists unresolved paired transaction ids
type PairCheck struct {
	Dangling []DanglingPair `json:"dangling"`
	Passed   bool           `json:"passed"`
}

// BatchViolation is a batch where value_remaining + allocated != total_received
type BatchViolation struct {
	BatchID        uuid.UUID    `json:"batch_id"`
	CompanyID      uuid.UUID    `json:"company_id"`
	TotalReceived  money.Amount `json:"total_received"`
	ValueRemaining money.Amount `json:"value_remaining"`
	Allocated      money.Amount `json:"allocated"`
	Difference     money.Amount `json:"difference"`
}

// InventoryCheck is the conservation check over active batches
type InventoryCheck struct {
	Checked    int              `json:"checked"`
	Violations []BatchViolation `json:"violations"`
	Passed     bool             `json:"passed"`
}

// CheckFailure is a check that could not run. It counts as a discrepancy.
type CheckFailure struct {
	Check string `json:"check"`
	Error string `json:"error"`
}

// Checks holds every check result. Two runs over unchanged data produce equal Checks.
type Checks struct {
	Wallets   WalletCheck    `json:"wallets"`
	System    SystemCheck    `json:"system"`
	Equation  EquationCheck  `json:"equation"`
	Accounts  AccountCheck   `json:"accounts"`
	Liability LiabilityCheck `json:"liability"`
	Entries   EntryCheck     `json:"entries"`
	Pairs     PairCheck      `json:"pairs"`
	Inventory InventoryCheck `json:"inventory"`
	Failures  []CheckFailure `json:"failures"`
}

// Passed reports whether every check passed and none failed to run
func (c *Checks) Passed() bool {
	return c.Wallets.Passed && c.System.Passed && c.Equation.Passed && c.Accounts.Passed &&
		c.Liability.Passed && c.Entries.Passed && c.Pairs.Passed && c.Inventory.Passed && len(c.Failures) == 0
}

// IntegrityBroken reports a ledger-level problem, as opposed to wallet or inventory drift.
// A liability difference alone is wallet drift: the ledger side is checked by Accounts.
func (c *Checks) IntegrityBroken() bool {
	return !c.Equation.Passed || !c.Accounts.Passed || !c.Entries.Passed
}

// Report is the result of one full run
type Report struct {
	RunID      string    `json:"run_id"`
	Trigger    Trigger   `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     Status    `json:"status"`
	Balanced   bool      `json:"balanced"`
	Checks     Checks    `json:"checks"`
}

// MemoryCache keeps the latest report in process
type MemoryCache struct {
	mu     sync.RWMutex
	latest *Report
}

// NewMemoryCache creates an in-process report cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Save implements ReportCache
func (c *MemoryCache) Save(_ context.Context, r *Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = r
	return nil
}

// Latest implements ReportCache
func (c *MemoryCache) Latest(_ context.Context) (*Report, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return nil, ErrNoReport
	}
	return c.latest, nil
}
