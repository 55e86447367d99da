package reconciliation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/platform/alert"
	"github.com/kislikjeka/moneyguard/internal/platform/approval"
	"github.com/kislikjeka/moneyguard/internal/platform/audit"
	"github.com/kislikjeka/moneyguard/internal/shared/txn"
	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/logger"
)

// WalletAdjuster recomputes and corrects wallet balances under the wallet lock
type WalletAdjuster interface {
	Recompute(ctx context.Context, walletID uuid.UUID) (*wallet.Recomputed, error)
	ApplyAdjustment(ctx context.Context, walletID uuid.UUID, approve func(ctx context.Context, r wallet.Recomputed) error) (*wallet.Transaction, error)
}

// TokenVerifier checks approval tokens
type TokenVerifier interface {
	Verify(ctx context.Context, token string, walletID uuid.UUID, action string) (*approval.Claims, error)
}

// Engine re-derives expected state from the transaction log and flags divergence
type Engine struct {
	source    Source
	tx        txn.Manager
	wallets   WalletAdjuster
	approvals TokenVerifier
	audit     *audit.Recorder
	cache     ReportCache
	alerter   alert.Alerter
	logger    *logger.Logger
	clock     func() time.Time
	newRunID  func() string
}

// Deps groups the engine's collaborators
type Deps struct {
	Source    Source
	Tx        txn.Manager
	Wallets   WalletAdjuster
	Approvals TokenVerifier
	Audit     *audit.Recorder
	Cache     ReportCache
	Alerter   alert.Alerter
	Logger    *logger.Logger
}

// NewEngine creates a reconciliation engine
func NewEngine(d Deps) *Engine {
	cache := d.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Engine{
		source:    d.Source,
		tx:        d.Tx,
		wallets:   d.Wallets,
		approvals: d.Approvals,
		audit:     d.Audit,
		cache:     cache,
		alerter:   d.Alerter,
		logger:    d.Logger.WithField("component", "reconciliation"),
		clock:     time.Now,
		newRunID:  func() string { return ulid.Make().String() },
	}
}

// Run executes every check over one consistent snapshot and returns the report.
// Discrepancies are data: they land in the report, not in the returned error.
// A check that cannot run is recorded as a failure and the remaining checks still run:
// each check reads inside its own savepoint, so a failed query does not abort the snapshot.
func (e *Engine) Run(ctx context.Context, trigger Trigger) (*Report, error) {
	report := &Report{
		RunID:     e.newRunID(),
		Trigger:   trigger,
		StartedAt: e.clock().UTC(),
	}
	log := e.logger.WithContext(ctx).WithField("run_id", report.RunID)

	ran := false
	err := e.tx.Do(ctx, txn.Options{Isolation: txn.RepeatableRead, ReadOnly: true}, func(ctx context.Context) error {
		report.Checks = e.runChecks(ctx, log)
		ran = true
		return nil
	})
	switch {
	case err != nil && !ran:
		return nil, fmt.Errorf("reconciliation run failed: %w", err)
	case err != nil:
		// The snapshot was read-only; closing it cannot change what the checks saw.
		log.Error("failed to close reconciliation snapshot", "error", err)
		report.Checks.Failures = append(report.Checks.Failures, CheckFailure{Check: "snapshot", Error: err.Error()})
	}

	report.FinishedAt = e.clock().UTC()
	report.Balanced = report.Checks.Passed()
	report.Status = StatusBalanced
	if !report.Balanced {
		report.Status = StatusDiscrepanciesFound
	}

	if err := e.cache.Save(ctx, report); err != nil {
		log.Error("failed to cache reconciliation report", "error", err)
	}

	log.Info("reconciliation finished",
		"status", report.Status,
		"trigger", trigger,
		"wallet_mismatches", len(report.Checks.Wallets.Mismatches),
		"failures", len(report.Checks.Failures),
	)

	if !report.Balanced {
		e.raise(ctx, report)
	}
	return report, nil
}

func (e *Engine) runChecks(ctx context.Context, log *logger.Logger) Checks {
	var c Checks
	c.Failures = []CheckFailure{}
	step := func(check string, read func(ctx context.Context) error) bool {
		err := e.tx.Do(ctx, txn.Options{Savepoint: true}, read)
		if err != nil {
			log.Error("reconciliation check failed", "check", check, "error", err)
			c.Failures = append(c.Failures, CheckFailure{Check: check, Error: err.Error()})
			return false
		}
		return true
	}

	var (
		states     []WalletState
		totals     Totals
		balances   []ledger.AccountBalance
		unbalanced []ledger.EntryImbalance
		dangling   []DanglingPair
		batches    []BatchState
	)

	haveStates := step("wallets", func(ctx context.Context) (err error) {
		states, err = e.source.WalletStates(ctx)
		return err
	})
	if haveStates {
		c.Wallets = checkWallets(states)
	}

	if step("system", func(ctx context.Context) (err error) {
		totals, err = e.source.TransactionTotals(ctx)
		return err
	}) {
		c.System = checkSystem(totals)
	}

	haveBalances := step("accounts", func(ctx context.Context) (err error) {
		balances, err = e.source.AccountBalances(ctx)
		return err
	})
	if haveBalances {
		c.Equation = checkEquation(balances)
		c.Accounts = checkAccounts(balances)
	}

	if haveStates && haveBalances {
		c.Liability = checkLiability(states, balances)
	}

	if step("entries", func(ctx context.Context) (err error) {
		unbalanced, err = e.source.UnbalancedEntries(ctx)
		return err
	}) {
		c.Entries = checkEntries(unbalanced)
	}

	if step("pairs", func(ctx context.Context) (err error) {
		dangling, err = e.source.DanglingPairs(ctx)
		return err
	}) {
		c.Pairs = checkPairs(dangling)
	}

	if step("inventory", func(ctx context.Context) (err error) {
		batches, err = e.source.ActiveBatches(ctx)
		return err
	}) {
		c.Inventory = checkInventory(batches)
	}

	if c.IntegrityBroken() {
		log.Critical("ledger integrity check failed",
			"equation_difference", c.Equation.Stored.Difference.String(),
			"account_mismatches", len(c.Accounts.Mismatches),
			"unbalanced_entries", len(c.Entries.Unbalanced),
		)
	}
	return c
}

func (e *Engine) raise(ctx context.Context, r *Report) {
	if e.alerter == nil {
		return
	}
	severity := alert.SeverityWarning
	if r.Checks.IntegrityBroken() {
		severity = alert.SeverityCritical
	}

	err := e.alerter.Notify(ctx, alert.Alert{
		Source:   "reconciliation",
		Severity: severity,
		Title:    "reconciliation found discrepancies",
		Detail:   fmt.Sprintf("run %s (%s)", r.RunID, r.Trigger),
		Labels: map[string]string{
			"run_id":               r.RunID,
			"wallet_mismatches":    strconv.Itoa(len(r.Checks.Wallets.Mismatches)),
			"liability_difference": r.Checks.Liability.Difference.String(),
			"account_mismatches":   strconv.Itoa(len(r.Checks.Accounts.Mismatches)),
			"unbalanced_entries":   strconv.Itoa(len(r.Checks.Entries.Unbalanced)),
			"dangling_pairs":       strconv.Itoa(len(r.Checks.Pairs.Dangling)),
			"inventory_violations": strconv.Itoa(len(r.Checks.Inventory.Violations)),
			"check_failures":       strconv.Itoa(len(r.Checks.Failures)),
		},
		RaisedAt: e.clock().UTC(),
	})
	if err != nil {
		e.logger.Error("failed to send reconciliation alert", "run_id", r.RunID, "error", err)
	}
}

// Latest returns the most recent cached report
func (e *Engine) Latest(ctx context.Context) (*Report, error) {
	return e.cache.Latest(ctx)
}

// CheckWallet recomputes one wallet on demand. A zero Discrepancy means the wallet is clean.
func (e *Engine) CheckWallet(ctx context.Context, walletID uuid.UUID) (*WalletMismatch, error) {
	r, err := e.wallets.Recompute(ctx, walletID)
	if err != nil {
		return nil, err
	}
	return &WalletMismatch{
		WalletID:    walletID,
		Stored:      r.Stored,
		Computed:    r.Computed,
		Discrepancy: r.Discrepancy(),
	}, nil
}
