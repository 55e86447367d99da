package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/reconciliation"
	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// ReconciliationSource implements reconciliation.Source with read-only aggregate queries.
// The engine runs it inside a repeatable-read transaction so every check sees one snapshot.
type ReconciliationSource struct {
	pool *pgxpool.Pool
}

// NewReconciliationSource creates a new PostgreSQL reconciliation source
func NewReconciliationSource(pool *pgxpool.Pool) *ReconciliationSource {
	return &ReconciliationSource{pool: pool}
}

var _ reconciliation.Source = (*ReconciliationSource)(nil)

func (s *ReconciliationSource) WalletStates(ctx context.Context) ([]reconciliation.WalletState, error) {
	rows, err := getQueryer(ctx, s.pool).Query(ctx, `
		SELECT w.id, w.balance,
			COALESCE(SUM(t.amount) FILTER (WHERE t.type = ANY($1)), 0),
			COALESCE(SUM(t.amount) FILTER (WHERE t.type = ANY($2)), 0)
		FROM wallets w
		LEFT JOIN wallet_transactions t ON t.wallet_id = w.id AND NOT t.is_reversed
		GROUP BY w.id, w.balance
		ORDER BY w.id::text
	`, typeNames(wallet.ClassCredit), typeNames(wallet.ClassDebit))
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet states: %w", err)
	}
	defer rows.Close()

	var out []reconciliation.WalletState
	for rows.Next() {
		var st reconciliation.WalletState
		var stored, credits, debits int64
		if err := rows.Scan(&st.WalletID, &stored, &credits, &debits); err != nil {
			return nil, fmt.Errorf("failed to scan wallet state: %w", err)
		}
		st.Stored, st.Credits, st.Debits = money.Amount(stored), money.Amount(credits), money.Amount(debits)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet states: %w", err)
	}
	return out, nil
}

func (s *ReconciliationSource) TransactionTotals(ctx context.Context) (reconciliation.Totals, error) {
	var credits, debits int64
	err := getQueryer(ctx, s.pool).QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = ANY($1)), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = ANY($2)), 0)
		FROM wallet_transactions
		WHERE NOT is_reversed
	`, typeNames(wallet.ClassCredit), typeNames(wallet.ClassDebit)).Scan(&credits, &debits)
	if err != nil {
		return reconciliation.Totals{}, fmt.Errorf("failed to total transactions: %w", err)
	}
	return reconciliation.Totals{Credits: money.Amount(credits), Debits: money.Amount(debits)}, nil
}

func (s *ReconciliationSource) DanglingPairs(ctx context.Context) ([]reconciliation.DanglingPair, error) {
	rows, err := getQueryer(ctx, s.pool).Query(ctx, `
		SELECT t.id, t.paired_transaction_id
		FROM wallet_transactions t
		LEFT JOIN wallet_transactions p ON p.id = t.paired_transaction_id
		WHERE t.paired_transaction_id IS NOT NULL AND p.id IS NULL
		ORDER BY t.created_at, t.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to find dangling pairs: %w", err)
	}
	defer rows.Close()

	out := []reconciliation.DanglingPair{}
	for rows.Next() {
		var p reconciliation.DanglingPair
		if err := rows.Scan(&p.TransactionID, &p.PairedID); err != nil {
			return nil, fmt.Errorf("failed to scan dangling pair: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ActiveBatches reads allocated from the allocation rows, not the batch column,
// so a drifted counter on the batch shows up as a conservation violation.
func (s *ReconciliationSource) ActiveBatches(ctx context.Context) ([]reconciliation.BatchState, error) {
	rows, err := getQueryer(ctx, s.pool).Query(ctx, `
		SELECT b.id, b.company_id, b.total_received, b.value_remaining,
			COALESCE(SUM(a.amount) FILTER (WHERE NOT a.reversed), 0)
		FROM inventory_batches b
		LEFT JOIN inventory_allocations a ON a.batch_id = b.id
		WHERE b.status = 'active'
		GROUP BY b.id, b.company_id, b.total_received, b.value_remaining, b.created_at
		ORDER BY b.created_at, b.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read batches: %w", err)
	}
	defer rows.Close()

	var out []reconciliation.BatchState
	for rows.Next() {
		var b reconciliation.BatchState
		var total, remaining, allocated int64
		if err := rows.Scan(&b.BatchID, &b.CompanyID, &total, &remaining, &allocated); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		b.TotalReceived, b.ValueRemaining, b.Allocated = money.Amount(total), money.Amount(remaining), money.Amount(allocated)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}
	return out, nil
}

func (s *ReconciliationSource) AccountBalances(ctx context.Context) ([]ledger.AccountBalance, error) {
	return listBalances(ctx, getQueryer(ctx, s.pool))
}

func (s *ReconciliationSource) UnbalancedEntries(ctx context.Context) ([]ledger.EntryImbalance, error) {
	return unbalancedEntries(ctx, getQueryer(ctx, s.pool))
}
