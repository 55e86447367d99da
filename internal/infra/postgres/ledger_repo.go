package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// LedgerRepository implements ledger.Repository using PostgreSQL
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

var _ ledger.Repository = (*LedgerRepository)(nil)

// EnsureAccounts inserts missing accounts and their zero balances.
// Uses ON CONFLICT (code) DO NOTHING so concurrent bootstraps converge on one row per code.
func (r *LedgerRepository) EnsureAccounts(ctx context.Context, accounts []*ledger.Account) error {
	q := getQueryer(ctx, r.pool)
	for _, a := range accounts {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("invalid account %s: %w", a.Code, err)
		}
		_, err := q.Exec(ctx, `
			INSERT INTO accounts (id, code, name, type, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (code) DO NOTHING
		`, a.ID, string(a.Code), a.Name, string(a.Type), a.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert account %s: %w", a.Code, err)
		}
	}

	_, err := q.Exec(ctx, `
		INSERT INTO account_balances (account_id, balance)
		SELECT id, 0 FROM accounts
		ON CONFLICT (account_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to initialise account balances: %w", err)
	}
	return nil
}

// ListAccounts returns every account ordered by code
func (r *LedgerRepository) ListAccounts(ctx context.Context) ([]*ledger.Account, error) {
	rows, err := getQueryer(ctx, r.pool).Query(ctx, `
		SELECT id, code, name, type, created_at FROM accounts ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*ledger.Account
	for rows.Next() {
		var a ledger.Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// InsertEntry inserts an entry and its lines. A second reversal of the same entry hits the
// unique index on reverses_entry_id and returns ledger.ErrAlreadyReversed.
func (r *LedgerRepository) InsertEntry(ctx context.Context, e *ledger.Entry) error {
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO ledger_entries (id, event, reference_kind, reference_id, description, entry_date, reverses_entry_id, is_reversal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, string(e.Event), string(e.Reference.Kind), e.Reference.ID, e.Description, e.Date, e.ReversesEntryID, e.IsReversal, e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "ledger_entries_reverses_entry_id_key") {
			return ledger.ErrAlreadyReversed
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	batch := &pgx.Batch{}
	for i, l := range e.Lines {
		batch.Queue(`
			INSERT INTO ledger_lines (id, entry_id, line_no, account_id, side, amount)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, l.ID, e.ID, i, l.AccountID, string(l.Side), int64(l.Amount))
	}
	br := q.SendBatch(ctx, batch)
	for i := range e.Lines {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to insert line %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to insert lines: %w", err)
	}
	return nil
}

const entryColumns = `e.id, e.event, e.reference_kind, e.reference_id, e.description, e.entry_date, e.reverses_entry_id, e.is_reversal, e.created_at`

func scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	err := row.Scan(&e.ID, &e.Event, &e.Reference.Kind, &e.Reference.ID, &e.Description, &e.Date,
		&e.ReversesEntryID, &e.IsReversal, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEntry retrieves an entry with its lines
func (r *LedgerRepository) GetEntry(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	q := getQueryer(ctx, r.pool)
	e, err := scanEntry(q.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries e WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	if err := r.loadLines(ctx, q, []*ledger.Entry{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// HasReversal reports whether entryID was already reversed
func (r *LedgerRepository) HasReversal(ctx context.Context, entryID uuid.UUID) (bool, error) {
	var exists bool
	err := getQueryer(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE reverses_entry_id = $1)`, entryID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reversal: %w", err)
	}
	return exists, nil
}

// ListEntriesByReference returns the entries of one business record in creation order
func (r *LedgerRepository) ListEntriesByReference(ctx context.Context, ref ledger.Reference) ([]*ledger.Entry, error) {
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries e
		WHERE e.reference_kind = $1 AND e.reference_id = $2
		ORDER BY e.created_at, e.id
	`, string(ref.Kind), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	var entries []*ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	if err := r.loadLines(ctx, q, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *LedgerRepository) loadLines(ctx context.Context, q querier, entries []*ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(entries))
	byID := make(map[uuid.UUID]*ledger.Entry, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		byID[e.ID] = e
	}

	rows, err := q.Query(ctx, `
		SELECT l.id, l.entry_id, l.account_id, a.code, l.side, l.amount
		FROM ledger_lines l
		JOIN accounts a ON a.id = l.account_id
		WHERE l.entry_id = ANY($1)
		ORDER BY l.entry_id, l.line_no
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to load lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l ledger.Line
		var amount int64
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.AccountCode, &l.Side, &amount); err != nil {
			return fmt.Errorf("failed to scan line: %w", err)
		}
		l.Amount = money.Amount(amount)
		e := byID[l.EntryID]
		e.Lines = append(e.Lines, l)
	}
	return rows.Err()
}

// EntryTotals re-reads the persisted debit and credit totals of an entry
func (r *LedgerRepository) EntryTotals(ctx context.Context, entryID uuid.UUID) (debits, credits money.Amount, err error) {
	var d, c int64
	err = getQueryer(ctx, r.pool).QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE side = 'debit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE side = 'credit'), 0)
		FROM ledger_lines
		WHERE entry_id = $1
	`, entryID).Scan(&d, &c)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to total entry %s: %w", entryID, err)
	}
	return money.Amount(d), money.Amount(c), nil
}

// GetBalanceForUpdate locks an account balance row until the transaction ends
func (r *LedgerRepository) GetBalanceForUpdate(ctx context.Context, accountID uuid.UUID) (money.Amount, error) {
	var balance int64
	err := getQueryer(ctx, r.pool).QueryRow(ctx,
		`SELECT balance FROM account_balances WHERE account_id = $1 FOR UPDATE`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, accountID)
		}
		return 0, fmt.Errorf("failed to lock balance: %w", err)
	}
	return money.Amount(balance), nil
}

// SetBalance writes an account's running balance
func (r *LedgerRepository) SetBalance(ctx context.Context, accountID uuid.UUID, balance money.Amount) error {
	tag, err := getQueryer(ctx, r.pool).Exec(ctx,
		`UPDATE account_balances SET balance = $2, updated_at = NOW() WHERE account_id = $1`, accountID, int64(balance))
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, accountID)
	}
	return nil
}

const balancesQuery = `
	SELECT a.id, a.code, a.name, a.type, b.balance,
		COALESCE(SUM(l.amount) FILTER (WHERE l.side = 'debit'), 0),
		COALESCE(SUM(l.amount) FILTER (WHERE l.side = 'credit'), 0)
	FROM accounts a
	JOIN account_balances b ON b.account_id = a.id
	LEFT JOIN ledger_lines l ON l.account_id = a.id
	GROUP BY a.id, a.code, a.name, a.type, b.balance
	ORDER BY a.code
`

// ListBalances returns each account's stored balance with the totals of its lines
func (r *LedgerRepository) ListBalances(ctx context.Context) ([]ledger.AccountBalance, error) {
	return listBalances(ctx, getQueryer(ctx, r.pool))
}

func listBalances(ctx context.Context, q querier) ([]ledger.AccountBalance, error) {
	rows, err := q.Query(ctx, balancesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	var out []ledger.AccountBalance
	for rows.Next() {
		var b ledger.AccountBalance
		var balance, debits, credits int64
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &balance, &debits, &credits); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		b.Balance, b.TotalDebits, b.TotalCredits = money.Amount(balance), money.Amount(debits), money.Amount(credits)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return out, nil
}

// UnbalancedEntries lists persisted entries whose debit and credit lines differ
func (r *LedgerRepository) UnbalancedEntries(ctx context.Context) ([]ledger.EntryImbalance, error) {
	return unbalancedEntries(ctx, getQueryer(ctx, r.pool))
}

func unbalancedEntries(ctx context.Context, q querier) ([]ledger.EntryImbalance, error) {
	rows, err := q.Query(ctx, `
		SELECT e.id,
			COALESCE(SUM(l.amount) FILTER (WHERE l.side = 'debit'), 0) AS debits,
			COALESCE(SUM(l.amount) FILTER (WHERE l.side = 'credit'), 0) AS credits
		FROM ledger_entries e
		LEFT JOIN ledger_lines l ON l.entry_id = e.id
		GROUP BY e.id
		HAVING COALESCE(SUM(l.amount) FILTER (WHERE l.side = 'debit'), 0)
			<> COALESCE(SUM(l.amount) FILTER (WHERE l.side = 'credit'), 0)
		ORDER BY e.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to find unbalanced entries: %w", err)
	}
	defer rows.Close()

	out := []ledger.EntryImbalance{}
	for rows.Next() {
		var imb ledger.EntryImbalance
		var d, c int64
		if err := rows.Scan(&imb.EntryID, &d, &c); err != nil {
			return nil, fmt.Errorf("failed to scan imbalance: %w", err)
		}
		imb.Debits, imb.Credits = money.Amount(d), money.Amount(c)
		out = append(out, imb)
	}
	return out, rows.Err()
}
