package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// WalletRepository implements wallet.Repository using PostgreSQL
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository creates a new PostgreSQL wallet repository
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

var _ wallet.Repository = (*WalletRepository)(nil)

// Create inserts a new wallet
func (r *WalletRepository) Create(ctx context.Context, w *wallet.Wallet) error {
	_, err := getQueryer(ctx, r.pool).Exec(ctx, `
		INSERT INTO wallets (id, user_id, balance, locked_balance, recovery_mode, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, w.ID, w.UserID, int64(w.Balance), int64(w.LockedBalance), w.RecoveryMode, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

const walletColumns = `id, user_id, balance, locked_balance, recovery_mode, created_at, updated_at`

func scanWallet(row pgx.Row) (*wallet.Wallet, error) {
	var w wallet.Wallet
	var balance, locked int64
	if err := row.Scan(&w.ID, &w.UserID, &balance, &locked, &w.RecoveryMode, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	w.Balance, w.LockedBalance = money.Amount(balance), money.Amount(locked)
	return &w, nil
}

// Get retrieves a wallet by ID
func (r *WalletRepository) Get(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	return scanWallet(getQueryer(ctx, r.pool).QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

// GetForUpdate retrieves a wallet and locks its row until the transaction ends
func (r *WalletRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	return scanWallet(getQueryer(ctx, r.pool).QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
}

// Update writes the balance fields and recovery flag
func (r *WalletRepository) Update(ctx context.Context, w *wallet.Wallet) error {
	tag, err := getQueryer(ctx, r.pool).Exec(ctx, `
		UPDATE wallets
		SET balance = $2, locked_balance = $3, recovery_mode = $4, updated_at = $5
		WHERE id = $1
	`, w.ID, int64(w.Balance), int64(w.LockedBalance), w.RecoveryMode, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return wallet.ErrWalletNotFound
	}
	return nil
}

// InsertTransaction appends a wallet transaction
func (r *WalletRepository) InsertTransaction(ctx context.Context, t *wallet.Transaction) error {
	_, err := getQueryer(ctx, r.pool).Exec(ctx, `
		INSERT INTO wallet_transactions (
			id, wallet_id, type, amount, balance_before, balance_after,
			reference_kind, reference_id, entry_id, paired_transaction_id, is_reversed, description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, t.ID, t.WalletID, string(t.Type), int64(t.Amount), int64(t.BalanceBefore), int64(t.BalanceAfter),
		string(t.Reference.Kind), t.Reference.ID, t.EntryID, t.PairedTransactionID, t.IsReversed, t.Description, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert wallet transaction: %w", err)
	}
	return nil
}

// ListTransactions returns a wallet's transactions oldest first
func (r *WalletRepository) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]*wallet.Transaction, error) {
	rows, err := getQueryer(ctx, r.pool).Query(ctx, `
		SELECT id, wallet_id, type, amount, balance_before, balance_after,
			reference_kind, reference_id, entry_id, paired_transaction_id, is_reversed, description, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at, id
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	defer rows.Close()

	var out []*wallet.Transaction
	for rows.Next() {
		var t wallet.Transaction
		var amount, before, after int64
		err := rows.Scan(&t.ID, &t.WalletID, &t.Type, &amount, &before, &after,
			&t.Reference.Kind, &t.Reference.ID, &t.EntryID, &t.PairedTransactionID, &t.IsReversed, &t.Description, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet transaction: %w", err)
		}
		t.Amount, t.BalanceBefore, t.BalanceAfter = money.Amount(amount), money.Amount(before), money.Amount(after)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet transactions: %w", err)
	}
	return out, nil
}

// SumTransactions totals a wallet's non-reversed transactions by balance class
func (r *WalletRepository) SumTransactions(ctx context.Context, walletID uuid.UUID) (wallet.Sums, error) {
	var credits, debits int64
	err := getQueryer(ctx, r.pool).QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = ANY($2)), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = ANY($3)), 0)
		FROM wallet_transactions
		WHERE wallet_id = $1 AND NOT is_reversed
	`, walletID, typeNames(wallet.ClassCredit), typeNames(wallet.ClassDebit)).Scan(&credits, &debits)
	if err != nil {
		return wallet.Sums{}, fmt.Errorf("failed to sum wallet transactions: %w", err)
	}
	return wallet.Sums{Credits: money.Amount(credits), Debits: money.Amount(debits)}, nil
}

func typeNames(c wallet.Class) []string {
	types := wallet.TypesOf(c)
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
