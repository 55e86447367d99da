package wallet

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines wallet persistence.
// GetForUpdate must hold an exclusive row lock until the surrounding transaction ends.
type Repository interface {
	Create(ctx context.Context, w *Wallet) error
	Get(ctx context.Context, id uuid.UUID) (*Wallet, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Wallet, error)
	Update(ctx context.Context, w *Wallet) error

	InsertTransaction(ctx context.Context, t *Transaction) error
	ListTransactions(ctx context.Context, walletID uuid.UUID) ([]*Transaction, error)
	SumTransactions(ctx context.Context, walletID uuid.UUID) (Sums, error)
}

// DepositObserver runs after a deposit, inside its transaction, with the wallet row locked.
// Changes the observer makes to w are persisted with the deposit.
type DepositObserver interface {
	AfterDeposit(ctx context.Context, w *Wallet, deposit *Transaction) error
}
