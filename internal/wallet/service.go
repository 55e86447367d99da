package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/platform/lock"
	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/internal/shared/txn"
	"github.com/kislikjeka/moneyguard/pkg/logger"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// Service implements the wallet primitives.
//
// Every balance change follows the same path: named wallet lock, database transaction,
// row lock, read, write, append a transaction row, post the mirroring ledger entry.
// Balances are never blindly incremented.
type Service struct {
	repo      Repository
	ledger    *ledger.Service
	tx        txn.Manager
	locker    lock.Locker
	lockOpts  lock.Options
	observers []DepositObserver
	logger    *logger.Logger
	clock     func() time.Time
}

// NewService creates a new wallet service
func NewService(repo Repository, led *ledger.Service, tx txn.Manager, locker lock.Locker, lockOpts lock.Options, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		ledger:   led,
		tx:       tx,
		locker:   locker,
		lockOpts: lockOpts,
		logger:   log.WithField("component", "wallet"),
		clock:    time.Now,
	}
}

// Observe registers a deposit observer
func (s *Service) Observe(o DepositObserver) {
	s.observers = append(s.observers, o)
}

// LockKey is the named lock guarding a wallet
func LockKey(walletID uuid.UUID) string {
	return lock.Key("wallet", walletID)
}

// Open creates an empty wallet for a user
func (s *Service) Open(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	now := s.clock().UTC()
	w := &Wallet{ID: uuid.New(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	if err := s.repo.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return w, nil
}

// Get returns a wallet
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.mapNotFound(err)
	}
	return w, nil
}

// Transactions lists a wallet's transactions, oldest first
func (s *Service) Transactions(ctx context.Context, id uuid.UUID) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, id)
}

// WithLocked runs fn with the wallet locked by name and by row inside one transaction.
// Changes fn makes to w are written back when fn succeeds.
func (s *Service) WithLocked(ctx context.Context, walletID uuid.UUID, fn func(ctx context.Context, w *Wallet) error) error {
	return lock.WithLock(ctx, s.locker, LockKey(walletID), s.lockOpts, func(ctx context.Context) error {
		return s.tx.Do(ctx, txn.Default(), func(ctx context.Context) error {
			w, err := s.repo.GetForUpdate(ctx, walletID)
			if err != nil {
				return s.mapNotFound(err)
			}
			if err := fn(ctx, w); err != nil {
				return err
			}
			w.UpdatedAt = s.clock().UTC()
			if err := s.repo.Update(ctx, w); err != nil {
				return fmt.Errorf("failed to update wallet %s: %w", walletID, err)
			}
			return nil
		})
	})
}

// Deposit credits a wallet and then lets observers (receivable settlement) act on the
// locked wallet in the same transaction.
func (s *Service) Deposit(ctx context.Context, walletID uuid.UUID, amount money.Amount, ref ledger.Reference) (*Transaction, error) {
	if err := s.requirePositive("deposit", amount); err != nil {
		return nil, err
	}

	var out *Transaction
	err := s.WithLocked(ctx, walletID, func(ctx context.Context, w *Wallet) error {
		t, err := s.apply(ctx, w, TxnDeposit, amount, ref, nil, s.ledger.RecordDeposit)
		if err != nil {
			return err
		}
		for _, o := range s.observers {
			if err := o.AfterDeposit(ctx, w, t); err != nil {
				return fmt.Errorf("deposit observer failed: %w", err)
			}
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Withdraw pays money out of a wallet
func (s *Service) Withdraw(ctx context.Context, walletID uuid.UUID, amount money.Amount, ref ledger.Reference) (*Transaction, error) {
	return s.spend(ctx, walletID, TxnWithdrawal, amount, ref, s.ledger.RecordWithdrawal)
}

// Invest buys shares with wallet funds
func (s *Service) Invest(ctx context.Context, walletID uuid.UUID, amount money.Amount, ref ledger.Reference) (*Transaction, error) {
	return s.spend(ctx, walletID, TxnInvestment, amount, ref, s.ledger.RecordInvestment)
}

// Hold reserves amount of the available balance for a pending payout. Held funds stay in
// the balance but Withdraw, Invest and settlement cannot use them.
func (s *Service) Hold(ctx context.Context, walletID uuid.UUID, amount money.Amount) (*Wallet, error) {
	if err := s.requirePositive("hold", amount); err != nil {
		return nil, err
	}

	var out Wallet
	err := s.WithLocked(ctx, walletID, func(ctx context.Context, w *Wallet) error {
		if w.RecoveryMode {
			return apperrors.RecoveryMode(
				fmt.Sprintf("wallet %s has outstanding receivables; hold is blocked", walletID), ErrRecoveryMode)
		}
		if w.Available() < amount {
			return apperrors.InsufficientBalance(
				fmt.Sprintf("hold of %s exceeds available balance %s", amount, w.Available()), ErrInsufficientBalance)
		}
		w.LockedBalance += amount
		out = *w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReleaseHold returns held funds to the available balance
func (s *Service) ReleaseHold(ctx context.Context, walletID uuid.UUID, amount money.Amount) (*Wallet, error) {
	if err := s.requirePositive("release", amount); err != nil {
		return nil, err
	}

	var out Wallet
	err := s.WithLocked(ctx, walletID, func(ctx context.Context, w *Wallet) error {
		if amount > w.LockedBalance {
			return apperrors.InvalidState(
				fmt.Sprintf("release of %s exceeds held %s", amount, w.LockedBalance), ErrHoldExceeded)
		}
		w.LockedBalance -= amount
		out = *w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PayoutHeld pays held funds out of the wallet and consumes the hold
func (s *Service) PayoutHeld(ctx context.Context, walletID uuid.UUID, amount money.Amount, ref ledger.Reference) (*Transaction, error) {
	if err := s.requirePositive("payout", amount); err != nil {
		return nil, err
	}

	var out *Transaction
	err := s.WithLocked(ctx, walletID, func(ctx context.Context, w *Wallet) error {
		if w.RecoveryMode {
			return apperrors.RecoveryMode(
				fmt.Sprintf("wallet %s has outstanding receivables; payout is blocked", walletID), ErrRecoveryMode)
		}
		if amount > w.LockedBalance {
			return apperrors.InvalidState(
				fmt.Sprintf("payout of %s exceeds held %s", amount, w.LockedBalance), ErrHoldExceeded)
		}
		t, err := s.apply(ctx, w, TxnWithdrawal, amount, ref, nil, s.ledger.RecordWithdrawal)
		if err != nil {
			return err
		}
		w.LockedBalance -= amount
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Refund returns sale proceeds to a wallet
func (s *Service) Refund(ctx context.Context, walletID uuid.UUID, amount money.Amount, ref ledger.Reference) (*Transaction, error) {
	if err := s.requirePositive("refund", amount); err != nil {
		return nil, err
	}

	var out *Transaction
	err := s.WithLocked(ctx, walletID, func(ctx context.Context, w *Wallet) error {
		t, err := s.apply(ctx, w, TxnRefund, amount, ref, nil, s.ledger.RecordRefund)
		out = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreditBonus credits gross and withholds tds as two paired transactions
func (s *Service) CreditBonus(ctx context.Context, walletID uuid.UUID, gross, tds money.Amount, ref ledger.Reference) (*BonusCredit, error) {
	if err := s.requirePositive("bonus", gross); err != nil {
		return nil, err
	}
	if tds < 0 || tds > gross {
		return nil, apperrors.Validation(fmt.Sprintf("TDS %s invalid for bonus %s", tds, gross), ErrInvalidTDS)
	}

	var out BonusCredit
	err := s.WithLocked(ctx, walletID, func(ctx context.Context, w *Wallet) error {
		creditID, tdsID := uuid.New(), uuid.New()
		var pairOfCredit *uuid.UUID
		if tds > 0 {
			pairOfCredit = &tdsID
		}

		credit, err := s.applyWithID(ctx, w, creditID, TxnBonusCredit, gross, ref, pairOfCredit,
			func(ctx context.Context, ref ledger.Reference, amount money.Amount) (*ledger.Entry, error) {
				if _, err := s.ledger.RecordBonusCredit(ctx, ref, amount); err != nil {
					return nil, err
				}
				return s.ledger.RecordBonusToWallet(ctx, ref, amount)
			})
		if err != nil {
			return err
		}
		out.Credit = credit

		if tds > 0 {
			withheld, err := s.applyWithID(ctx, w, tdsID, TxnTDSDeduction, tds, ref, &creditID, s.ledger.RecordTDSDeduction)
			if err != nil {
				return err
			}
			out.TDS = withheld
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecoveryDebit claws owed back from a wallet: it debits min(balance, owed), bonus part
// first, and reports the rest as shortfall. Run it inside the caller's transaction so the
// shortfall handling commits or rolls back with the debit.
func (s *Service) RecoveryDebit(ctx context.Context, walletID uuid.UUID, owed ledger.Split, ref ledger.Reference) (*Recovery, error) {
	if owed.Bonus < 0 || owed.Principal < 0 {
		return nil, apperrors.Validation("owed amounts cannot be negative", money.ErrNonPositiveAmount)
	}

	out := &Recovery{}
	err := s.WithLocked(ctx, walletID, func(ctx context.Context, w *Wallet) error {
		actual := money.Min(w.Balance, owed.Total())
		if actual < 0 {
			actual = 0
		}
		out.Debited.Bonus = money.Min(actual, owed.Bonus)
		out.Debited.Principal = actual - out.Debited.Bonus
		out.Shortfall = ledger.Split{
			Bonus:     owed.Bonus - out.Debited.Bonus,
			Principal: owed.Principal - out.Debited.Principal,
		}

		if actual == 0 {
			return nil
		}

		split := out.Debited
		t, err := s.apply(ctx, w, TxnRecoveryDebit, actual, ref, nil,
			func(ctx context.Context, ref ledger.Reference, _ money.Amount) (*ledger.Entry, error) {
				return s.ledger.RecordWalletRecovery(ctx, ref, split)
			})
		if err != nil {
			return err
		}
		out.Transaction = t
		s.shrinkHold(ctx, w)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplySettlement moves amount from a wallet the caller holds locked to an outstanding
// receivable. The caller persists w.
func (s *Service) ApplySettlement(ctx context.Context, w *Wallet, amount money.Amount, receivableID uuid.UUID) (*Transaction, error) {
	if amount > w.Available() {
		return nil, apperrors.InsufficientBalance(
			fmt.Sprintf("settlement %s exceeds available balance %s", amount, w.Available()), ErrInsufficientBalance)
	}
	return s.apply(ctx, w, TxnReceivableSettlement, amount, ledger.ReceivableRef(receivableID), nil, s.ledger.RecordReceivableSettlement)
}

// SetRecoveryMode flips the recovery flag
func (s *Service) SetRecoveryMode(ctx context.Context, walletID uuid.UUID, on bool) error {
	return s.WithLocked(ctx, walletID, func(ctx context.Context, w *Wallet) error {
		if w.RecoveryMode != on {
			s.logger.WithContext(ctx).Info("recovery mode changed", "wallet_id", walletID, "recovery_mode", on)
		}
		w.RecoveryMode = on
		return nil
	})
}

// Recompute derives the balance from the transaction log without locking
func (s *Service) Recompute(ctx context.Context, walletID uuid.UUID) (*Recomputed, error) {
	w, err := s.repo.Get(ctx, walletID)
	if err != nil {
		return nil, s.mapNotFound(err)
	}
	sums, err := s.repo.SumTransactions(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return &Recomputed{WalletID: walletID, Stored: w.Balance, Computed: sums.Balance()}, nil
}

// ApplyAdjustment recomputes the balance under lock, asks approve whether to correct it,
// and if approved sets the stored balance to the computed one with a neutral adjustment row.
// approve sees the fresh figures and runs in the same transaction.
func (s *Service) ApplyAdjustment(ctx context.Context, walletID uuid.UUID, approve func(ctx context.Context, r Recomputed) error) (*Transaction, error) {
	var out *Transaction
	err := s.WithLocked(ctx, walletID, func(ctx context.Context, w *Wallet) error {
		sums, err := s.repo.SumTransactions(ctx, walletID)
		if err != nil {
			return fmt.Errorf("failed to sum transactions: %w", err)
		}
		r := Recomputed{WalletID: walletID, Stored: w.Balance, Computed: sums.Balance()}
		if r.Discrepancy() == 0 {
			return apperrors.InvalidState("nothing to adjust", ErrNoDiscrepancy)
		}
		if err := approve(ctx, r); err != nil {
			return err
		}

		t := &Transaction{
			ID:            uuid.New(),
			WalletID:      walletID,
			Type:          TxnAdjustment,
			Amount:        r.Discrepancy().Abs(),
			BalanceBefore: r.Stored,
			BalanceAfter:  r.Computed,
			Reference:     ledger.WalletRef(walletID),
			Description:   "reconciliation adjustment to transaction log",
			CreatedAt:     s.clock().UTC(),
		}
		if err := s.repo.InsertTransaction(ctx, t); err != nil {
			return fmt.Errorf("failed to insert adjustment: %w", err)
		}
		w.Balance = r.Computed
		s.shrinkHold(ctx, w)

		s.logger.WithContext(ctx).Warn("wallet balance adjusted",
			"wallet_id", walletID,
			"before", r.Stored.String(),
			"after", r.Computed.String(),
		)
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type poster func(ctx context.Context, ref ledger.Reference, amount money.Amount) (*ledger.Entry, error)

func (s *Service) spend(ctx context.Context, walletID uuid.UUID, typ TxnType, amount money.Amount, ref ledger.Reference, post poster) (*Transaction, error) {
	if err := s.requirePositive(string(typ), amount); err != nil {
		return nil, err
	}

	var out *Transaction
	err := s.WithLocked(ctx, walletID, func(ctx context.Context, w *Wallet) error {
		if w.RecoveryMode {
			return apperrors.RecoveryMode(
				fmt.Sprintf("wallet %s has outstanding receivables; %s is blocked", walletID, typ), ErrRecoveryMode)
		}
		if w.Available() < amount {
			return apperrors.InsufficientBalance(
				fmt.Sprintf("%s of %s exceeds available balance %s", typ, amount, w.Available()), ErrInsufficientBalance)
		}
		t, err := s.apply(ctx, w, typ, amount, ref, nil, post)
		out = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) apply(ctx context.Context, w *Wallet, typ TxnType, amount money.Amount, ref ledger.Reference, paired *uuid.UUID, post poster) (*Transaction, error) {
	return s.applyWithID(ctx, w, uuid.New(), typ, amount, ref, paired, post)
}

// applyWithID moves the balance of a locked wallet, posts the ledger entry referencing the
// wallet transaction and appends the transaction row
func (s *Service) applyWithID(ctx context.Context, w *Wallet, id uuid.UUID, typ TxnType, amount money.Amount, ref ledger.Reference, paired *uuid.UUID, post poster) (*Transaction, error) {
	before := w.Balance
	after := before
	switch typ.Class() {
	case ClassCredit:
		after += amount
	case ClassDebit:
		after -= amount
	}
	if after < 0 {
		return nil, apperrors.InsufficientBalance(
			fmt.Sprintf("%s of %s would overdraw wallet %s", typ, amount, w.ID), ErrInsufficientBalance)
	}

	entry, err := post(ctx, ledger.WalletTxnRef(id), amount)
	if err != nil {
		return nil, err
	}

	t := &Transaction{
		ID:                  id,
		WalletID:            w.ID,
		Type:                typ,
		Amount:              amount,
		BalanceBefore:       before,
		BalanceAfter:        after,
		Reference:           ref,
		EntryID:             &entry.ID,
		PairedTransactionID: paired,
		CreatedAt:           s.clock().UTC(),
	}
	if err := s.repo.InsertTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to insert %s transaction: %w", typ, err)
	}
	w.Balance = after
	return t, nil
}

// shrinkHold keeps the hold within the balance after a debit that ignores holds
func (s *Service) shrinkHold(ctx context.Context, w *Wallet) {
	if w.LockedBalance <= w.Balance {
		return
	}
	s.logger.WithContext(ctx).Warn("wallet hold reduced",
		"wallet_id", w.ID,
		"held", w.LockedBalance.String(),
		"balance", w.Balance.String(),
	)
	w.LockedBalance = w.Balance
	if w.LockedBalance < 0 {
		w.LockedBalance = 0
	}
}

func (s *Service) requirePositive(op string, amount money.Amount) error {
	if err := money.RequirePositive(amount); err != nil {
		return apperrors.Validation(fmt.Sprintf("%s amount must be positive", op), err)
	}
	return nil
}

func (s *Service) mapNotFound(err error) error {
	if errors.Is(err, ErrWalletNotFound) {
		return apperrors.NotFound("wallet", err)
	}
	return err
}
