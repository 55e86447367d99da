package chargeback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/inventory"
	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/payment"
	"github.com/kislikjeka/moneyguard/internal/platform/audit"
	"github.com/kislikjeka/moneyguard/internal/platform/idempotency"
	"github.com/kislikjeka/moneyguard/internal/platform/lock"
	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/internal/shared/txn"
	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/logger"
)

// Service unwinds refunded and charged-back payments
type Service struct {
	receivables Repository
	payments    payment.Repository
	wallets     *wallet.Service
	inventory   *inventory.Service
	ledger      *ledger.Service
	guard       *idempotency.Guard
	audit       *audit.Recorder
	tx          txn.Manager
	locker      lock.Locker
	lockOpts    lock.Options
	logger      *logger.Logger
	clock       func() time.Time
}

// Deps groups the collaborators of the orchestrator
type Deps struct {
	Receivables Repository
	Payments    payment.Repository
	Wallets     *wallet.Service
	Inventory   *inventory.Service
	Ledger      *ledger.Service
	Guard       *idempotency.Guard
	Audit       *audit.Recorder
	Tx          txn.Manager
	Locker      lock.Locker
	LockOptions lock.Options
	Logger      *logger.Logger
}

// NewService creates the chargeback orchestrator
func NewService(d Deps) *Service {
	return &Service{
		receivables: d.Receivables,
		payments:    d.Payments,
		wallets:     d.Wallets,
		inventory:   d.Inventory,
		ledger:      d.Ledger,
		guard:       d.Guard,
		audit:       d.Audit,
		tx:          d.Tx,
		locker:      d.Locker,
		lockOpts:    d.LockOptions,
		logger:      d.Logger.WithField("component", "chargeback"),
		clock:       time.Now,
	}
}

// Resolve moves a paid payment to refunded or chargeback_refunded and unwinds its effects
// in one transaction.
//
// Repeat calls return the earlier outcome with AlreadyProcessed set. Terminal status is checked
// before taking the locks, again after taking them, and once more on the locked payment row
// inside the transaction.
func (s *Service) Resolve(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	p, err := s.loadPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	key := idempotency.NewIntent(req.Kind.Action(), p.Amount, p.ID.String()).Key()

	if res, done, err := s.prior(ctx, p, req.Kind, key); done {
		return res, err
	}

	var out idempotency.Outcome[*Result]
	err = lock.WithLock(ctx, s.locker, lock.Key("payment", p.ID), s.lockOpts, func(ctx context.Context) error {
		return lock.WithLock(ctx, s.locker, wallet.LockKey(p.WalletID), s.lockOpts, func(ctx context.Context) error {
			current, err := s.loadPayment(ctx, req.PaymentID)
			if err != nil {
				return err
			}
			if res, done, err := s.prior(ctx, current, req.Kind, key); done {
				out.Value, out.Replayed = res, true
				return err
			}

			out, err = idempotency.Execute(ctx, s.guard, key, req.Kind.Action(), txn.Default(),
				func(ctx context.Context) (*Result, error) {
					return s.unwind(ctx, req)
				})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	if out.Replayed {
		out.Value.AlreadyProcessed = true
	}
	return out.Value, nil
}

// prior reports whether the payment is already resolved and returns the stored outcome.
// A payment in the other terminal status, or any status but paid, is an invalid transition.
func (s *Service) prior(ctx context.Context, p *payment.Payment, kind Kind, key string) (*Result, bool, error) {
	if p.Status == kind.TargetStatus() {
		stored, found, err := idempotency.Lookup[*Result](ctx, s.guard, key)
		if err != nil {
			return nil, true, err
		}
		res := &Result{PaymentID: p.ID, Kind: kind, Status: p.Status}
		if found && stored.Value != nil {
			res = stored.Value
		}
		res.AlreadyProcessed = true
		return res, true, nil
	}
	if p.Status != payment.StatusPaid {
		return nil, true, apperrors.InvalidState(
			fmt.Sprintf("payment %s is %s, cannot move to %s", p.ID, p.Status, kind.TargetStatus()), ErrNotPaid)
	}
	return nil, false, nil
}

func (s *Service) unwind(ctx context.Context, req Request) (*Result, error) {
	p, err := s.payments.GetPaymentForUpdate(ctx, req.PaymentID)
	if err != nil {
		return nil, s.mapPaymentErr(err)
	}
	if p.Status == req.Kind.TargetStatus() {
		return nil, apperrors.DuplicateRequest(fmt.Sprintf("payment %s already %s", p.ID, p.Status), ErrAlreadyProcessed)
	}
	if p.Status != payment.StatusPaid {
		return nil, apperrors.InvalidState(fmt.Sprintf("payment %s is %s", p.ID, p.Status), ErrNotPaid)
	}

	now := s.clock().UTC()
	ref := ledger.PaymentRef(p.ID)
	res := &Result{PaymentID: p.ID, Kind: req.Kind, Status: req.Kind.TargetStatus(), ResolvedAt: now, EntryIDs: []uuid.UUID{}}

	// Bonuses earned by this payment, found through bonus.payment_id
	bonuses, err := s.payments.ListActiveBonusesForUpdate(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bonuses: %w", err)
	}
	for _, b := range bonuses {
		if err := s.payments.MarkBonusReversed(ctx, b.ID, now); err != nil {
			return nil, fmt.Errorf("failed to reverse bonus %s: %w", b.ID, err)
		}
		res.BonusesReversed++
		res.BonusGross += b.Gross
		res.BonusTDS += b.TDS
		res.BonusNet += b.Net()
	}

	if req.ReverseAllocations {
		res.AllocationsReversed, err = s.inventory.ReverseAllocations(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if req.Kind == KindChargeback {
			e, err := s.ledger.RecordSaleChargeback(ctx, ref, p.Amount)
			if err != nil {
				return nil, err
			}
			res.EntryIDs = append(res.EntryIDs, e.ID)
		}
	}

	// The bank took the money back while the user keeps the shares: principal is owed too
	if req.Kind == KindChargeback && !req.ReverseAllocations {
		res.PrincipalOwed = p.Amount
	}

	// Credit a refunded principal before clawing back so the debit can net against it
	if req.RefundPrincipal {
		t, err := s.wallets.Refund(ctx, p.WalletID, p.Amount, ref)
		if err != nil {
			return nil, err
		}
		res.PrincipalRefunded = p.Amount
		res.EntryIDs = appendEntry(res.EntryIDs, t)
	}

	owed := ledger.Split{Bonus: res.BonusNet, Principal: res.PrincipalOwed}
	res.AmountOwed = owed.Total()

	if owed.Total() > 0 {
		rec, err := s.wallets.RecoveryDebit(ctx, p.WalletID, owed, ref)
		if err != nil {
			return nil, err
		}
		res.AmountDebited = rec.Debited.Total()
		res.Shortfall = rec.Shortfall.Total()
		res.EntryIDs = appendEntry(res.EntryIDs, rec.Transaction)

		if rec.Shortfall.Total() > 0 {
			r, err := s.createReceivable(ctx, p, rec.Shortfall, now)
			if err != nil {
				return nil, err
			}
			res.ReceivableID = &r.ID
			res.EntryIDs = append(res.EntryIDs, r.EntryID)
			if err := s.wallets.SetRecoveryMode(ctx, p.WalletID, true); err != nil {
				return nil, err
			}
		}
	}

	w, err := s.wallets.Get(ctx, p.WalletID)
	if err != nil {
		return nil, err
	}
	res.AccountFrozen = w.RecoveryMode

	if err := s.payments.UpdatePaymentStatus(ctx, p.ID, res.Status, now); err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	if _, err := s.audit.Record(ctx, req.Kind.Action(), "payment", p.ID.String(), auditDetails{Result: res, Reason: req.Reason}); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("payment resolved",
		"payment_id", p.ID,
		"kind", req.Kind,
		"owed", res.AmountOwed.String(),
		"debited", res.AmountDebited.String(),
		"shortfall", res.Shortfall.String(),
	)
	return res, nil
}

type auditDetails struct {
	Result *Result `json:"result"`
	Reason string  `json:"reason,omitempty"`
}

func (s *Service) createReceivable(ctx context.Context, p *payment.Payment, shortfall ledger.Split, now time.Time) (*Receivable, error) {
	r := &Receivable{
		ID:        uuid.New(),
		WalletID:  p.WalletID,
		PaymentID: p.ID,
		Amount:    shortfall.Total(),
		Status:    ReceivablePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e, err := s.ledger.RecordReceivable(ctx, ledger.ReceivableRef(r.ID), shortfall)
	if err != nil {
		return nil, err
	}
	r.EntryID = e.ID
	if err := s.receivables.CreateReceivable(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create receivable: %w", err)
	}
	return r, nil
}

// Receivables lists a wallet's receivables, oldest first
func (s *Service) Receivables(ctx context.Context, walletID uuid.UUID) ([]*Receivable, error) {
	return s.receivables.ListReceivables(ctx, walletID)
}

// WriteOff is the authorized override that clears recovery mode while receivables are still
// outstanding. Every open receivable is booked as bad debt and the write-off is audited.
func (s *Service) WriteOff(ctx context.Context, walletID uuid.UUID, reason string) (*WriteOff, error) {
	if reason == "" {
		return nil, apperrors.Validation("write-off reason is required", ErrWriteOffReason)
	}

	out := &WriteOff{WalletID: walletID, Reason: reason, Receivables: []uuid.UUID{}}
	err := s.wallets.WithLocked(ctx, walletID, func(ctx context.Context, w *wallet.Wallet) error {
		outstanding, err := s.receivables.ListOutstandingForUpdate(ctx, walletID)
		if err != nil {
			return fmt.Errorf("failed to lock receivables: %w", err)
		}
		if len(outstanding) == 0 && !w.RecoveryMode {
			return apperrors.InvalidState(fmt.Sprintf("wallet %s", walletID), ErrNothingOutstanding)
		}

		for _, r := range outstanding {
			out.Receivables = append(out.Receivables, r.ID)
			out.Amount += r.Balance()
		}
		if _, err := s.audit.Record(ctx, audit.ActionWriteOff, "wallet", walletID.String(), out); err != nil {
			return err
		}

		now := s.clock().UTC()
		for _, r := range outstanding {
			if _, err := s.ledger.RecordReceivableWriteOff(ctx, ledger.ReceivableRef(r.ID), r.Balance()); err != nil {
				return err
			}
			r.Status = ReceivableWrittenOff
			r.UpdatedAt = now
			if err := s.receivables.UpdateReceivable(ctx, r); err != nil {
				return fmt.Errorf("failed to update receivable %s: %w", r.ID, err)
			}
		}
		w.RecoveryMode = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Warn("receivables written off",
		"wallet_id", walletID,
		"amount", out.Amount.String(),
		"reason", reason,
	)
	return out, nil
}

func (s *Service) loadPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	p, err := s.payments.GetPayment(ctx, id)
	if err != nil {
		return nil, s.mapPaymentErr(err)
	}
	return p, nil
}

func (s *Service) mapPaymentErr(err error) error {
	if errors.Is(err, payment.ErrPaymentNotFound) {
		return apperrors.NotFound("payment", err)
	}
	return err
}

func validateRequest(req Request) error {
	switch req.Kind {
	case KindRefund:
	case KindChargeback:
		if req.RefundPrincipal {
			return apperrors.Validation("chargeback cannot refund principal", ErrChargebackRefund)
		}
	default:
		return apperrors.Validation(fmt.Sprintf("kind %q", req.Kind), ErrInvalidKind)
	}
	if req.PaymentID == uuid.Nil {
		return apperrors.Validation("payment id is required", nil)
	}
	return nil
}

func appendEntry(ids []uuid.UUID, t *wallet.Transaction) []uuid.UUID {
	if t != nil && t.EntryID != nil {
		return append(ids, *t.EntryID)
	}
	return ids
}
