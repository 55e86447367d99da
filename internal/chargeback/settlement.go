package chargeback

import (
	"context"
	"fmt"
	"time"

	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/platform/audit"
	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/logger"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// Settler applies deposits to outstanding receivables, oldest first.
// It is registered as a wallet deposit observer, so it runs inside the deposit transaction
// with the wallet row locked.
type Settler struct {
	repo    Repository
	wallets *wallet.Service
	audit   *audit.Recorder
	logger  *logger.Logger
	clock   func() time.Time
}

// NewSettler creates a settler and registers it with the wallet service
func NewSettler(repo Repository, wallets *wallet.Service, rec *audit.Recorder, log *logger.Logger) *Settler {
	s := &Settler{
		repo:    repo,
		wallets: wallets,
		audit:   rec,
		logger:  log.WithField("component", "settlement"),
		clock:   time.Now,
	}
	wallets.Observe(s)
	return s
}

// AfterDeposit implements wallet.DepositObserver. Only plain top-ups settle receivables:
// the deposit leg of a share purchase is already committed to the shares it pays for.
func (s *Settler) AfterDeposit(ctx context.Context, w *wallet.Wallet, t *wallet.Transaction) error {
	if !w.RecoveryMode || t.Reference.Kind == ledger.RefPayment {
		return nil
	}
	_, err := s.Settle(ctx, w)
	return err
}

// Settle pays outstanding receivables from the balance of w, which the caller holds locked.
// Recovery mode is cleared only when nothing is left outstanding.
func (s *Settler) Settle(ctx context.Context, w *wallet.Wallet) (*Settlement, error) {
	outstanding, err := s.repo.ListOutstandingForUpdate(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock receivables: %w", err)
	}

	out := &Settlement{WalletID: w.ID}
	now := s.clock().UTC()
	for _, r := range outstanding {
		pay := money.Min(w.Available(), r.Balance())
		if pay > 0 {
			if _, err := s.wallets.ApplySettlement(ctx, w, pay, r.ID); err != nil {
				return nil, err
			}
			r.Paid += pay
			if r.Balance() == 0 {
				r.Status = ReceivableSettled
			}
			r.UpdatedAt = now
			if err := s.repo.UpdateReceivable(ctx, r); err != nil {
				return nil, fmt.Errorf("failed to update receivable %s: %w", r.ID, err)
			}
			out.Applied += pay
		}
		out.Outstanding += r.Balance()
	}

	if out.Outstanding == 0 && w.RecoveryMode {
		w.RecoveryMode = false
		out.RecoveryCleared = true
		if _, err := s.audit.Record(ctx, audit.ActionRecoveryCleared, "wallet", w.ID.String(), out); err != nil {
			return nil, err
		}
	}

	if out.Applied > 0 {
		s.logger.WithContext(ctx).Info("receivables settled",
			"wallet_id", w.ID,
			"applied", out.Applied.String(),
			"outstanding", out.Outstanding.String(),
			"recovery_cleared", out.RecoveryCleared,
		)
	}
	return out, nil
}
