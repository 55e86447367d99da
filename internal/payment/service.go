package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/inventory"
	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/platform/idempotency"
	"github.com/kislikjeka/moneyguard/internal/platform/lock"
	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/internal/shared/txn"
	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/logger"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// ActionSharePurchase is the idempotency action of RecordSharePurchase
const ActionSharePurchase = "payment.share_purchase"

// Service records paid share purchases and the bonuses they earn
type Service struct {
	repo      Repository
	wallets   *wallet.Service
	inventory *inventory.Service
	ledger    *ledger.Service
	guard     *idempotency.Guard
	tx        txn.Manager
	locker    lock.Locker
	lockOpts  lock.Options
	logger    *logger.Logger
	clock     func() time.Time
}

// NewService creates a new payment service
func NewService(
	repo Repository,
	wallets *wallet.Service,
	inv *inventory.Service,
	led *ledger.Service,
	guard *idempotency.Guard,
	tx txn.Manager,
	locker lock.Locker,
	lockOpts lock.Options,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:      repo,
		wallets:   wallets,
		inventory: inv,
		ledger:    led,
		guard:     guard,
		tx:        tx,
		locker:    locker,
		lockOpts:  lockOpts,
		logger:    log.WithField("component", "payment"),
		clock:     time.Now,
	}
}

// Get returns a payment
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, apperrors.NotFound("payment", err)
		}
		return nil, err
	}
	return p, nil
}

// RecordSharePurchase books a gateway payment: the money lands in the wallet, is invested,
// the gateway fee is expensed, inventory is allocated and an optional bonus is credited.
// The whole purchase is one transaction guarded by an idempotency key.
func (s *Service) RecordSharePurchase(ctx context.Context, req PurchaseRequest) (*Purchase, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	intent := idempotency.NewIntent(ActionSharePurchase, req.Amount,
		req.WalletID.String(), req.CompanyID.String(), req.GatewayRef)
	key, err := idempotency.ResolveKey(req.ClientKey, intent)
	if err != nil {
		return nil, apperrors.Validation("malformed idempotency key", err)
	}

	var out idempotency.Outcome[*Purchase]
	err = lock.WithLock(ctx, s.locker, wallet.LockKey(req.WalletID), s.lockOpts, func(ctx context.Context) error {
		var err error
		out, err = idempotency.Execute(ctx, s.guard, key, ActionSharePurchase, txn.Default(),
			func(ctx context.Context) (*Purchase, error) {
				return s.purchase(ctx, key, req)
			})
		return err
	})
	if err != nil {
		return nil, err
	}

	out.Value.Replayed = out.Replayed
	return out.Value, nil
}

func (s *Service) purchase(ctx context.Context, key string, req PurchaseRequest) (*Purchase, error) {
	now := s.clock().UTC()
	p := &Payment{
		ID:             uuid.New(),
		WalletID:       req.WalletID,
		CompanyID:      req.CompanyID,
		Amount:         req.Amount,
		GatewayFee:     req.GatewayFee,
		GatewayRef:     req.GatewayRef,
		Status:         StatusPaid,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	ref := ledger.PaymentRef(p.ID)
	if _, err := s.wallets.Deposit(ctx, p.WalletID, p.Amount, ref); err != nil {
		return nil, err
	}
	if _, err := s.wallets.Invest(ctx, p.WalletID, p.Amount, ref); err != nil {
		return nil, err
	}
	if p.GatewayFee > 0 {
		if _, err := s.ledger.RecordGatewayFee(ctx, ref, p.GatewayFee); err != nil {
			return nil, err
		}
	}

	allocations, err := s.inventory.Allocate(ctx, p.CompanyID, p.ID, p.Amount)
	if err != nil {
		return nil, err
	}

	result := &Purchase{Payment: p, Allocations: allocations}
	if req.Bonus != nil {
		b, err := s.grant(ctx, p.WalletID, &p.ID, *req.Bonus)
		if err != nil {
			return nil, err
		}
		result.Bonus = b
	}

	s.logger.WithContext(ctx).Info("share purchase recorded",
		"payment_id", p.ID,
		"wallet_id", p.WalletID,
		"amount", p.Amount.String(),
	)
	return result, nil
}

// GrantBonus credits a bonus to a wallet. paymentID links it to the purchase that earned it.
func (s *Service) GrantBonus(ctx context.Context, walletID uuid.UUID, paymentID *uuid.UUID, grant BonusGrant) (*Bonus, error) {
	var out *Bonus
	err := lock.WithLock(ctx, s.locker, wallet.LockKey(walletID), s.lockOpts, func(ctx context.Context) error {
		return s.tx.Do(ctx, txn.Default(), func(ctx context.Context) error {
			var err error
			out, err = s.grant(ctx, walletID, paymentID, grant)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) grant(ctx context.Context, walletID uuid.UUID, paymentID *uuid.UUID, grant BonusGrant) (*Bonus, error) {
	b := &Bonus{
		ID:        uuid.New(),
		WalletID:  walletID,
		PaymentID: paymentID,
		Gross:     grant.Gross,
		TDS:       grant.TDS,
		Status:    BonusActive,
		CreatedAt: s.clock().UTC(),
	}

	credit, err := s.wallets.CreditBonus(ctx, walletID, grant.Gross, grant.TDS, ledger.BonusRef(b.ID))
	if err != nil {
		return nil, err
	}
	b.CreditTxnID = &credit.Credit.ID
	if credit.TDS != nil {
		b.TDSTxnID = &credit.TDS.ID
	}

	if err := s.repo.CreateBonus(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create bonus: %w", err)
	}
	return b, nil
}

func (s *Service) validate(req PurchaseRequest) error {
	if req.WalletID == uuid.Nil || req.CompanyID == uuid.Nil {
		return apperrors.Validation("wallet and company are required", nil)
	}
	if err := money.RequirePositive(req.Amount); err != nil {
		return apperrors.Validation("payment amount must be positive", err)
	}
	if req.GatewayFee < 0 {
		return apperrors.Validation("gateway fee cannot be negative", money.ErrNonPositiveAmount)
	}
	if req.Bonus != nil {
		if err := money.RequirePositive(req.Bonus.Gross); err != nil {
			return apperrors.Validation("bonus must be positive", err)
		}
		if req.Bonus.TDS < 0 || req.Bonus.TDS > req.Bonus.Gross {
			return apperrors.Validation("TDS must be between zero and the gross bonus", wallet.ErrInvalidTDS)
		}
	}
	return nil
}
