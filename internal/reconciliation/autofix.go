package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/platform/approval"
	"github.com/kislikjeka/moneyguard/internal/platform/audit"
	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// HardCap bounds every auto-fix regardless of configuration (₹5,000)
const HardCap = money.Amount(500000)

var (
	ErrAutoFixDisabled = errors.New("auto-fix is disabled")
	ErrOverCap         = errors.New("discrepancy is not below the auto-fix cap")
	ErrApproval        = errors.New("approval token rejected")
)

// AutoFixSettings are passed per call; nothing is read from process state
type AutoFixSettings struct {
	Enabled bool
	Cap     money.Amount
}

// EffectiveCap is min(configured cap, hard cap)
func (s AutoFixSettings) EffectiveCap() money.Amount {
	return money.Min(s.Cap, HardCap)
}

// AutoFixRequest names the wallet and carries the approval token
type AutoFixRequest struct {
	WalletID uuid.UUID
	Token    string
}

// AutoFixResult describes an applied correction
type AutoFixResult struct {
	WalletID      uuid.UUID    `json:"wallet_id"`
	Before        money.Amount `json:"before"`
	After         money.Amount `json:"after"`
	Discrepancy   money.Amount `json:"discrepancy"`
	TransactionID uuid.UUID    `json:"transaction_id"`
	ApprovedBy    string       `json:"approved_by"`
	AppliedAt     time.Time    `json:"applied_at"`
}

type autoFixAudit struct {
	WalletID     uuid.UUID     `json:"wallet_id"`
	Enabled      bool          `json:"enabled"`
	ConfigCap    money.Amount  `json:"configured_cap"`
	EffectiveCap money.Amount  `json:"effective_cap"`
	Stored       *money.Amount `json:"stored,omitempty"`
	Computed     *money.Amount `json:"computed,omitempty"`
	ApprovedBy   string        `json:"approved_by,omitempty"`
	Reason       string        `json:"reason,omitempty"`
}

// AutoFix corrects one wallet's stored balance to the value recomputed from its transactions.
//
// It refuses unless the kill switch is off, the approval token is valid for this wallet and
// unused, and the freshly recomputed discrepancy is below min(configured cap, HardCap).
// The attempt is audited before anything else happens; refusals are audited too.
func (e *Engine) AutoFix(ctx context.Context, req AutoFixRequest, settings AutoFixSettings) (*AutoFixResult, error) {
	rec := autoFixAudit{
		WalletID:     req.WalletID,
		Enabled:      settings.Enabled,
		ConfigCap:    settings.Cap,
		EffectiveCap: settings.EffectiveCap(),
	}
	target := req.WalletID.String()
	log := e.logger.WithContext(ctx).WithField("wallet_id", target)

	if _, err := e.audit.Record(ctx, audit.ActionAutoFixAttempt, "wallet", target, rec); err != nil {
		return nil, err
	}

	refuse := func(reason string, cause error) error {
		rec.Reason = fmt.Sprintf("%s: %v", reason, cause)
		log.Warn("auto-fix refused", "reason", rec.Reason)
		if _, err := e.audit.Record(context.WithoutCancel(ctx), audit.ActionAutoFixRefused, "wallet", target, rec); err != nil {
			log.Error("failed to audit auto-fix refusal", "error", err)
		}
		return apperrors.AutoFixRefused(reason, cause)
	}

	if !settings.Enabled {
		return nil, refuse("auto-fix kill switch is engaged", ErrAutoFixDisabled)
	}

	claims, err := e.approvals.Verify(ctx, req.Token, req.WalletID, approval.ActionAutoFix)
	if err != nil {
		return nil, refuse("approval token rejected", errors.Join(ErrApproval, err))
	}
	rec.ApprovedBy = claims.Subject

	var fresh wallet.Recomputed
	t, err := e.wallets.ApplyAdjustment(ctx, req.WalletID, func(ctx context.Context, r wallet.Recomputed) error {
		fresh = r
		stored, computed := r.Stored, r.Computed
		rec.Stored, rec.Computed = &stored, &computed

		if r.Discrepancy().Abs() >= settings.EffectiveCap() {
			return apperrors.AutoFixRefused(
				fmt.Sprintf("discrepancy %s is not below cap %s", r.Discrepancy().Abs(), settings.EffectiveCap()), ErrOverCap)
		}
		_, err := e.audit.Record(ctx, audit.ActionAutoFixApplied, "wallet", target, rec)
		return err
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeAutoFixRefused) || apperrors.HasCode(err, apperrors.ErrCodeInvalidState) {
			return nil, refuse("recomputed discrepancy not eligible", err)
		}
		return nil, err
	}

	return &AutoFixResult{
		WalletID:      req.WalletID,
		Before:        fresh.Stored,
		After:         fresh.Computed,
		Discrepancy:   fresh.Discrepancy(),
		TransactionID: t.ID,
		ApprovedBy:    rec.ApprovedBy,
		AppliedAt:     t.CreatedAt,
	}, nil
}
