package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/platform/approval"
	"github.com/kislikjeka/moneyguard/internal/reconciliation"
	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/pkg/logger"
)

// ReconciliationService is the part of the engine the ops API drives
type ReconciliationService interface {
	Run(ctx context.Context, trigger reconciliation.Trigger) (*reconciliation.Report, error)
	Latest(ctx context.Context) (*reconciliation.Report, error)
	CheckWallet(ctx context.Context, walletID uuid.UUID) (*reconciliation.WalletMismatch, error)
	AutoFix(ctx context.Context, req reconciliation.AutoFixRequest, settings reconciliation.AutoFixSettings) (*reconciliation.AutoFixResult, error)
}

// ApprovalIssuer signs auto-fix approvals
type ApprovalIssuer interface {
	Issue(walletID uuid.UUID, action, approver string) (string, error)
}

// ReconciliationHandler handles reconciliation requests
type ReconciliationHandler struct {
	engine    ReconciliationService
	approvals ApprovalIssuer
	settings  func() reconciliation.AutoFixSettings
	logger    *logger.Logger
}

// NewReconciliationHandler creates a reconciliation handler. settings is read on every
// auto-fix request so the kill switch takes effect without a restart.
func NewReconciliationHandler(engine ReconciliationService, approvals ApprovalIssuer, settings func() reconciliation.AutoFixSettings, log *logger.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		engine:    engine,
		approvals: approvals,
		settings:  settings,
		logger:    log.WithField("component", "http.reconciliation"),
	}
}

// RunReconciliation handles POST /api/v1/reconciliation/runs
func (h *ReconciliationHandler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Run(r.Context(), reconciliation.TriggerManual)
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}
	respondJSON(w, report, http.StatusOK)
}

// GetLatest handles GET /api/v1/reconciliation/latest
func (h *ReconciliationHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Latest(r.Context())
	if errors.Is(err, reconciliation.ErrNoReport) {
		respondError(w, "no reconciliation has run yet", http.StatusNotFound)
		return
	}
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}
	respondJSON(w, report, http.StatusOK)
}

// WalletCheckResponse is the on-demand check of one wallet
type WalletCheckResponse struct {
	*reconciliation.WalletMismatch
	Balanced bool `json:"balanced"`
}

// CheckWallet handles GET /api/v1/reconciliation/wallets/{id}
func (h *ReconciliationHandler) CheckWallet(w http.ResponseWriter, r *http.Request) {
	walletID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	check, err := h.engine.CheckWallet(r.Context(), walletID)
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}
	respondJSON(w, WalletCheckResponse{WalletMismatch: check, Balanced: check.Discrepancy == 0}, http.StatusOK)
}

// ApprovalRequest asks for an auto-fix approval on one wallet
type ApprovalRequest struct {
	WalletID uuid.UUID `json:"wallet_id"`
}

// ApprovalResponse carries the signed approval
type ApprovalResponse struct {
	Token string `json:"token"`
}

// IssueApproval handles POST /api/v1/reconciliation/approvals
func (h *ReconciliationHandler) IssueApproval(w http.ResponseWriter, r *http.Request) {
	var req ApprovalRequest
	if err := decodeJSON(w, r, &req); err != nil || req.WalletID == uuid.Nil {
		respondError(w, "wallet_id is required", http.StatusBadRequest)
		return
	}

	token, err := h.approvals.Issue(req.WalletID, approval.ActionAutoFix, logger.ActorFromContext(r.Context()))
	if err != nil {
		respondAppError(w, r, h.logger, apperrors.Internal("failed to issue approval", err))
		return
	}
	respondJSON(w, ApprovalResponse{Token: token}, http.StatusCreated)
}

// AutoFixRequest is the body of an auto-fix call
type AutoFixRequest struct {
	WalletID uuid.UUID `json:"wallet_id"`
	Token    string    `json:"approval_token"`
}

// AutoFix handles POST /api/v1/reconciliation/autofix
func (h *ReconciliationHandler) AutoFix(w http.ResponseWriter, r *http.Request) {
	var req AutoFixRequest
	if err := decodeJSON(w, r, &req); err != nil || req.WalletID == uuid.Nil || req.Token == "" {
		respondError(w, "wallet_id and approval_token are required", http.StatusBadRequest)
		return
	}

	res, err := h.engine.AutoFix(r.Context(), reconciliation.AutoFixRequest{
		WalletID: req.WalletID,
		Token:    req.Token,
	}, h.settings())
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}
	respondJSON(w, res, http.StatusOK)
}
