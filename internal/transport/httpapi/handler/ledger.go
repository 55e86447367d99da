package handler

import (
	"context"
	"net/http"

	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/pkg/logger"
)

// LedgerReporter produces the ledger reports
type LedgerReporter interface {
	TrialBalance(ctx context.Context) (*ledger.TrialBalance, error)
	AccountingEquation(ctx context.Context) (*ledger.Equation, error)
	Margin(ctx context.Context) (*ledger.MarginReport, error)
}

// LedgerHandler serves read-only ledger reports
type LedgerHandler struct {
	ledger LedgerReporter
	logger *logger.Logger
}

// NewLedgerHandler creates a ledger handler
func NewLedgerHandler(l LedgerReporter, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, logger: log.WithField("component", "http.ledger")}
}

// GetTrialBalance handles GET /api/v1/ledger/trial-balance
func (h *LedgerHandler) GetTrialBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := h.ledger.TrialBalance(r.Context())
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}
	respondJSON(w, tb, http.StatusOK)
}

// GetEquation handles GET /api/v1/ledger/equation
func (h *LedgerHandler) GetEquation(w http.ResponseWriter, r *http.Request) {
	eq, err := h.ledger.AccountingEquation(r.Context())
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}
	respondJSON(w, eq, http.StatusOK)
}

// GetMargin handles GET /api/v1/ledger/margin
func (h *LedgerHandler) GetMargin(w http.ResponseWriter, r *http.Request) {
	m, err := h.ledger.Margin(r.Context())
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}
	respondJSON(w, m, http.StatusOK)
}
