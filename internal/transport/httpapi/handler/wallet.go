package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/logger"
)

// WalletReader exposes wallet state to operators
type WalletReader interface {
	Get(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error)
	Transactions(ctx context.Context, id uuid.UUID) ([]*wallet.Transaction, error)
}

// WalletHandler serves read-only wallet views
type WalletHandler struct {
	wallets WalletReader
	logger  *logger.Logger
}

// NewWalletHandler creates a wallet handler
func NewWalletHandler(wallets WalletReader, log *logger.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, logger: log.WithField("component", "http.wallet")}
}

// WalletResponse represents a wallet with its spendable balance
type WalletResponse struct {
	*wallet.Wallet
	Available int64 `json:"available"`
}

// GetWallet handles GET /api/v1/wallets/{id}
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	wl, err := h.wallets.Get(r.Context(), id)
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}
	respondJSON(w, WalletResponse{Wallet: wl, Available: wl.Available().Minor()}, http.StatusOK)
}

// GetTransactions handles GET /api/v1/wallets/{id}/transactions
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	txns, err := h.wallets.Transactions(r.Context(), id)
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}
	if txns == nil {
		txns = []*wallet.Transaction{}
	}
	respondJSON(w, txns, http.StatusOK)
}
