package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/chargeback"
	"github.com/kislikjeka/moneyguard/internal/payment"
	"github.com/kislikjeka/moneyguard/pkg/logger"
)

// PaymentReader looks up payments
type PaymentReader interface {
	Get(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
}

// ChargebackService unwinds payments and manages receivables
type ChargebackService interface {
	Resolve(ctx context.Context, req chargeback.Request) (*chargeback.Result, error)
	WriteOff(ctx context.Context, walletID uuid.UUID, reason string) (*chargeback.WriteOff, error)
	Receivables(ctx context.Context, walletID uuid.UUID) ([]*chargeback.Receivable, error)
}

// PaymentHandler triggers refunds and chargebacks
type PaymentHandler struct {
	payments    PaymentReader
	chargebacks ChargebackService
	logger      *logger.Logger
}

// NewPaymentHandler creates a payment handler
func NewPaymentHandler(payments PaymentReader, chargebacks ChargebackService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments:    payments,
		chargebacks: chargebacks,
		logger:      log.WithField("component", "http.payment"),
	}
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := h.payments.Get(r.Context(), id)
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}
	respondJSON(w, p, http.StatusOK)
}

// ReversalRequest is the body of a refund or chargeback call
type ReversalRequest struct {
	ReverseAllocations bool   `json:"reverse_allocations"`
	RefundPrincipal    bool   `json:"refund_principal"`
	Reason             string `json:"reason"`
}

// Chargeback handles POST /api/v1/payments/{id}/chargeback
func (h *PaymentHandler) Chargeback(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, chargeback.KindChargeback)
}

// Refund handles POST /api/v1/payments/{id}/refund
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, chargeback.KindRefund)
}

func (h *PaymentHandler) resolve(w http.ResponseWriter, r *http.Request, kind chargeback.Kind) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req ReversalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.chargebacks.Resolve(r.Context(), chargeback.Request{
		PaymentID:          id,
		Kind:               kind,
		ReverseAllocations: req.ReverseAllocations,
		RefundPrincipal:    req.RefundPrincipal,
		Reason:             req.Reason,
	})
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if res.AlreadyProcessed {
		status = http.StatusAccepted
	}
	respondJSON(w, res, status)
}

// GetReceivables handles GET /api/v1/wallets/{id}/receivables
func (h *PaymentHandler) GetReceivables(w http.ResponseWriter, r *http.Request) {
	walletID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	recs, err := h.chargebacks.Receivables(r.Context(), walletID)
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}
	if recs == nil {
		recs = []*chargeback.Receivable{}
	}
	respondJSON(w, recs, http.StatusOK)
}

// WriteOffRequest is the body of a write-off call
type WriteOffRequest struct {
	Reason string `json:"reason"`
}

// WriteOff handles POST /api/v1/wallets/{id}/receivables/write-off
func (h *PaymentHandler) WriteOff(w http.ResponseWriter, r *http.Request) {
	walletID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req WriteOffRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.chargebacks.WriteOff(r.Context(), walletID, req.Reason)
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}
	respondJSON(w, res, http.StatusOK)
}
