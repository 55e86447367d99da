package payment

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/inventory"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// Status is the payment lifecycle state
type Status string

const (
	StatusPaid               Status = "paid"
	StatusRefunded           Status = "refunded"
	StatusChargebackRefunded Status = "chargeback_refunded"
)

// Terminal reports whether no further transition is allowed
func (s Status) Terminal() bool {
	return s == StatusRefunded || s == StatusChargebackRefunded
}

// BonusStatus is the lifecycle state of a bonus
type BonusStatus string

const (
	BonusActive   BonusStatus = "active"
	BonusReversed BonusStatus = "reversed"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrBonusNotFound   = errors.New("bonus not found")
)

// Payment is a gateway-funded share purchase
type Payment struct {
	ID             uuid.UUID    `json:"id"`
	WalletID       uuid.UUID    `json:"wallet_id"`
	CompanyID      uuid.UUID    `json:"company_id"`
	Amount         money.Amount `json:"amount"`
	GatewayFee     money.Amount `json:"gateway_fee"`
	GatewayRef     string       `json:"gateway_ref,omitempty"`
	Status         Status       `json:"status"`
	IdempotencyKey string       `json:"idempotency_key"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Bonus is a promotional credit. PaymentID links it to the purchase that earned it.
type Bonus struct {
	ID          uuid.UUID    `json:"id"`
	WalletID    uuid.UUID    `json:"wallet_id"`
	PaymentID   *uuid.UUID   `json:"payment_id,omitempty"`
	Gross       money.Amount `json:"gross"`
	TDS         money.Amount `json:"tds"`
	Status      BonusStatus  `json:"status"`
	CreditTxnID *uuid.UUID   `json:"credit_txn_id,omitempty"`
	TDSTxnID    *uuid.UUID   `json:"tds_txn_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ReversedAt  *time.Time   `json:"reversed_at,omitempty"`
}

// Net is what reached the wallet: gross minus withheld TDS
func (b *Bonus) Net() money.Amount {
	return b.Gross - b.TDS
}

// BonusGrant asks for a bonus alongside a purchase
type BonusGrant struct {
	Gross money.Amount `json:"gross"`
	TDS   money.Amount `json:"tds"`
}

// PurchaseRequest is a paid share purchase reported by the gateway
type PurchaseRequest struct {
	WalletID   uuid.UUID
	CompanyID  uuid.UUID
	Amount     money.Amount
	GatewayFee money.Amount
	GatewayRef string
	Bonus      *BonusGrant
	// ClientKey, when set, replaces the derived idempotency key
	ClientKey string
}

// Purchase is the result of recording a share purchase
type Purchase struct {
	Payment     *Payment                `json:"payment"`
	Allocations []*inventory.Allocation `json:"allocations"`
	Bonus       *Bonus                  `json:"bonus,omitempty"`
	Replayed    bool                    `json:"-"`
}
