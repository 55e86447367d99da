package chargeback

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/payment"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// Kind distinguishes an admin refund from a bank chargeback
type Kind string

const (
	KindRefund     Kind = "refund"
	KindChargeback Kind = "chargeback"
)

// TargetStatus is the terminal payment status a kind moves to
func (k Kind) TargetStatus() payment.Status {
	if k == KindChargeback {
		return payment.StatusChargebackRefunded
	}
	return payment.StatusRefunded
}

// Action is the idempotency and audit action name
func (k Kind) Action() string {
	return "payment." + string(k)
}

// ReceivableStatus is the lifecycle state of a receivable
type ReceivableStatus string

const (
	ReceivablePending    ReceivableStatus = "pending"
	ReceivableSettled    ReceivableStatus = "settled"
	ReceivableWrittenOff ReceivableStatus = "written_off"
)

var (
	ErrInvalidKind        = errors.New("unknown reversal kind")
	ErrNotPaid            = errors.New("payment is not in paid status")
	ErrAlreadyProcessed   = errors.New("payment was already resolved")
	ErrWriteOffReason     = errors.New("write-off needs a reason")
	ErrNothingOutstanding = errors.New("wallet has no outstanding receivables")
	ErrChargebackRefund   = errors.New("a chargeback never refunds principal to the wallet")
)

// Receivable is money a user still owes after a reversal
type Receivable struct {
	ID        uuid.UUID        `json:"id"`
	WalletID  uuid.UUID        `json:"wallet_id"`
	PaymentID uuid.UUID        `json:"payment_id"`
	Amount    money.Amount     `json:"amount"`
	Paid      money.Amount     `json:"paid"`
	Status    ReceivableStatus `json:"status"`
	EntryID   uuid.UUID        `json:"entry_id"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Balance is what is still owed
func (r *Receivable) Balance() money.Amount {
	return r.Amount - r.Paid
}

// Request asks to unwind a paid purchase
type Request struct {
	PaymentID          uuid.UUID
	Kind               Kind
	ReverseAllocations bool
	// RefundPrincipal credits the purchase amount back to the wallet. Refunds only.
	RefundPrincipal bool
	Reason          string
}

// Result is the structured outcome for audit display
type Result struct {
	PaymentID           uuid.UUID      `json:"payment_id"`
	Kind                Kind           `json:"kind"`
	Status              payment.Status `json:"status"`
	BonusesReversed     int            `json:"bonuses_reversed"`
	BonusGross          money.Amount   `json:"bonus_gross"`
	BonusTDS            money.Amount   `json:"bonus_tds"`
	BonusNet            money.Amount   `json:"bonus_net"`
	PrincipalOwed       money.Amount   `json:"principal_owed"`
	AmountOwed          money.Amount   `json:"amount_owed"`
	AmountDebited       money.Amount   `json:"amount_debited"`
	Shortfall           money.Amount   `json:"shortfall"`
	ReceivableID        *uuid.UUID     `json:"receivable_id,omitempty"`
	AccountFrozen       bool           `json:"account_frozen"`
	AllocationsReversed money.Amount   `json:"allocations_reversed"`
	PrincipalRefunded   money.Amount   `json:"principal_refunded"`
	EntryIDs            []uuid.UUID    `json:"entry_ids"`
	ResolvedAt          time.Time      `json:"resolved_at"`
	AlreadyProcessed    bool           `json:"already_processed"`
}

// Settlement is what one deposit paid towards outstanding receivables
type Settlement struct {
	WalletID        uuid.UUID    `json:"wallet_id"`
	Applied         money.Amount `json:"applied"`
	Outstanding     money.Amount `json:"outstanding"`
	RecoveryCleared bool         `json:"recovery_cleared"`
}

// WriteOff is the outcome of an authorized write-off
type WriteOff struct {
	WalletID    uuid.UUID    `json:"wallet_id"`
	Receivables []uuid.UUID  `json:"receivables"`
	Amount      money.Amount `json:"amount"`
	Reason      string       `json:"reason"`
}
