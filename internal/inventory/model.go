package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/pkg/money"
)

// BatchStatus is the lifecycle state of a batch
type BatchStatus string

const (
	BatchActive   BatchStatus = "active"
	BatchReversed BatchStatus = "reversed"
)

var (
	ErrBatchNotFound         = errors.New("inventory batch not found")
	ErrInsufficientInventory = errors.New("not enough share inventory")
	ErrBatchAllocated        = errors.New("batch has allocations and cannot be reversed")
	ErrBatchReversed         = errors.New("batch is already reversed")
)

// Batch is a lot of shares of one company acquired at a known cost
type Batch struct {
	ID             uuid.UUID    `json:"id"`
	CompanyID      uuid.UUID    `json:"company_id"`
	TotalReceived  money.Amount `json:"total_received"`
	ValueRemaining money.Amount `json:"value_remaining"`
	Allocated      money.Amount `json:"allocated"`
	Status         BatchStatus  `json:"status"`
	EntryID        uuid.UUID    `json:"entry_id"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Conserved reports value_remaining + allocated == total_received
func (b *Batch) Conserved() bool {
	return b.ValueRemaining+b.Allocated == b.TotalReceived
}

// Allocation is part of a batch assigned to a payment
type Allocation struct {
	ID         uuid.UUID    `json:"id"`
	BatchID    uuid.UUID    `json:"batch_id"`
	CompanyID  uuid.UUID    `json:"company_id"`
	PaymentID  uuid.UUID    `json:"payment_id"`
	Amount     money.Amount `json:"amount"`
	Reversed   bool         `json:"reversed"`
	CreatedAt  time.Time    `json:"created_at"`
	ReversedAt *time.Time   `json:"reversed_at,omitempty"`
}
