package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/pkg/money"
)

// Side is the direction of a line
type Side string

const (
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

// Valid reports whether s is debit or credit
func (s Side) Valid() bool {
	return s == SideDebit || s == SideCredit
}

// Opposite returns the other side
func (s Side) Opposite() Side {
	if s == SideDebit {
		return SideCredit
	}
	return SideDebit
}

// RefKind names the kind of business record that caused an entry
type RefKind string

const (
	RefPayment          RefKind = "payment"
	RefInventoryBatch   RefKind = "inventory_batch"
	RefWallet           RefKind = "wallet"
	RefWalletTxn        RefKind = "wallet_transaction"
	RefBonus            RefKind = "bonus"
	RefReceivable       RefKind = "receivable"
	RefCapitalInjection RefKind = "capital_injection"
	RefLedgerEntry      RefKind = "ledger_entry"
)

// Valid reports whether k is a known reference kind
func (k RefKind) Valid() bool {
	switch k {
	case RefPayment, RefInventoryBatch, RefWallet, RefWalletTxn, RefBonus, RefReceivable, RefCapitalInjection, RefLedgerEntry:
		return true
	}
	return false
}

// Reference points at the record that caused an entry
type Reference struct {
	Kind RefKind   `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func (r Reference) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// IsZero reports whether the reference is unset
func (r Reference) IsZero() bool {
	return r.Kind == "" && r.ID == uuid.Nil
}

func PaymentRef(id uuid.UUID) Reference    { return Reference{Kind: RefPayment, ID: id} }
func BatchRef(id uuid.UUID) Reference      { return Reference{Kind: RefInventoryBatch, ID: id} }
func WalletRef(id uuid.UUID) Reference     { return Reference{Kind: RefWallet, ID: id} }
func WalletTxnRef(id uuid.UUID) Reference  { return Reference{Kind: RefWalletTxn, ID: id} }
func BonusRef(id uuid.UUID) Reference      { return Reference{Kind: RefBonus, ID: id} }
func ReceivableRef(id uuid.UUID) Reference { return Reference{Kind: RefReceivable, ID: id} }
func CapitalRef(id uuid.UUID) Reference    { return Reference{Kind: RefCapitalInjection, ID: id} }
func EntryRef(id uuid.UUID) Reference      { return Reference{Kind: RefLedgerEntry, ID: id} }

// Line is one debit or credit of an entry
type Line struct {
	ID          uuid.UUID    `json:"id"`
	EntryID     uuid.UUID    `json:"entry_id"`
	AccountID   uuid.UUID    `json:"account_id"`
	AccountCode Code         `json:"account_code"`
	Side        Side         `json:"side"`
	Amount      money.Amount `json:"amount"`
}

// Validate validates the line
func (l *Line) Validate() error {
	if l.AccountCode == "" {
		return ErrInvalidAccountCode
	}
	if !l.Side.Valid() {
		return ErrInvalidSide
	}
	if l.Amount <= 0 {
		return ErrNonPositiveLine
	}
	return nil
}

// Signed returns the line's effect on a debit-minus-credit balance
func (l *Line) Signed() money.Amount {
	if l.Side == SideDebit {
		return l.Amount
	}
	return -l.Amount
}

// Entry is an immutable journal entry
type Entry struct {
	ID              uuid.UUID  `json:"id"`
	Event           Event      `json:"event"`
	Reference       Reference  `json:"reference"`
	Description     string     `json:"description"`
	Date            time.Time  `json:"date"`
	ReversesEntryID *uuid.UUID `json:"reverses_entry_id,omitempty"`
	IsReversal      bool       `json:"is_reversal"`
	Lines           []Line     `json:"lines"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Totals sums the debit and credit lines
func (e *Entry) Totals() (debits, credits money.Amount) {
	for i := range e.Lines {
		if e.Lines[i].Side == SideDebit {
			debits += e.Lines[i].Amount
		} else {
			credits += e.Lines[i].Amount
		}
	}
	return debits, credits
}

// Amount is the debit total, which equals the credit total for a valid entry
func (e *Entry) Amount() money.Amount {
	d, _ := e.Totals()
	return d
}

// Validate checks the structural rules of an entry
func (e *Entry) Validate() error {
	if !e.Reference.Kind.Valid() || e.Reference.ID == uuid.Nil {
		return ErrMissingReference
	}
	if len(e.Lines) < 2 {
		return ErrTooFewLines
	}
	for i := range e.Lines {
		if err := e.Lines[i].Validate(); err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
	}
	if d, c := e.Totals(); d != c {
		return fmt.Errorf("%w: debit=%s credit=%s", ErrEntryNotBalanced, d, c)
	}
	return nil
}

// EntryImbalance is a persisted entry whose lines do not balance
type EntryImbalance struct {
	EntryID uuid.UUID    `json:"entry_id"`
	Debits  money.Amount `json:"debits"`
	Credits money.Amount `json:"credits"`
}
