package wallet

import (
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// TxnType is the kind of wallet transaction
type TxnType string

const (
	TxnDeposit              TxnType = "deposit"
	TxnBonusCredit          TxnType = "bonus_credit"
	TxnRefund               TxnType = "refund"
	TxnWithdrawal           TxnType = "withdrawal"
	TxnInvestment           TxnType = "investment"
	TxnTDSDeduction         TxnType = "tds_deduction"
	TxnRecoveryDebit        TxnType = "recovery_debit"
	TxnReceivableSettlement TxnType = "receivable_settlement"
	TxnAdjustment           TxnType = "reconciliation_adjustment"
)

// Class says how a transaction type moves the balance
type Class string

const (
	ClassCredit  Class = "credit"
	ClassDebit   Class = "debit"
	ClassNeutral Class = "neutral"
)

// Class returns the balance class of t
func (t TxnType) Class() Class {
	switch t {
	case TxnDeposit, TxnBonusCredit, TxnRefund:
		return ClassCredit
	case TxnWithdrawal, TxnInvestment, TxnTDSDeduction, TxnRecoveryDebit, TxnReceivableSettlement:
		return ClassDebit
	default:
		return ClassNeutral
	}
}

// TypesOf lists the transaction types of one class
func TypesOf(c Class) []TxnType {
	all := []TxnType{
		TxnDeposit, TxnBonusCredit, TxnRefund,
		TxnWithdrawal, TxnInvestment, TxnTDSDeduction, TxnRecoveryDebit, TxnReceivableSettlement,
		TxnAdjustment,
	}
	var out []TxnType
	for _, t := range all {
		if t.Class() == c {
			out = append(out, t)
		}
	}
	return out
}

// Wallet is a user's spendable balance
type Wallet struct {
	ID      uuid.UUID    `json:"id"`
	UserID  uuid.UUID    `json:"user_id"`
	Balance money.Amount `json:"balance"`
	// LockedBalance is earmarked for pending payouts and cannot be spent
	LockedBalance money.Amount `json:"locked_balance"`
	RecoveryMode  bool         `json:"recovery_mode"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Available returns the spendable part of the balance
func (w *Wallet) Available() money.Amount {
	return w.Balance - w.LockedBalance
}

// Transaction is an append-only wallet record mirrored by a ledger entry
type Transaction struct {
	ID                  uuid.UUID        `json:"id"`
	WalletID            uuid.UUID        `json:"wallet_id"`
	Type                TxnType          `json:"type"`
	Amount              money.Amount     `json:"amount"`
	BalanceBefore       money.Amount     `json:"balance_before"`
	BalanceAfter        money.Amount     `json:"balance_after"`
	Reference           ledger.Reference `json:"reference"`
	EntryID             *uuid.UUID       `json:"entry_id,omitempty"`
	PairedTransactionID *uuid.UUID       `json:"paired_transaction_id,omitempty"`
	IsReversed          bool             `json:"is_reversed"`
	Description         string           `json:"description,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
}

// Sums totals a wallet's non-reversed transactions by class
type Sums struct {
	Credits money.Amount
	Debits  money.Amount
}

// Balance is credits minus debits
func (s Sums) Balance() money.Amount {
	return s.Credits - s.Debits
}

// Add accumulates one transaction
func (s *Sums) Add(t *Transaction) {
	if t.IsReversed {
		return
	}
	switch t.Type.Class() {
	case ClassCredit:
		s.Credits += t.Amount
	case ClassDebit:
		s.Debits += t.Amount
	}
}

// BonusCredit is the pair of transactions written for a bonus
type BonusCredit struct {
	Credit *Transaction `json:"credit"`
	TDS    *Transaction `json:"tds,omitempty"`
}

// Net is the amount the wallet actually gained
func (b *BonusCredit) Net() money.Amount {
	net := b.Credit.Amount
	if b.TDS != nil {
		net -= b.TDS.Amount
	}
	return net
}

// Recovery is the outcome of clawing money back from a wallet
type Recovery struct {
	Transaction *Transaction `json:"transaction,omitempty"`
	Debited     ledger.Split `json:"debited"`
	Shortfall   ledger.Split `json:"shortfall"`
}

// Recomputed compares a stored balance with the transaction log
type Recomputed struct {
	WalletID uuid.UUID    `json:"wallet_id"`
	Stored   money.Amount `json:"stored"`
	Computed money.Amount `json:"computed"`
}

// Discrepancy is stored minus computed
func (r Recomputed) Discrepancy() money.Amount {
	return r.Stored - r.Computed
}
