package ledger

import (
	"context"
	"fmt"

	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// Event is the business event an entry records
type Event string

const (
	EventInventoryPurchase         Event = "inventory_purchase"
	EventInventoryPurchaseReversal Event = "inventory_purchase_reversal"
	EventDeposit                   Event = "deposit"
	EventInvestment                Event = "investment"
	EventBonusCredit               Event = "bonus_credit"
	EventBonusToWallet             Event = "bonus_to_wallet"
	EventWithdrawal                Event = "withdrawal"
	EventTDSDeduction              Event = "tds_deduction"
	EventRefund                    Event = "refund"
	EventCapitalInjection          Event = "capital_injection"
	EventGatewayFee                Event = "gateway_fee"
	EventSaleChargeback            Event = "sale_chargeback"
	EventReceivableSettlement      Event = "receivable_settlement"
	EventReceivableWriteOff        Event = "receivable_write_off"
	EventWalletRecovery            Event = "wallet_recovery"
	EventReceivableCreated         Event = "receivable_created"
	EventReversal                  Event = "reversal"
)

// Rule is a fixed debit/credit pair
type Rule struct {
	Debit  Code
	Credit Code
}

var rules = map[Event]Rule{
	EventInventoryPurchase:         {Debit: CodeCostOfShares, Credit: CodeBank},
	EventInventoryPurchaseReversal: {Debit: CodeBank, Credit: CodeCostOfShares},
	EventDeposit:                   {Debit: CodeBank, Credit: CodeWalletLiability},
	EventInvestment:                {Debit: CodeWalletLiability, Credit: CodeShareSaleIncome},
	EventBonusCredit:               {Debit: CodeMarketingExpense, Credit: CodeBonusLiability},
	EventBonusToWallet:             {Debit: CodeBonusLiability, Credit: CodeWalletLiability},
	EventWithdrawal:                {Debit: CodeWalletLiability, Credit: CodeBank},
	EventTDSDeduction:              {Debit: CodeWalletLiability, Credit: CodeTDSPayable},
	EventRefund:                    {Debit: CodeShareSaleIncome, Credit: CodeWalletLiability},
	EventCapitalInjection:          {Debit: CodeBank, Credit: CodeOwnerCapital},
	EventGatewayFee:                {Debit: CodeGatewayFees, Credit: CodeBank},
	EventSaleChargeback:            {Debit: CodeShareSaleIncome, Credit: CodeBank},
	EventReceivableSettlement:      {Debit: CodeWalletLiability, Credit: CodeAccountsReceivable},
	EventReceivableWriteOff:        {Debit: CodeBadDebtExpense, Credit: CodeAccountsReceivable},
}

// Clawback events debit one account and credit the bonus part back to Marketing-Expense
// and the principal part back to Bank.
var clawbackDebit = map[Event]Code{
	EventWalletRecovery:    CodeWalletLiability,
	EventReceivableCreated: CodeAccountsReceivable,
}

// RuleFor returns the posting rule of a two-line event
func RuleFor(event Event) (Rule, bool) {
	r, ok := rules[event]
	return r, ok
}

// Split divides a clawback between the bonus and principal it recovers
type Split struct {
	Bonus     money.Amount `json:"bonus"`
	Principal money.Amount `json:"principal"`
}

// Total is bonus plus principal
func (s Split) Total() money.Amount {
	return s.Bonus + s.Principal
}

func (s *Service) record(ctx context.Context, event Event, ref Reference, amount money.Amount, description string) (*Entry, error) {
	if err := money.RequirePositive(amount); err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("%s amount must be positive", event), err)
	}

	r, ok := rules[event]
	if !ok {
		return nil, apperrors.Configuration(string(event), ErrUnknownEvent)
	}

	return s.post(ctx, &Entry{
		Event:       event,
		Reference:   ref,
		Description: description,
		Lines: []Line{
			{AccountCode: r.Debit, Side: SideDebit, Amount: amount},
			{AccountCode: r.Credit, Side: SideCredit, Amount: amount},
		},
	})
}

func (s *Service) recordClawback(ctx context.Context, event Event, ref Reference, split Split, description string) (*Entry, error) {
	if split.Bonus < 0 || split.Principal < 0 {
		return nil, apperrors.Validation(fmt.Sprintf("%s parts cannot be negative", event), money.ErrNonPositiveAmount)
	}
	if err := money.RequirePositive(split.Total()); err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("%s amount must be positive", event), err)
	}

	debit, ok := clawbackDebit[event]
	if !ok {
		return nil, apperrors.Configuration(string(event), ErrUnknownEvent)
	}

	lines := []Line{{AccountCode: debit, Side: SideDebit, Amount: split.Total()}}
	if split.Bonus > 0 {
		lines = append(lines, Line{AccountCode: CodeMarketingExpense, Side: SideCredit, Amount: split.Bonus})
	}
	if split.Principal > 0 {
		lines = append(lines, Line{AccountCode: CodeBank, Side: SideCredit, Amount: split.Principal})
	}

	return s.post(ctx, &Entry{
		Event:       event,
		Reference:   ref,
		Description: description,
		Lines:       lines,
	})
}

// RecordInventoryPurchase expenses newly acquired share inventory
func (s *Service) RecordInventoryPurchase(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventInventoryPurchase, ref, amount, "inventory purchase")
}

// RecordInventoryPurchaseReversal undoes a mistaken inventory purchase
func (s *Service) RecordInventoryPurchaseReversal(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventInventoryPurchaseReversal, ref, amount, "inventory purchase reversal")
}

// RecordDeposit records money received into a wallet
func (s *Service) RecordDeposit(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventDeposit, ref, amount, "wallet deposit")
}

// RecordInvestment records a share sale paid from a wallet
func (s *Service) RecordInvestment(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventInvestment, ref, amount, "share sale")
}

// RecordBonusCredit books the gross bonus as marketing spend
func (s *Service) RecordBonusCredit(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventBonusCredit, ref, amount, "bonus credit")
}

// RecordBonusToWallet moves a granted bonus into the user's wallet
func (s *Service) RecordBonusToWallet(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventBonusToWallet, ref, amount, "bonus to wallet")
}

// RecordWithdrawal records money paid out of a wallet
func (s *Service) RecordWithdrawal(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventWithdrawal, ref, amount, "wallet withdrawal")
}

// RecordTDSDeduction withholds tax from a wallet credit
func (s *Service) RecordTDSDeduction(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventTDSDeduction, ref, amount, "TDS deduction")
}

// RecordRefund returns sale proceeds to the wallet
func (s *Service) RecordRefund(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventRefund, ref, amount, "refund")
}

// RecordCapitalInjection records owner funding
func (s *Service) RecordCapitalInjection(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventCapitalInjection, ref, amount, "capital injection")
}

// RecordGatewayFee records a payment gateway charge
func (s *Service) RecordGatewayFee(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventGatewayFee, ref, amount, "payment gateway fee")
}

// RecordSaleChargeback undoes a sale whose funds the bank clawed back
func (s *Service) RecordSaleChargeback(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventSaleChargeback, ref, amount, "sale charged back")
}

// RecordReceivableSettlement applies wallet funds to an outstanding receivable
func (s *Service) RecordReceivableSettlement(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventReceivableSettlement, ref, amount, "receivable settlement")
}

// RecordReceivableWriteOff books an unrecoverable receivable as bad debt
func (s *Service) RecordReceivableWriteOff(ctx context.Context, ref Reference, amount money.Amount) (*Entry, error) {
	return s.record(ctx, EventReceivableWriteOff, ref, amount, "receivable write-off")
}

// RecordWalletRecovery records funds clawed back from a wallet
func (s *Service) RecordWalletRecovery(ctx context.Context, ref Reference, split Split) (*Entry, error) {
	return s.recordClawback(ctx, EventWalletRecovery, ref, split, "wallet recovery debit")
}

// RecordReceivable records the part of a clawback the wallet could not cover
func (s *Service) RecordReceivable(ctx context.Context, ref Reference, split Split) (*Entry, error) {
	return s.recordClawback(ctx, EventReceivableCreated, ref, split, "receivable created on shortfall")
}
