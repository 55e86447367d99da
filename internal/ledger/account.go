package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/pkg/money"
)

// AccountType classifies an account for reporting and the accounting equation
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeIncome    AccountType = "income"
	AccountTypeExpense   AccountType = "expense"
)

// NormalSide returns the side on which the account type grows
func (t AccountType) NormalSide() Side {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Valid reports whether t is a known account type
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// Code identifies an account in the closed chart
type Code string

const (
	CodeBank               Code = "1000"
	CodeAccountsReceivable Code = "1100"
	CodeWalletLiability    Code = "2000"
	CodeBonusLiability     Code = "2100"
	CodeTDSPayable         Code = "2200"
	CodeOwnerCapital       Code = "3000"
	CodeShareSaleIncome    Code = "4000"
	CodeCostOfShares       Code = "5000"
	CodeMarketingExpense   Code = "5100"
	CodeGatewayFees        Code = "5200"
	CodeBadDebtExpense     Code = "5300"
)

// Definition is one row of the chart of accounts
type Definition struct {
	Code Code
	Name string
	Type AccountType
}

var chart = []Definition{
	{CodeBank, "Bank", AccountTypeAsset},
	{CodeAccountsReceivable, "Accounts-Receivable", AccountTypeAsset},
	{CodeWalletLiability, "Wallet-Liability", AccountTypeLiability},
	{CodeBonusLiability, "Bonus-Liability", AccountTypeLiability},
	{CodeTDSPayable, "TDS-Payable", AccountTypeLiability},
	{CodeOwnerCapital, "Owner-Capital", AccountTypeEquity},
	{CodeShareSaleIncome, "Share-Sale-Income", AccountTypeIncome},
	{CodeCostOfShares, "Cost-of-Shares", AccountTypeExpense},
	{CodeMarketingExpense, "Marketing-Expense", AccountTypeExpense},
	{CodeGatewayFees, "Payment-Gateway-Fees", AccountTypeExpense},
	{CodeBadDebtExpense, "Bad-Debt-Expense", AccountTypeExpense},
}

// Chart returns a copy of the fixed chart of accounts
func Chart() []Definition {
	out := make([]Definition, len(chart))
	copy(out, chart)
	return out
}

// Account is a ledger account. The running balance lives in storage, not here.
type Account struct {
	ID        uuid.UUID
	Code      Code
	Name      string
	Type      AccountType
	CreatedAt time.Time
}

// NormalSide returns the declared normal side of the account
func (a *Account) NormalSide() Side {
	return a.Type.NormalSide()
}

// Validate validates the account
func (a *Account) Validate() error {
	if a.Code == "" {
		return ErrInvalidAccountCode
	}
	if !a.Type.Valid() {
		return ErrInvalidAccountType
	}
	return nil
}

// AccountBalance is the stored running balance of an account together with the
// totals of its lines. Balance is signed: total debits minus total credits.
type AccountBalance struct {
	AccountID    uuid.UUID
	Code         Code
	Name         string
	Type         AccountType
	Balance      money.Amount
	TotalDebits  money.Amount
	TotalCredits money.Amount
}

// Natural returns the balance as seen from the account's normal side
func (b AccountBalance) Natural() money.Amount {
	return Natural(b.Type, b.Balance)
}

// Computed returns the balance derived from the lines
func (b AccountBalance) Computed() money.Amount {
	return b.TotalDebits - b.TotalCredits
}

// Natural converts a signed debit-minus-credit balance to the normal side of t
func Natural(t AccountType, signed money.Amount) money.Amount {
	if t.NormalSide() == SideCredit {
		return -signed
	}
	return signed
}
