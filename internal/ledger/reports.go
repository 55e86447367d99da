package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/kislikjeka/moneyguard/pkg/money"
)

// TrialBalanceLine is one account of the trial balance
type TrialBalanceLine struct {
	Code    Code         `json:"code"`
	Name    string       `json:"name"`
	Type    AccountType  `json:"type"`
	Debit   money.Amount `json:"debit"`
	Credit  money.Amount `json:"credit"`
	Balance money.Amount `json:"balance"`
}

// TrialBalance lists every account's balance in a debit or credit column
type TrialBalance struct {
	AsOf         time.Time          `json:"as_of"`
	Lines        []TrialBalanceLine `json:"lines"`
	TotalDebits  money.Amount       `json:"total_debits"`
	TotalCredits money.Amount       `json:"total_credits"`
	Balanced     bool               `json:"balanced"`
}

// Line returns the line for code
func (tb *TrialBalance) Line(code Code) (TrialBalanceLine, bool) {
	for _, l := range tb.Lines {
		if l.Code == code {
			return l, true
		}
	}
	return TrialBalanceLine{}, false
}

// Equation is Assets == Liabilities + Equity + Income - Expenses over natural balances
type Equation struct {
	Assets      money.Amount `json:"assets"`
	Liabilities money.Amount `json:"liabilities"`
	Equity      money.Amount `json:"equity"`
	Income      money.Amount `json:"income"`
	Expenses    money.Amount `json:"expenses"`
	Difference  money.Amount `json:"difference"`
	Balanced    bool         `json:"balanced"`
}

// ComputeEquation evaluates the accounting equation. balanceOf picks which balance to use,
// so reconciliation can evaluate it over stored and over recomputed balances.
// Tolerance is zero: amounts are integer minor units.
func ComputeEquation(balances []AccountBalance, balanceOf func(AccountBalance) money.Amount) Equation {
	var eq Equation
	for _, b := range balances {
		natural := Natural(b.Type, balanceOf(b))
		switch b.Type {
		case AccountTypeAsset:
			eq.Assets += natural
		case AccountTypeLiability:
			eq.Liabilities += natural
		case AccountTypeEquity:
			eq.Equity += natural
		case AccountTypeIncome:
			eq.Income += natural
		case AccountTypeExpense:
			eq.Expenses += natural
		}
	}
	eq.Difference = eq.Assets - (eq.Liabilities + eq.Equity + eq.Income - eq.Expenses)
	eq.Balanced = eq.Difference == 0
	return eq
}

// StoredBalance selects the stored running balance
func StoredBalance(b AccountBalance) money.Amount { return b.Balance }

// ComputedBalance selects the balance derived from lines
func ComputedBalance(b AccountBalance) money.Amount { return b.Computed() }

// MarginReport is the share-sale margin read directly off account balances.
// It is point-in-time as of AsOf; refunds after a period boundary reduce the live figure.
type MarginReport struct {
	AsOf             time.Time    `json:"as_of"`
	ShareSaleIncome  money.Amount `json:"share_sale_income"`
	CostOfShares     money.Amount `json:"cost_of_shares"`
	GrossMargin      money.Amount `json:"gross_margin"`
	GatewayFees      money.Amount `json:"gateway_fees"`
	MarketingExpense money.Amount `json:"marketing_expense"`
	NetMargin        money.Amount `json:"net_margin"`
	// MarginBasisPoints is gross margin over income in 1/100 of a percent; zero without income
	MarginBasisPoints int64 `json:"margin_basis_points"`
}

// TrialBalance builds the trial balance from stored balances
func (s *Service) TrialBalance(ctx context.Context) (*TrialBalance, error) {
	balances, err := s.repo.ListBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}

	tb := &TrialBalance{AsOf: s.clock().UTC(), Lines: make([]TrialBalanceLine, 0, len(balances))}
	for _, b := range balances {
		line := TrialBalanceLine{Code: b.Code, Name: b.Name, Type: b.Type, Balance: b.Natural()}
		if b.Balance >= 0 {
			line.Debit = b.Balance
		} else {
			line.Credit = -b.Balance
		}
		tb.TotalDebits += line.Debit
		tb.TotalCredits += line.Credit
		tb.Lines = append(tb.Lines, line)
	}
	tb.Balanced = tb.TotalDebits == tb.TotalCredits
	return tb, nil
}

// AccountingEquation evaluates the equation over stored balances
func (s *Service) AccountingEquation(ctx context.Context) (*Equation, error) {
	balances, err := s.repo.ListBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	eq := ComputeEquation(balances, StoredBalance)
	return &eq, nil
}

// Margin reports share-sale margin from live balances
func (s *Service) Margin(ctx context.Context) (*MarginReport, error) {
	balances, err := s.repo.ListBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}

	r := &MarginReport{AsOf: s.clock().UTC()}
	for _, b := range balances {
		switch b.Code {
		case CodeShareSaleIncome:
			r.ShareSaleIncome = b.Natural()
		case CodeCostOfShares:
			r.CostOfShares = b.Natural()
		case CodeGatewayFees:
			r.GatewayFees = b.Natural()
		case CodeMarketingExpense:
			r.MarketingExpense = b.Natural()
		}
	}
	r.GrossMargin = r.ShareSaleIncome - r.CostOfShares
	r.NetMargin = r.GrossMargin - r.GatewayFees - r.MarketingExpense
	if r.ShareSaleIncome > 0 {
		r.MarginBasisPoints = int64(r.GrossMargin) * 10000 / int64(r.ShareSaleIncome)
	}
	return r, nil
}
