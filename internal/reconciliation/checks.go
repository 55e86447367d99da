package reconciliation

import (
	"sort"

	"github.com/kislikjeka/moneyguard/internal/ledger"
)

// All checks use exact integer minor units; any non-zero difference is a discrepancy.

func checkWallets(states []WalletState) WalletCheck {
	c := WalletCheck{Checked: len(states), Mismatches: []WalletMismatch{}}
	for _, s := range states {
		if s.Stored == s.Computed() {
			continue
		}
		c.Mismatches = append(c.Mismatches, WalletMismatch{
			WalletID:    s.WalletID,
			Stored:      s.Stored,
			Computed:    s.Computed(),
			Discrepancy: s.Stored - s.Computed(),
		})
	}
	sort.Slice(c.Mismatches, func(i, j int) bool {
		return c.Mismatches[i].WalletID.String() < c.Mismatches[j].WalletID.String()
	})
	c.Passed = len(c.Mismatches) == 0
	return c
}

// A closed system cannot pay out more than it took in
func checkSystem(t Totals) SystemCheck {
	return SystemCheck{
		Credits: t.Credits,
		Debits:  t.Debits,
		Net:     t.Credits - t.Debits,
		Passed:  t.Debits <= t.Credits,
	}
}

func checkEquation(balances []ledger.AccountBalance) EquationCheck {
	stored := ledger.ComputeEquation(balances, ledger.StoredBalance)
	computed := ledger.ComputeEquation(balances, ledger.ComputedBalance)
	return EquationCheck{
		Stored:   stored,
		Computed: computed,
		Passed:   stored.Balanced && computed.Balanced,
	}
}

func checkAccounts(balances []ledger.AccountBalance) AccountCheck {
	c := AccountCheck{Checked: len(balances), Mismatches: []AccountMismatch{}}
	for _, b := range balances {
		if b.Balance != b.Computed() {
			c.Mismatches = append(c.Mismatches, AccountMismatch{Code: b.Code, Stored: b.Balance, Computed: b.Computed()})
		}
	}
	sort.Slice(c.Mismatches, func(i, j int) bool { return c.Mismatches[i].Code < c.Mismatches[j].Code })
	c.Passed = len(c.Mismatches) == 0
	return c
}

// Wallet balances are the ledger's view of what the platform owes users. Bonus-Liability
// clears to Wallet-Liability on every credit, so it normally holds zero.
func checkLiability(states []WalletState, balances []ledger.AccountBalance) LiabilityCheck {
	var c LiabilityCheck
	for _, s := range states {
		c.Wallets += s.Stored
	}
	for _, b := range balances {
		if b.Code == ledger.CodeWalletLiability || b.Code == ledger.CodeBonusLiability {
			c.Ledger += b.Natural()
		}
	}
	c.Difference = c.Wallets - c.Ledger
	c.Passed = c.Difference == 0
	return c
}

func checkEntries(unbalanced []ledger.EntryImbalance) EntryCheck {
	out := append([]ledger.EntryImbalance{}, unbalanced...)
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID.String() < out[j].EntryID.String() })
	return EntryCheck{Unbalanced: out, Passed: len(out) == 0}
}

func checkPairs(dangling []DanglingPair) PairCheck {
	out := append([]DanglingPair{}, dangling...)
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID.String() < out[j].TransactionID.String() })
	return PairCheck{Dangling: out, Passed: len(out) == 0}
}

func checkInventory(batches []BatchState) InventoryCheck {
	c := InventoryCheck{Checked: len(batches), Violations: []BatchViolation{}}
	for _, b := range batches {
		diff := b.TotalReceived - (b.ValueRemaining + b.Allocated)
		if diff == 0 && b.ValueRemaining >= 0 && b.Allocated >= 0 {
			continue
		}
		c.Violations = append(c.Violations, BatchViolation{
			BatchID:        b.BatchID,
			CompanyID:      b.CompanyID,
			TotalReceived:  b.TotalReceived,
			ValueRemaining: b.ValueRemaining,
			Allocated:      b.Allocated,
			Difference:     diff,
		})
	}
	sort.Slice(c.Violations, func(i, j int) bool {
		return c.Violations[i].BatchID.String() < c.Violations[j].BatchID.String()
	})
	c.Passed = len(c.Violations) == 0
	return c
}
