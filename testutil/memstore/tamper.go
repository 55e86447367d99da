package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// The helpers below bypass every service so tests can plant the corruption
// reconciliation is meant to find.

// SetWalletBalance overwrites a wallet's stored balance
func (s *Store) SetWalletBalance(walletID uuid.UUID, balance money.Amount) {
	_ = s.with(context.Background(), func(d *data) error {
		w := d.wallets[walletID]
		w.Balance = balance
		d.wallets[walletID] = w
		return nil
	})
}

// SetAccountBalance overwrites a ledger account's stored balance
func (s *Store) SetAccountBalance(code ledger.Code, balance money.Amount) {
	_ = s.with(context.Background(), func(d *data) error {
		d.balances[d.accountByCode[code]] = balance
		return nil
	})
}

// SetBatchRemaining overwrites a batch's remaining value without touching allocations
func (s *Store) SetBatchRemaining(batchID uuid.UUID, remaining money.Amount) {
	_ = s.with(context.Background(), func(d *data) error {
		b := d.batches[batchID]
		b.ValueRemaining = remaining
		d.batches[batchID] = b
		return nil
	})
}

// InsertOrphanPair appends a transaction whose pair does not exist
func (s *Store) InsertOrphanPair(walletID uuid.UUID, amount money.Amount) uuid.UUID {
	id := uuid.New()
	missing := uuid.New()
	_ = s.with(context.Background(), func(d *data) error {
		d.walletTxns = append(d.walletTxns, wallet.Transaction{
			ID:                  id,
			WalletID:            walletID,
			Type:                wallet.TxnTDSDeduction,
			Amount:              amount,
			PairedTransactionID: &missing,
		})
		return nil
	})
	return id
}

// DropEntryLine removes the last line of an entry, leaving it unbalanced
func (s *Store) DropEntryLine(entryID uuid.UUID) {
	_ = s.with(context.Background(), func(d *data) error {
		e := d.entries[entryID]
		if len(e.Lines) > 0 {
			e.Lines = e.Lines[:len(e.Lines)-1]
		}
		d.entries[entryID] = e
		return nil
	})
}

// AccountBalance reads a stored account balance by code
func (s *Store) AccountBalance(code ledger.Code) money.Amount {
	var out money.Amount
	_ = s.with(context.Background(), func(d *data) error {
		out = d.balances[d.accountByCode[code]]
		return nil
	})
	return out
}

// CreditWithoutLedger credits a wallet and logs the deposit transaction but posts no
// ledger entry, so the wallet agrees with its own log and not with Wallet-Liability
func (s *Store) CreditWithoutLedger(walletID uuid.UUID, amount money.Amount) {
	_ = s.with(context.Background(), func(d *data) error {
		w := d.wallets[walletID]
		d.walletTxns = append(d.walletTxns, wallet.Transaction{
			ID:            uuid.New(),
			WalletID:      walletID,
			Type:          wallet.TxnDeposit,
			Amount:        amount,
			BalanceBefore: w.Balance,
			BalanceAfter:  w.Balance + amount,
		})
		w.Balance += amount
		d.wallets[walletID] = w
		return nil
	})
}
