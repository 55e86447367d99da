package wallet_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/moneyguard/internal/ledger"
	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/money"
	"github.com/kislikjeka/moneyguard/testutil/harness"
)

func requireReconciled(t *testing.T, app *harness.App, walletID uuid.UUID) {
	t.Helper()
	r, err := app.Wallets.Recompute(context.Background(), walletID)
	require.NoError(t, err)
	require.Zero(t, r.Discrepancy(), "stored %s computed %s", r.Stored, r.Computed)
}

func TestService_DepositAndSpend(t *testing.T) {
	ctx := context.Background()
	app := harness.New(t)
	w := app.OpenWallet(t)

	dep, err := app.Wallets.Deposit(ctx, w.ID, 10000, ledger.WalletRef(w.ID))
	require.NoError(t, err)
	assert.Equal(t, money.Amount(0), dep.BalanceBefore)
	assert.Equal(t, money.Amount(10000), dep.BalanceAfter)
	require.NotNil(t, dep.EntryID)

	inv, err := app.Wallets.Invest(ctx, w.ID, 6000, ledger.PaymentRef(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, money.Amount(4000), inv.BalanceAfter)

	_, err = app.Wallets.Withdraw(ctx, w.ID, 1000, ledger.WalletRef(w.ID))
	require.NoError(t, err)

	assert.Equal(t, money.Amount(3000), app.WalletBalance(t, w.ID))
	requireReconciled(t, app, w.ID)

	entry, err := app.Ledger.GetEntry(ctx, *dep.EntryID)
	require.NoError(t, err)
	assert.Equal(t, ledger.WalletTxnRef(dep.ID), entry.Reference)
	assert.Equal(t, ledger.EventDeposit, entry.Event)
}

func TestService_SpendGuards(t *testing.T) {
	ctx := context.Background()
	app := harness.New(t)
	w := app.OpenWallet(t)
	app.Fund(t, w.ID, 500)

	t.Run("insufficient balance", func(t *testing.T) {
		_, err := app.Wallets.Withdraw(ctx, w.ID, 501, ledger.WalletRef(w.ID))
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInsufficientBalance))
		assert.Equal(t, money.Amount(500), app.WalletBalance(t, w.ID))
	})

	t.Run("non-positive amount", func(t *testing.T) {
		_, err := app.Wallets.Deposit(ctx, w.ID, 0, ledger.WalletRef(w.ID))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	})

	t.Run("recovery mode blocks spending", func(t *testing.T) {
		require.NoError(t, app.Wallets.SetRecoveryMode(ctx, w.ID, true))
		_, err := app.Wallets.Invest(ctx, w.ID, 100, ledger.PaymentRef(uuid.New()))
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecoveryMode))
		require.NoError(t, app.Wallets.SetRecoveryMode(ctx, w.ID, false))
	})

	t.Run("unknown wallet", func(t *testing.T) {
		_, err := app.Wallets.Deposit(ctx, uuid.New(), 10, ledger.WalletRef(w.ID))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})
}

func TestService_CreditBonusWithTDS(t *testing.T) {
	ctx := context.Background()
	app := harness.New(t)
	w := app.OpenWallet(t)

	credit, err := app.Wallets.CreditBonus(ctx, w.ID, 1000, 100, ledger.BonusRef(uuid.New()))
	require.NoError(t, err)
	require.NotNil(t, credit.TDS)
	assert.Equal(t, money.Amount(900), credit.Net())
	assert.Equal(t, credit.TDS.ID, *credit.Credit.PairedTransactionID)
	assert.Equal(t, credit.Credit.ID, *credit.TDS.PairedTransactionID)

	assert.Equal(t, money.Amount(900), app.WalletBalance(t, w.ID))
	assert.Equal(t, money.Amount(-100), app.Store.AccountBalance(ledger.CodeTDSPayable))
	assert.Equal(t, money.Amount(1000), app.Store.AccountBalance(ledger.CodeMarketingExpense))
	assert.Zero(t, app.Store.AccountBalance(ledger.CodeBonusLiability))
	requireReconciled(t, app, w.ID)

	_, err = app.Wallets.CreditBonus(ctx, w.ID, 100, 101, ledger.BonusRef(uuid.New()))
	assert.ErrorIs(t, err, wallet.ErrInvalidTDS)
}

func TestService_RecoveryDebit(t *testing.T) {
	ctx := context.Background()

	t.Run("balance covers what is owed", func(t *testing.T) {
		app := harness.New(t)
		w := app.OpenWallet(t)
		app.Fund(t, w.ID, 2000)

		rec, err := app.Wallets.RecoveryDebit(ctx, w.ID, ledger.Split{Bonus: 300, Principal: 1200}, ledger.PaymentRef(uuid.New()))
		require.NoError(t, err)
		assert.Equal(t, ledger.Split{Bonus: 300, Principal: 1200}, rec.Debited)
		assert.Zero(t, rec.Shortfall.Total())
		assert.Equal(t, money.Amount(500), app.WalletBalance(t, w.ID))
		requireReconciled(t, app, w.ID)
	})

	t.Run("shortfall takes the bonus part first", func(t *testing.T) {
		app := harness.New(t)
		w := app.OpenWallet(t)
		app.Fund(t, w.ID, 400)

		rec, err := app.Wallets.RecoveryDebit(ctx, w.ID, ledger.Split{Bonus: 300, Principal: 700}, ledger.PaymentRef(uuid.New()))
		require.NoError(t, err)
		assert.Equal(t, ledger.Split{Bonus: 300, Principal: 100}, rec.Debited)
		assert.Equal(t, ledger.Split{Bonus: 0, Principal: 600}, rec.Shortfall)
		assert.Zero(t, app.WalletBalance(t, w.ID))
	})

	t.Run("empty wallet writes nothing", func(t *testing.T) {
		app := harness.New(t)
		w := app.OpenWallet(t)

		rec, err := app.Wallets.RecoveryDebit(ctx, w.ID, ledger.Split{Principal: 700}, ledger.PaymentRef(uuid.New()))
		require.NoError(t, err)
		assert.Nil(t, rec.Transaction)
		assert.Equal(t, money.Amount(700), rec.Shortfall.Total())

		txns, err := app.Wallets.Transactions(ctx, w.ID)
		require.NoError(t, err)
		assert.Empty(t, txns)
	})
}

func TestService_Holds(t *testing.T) {
	ctx := context.Background()
	app := harness.New(t)
	w := app.OpenWallet(t)
	app.Fund(t, w.ID, 1000)

	held, err := app.Wallets.Hold(ctx, w.ID, 600)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(600), held.LockedBalance)
	assert.Equal(t, money.Amount(400), held.Available())

	_, err = app.Wallets.Withdraw(ctx, w.ID, 401, ledger.WalletRef(w.ID))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInsufficientBalance))
	_, err = app.Wallets.Invest(ctx, w.ID, 401, ledger.PaymentRef(uuid.New()))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInsufficientBalance))
	_, err = app.Wallets.Hold(ctx, w.ID, 401)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInsufficientBalance))

	_, err = app.Wallets.PayoutHeld(ctx, w.ID, 601, ledger.WalletRef(w.ID))
	assert.ErrorIs(t, err, wallet.ErrHoldExceeded)

	payout, err := app.Wallets.PayoutHeld(ctx, w.ID, 250, ledger.WalletRef(w.ID))
	require.NoError(t, err)
	assert.Equal(t, wallet.TxnWithdrawal, payout.Type)
	assert.Equal(t, money.Amount(750), payout.BalanceAfter)

	_, err = app.Wallets.ReleaseHold(ctx, w.ID, 351)
	assert.ErrorIs(t, err, wallet.ErrHoldExceeded)
	released, err := app.Wallets.ReleaseHold(ctx, w.ID, 350)
	require.NoError(t, err)
	assert.Zero(t, released.LockedBalance)
	assert.Equal(t, money.Amount(750), released.Available())

	requireReconciled(t, app, w.ID)
	assert.Equal(t, money.Amount(-750), app.Store.AccountBalance(ledger.CodeWalletLiability))
}

func TestService_HoldsInRecoveryMode(t *testing.T) {
	ctx := context.Background()
	app := harness.New(t)
	w := app.OpenWallet(t)
	app.Fund(t, w.ID, 1000)
	_, err := app.Wallets.Hold(ctx, w.ID, 800)
	require.NoError(t, err)

	rec, err := app.Wallets.RecoveryDebit(ctx, w.ID, ledger.Split{Principal: 700}, ledger.PaymentRef(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, money.Amount(700), rec.Debited.Total())

	got, err := app.Wallets.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(300), got.Balance)
	assert.Equal(t, money.Amount(300), got.LockedBalance, "hold shrinks to the balance")
	assert.Zero(t, got.Available())

	require.NoError(t, app.Wallets.SetRecoveryMode(ctx, w.ID, true))
	_, err = app.Wallets.Hold(ctx, w.ID, 1)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecoveryMode))
	_, err = app.Wallets.PayoutHeld(ctx, w.ID, 100, ledger.WalletRef(w.ID))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecoveryMode))

	_, err = app.Wallets.ReleaseHold(ctx, w.ID, 300)
	require.NoError(t, err)
	requireReconciled(t, app, w.ID)
}

func TestService_ConcurrentDepositsSerialise(t *testing.T) {
	ctx := context.Background()
	app := harness.New(t)
	w := app.OpenWallet(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := app.Wallets.Deposit(ctx, w.ID, 50, ledger.WalletRef(w.ID))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, money.Amount(1000), app.WalletBalance(t, w.ID))
	requireReconciled(t, app, w.ID)
}

func TestService_ApplyAdjustment(t *testing.T) {
	ctx := context.Background()
	app := harness.New(t)
	w := app.OpenWallet(t)
	app.Fund(t, w.ID, 1000)

	_, err := app.Wallets.ApplyAdjustment(ctx, w.ID, func(context.Context, wallet.Recomputed) error { return nil })
	assert.ErrorIs(t, err, wallet.ErrNoDiscrepancy)

	app.Store.SetWalletBalance(w.ID, 1250)

	var seen wallet.Recomputed
	adj, err := app.Wallets.ApplyAdjustment(ctx, w.ID, func(_ context.Context, r wallet.Recomputed) error {
		seen = r
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, money.Amount(250), seen.Discrepancy())
	assert.Equal(t, wallet.TxnAdjustment, adj.Type)
	assert.Equal(t, money.Amount(250), adj.Amount)
	assert.Equal(t, money.Amount(1000), app.WalletBalance(t, w.ID))
	requireReconciled(t, app, w.ID)
}
