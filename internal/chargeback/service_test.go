package chargeback_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/moneyguard/internal/chargeback"
	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/payment"
	"github.com/kislikjeka/moneyguard/internal/platform/audit"
	"github.com/kislikjeka/moneyguard/internal/platform/idempotency"
	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/pkg/money"
	"github.com/kislikjeka/moneyguard/testutil/harness"
	"github.com/kislikjeka/moneyguard/testutil/memstore"
)

type fixture struct {
	app      *harness.App
	walletID uuid.UUID
	company  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	app := harness.New(t)
	company := uuid.New()
	app.Stock(t, company, 1000000)
	return &fixture{app: app, walletID: app.OpenWallet(t).ID, company: company}
}

func (f *fixture) purchase(t *testing.T, amount money.Amount, bonus *payment.BonusGrant) *payment.Payment {
	t.Helper()
	return f.app.Purchase(t, f.walletID, f.company, amount, bonus).Payment
}

func (f *fixture) requireBooksBalance(t *testing.T) {
	t.Helper()
	eq, err := f.app.Ledger.AccountingEquation(context.Background())
	require.NoError(t, err)
	require.True(t, eq.Balanced, "difference %s", eq.Difference)

	r, err := f.app.Wallets.Recompute(context.Background(), f.walletID)
	require.NoError(t, err)
	require.Zero(t, r.Discrepancy())
}

func TestResolve_ShortfallCreatesReceivable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := f.purchase(t, 20000, &payment.BonusGrant{Gross: 1000, TDS: 100})
	_, err := f.app.Wallets.Withdraw(ctx, f.walletID, 500, ledger.WalletRef(f.walletID))
	require.NoError(t, err)
	balance := f.app.WalletBalance(t, f.walletID)
	require.Equal(t, money.Amount(400), balance)

	res, err := f.app.Chargebacks.Resolve(ctx, chargeback.Request{
		PaymentID: p.ID,
		Kind:      chargeback.KindChargeback,
		Reason:    "issuer dispute",
	})
	require.NoError(t, err)

	owed := money.Amount(900 + 20000)
	assert.Equal(t, payment.StatusChargebackRefunded, res.Status)
	assert.Equal(t, 1, res.BonusesReversed)
	assert.Equal(t, money.Amount(900), res.BonusNet)
	assert.Equal(t, money.Amount(20000), res.PrincipalOwed)
	assert.Equal(t, owed, res.AmountOwed)
	assert.Equal(t, balance, res.AmountDebited)
	assert.Equal(t, owed-balance, res.Shortfall)
	assert.True(t, res.AccountFrozen)
	require.NotNil(t, res.ReceivableID)

	assert.Zero(t, f.app.WalletBalance(t, f.walletID))
	w, err := f.app.Wallets.Get(ctx, f.walletID)
	require.NoError(t, err)
	assert.True(t, w.RecoveryMode)

	receivables, err := f.app.Chargebacks.Receivables(ctx, f.walletID)
	require.NoError(t, err)
	require.Len(t, receivables, 1)
	assert.Equal(t, owed-balance, receivables[0].Amount)
	assert.Equal(t, chargeback.ReceivablePending, receivables[0].Status)
	assert.Equal(t, owed-balance, f.app.Store.AccountBalance(ledger.CodeAccountsReceivable))

	stored, err := f.app.Payments.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusChargebackRefunded, stored.Status)

	events, err := f.app.Audit.List(ctx, "payment", p.ID.String())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionChargeback, events[0].Action)

	f.requireBooksBalance(t)
}

func TestResolve_BalanceCoversAmountOwed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := f.purchase(t, 20000, &payment.BonusGrant{Gross: 1000, TDS: 100})

	res, err := f.app.Chargebacks.Resolve(ctx, chargeback.Request{
		PaymentID:          p.ID,
		Kind:               chargeback.KindRefund,
		ReverseAllocations: true,
		RefundPrincipal:    true,
		Reason:             "customer cancelled",
	})
	require.NoError(t, err)

	assert.Equal(t, payment.StatusRefunded, res.Status)
	assert.Equal(t, money.Amount(20000), res.AllocationsReversed)
	assert.Equal(t, money.Amount(20000), res.PrincipalRefunded)
	assert.Equal(t, money.Amount(900), res.AmountOwed)
	assert.Equal(t, money.Amount(900), res.AmountDebited)
	assert.Zero(t, res.Shortfall)
	assert.Nil(t, res.ReceivableID)
	assert.False(t, res.AccountFrozen)

	assert.Equal(t, money.Amount(20000), f.app.WalletBalance(t, f.walletID))
	receivables, err := f.app.Chargebacks.Receivables(ctx, f.walletID)
	require.NoError(t, err)
	assert.Empty(t, receivables)
	assert.Zero(t, f.app.Store.AccountBalance(ledger.CodeShareSaleIncome))

	f.requireBooksBalance(t)
}

func TestResolve_ChargebackWithAllocationReversal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := f.purchase(t, 5000, nil)
	res, err := f.app.Chargebacks.Resolve(ctx, chargeback.Request{
		PaymentID:          p.ID,
		Kind:               chargeback.KindChargeback,
		ReverseAllocations: true,
	})
	require.NoError(t, err)
	assert.Zero(t, res.PrincipalOwed)
	assert.Zero(t, res.AmountOwed)
	assert.Equal(t, money.Amount(5000), res.AllocationsReversed)
	assert.Len(t, res.EntryIDs, 1)
	assert.False(t, res.AccountFrozen)

	assert.Zero(t, f.app.Store.AccountBalance(ledger.CodeShareSaleIncome))
	assert.Equal(t, money.Amount(-1000000), f.app.Store.AccountBalance(ledger.CodeBank))
	f.requireBooksBalance(t)
}

func TestResolve_SecondCallIsAlreadyProcessed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.purchase(t, 3000, &payment.BonusGrant{Gross: 200})

	req := chargeback.Request{PaymentID: p.ID, Kind: chargeback.KindChargeback}
	first, err := f.app.Chargebacks.Resolve(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)

	commits := f.app.Store.Commits()
	auditTrail := len(f.app.Store.Audit().Actions())

	second, err := f.app.Chargebacks.Resolve(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.AmountOwed, second.AmountOwed)
	assert.Equal(t, first.ReceivableID, second.ReceivableID)

	assert.Equal(t, commits, f.app.Store.Commits())
	assert.Len(t, f.app.Store.Audit().Actions(), auditTrail)

	receivables, err := f.app.Chargebacks.Receivables(ctx, f.walletID)
	require.NoError(t, err)
	assert.Len(t, receivables, 1)
}

func TestResolve_ConcurrentCallsUnwindOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.purchase(t, 20000, &payment.BonusGrant{Gross: 1000, TDS: 100})

	const n = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]*chargeback.Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.app.Chargebacks.Resolve(ctx, chargeback.Request{
				PaymentID: p.ID,
				Kind:      chargeback.KindChargeback,
				Reason:    "issuer dispute",
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var unwound *chargeback.Result
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			assert.True(t, apperrors.IsRetryable(errs[i]), "unexpected error %v", errs[i])
			continue
		}
		if results[i].AlreadyProcessed {
			continue
		}
		require.Nil(t, unwound, "payment unwound twice")
		unwound = results[i]
	}
	require.NotNil(t, unwound)
	for i := 0; i < n; i++ {
		if errs[i] == nil && results[i].AlreadyProcessed {
			assert.Equal(t, unwound.AmountOwed, results[i].AmountOwed)
			assert.Equal(t, unwound.ReceivableID, results[i].ReceivableID)
		}
	}

	receivables, err := f.app.Chargebacks.Receivables(ctx, f.walletID)
	require.NoError(t, err)
	require.Len(t, receivables, 1)
	assert.Equal(t, unwound.Shortfall, receivables[0].Amount)
	assert.Equal(t, unwound.Shortfall, f.app.Store.AccountBalance(ledger.CodeAccountsReceivable))

	events, err := f.app.Audit.List(ctx, "payment", p.ID.String())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionChargeback, events[0].Action)

	f.requireBooksBalance(t)
}

// unwindState is what a failed unwind must leave exactly as it found it
type unwindState struct {
	entries       []*ledger.Entry
	accounts      []ledger.AccountBalance
	walletBalance money.Amount
	walletTxns    int
	recoveryMode  bool
	bonuses       int
	receivables   int
	audit         int
	status        payment.Status
}

func (f *fixture) unwindState(t *testing.T, paymentID uuid.UUID) unwindState {
	t.Helper()
	ctx := context.Background()
	entries, err := f.app.Ledger.EntriesFor(ctx, ledger.PaymentRef(paymentID))
	require.NoError(t, err)
	accounts, err := f.app.Store.Reconciliation().AccountBalances(ctx)
	require.NoError(t, err)
	w, err := f.app.Wallets.Get(ctx, f.walletID)
	require.NoError(t, err)
	txns, err := f.app.Wallets.Transactions(ctx, f.walletID)
	require.NoError(t, err)
	bonuses, err := f.app.Store.Payments().ListActiveBonusesForUpdate(ctx, paymentID)
	require.NoError(t, err)
	receivables, err := f.app.Chargebacks.Receivables(ctx, f.walletID)
	require.NoError(t, err)
	events, err := f.app.Audit.List(ctx, "payment", paymentID.String())
	require.NoError(t, err)
	p, err := f.app.Payments.Get(ctx, paymentID)
	require.NoError(t, err)
	return unwindState{
		entries:       entries,
		accounts:      accounts,
		walletBalance: w.Balance,
		walletTxns:    len(txns),
		recoveryMode:  w.RecoveryMode,
		bonuses:       len(bonuses),
		receivables:   len(receivables),
		audit:         len(events),
		status:        p.Status,
	}
}

func TestResolve_FailureMidwayLeavesNothingBehind(t *testing.T) {
	for _, op := range []string{memstore.OpCreateReceivable, memstore.OpAppendAudit, memstore.OpUpdatePaymentStatus} {
		t.Run(op, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			p := f.purchase(t, 20000, &payment.BonusGrant{Gross: 1000, TDS: 100})
			_, err := f.app.Wallets.Withdraw(ctx, f.walletID, 500, ledger.WalletRef(f.walletID))
			require.NoError(t, err)

			before := f.unwindState(t, p.ID)
			require.Equal(t, 1, before.bonuses)

			injected := errors.New("connection reset by peer")
			f.app.Store.FailOn(op, injected)

			req := chargeback.Request{PaymentID: p.ID, Kind: chargeback.KindChargeback, Reason: "issuer dispute"}
			_, err = f.app.Chargebacks.Resolve(ctx, req)
			require.ErrorIs(t, err, injected)

			assert.Equal(t, before, f.unwindState(t, p.ID))
			assert.Equal(t, payment.StatusPaid, before.status)
			f.requireBooksBalance(t)

			rec, err := f.app.Store.Idempotency().Get(ctx, chargebackKey(p))
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, idempotency.StatusFailed, rec.Status)

			res, err := f.app.Chargebacks.Resolve(ctx, req)
			require.NoError(t, err)
			assert.False(t, res.AlreadyProcessed)
			assert.Equal(t, payment.StatusChargebackRefunded, res.Status)
			require.NotNil(t, res.ReceivableID)

			after := f.unwindState(t, p.ID)
			assert.Zero(t, after.bonuses)
			assert.Equal(t, 1, after.receivables)
			assert.Equal(t, 1, after.audit)
			f.requireBooksBalance(t)
		})
	}
}

func chargebackKey(p *payment.Payment) string {
	return idempotency.NewIntent(chargeback.KindChargeback.Action(), p.Amount, p.ID.String()).Key()
}

func TestResolve_InvalidTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.purchase(t, 1000, nil)

	_, err := f.app.Chargebacks.Resolve(ctx, chargeback.Request{PaymentID: p.ID, Kind: "void"})
	assert.ErrorIs(t, err, chargeback.ErrInvalidKind)

	_, err = f.app.Chargebacks.Resolve(ctx, chargeback.Request{PaymentID: p.ID, Kind: chargeback.KindChargeback, RefundPrincipal: true})
	assert.ErrorIs(t, err, chargeback.ErrChargebackRefund)

	_, err = f.app.Chargebacks.Resolve(ctx, chargeback.Request{PaymentID: uuid.New(), Kind: chargeback.KindRefund})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))

	_, err = f.app.Chargebacks.Resolve(ctx, chargeback.Request{PaymentID: p.ID, Kind: chargeback.KindRefund, ReverseAllocations: true, RefundPrincipal: true})
	require.NoError(t, err)

	_, err = f.app.Chargebacks.Resolve(ctx, chargeback.Request{PaymentID: p.ID, Kind: chargeback.KindChargeback})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidState))
	assert.ErrorIs(t, err, chargeback.ErrNotPaid)
}

func TestSettlement_FIFO(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	older := f.purchase(t, 300, nil)
	newer := f.purchase(t, 700, nil)
	for _, p := range []*payment.Payment{older, newer} {
		_, err := f.app.Chargebacks.Resolve(ctx, chargeback.Request{PaymentID: p.ID, Kind: chargeback.KindChargeback})
		require.NoError(t, err)
	}

	receivables, err := f.app.Chargebacks.Receivables(ctx, f.walletID)
	require.NoError(t, err)
	require.Len(t, receivables, 2)
	require.Equal(t, money.Amount(300), receivables[0].Balance())
	require.Equal(t, money.Amount(700), receivables[1].Balance())

	f.app.Fund(t, f.walletID, 500)

	receivables, err = f.app.Chargebacks.Receivables(ctx, f.walletID)
	require.NoError(t, err)
	assert.Zero(t, receivables[0].Balance())
	assert.Equal(t, chargeback.ReceivableSettled, receivables[0].Status)
	assert.Equal(t, money.Amount(500), receivables[1].Balance())
	assert.Equal(t, chargeback.ReceivablePending, receivables[1].Status)

	w, err := f.app.Wallets.Get(ctx, f.walletID)
	require.NoError(t, err)
	assert.True(t, w.RecoveryMode)
	assert.Zero(t, w.Balance)
	f.requireBooksBalance(t)

	f.app.Fund(t, f.walletID, 600)

	w, err = f.app.Wallets.Get(ctx, f.walletID)
	require.NoError(t, err)
	assert.False(t, w.RecoveryMode)
	assert.Equal(t, money.Amount(100), w.Balance)
	assert.Zero(t, f.app.Store.AccountBalance(ledger.CodeAccountsReceivable))
	assert.Contains(t, f.app.Store.Audit().Actions(), audit.ActionRecoveryCleared)
	f.requireBooksBalance(t)
}

func TestSettlement_PurchaseDepositIsNotSwept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := f.purchase(t, 800, nil)
	_, err := f.app.Chargebacks.Resolve(ctx, chargeback.Request{PaymentID: p.ID, Kind: chargeback.KindChargeback})
	require.NoError(t, err)

	_, err = f.app.Payments.RecordSharePurchase(ctx, payment.PurchaseRequest{
		WalletID:   f.walletID,
		CompanyID:  f.company,
		Amount:     5000,
		GatewayRef: "pay_" + uuid.NewString(),
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecoveryMode), "got %v", err)

	receivables, err := f.app.Chargebacks.Receivables(ctx, f.walletID)
	require.NoError(t, err)
	require.Len(t, receivables, 1)
	assert.Equal(t, money.Amount(800), receivables[0].Balance())
	assert.Zero(t, f.app.WalletBalance(t, f.walletID))
	f.requireBooksBalance(t)

	f.app.Fund(t, f.walletID, 800)

	receivables, err = f.app.Chargebacks.Receivables(ctx, f.walletID)
	require.NoError(t, err)
	assert.Equal(t, chargeback.ReceivableSettled, receivables[0].Status)
	w, err := f.app.Wallets.Get(ctx, f.walletID)
	require.NoError(t, err)
	assert.False(t, w.RecoveryMode)
	f.requireBooksBalance(t)
}

func TestWriteOff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := f.purchase(t, 800, nil)
	_, err := f.app.Chargebacks.Resolve(ctx, chargeback.Request{PaymentID: p.ID, Kind: chargeback.KindChargeback})
	require.NoError(t, err)

	_, err = f.app.Chargebacks.WriteOff(ctx, f.walletID, "")
	assert.ErrorIs(t, err, chargeback.ErrWriteOffReason)

	out, err := f.app.Chargebacks.WriteOff(ctx, f.walletID, "uncollectable after 90 days")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(800), out.Amount)
	assert.Len(t, out.Receivables, 1)

	w, err := f.app.Wallets.Get(ctx, f.walletID)
	require.NoError(t, err)
	assert.False(t, w.RecoveryMode)
	assert.Equal(t, money.Amount(800), f.app.Store.AccountBalance(ledger.CodeBadDebtExpense))
	assert.Zero(t, f.app.Store.AccountBalance(ledger.CodeAccountsReceivable))

	events, err := f.app.Audit.List(ctx, "wallet", f.walletID.String())
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, audit.ActionWriteOff, events[len(events)-1].Action)

	_, err = f.app.Chargebacks.WriteOff(ctx, f.walletID, "again")
	assert.ErrorIs(t, err, chargeback.ErrNothingOutstanding)
	f.requireBooksBalance(t)
}
