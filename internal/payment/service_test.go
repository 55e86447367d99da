package payment_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/moneyguard/internal/inventory"
	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/payment"
	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/pkg/money"
	"github.com/kislikjeka/moneyguard/testutil/harness"
)

func TestService_RecordSharePurchase(t *testing.T) {
	ctx := context.Background()
	app := harness.New(t)
	w := app.OpenWallet(t)
	company := uuid.New()
	app.Stock(t, company, 50000)

	req := payment.PurchaseRequest{
		WalletID:   w.ID,
		CompanyID:  company,
		Amount:     20000,
		GatewayFee: 400,
		GatewayRef: "pay_N1",
		Bonus:      &payment.BonusGrant{Gross: 1000, TDS: 100},
	}

	p, err := app.Payments.RecordSharePurchase(ctx, req)
	require.NoError(t, err)
	assert.False(t, p.Replayed)
	assert.Equal(t, payment.StatusPaid, p.Payment.Status)
	require.Len(t, p.Allocations, 1)
	assert.Equal(t, money.Amount(20000), p.Allocations[0].Amount)
	require.NotNil(t, p.Bonus)
	require.NotNil(t, p.Bonus.PaymentID)
	assert.Equal(t, p.Payment.ID, *p.Bonus.PaymentID)
	assert.NotNil(t, p.Bonus.TDSTxnID)

	assert.Equal(t, money.Amount(900), app.WalletBalance(t, w.ID))
	assert.Equal(t, money.Amount(-20000), app.Store.AccountBalance(ledger.CodeShareSaleIncome))
	assert.Equal(t, money.Amount(400), app.Store.AccountBalance(ledger.CodeGatewayFees))

	t.Run("same request replays without writes", func(t *testing.T) {
		commits := app.Store.Commits()
		again, err := app.Payments.RecordSharePurchase(ctx, req)
		require.NoError(t, err)
		assert.True(t, again.Replayed)
		assert.Equal(t, p.Payment.ID, again.Payment.ID)
		assert.Equal(t, commits, app.Store.Commits())
		assert.Equal(t, money.Amount(900), app.WalletBalance(t, w.ID))
	})

	t.Run("one minor unit more is a new purchase", func(t *testing.T) {
		other := req
		other.Amount++
		other.Bonus = nil
		again, err := app.Payments.RecordSharePurchase(ctx, other)
		require.NoError(t, err)
		assert.False(t, again.Replayed)
		assert.NotEqual(t, p.Payment.ID, again.Payment.ID)
	})
}

func TestService_PurchaseRollsBackAsAUnit(t *testing.T) {
	ctx := context.Background()
	app := harness.New(t)
	w := app.OpenWallet(t)
	company := uuid.New()
	app.Stock(t, company, 1000)

	req := payment.PurchaseRequest{
		WalletID:   w.ID,
		CompanyID:  company,
		Amount:     5000,
		GatewayRef: "pay_N2",
		ClientKey:  "6f1c2a4e-93b7-4d21-8c5e-0a7b9d3e1f42",
	}

	_, err := app.Payments.RecordSharePurchase(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrInsufficientInventory)

	assert.Zero(t, app.WalletBalance(t, w.ID))
	assert.Zero(t, app.Store.AccountBalance(ledger.CodeWalletLiability))
	assert.Zero(t, app.Store.AccountBalance(ledger.CodeShareSaleIncome))
	txns, err := app.Wallets.Transactions(ctx, w.ID)
	require.NoError(t, err)
	assert.Empty(t, txns)

	app.Stock(t, company, 10000)
	p, err := app.Payments.RecordSharePurchase(ctx, req)
	require.NoError(t, err)
	assert.False(t, p.Replayed)
}

func TestService_PurchaseValidation(t *testing.T) {
	ctx := context.Background()
	app := harness.New(t)
	w := app.OpenWallet(t)

	tests := []struct {
		name string
		req  payment.PurchaseRequest
	}{
		{"missing company", payment.PurchaseRequest{WalletID: w.ID, Amount: 100}},
		{"zero amount", payment.PurchaseRequest{WalletID: w.ID, CompanyID: uuid.New()}},
		{"negative fee", payment.PurchaseRequest{WalletID: w.ID, CompanyID: uuid.New(), Amount: 100, GatewayFee: -1}},
		{"tds above bonus", payment.PurchaseRequest{WalletID: w.ID, CompanyID: uuid.New(), Amount: 100,
			Bonus: &payment.BonusGrant{Gross: 10, TDS: 11}}},
		{"malformed client key", payment.PurchaseRequest{WalletID: w.ID, CompanyID: uuid.New(), Amount: 100,
			ClientKey: "has spaces in it"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.Payments.RecordSharePurchase(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
		})
	}
}

func TestService_GrantBonusWithoutPayment(t *testing.T) {
	ctx := context.Background()
	app := harness.New(t)
	w := app.OpenWallet(t)

	b, err := app.Payments.GrantBonus(ctx, w.ID, nil, payment.BonusGrant{Gross: 500})
	require.NoError(t, err)
	assert.Nil(t, b.PaymentID)
	assert.Nil(t, b.TDSTxnID)
	assert.Equal(t, money.Amount(500), b.Net())
	assert.Equal(t, money.Amount(500), app.WalletBalance(t, w.ID))

	_, err = app.Payments.Get(ctx, uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}
