// Package harness wires every service over an in-memory store for unit tests.
package harness

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/moneyguard/internal/chargeback"
	"github.com/kislikjeka/moneyguard/internal/inventory"
	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/payment"
	"github.com/kislikjeka/moneyguard/internal/platform/alert"
	"github.com/kislikjeka/moneyguard/internal/platform/approval"
	"github.com/kislikjeka/moneyguard/internal/platform/audit"
	"github.com/kislikjeka/moneyguard/internal/platform/idempotency"
	"github.com/kislikjeka/moneyguard/internal/platform/lock"
	"github.com/kislikjeka/moneyguard/internal/reconciliation"
	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/logger"
	"github.com/kislikjeka/moneyguard/pkg/money"
	"github.com/kislikjeka/moneyguard/testutil/memstore"
)

// ApprovalSecret signs approval tokens in tests
const ApprovalSecret = "test-approval-secret-0123456789abcdef"

// App is the fully wired service graph
type App struct {
	Store          *memstore.Store
	Logger         *logger.Logger
	Locker         *lock.Local
	Ledger         *ledger.Service
	Wallets        *wallet.Service
	Inventory      *inventory.Service
	Payments       *payment.Service
	Chargebacks    *chargeback.Service
	Settler        *chargeback.Settler
	Approvals      *approval.Service
	Audit          *audit.Recorder
	Alerts         *Alerts
	Reconciliation *reconciliation.Engine
}

// New builds an App with a bootstrapped chart of accounts
func New(t *testing.T) *App {
	t.Helper()

	store := memstore.New()
	log := logger.Discard()
	locker := lock.NewLocal()
	lockOpts := lock.Options{TTL: 5 * time.Second, Wait: 2 * time.Second, RetryInterval: 5 * time.Millisecond}

	registry := ledger.NewRegistry(store.Ledger())
	require.NoError(t, registry.Bootstrap(context.Background()))

	led := ledger.NewService(store.Ledger(), registry, store, log)
	wallets := wallet.NewService(store.Wallets(), led, store, locker, lockOpts, log)
	inv := inventory.NewService(store.Inventory(), led, store, locker, lockOpts, log)
	guard := idempotency.NewGuard(store.Idempotency(), store, log)
	rec := audit.NewRecorder(store.Audit(), log)
	payments := payment.NewService(store.Payments(), wallets, inv, led, guard, store, locker, lockOpts, log)
	settler := chargeback.NewSettler(store.Receivables(), wallets, rec, log)
	chargebacks := chargeback.NewService(chargeback.Deps{
		Receivables: store.Receivables(),
		Payments:    store.Payments(),
		Wallets:     wallets,
		Inventory:   inv,
		Ledger:      led,
		Guard:       guard,
		Audit:       rec,
		Tx:          store,
		Locker:      locker,
		LockOptions: lockOpts,
		Logger:      log,
	})
	approvals := approval.NewService(ApprovalSecret, approval.NewMemoryNonces(), 10*time.Minute)
	alerts := &Alerts{}
	engine := reconciliation.NewEngine(reconciliation.Deps{
		Source:    store.Reconciliation(),
		Tx:        store,
		Wallets:   wallets,
		Approvals: approvals,
		Audit:     rec,
		Alerter:   alerts,
		Logger:    log,
	})

	return &App{
		Store:          store,
		Logger:         log,
		Locker:         locker,
		Ledger:         led,
		Wallets:        wallets,
		Inventory:      inv,
		Payments:       payments,
		Chargebacks:    chargebacks,
		Settler:        settler,
		Approvals:      approvals,
		Audit:          rec,
		Alerts:         alerts,
		Reconciliation: engine,
	}
}

// OpenWallet opens a wallet for a fresh user
func (a *App) OpenWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := a.Wallets.Open(context.Background(), uuid.New())
	require.NoError(t, err)
	return w
}

// Fund deposits amount into a wallet
func (a *App) Fund(t *testing.T, walletID uuid.UUID, amount money.Amount) {
	t.Helper()
	_, err := a.Wallets.Deposit(context.Background(), walletID, amount, ledger.WalletRef(walletID))
	require.NoError(t, err)
}

// Stock receives an inventory batch for a company
func (a *App) Stock(t *testing.T, companyID uuid.UUID, cost money.Amount) *inventory.Batch {
	t.Helper()
	b, err := a.Inventory.ReceiveBatch(context.Background(), companyID, cost)
	require.NoError(t, err)
	return b
}

// Purchase records a share purchase with an optional bonus
func (a *App) Purchase(t *testing.T, walletID, companyID uuid.UUID, amount money.Amount, bonus *payment.BonusGrant) *payment.Purchase {
	t.Helper()
	p, err := a.Payments.RecordSharePurchase(context.Background(), payment.PurchaseRequest{
		WalletID:   walletID,
		CompanyID:  companyID,
		Amount:     amount,
		GatewayRef: "pay_" + uuid.NewString(),
		Bonus:      bonus,
	})
	require.NoError(t, err)
	return p
}

// WalletBalance reads a wallet's stored balance
func (a *App) WalletBalance(t *testing.T, walletID uuid.UUID) money.Amount {
	t.Helper()
	w, err := a.Wallets.Get(context.Background(), walletID)
	require.NoError(t, err)
	return w.Balance
}

// Alerts records raised alerts
type Alerts struct {
	Raised []alert.Alert
}

// Notify implements alert.Alerter
func (a *Alerts) Notify(_ context.Context, al alert.Alert) error {
	a.Raised = append(a.Raised, al)
	return nil
}
