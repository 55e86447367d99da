package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/moneyguard/internal/chargeback"
	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/payment"
	"github.com/kislikjeka/moneyguard/internal/reconciliation"
	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/internal/transport/httpapi"
	"github.com/kislikjeka/moneyguard/internal/transport/httpapi/handler"
	"github.com/kislikjeka/moneyguard/internal/transport/httpapi/middleware"
	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/logger"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

const operatorSecret = "operator-secret-key-minimum-32-characters"

type fakeEngine struct {
	runs     int
	latest   *reconciliation.Report
	mismatch *reconciliation.WalletMismatch
	fixReq   reconciliation.AutoFixRequest
	settings reconciliation.AutoFixSettings
	fixErr   error
}

func (f *fakeEngine) Run(_ context.Context, trigger reconciliation.Trigger) (*reconciliation.Report, error) {
	f.runs++
	f.latest = &reconciliation.Report{RunID: "run-1", Trigger: trigger, Status: reconciliation.StatusBalanced, Balanced: true}
	return f.latest, nil
}

func (f *fakeEngine) Latest(context.Context) (*reconciliation.Report, error) {
	if f.latest == nil {
		return nil, reconciliation.ErrNoReport
	}
	return f.latest, nil
}

func (f *fakeEngine) CheckWallet(_ context.Context, walletID uuid.UUID) (*reconciliation.WalletMismatch, error) {
	if f.mismatch != nil {
		return f.mismatch, nil
	}
	return &reconciliation.WalletMismatch{WalletID: walletID}, nil
}

func (f *fakeEngine) AutoFix(_ context.Context, req reconciliation.AutoFixRequest, s reconciliation.AutoFixSettings) (*reconciliation.AutoFixResult, error) {
	f.fixReq, f.settings = req, s
	if f.fixErr != nil {
		return nil, f.fixErr
	}
	return &reconciliation.AutoFixResult{WalletID: req.WalletID, ApprovedBy: "carol"}, nil
}

type fakeApprovals struct{ approver string }

func (f *fakeApprovals) Issue(_ uuid.UUID, _ string, approver string) (string, error) {
	f.approver = approver
	return "signed", nil
}

type fakeLedger struct{}

func (fakeLedger) TrialBalance(context.Context) (*ledger.TrialBalance, error) {
	return &ledger.TrialBalance{TotalDebits: 500, TotalCredits: 500, Balanced: true}, nil
}

func (fakeLedger) AccountingEquation(context.Context) (*ledger.Equation, error) {
	return &ledger.Equation{}, nil
}

func (fakeLedger) Margin(context.Context) (*ledger.MarginReport, error) {
	return &ledger.MarginReport{}, nil
}

type fakePayments struct{}

func (fakePayments) Get(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	return nil, apperrors.NotFound("payment", nil)
}

type fakeChargebacks struct {
	req      chargeback.Request
	err      error
	writeOff string
}

func (f *fakeChargebacks) Resolve(_ context.Context, req chargeback.Request) (*chargeback.Result, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &chargeback.Result{PaymentID: req.PaymentID, Kind: req.Kind, Shortfall: money.FromMajor(3)}, nil
}

func (f *fakeChargebacks) WriteOff(_ context.Context, walletID uuid.UUID, reason string) (*chargeback.WriteOff, error) {
	f.writeOff = reason
	return &chargeback.WriteOff{WalletID: walletID, Reason: reason}, nil
}

func (f *fakeChargebacks) Receivables(context.Context, uuid.UUID) ([]*chargeback.Receivable, error) {
	return nil, nil
}

type fakeWallets struct{ w *wallet.Wallet }

func (f fakeWallets) Get(context.Context, uuid.UUID) (*wallet.Wallet, error) { return f.w, nil }

func (f fakeWallets) Transactions(context.Context, uuid.UUID) ([]*wallet.Transaction, error) {
	return nil, nil
}

type harness struct {
	router      http.Handler
	jwt         *middleware.JWTService
	engine      *fakeEngine
	approvals   *fakeApprovals
	chargebacks *fakeChargebacks
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.Discard()
	h := &harness{
		jwt:         middleware.NewJWTService(operatorSecret),
		engine:      &fakeEngine{},
		approvals:   &fakeApprovals{},
		chargebacks: &fakeChargebacks{},
	}
	settings := reconciliation.AutoFixSettings{Enabled: true, Cap: money.FromMajor(10)}

	h.router = httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		AllowedOrigins: []string{"http://localhost:5173"},
		LedgerHandler:  handler.NewLedgerHandler(fakeLedger{}, log),
		ReconciliationHandler: handler.NewReconciliationHandler(h.engine, h.approvals,
			func() reconciliation.AutoFixSettings { return settings }, log),
		PaymentHandler: handler.NewPaymentHandler(fakePayments{}, h.chargebacks, log),
		WalletHandler: handler.NewWalletHandler(fakeWallets{w: &wallet.Wallet{
			ID:            uuid.New(),
			Balance:       money.FromMajor(100),
			LockedBalance: money.FromMajor(30),
		}}, log),
		JWTService: h.jwt,
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, role middleware.Role, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		token, err := h.jwt.GenerateToken("carol", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRouter_RequiresToken(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/ledger/trial-balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_RoleGates(t *testing.T) {
	h := newHarness(t)
	pid := uuid.New()
	wid := uuid.New()

	tests := []struct {
		name   string
		method string
		path   string
		role   middleware.Role
		body   any
		want   int
	}{
		{"viewer reads trial balance", http.MethodGet, "/api/v1/ledger/trial-balance", middleware.RoleViewer, nil, http.StatusOK},
		{"viewer cannot trigger run", http.MethodPost, "/api/v1/reconciliation/runs", middleware.RoleViewer, nil, http.StatusForbidden},
		{"operator triggers run", http.MethodPost, "/api/v1/reconciliation/runs", middleware.RoleOperator, nil, http.StatusOK},
		{"viewer cannot charge back", http.MethodPost, "/api/v1/payments/" + pid.String() + "/chargeback", middleware.RoleViewer, map[string]any{}, http.StatusForbidden},
		{"operator cannot approve", http.MethodPost, "/api/v1/reconciliation/approvals", middleware.RoleOperator, map[string]any{"wallet_id": wid}, http.StatusForbidden},
		{"operator cannot write off", http.MethodPost, "/api/v1/wallets/" + wid.String() + "/receivables/write-off", middleware.RoleOperator, map[string]any{"reason": "x"}, http.StatusForbidden},
		{"approver writes off", http.MethodPost, "/api/v1/wallets/" + wid.String() + "/receivables/write-off", middleware.RoleApprover, map[string]any{"reason": "uncollectable"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, tt.method, tt.path, tt.role, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_LatestBeforeAnyRun(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/reconciliation/latest", middleware.RoleViewer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/reconciliation/runs", middleware.RoleOperator, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/reconciliation/latest", middleware.RoleViewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report reconciliation.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, reconciliation.TriggerManual, report.Trigger)
}

func TestRouter_Chargeback(t *testing.T) {
	h := newHarness(t)
	pid := uuid.New()

	rec := h.do(t, http.MethodPost, "/api/v1/payments/"+pid.String()+"/chargeback", middleware.RoleOperator,
		map[string]any{"reason": "bank dispute", "reverse_allocations": true})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, pid, h.chargebacks.req.PaymentID)
	assert.Equal(t, chargeback.KindChargeback, h.chargebacks.req.Kind)
	assert.True(t, h.chargebacks.req.ReverseAllocations)
	assert.Equal(t, "bank dispute", h.chargebacks.req.Reason)

	var res chargeback.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, money.FromMajor(3), res.Shortfall)
}

func TestRouter_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"already reversed", apperrors.AlreadyReversed("payment already charged back", nil), http.StatusUnprocessableEntity, apperrors.ErrCodeAlreadyReversed},
		{"not found", apperrors.NotFound("payment", nil), http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"contention", apperrors.RetryLater("wallet busy", nil), http.StatusServiceUnavailable, apperrors.ErrCodeRetryLater},
		{"duplicate", apperrors.DuplicateRequest("in flight", nil), http.StatusConflict, apperrors.ErrCodeDuplicateRequest},
		{"unclassified", assert.AnError, http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.chargebacks.err = tt.err

			rec := h.do(t, http.MethodPost, "/api/v1/payments/"+uuid.NewString()+"/refund", middleware.RoleOperator, nil)
			require.Equal(t, tt.want, rec.Code)

			var body handler.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
			if tt.code == apperrors.ErrCodeInternal {
				assert.NotContains(t, body.Error, assert.AnError.Error())
			}
		})
	}
}

func TestRouter_InvalidPathID(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/payments/not-a-uuid/refund", middleware.RoleOperator, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_AutoFixUsesConfiguredSettings(t *testing.T) {
	h := newHarness(t)
	wid := uuid.New()

	rec := h.do(t, http.MethodPost, "/api/v1/reconciliation/autofix", middleware.RoleOperator,
		map[string]any{"wallet_id": wid, "approval_token": "signed"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, wid, h.engine.fixReq.WalletID)
	assert.Equal(t, "signed", h.engine.fixReq.Token)
	assert.True(t, h.engine.settings.Enabled)
	assert.Equal(t, money.FromMajor(10), h.engine.settings.Cap)
}

func TestRouter_AutoFixRefused(t *testing.T) {
	h := newHarness(t)
	h.engine.fixErr = apperrors.AutoFixRefused("discrepancy above cap", nil)

	rec := h.do(t, http.MethodPost, "/api/v1/reconciliation/autofix", middleware.RoleOperator,
		map[string]any{"wallet_id": uuid.New(), "approval_token": "signed"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/reconciliation/autofix", middleware.RoleOperator,
		map[string]any{"wallet_id": uuid.New()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_IssueApprovalRecordsApprover(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/reconciliation/approvals", middleware.RoleApprover,
		map[string]any{"wallet_id": uuid.New()})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "carol", h.approvals.approver)
}

func TestRouter_WalletShowsAvailable(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/wallets/"+uuid.NewString(), middleware.RoleViewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Balance   int64 `json:"balance"`
		Available int64 `json:"available"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(10000), body.Balance)
	assert.Equal(t, int64(7000), body.Available)
}


func TestRouter_CheckWallet(t *testing.T) {
	h := newHarness(t)
	wid := uuid.New()

	rec := h.do(t, http.MethodGet, "/api/v1/reconciliation/wallets/"+wid.String(), middleware.RoleViewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var clean handler.WalletCheckResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&clean))
	assert.True(t, clean.Balanced)

	h.engine.mismatch = &reconciliation.WalletMismatch{WalletID: wid, Stored: 1700, Computed: 1000, Discrepancy: 700}
	rec = h.do(t, http.MethodGet, "/api/v1/reconciliation/wallets/"+wid.String(), middleware.RoleViewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var drifted handler.WalletCheckResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&drifted))
	assert.False(t, drifted.Balanced)
	assert.Equal(t, money.Amount(700), drifted.Discrepancy)
}
