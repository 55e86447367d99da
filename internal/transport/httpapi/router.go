package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kislikjeka/moneyguard/internal/transport/httpapi/handler"
	"github.com/kislikjeka/moneyguard/internal/transport/httpapi/middleware"
	"github.com/kislikjeka/moneyguard/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger                *logger.Logger
	AllowedOrigins        []string
	HealthHandler         *handler.HealthHandler
	LedgerHandler         *handler.LedgerHandler
	ReconciliationHandler *handler.ReconciliationHandler
	PaymentHandler        *handler.PaymentHandler
	WalletHandler         *handler.WalletHandler
	JWTService            *middleware.JWTService
	RateLimiter           *middleware.RateLimiter
}

// NewRouter creates the operator HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware)
	}

	// Health check endpoints (no authentication required)
	r.Get("/health", handler.GetHealth)
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
		r.Get("/health/detailed", cfg.HealthHandler.GetHealthDetailed)
	}

	if cfg.JWTService == nil {
		return r
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.JWTMiddleware(cfg.JWTService))

		// Read-only views for any operator
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleViewer))

			if h := cfg.LedgerHandler; h != nil {
				r.Get("/ledger/trial-balance", h.GetTrialBalance)
				r.Get("/ledger/equation", h.GetEquation)
				r.Get("/ledger/margin", h.GetMargin)
			}
			if h := cfg.ReconciliationHandler; h != nil {
				r.Get("/reconciliation/latest", h.GetLatest)
				r.Get("/reconciliation/wallets/{id}", h.CheckWallet)
			}
			if h := cfg.WalletHandler; h != nil {
				r.Get("/wallets/{id}", h.GetWallet)
				r.Get("/wallets/{id}/transactions", h.GetTransactions)
			}
			if h := cfg.PaymentHandler; h != nil {
				r.Get("/payments/{id}", h.GetPayment)
				r.Get("/wallets/{id}/receivables", h.GetReceivables)
			}
		})

		// Money-moving operations
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleOperator))

			if h := cfg.ReconciliationHandler; h != nil {
				r.Post("/reconciliation/runs", h.RunReconciliation)
				r.Post("/reconciliation/autofix", h.AutoFix)
			}
			if h := cfg.PaymentHandler; h != nil {
				r.Post("/payments/{id}/chargeback", h.Chargeback)
				r.Post("/payments/{id}/refund", h.Refund)
			}
		})

		// Sign-offs
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleApprover))

			if h := cfg.ReconciliationHandler; h != nil {
				r.Post("/reconciliation/approvals", h.IssueApproval)
			}
			if h := cfg.PaymentHandler; h != nil {
				r.Post("/wallets/{id}/receivables/write-off", h.WriteOff)
			}
		})
	})

	return r
}
