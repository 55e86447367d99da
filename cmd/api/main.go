package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/kislikjeka/moneyguard/internal/chargeback"
	"github.com/kislikjeka/moneyguard/internal/infra/kafka"
	"github.com/kislikjeka/moneyguard/internal/infra/postgres"
	infraRedis "github.com/kislikjeka/moneyguard/internal/infra/redis"
	"github.com/kislikjeka/moneyguard/internal/inventory"
	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/payment"
	"github.com/kislikjeka/moneyguard/internal/platform/alert"
	"github.com/kislikjeka/moneyguard/internal/platform/approval"
	"github.com/kislikjeka/moneyguard/internal/platform/audit"
	"github.com/kislikjeka/moneyguard/internal/platform/idempotency"
	"github.com/kislikjeka/moneyguard/internal/platform/lock"
	"github.com/kislikjeka/moneyguard/internal/reconciliation"
	"github.com/kislikjeka/moneyguard/internal/transport/httpapi"
	"github.com/kislikjeka/moneyguard/internal/transport/httpapi/handler"
	"github.com/kislikjeka/moneyguard/internal/transport/httpapi/middleware"
	"github.com/kislikjeka/moneyguard/internal/wallet"
	"github.com/kislikjeka/moneyguard/pkg/config"
	"github.com/kislikjeka/moneyguard/pkg/logger"
)

// approvalTTL bounds how long a signed auto-fix approval stays usable
const approvalTTL = 15 * time.Minute

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault(cfg.Env)
	log.Info("Starting MoneyGuard API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Initialize database connection pool
	db, err := postgres.NewPool(ctx, postgres.Config{
		URL:         cfg.DatabaseURL,
		LockTimeout: cfg.LockWait,
	})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if ok, err := db.SchemaReady(ctx); err != nil || !ok {
		log.Error("Database schema is not migrated", "error", err)
		os.Exit(1)
	}
	log.Info("Database connection established")

	// Redis backs the named locks, approval nonces and the report cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Redis connection established")

	tx := postgres.NewTxManager(db.Pool)
	var locker lock.Locker = infraRedis.NewLocker(redisClient)
	lockOpts := lock.Options{TTL: cfg.LockTTL, Wait: cfg.LockWait, RetryInterval: 25 * time.Millisecond}

	// Ledger: the chart of accounts must exist before anything posts
	ledgerRepo := postgres.NewLedgerRepository(db.Pool)
	registry := ledger.NewRegistry(ledgerRepo)
	if err := registry.Bootstrap(ctx); err != nil {
		log.Error("Failed to bootstrap chart of accounts", "error", err)
		os.Exit(1)
	}
	ledgerSvc := ledger.NewService(ledgerRepo, registry, tx, log)

	// Platform services
	auditRec := audit.NewRecorder(postgres.NewAuditRepository(db.Pool), log)
	guard := idempotency.NewGuard(postgres.NewIdempotencyRepository(db.Pool), tx, log)
	approvals := approval.NewService(cfg.ApprovalSecret, infraRedis.NewNonceStore(redisClient), approvalTTL)

	// Domain services
	walletSvc := wallet.NewService(postgres.NewWalletRepository(db.Pool), ledgerSvc, tx, locker, lockOpts, log)
	inventorySvc := inventory.NewService(postgres.NewInventoryRepository(db.Pool), ledgerSvc, tx, locker, lockOpts, log)
	paymentRepo := postgres.NewPaymentRepository(db.Pool)
	paymentSvc := payment.NewService(paymentRepo, walletSvc, inventorySvc, ledgerSvc, guard, tx, locker, lockOpts, log)

	receivableRepo := postgres.NewReceivableRepository(db.Pool)
	chargeback.NewSettler(receivableRepo, walletSvc, auditRec, log)
	chargebackSvc := chargeback.NewService(chargeback.Deps{
		Receivables: receivableRepo,
		Payments:    paymentRepo,
		Wallets:     walletSvc,
		Inventory:   inventorySvc,
		Ledger:      ledgerSvc,
		Guard:       guard,
		Audit:       auditRec,
		Tx:          tx,
		Locker:      locker,
		LockOptions: lockOpts,
		Logger:      log,
	})

	// Alerts go to the log, and to Kafka when brokers are configured
	alerters := alert.Multi{alert.NewLogAlerter(log)}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaAlerter := kafka.NewAlerter(cfg.KafkaBrokers, cfg.AlertTopic)
		defer kafkaAlerter.Close()
		alerters = append(alerters, kafkaAlerter)
		log.Info("Kafka alerting enabled", "topic", cfg.AlertTopic)
	}

	engine := reconciliation.NewEngine(reconciliation.Deps{
		Source:    postgres.NewReconciliationSource(db.Pool),
		Tx:        tx,
		Wallets:   walletSvc,
		Approvals: approvals,
		Audit:     auditRec,
		Cache:     infraRedis.NewReportCache(redisClient, log),
		Alerter:   alert.NewThrottled(alerters, cfg.AlertRatePerMinute),
		Logger:    log,
	})
	runner := reconciliation.NewRunner(engine, reconciliation.RunnerConfig{
		Enabled:  cfg.ReconcileEnabled,
		Interval: cfg.ReconcileInterval,
	}, log)

	autoFix := reconciliation.AutoFixSettings{Enabled: cfg.AutoFixEnabled, Cap: cfg.AutoFixCap}

	// HTTP layer
	limiter := middleware.NewRateLimiter(rate.Limit(20), 40)
	r := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
		HealthHandler: handler.NewHealthHandler(db, handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})),
		LedgerHandler: handler.NewLedgerHandler(ledgerSvc, log),
		ReconciliationHandler: handler.NewReconciliationHandler(engine, approvals,
			func() reconciliation.AutoFixSettings { return autoFix }, log),
		PaymentHandler: handler.NewPaymentHandler(paymentSvc, chargebackSvc, log),
		WalletHandler:  handler.NewWalletHandler(walletSvc, log),
		JWTService:     middleware.NewJWTService(cfg.AdminJWTSecret),
		RateLimiter:    limiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go limiter.RunCleanup(ctx)
	go runner.Run(ctx)

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()
	log.Info("Shutdown signal received")

	runner.Stop()
	log.Info("Reconciliation runner stopped")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}
