package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/moneyguard/pkg/money"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/moneyguard")
	t.Setenv("APPROVAL_SECRET", "approval-secret-approval-secret-123")
	t.Setenv("ADMIN_JWT_SECRET", "admin-secret-admin-secret-admin-456")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.ReconcileInterval)
	assert.False(t, cfg.AutoFixEnabled)
	assert.Equal(t, money.FromMajor(1000), cfg.AutoFixCap)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Nil(t, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("AUTOFIX_ENABLED", "true")
	t.Setenv("AUTOFIX_CAP", "250.50")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("RECONCILE_INTERVAL", "6h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.AutoFixEnabled)
	assert.Equal(t, money.Amount(25050), cfg.AutoFixCap)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 6*time.Hour, cfg.ReconcileInterval)
}

func TestLoad_RejectsInvalidCap(t *testing.T) {
	setRequired(t)
	t.Setenv("AUTOFIX_CAP", "1.005")

	_, err := Load()
	assert.ErrorIs(t, err, money.ErrSubMinorPrecision)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DatabaseURL:       "postgres://x",
			ApprovalSecret:    "approval-secret-approval-secret-123",
			AdminJWTSecret:    "admin-secret-admin-secret-admin-456",
			ReconcileInterval: time.Hour,
			LockTTL:           time.Second,
			LockWait:          time.Second,
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.DatabaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.ApprovalSecret = "short"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.AdminJWTSecret = cfg.ApprovalSecret
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.AutoFixCap = -1
	assert.Error(t, cfg.Validate())
}
