package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kislikjeka/moneyguard/pkg/money"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port           string
	Env            string
	AllowedOrigins []string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL      string
	RedisPassword string

	// Kafka alerting channel
	KafkaBrokers []string
	AlertTopic   string

	// AlertRatePerMinute caps how many alerts per minute leave the process
	AlertRatePerMinute int

	// ApprovalSecret signs auto-fix approval tokens
	ApprovalSecret string
	// AdminJWTSecret signs operator bearer tokens for the ops API
	AdminJWTSecret string

	// Reconciliation
	ReconcileEnabled  bool
	ReconcileInterval time.Duration

	// Guarded auto-fix. These are copied into a value passed per operation,
	// never read from package state.
	AutoFixEnabled bool
	AutoFixCap     money.Amount

	// Named locks
	LockTTL  time.Duration
	LockWait time.Duration
}

// Load loads configuration from environment variables.
// A .env file in the working directory is honoured when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	autoFixCap, err := money.Parse(getEnv("AUTOFIX_CAP", "1000"))
	if err != nil {
		return nil, fmt.Errorf("AUTOFIX_CAP: %w", err)
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		AllowedOrigins:     getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:       getEnvAsList("KAFKA_BROKERS", nil),
		AlertTopic:         getEnv("ALERT_TOPIC", "ledger.alerts"),
		AlertRatePerMinute: getEnvAsInt("ALERT_RATE_PER_MINUTE", 30),
		ApprovalSecret:     getEnv("APPROVAL_SECRET", ""),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		ReconcileEnabled:   getEnvAsBool("RECONCILE_ENABLED", true),
		ReconcileInterval:  getEnvAsDuration("RECONCILE_INTERVAL", 24*time.Hour),
		AutoFixEnabled:     getEnvAsBool("AUTOFIX_ENABLED", false),
		AutoFixCap:         autoFixCap,
		LockTTL:            getEnvAsDuration("LOCK_TTL", 30*time.Second),
		LockWait:           getEnvAsDuration("LOCK_WAIT", 5*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if len(c.ApprovalSecret) < 32 {
		return fmt.Errorf("APPROVAL_SECRET must be at least 32 characters long")
	}

	if len(c.AdminJWTSecret) < 32 {
		return fmt.Errorf("ADMIN_JWT_SECRET must be at least 32 characters long")
	}

	if c.ApprovalSecret == c.AdminJWTSecret {
		return fmt.Errorf("APPROVAL_SECRET and ADMIN_JWT_SECRET must differ")
	}

	if c.AutoFixCap < 0 {
		return fmt.Errorf("AUTOFIX_CAP cannot be negative")
	}

	if c.LockTTL <= 0 || c.LockWait <= 0 {
		return fmt.Errorf("LOCK_TTL and LOCK_WAIT must be positive")
	}

	if c.ReconcileInterval < time.Minute {
		return fmt.Errorf("RECONCILE_INTERVAL must be at least one minute")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a time.Duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
