package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kislikjeka/moneyguard/internal/reconciliation"
	"github.com/kislikjeka/moneyguard/pkg/logger"
)

const (
	// DefaultReportTTL keeps the latest report past one full daily cycle
	DefaultReportTTL = 48 * time.Hour

	// KeyPrefix is the prefix for reconciliation report keys
	KeyPrefix = "reconciliation:"
)

// ReportCache is a Redis-backed reconciliation.ReportCache shared by all instances
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

var _ reconciliation.ReportCache = (*ReportCache)(nil)

// NewReportCache creates a new report cache
func NewReportCache(client *redis.Client, log *logger.Logger) *ReportCache {
	return NewReportCacheWithTTL(client, DefaultReportTTL, log)
}

// NewReportCacheWithTTL creates a new report cache with custom TTL
func NewReportCacheWithTTL(client *redis.Client, ttl time.Duration, log *logger.Logger) *ReportCache {
	return &ReportCache{
		client: client,
		ttl:    ttl,
		logger: log.WithField("component", "report_cache"),
	}
}

func latestKey() string {
	return KeyPrefix + "latest"
}

func runKey(runID string) string {
	return fmt.Sprintf("%srun:%s", KeyPrefix, runID)
}

// Save stores the report under its run id and as the latest report
func (c *ReportCache) Save(ctx context.Context, r *reconciliation.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, latestKey(), data, c.ttl)
	pipe.Set(ctx, runKey(r.RunID), data, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("cache error", "operation", "save", "run_id", r.RunID, "error", err)
		return fmt.Errorf("failed to cache report: %w", err)
	}
	return nil
}

// Latest returns the most recent report, or reconciliation.ErrNoReport
func (c *ReportCache) Latest(ctx context.Context) (*reconciliation.Report, error) {
	return c.get(ctx, latestKey())
}

// Get returns a cached report by run id
func (c *ReportCache) Get(ctx context.Context, runID string) (*reconciliation.Report, error) {
	return c.get(ctx, runKey(runID))
}

func (c *ReportCache) get(ctx context.Context, key string) (*reconciliation.Report, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("cache miss", "key", key)
		return nil, reconciliation.ErrNoReport
	}
	if err != nil {
		c.logger.Error("cache error", "operation", "get", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get cached report: %w", err)
	}

	var r reconciliation.Report
	if err := json.Unmarshal(val, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached report: %w", err)
	}
	return &r, nil
}
