package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kislikjeka/moneyguard/internal/platform/approval"
)

const noncePrefix = "approval:nonce:"

// NonceStore implements approval.NonceStore so a token is spent once across instances
type NonceStore struct {
	client *redis.Client
}

var _ approval.NonceStore = (*NonceStore)(nil)

// NewNonceStore creates a Redis-backed nonce store
func NewNonceStore(client *redis.Client) *NonceStore {
	return &NonceStore{client: client}
}

// Consume records tokenID and reports whether this was its first use
func (s *NonceStore) Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	ok, err := s.client.SetNX(ctx, noncePrefix+tokenID, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record approval nonce: %w", err)
	}
	return ok, nil
}
