package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kislikjeka/moneyguard/internal/platform/lock"
)

// releaseScript deletes the key only while it still carries the holder's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements lock.Locker with SET NX PX, so leases are shared by every instance
type Locker struct {
	client *redis.Client
}

var _ lock.Locker = (*Locker)(nil)

// NewLocker creates a Redis-backed locker
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire retries SET NX until it wins or opts.Wait runs out
func (l *Locker) Acquire(ctx context.Context, key string, opts lock.Options) (lock.Lease, error) {
	def := lock.DefaultOptions()
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = def.RetryInterval
	}

	token := uuid.NewString()
	deadline := time.Now().Add(opts.Wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to set lock %s: %w", key, err)
		}
		if ok {
			return &lease{client: l.client, key: key, token: token}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, lock.ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.RetryInterval):
		}
	}
}

type lease struct {
	client *redis.Client
	key    string
	token  string
}

func (le *lease) Key() string { return le.key }

// Release is a no-op when the lease already expired and someone else holds the key
func (le *lease) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, le.client, []string{le.key}, le.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock %s: %w", le.key, err)
	}
	return nil
}
