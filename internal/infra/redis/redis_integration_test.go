//go:build integration

package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kislikjeka/moneyguard/internal/platform/lock"
	"github.com/kislikjeka/moneyguard/internal/reconciliation"
	"github.com/kislikjeka/moneyguard/pkg/logger"
)

var client *redis.Client

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		panic("failed to start redis container: " + err.Error())
	}

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		panic("failed to get redis endpoint: " + err.Error())
	}
	client = redis.NewClient(&redis.Options{Addr: addr})

	code := m.Run()

	client.Close()
	container.Terminate(ctx)
	if code != 0 {
		panic("tests failed")
	}
}

func TestLocker_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	l := NewLocker(client)
	key := lock.Key("wallet", uuid.New())
	opts := lock.Options{TTL: 5 * time.Second, Wait: 5 * time.Second, RetryInterval: 5 * time.Millisecond}

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lock.WithLock(ctx, l, key, opts, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestLocker_ContentionTimesOut(t *testing.T) {
	ctx := context.Background()
	l := NewLocker(client)
	key := lock.Key("payment", uuid.New())

	lease, err := l.Acquire(ctx, key, lock.Options{TTL: 5 * time.Second})
	require.NoError(t, err)

	_, err = l.Acquire(ctx, key, lock.Options{TTL: time.Second, Wait: 50 * time.Millisecond, RetryInterval: 10 * time.Millisecond})
	require.ErrorIs(t, err, lock.ErrNotAcquired)

	require.NoError(t, lease.Release(ctx))
	again, err := l.Acquire(ctx, key, lock.Options{TTL: time.Second})
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocker_StaleReleaseKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	l := NewLocker(client)
	key := lock.Key("company", uuid.New())

	old, err := l.Acquire(ctx, key, lock.Options{TTL: 50 * time.Millisecond})
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	current, err := l.Acquire(ctx, key, lock.Options{TTL: 5 * time.Second})
	require.NoError(t, err)

	require.NoError(t, old.Release(ctx))
	exists, err := client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
	require.NoError(t, current.Release(ctx))
}

func TestNonceStore_FirstUseOnly(t *testing.T) {
	ctx := context.Background()
	s := NewNonceStore(client)
	id := uuid.NewString()

	ok, err := s.Consume(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Consume(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReportCache_SaveAndLatest(t *testing.T) {
	ctx := context.Background()
	c := NewReportCache(client, logger.Discard())
	require.NoError(t, client.Del(ctx, latestKey()).Err())

	_, err := c.Latest(ctx)
	require.ErrorIs(t, err, reconciliation.ErrNoReport)

	r := &reconciliation.Report{
		RunID:     "run-1",
		Trigger:   reconciliation.TriggerManual,
		StartedAt: time.Now().UTC().Truncate(time.Second),
		Status:    reconciliation.StatusBalanced,
		Balanced:  true,
	}
	require.NoError(t, c.Save(ctx, r))

	got, err := c.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, r.RunID, got.RunID)
	assert.True(t, got.Balanced)

	byID, err := c.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, reconciliation.StatusBalanced, byID.Status)
}
