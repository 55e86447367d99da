package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
)

func fastOptions() Options {
	return Options{TTL: time.Second, Wait: 30 * time.Millisecond, RetryInterval: 5 * time.Millisecond}
}

func TestLocal_MutualExclusion(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	lease, err := l.Acquire(ctx, Key("wallet", 1), fastOptions())
	require.NoError(t, err)

	_, err = l.Acquire(ctx, Key("wallet", 1), fastOptions())
	assert.ErrorIs(t, err, ErrNotAcquired)

	// Other keys are independent
	other, err := l.Acquire(ctx, Key("wallet", 2), fastOptions())
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	again, err := l.Acquire(ctx, Key("wallet", 1), fastOptions())
	require.NoError(t, err)
	assert.Equal(t, "lock:wallet:1", again.Key())
}

func TestLocal_ExpiredLockCanBeTakenAndStaleReleaseIsIgnored(t *testing.T) {
	l := NewLocal()
	now := time.Now()
	l.clock = func() time.Time { return now }
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", Options{TTL: time.Second, Wait: 0})
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := l.Acquire(ctx, "k", Options{TTL: time.Second, Wait: 0})
	require.NoError(t, err)

	// The stale holder must not free the new holder's lock
	require.NoError(t, stale.Release(ctx))
	_, err = l.Acquire(ctx, "k", Options{TTL: time.Second, Wait: 0})
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, fresh.Release(ctx))
}

func TestWithLock_ContentionIsRetryLater(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	held, err := l.Acquire(ctx, "lock:payment:7", fastOptions())
	require.NoError(t, err)
	defer held.Release(ctx)

	called := false
	err = WithLock(ctx, l, "lock:payment:7", fastOptions(), func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.False(t, called)
	assert.True(t, apperrors.IsRetryable(err))
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithLock(ctx, l, "k", fastOptions(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = WithLock(ctx, l, "k", fastOptions(), func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestWithLock_SerialisesCriticalSection(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()
	opts := Options{TTL: time.Second, Wait: 2 * time.Second, RetryInterval: time.Millisecond}

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(ctx, l, "shared", opts, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestWithLock_ReentrantForHoldingContext(t *testing.T) {
	l := NewLocal()
	key := Key("wallet", "w-1")
	inner := false

	err := WithLock(context.Background(), l, key, fastOptions(), func(ctx context.Context) error {
		assert.True(t, Held(ctx, key))
		return WithLock(ctx, l, key, fastOptions(), func(ctx context.Context) error {
			inner = true
			return nil
		})
	})
	require.NoError(t, err)
	assert.True(t, inner)
	assert.False(t, Held(context.Background(), key))

	// released after the outer call returns
	lease, err := l.Acquire(context.Background(), key, fastOptions())
	require.NoError(t, err)
	require.NoError(t, lease.Release(context.Background()))
}
