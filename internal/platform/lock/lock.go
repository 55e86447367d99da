package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
)

// ErrNotAcquired is returned when the lock could not be obtained within the wait budget
var ErrNotAcquired = errors.New("lock not acquired")

// Options bounds how long a lock is held and how long a caller waits for it
type Options struct {
	// TTL is the maximum hold time; an abandoned lock expires after it
	TTL time.Duration
	// Wait is how long Acquire keeps retrying before giving up
	Wait time.Duration
	// RetryInterval is the pause between attempts
	RetryInterval time.Duration
}

// DefaultOptions returns short-lived lock settings suitable for a single money movement
func DefaultOptions() Options {
	return Options{
		TTL:           30 * time.Second,
		Wait:          5 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.TTL <= 0 {
		o.TTL = d.TTL
	}
	if o.Wait < 0 {
		o.Wait = 0
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = d.RetryInterval
	}
	return o
}

// Lease is a held lock
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// Locker hands out named, short-lived, mutually exclusive leases
type Locker interface {
	Acquire(ctx context.Context, key string, opts Options) (Lease, error)
}

// Key builds a lock name such as "lock:wallet:<id>"
func Key(scope string, id any) string {
	return fmt.Sprintf("lock:%s:%v", scope, id)
}

type heldKey struct{}

// Held reports whether ctx was derived inside WithLock for key
func Held(ctx context.Context, key string) bool {
	held, _ := ctx.Value(heldKey{}).(map[string]struct{})
	_, ok := held[key]
	return ok
}

func withHeld(ctx context.Context, key string) context.Context {
	prev, _ := ctx.Value(heldKey{}).(map[string]struct{})
	next := make(map[string]struct{}, len(prev)+1)
	for k := range prev {
		next[k] = struct{}{}
	}
	next[key] = struct{}{}
	return context.WithValue(ctx, heldKey{}, next)
}

// WithLock runs fn while holding the named lock.
// Contention is reported as a RETRY_LATER error instead of queuing indefinitely.
// A context that already holds key runs fn directly, so primitives may lock what their
// orchestrating caller has locked already.
func WithLock(ctx context.Context, l Locker, key string, opts Options, fn func(ctx context.Context) error) (err error) {
	if Held(ctx, key) {
		return fn(ctx)
	}

	lease, err := l.Acquire(ctx, key, opts)
	if err != nil {
		if errors.Is(err, ErrNotAcquired) {
			return apperrors.RetryLater(fmt.Sprintf("%s is busy, try again", key), err)
		}
		return fmt.Errorf("failed to acquire %s: %w", key, err)
	}

	defer func() {
		// Release with a fresh context so a cancelled caller still frees the lock
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if relErr := lease.Release(relCtx); relErr != nil && err == nil {
			err = fmt.Errorf("failed to release %s: %w", key, relErr)
		}
	}()

	return fn(withHeld(ctx, key))
}

// Local is an in-process Locker. It serialises goroutines of one process only;
// multi-instance deployments use the redis implementation.
type Local struct {
	mu    sync.Mutex
	held  map[string]localHold
	clock func() time.Time
}

type localHold struct {
	token     string
	expiresAt time.Time
}

// NewLocal creates an in-process locker
func NewLocal() *Local {
	return &Local{
		held:  make(map[string]localHold),
		clock: time.Now,
	}
}

// Acquire implements Locker
func (l *Local) Acquire(ctx context.Context, key string, opts Options) (Lease, error) {
	opts = opts.normalized()
	token := uuid.NewString()
	deadline := l.clock().Add(opts.Wait)

	for {
		if l.tryAcquire(key, token, opts.TTL) {
			return &localLease{locker: l, key: key, token: token}, nil
		}

		if !l.clock().Before(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.RetryInterval):
		}
	}
}

func (l *Local) tryAcquire(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if h, ok := l.held[key]; ok && now.Before(h.expiresAt) {
		return false
	}
	l.held[key] = localHold{token: token, expiresAt: now.Add(ttl)}
	return true
}

func (l *Local) release(key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Only the holder may delete; an expired lock may already belong to someone else
	if h, ok := l.held[key]; ok && h.token == token {
		delete(l.held, key)
	}
}

type localLease struct {
	locker *Local
	key    string
	token  string
}

func (le *localLease) Key() string { return le.key }

func (le *localLease) Release(_ context.Context) error {
	le.locker.release(le.key, le.token)
	return nil
}
