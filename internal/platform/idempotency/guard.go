package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/internal/shared/txn"
	"github.com/kislikjeka/moneyguard/pkg/logger"
)

// Status of an idempotency record
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrInFlight is returned when another execution holds the key and has not finished
var ErrInFlight = errors.New("request with this idempotency key is still in progress")

// Record is the persisted "already executed" marker.
// The key column carries a uniqueness constraint; without it the key is only advisory.
type Record struct {
	Key       string
	Action    string
	Status    Status
	Result    []byte
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists idempotency records
type Store interface {
	// Claim inserts rec as pending. When the key already exists the stored record is returned
	// with claimed=false, unless it failed earlier or went stale before staleBefore, in which
	// case it is reset to pending and claimed=true.
	Claim(ctx context.Context, rec *Record, staleBefore time.Time) (existing *Record, claimed bool, err error)
	// Complete marks the key succeeded and stores the encoded result
	Complete(ctx context.Context, key string, result []byte) error
	// Fail marks the key failed so a later retry may claim it again
	Fail(ctx context.Context, key string, reason string) error
	// Get returns the record for key, or nil when none exists
	Get(ctx context.Context, key string) (*Record, error)
}

// Outcome wraps the value produced by a guarded execution
type Outcome[T any] struct {
	Key      string
	Value    T
	Replayed bool
}

// Guard wraps actions with claim / execute-in-transaction / mark-result bookkeeping
type Guard struct {
	store      Store
	tx         txn.Manager
	logger     *logger.Logger
	staleAfter time.Duration
	clock      func() time.Time
}

// NewGuard creates a guard
func NewGuard(store Store, tx txn.Manager, log *logger.Logger) *Guard {
	return &Guard{
		store:      store,
		tx:         tx,
		logger:     log.WithField("component", "idempotency"),
		staleAfter: 10 * time.Minute,
		clock:      time.Now,
	}
}

// Execute runs fn at most once per key.
//
// The claim is written before fn runs and is visible to concurrent callers; fn and the success
// marker commit in the same transaction, so a crash can never leave a "succeeded" key without
// its effects. A repeated key whose earlier run succeeded returns the stored value with
// Replayed set and performs no writes.
func Execute[T any](ctx context.Context, g *Guard, key, action string, opts txn.Options, fn func(ctx context.Context) (T, error)) (Outcome[T], error) {
	out := Outcome[T]{Key: key}
	now := g.clock()

	existing, claimed, err := g.store.Claim(ctx, &Record{
		Key:       key,
		Action:    action,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, now.Add(-g.staleAfter))
	if err != nil {
		return out, fmt.Errorf("failed to claim idempotency key: %w", err)
	}

	if !claimed {
		switch existing.Status {
		case StatusSucceeded:
			if len(existing.Result) > 0 {
				if err := json.Unmarshal(existing.Result, &out.Value); err != nil {
					return out, fmt.Errorf("failed to decode stored result for %s: %w", key, err)
				}
			}
			out.Replayed = true
			g.logger.Info("idempotent replay", "key", key, "action", action)
			return out, nil
		default:
			return out, apperrors.DuplicateRequest(fmt.Sprintf("%s already submitted", action), ErrInFlight)
		}
	}

	err = g.tx.Do(ctx, opts, func(txCtx context.Context) error {
		value, err := fn(txCtx)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		if err := g.store.Complete(txCtx, key, encoded); err != nil {
			return fmt.Errorf("failed to mark %s succeeded: %w", key, err)
		}
		out.Value = value
		return nil
	})
	if err != nil {
		if failErr := g.store.Fail(context.WithoutCancel(ctx), key, err.Error()); failErr != nil {
			g.logger.Error("failed to mark idempotency key failed", "key", key, "error", failErr)
		}
		return out, err
	}

	return out, nil
}

// Lookup returns the stored outcome of a succeeded key without claiming it.
// found is false when the key is unknown or has not succeeded.
func Lookup[T any](ctx context.Context, g *Guard, key string) (out Outcome[T], found bool, err error) {
	out.Key = key
	rec, err := g.store.Get(ctx, key)
	if err != nil {
		return out, false, fmt.Errorf("failed to load idempotency key: %w", err)
	}
	if rec == nil || rec.Status != StatusSucceeded {
		return out, false, nil
	}
	if len(rec.Result) > 0 {
		if err := json.Unmarshal(rec.Result, &out.Value); err != nil {
			return out, false, fmt.Errorf("failed to decode stored result for %s: %w", key, err)
		}
	}
	out.Replayed = true
	return out, true, nil
}
