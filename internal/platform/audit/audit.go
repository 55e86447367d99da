package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/pkg/logger"
)

// Action names recorded in the audit trail
const (
	ActionAutoFixAttempt  = "reconciliation.autofix.attempt"
	ActionAutoFixRefused  = "reconciliation.autofix.refused"
	ActionAutoFixApplied  = "reconciliation.autofix.applied"
	ActionChargeback      = "payment.chargeback"
	ActionRefund          = "payment.refund"
	ActionRecoveryCleared = "wallet.recovery.cleared"
	ActionWriteOff        = "wallet.receivable.write_off"
)

// Event is an append-only audit record
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Action     string          `json:"action"`
	Actor      string          `json:"actor"`
	TargetType string          `json:"target_type"`
	TargetID   string          `json:"target_id"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Store persists audit events
type Store interface {
	Append(ctx context.Context, e *Event) error
	ListByTarget(ctx context.Context, targetType, targetID string) ([]*Event, error)
}

// Recorder builds events from the calling context and appends them
type Recorder struct {
	store  Store
	logger *logger.Logger
	clock  func() time.Time
}

// NewRecorder creates a new audit recorder
func NewRecorder(store Store, log *logger.Logger) *Recorder {
	return &Recorder{store: store, logger: log, clock: time.Now}
}

// Record appends one event. details is marshalled to JSON.
// Callers that must audit before mutating treat the returned error as fatal.
func (r *Recorder) Record(ctx context.Context, action, targetType, targetID string, details any) (*Event, error) {
	var raw json.RawMessage
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit details: %w", err)
		}
		raw = b
	}

	e := &Event{
		ID:         uuid.New(),
		Action:     action,
		Actor:      logger.ActorFromContext(ctx),
		TargetType: targetType,
		TargetID:   targetID,
		Details:    raw,
		CreatedAt:  r.clock().UTC(),
	}

	if err := r.store.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}

	r.logger.WithContext(ctx).Info("audit",
		"action", action,
		"actor", e.Actor,
		"target_type", targetType,
		"target_id", targetID,
	)
	return e, nil
}

// List returns the trail for one target, oldest first
func (r *Recorder) List(ctx context.Context, targetType, targetID string) ([]*Event, error) {
	return r.store.ListByTarget(ctx, targetType, targetID)
}
