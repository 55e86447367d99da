package memstore

import (
	"context"
	"time"

	"github.com/kislikjeka/moneyguard/internal/platform/audit"
	"github.com/kislikjeka/moneyguard/internal/platform/idempotency"
)

// IdempotencyRepo implements idempotency.Store
type IdempotencyRepo struct{ s *Store }

// Idempotency returns the idempotency key store
func (s *Store) Idempotency() *IdempotencyRepo { return &IdempotencyRepo{s: s} }

var _ idempotency.Store = (*IdempotencyRepo)(nil)

func (r *IdempotencyRepo) Claim(ctx context.Context, rec *idempotency.Record, staleBefore time.Time) (*idempotency.Record, bool, error) {
	var (
		existing *idempotency.Record
		claimed  bool
	)
	err := r.s.with(ctx, func(d *data) error {
		cur, ok := d.idempotency[rec.Key]
		switch {
		case !ok:
			d.idempotency[rec.Key] = *rec
			claimed = true
		case cur.Status == idempotency.StatusFailed,
			cur.Status == idempotency.StatusPending && cur.UpdatedAt.Before(staleBefore):
			cur.Status = idempotency.StatusPending
			cur.Error = ""
			cur.UpdatedAt = rec.UpdatedAt
			d.idempotency[rec.Key] = cur
			claimed = true
		default:
			existing = &cur
		}
		return nil
	})
	return existing, claimed, err
}

func (r *IdempotencyRepo) Complete(ctx context.Context, key string, result []byte) error {
	return r.s.with(ctx, func(d *data) error {
		cur, ok := d.idempotency[key]
		if !ok {
			return notFound("idempotency key", key)
		}
		cur.Status = idempotency.StatusSucceeded
		cur.Result = append([]byte(nil), result...)
		cur.UpdatedAt = time.Now()
		d.idempotency[key] = cur
		return nil
	})
}

func (r *IdempotencyRepo) Fail(ctx context.Context, key string, reason string) error {
	return r.s.with(ctx, func(d *data) error {
		cur, ok := d.idempotency[key]
		if !ok {
			return notFound("idempotency key", key)
		}
		cur.Status = idempotency.StatusFailed
		cur.Error = reason
		cur.UpdatedAt = time.Now()
		d.idempotency[key] = cur
		return nil
	})
}

func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	var out *idempotency.Record
	err := r.s.with(ctx, func(d *data) error {
		if cur, ok := d.idempotency[key]; ok {
			out = &cur
		}
		return nil
	})
	return out, err
}

// AuditRepo implements audit.Store
type AuditRepo struct{ s *Store }

// Audit returns the audit store
func (s *Store) Audit() *AuditRepo { return &AuditRepo{s: s} }

var _ audit.Store = (*AuditRepo)(nil)

func (r *AuditRepo) Append(ctx context.Context, e *audit.Event) error {
	if err := r.s.fault(OpAppendAudit); err != nil {
		return err
	}
	return r.s.with(ctx, func(d *data) error {
		d.audit = append(d.audit, *e)
		return nil
	})
}

func (r *AuditRepo) ListByTarget(ctx context.Context, targetType, targetID string) ([]*audit.Event, error) {
	var out []*audit.Event
	err := r.s.with(ctx, func(d *data) error {
		for _, e := range d.audit {
			if e.TargetType == targetType && e.TargetID == targetID {
				e := e
				out = append(out, &e)
			}
		}
		return nil
	})
	return out, err
}

// Actions lists every recorded audit action in order
func (r *AuditRepo) Actions() []string {
	var out []string
	_ = r.s.with(context.Background(), func(d *data) error {
		for _, e := range d.audit {
			out = append(out, e.Action)
		}
		return nil
	})
	return out
}
