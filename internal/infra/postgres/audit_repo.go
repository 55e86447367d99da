package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/moneyguard/internal/platform/audit"
)

// AuditRepository implements audit.Store using PostgreSQL. Rows are append-only.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new PostgreSQL audit store
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

var _ audit.Store = (*AuditRepository)(nil)

func (r *AuditRepository) Append(ctx context.Context, e *audit.Event) error {
	var details []byte
	if len(e.Details) > 0 {
		details = e.Details
	}
	_, err := getQueryer(ctx, r.pool).Exec(ctx, `
		INSERT INTO audit_events (id, action, actor, target_type, target_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.Action, e.Actor, e.TargetType, e.TargetID, details, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByTarget(ctx context.Context, targetType, targetID string) ([]*audit.Event, error) {
	rows, err := getQueryer(ctx, r.pool).Query(ctx, `
		SELECT id, action, actor, target_type, target_id, details, created_at
		FROM audit_events
		WHERE target_type = $1 AND target_id = $2
		ORDER BY created_at, id
	`, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var out []*audit.Event
	for rows.Next() {
		var e audit.Event
		var details []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.Actor, &e.TargetType, &e.TargetID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Details = details
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return out, nil
}
