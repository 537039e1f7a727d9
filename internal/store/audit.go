package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRecord is a persisted audit event.
type AuditRecord struct {
	ID         uuid.UUID
	TenantID   *uuid.UUID
	UserID     *uuid.UUID
	Action     string
	Resource   string
	ResourceID string
	IPAddress  string
	UserAgent  string
	Context    map[string]any
	OccurredAt time.Time
}

// AuditRepo persists audit events.
type AuditRepo struct {
	pool *pgxpool.Pool
}

// Insert stores an audit record.
func (r *AuditRepo) Insert(ctx context.Context, rec AuditRecord) error {
	var contextJSON []byte
	if rec.Context != nil {
		b, err := json.Marshal(rec.Context)
		if err != nil {
			return fmt.Errorf("marshal audit context: %w", err)
		}
		contextJSON = b
	}
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, tenant_id, user_id, action, resource, resource_id, ip_address, user_agent, context, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New(), rec.TenantID, rec.UserID, rec.Action, rec.Resource, rec.ResourceID,
		rec.IPAddress, rec.UserAgent, contextJSON, rec.OccurredAt); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListRecent retrieves the most recent entries for debugging/ops.
func (r *AuditRepo) ListRecent(ctx context.Context, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, action, resource, resource_id, ip_address, user_agent, context, occurred_at
		FROM audit_logs ORDER BY occurred_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var contextJSON []byte
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.UserID, &rec.Action, &rec.Resource,
			&rec.ResourceID, &rec.IPAddress, &rec.UserAgent, &contextJSON, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if len(contextJSON) > 0 {
			_ = json.Unmarshal(contextJSON, &rec.Context)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
