package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HandoffCode is a persisted one-time exchange code. UsedAt transitions from
// nil to a timestamp exactly once; rows with a non-nil UsedAt or a past
// ExpiresAt are permanently dead.
type HandoffCode struct {
	Code       string
	UserID     uuid.UUID
	TenantID   uuid.UUID
	ReturnPath string
	ExpiresAt  time.Time
	UsedAt     *time.Time
	CreatedAt  time.Time
}

// HandoffRepo persists one-time handoff codes.
type HandoffRepo struct {
	pool *pgxpool.Pool
}

// Insert stores a freshly issued code.
func (r *HandoffRepo) Insert(ctx context.Context, c HandoffCode) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO handoff_codes (code, user_id, tenant_id, return_path, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.Code, c.UserID, c.TenantID, c.ReturnPath, c.ExpiresAt); err != nil {
		return fmt.Errorf("insert handoff code: %w", err)
	}
	return nil
}

// Claim marks the code used in a single conditional update. Under concurrent
// claims of the same code exactly one caller receives the row; every other
// caller gets ErrNotFound. The tenant and expiry conditions are part of the
// same statement, so a mismatched or expired claim leaves the row untouched.
func (r *HandoffRepo) Claim(ctx context.Context, code string, tenantID uuid.UUID, now time.Time) (*HandoffCode, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE handoff_codes SET used_at = $3
		WHERE code = $1 AND tenant_id = $2 AND used_at IS NULL AND expires_at > $3
		RETURNING code, user_id, tenant_id, return_path, expires_at, used_at, created_at`,
		code, tenantID, now.UTC())

	var c HandoffCode
	err := row.Scan(&c.Code, &c.UserID, &c.TenantID, &c.ReturnPath, &c.ExpiresAt, &c.UsedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("claim handoff code: %w", err)
	}
	return &c, nil
}

// Get reads a code without claiming it. Used only to diagnose a failed claim
// for audit logging.
func (r *HandoffRepo) Get(ctx context.Context, code string) (*HandoffCode, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT code, user_id, tenant_id, return_path, expires_at, used_at, created_at
		FROM handoff_codes WHERE code = $1`, code)

	var c HandoffCode
	err := row.Scan(&c.Code, &c.UserID, &c.TenantID, &c.ReturnPath, &c.ExpiresAt, &c.UsedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get handoff code: %w", err)
	}
	return &c, nil
}

// Delete removes a single code.
func (r *HandoffRepo) Delete(ctx context.Context, code string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM handoff_codes WHERE code = $1`, code); err != nil {
		return fmt.Errorf("delete handoff code: %w", err)
	}
	return nil
}

// DeleteExpired removes codes whose TTL elapsed before the cutoff.
func (r *HandoffRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM handoff_codes WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired handoff codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
