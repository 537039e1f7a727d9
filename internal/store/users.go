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

// User statuses.
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is a credential-store account. TenantID is nil for platform-level
// (operator) accounts; a platform account and a tenant account may share an
// email and remain distinct rows.
type User struct {
	ID              uuid.UUID
	TenantID        *uuid.UUID
	Email           string
	Name            string
	Role            string
	Status          string
	PasswordHash    *string
	GoogleID        *string
	EmailVerifiedAt *time.Time
	LastLoginAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserRepo reads and writes user accounts.
type UserRepo struct {
	pool *pgxpool.Pool
}

const userColumns = `id, tenant_id, email, name, role, status, password_hash,
	google_id, email_verified_at, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.Role, &u.Status,
		&u.PasswordHash, &u.GoogleID, &u.EmailVerifiedAt, &u.LastLoginAt,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// Get loads a user by id.
func (r *UserRepo) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail looks up a user scoped to a tenant. A nil tenantID matches
// platform-level accounts only.
func (r *UserRepo) GetByEmail(ctx context.Context, tenantID *uuid.UUID, email string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE tenant_id IS NOT DISTINCT FROM $1 AND email = $2`,
		tenantID, email))
}

// GetByGoogleID looks up a federated account inside a tenant.
func (r *UserRepo) GetByGoogleID(ctx context.Context, tenantID uuid.UUID, googleID string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE tenant_id = $1 AND google_id = $2`,
		tenantID, googleID))
}

// CreateParams describes a new account.
type CreateParams struct {
	TenantID      *uuid.UUID
	Email         string
	Name          string
	Role          string
	PasswordHash  *string
	GoogleID      *string
	EmailVerified bool
}

// Create inserts a user and returns the stored row.
func (r *UserRepo) Create(ctx context.Context, p CreateParams) (*User, error) {
	id := uuid.New()
	var verifiedAt *time.Time
	if p.EmailVerified {
		now := time.Now().UTC()
		verifiedAt = &now
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, tenant_id, email, name, role, status, password_hash, google_id, email_verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+userColumns,
		id, p.TenantID, p.Email, p.Name, p.Role, UserStatusActive, p.PasswordHash, p.GoogleID, verifiedAt)
	return scanUser(row)
}

// LinkGoogleID attaches a federated provider subject to an existing account.
// Idempotent: relinking the same subject is a no-op.
func (r *UserRepo) LinkGoogleID(ctx context.Context, userID uuid.UUID, googleID string) error {
	if _, err := r.pool.Exec(ctx, `
		UPDATE users SET google_id = $2, updated_at = now()
		WHERE id = $1 AND (google_id IS NULL OR google_id = $2)`,
		userID, googleID); err != nil {
		return fmt.Errorf("link google id: %w", err)
	}
	return nil
}

// TouchLastLogin stamps the most recent successful authentication.
func (r *UserRepo) TouchLastLogin(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `
		UPDATE users SET last_login_at = now(), updated_at = now() WHERE id = $1`,
		userID); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}
