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

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Tenant statuses. Only active tenants participate in authentication.
const (
	TenantStatusActive    = "active"
	TenantStatusPending   = "pending"
	TenantStatusSuspended = "suspended"
)

// Tenant is an isolated shop instance.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantRepo reads and writes tenants and their domains.
type TenantRepo struct {
	pool *pgxpool.Pool
}

// GetActiveByDomain resolves an already-normalized domain to its tenant.
// Tenants in any non-active status are reported as ErrNotFound so callers
// cannot distinguish an unknown domain from a suspended tenant.
func (r *TenantRepo) GetActiveByDomain(ctx context.Context, domain string) (*Tenant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT t.id, t.name, t.status, t.created_at, t.updated_at
		FROM tenants t
		JOIN tenant_domains d ON d.tenant_id = t.id
		WHERE d.domain = $1 AND t.status = $2`,
		domain, TenantStatusActive)

	var t Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query tenant by domain: %w", err)
	}
	return &t, nil
}

// Get loads a tenant by id regardless of status.
func (r *TenantRepo) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, status, created_at, updated_at
		FROM tenants WHERE id = $1`, id)

	var t Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query tenant: %w", err)
	}
	return &t, nil
}

// Create inserts a tenant together with its primary domain. Used by seeding.
func (r *TenantRepo) Create(ctx context.Context, name, domain, status string) (*Tenant, error) {
	id := uuid.New()
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, status) VALUES ($1, $2, $3)`,
		id, name, status); err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO tenant_domains (id, tenant_id, domain) VALUES ($1, $2, $3)
		ON CONFLICT (domain) DO NOTHING`,
		uuid.New(), id, domain); err != nil {
		return nil, fmt.Errorf("insert tenant domain: %w", err)
	}
	return r.Get(ctx, id)
}
