package store

import (
	"context"
	"fmt"

	"github.com/drvdispatch/mobileshop-auth/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the PostgreSQL-backed repositories.
type Store struct {
	pool    *pgxpool.Pool
	Tenants *TenantRepo
	Users   *UserRepo
	Handoff *HandoffRepo
	Audit   *AuditRepo
}

// NewPool initialises a pgx connection pool.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// New wires repositories over an established pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		Tenants: &TenantRepo{pool: pool},
		Users:   &UserRepo{pool: pool},
		Handoff: &HandoffRepo{pool: pool},
		Audit:   &AuditRepo{pool: pool},
	}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
