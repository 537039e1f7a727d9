package tenant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/drvdispatch/mobileshop-auth/internal/store"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// ErrNotFound is returned for unknown domains and for tenants in any
// non-active status. Callers must surface both identically so probing a
// domain never reveals whether a tenant exists.
var ErrNotFound = errors.New("tenant not found")

// Repository provides tenant lookups.
type Repository interface {
	GetActiveByDomain(ctx context.Context, domain string) (*store.Tenant, error)
}

// Resolver maps a request host to its active tenant. Lookups are cached
// briefly; domain-to-tenant bindings change rarely.
type Resolver struct {
	repo   Repository
	cache  *gocache.Cache
	logger *zap.Logger
}

// NewResolver creates a tenant resolver.
func NewResolver(repo Repository, logger *zap.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		cache:  gocache.New(30*time.Second, time.Minute),
		logger: logger,
	}
}

// Resolve normalizes the host and returns its active tenant.
func (r *Resolver) Resolve(ctx context.Context, host string) (*store.Tenant, error) {
	domain := Normalize(host)
	if domain == "" {
		return nil, ErrNotFound
	}

	if cached, ok := r.cache.Get(domain); ok {
		return cached.(*store.Tenant), nil
	}

	t, err := r.repo.GetActiveByDomain(ctx, domain)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Debug("tenant did not resolve", zap.String("domain", domain))
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}

	r.cache.SetDefault(domain, t)
	return t, nil
}

// Normalize lowercases a host and strips whitespace, a leading "www." and
// any port suffix.
func Normalize(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if stripped, _, err := net.SplitHostPort(h); err == nil {
		h = stripped
	}
	h = strings.TrimPrefix(h, "www.")
	return h
}
