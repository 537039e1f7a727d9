package tenant_test

import (
	"context"
	"testing"

	"github.com/drvdispatch/mobileshop-auth/internal/store"
	"github.com/drvdispatch/mobileshop-auth/internal/tenant"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockTenantRepo struct {
	tenants map[string]*store.Tenant
	calls   int
}

func (m *mockTenantRepo) GetActiveByDomain(ctx context.Context, domain string) (*store.Tenant, error) {
	m.calls++
	if t, ok := m.tenants[domain]; ok {
		return t, nil
	}
	return nil, store.ErrNotFound
}

func TestResolverResolve(t *testing.T) {
	want := &store.Tenant{ID: uuid.New(), Name: "Shop", Status: store.TenantStatusActive}
	repo := &mockTenantRepo{tenants: map[string]*store.Tenant{"shop.example.com": want}}
	resolver := tenant.NewResolver(repo, zap.NewNop())

	got, err := resolver.Resolve(context.Background(), "shop.example.com")
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
}

func TestResolverNormalizesHost(t *testing.T) {
	want := &store.Tenant{ID: uuid.New(), Name: "Shop", Status: store.TenantStatusActive}
	repo := &mockTenantRepo{tenants: map[string]*store.Tenant{"shop.example.com": want}}
	resolver := tenant.NewResolver(repo, zap.NewNop())

	for _, host := range []string{
		"SHOP.Example.COM",
		"www.shop.example.com",
		"shop.example.com:8443",
		"  shop.example.com ",
		"WWW.shop.example.com:443",
	} {
		got, err := resolver.Resolve(context.Background(), host)
		require.NoError(t, err, "host %q", host)
		require.Equal(t, want.ID, got.ID)
	}
}

func TestResolverUnknownDomain(t *testing.T) {
	resolver := tenant.NewResolver(&mockTenantRepo{}, zap.NewNop())

	_, err := resolver.Resolve(context.Background(), "nobody.example.com")
	require.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestResolverEmptyHost(t *testing.T) {
	resolver := tenant.NewResolver(&mockTenantRepo{}, zap.NewNop())

	_, err := resolver.Resolve(context.Background(), "")
	require.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestResolverCachesLookups(t *testing.T) {
	want := &store.Tenant{ID: uuid.New(), Status: store.TenantStatusActive}
	repo := &mockTenantRepo{tenants: map[string]*store.Tenant{"shop.example.com": want}}
	resolver := tenant.NewResolver(repo, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := resolver.Resolve(context.Background(), "shop.example.com")
		require.NoError(t, err)
	}
	require.Equal(t, 1, repo.calls)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Shop.Example.COM", "shop.example.com"},
		{"www.shop.example.com", "shop.example.com"},
		{"shop.example.com:443", "shop.example.com"},
		{"www.shop.example.com:8080", "shop.example.com"},
		{" shop.example.com ", "shop.example.com"},
		{"localhost:3000", "localhost"},
		{"", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tenant.Normalize(tt.in), "input %q", tt.in)
	}
}
