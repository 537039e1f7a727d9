package handoff_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/drvdispatch/mobileshop-auth/internal/handoff"
	"github.com/drvdispatch/mobileshop-auth/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memCodeRepo mirrors the persisted repository's claim semantics: one
// conditional update under a lock, so concurrent claims of a code yield
// exactly one success.
type memCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*store.HandoffCode
}

func newMemCodeRepo() *memCodeRepo {
	return &memCodeRepo{codes: make(map[string]*store.HandoffCode)}
}

func (r *memCodeRepo) Insert(ctx context.Context, c store.HandoffCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.CreatedAt = time.Now()
	r.codes[c.Code] = &c
	return nil
}

func (r *memCodeRepo) Claim(ctx context.Context, code string, tenantID uuid.UUID, now time.Time) (*store.HandoffCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[code]
	if !ok || c.TenantID != tenantID || c.UsedAt != nil || !c.ExpiresAt.After(now) {
		return nil, store.ErrNotFound
	}
	used := now
	c.UsedAt = &used
	claimed := *c
	return &claimed, nil
}

func (r *memCodeRepo) Get(ctx context.Context, code string) (*store.HandoffCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *memCodeRepo) Delete(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, code)
	return nil
}

func (r *memCodeRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for code, c := range r.codes {
		if c.ExpiresAt.Before(before) {
			delete(r.codes, code)
			n++
		}
	}
	return n, nil
}

func TestBrokerIssueAndExchange(t *testing.T) {
	repo := newMemCodeRepo()
	broker := handoff.NewBroker(repo, time.Minute, zap.NewNop())
	userID, tenantID := uuid.New(), uuid.New()

	code, err := broker.Issue(context.Background(), userID, tenantID, "/account")
	require.NoError(t, err)
	require.NotEmpty(t, code)

	grant, err := broker.Exchange(context.Background(), code, tenantID)
	require.NoError(t, err)
	require.Equal(t, userID, grant.UserID)
	require.Equal(t, tenantID, grant.TenantID)
	require.Equal(t, "/account", grant.ReturnPath)
}

func TestBrokerExchangeRejectsReplay(t *testing.T) {
	repo := newMemCodeRepo()
	broker := handoff.NewBroker(repo, time.Minute, zap.NewNop())
	tenantID := uuid.New()

	code, err := broker.Issue(context.Background(), uuid.New(), tenantID, "/")
	require.NoError(t, err)

	_, err = broker.Exchange(context.Background(), code, tenantID)
	require.NoError(t, err)

	_, err = broker.Exchange(context.Background(), code, tenantID)
	require.ErrorIs(t, err, handoff.ErrCodeInvalid)
}

func TestBrokerExchangeUnknownCode(t *testing.T) {
	broker := handoff.NewBroker(newMemCodeRepo(), time.Minute, zap.NewNop())

	_, err := broker.Exchange(context.Background(), "never-issued", uuid.New())
	require.ErrorIs(t, err, handoff.ErrCodeInvalid)
}

func TestBrokerExchangeExpiredCode(t *testing.T) {
	repo := newMemCodeRepo()
	broker := handoff.NewBroker(repo, -time.Second, zap.NewNop())
	tenantID := uuid.New()

	code, err := broker.Issue(context.Background(), uuid.New(), tenantID, "/")
	require.NoError(t, err)

	_, err = broker.Exchange(context.Background(), code, tenantID)
	require.ErrorIs(t, err, handoff.ErrCodeInvalid)
}

func TestBrokerWrongTenantDoesNotConsumeCode(t *testing.T) {
	repo := newMemCodeRepo()
	broker := handoff.NewBroker(repo, time.Minute, zap.NewNop())
	tenantID, otherTenant := uuid.New(), uuid.New()

	code, err := broker.Issue(context.Background(), uuid.New(), tenantID, "/orders")
	require.NoError(t, err)

	_, err = broker.Exchange(context.Background(), code, otherTenant)
	require.ErrorIs(t, err, handoff.ErrCodeInvalid)

	// The failed cross-tenant attempt must not burn the code.
	grant, err := broker.Exchange(context.Background(), code, tenantID)
	require.NoError(t, err)
	require.Equal(t, "/orders", grant.ReturnPath)
}

func TestBrokerConcurrentExchangeSingleWinner(t *testing.T) {
	repo := newMemCodeRepo()
	broker := handoff.NewBroker(repo, time.Minute, zap.NewNop())
	tenantID := uuid.New()

	code, err := broker.Issue(context.Background(), uuid.New(), tenantID, "/")
	require.NoError(t, err)

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := broker.Exchange(context.Background(), code, tenantID); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	got := 0
	for range wins {
		got++
	}
	require.Equal(t, 1, got, "exactly one exchange may succeed")
}

func TestSanitizeReturnPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/account", "/account"},
		{"/orders?page=2", "/orders?page=2"},
		{"", "/"},
		{"account", "/"},
		{"//evil.example.com", "/"},
		{"https://evil.example.com/", "/"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, handoff.SanitizeReturnPath(tt.in), "input %q", tt.in)
	}
}

func TestNewCodeIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := handoff.NewCode()
		require.NoError(t, err)
		require.False(t, seen[code])
		seen[code] = true
	}
}
