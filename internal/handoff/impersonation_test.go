package handoff_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/drvdispatch/mobileshop-auth/internal/handoff"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestImpersonationIssueAndExchange(t *testing.T) {
	broker := handoff.NewImpersonationBroker(time.Minute, zap.NewNop())
	tenantID, userID := uuid.New(), uuid.New()

	code, err := broker.Issue("system:root", tenantID, userID, "staff@shop.test", "Staff Member", "staff")
	require.NoError(t, err)

	h, err := broker.Exchange(context.Background(), code, tenantID)
	require.NoError(t, err)
	require.Equal(t, userID, h.UserID)
	require.Equal(t, tenantID, h.TenantID)
	require.Equal(t, "staff@shop.test", h.UserEmail)
	require.Equal(t, "staff", h.UserRole)
	require.Equal(t, "system:root", h.ImpersonatedBy)
}

func TestImpersonationSingleUse(t *testing.T) {
	broker := handoff.NewImpersonationBroker(time.Minute, zap.NewNop())
	tenantID := uuid.New()

	code, err := broker.Issue("op-1", tenantID, uuid.New(), "a@b.test", "A", "staff")
	require.NoError(t, err)

	_, err = broker.Exchange(context.Background(), code, tenantID)
	require.NoError(t, err)
	_, err = broker.Exchange(context.Background(), code, tenantID)
	require.ErrorIs(t, err, handoff.ErrCodeInvalid)
}

func TestImpersonationWrongTenantDoesNotConsume(t *testing.T) {
	broker := handoff.NewImpersonationBroker(time.Minute, zap.NewNop())
	tenantID := uuid.New()

	code, err := broker.Issue("op-1", tenantID, uuid.New(), "a@b.test", "A", "staff")
	require.NoError(t, err)

	_, err = broker.Exchange(context.Background(), code, uuid.New())
	require.ErrorIs(t, err, handoff.ErrCodeInvalid)

	_, err = broker.Exchange(context.Background(), code, tenantID)
	require.NoError(t, err)
}

func TestImpersonationExpiry(t *testing.T) {
	broker := handoff.NewImpersonationBroker(-time.Second, zap.NewNop())
	tenantID := uuid.New()

	code, err := broker.Issue("op-1", tenantID, uuid.New(), "a@b.test", "A", "staff")
	require.NoError(t, err)

	_, err = broker.Exchange(context.Background(), code, tenantID)
	require.ErrorIs(t, err, handoff.ErrCodeInvalid)
}

func TestImpersonationSweepExpired(t *testing.T) {
	broker := handoff.NewImpersonationBroker(-time.Second, zap.NewNop())
	_, err := broker.Issue("op-1", uuid.New(), uuid.New(), "a@b.test", "A", "staff")
	require.NoError(t, err)
	_, err = broker.Issue("op-1", uuid.New(), uuid.New(), "b@b.test", "B", "staff")
	require.NoError(t, err)

	require.Equal(t, 2, broker.SweepExpired())
	require.Equal(t, 0, broker.SweepExpired())
}

func TestImpersonationConcurrentExchangeSingleWinner(t *testing.T) {
	broker := handoff.NewImpersonationBroker(time.Minute, zap.NewNop())
	tenantID := uuid.New()

	code, err := broker.Issue("op-1", tenantID, uuid.New(), "a@b.test", "A", "staff")
	require.NoError(t, err)

	const workers = 16
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
	require.Equal(t, 1, got)
}
