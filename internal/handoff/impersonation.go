package handoff

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ImpersonationHandoff is a redeemed impersonation code: the tenant user to
// assume plus provenance identifying the operator who initiated it.
type ImpersonationHandoff struct {
	UserID         uuid.UUID
	TenantID       uuid.UUID
	UserEmail      string
	UserName       string
	UserRole       string
	ImpersonatedBy string
}

type impersonationCode struct {
	ImpersonationHandoff
	expiresAt time.Time
	usedAt    *time.Time
}

// ImpersonationBroker issues one-time codes that let a platform operator
// start a session as a tenant user. Codes are operator-initiated, very
// short-lived, and redeemed in the same process, so they live in memory;
// the single-use and tenant-isolation rules match the persisted broker.
type ImpersonationBroker struct {
	mu     sync.Mutex
	codes  map[string]*impersonationCode
	ttl    time.Duration
	logger *zap.Logger
}

// NewImpersonationBroker constructs an ImpersonationBroker.
func NewImpersonationBroker(ttl time.Duration, logger *zap.Logger) *ImpersonationBroker {
	return &ImpersonationBroker{
		codes:  make(map[string]*impersonationCode),
		ttl:    ttl,
		logger: logger,
	}
}

// Issue creates a one-time code carrying the target user and the operator
// who will appear as impersonatedBy in the resulting session.
func (b *ImpersonationBroker) Issue(operatorID string, tenantID, userID uuid.UUID, userEmail, userName, userRole string) (string, error) {
	code, err := NewCode()
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.codes[code] = &impersonationCode{
		ImpersonationHandoff: ImpersonationHandoff{
			UserID:         userID,
			TenantID:       tenantID,
			UserEmail:      userEmail,
			UserName:       userName,
			UserRole:       userRole,
			ImpersonatedBy: operatorID,
		},
		expiresAt: time.Now().Add(b.ttl),
	}
	b.mu.Unlock()
	return code, nil
}

// Exchange redeems a code for the calling tenant. The lookup, validation,
// and used marking happen under one lock, so concurrent exchanges of the
// same code yield exactly one success. A wrong-tenant attempt does not
// consume the code.
func (b *ImpersonationBroker) Exchange(ctx context.Context, code string, tenantID uuid.UUID) (*ImpersonationHandoff, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.codes[code]
	if !ok {
		b.reject("not_found", tenantID)
		return nil, ErrCodeInvalid
	}
	if time.Now().After(rec.expiresAt) {
		delete(b.codes, code)
		b.reject("expired", tenantID)
		return nil, ErrCodeInvalid
	}
	if rec.usedAt != nil {
		b.reject("already_used", tenantID)
		return nil, ErrCodeInvalid
	}
	if rec.TenantID != tenantID {
		b.reject("tenant_mismatch", tenantID)
		return nil, ErrCodeInvalid
	}

	now := time.Now()
	rec.usedAt = &now
	result := rec.ImpersonationHandoff
	return &result, nil
}

// SweepExpired drops dead codes; used codes fall out once their TTL passes.
func (b *ImpersonationBroker) SweepExpired() int {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for code, rec := range b.codes {
		if now.After(rec.expiresAt) {
			delete(b.codes, code)
			removed++
		}
	}
	return removed
}

// StartSweep runs SweepExpired on the given interval until ctx is done.
func (b *ImpersonationBroker) StartSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.SweepExpired()
			}
		}
	}()
}

func (b *ImpersonationBroker) reject(reason string, tenantID uuid.UUID) {
	b.logger.Warn("impersonation exchange rejected",
		zap.String("reason", reason),
		zap.String("tenant_id", tenantID.String()))
}
