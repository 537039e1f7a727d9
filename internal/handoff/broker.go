package handoff

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drvdispatch/mobileshop-auth/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrCodeInvalid covers every failed exchange: unknown code, expired,
// already used, or tenant mismatch. The sub-reason is logged server-side
// but never surfaced, so a caller cannot probe which check failed.
var ErrCodeInvalid = errors.New("handoff code invalid or expired")

// codeBytes is the entropy of an exchange code before encoding.
const codeBytes = 32

// Grant is a successfully redeemed handoff.
type Grant struct {
	UserID     uuid.UUID
	TenantID   uuid.UUID
	ReturnPath string
}

// CodeRepository persists one-time codes. Claim must be a single atomic
// conditional update: concurrent claims of one code yield exactly one row.
type CodeRepository interface {
	Insert(ctx context.Context, c store.HandoffCode) error
	Claim(ctx context.Context, code string, tenantID uuid.UUID, now time.Time) (*store.HandoffCode, error)
	Get(ctx context.Context, code string) (*store.HandoffCode, error)
	Delete(ctx context.Context, code string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Broker issues short-lived single-use exchange codes that carry a freshly
// authenticated identity from the shared callback domain to the tenant's
// own domain, and redeems each code exactly once.
type Broker struct {
	repo   CodeRepository
	ttl    time.Duration
	logger *zap.Logger
}

// NewBroker constructs a Broker.
func NewBroker(repo CodeRepository, ttl time.Duration, logger *zap.Logger) *Broker {
	return &Broker{repo: repo, ttl: ttl, logger: logger}
}

// Issue persists a new code for the identity. Already-expired codes are
// cleaned up opportunistically first; that cleanup is bounded housekeeping,
// not a correctness requirement.
func (b *Broker) Issue(ctx context.Context, userID, tenantID uuid.UUID, returnPath string) (string, error) {
	if n, err := b.repo.DeleteExpired(ctx, time.Now()); err != nil {
		b.logger.Warn("handoff cleanup failed", zap.Error(err))
	} else if n > 0 {
		b.logger.Debug("swept expired handoff codes", zap.Int64("removed", n))
	}

	code, err := NewCode()
	if err != nil {
		return "", err
	}
	if err := b.repo.Insert(ctx, store.HandoffCode{
		Code:       code,
		UserID:     userID,
		TenantID:   tenantID,
		ReturnPath: SanitizeReturnPath(returnPath),
		ExpiresAt:  time.Now().Add(b.ttl).UTC(),
	}); err != nil {
		return "", fmt.Errorf("issue handoff code: %w", err)
	}
	return code, nil
}

// Exchange atomically claims the code for the calling tenant. After one
// successful exchange every later attempt fails, regardless of timing. A
// claim from the wrong tenant leaves the code unconsumed.
func (b *Broker) Exchange(ctx context.Context, code string, tenantID uuid.UUID) (*Grant, error) {
	claimed, err := b.repo.Claim(ctx, code, tenantID, time.Now())
	if err == nil {
		return &Grant{
			UserID:     claimed.UserID,
			TenantID:   claimed.TenantID,
			ReturnPath: claimed.ReturnPath,
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("exchange handoff code: %w", err)
	}

	b.logger.Warn("handoff exchange rejected",
		zap.String("reason", b.diagnose(ctx, code, tenantID)),
		zap.String("tenant_id", tenantID.String()))
	return nil, ErrCodeInvalid
}

// diagnose inspects a failed claim for audit logging only; the caller
// always reports the collapsed ErrCodeInvalid.
func (b *Broker) diagnose(ctx context.Context, code string, tenantID uuid.UUID) string {
	rec, err := b.repo.Get(ctx, code)
	if err != nil {
		return "not_found"
	}
	switch {
	case rec.UsedAt != nil:
		return "already_used"
	case time.Now().After(rec.ExpiresAt):
		if err := b.repo.Delete(ctx, code); err != nil {
			b.logger.Warn("failed to delete expired handoff code", zap.Error(err))
		}
		return "expired"
	case rec.TenantID != tenantID:
		return "tenant_mismatch"
	default:
		return "claim_race"
	}
}

// NewCode returns a fresh URL-safe exchange code.
func NewCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate handoff code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SanitizeReturnPath keeps redemption redirects on the tenant's own site.
// Absolute URLs and protocol-relative paths collapse to "/".
func SanitizeReturnPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return "/"
	}
	return p
}
