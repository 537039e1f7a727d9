package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/drvdispatch/mobileshop-auth/internal/identity"
	"github.com/drvdispatch/mobileshop-auth/internal/password"
	"github.com/drvdispatch/mobileshop-auth/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials covers wrong password, unknown account,
	// deactivated account, and password login on a federated-only account.
	// The sub-reasons stay internal to avoid account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotVerified is surfaced separately: telling the user to verify
	// their email is actionable and reveals nothing an attacker can use.
	ErrEmailNotVerified = errors.New("email not verified")
)

// UserRepository provides the account lookups and writes the verifier needs.
type UserRepository interface {
	GetByEmail(ctx context.Context, tenantID *uuid.UUID, email string) (*store.User, error)
	GetByGoogleID(ctx context.Context, tenantID uuid.UUID, googleID string) (*store.User, error)
	Create(ctx context.Context, p store.CreateParams) (*store.User, error)
	LinkGoogleID(ctx context.Context, userID uuid.UUID, googleID string) error
	TouchLastLogin(ctx context.Context, userID uuid.UUID) error
}

// Notifier delivers account notifications. Failures never affect the flow.
type Notifier interface {
	SendWelcome(email, name string)
}

// Verifier validates passwords and federated claims against the credential
// store and produces canonical identities. All lookups are tenant-scoped;
// platform accounts are matched with an explicit nil tenant.
type Verifier struct {
	users    UserRepository
	hasher   *password.Hasher
	notifier Notifier
	logger   *zap.Logger
}

// NewVerifier constructs a Verifier. notifier may be nil.
func NewVerifier(users UserRepository, hasher *password.Hasher, notifier Notifier, logger *zap.Logger) *Verifier {
	return &Verifier{users: users, hasher: hasher, notifier: notifier, logger: logger}
}

// VerifyPassword checks an email/password pair scoped to a tenant. It fails
// closed: no stored hash (federated-only account), a deactivated account,
// and an unverified email all reject the login.
func (v *Verifier) VerifyPassword(ctx context.Context, tenantID *uuid.UUID, email, plaintext string) (identity.Identity, error) {
	user, err := v.users.GetByEmail(ctx, tenantID, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return identity.Identity{}, ErrInvalidCredentials
		}
		return identity.Identity{}, fmt.Errorf("lookup user: %w", err)
	}

	if user.PasswordHash == nil {
		v.logger.Info("password login on federated-only account", zap.String("user_id", user.ID.String()))
		return identity.Identity{}, ErrInvalidCredentials
	}
	if user.Status != store.UserStatusActive {
		v.logger.Info("login on inactive account", zap.String("user_id", user.ID.String()))
		return identity.Identity{}, ErrInvalidCredentials
	}
	if err := v.hasher.Compare(*user.PasswordHash, plaintext); err != nil {
		return identity.Identity{}, ErrInvalidCredentials
	}
	if user.EmailVerifiedAt == nil {
		return identity.Identity{}, ErrEmailNotVerified
	}

	if err := v.users.TouchLastLogin(ctx, user.ID); err != nil {
		v.logger.Warn("failed to update last login", zap.Error(err))
	}
	return toIdentity(user), nil
}

// ResolveOrCreateFederated maps a verified provider claim to an account
// inside the tenant. Lookup order: provider subject first, then email. An
// email-only match links the provider subject to the existing account
// (idempotent). A brand-new account is created verified — the provider
// already proved ownership of the address — and a welcome notification is
// fired without blocking the flow.
func (v *Verifier) ResolveOrCreateFederated(ctx context.Context, tenantID uuid.UUID, providerID, email, displayName string) (identity.Identity, error) {
	email = normalizeEmail(email)

	user, err := v.users.GetByGoogleID(ctx, tenantID, providerID)
	if err == nil {
		return toIdentity(user), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return identity.Identity{}, fmt.Errorf("lookup by provider id: %w", err)
	}

	user, err = v.users.GetByEmail(ctx, &tenantID, email)
	if err == nil {
		if err := v.users.LinkGoogleID(ctx, user.ID, providerID); err != nil {
			return identity.Identity{}, err
		}
		return toIdentity(user), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return identity.Identity{}, fmt.Errorf("lookup by email: %w", err)
	}

	user, err = v.users.Create(ctx, store.CreateParams{
		TenantID:      &tenantID,
		Email:         email,
		Name:          displayName,
		Role:          identity.RoleStaff,
		GoogleID:      &providerID,
		EmailVerified: true,
	})
	if err != nil {
		return identity.Identity{}, fmt.Errorf("create federated user: %w", err)
	}

	if v.notifier != nil {
		v.notifier.SendWelcome(user.Email, user.Name)
	}
	return toIdentity(user), nil
}

func toIdentity(u *store.User) identity.Identity {
	return identity.Identity{
		UserID:   u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		TenantID: u.TenantID,
	}
}

func normalizeEmail(email string) string {
	return trimLower(email)
}
