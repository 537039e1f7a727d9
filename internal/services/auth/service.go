package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/drvdispatch/mobileshop-auth/internal/audit"
	"github.com/drvdispatch/mobileshop-auth/internal/config"
	"github.com/drvdispatch/mobileshop-auth/internal/credential"
	"github.com/drvdispatch/mobileshop-auth/internal/handoff"
	"github.com/drvdispatch/mobileshop-auth/internal/identity"
	"github.com/drvdispatch/mobileshop-auth/internal/metrics"
	"github.com/drvdispatch/mobileshop-auth/internal/oauth/state"
	"github.com/drvdispatch/mobileshop-auth/internal/password"
	googleprovider "github.com/drvdispatch/mobileshop-auth/internal/providers/google"
	"github.com/drvdispatch/mobileshop-auth/internal/store"
	"github.com/drvdispatch/mobileshop-auth/internal/tenant"
	"github.com/drvdispatch/mobileshop-auth/internal/token"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrStateInvalid indicates a malformed, tampered, expired, or replayed
	// OAuth state. Surfaced as a generic error redirect only.
	ErrStateInvalid = errors.New("oauth state invalid")
	// ErrOAuthFailed covers provider-side failures: code exchange, profile
	// fetch, unverified provider email. Redirected, never retried.
	ErrOAuthFailed = errors.New("oauth flow failed")
	// ErrProviderNotEnabled indicates the OAuth provider is disabled.
	ErrProviderNotEnabled = errors.New("oauth provider not enabled")
	// ErrPasswordTooWeak is returned when a password fails policy validation.
	ErrPasswordTooWeak = errors.New("password too weak")
	// ErrEmailAlreadyExists indicates duplicate registration.
	ErrEmailAlreadyExists = errors.New("user with email already exists")
	// ErrForbidden indicates the caller lacks the role for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrUserNotFound indicates the impersonation target does not exist in
	// the given tenant.
	ErrUserNotFound = errors.New("user not found")
)

// tenantCallbackPath is the landing route on the tenant domain that posts
// the handoff code back to /auth/exchange.
const tenantCallbackPath = "/auth/callback"

// Service encapsulates the authentication flows.
type Service struct {
	tenants *tenant.Resolver
	creds   *credential.Verifier
	users   *store.UserRepo
	tokens  *token.Service
	codec   *state.Codec
	states  *state.Store
	codes   *handoff.Broker
	imps    *handoff.ImpersonationBroker
	google  *googleprovider.Provider
	hasher  *password.Hasher
	auditor *audit.Logger
	metrics *metrics.Metrics
	cfg     *config.Config
	logger  *zap.Logger
}

// Dependencies aggregates constructor inputs.
type Dependencies struct {
	Tenants       *tenant.Resolver
	Credentials   *credential.Verifier
	Users         *store.UserRepo
	Tokens        *token.Service
	StateCodec    *state.Codec
	StateStore    *state.Store
	Handoff       *handoff.Broker
	Impersonation *handoff.ImpersonationBroker
	Google        *googleprovider.Provider
	Hasher        *password.Hasher
	Auditor       *audit.Logger
	Metrics       *metrics.Metrics
	Config        *config.Config
	Logger        *zap.Logger
}

// New initialises the auth service.
func New(deps Dependencies) *Service {
	return &Service{
		tenants: deps.Tenants,
		creds:   deps.Credentials,
		users:   deps.Users,
		tokens:  deps.Tokens,
		codec:   deps.StateCodec,
		states:  deps.StateStore,
		codes:   deps.Handoff,
		imps:    deps.Impersonation,
		google:  deps.Google,
		hasher:  deps.Hasher,
		auditor: deps.Auditor,
		metrics: deps.Metrics,
		cfg:     deps.Config,
		logger:  deps.Logger,
	}
}

// SessionResult is returned by every flow that ends in a minted session.
type SessionResult struct {
	Token          string
	ExpiresAt      time.Time
	ReturnPath     string
	Identity       identity.Identity
	Impersonating  bool
	ImpersonatedBy string
}

// StartOAuthInput captures an OAuth initiation request.
type StartOAuthInput struct {
	TenantParam   string // explicit ?tenant= query parameter, wins over the header
	ForwardedHost string // X-Forwarded-Host fallback
	ReturnPath    string
	IPAddress     string
	UserAgent     string
}

// StartGoogleOAuth stores the pending flow and returns the provider URL to
// redirect the browser to. The signed state travels through the provider;
// its nonce keys the single-use server-side entry.
func (s *Service) StartGoogleOAuth(ctx context.Context, in StartOAuthInput) (string, error) {
	if s.google == nil {
		return "", ErrProviderNotEnabled
	}

	host := in.TenantParam
	if host == "" {
		host = in.ForwardedHost
	}
	tenantRow, err := s.tenants.Resolve(ctx, host)
	if err != nil {
		return "", err
	}
	domain := tenant.Normalize(host)

	stateToken, nonce, err := s.codec.Sign(domain, in.ReturnPath)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	s.states.Put(nonce, state.Entry{
		TenantDomain: domain,
		ReturnURL:    s.codec.AbsoluteReturnURL(domain, in.ReturnPath),
		ExpiresAt:    time.Now().Add(s.cfg.Security.OAuthStateTTL),
	})

	s.auditor.Record(ctx, audit.Entry{
		TenantID:   &tenantRow.ID,
		Action:     "auth.oauth.google.start",
		Resource:   "oauth_state",
		ResourceID: nonce,
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
	})

	return s.google.AuthCodeURL(stateToken), nil
}

// CallbackInput captures the provider redirect.
type CallbackInput struct {
	Code      string
	State     string
	IPAddress string
	UserAgent string
}

// CompleteGoogleOAuth verifies the returned state, consumes the paired
// server-side entry, resolves the identity, and issues a handoff code. The
// state entry is always consumed before a handoff code is created. Returns
// the tenant-domain URL to redirect the browser to.
func (s *Service) CompleteGoogleOAuth(ctx context.Context, in CallbackInput) (string, error) {
	if s.google == nil {
		return "", ErrProviderNotEnabled
	}
	if in.Code == "" || in.State == "" {
		s.metrics.OAuthCallbacks.WithLabelValues("invalid_state").Inc()
		return "", ErrStateInvalid
	}

	payload, err := s.codec.Verify(in.State)
	if err != nil {
		s.metrics.OAuthCallbacks.WithLabelValues("invalid_state").Inc()
		return "", ErrStateInvalid
	}
	entry, ok := s.states.TakeOnce(payload.Nonce)
	if !ok {
		s.metrics.OAuthCallbacks.WithLabelValues("invalid_state").Inc()
		return "", ErrStateInvalid
	}

	tenantRow, err := s.tenants.Resolve(ctx, entry.TenantDomain)
	if err != nil {
		s.metrics.OAuthCallbacks.WithLabelValues("tenant_not_found").Inc()
		return "", err
	}

	oauthToken, err := s.google.Exchange(ctx, in.Code)
	if err != nil {
		s.logger.Warn("google code exchange failed", zap.Error(err))
		s.metrics.OAuthCallbacks.WithLabelValues("oauth_failed").Inc()
		return "", ErrOAuthFailed
	}
	profile, err := s.google.FetchProfile(ctx, oauthToken)
	if err != nil {
		s.logger.Warn("google profile fetch failed", zap.Error(err))
		s.metrics.OAuthCallbacks.WithLabelValues("oauth_failed").Inc()
		return "", ErrOAuthFailed
	}
	if !profile.EmailVerified {
		s.logger.Warn("google profile email not verified", zap.String("email", profile.Email))
		s.metrics.OAuthCallbacks.WithLabelValues("oauth_failed").Inc()
		return "", ErrOAuthFailed
	}

	id, err := s.creds.ResolveOrCreateFederated(ctx, tenantRow.ID, profile.Subject, profile.Email, profile.Name)
	if err != nil {
		s.logger.Error("federated identity resolution failed", zap.Error(err))
		s.metrics.OAuthCallbacks.WithLabelValues("oauth_failed").Inc()
		return "", ErrOAuthFailed
	}

	code, err := s.codes.Issue(ctx, id.UserID, tenantRow.ID, pathOf(entry.ReturnURL))
	if err != nil {
		s.logger.Error("handoff issue failed", zap.Error(err))
		s.metrics.OAuthCallbacks.WithLabelValues("oauth_failed").Inc()
		return "", ErrOAuthFailed
	}
	s.metrics.HandoffIssued.Inc()
	s.metrics.OAuthCallbacks.WithLabelValues("success").Inc()

	s.auditor.Record(ctx, audit.Entry{
		TenantID:   &tenantRow.ID,
		UserID:     &id.UserID,
		Action:     "auth.oauth.google.success",
		Resource:   "handoff_code",
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
		Context:    map[string]any{"email": id.Email},
	})

	return s.codec.AbsoluteReturnURL(entry.TenantDomain, tenantCallbackPath) +
		"?code=" + url.QueryEscape(code), nil
}

// ExchangeInput captures a code redemption on the tenant domain.
type ExchangeInput struct {
	Code      string
	Host      string
	IPAddress string
	UserAgent string
}

// ExchangeHandoff redeems a one-time code for a session token. The tenant
// context comes from the domain serving the request, so a code stolen
// across tenants never redeems. The code is consumed before the session
// token is minted.
func (s *Service) ExchangeHandoff(ctx context.Context, in ExchangeInput) (*SessionResult, error) {
	tenantRow, err := s.tenants.Resolve(ctx, in.Host)
	if err != nil {
		// An unknown exchange domain reads the same as a bad code.
		s.metrics.HandoffExchanged.WithLabelValues("rejected").Inc()
		return nil, handoff.ErrCodeInvalid
	}

	grant, err := s.codes.Exchange(ctx, in.Code, tenantRow.ID)
	if err != nil {
		s.metrics.HandoffExchanged.WithLabelValues("rejected").Inc()
		s.auditor.Record(ctx, audit.Entry{
			TenantID:  &tenantRow.ID,
			Action:    "auth.handoff.rejected",
			Resource:  "handoff_code",
			IPAddress: in.IPAddress,
			UserAgent: in.UserAgent,
		})
		return nil, err
	}

	user, err := s.users.Get(ctx, grant.UserID)
	if err != nil || user.Status != store.UserStatusActive {
		s.metrics.HandoffExchanged.WithLabelValues("rejected").Inc()
		return nil, handoff.ErrCodeInvalid
	}

	id := identity.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Role:     user.Role,
		TenantID: user.TenantID,
	}
	tokenStr, exp, err := s.tokens.Issue(id, nil)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.metrics.HandoffExchanged.WithLabelValues("success").Inc()
	s.auditor.Record(ctx, audit.Entry{
		TenantID:   &tenantRow.ID,
		UserID:     &user.ID,
		Action:     "auth.handoff.exchanged",
		Resource:   "session",
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
	})

	return &SessionResult{
		Token:      tokenStr,
		ExpiresAt:  exp,
		ReturnPath: grant.ReturnPath,
		Identity:   id,
	}, nil
}

// ImpersonateInput captures an operator's request to assume a tenant user's
// session.
type ImpersonateInput struct {
	OperatorSubject string
	OperatorRole    string
	TenantID        uuid.UUID
	UserID          uuid.UUID
	IPAddress       string
	UserAgent       string
}

// StartImpersonation issues a one-time impersonation code for the target
// user. Only platform operators may call this.
func (s *Service) StartImpersonation(ctx context.Context, in ImpersonateInput) (string, error) {
	if in.OperatorRole != identity.RoleOwner && in.OperatorRole != identity.RoleAdmin {
		return "", ErrForbidden
	}

	user, err := s.users.Get(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("load impersonation target: %w", err)
	}
	if user.TenantID == nil || *user.TenantID != in.TenantID {
		return "", ErrUserNotFound
	}

	code, err := s.imps.Issue(in.OperatorSubject, in.TenantID, user.ID, user.Email, user.Name, user.Role)
	if err != nil {
		return "", err
	}

	s.auditor.Record(ctx, audit.Entry{
		TenantID:   &in.TenantID,
		UserID:     &user.ID,
		Action:     "auth.impersonation.started",
		Resource:   "impersonation_code",
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
		Context:    map[string]any{"operator": in.OperatorSubject},
	})
	return code, nil
}

// ExchangeImpersonation redeems an impersonation code on the tenant domain.
// The minted session carries the impersonation flag and the initiating
// operator so every downstream authorization check can tell it apart from a
// real session.
func (s *Service) ExchangeImpersonation(ctx context.Context, in ExchangeInput) (*SessionResult, error) {
	tenantRow, err := s.tenants.Resolve(ctx, in.Host)
	if err != nil {
		s.metrics.ImpersonationUsed.WithLabelValues("rejected").Inc()
		return nil, handoff.ErrCodeInvalid
	}

	h, err := s.imps.Exchange(ctx, in.Code, tenantRow.ID)
	if err != nil {
		s.metrics.ImpersonationUsed.WithLabelValues("rejected").Inc()
		return nil, err
	}

	id := identity.Identity{
		UserID:   h.UserID,
		Email:    h.UserEmail,
		Name:     h.UserName,
		Role:     h.UserRole,
		TenantID: &h.TenantID,
	}
	tokenStr, exp, err := s.tokens.Issue(id, &token.Impersonation{OperatorID: h.ImpersonatedBy})
	if err != nil {
		return nil, fmt.Errorf("issue impersonation token: %w", err)
	}

	s.metrics.ImpersonationUsed.WithLabelValues("success").Inc()
	s.auditor.Record(ctx, audit.Entry{
		TenantID:   &tenantRow.ID,
		UserID:     &h.UserID,
		Action:     "auth.impersonation.exchanged",
		Resource:   "session",
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
		Context:    map[string]any{"operator": h.ImpersonatedBy},
	})

	return &SessionResult{
		Token:          tokenStr,
		ExpiresAt:      exp,
		ReturnPath:     "/",
		Identity:       id,
		Impersonating:  true,
		ImpersonatedBy: h.ImpersonatedBy,
	}, nil
}

// LoginInput captures a tenant-scoped credential login.
type LoginInput struct {
	Host      string
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// Login authenticates a tenant user with email/password.
func (s *Service) Login(ctx context.Context, in LoginInput) (*SessionResult, error) {
	tenantRow, err := s.tenants.Resolve(ctx, in.Host)
	if err != nil {
		return nil, err
	}

	id, err := s.creds.VerifyPassword(ctx, &tenantRow.ID, in.Email, in.Password)
	if err != nil {
		s.metrics.Logins.WithLabelValues("tenant", "failure").Inc()
		return nil, err
	}

	result, err := s.mintSession(id)
	if err != nil {
		return nil, err
	}
	s.metrics.Logins.WithLabelValues("tenant", "success").Inc()
	s.auditor.Record(ctx, audit.Entry{
		TenantID:  &tenantRow.ID,
		UserID:    &id.UserID,
		Action:    "auth.login",
		Resource:  "session",
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	})
	return result, nil
}

// PlatformLoginInput captures a platform-level credential login.
type PlatformLoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// AdminLogin authenticates a platform administrator (nil tenant scope).
func (s *Service) AdminLogin(ctx context.Context, in PlatformLoginInput) (*SessionResult, error) {
	return s.platformLogin(ctx, in, "admin", func(role string) bool {
		return role == identity.RoleAdmin || role == identity.RoleOwner
	})
}

// OwnerLogin authenticates the platform owner.
func (s *Service) OwnerLogin(ctx context.Context, in PlatformLoginInput) (*SessionResult, error) {
	return s.platformLogin(ctx, in, "owner", func(role string) bool {
		return role == identity.RoleOwner
	})
}

func (s *Service) platformLogin(ctx context.Context, in PlatformLoginInput, flow string, roleOK func(string) bool) (*SessionResult, error) {
	id, err := s.creds.VerifyPassword(ctx, nil, in.Email, in.Password)
	if err != nil {
		s.metrics.Logins.WithLabelValues(flow, "failure").Inc()
		return nil, err
	}
	if !roleOK(id.Role) {
		s.metrics.Logins.WithLabelValues(flow, "failure").Inc()
		return nil, credential.ErrInvalidCredentials
	}

	result, err := s.mintSession(id)
	if err != nil {
		return nil, err
	}
	s.metrics.Logins.WithLabelValues(flow, "success").Inc()
	s.auditor.Record(ctx, audit.Entry{
		UserID:    &id.UserID,
		Action:    "auth." + flow + "_login",
		Resource:  "session",
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	})
	return result, nil
}

// RegisterInput captures a tenant-scoped signup.
type RegisterInput struct {
	Host      string
	Email     string
	Password  string
	Name      string
	IPAddress string
	UserAgent string
}

// Register creates a tenant user. The account starts unverified; password
// logins stay rejected until the email is confirmed.
func (s *Service) Register(ctx context.Context, in RegisterInput) (identity.Identity, error) {
	tenantRow, err := s.tenants.Resolve(ctx, in.Host)
	if err != nil {
		return identity.Identity{}, err
	}
	if len(in.Password) < s.cfg.Security.PasswordMinLength {
		return identity.Identity{}, ErrPasswordTooWeak
	}

	email := strings.TrimSpace(strings.ToLower(in.Email))
	if _, err := s.users.GetByEmail(ctx, &tenantRow.ID, email); err == nil {
		return identity.Identity{}, ErrEmailAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return identity.Identity{}, fmt.Errorf("check existing user: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.Create(ctx, store.CreateParams{
		TenantID:     &tenantRow.ID,
		Email:        email,
		Name:         in.Name,
		Role:         identity.RoleStaff,
		PasswordHash: &hash,
	})
	if err != nil {
		return identity.Identity{}, fmt.Errorf("create user: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		TenantID:   &tenantRow.ID,
		UserID:     &user.ID,
		Action:     "auth.registered",
		Resource:   "user",
		ResourceID: user.ID.String(),
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
	})

	return identity.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Role:     user.Role,
		TenantID: user.TenantID,
	}, nil
}

// VerifySession validates a session token for middleware and /me.
func (s *Service) VerifySession(tokenStr string) (*token.Session, error) {
	return s.tokens.Verify(tokenStr)
}

func (s *Service) mintSession(id identity.Identity) (*SessionResult, error) {
	tokenStr, exp, err := s.tokens.Issue(id, nil)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return &SessionResult{
		Token:      tokenStr,
		ExpiresAt:  exp,
		ReturnPath: "/",
		Identity:   id,
	}, nil
}

// pathOf extracts the path+query of an absolute URL, defaulting to "/".
func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	p := u.Path
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
