package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/drvdispatch/mobileshop-auth/internal/credential"
	"github.com/drvdispatch/mobileshop-auth/internal/handoff"
	"github.com/drvdispatch/mobileshop-auth/internal/httpapi/handlers"
	"github.com/drvdispatch/mobileshop-auth/internal/identity"
	"github.com/drvdispatch/mobileshop-auth/internal/services/auth"
	"github.com/drvdispatch/mobileshop-auth/internal/tenant"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAuthService struct {
	startURL    string
	startErr    error
	callbackURL string
	callbackErr error
	exchange    *auth.SessionResult
	exchangeErr error
	loginResult *auth.SessionResult
	loginErr    error
	impCode     string
	impErr      error
	registered  identity.Identity
	registerErr error
}

func (m *mockAuthService) StartGoogleOAuth(ctx context.Context, in auth.StartOAuthInput) (string, error) {
	return m.startURL, m.startErr
}

func (m *mockAuthService) CompleteGoogleOAuth(ctx context.Context, in auth.CallbackInput) (string, error) {
	return m.callbackURL, m.callbackErr
}

func (m *mockAuthService) ExchangeHandoff(ctx context.Context, in auth.ExchangeInput) (*auth.SessionResult, error) {
	return m.exchange, m.exchangeErr
}

func (m *mockAuthService) ExchangeImpersonation(ctx context.Context, in auth.ExchangeInput) (*auth.SessionResult, error) {
	return m.exchange, m.exchangeErr
}

func (m *mockAuthService) StartImpersonation(ctx context.Context, in auth.ImpersonateInput) (string, error) {
	return m.impCode, m.impErr
}

func (m *mockAuthService) Login(ctx context.Context, in auth.LoginInput) (*auth.SessionResult, error) {
	return m.loginResult, m.loginErr
}

func (m *mockAuthService) AdminLogin(ctx context.Context, in auth.PlatformLoginInput) (*auth.SessionResult, error) {
	return m.loginResult, m.loginErr
}

func (m *mockAuthService) OwnerLogin(ctx context.Context, in auth.PlatformLoginInput) (*auth.SessionResult, error) {
	return m.loginResult, m.loginErr
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (identity.Identity, error) {
	return m.registered, m.registerErr
}

func newHandler(svc handlers.AuthService) *handlers.AuthHandler {
	return handlers.NewAuthHandler(svc, handlers.CookieConfig{
		Name:   "auth_token",
		Secure: true,
		MaxAge: time.Hour,
	}, zap.NewNop())
}

func sessionResult() *auth.SessionResult {
	tenantID := uuid.New()
	return &auth.SessionResult{
		Token:      "signed.jwt.value",
		ExpiresAt:  time.Now().Add(time.Hour),
		ReturnPath: "/account",
		Identity: identity.Identity{
			UserID:   uuid.New(),
			Email:    "staff@shop.test",
			Name:     "Staff",
			Role:     identity.RoleStaff,
			TenantID: &tenantID,
		},
	}
}

func TestGoogleStartRedirectsToProvider(t *testing.T) {
	h := newHandler(&mockAuthService{startURL: "https://accounts.google.com/o/oauth2/auth?state=x"})

	req := httptest.NewRequest(http.MethodGet, "/auth/google?tenant=shop.example.com&returnUrl=/account", nil)
	rec := httptest.NewRecorder()
	h.GoogleStart(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://accounts.google.com/o/oauth2/auth?state=x", rec.Header().Get("Location"))
}

func TestGoogleStartUnknownTenantRedirectsToError(t *testing.T) {
	h := newHandler(&mockAuthService{startErr: tenant.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/auth/google?tenant=nobody.example.com", nil)
	rec := httptest.NewRecorder()
	h.GoogleStart(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/auth/error?message=tenant_not_found", rec.Header().Get("Location"))
}

func TestGoogleCallbackRedirectsToTenant(t *testing.T) {
	h := newHandler(&mockAuthService{callbackURL: "https://shop.example.com/auth/callback?code=abc"})

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=x&state=y", nil)
	rec := httptest.NewRecorder()
	h.GoogleCallback(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://shop.example.com/auth/callback?code=abc", rec.Header().Get("Location"))
}

func TestGoogleCallbackErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid state", auth.ErrStateInvalid, "/auth/error?message=invalid_state"},
		{"unknown tenant", tenant.ErrNotFound, "/auth/error?message=tenant_not_found"},
		{"provider failure", auth.ErrOAuthFailed, "/auth/error?message=oauth_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(&mockAuthService{callbackErr: tt.err})

			req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=x&state=y", nil)
			rec := httptest.NewRecorder()
			h.GoogleCallback(rec, req)

			// Flow failures are never surfaced as server errors.
			require.Equal(t, http.StatusFound, rec.Code)
			require.Equal(t, tt.want, rec.Header().Get("Location"))
		})
	}
}

func TestExchangeSetsSessionCookie(t *testing.T) {
	h := newHandler(&mockAuthService{exchange: sessionResult()})

	req := httptest.NewRequest(http.MethodPost, "/auth/exchange", strings.NewReader(`{"code":"abc"}`))
	rec := httptest.NewRecorder()
	h.Exchange(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"returnPath":"/account"`)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	require.Equal(t, "auth_token", c.Name)
	require.Equal(t, "signed.jwt.value", c.Value)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteLaxMode, c.SameSite)
	require.Equal(t, "/", c.Path)
}

func TestExchangeInvalidCode(t *testing.T) {
	h := newHandler(&mockAuthService{exchangeErr: handoff.ErrCodeInvalid})

	req := httptest.NewRequest(http.MethodPost, "/auth/exchange", strings.NewReader(`{"code":"bad"}`))
	rec := httptest.NewRecorder()
	h.Exchange(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid or expired code")
	require.Empty(t, rec.Result().Cookies())
}

func TestExchangeMalformedBody(t *testing.T) {
	h := newHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/exchange", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.Exchange(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImpersonateExchangeMarksSession(t *testing.T) {
	result := sessionResult()
	result.Impersonating = true
	result.ImpersonatedBy = "system:root"
	h := newHandler(&mockAuthService{exchange: result})

	req := httptest.NewRequest(http.MethodPost, "/auth/impersonate/exchange", strings.NewReader(`{"code":"abc"}`))
	rec := httptest.NewRecorder()
	h.ImpersonateExchange(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"isImpersonating":true`)
	require.Contains(t, rec.Body.String(), `"impersonatedBy":"system:root"`)
}

func TestLoginErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"invalid credentials", credential.ErrInvalidCredentials, http.StatusUnauthorized, "invalid email or password"},
		{"unverified email", credential.ErrEmailNotVerified, http.StatusUnauthorized, "verify your email"},
		{"unknown tenant", tenant.ErrNotFound, http.StatusNotFound, "tenant not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(&mockAuthService{loginErr: tt.err})

			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.test","password":"pw"}`))
			rec := httptest.NewRecorder()
			h.Login(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			require.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestLoginSuccess(t *testing.T) {
	h := newHandler(&mockAuthService{loginResult: sessionResult()})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"staff@shop.test","password":"pw"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
}

func TestRegisterCreated(t *testing.T) {
	tenantID := uuid.New()
	h := newHandler(&mockAuthService{registered: identity.Identity{
		UserID:   uuid.New(),
		Email:    "new@shop.test",
		Role:     identity.RoleStaff,
		TenantID: &tenantID,
	}})

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"new@shop.test","password":"long-enough-pw","name":"New"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), "new@shop.test")
}

func TestRegisterErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"weak password", auth.ErrPasswordTooWeak, http.StatusUnprocessableEntity},
		{"duplicate email", auth.ErrEmailAlreadyExists, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(&mockAuthService{registerErr: tt.err})

			req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"a@b.test","password":"pw","name":"A"}`))
			rec := httptest.NewRecorder()
			h.Register(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	h := newHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "auth_token", cookies[0].Name)
	require.Empty(t, cookies[0].Value)
	require.Negative(t, cookies[0].MaxAge)
}

func TestAuthErrorEndpoint(t *testing.T) {
	h := newHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/error?message=invalid_state", nil)
	rec := httptest.NewRecorder()
	h.AuthError(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_state")
}
