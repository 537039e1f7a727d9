package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/drvdispatch/mobileshop-auth/internal/httpapi/middleware"
	"github.com/drvdispatch/mobileshop-auth/internal/identity"
	"github.com/drvdispatch/mobileshop-auth/internal/token"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type mockVerifier struct {
	session *token.Session
	err     error
	seen    string
}

func (m *mockVerifier) VerifySession(tokenStr string) (*token.Session, error) {
	m.seen = tokenStr
	return m.session, m.err
}

func okSession() *token.Session {
	return &token.Session{
		Subject:  uuid.New().String(),
		Identity: identity.Identity{UserID: uuid.New(), Role: identity.RoleStaff},
	}
}

func protected(t *testing.T, verifier middleware.TokenVerifier) (http.Handler, *bool) {
	t.Helper()
	reached := false
	auth := middleware.NewAuth(verifier, "auth_token")
	return auth.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := middleware.SessionFromContext(r.Context())
		require.True(t, ok)
		reached = true
	})), &reached
}

func TestRequireAuthBearerToken(t *testing.T) {
	verifier := &mockVerifier{session: okSession()}
	handler, reached := protected(t, verifier)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, *reached)
	require.Equal(t, "tok-123", verifier.seen)
}

func TestRequireAuthCookieFallback(t *testing.T) {
	verifier := &mockVerifier{session: okSession()}
	handler, reached := protected(t, verifier)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: "cookie-tok"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, *reached)
	require.Equal(t, "cookie-tok", verifier.seen)
}

func TestRequireAuthMissingToken(t *testing.T) {
	handler, reached := protected(t, &mockVerifier{session: okSession()})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, *reached)
}

func TestRequireAuthInvalidToken(t *testing.T) {
	handler, reached := protected(t, &mockVerifier{err: errors.New("bad token")})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, *reached)
}
