package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/drvdispatch/mobileshop-auth/internal/token"
)

// TokenVerifier defines the capability required to validate session tokens.
type TokenVerifier interface {
	VerifySession(tokenStr string) (*token.Session, error)
}

// Auth provides session-token authentication middleware. Tokens are read
// from the Authorization header or from the session cookie.
type Auth struct {
	verifier   TokenVerifier
	cookieName string
}

// NewAuth creates a new instance.
func NewAuth(verifier TokenVerifier, cookieName string) *Auth {
	return &Auth{verifier: verifier, cookieName: cookieName}
}

// RequireAuth ensures incoming requests carry a valid session token.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			if cookie, err := r.Cookie(a.cookieName); err == nil {
				tokenStr = cookie.Value
			}
		}
		if tokenStr == "" {
			writeAuthError(w, "missing session token")
			return
		}

		session, err := a.verifier.VerifySession(tokenStr)
		if err != nil {
			writeAuthError(w, "invalid session token")
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[7:])
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": message,
		"code":  "unauthorized",
	})
}

type sessionContextKey struct{}

// SessionFromContext extracts the session stored by middleware.
func SessionFromContext(ctx context.Context) (*token.Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*token.Session)
	return session, ok && session != nil
}
