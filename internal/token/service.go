package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/drvdispatch/mobileshop-auth/internal/config"
	"github.com/drvdispatch/mobileshop-auth/internal/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any token that fails signature, expiry,
// or claim validation.
var ErrInvalidToken = errors.New("token invalid")

// Claims is the session token claim set. The subject is the user id, or a
// reserved "system:" value for bootstrap identities.
type Claims struct {
	Email          string `json:"email,omitempty"`
	Name           string `json:"name,omitempty"`
	Role           string `json:"role,omitempty"`
	TenantID       string `json:"tenant_id,omitempty"`
	Impersonating  bool   `json:"imp,omitempty"`
	ImpersonatedBy string `json:"imp_by,omitempty"`
	jwt.RegisteredClaims
}

// Impersonation carries provenance for operator-assumed sessions.
type Impersonation struct {
	OperatorID string
}

// Session is the verified result of a token: the identity plus any
// impersonation provenance.
type Session struct {
	Subject        string
	Identity       identity.Identity
	Impersonating  bool
	ImpersonatedBy string
}

// Service mints and verifies session tokens. Signing key and lifetime are
// configuration, not business logic.
type Service struct {
	cfg    config.TokenConfig
	secret []byte
	parser *jwt.Parser
}

// NewService constructs a token service.
func NewService(cfg config.TokenConfig) (*Service, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("token secret missing")
	}
	return &Service{
		cfg:    cfg,
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
		),
	}, nil
}

// Issue signs a session token for the identity. Passing imp marks the
// session as operator-assumed and records who initiated it.
func (s *Service) Issue(id identity.Identity, imp *Impersonation) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(s.cfg.SessionTTL)

	claims := &Claims{
		Email: id.Email,
		Name:  id.Name,
		Role:  id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if id.TenantID != nil {
		claims.TenantID = id.TenantID.String()
	}
	if imp != nil {
		claims.Impersonating = true
		claims.ImpersonatedBy = imp.OperatorID
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, exp, nil
}

// IssueSystem signs a session token for a reserved bootstrap identity.
func (s *Service) IssueSystem(sub string) (string, time.Time, error) {
	sys, ok := identity.SystemBySubject(sub)
	if !ok {
		return "", time.Time{}, ErrInvalidToken
	}
	now := time.Now().UTC()
	exp := now.Add(s.cfg.SessionTTL)
	claims := &Claims{
		Email: sys.Email,
		Name:  sys.Name,
		Role:  sys.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign system token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature and expiry and resolves the subject into a
// session. Reserved system subjects are resolved from the fixed identity
// table instead of trusting the embedded claims; the reserved namespace is
// never assignable to ordinary accounts.
func (s *Service) Verify(tokenStr string) (*Session, error) {
	parsed, err := s.parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	if sys, ok := identity.SystemBySubject(claims.Subject); ok {
		if claims.Role != sys.Role {
			return nil, ErrInvalidToken
		}
		return &Session{Subject: claims.Subject, Identity: sys}, nil
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	id := identity.Identity{
		UserID: userID,
		Email:  claims.Email,
		Name:   claims.Name,
		Role:   claims.Role,
	}
	if claims.TenantID != "" {
		tenantID, err := uuid.Parse(claims.TenantID)
		if err != nil {
			return nil, ErrInvalidToken
		}
		id.TenantID = &tenantID
	}

	return &Session{
		Subject:        claims.Subject,
		Identity:       id,
		Impersonating:  claims.Impersonating,
		ImpersonatedBy: claims.ImpersonatedBy,
	}, nil
}
