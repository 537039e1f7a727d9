package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/drvdispatch/mobileshop-auth/internal/credential"
	"github.com/drvdispatch/mobileshop-auth/internal/handoff"
	authmiddleware "github.com/drvdispatch/mobileshop-auth/internal/httpapi/middleware"
	"github.com/drvdispatch/mobileshop-auth/internal/identity"
	"github.com/drvdispatch/mobileshop-auth/internal/services/auth"
	"github.com/drvdispatch/mobileshop-auth/internal/tenant"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthService describes the auth layer capabilities used by HTTP handlers.
type AuthService interface {
	StartGoogleOAuth(ctx context.Context, in auth.StartOAuthInput) (string, error)
	CompleteGoogleOAuth(ctx context.Context, in auth.CallbackInput) (string, error)
	ExchangeHandoff(ctx context.Context, in auth.ExchangeInput) (*auth.SessionResult, error)
	ExchangeImpersonation(ctx context.Context, in auth.ExchangeInput) (*auth.SessionResult, error)
	StartImpersonation(ctx context.Context, in auth.ImpersonateInput) (string, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.SessionResult, error)
	AdminLogin(ctx context.Context, in auth.PlatformLoginInput) (*auth.SessionResult, error)
	OwnerLogin(ctx context.Context, in auth.PlatformLoginInput) (*auth.SessionResult, error)
	Register(ctx context.Context, in auth.RegisterInput) (identity.Identity, error)
}

// CookieConfig describes the session cookie contract.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// AuthHandler exposes HTTP endpoints for authentication flows.
type AuthHandler struct {
	service AuthService
	cookies CookieConfig
	logger  *zap.Logger
}

// NewAuthHandler constructs a handler.
func NewAuthHandler(service AuthService, cookies CookieConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookies: cookies,
		logger:  logger,
	}
}

// GoogleStart initiates the Google OAuth flow and redirects to the provider.
func (h *AuthHandler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.service.StartGoogleOAuth(r.Context(), auth.StartOAuthInput{
		TenantParam:   r.URL.Query().Get("tenant"),
		ForwardedHost: requestHost(r),
		ReturnPath:    r.URL.Query().Get("returnUrl"),
		IPAddress:     clientIP(r),
		UserAgent:     userAgent(r),
	})
	if err != nil {
		h.redirectFlowError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// GoogleCallback is the provider redirect target. It always answers with a
// redirect: to the tenant domain carrying a handoff code, or to the error
// page with an opaque message.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.service.CompleteGoogleOAuth(r.Context(), auth.CallbackInput{
		Code:      r.URL.Query().Get("code"),
		State:     r.URL.Query().Get("state"),
		IPAddress: clientIP(r),
		UserAgent: userAgent(r),
	})
	if err != nil {
		h.redirectFlowError(w, r, err)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// Exchange redeems a handoff code for a session cookie on the tenant domain.
func (h *AuthHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}

	result, err := h.service.ExchangeHandoff(r.Context(), auth.ExchangeInput{
		Code:      req.Code,
		Host:      requestHost(r),
		IPAddress: clientIP(r),
		UserAgent: userAgent(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(result.Token))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"returnPath": result.ReturnPath,
		"user":       userView(result.Identity),
	})
}

// ImpersonateExchange redeems an impersonation code. The response and the
// session cookie mark the session as operator-assumed.
func (h *AuthHandler) ImpersonateExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}

	result, err := h.service.ExchangeImpersonation(r.Context(), auth.ExchangeInput{
		Code:      req.Code,
		Host:      requestHost(r),
		IPAddress: clientIP(r),
		UserAgent: userAgent(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(result.Token))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"returnPath":      result.ReturnPath,
		"user":            userView(result.Identity),
		"isImpersonating": true,
		"impersonatedBy":  result.ImpersonatedBy,
	})
}

// Impersonate lets an authenticated platform operator mint a one-time
// impersonation code for a tenant user.
func (h *AuthHandler) Impersonate(w http.ResponseWriter, r *http.Request) {
	session, ok := authmiddleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing auth context", nil)
		return
	}
	if !session.Identity.Platform() {
		writeError(w, http.StatusForbidden, "forbidden", "operator access required", nil)
		return
	}

	var req impersonateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}
	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid tenant id", nil)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid user id", nil)
		return
	}

	code, err := h.service.StartImpersonation(r.Context(), auth.ImpersonateInput{
		OperatorSubject: session.Subject,
		OperatorRole:    session.Identity.Role,
		TenantID:        tenantID,
		UserID:          userID,
		IPAddress:       clientIP(r),
		UserAgent:       userAgent(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": code})
}

// Login authenticates a tenant user with email/password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}

	result, err := h.service.Login(r.Context(), auth.LoginInput{
		Host:      requestHost(r),
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: clientIP(r),
		UserAgent: userAgent(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeSession(w, result)
}

// AdminLogin authenticates a platform administrator.
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.platformLogin(w, r, h.service.AdminLogin)
}

// OwnerLogin authenticates the platform owner.
func (h *AuthHandler) OwnerLogin(w http.ResponseWriter, r *http.Request) {
	h.platformLogin(w, r, h.service.OwnerLogin)
}

func (h *AuthHandler) platformLogin(w http.ResponseWriter, r *http.Request, login func(context.Context, auth.PlatformLoginInput) (*auth.SessionResult, error)) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}

	result, err := login(r.Context(), auth.PlatformLoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: clientIP(r),
		UserAgent: userAgent(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeSession(w, result)
}

// Register creates a tenant user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}

	id, err := h.service.Register(r.Context(), auth.RegisterInput{
		Host:      requestHost(r),
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Name,
		IPAddress: clientIP(r),
		UserAgent: userAgent(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user": userView(id),
		"note": "verify your email address to activate password login",
	})
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.deletionCookie())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Me returns the authenticated session.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := authmiddleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing auth context", nil)
		return
	}
	payload := map[string]any{
		"user": userView(session.Identity),
	}
	if session.Impersonating {
		payload["isImpersonating"] = true
		payload["impersonatedBy"] = session.ImpersonatedBy
	}
	writeJSON(w, http.StatusOK, payload)
}

// AuthError is the landing endpoint for flow error redirects.
func (h *AuthHandler) AuthError(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	if message == "" {
		message = "authentication_failed"
	}
	writeError(w, http.StatusBadRequest, message, "authentication failed", nil)
}

// redirectFlowError converts a browser-flow failure into an opaque error
// redirect. Nothing in these flows may reach the client as a 500.
func (h *AuthHandler) redirectFlowError(w http.ResponseWriter, r *http.Request, err error) {
	message := "oauth_failed"
	switch {
	case errors.Is(err, auth.ErrStateInvalid):
		message = "invalid_state"
	case errors.Is(err, tenant.ErrNotFound):
		message = "tenant_not_found"
	default:
		h.logger.Warn("oauth flow error", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
	}
	http.Redirect(w, r, "/auth/error?message="+url.QueryEscape(message), http.StatusFound)
}

func (h *AuthHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, handoff.ErrCodeInvalid):
		writeError(w, http.StatusUnauthorized, "invalid_code", "invalid or expired code", nil)
	case errors.Is(err, credential.ErrEmailNotVerified):
		writeError(w, http.StatusUnauthorized, "email_not_verified", "please verify your email address", nil)
	case errors.Is(err, credential.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password", nil)
	case errors.Is(err, tenant.ErrNotFound):
		writeError(w, http.StatusNotFound, "tenant_not_found", "tenant not found", nil)
	case errors.Is(err, auth.ErrPasswordTooWeak):
		writeError(w, http.StatusUnprocessableEntity, "weak_password", "password does not meet requirements", nil)
	case errors.Is(err, auth.ErrEmailAlreadyExists):
		writeError(w, http.StatusConflict, "email_exists", "user with email already exists", nil)
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "operator access required", nil)
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", "user not found", nil)
	default:
		reqID := middleware.GetReqID(r.Context())
		h.logger.Error("auth handler error", zap.String("request_id", reqID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error", map[string]any{"request_id": reqID})
	}
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, result *auth.SessionResult) {
	http.SetCookie(w, h.sessionCookie(result.Token))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"returnPath": result.ReturnPath,
		"user":       userView(result.Identity),
	})
}

func (h *AuthHandler) sessionCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     h.cookies.Name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cookies.MaxAge.Seconds()),
		Expires:  time.Now().Add(h.cookies.MaxAge).UTC(),
	}
}

func (h *AuthHandler) deletionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     h.cookies.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	}
}

func userView(id identity.Identity) map[string]any {
	view := map[string]any{
		"id":    id.UserID,
		"email": id.Email,
		"name":  id.Name,
		"role":  id.Role,
	}
	if id.TenantID != nil {
		view["tenantId"] = *id.TenantID
	}
	return view
}

type exchangeRequest struct {
	Code string `json:"code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type impersonateRequest struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
}
