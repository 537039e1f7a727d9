package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDeps defines router construction dependencies.
type RouterDeps struct {
	HealthHandler       http.HandlerFunc
	AuthHandlers        AuthHandlers
	RequireAuthHandler  func(http.Handler) http.Handler
	RateLimitLogin      func(http.Handler) http.Handler
	RateLimitExchange   func(http.Handler) http.Handler
	MetricsHandler      http.Handler
	AllowedOrigins      []string
}

// AuthHandlers groups the HTTP handlers for auth routes.
type AuthHandlers struct {
	GoogleStart         http.HandlerFunc
	GoogleCallback      http.HandlerFunc
	AuthError           http.HandlerFunc
	Exchange            http.HandlerFunc
	ImpersonateExchange http.HandlerFunc
	Impersonate         http.HandlerFunc
	Login               http.HandlerFunc
	AdminLogin          http.HandlerFunc
	OwnerLogin          http.HandlerFunc
	Register            http.HandlerFunc
	Logout              http.HandlerFunc
	Me                  http.HandlerFunc
}

// NewRouter wires HTTP routes.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.HealthHandler != nil {
		r.Get("/healthz", deps.HealthHandler)
	}
	if deps.MetricsHandler != nil {
		r.Method("GET", "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google", deps.AuthHandlers.GoogleStart)
		r.Get("/google/callback", deps.AuthHandlers.GoogleCallback)
		r.Get("/error", deps.AuthHandlers.AuthError)

		if deps.RateLimitExchange != nil {
			r.With(deps.RateLimitExchange).Post("/exchange", deps.AuthHandlers.Exchange)
			r.With(deps.RateLimitExchange).Post("/impersonate/exchange", deps.AuthHandlers.ImpersonateExchange)
		} else {
			r.Post("/exchange", deps.AuthHandlers.Exchange)
			r.Post("/impersonate/exchange", deps.AuthHandlers.ImpersonateExchange)
		}

		if deps.RateLimitLogin != nil {
			r.With(deps.RateLimitLogin).Post("/login", deps.AuthHandlers.Login)
			r.With(deps.RateLimitLogin).Post("/admin-login", deps.AuthHandlers.AdminLogin)
			r.With(deps.RateLimitLogin).Post("/owner-login", deps.AuthHandlers.OwnerLogin)
		} else {
			r.Post("/login", deps.AuthHandlers.Login)
			r.Post("/admin-login", deps.AuthHandlers.AdminLogin)
			r.Post("/owner-login", deps.AuthHandlers.OwnerLogin)
		}

		r.Post("/register", deps.AuthHandlers.Register)
		r.Post("/logout", deps.AuthHandlers.Logout)

		r.Group(func(r chi.Router) {
			if deps.RequireAuthHandler != nil {
				r.Use(deps.RequireAuthHandler)
			}
			r.Get("/me", deps.AuthHandlers.Me)
			r.Post("/impersonate", deps.AuthHandlers.Impersonate)
		})
	})

	return r
}
