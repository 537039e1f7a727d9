package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/drvdispatch/mobileshop-auth/internal/audit"
	"github.com/drvdispatch/mobileshop-auth/internal/cache"
	"github.com/drvdispatch/mobileshop-auth/internal/config"
	"github.com/drvdispatch/mobileshop-auth/internal/credential"
	"github.com/drvdispatch/mobileshop-auth/internal/handoff"
	"github.com/drvdispatch/mobileshop-auth/internal/httpapi"
	"github.com/drvdispatch/mobileshop-auth/internal/httpapi/handlers"
	httpmiddleware "github.com/drvdispatch/mobileshop-auth/internal/httpapi/middleware"
	"github.com/drvdispatch/mobileshop-auth/internal/metrics"
	"github.com/drvdispatch/mobileshop-auth/internal/notify"
	"github.com/drvdispatch/mobileshop-auth/internal/oauth/state"
	"github.com/drvdispatch/mobileshop-auth/internal/password"
	googleprovider "github.com/drvdispatch/mobileshop-auth/internal/providers/google"
	"github.com/drvdispatch/mobileshop-auth/internal/services/auth"
	"github.com/drvdispatch/mobileshop-auth/internal/store"
	"github.com/drvdispatch/mobileshop-auth/internal/tenant"
	"github.com/drvdispatch/mobileshop-auth/internal/token"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App wires core dependencies and exposes server lifecycle controls.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	httpServer *http.Server
	cancel     context.CancelFunc
}

// New constructs the application.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	pool, err := store.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.RunMigrations {
		if err := store.Migrate(ctx, pool); err != nil {
			return nil, err
		}
	}
	st := store.New(pool)

	redisClient, err := cache.New(cfg.Redis)
	if err != nil {
		return nil, err
	}

	tokenSvc, err := token.NewService(cfg.Token)
	if err != nil {
		return nil, err
	}
	stateCodec, err := state.NewCodec(cfg.Security.StateSecret, cfg.Security.LocalDomains)
	if err != nil {
		return nil, err
	}
	googleProvider, err := googleprovider.New(cfg.Google)
	if err != nil {
		return nil, err
	}

	// Background sweepers stop when this context is cancelled at shutdown.
	sweepCtx, cancel := context.WithCancel(context.Background())

	stateStore := state.NewStore(cfg.Security.OAuthStateTTL)
	stateStore.StartSweep(sweepCtx, cfg.Security.SweepInterval)

	impBroker := handoff.NewImpersonationBroker(cfg.Security.HandoffCodeTTL, logger)
	impBroker.StartSweep(sweepCtx, cfg.Security.SweepInterval)

	codeBroker := handoff.NewBroker(st.Handoff, cfg.Security.HandoffCodeTTL, logger)

	resolver := tenant.NewResolver(st.Tenants, logger)
	hasher := password.NewHasher(cfg.Security)
	mailer := notify.New(cfg.SMTP, logger)
	verifier := credential.NewVerifier(st.Users, hasher, mailer, logger)
	auditor := audit.New(st.Audit, logger)

	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)

	authService := auth.New(auth.Dependencies{
		Tenants:       resolver,
		Credentials:   verifier,
		Users:         st.Users,
		Tokens:        tokenSvc,
		StateCodec:    stateCodec,
		StateStore:    stateStore,
		Handoff:       codeBroker,
		Impersonation: impBroker,
		Google:        googleProvider,
		Hasher:        hasher,
		Auditor:       auditor,
		Metrics:       appMetrics,
		Config:        cfg,
		Logger:        logger,
	})

	authHandler := handlers.NewAuthHandler(authService, handlers.CookieConfig{
		Name:   cfg.Token.CookieName,
		Secure: cfg.Token.CookieSecure,
		MaxAge: cfg.Token.SessionTTL,
	}, logger)
	authMiddleware := httpmiddleware.NewAuth(authService, cfg.Token.CookieName)
	rateLimiter := httpmiddleware.NewRateLimiter(redisClient, cfg.Redis.Namespace, logger)

	byIP := func(r *http.Request) string { return r.RemoteAddr }
	router := httpapi.NewRouter(httpapi.RouterDeps{
		HealthHandler:  handlers.Health,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AuthHandlers: httpapi.AuthHandlers{
			GoogleStart:         authHandler.GoogleStart,
			GoogleCallback:      authHandler.GoogleCallback,
			AuthError:           authHandler.AuthError,
			Exchange:            authHandler.Exchange,
			ImpersonateExchange: authHandler.ImpersonateExchange,
			Impersonate:         authHandler.Impersonate,
			Login:               authHandler.Login,
			AdminLogin:          authHandler.AdminLogin,
			OwnerLogin:          authHandler.OwnerLogin,
			Register:            authHandler.Register,
			Logout:              authHandler.Logout,
			Me:                  authHandler.Me,
		},
		RequireAuthHandler: authMiddleware.RequireAuth,
		RateLimitLogin:     rateLimiter.Limit("login", 30, time.Minute, byIP),
		RateLimitExchange:  rateLimiter.Limit("exchange", 60, time.Minute, byIP),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		redis:      redisClient,
		httpServer: server,
		cancel:     cancel,
	}, nil
}

// Run starts the HTTP server.
func (a *App) Run() error {
	a.logger.Info("starting HTTP server", zap.String("addr", a.httpServer.Addr))
	return a.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and closes resources.
func (a *App) Shutdown(ctx context.Context) error {
	a.cancel()
	shutdownErr := a.httpServer.Shutdown(ctx)

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("failed to close redis client", zap.Error(err))
		if shutdownErr == nil {
			shutdownErr = err
		}
	}
	return shutdownErr
}
