package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/drvdispatch/mobileshop-auth/internal/config"
	"github.com/drvdispatch/mobileshop-auth/internal/identity"
	"github.com/drvdispatch/mobileshop-auth/internal/password"
	"github.com/drvdispatch/mobileshop-auth/internal/store"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// seed provisions a demo tenant plus platform operator accounts. Called by
// deploy hooks or manually for initial setup; unlike migrations it is
// optional and typically runs once.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()

	pool, err := store.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("database connection", zap.Error(err))
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrations", zap.Error(err))
	}
	st := store.New(pool)
	hasher := password.NewHasher(cfg.Security)

	ownerPassword := requirePassword(logger, "SEED_OWNER_PASSWORD")
	adminPassword := requirePassword(logger, "SEED_ADMIN_PASSWORD")

	seedPlatformUser(ctx, logger, st, hasher, "owner@mobileshop.local", "Platform Owner", identity.RoleOwner, ownerPassword)
	seedPlatformUser(ctx, logger, st, hasher, "admin@mobileshop.local", "Platform Admin", identity.RoleAdmin, adminPassword)

	domain := os.Getenv("SEED_TENANT_DOMAIN")
	if domain == "" {
		domain = "demo.mobileshop.local"
	}
	if _, err := st.Tenants.GetActiveByDomain(ctx, domain); errors.Is(err, store.ErrNotFound) {
		tenantRow, err := st.Tenants.Create(ctx, "Demo Shop", domain, store.TenantStatusActive)
		if err != nil {
			logger.Fatal("seed tenant", zap.Error(err))
		}
		logger.Info("seeded tenant", zap.String("domain", domain), zap.String("id", tenantRow.ID.String()))
	} else if err != nil {
		logger.Fatal("check tenant", zap.Error(err))
	}

	logger.Info("seeding completed")
}

func requirePassword(logger *zap.Logger, envName string) string {
	pw := os.Getenv(envName)
	if pw == "" {
		logger.Fatal("seed password missing", zap.String("env", envName))
	}
	return pw
}

func seedPlatformUser(ctx context.Context, logger *zap.Logger, st *store.Store, hasher *password.Hasher, email, name, role, pw string) {
	if identity.IsReservedSubject(email) {
		logger.Fatal("reserved subject cannot be seeded", zap.String("email", email))
	}
	if _, err := st.Users.GetByEmail(ctx, nil, email); err == nil {
		logger.Info("platform user already present", zap.String("email", email))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Fatal("check platform user", zap.Error(err))
	}

	hash, err := hasher.Hash(pw)
	if err != nil {
		logger.Fatal("hash password", zap.Error(err))
	}
	user, err := st.Users.Create(ctx, store.CreateParams{
		Email:         email,
		Name:          name,
		Role:          role,
		PasswordHash:  &hash,
		EmailVerified: true,
	})
	if err != nil {
		logger.Fatal("seed platform user", zap.Error(err))
	}
	logger.Info("seeded platform user", zap.String("email", email), zap.String("id", user.ID.String()))
}
