package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config aggregates all runtime settings.
type Config struct {
	App      AppConfig      `envPrefix:"AUTH_"`
	HTTP     HTTPConfig     `envPrefix:"AUTH_HTTP_"`
	Database DatabaseConfig `envPrefix:"AUTH_DB_"`
	Redis    RedisConfig    `envPrefix:"AUTH_REDIS_"`
	Token    TokenConfig    `envPrefix:"AUTH_TOKEN_"`
	Security SecurityConfig `envPrefix:"AUTH_SECURITY_"`
	Google   GoogleConfig   `envPrefix:"AUTH_GOOGLE_"`
	SMTP     SMTPConfig     `envPrefix:"AUTH_SMTP_"`
}

type AppConfig struct {
	Environment string `env:"ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"mobileshop-auth"`
}

type HTTPConfig struct {
	Host              string        `env:"HOST" envDefault:"0.0.0.0"`
	Port              int           `env:"PORT" envDefault:"4102"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"25s"`
}

type DatabaseConfig struct {
	URL             string        `env:"URL"`
	MaxConns        int32         `env:"MAX_CONNS" envDefault:"20"`
	MinConns        int32         `env:"MIN_CONNS" envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	RunMigrations   bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
}

type RedisConfig struct {
	Addr      string `env:"ADDR" envDefault:"127.0.0.1:6379"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB" envDefault:"0"`
	EnableTLS bool   `env:"ENABLE_TLS" envDefault:"false"`
	Namespace string `env:"NAMESPACE" envDefault:"msauth"`
}

type TokenConfig struct {
	Issuer       string        `env:"ISSUER" envDefault:"https://auth.mobileshop.local"`
	Secret       string        `env:"SECRET"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	CookieName   string        `env:"COOKIE_NAME" envDefault:"auth_token"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"true"`
}

type SecurityConfig struct {
	StateSecret       string        `env:"STATE_SECRET"`
	OAuthStateTTL     time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`
	HandoffCodeTTL    time.Duration `env:"HANDOFF_CODE_TTL" envDefault:"60s"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`
	PasswordMinLength int           `env:"PASSWORD_MIN_LENGTH" envDefault:"10"`
	Argon2Time        uint32        `env:"ARGON2_TIME" envDefault:"3"`
	Argon2Memory      uint32        `env:"ARGON2_MEMORY" envDefault:"65536"`
	Argon2Threads     uint8         `env:"ARGON2_THREADS" envDefault:"2"`
	Argon2KeyLength   uint32        `env:"ARGON2_KEY_LENGTH" envDefault:"32"`
	// LocalDomains are resolved with http:// instead of https:// when
	// building absolute return URLs for the OAuth round trip.
	LocalDomains []string `env:"LOCAL_DOMAINS" envSeparator:"," envDefault:"localhost,127.0.0.1"`
}

type GoogleConfig struct {
	Enabled      bool   `env:"ENABLED" envDefault:"false"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM" envDefault:"no-reply@mobileshop.local"`
}

// Load parses environment variables into Config and performs validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("AUTH_DB_URL is required")
	}
	if cfg.Token.Secret == "" {
		return nil, fmt.Errorf("AUTH_TOKEN_SECRET is required")
	}
	if cfg.Security.StateSecret == "" {
		return nil, fmt.Errorf("AUTH_SECURITY_STATE_SECRET is required")
	}
	if cfg.Google.Enabled {
		if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" || cfg.Google.RedirectURL == "" {
			return nil, fmt.Errorf("google oauth requires CLIENT_ID, CLIENT_SECRET, and REDIRECT_URL")
		}
	}

	return cfg, nil
}
