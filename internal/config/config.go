package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Owner leave policies.
const (
	OwnerLeaveDeny    = "deny"
	OwnerLeaveAllow   = "allow"
	OwnerLeaveDisband = "disband"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	OIDC      OIDCConfig
	Session   SessionConfig
	Admin     AdminConfig
	Groups    GroupsConfig
	Store     StoreConfig
	Log       LogConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	CSRF      CSRFConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// TrustProxy takes client addresses from X-Forwarded-For and X-Real-IP.
	TrustProxy bool `env:"SERVER_TRUST_PROXY" envDefault:"false"`
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration. An empty driver selects the
// in-memory store.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/hackathon.db"`
}

// InMemory reports whether the volatile in-memory store is selected.
func (c *DatabaseConfig) InMemory() bool {
	return c.Driver == "" || c.Driver == "memory"
}

// OIDCConfig holds OIDC authentication configuration.
type OIDCConfig struct {
	Enabled        bool   `env:"OIDC_ENABLED" envDefault:"false"`
	IssuerURL      string `env:"OIDC_ISSUER_URL"`
	ClientID       string `env:"OIDC_CLIENT_ID"`
	ClientSecret   string `env:"OIDC_CLIENT_SECRET"`
	RedirectURL    string `env:"OIDC_REDIRECT_URL"`
	Scopes         string `env:"OIDC_SCOPES" envDefault:"openid,email,profile"`
	AllowedDomains string `env:"OIDC_ALLOWED_DOMAINS"`
	AdminGroup     string `env:"OIDC_ADMIN_GROUP"`
	LogoutURL      string `env:"OIDC_LOGOUT_URL"`
}

// GetScopes returns the OIDC scopes as a slice.
func (c *OIDCConfig) GetScopes() []string {
	if c.Scopes == "" {
		return []string{"openid", "email", "profile"}
	}
	return splitList(c.Scopes)
}

// GetAllowedDomains returns the allowed domains as a slice.
func (c *OIDCConfig) GetAllowedDomains() []string {
	return splitList(c.AllowedDomains)
}

// SessionConfig holds the cookie session settings.
type SessionConfig struct {
	Secret   string        `env:"SESSION_SECRET"`
	Duration time.Duration `env:"SESSION_DURATION" envDefault:"24h"`
	Secure   bool          `env:"SESSION_SECURE" envDefault:"false"`
	DevLogin bool          `env:"AUTH_DEV_LOGIN" envDefault:"false"`
}

// GetSecretBytes returns the session secret as bytes.
func (c *SessionConfig) GetSecretBytes() ([]byte, error) {
	return decodeKey("SESSION_SECRET", c.Secret)
}

// AdminConfig lists the users granted administrator rights.
type AdminConfig struct {
	Emails string `env:"ADMIN_EMAILS"`
}

// GetEmails returns the admin e-mail addresses as a slice.
func (c *AdminConfig) GetEmails() []string {
	return splitList(c.Emails)
}

// GroupsConfig holds group workflow settings.
type GroupsConfig struct {
	OwnerLeavePolicy string `env:"GROUP_OWNER_LEAVE_POLICY" envDefault:"deny"`
}

// StoreConfig controls optimistic-concurrency retries.
type StoreConfig struct {
	MaxRetries   uint64        `env:"STORE_MAX_RETRIES" envDefault:"5"`
	RetryBackoff time.Duration `env:"STORE_RETRY_BACKOFF" envDefault:"10ms"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// MetricsConfig holds the Prometheus endpoint settings. An empty Addr serves
// /metrics from the main router.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Addr    string `env:"METRICS_ADDR"`
}

// RateLimitConfig throttles idea submissions per client address.
type RateLimitConfig struct {
	IdeasPerMinute float64 `env:"RATE_LIMIT_IDEAS_PER_MINUTE" envDefault:"10"`
	Burst          int     `env:"RATE_LIMIT_BURST" envDefault:"5"`
}

// CSRFConfig enables form CSRF protection when a key is set.
type CSRFConfig struct {
	Key string `env:"CSRF_KEY"`
}

// Enabled reports whether CSRF protection is on.
func (c *CSRFConfig) Enabled() bool { return c.Key != "" }

// GetKeyBytes returns the CSRF key as bytes.
func (c *CSRFConfig) GetKeyBytes() ([]byte, error) {
	return decodeKey("CSRF_KEY", c.Key)
}

// Load loads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	cfg := &Config{}
	sections := []struct {
		name string
		dst  any
	}{
		{"server", &cfg.Server},
		{"database", &cfg.Database},
		{"oidc", &cfg.OIDC},
		{"session", &cfg.Session},
		{"admin", &cfg.Admin},
		{"groups", &cfg.Groups},
		{"store", &cfg.Store},
		{"log", &cfg.Log},
		{"metrics", &cfg.Metrics},
		{"rate limit", &cfg.RateLimit},
		{"csrf", &cfg.CSRF},
	}
	for _, s := range sections {
		if err := env.Parse(s.dst); err != nil {
			return nil, fmt.Errorf("parsing %s config: %w", s.name, err)
		}
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Groups.OwnerLeavePolicy {
	case OwnerLeaveDeny, OwnerLeaveAllow, OwnerLeaveDisband:
	default:
		return fmt.Errorf("GROUP_OWNER_LEAVE_POLICY must be one of deny, allow, disband (got %q)", c.Groups.OwnerLeavePolicy)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console (got %q)", c.Log.Format)
	}

	if !c.Database.InMemory() && c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required for driver %s", c.Database.Driver)
	}

	if c.RateLimit.IdeasPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if _, err := c.Session.GetSecretBytes(); err != nil {
		return err
	}

	if c.CSRF.Enabled() {
		if _, err := c.CSRF.GetKeyBytes(); err != nil {
			return err
		}
	}

	// Validate OIDC config when enabled
	if c.OIDC.Enabled {
		if c.OIDC.IssuerURL == "" {
			return fmt.Errorf("OIDC_ISSUER_URL is required when OIDC is enabled")
		}
		if c.OIDC.ClientID == "" {
			return fmt.Errorf("OIDC_CLIENT_ID is required when OIDC is enabled")
		}
		if c.OIDC.ClientSecret == "" {
			return fmt.Errorf("OIDC_CLIENT_SECRET is required when OIDC is enabled")
		}
		if c.OIDC.RedirectURL == "" {
			return fmt.Errorf("OIDC_REDIRECT_URL is required when OIDC is enabled")
		}
	}

	return nil
}

// decodeKey accepts 64 hex characters or exactly 32 raw bytes.
func decodeKey(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	if len(value) == 64 {
		decoded, err := hex.DecodeString(value)
		if err == nil {
			return decoded, nil
		}
	}
	if len(value) != 32 {
		return nil, fmt.Errorf("%s must be 32 bytes (or 64 hex characters)", name)
	}
	return []byte(value), nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
