package config

import (
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/recovery"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/refresh"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/roles"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/routes"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/session"
)

// Config holds runtime settings for the portal and authctl.
//
// Units: every *Timeout, *Interval, *Pause, *TTL and *Delay field is a
// time.Duration.
type Config struct {
	// Backend
	BackendURL    string `envconfig:"BACKEND_URL"`
	AnonKey       string `envconfig:"ANON_KEY"`
	ProjectRef    string `envconfig:"PROJECT_REF"`
	ResetRedirect string `envconfig:"RESET_REDIRECT"`

	// Storage
	StatePath     string `envconfig:"STATE_PATH"`
	StorageSecret string `envconfig:"STORAGE_SECRET"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`

	// Data plane and surfaces
	GRPCAddr   string `envconfig:"GRPC_ADDR"`
	ListenAddr string `envconfig:"LISTEN_ADDR"`
	LogLevel   string `envconfig:"LOG_LEVEL"`

	// Bootstrap
	IdentityTimeout    time.Duration `envconfig:"IDENTITY_TIMEOUT"`
	SessionTimeout     time.Duration `envconfig:"SESSION_TIMEOUT"`
	SafetyTimeout      time.Duration `envconfig:"SAFETY_TIMEOUT"`
	SafetyCheckTimeout time.Duration `envconfig:"SAFETY_CHECK_TIMEOUT"`
	StatusCacheTTL     time.Duration `envconfig:"STATUS_CACHE_TTL"`
	MinInterval        time.Duration `envconfig:"MIN_INTERVAL"`
	MaxRetries         int           `envconfig:"MAX_RETRIES"`
	RetryBaseDelay     time.Duration `envconfig:"RETRY_BASE_DELAY"`
	RetryFactor        float64       `envconfig:"RETRY_FACTOR"`

	// Recovery chain
	RecoveryIdentityTimeout time.Duration `envconfig:"RECOVERY_IDENTITY_TIMEOUT"`
	RecoverySessionTimeout  time.Duration `envconfig:"RECOVERY_SESSION_TIMEOUT"`
	RepersistPause          time.Duration `envconfig:"REPERSIST_PAUSE"`

	// Refresh, roles, routing
	RefreshTimeout      time.Duration `envconfig:"REFRESH_TIMEOUT"`
	AuthCallTimeout     time.Duration `envconfig:"AUTH_CALL_TIMEOUT"`
	RoleLookupTimeout   time.Duration `envconfig:"ROLE_LOOKUP_TIMEOUT"`
	ProfileTimeout      time.Duration `envconfig:"PROFILE_TIMEOUT"`
	MaxRedirects        int           `envconfig:"MAX_REDIRECTS"`
	PublicPaths         []string      `envconfig:"PUBLIC_PATHS"`
	LoadingEscapeAfter  time.Duration `envconfig:"LOADING_ESCAPE_AFTER"`
	OnlineCheckInterval time.Duration `envconfig:"ONLINE_CHECK_INTERVAL"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BackendURL = "http://127.0.0.1:54321"
	c.StatePath = "sessionkeeper.db"
	c.ListenAddr = "127.0.0.1:8080"
	c.LogLevel = "info"

	sc := session.DefaultConfig()
	c.IdentityTimeout = sc.IdentityTimeout
	c.SessionTimeout = sc.SessionTimeout
	c.SafetyTimeout = sc.SafetyTimeout
	c.SafetyCheckTimeout = sc.SafetyCheckTimeout
	c.StatusCacheTTL = sc.CacheTTL
	c.MinInterval = sc.MinInterval
	c.MaxRetries = sc.Retry.MaxRetries
	c.RetryBaseDelay = sc.Retry.BaseDelay
	c.RetryFactor = sc.Retry.Factor

	c.RecoveryIdentityTimeout = 3 * time.Second
	c.RecoverySessionTimeout = 4 * time.Second
	c.RepersistPause = 200 * time.Millisecond

	c.RefreshTimeout = 5 * time.Second
	c.AuthCallTimeout = 10 * time.Second
	c.RoleLookupTimeout = time.Second
	c.ProfileTimeout = 3 * time.Second
	c.MaxRedirects = 3
	c.PublicPaths = append([]string(nil), routes.DefaultPublic...)
	c.LoadingEscapeAfter = 3 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment and command-line flags (if present).
// Later sources take precedence over earlier ones.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{MaxRetries: c.MaxRetries, BaseDelay: c.RetryBaseDelay, Factor: c.RetryFactor}
}

func (c *Config) Session() session.Config {
	return session.Config{
		IdentityTimeout:    c.IdentityTimeout,
		SessionTimeout:     c.SessionTimeout,
		SafetyTimeout:      c.SafetyTimeout,
		SafetyCheckTimeout: c.SafetyCheckTimeout,
		CacheTTL:           c.StatusCacheTTL,
		MinInterval:        c.MinInterval,
		Retry:              c.RetryPolicy(),
	}
}

func (c *Config) Recovery() recovery.Config {
	return recovery.Config{
		IdentityTimeout: c.RecoveryIdentityTimeout,
		RepersistPause:  c.RepersistPause,
		SessionTimeout:  c.RecoverySessionTimeout,
	}
}

func (c *Config) Refresh() refresh.Config {
	return refresh.Config{Timeout: c.RefreshTimeout, Policy: c.RetryPolicy()}
}

func (c *Config) Roles() roles.Config {
	return roles.Config{LookupTimeout: c.RoleLookupTimeout, EnsureTimeout: c.ProfileTimeout}
}
