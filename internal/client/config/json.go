package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds. Absent keys leave the
// runtime Config untouched, hence the pointers.
type JsonConfig struct {
	BackendURL    *string `json:"backend_url"`
	AnonKey       *string `json:"anon_key"`
	ProjectRef    *string `json:"project_ref"`
	ResetRedirect *string `json:"reset_redirect"`

	StatePath     *string `json:"state_path"`
	StorageSecret *string `json:"storage_secret"`
	RedisAddr     *string `json:"redis_addr"`
	PostgresDSN   *string `json:"postgres_dsn"`

	GRPCAddr   *string `json:"grpc_addr"`
	ListenAddr *string `json:"listen_addr"`
	LogLevel   *string `json:"log_level"`

	IdentityTimeout    *timex.Duration `json:"identity_timeout"`
	SessionTimeout     *timex.Duration `json:"session_timeout"`
	SafetyTimeout      *timex.Duration `json:"safety_timeout"`
	SafetyCheckTimeout *timex.Duration `json:"safety_check_timeout"`
	StatusCacheTTL     *timex.Duration `json:"status_cache_ttl"`
	MinInterval        *timex.Duration `json:"min_interval"`
	MaxRetries         *int            `json:"max_retries"`
	RetryBaseDelay     *timex.Duration `json:"retry_base_delay"`
	RetryFactor        *float64        `json:"retry_factor"`

	RecoveryIdentityTimeout *timex.Duration `json:"recovery_identity_timeout"`
	RecoverySessionTimeout  *timex.Duration `json:"recovery_session_timeout"`
	RepersistPause          *timex.Duration `json:"repersist_pause"`

	RefreshTimeout      *timex.Duration `json:"refresh_timeout"`
	AuthCallTimeout     *timex.Duration `json:"auth_call_timeout"`
	RoleLookupTimeout   *timex.Duration `json:"role_lookup_timeout"`
	ProfileTimeout      *timex.Duration `json:"profile_timeout"`
	MaxRedirects        *int            `json:"max_redirects"`
	PublicPaths         []string        `json:"public_paths"`
	LoadingEscapeAfter  *timex.Duration `json:"loading_escape_after"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
}

// parseJson overlays cfg with values from the JSON file named by -c or
// -config. Without either flag nothing is loaded.
func parseJson(cfg *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return nil
	}
	return loadJsonFile(cfg, jsonConfigFile)
}

func loadJsonFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	jc.apply(cfg)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.BackendURL, jc.BackendURL)
	setString(&cfg.AnonKey, jc.AnonKey)
	setString(&cfg.ProjectRef, jc.ProjectRef)
	setString(&cfg.ResetRedirect, jc.ResetRedirect)
	setString(&cfg.StatePath, jc.StatePath)
	setString(&cfg.StorageSecret, jc.StorageSecret)
	setString(&cfg.RedisAddr, jc.RedisAddr)
	setString(&cfg.PostgresDSN, jc.PostgresDSN)
	setString(&cfg.GRPCAddr, jc.GRPCAddr)
	setString(&cfg.ListenAddr, jc.ListenAddr)
	setString(&cfg.LogLevel, jc.LogLevel)

	setDuration(&cfg.IdentityTimeout, jc.IdentityTimeout)
	setDuration(&cfg.SessionTimeout, jc.SessionTimeout)
	setDuration(&cfg.SafetyTimeout, jc.SafetyTimeout)
	setDuration(&cfg.SafetyCheckTimeout, jc.SafetyCheckTimeout)
	setDuration(&cfg.StatusCacheTTL, jc.StatusCacheTTL)
	setDuration(&cfg.MinInterval, jc.MinInterval)
	setDuration(&cfg.RetryBaseDelay, jc.RetryBaseDelay)
	setDuration(&cfg.RecoveryIdentityTimeout, jc.RecoveryIdentityTimeout)
	setDuration(&cfg.RecoverySessionTimeout, jc.RecoverySessionTimeout)
	setDuration(&cfg.RepersistPause, jc.RepersistPause)
	setDuration(&cfg.RefreshTimeout, jc.RefreshTimeout)
	setDuration(&cfg.AuthCallTimeout, jc.AuthCallTimeout)
	setDuration(&cfg.RoleLookupTimeout, jc.RoleLookupTimeout)
	setDuration(&cfg.ProfileTimeout, jc.ProfileTimeout)
	setDuration(&cfg.LoadingEscapeAfter, jc.LoadingEscapeAfter)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)

	if jc.MaxRetries != nil {
		cfg.MaxRetries = *jc.MaxRetries
	}
	if jc.RetryFactor != nil {
		cfg.RetryFactor = *jc.RetryFactor
	}
	if jc.MaxRedirects != nil {
		cfg.MaxRedirects = *jc.MaxRedirects
	}
	if jc.PublicPaths != nil {
		cfg.PublicPaths = jc.PublicPaths
	}
}
