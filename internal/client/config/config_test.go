package config

import (
	"os"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/session"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:54321", c.BackendURL)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 3, c.MaxRedirects)
	assert.Equal(t, 3*time.Second, c.LoadingEscapeAfter)
	assert.Equal(t, time.Second, c.RoleLookupTimeout)
	assert.Equal(t, 10*time.Second, c.AuthCallTimeout)
	assert.Empty(t, cmp.Diff(session.DefaultConfig(), c.Session()))
}

func TestLoadDefaults_RecoveryStepsFitTheSafetyBound(t *testing.T) {
	var c Config
	c.LoadDefaults()

	r := c.Recovery()
	for _, d := range []time.Duration{r.IdentityTimeout, r.SessionTimeout} {
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 4*time.Second)
	}
	assert.Less(t, c.SafetyCheckTimeout, c.SafetyTimeout)
}

func TestLoadConfig_Precedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	t.Chdir(t.TempDir())

	path := writeTempJSON(t, "", "", map[string]any{
		"backend_url": "http://json",
		"anon_key":    "json-key",
		"project_ref": "json-ref",
	})
	t.Setenv("SESSIONKEEPER_ANON_KEY", "env-key")
	t.Setenv("SESSIONKEEPER_PROJECT_REF", "env-ref")
	os.Args = []string{"cmd", "-config", path, "-p", "flag-ref"}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "http://json", cfg.BackendURL)
	assert.Equal(t, "env-key", cfg.AnonKey)
	assert.Equal(t, "flag-ref", cfg.ProjectRef)
}

func TestConfig_ComponentViews(t *testing.T) {
	c := Config{
		RefreshTimeout:    2 * time.Second,
		MaxRetries:        1,
		RetryBaseDelay:    10 * time.Millisecond,
		RetryFactor:       2,
		RoleLookupTimeout: time.Second,
		ProfileTimeout:    3 * time.Second,
	}

	assert.Equal(t, retry.Policy{MaxRetries: 1, BaseDelay: 10 * time.Millisecond, Factor: 2}, c.Refresh().Policy)
	assert.Equal(t, 2*time.Second, c.Refresh().Timeout)
	assert.Equal(t, time.Second, c.Roles().LookupTimeout)
	assert.Equal(t, 3*time.Second, c.Roles().EnsureTimeout)
}
