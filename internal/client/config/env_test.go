package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv_Variables(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}
	t.Chdir(t.TempDir())

	t.Setenv("SESSIONKEEPER_BACKEND_URL", "https://env.example")
	t.Setenv("SESSIONKEEPER_SAFETY_TIMEOUT", "15s")
	t.Setenv("SESSIONKEEPER_PUBLIC_PATHS", "/,/login,/about")
	t.Setenv("SESSIONKEEPER_RETRY_FACTOR", "2")

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NoError(t, parseEnv(cfg))

	assert.Equal(t, "https://env.example", cfg.BackendURL)
	assert.Equal(t, 15*time.Second, cfg.SafetyTimeout)
	assert.Equal(t, []string{"/", "/login", "/about"}, cfg.PublicPaths)
	assert.Equal(t, 2.0, cfg.RetryFactor)
	assert.Equal(t, 8*time.Second, cfg.SessionTimeout, "unset variables keep defaults")
}

func TestParseEnv_DotenvFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	file := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(file, []byte("SESSIONKEEPER_PROJECT_REF=fromfile\nSESSIONKEEPER_ANON_KEY=filekey\n"), 0o600))
	os.Args = []string{"testbin", "-env-file", file}

	// already set variables win over the file
	t.Setenv("SESSIONKEEPER_ANON_KEY", "realkey")
	// godotenv sets variables process-wide; make sure they are dropped
	t.Setenv("SESSIONKEEPER_PROJECT_REF", "")
	require.NoError(t, os.Unsetenv("SESSIONKEEPER_PROJECT_REF"))

	cfg := &Config{}
	require.NoError(t, parseEnv(cfg))

	assert.Equal(t, "fromfile", cfg.ProjectRef)
	assert.Equal(t, "realkey", cfg.AnonKey)
}

func TestParseEnv_MissingExplicitFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin", "-env-file", filepath.Join(t.TempDir(), "missing.env")}

	require.Error(t, parseEnv(&Config{}))
}

func TestParseEnv_BadValue(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}
	t.Chdir(t.TempDir())
	t.Setenv("SESSIONKEEPER_MAX_RETRIES", "many")

	require.Error(t, parseEnv(&Config{}))
}
