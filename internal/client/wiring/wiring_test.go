package wiring

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend/backendtest"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/broadcast"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/session"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, srv *backendtest.Server) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BackendURL = srv.URL
	cfg.AnonKey = backendtest.AnonKey
	cfg.ProjectRef = "proj"
	cfg.StatePath = filepath.Join(t.TempDir(), "state.db")
	cfg.MinInterval = 0
	return cfg
}

func TestBuild_SignInPersistsEverywhere(t *testing.T) {
	srv := backendtest.NewServer(t)
	u := srv.AddUser("ann@example.com", "secret", nil)
	mr := miniredis.RunT(t)

	cfg := testConfig(t, srv)
	cfg.RedisAddr = mr.Addr()
	cfg.StorageSecret = "correct horse battery staple"
	reg := prometheus.NewRegistry()

	ctx := context.Background()
	s, err := Build(ctx, cfg, Options{Registerer: reg})
	require.NoError(t, err)

	got, err := s.Auth.SignIn(ctx, "ann@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, broadcast.Authenticated, s.Auth.Snapshot().Status)

	assert.True(t, mr.Exists("sessionkeeper:"+common.ProjectCombinedKey("proj")))
	assert.NotNil(t, srv.Profile(u.ID), "profile provisioned through the REST source")

	access := s.Auth.Session().AccessToken
	require.NoError(t, s.Close())

	// sealed at rest
	db, err := sql.Open("sqlite", cfg.StatePath)
	require.NoError(t, err)
	defer db.Close()
	var raw []byte
	require.NoError(t, db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, common.AccessTokenKey).Scan(&raw))
	assert.NotEqual(t, access, string(raw))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "sessionkeeper_bootstrap_total")
}

func TestBuild_RestartRestoresSession(t *testing.T) {
	srv := backendtest.NewServer(t)
	u := srv.AddUser("ann@example.com", "secret", nil)
	cfg := testConfig(t, srv)
	cfg.StorageSecret = "s3cret"
	ctx := context.Background()

	first, err := Build(ctx, cfg, Options{})
	require.NoError(t, err)
	_, err = first.Auth.SignIn(ctx, "ann@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Build(ctx, cfg, Options{})
	require.NoError(t, err)
	defer second.Close()

	snap := second.Auth.Bootstrap(ctx, "/dashboard")
	require.Equal(t, broadcast.Authenticated, snap.Status)
	assert.Equal(t, u.ID, snap.User.ID)
	assert.Equal(t, session.MethodIdentity, snap.Method)
}

func TestBuild_SignOutForgetsSession(t *testing.T) {
	srv := backendtest.NewServer(t)
	srv.AddUser("ann@example.com", "secret", nil)
	cfg := testConfig(t, srv)
	ctx := context.Background()

	s, err := Build(ctx, cfg, Options{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Auth.SignIn(ctx, "ann@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, s.Auth.SignOut(ctx))

	_, ok := s.Credentials.Read(ctx)
	assert.False(t, ok)
	assert.Equal(t, broadcast.Unauthenticated, s.Auth.Snapshot().Status)
}

func TestBuild_UnreachableRedisIsSkipped(t *testing.T) {
	srv := backendtest.NewServer(t)
	cfg := testConfig(t, srv)
	cfg.RedisAddr = "127.0.0.1:1"

	s, err := Build(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer s.Close()

	for _, a := range s.Credentials.Inspect(context.Background()) {
		assert.NotEqual(t, "redis", a.Store)
	}
}

func TestBuild_BadPostgresFails(t *testing.T) {
	srv := backendtest.NewServer(t)
	cfg := testConfig(t, srv)
	cfg.PostgresDSN = "postgres://nobody@127.0.0.1:1/app?connect_timeout=1&sslmode=disable"

	s, err := Build(context.Background(), cfg, Options{})
	require.Error(t, err)
	assert.Nil(t, s)
}

func TestBuild_GRPCProbeJoinsPing(t *testing.T) {
	srv := backendtest.NewServer(t)
	cfg := testConfig(t, srv)
	cfg.GRPCAddr = "127.0.0.1:1"

	s, err := Build(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.Auth.Ping(context.Background()))
}

func TestBuild_PingHealthyBackend(t *testing.T) {
	srv := backendtest.NewServer(t)
	s, err := Build(context.Background(), testConfig(t, srv), Options{})
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Auth.Ping(context.Background()))
}
