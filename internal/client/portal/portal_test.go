package portal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend/backendtest"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/broadcast"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/routes"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/wiring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	auth    services.AuthService
	backend *backendtest.Server
	web     *httptest.Server
	client  *http.Client
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv := backendtest.NewServer(t)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BackendURL = srv.URL
	cfg.AnonKey = backendtest.AnonKey
	cfg.ProjectRef = "proj"
	cfg.StatePath = filepath.Join(t.TempDir(), "state.db")
	cfg.MinInterval = 0
	cfg.StatusCacheTTL = 0

	reg := prometheus.NewRegistry()
	stack, err := wiring.Build(context.Background(), cfg, wiring.Options{Registerer: reg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Close() })

	p := New(Options{
		Auth:        stack.Auth,
		Guard:       stack.Guard,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		EscapeAfter: cfg.LoadingEscapeAfter,
	})
	web := httptest.NewServer(p)
	t.Cleanup(web.Close)

	return &env{
		auth:    stack.Auth,
		backend: srv,
		web:     web,
		client: &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}},
	}
}

func (e *env) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.web.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *env) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.web.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *env) signIn(t *testing.T, email, password string) {
	t.Helper()
	resp, _ := e.post(t, "/login", url.Values{"email": {email}, "password": {password}, "returnTo": {"/dashboard"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestPortal_ColdProtectedRouteRedirectsOnce(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.get(t, "/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?returnTo=%2Fdashboard", resp.Header.Get("Location"))
	assert.Zero(t, e.backend.TotalHits(), "no credential means no network")
}

func TestPortal_RedirectCap(t *testing.T) {
	e := newEnv(t)

	for i := 0; i < 3; i++ {
		resp, _ := e.get(t, "/dashboard")
		require.Equal(t, http.StatusSeeOther, resp.StatusCode, "redirect %d", i+1)
	}

	resp, body := e.get(t, "/dashboard")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Sign in required")

	_, metrics := e.get(t, "/metrics")
	assert.Contains(t, metrics, "sessionkeeper_redirect_cap_reached_total 1")
}

func TestPortal_PublicPagesRender(t *testing.T) {
	e := newEnv(t)

	for _, p := range []string{"/", "/about", "/pricing", "/login", "/signup", "/forgot-password", "/reset-password"} {
		resp, _ := e.get(t, p)
		assert.Equal(t, http.StatusOK, resp.StatusCode, p)
	}
}

func TestPortal_SignInThenDashboard(t *testing.T) {
	e := newEnv(t)
	e.backend.AddUser("ann@example.com", "secret", nil)

	e.signIn(t, "ann@example.com", "secret")

	resp, body := e.get(t, "/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Signed in as ann@example.com (user)")

	resp, _ = e.get(t, "/admin")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = e.get(t, "/login")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode, "signed-in users skip the form")
}

func TestPortal_SignInRejected(t *testing.T) {
	e := newEnv(t)
	e.backend.AddUser("ann@example.com", "secret", nil)

	resp, body := e.post(t, "/login", url.Values{"email": {"ann@example.com"}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid e-mail or password.")

	resp, _ = e.post(t, "/login", url.Values{"email": {""}, "password": {""}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPortal_AdminFromAppMetadata(t *testing.T) {
	e := newEnv(t)
	e.backend.AddUser("boss@example.com", "secret", map[string]any{"role": "admin"})

	e.signIn(t, "boss@example.com", "secret")

	resp, _ := e.get(t, "/admin")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, body := e.get(t, "/api/session")
	var v sessionView
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	assert.True(t, v.IsAdmin)
	assert.Equal(t, broadcast.Authenticated, v.Status)
}

func TestPortal_SelfAssignedRoleIsNotAdmin(t *testing.T) {
	e := newEnv(t)

	u, err := e.auth.SignUp(context.Background(), "mallory@example.com", "secret", map[string]any{"role": "admin"})
	require.NoError(t, err)
	require.Equal(t, broadcast.Authenticated, e.auth.Snapshot().Status)

	resp, _ := e.get(t, "/admin")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, body := e.get(t, "/api/session")
	var v sessionView
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	assert.False(t, v.IsAdmin)

	profile := e.backend.Profile(u.ID)
	require.NotNil(t, profile)
	assert.Equal(t, "user", profile["role"])
}

func TestPortal_SignOut(t *testing.T) {
	e := newEnv(t)
	e.backend.AddUser("ann@example.com", "secret", nil)
	e.signIn(t, "ann@example.com", "secret")

	resp, _ := e.post(t, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, routes.LoginPath, resp.Header.Get("Location"))

	_, body := e.get(t, "/api/session")
	var v sessionView
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	assert.Equal(t, broadcast.Unauthenticated, v.Status)
}

func TestPortal_SignUpWithoutConfirmation(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.post(t, "/signup", url.Values{"email": {"new@example.com"}, "password": {"secret"}, "full_name": {"New"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestPortal_ForgotPassword(t *testing.T) {
	e := newEnv(t)

	resp, body := e.post(t, "/forgot-password", url.Values{"email": {"ann@example.com"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "reset link is on its way")
	assert.Equal(t, 1, e.backend.Hits("/auth/v1/recover"))
}

func TestPortal_ReloadAndHealth(t *testing.T) {
	e := newEnv(t)
	e.backend.AddUser("ann@example.com", "secret", nil)
	e.signIn(t, "ann@example.com", "secret")

	resp, err := e.client.Post(e.web.URL+"/api/reload", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var v sessionView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, broadcast.Authenticated, v.Status)

	hr, _ := e.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, hr.StatusCode)

	e.backend.SetDown(true)
	hr, _ = e.get(t, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, hr.StatusCode)
}

// checkingAuth never reaches a terminal status.
type checkingAuth struct {
	services.AuthService
}

func (checkingAuth) Bootstrap(context.Context, string) broadcast.Snapshot {
	return broadcast.Snapshot{Status: broadcast.Checking}
}

func TestPortal_LoadingPageEscapeHatch(t *testing.T) {
	p := New(Options{Auth: checkingAuth{}, EscapeAfter: 3 * time.Second})
	now := time.Unix(1000, 0)
	p.now = func() time.Time { return now }

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Checking your session")
	assert.NotContains(t, rec.Body.String(), "Retry now")

	now = now.Add(3 * time.Second)
	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "Retry now"))
}
