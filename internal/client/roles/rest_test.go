package roles

import (
	"context"
	"net/http"
	"testing"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend/backendtest"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/credstore"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/transport"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noRefresh struct{}

func (noRefresh) Refresh(context.Context) bool { return false }

func restFixture(t *testing.T) (*backendtest.Server, backend.User, *RESTSource) {
	t.Helper()
	srv := backendtest.NewServer(t)
	u := srv.AddUser("ann@example.com", "secret", nil)
	sess := srv.Issue("ann@example.com")

	creds := credstore.NewAccessor(credstore.Layout{Persistent: credstore.NewMemoryStore()}.Locations(), nil)
	require.True(t, creds.Write(context.Background(), credstore.Bundle{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken}))

	client := &http.Client{Transport: transport.NewRoundTripper(nil, creds, noRefresh{}, backendtest.AnonKey, nil, nil)}
	return srv, u, NewRESTSource(srv.URL, client)
}

func TestRESTSource_LookupRole(t *testing.T) {
	srv, u, s := restFixture(t)
	ctx := context.Background()

	_, err := s.LookupRole(ctx, u.ID)
	require.ErrorIs(t, err, ErrNoProfile)

	srv.SetProfile(u.ID, Admin)
	role, err := s.LookupRole(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, Admin, role)
}

func TestRESTSource_EnsureProfile(t *testing.T) {
	srv, u, s := restFixture(t)
	ctx := context.Background()

	created, err := s.EnsureProfile(ctx, &u, User)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, u.ID, srv.Profile(u.ID)["id"])

	created, err = s.EnsureProfile(ctx, &u, User)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestRESTSource_Unauthorized(t *testing.T) {
	srv, u, s := restFixture(t)
	srv.RevokeAll()

	_, err := s.LookupRole(context.Background(), u.ID)
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestRESTSource_Outage(t *testing.T) {
	srv, u, s := restFixture(t)
	srv.SetDown(true)

	_, err := s.LookupRole(context.Background(), u.ID)
	require.ErrorIs(t, err, common.ErrUnavailable)
}
