package credstore

import (
	"context"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)

	in := []byte("value")
	require.NoError(t, m.Set(ctx, "k", in))
	in[0] = 'X'

	v, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "value", string(v), "store keeps its own copy")

	require.NoError(t, m.Delete(ctx, "k"))
	require.NoError(t, m.Delete(ctx, "k"))
	assert.Empty(t, m.Keys())
}

func TestCookieStore(t *testing.T) {
	ctx := context.Background()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	c, err := NewCookieStore(jar, "http://127.0.0.1:54321/auth/v1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "cookie", c.Name())

	v, err := c.Get(ctx, common.AccessTokenKey)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, c.Set(ctx, common.AccessTokenKey, []byte("a b;c")))
	v, err = c.Get(ctx, common.AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "a b;c", string(v))

	require.NoError(t, c.Delete(ctx, common.AccessTokenKey))
	v, err = c.Get(ctx, common.AccessTokenKey)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCookieStore_RejectsBadOrigin(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	_, err = NewCookieStore(jar, "ftp://example.com", time.Hour)
	require.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := NewRedisStore(rdb, "portal:", time.Minute)
	assert.Equal(t, "redis", r.Name())

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, r.Set(ctx, "k", []byte("v")))
	assert.True(t, mr.Exists("portal:k"))
	assert.Equal(t, time.Minute, mr.TTL("portal:k"))

	v, err = r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))

	require.NoError(t, r.Delete(ctx, "k"))
	assert.False(t, mr.Exists("portal:k"))

	mr.Close()
	_, err = r.Get(ctx, "k")
	require.Error(t, err)
}

func TestRedisStore_AsReplica(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	kv := NewMemoryStore()
	replica := NewRedisStore(rdb, "", 0)
	acc := NewAccessor(Layout{Persistent: kv, Replicas: []Store{replica}, ProjectRef: "proj"}.Locations(), nil)

	b := sampleBundle()
	require.True(t, acc.Write(ctx, b))
	assert.True(t, mr.Exists(common.ProjectCombinedKey("proj")))

	// a second process sharing only the replica still finds the credential
	other := NewAccessor(Layout{Replicas: []Store{replica}, ProjectRef: "proj"}.Locations(), nil)
	got, ok := other.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, b.AccessToken, got.AccessToken)
}

func TestSealed(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	s := NewSealed(inner, "machine-secret")
	assert.Equal(t, "memory+sealed", s.Name())

	require.NoError(t, s.Set(ctx, "k", []byte("plain-token")))

	raw, err := inner.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "plain-token")

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "plain-token", string(v))

	missing, err := s.Get(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)

	wrong := NewSealed(inner, "other-secret")
	_, err = wrong.Get(ctx, "k")
	require.ErrorIs(t, err, common.ErrMalformedCredential)

	require.NoError(t, s.Delete(ctx, "k"))
	assert.Empty(t, inner.Keys())
}
