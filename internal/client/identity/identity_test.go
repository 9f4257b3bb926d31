package identity

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/credstore"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	c := NewCache(credstore.NewMemoryStore())

	got, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	u := &backend.User{ID: "u1", Email: "ann@example.com", AppMetadata: map[string]any{"role": "admin"}}
	require.NoError(t, c.Save(ctx, u))

	got, err = c.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(u, got); diff != "" {
		t.Fatalf("loaded user mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, c.Clear(ctx))
	got, err = c.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_IgnoresEmptyUser(t *testing.T) {
	kv := credstore.NewMemoryStore()
	c := NewCache(kv)

	require.NoError(t, c.Save(context.Background(), nil))
	require.NoError(t, c.Save(context.Background(), &backend.User{}))
	assert.Empty(t, kv.Keys())
}

func TestCache_CorruptBlobIsAbsent(t *testing.T) {
	ctx := context.Background()
	kv := credstore.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, common.IdentityKey, []byte("{not json")))

	got, err := NewCache(kv).Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
