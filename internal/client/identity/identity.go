// Package identity keeps a denormalized copy of the last user the backend
// confirmed. It is only a hint: nothing is authorized from it alone.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type record struct {
	User    backend.User `json:"user"`
	SavedAt int64        `json:"saved_at"`
}

type Cache struct {
	kv  KV
	now func() time.Time
}

func NewCache(kv KV) *Cache {
	return &Cache{kv: kv, now: time.Now}
}

func (c *Cache) Save(ctx context.Context, u *backend.User) error {
	if u == nil || u.ID == "" {
		return nil
	}
	raw, err := json.Marshal(record{User: *u, SavedAt: c.now().Unix()})
	if err != nil {
		return err
	}
	if err := c.kv.Set(ctx, common.IdentityKey, raw); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	return nil
}

// Load returns the cached user or nil. A corrupt blob counts as absent.
func (c *Cache) Load(ctx context.Context) (*backend.User, error) {
	raw, err := c.kv.Get(ctx, common.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil || r.User.ID == "" {
		return nil, nil
	}
	return &r.User, nil
}

func (c *Cache) Clear(ctx context.Context) error {
	if err := c.kv.Delete(ctx, common.IdentityKey); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	return nil
}
