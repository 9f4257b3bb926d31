// Package metadata is the persistent key-value store of the local state
// database. Credential aliases and the identity copy live here.
package metadata

import (
	"context"
)

// Repository is a byte-valued key-value store. Get returns (nil, nil) for
// an absent key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
