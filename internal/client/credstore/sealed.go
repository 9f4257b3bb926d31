package credstore

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/cryptox"
)

var sealSalt = []byte("sessionkeeper/credstore/v1")

// Sealed encrypts values before handing them to the wrapped store.
type Sealed struct {
	inner Store
	key   []byte
}

func NewSealed(inner Store, secret string) *Sealed {
	return &Sealed{inner: inner, key: cryptox.DeriveKey([]byte(secret), sealSalt)}
}

func (s *Sealed) Name() string { return s.inner.Name() + "+sealed" }

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	blob, err := s.inner.Get(ctx, key)
	if err != nil || blob == nil {
		return blob, err
	}
	plain, err := cryptox.Open(blob, s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", common.ErrMalformedCredential, key, err)
	}
	return plain, nil
}

func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	blob, err := cryptox.Seal(value, s.key)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, blob)
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
