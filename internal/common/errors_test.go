package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"timeout", ErrTimeout, KindTimeout},
		{"wrapped timeout", fmt.Errorf("get user: %w", ErrTimeout), KindTimeout},
		{"context deadline", context.DeadlineExceeded, KindTimeout},
		{"malformed", fmt.Errorf("decode: %w", ErrMalformedCredential), KindMalformed},
		{"rejected", ErrUnauthorized, KindRejected},
		{"storage", fmt.Errorf("set: %w", ErrStorage), KindStorage},
		{"other", errors.New("boom"), KindOther},
		{"unavailable is other", ErrUnavailable, KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrTimeout))
	assert.True(t, IsTransient(fmt.Errorf("x: %w", ErrUnavailable)))
	assert.False(t, IsTransient(ErrUnauthorized))
	assert.False(t, IsTransient(ErrMalformedResponse))
	assert.False(t, IsTransient(nil))
}

func TestProjectCombinedKey(t *testing.T) {
	assert.Equal(t, "sb-abcd-auth-token", ProjectCombinedKey("abcd"))
}
