// Package backendtest provides test doubles for backend.Client: a scriptable
// in-process fake and an httptest emulator of the auth and profile APIs.
package backendtest

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
)

// Fake is a backend.Client whose behaviour is set per method. Unset
// methods fail with backend.ErrNoSession (or succeed for SignOut, Ping and
// ResetPasswordForEmail).
type Fake struct {
	GetUserFunc        func(ctx context.Context) (*backend.User, error)
	GetSessionFunc     func(ctx context.Context) (*backend.Session, error)
	RefreshSessionFunc func(ctx context.Context, refreshToken string) (*backend.Session, error)
	SetSessionFunc     func(ctx context.Context, accessToken, refreshToken string) (*backend.Session, error)
	SignInFunc         func(ctx context.Context, email, password string) (*backend.Session, error)
	SignUpFunc         func(ctx context.Context, email, password string, data map[string]any) (*backend.User, *backend.Session, error)
	SignOutFunc        func(ctx context.Context) error
	ResetFunc          func(ctx context.Context, email, redirectTo string) error
	PingFunc           func(ctx context.Context) error

	mu    sync.Mutex
	calls map[string]int
}

var _ backend.Client = (*Fake)(nil)

// Block waits for ctx and returns its error. Use it to simulate a call that
// never answers.
func Block(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *Fake) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

// Calls returns how many times the named method ran.
func (f *Fake) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// TotalCalls counts every call made to the fake.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *Fake) GetUser(ctx context.Context) (*backend.User, error) {
	f.hit("GetUser")
	if f.GetUserFunc == nil {
		return nil, backend.ErrNoSession
	}
	return f.GetUserFunc(ctx)
}

func (f *Fake) GetSession(ctx context.Context) (*backend.Session, error) {
	f.hit("GetSession")
	if f.GetSessionFunc == nil {
		return nil, backend.ErrNoSession
	}
	return f.GetSessionFunc(ctx)
}

func (f *Fake) RefreshSession(ctx context.Context, refreshToken string) (*backend.Session, error) {
	f.hit("RefreshSession")
	if f.RefreshSessionFunc == nil {
		return nil, backend.ErrNoSession
	}
	return f.RefreshSessionFunc(ctx, refreshToken)
}

func (f *Fake) SetSession(ctx context.Context, accessToken, refreshToken string) (*backend.Session, error) {
	f.hit("SetSession")
	if f.SetSessionFunc == nil {
		return nil, backend.ErrNoSession
	}
	return f.SetSessionFunc(ctx, accessToken, refreshToken)
}

func (f *Fake) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	f.hit("SignInWithPassword")
	if f.SignInFunc == nil {
		return nil, backend.ErrUnauthorized
	}
	return f.SignInFunc(ctx, email, password)
}

func (f *Fake) SignUp(ctx context.Context, email, password string, data map[string]any) (*backend.User, *backend.Session, error) {
	f.hit("SignUp")
	if f.SignUpFunc == nil {
		return nil, nil, backend.ErrUnavailable
	}
	return f.SignUpFunc(ctx, email, password, data)
}

func (f *Fake) SignOut(ctx context.Context) error {
	f.hit("SignOut")
	if f.SignOutFunc == nil {
		return nil
	}
	return f.SignOutFunc(ctx)
}

func (f *Fake) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	f.hit("ResetPasswordForEmail")
	if f.ResetFunc == nil {
		return nil
	}
	return f.ResetFunc(ctx, email, redirectTo)
}

func (f *Fake) Ping(ctx context.Context) error {
	f.hit("Ping")
	if f.PingFunc == nil {
		return nil
	}
	return f.PingFunc(ctx)
}
