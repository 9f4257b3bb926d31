// Package services contains the consumer-facing services of the session
// core. This file defines the authentication service: the published
// {status, user, session} triple, sign-in/up/out, password reset, reload,
// role checks and profile provisioning.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/broadcast"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/roles"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/routes"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/session"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// ErrInvalidInput is returned before any network call when an e-mail or
// password is empty.
var ErrInvalidInput = errors.New("email and password are required")

// AuthService defines authentication operations for pages and the CLI.
//
// Contract:
//   - User/Session/IsLoading/IsAdmin/IsSessionRestoring read the last
//     published snapshot and never block.
//   - SignIn and SignUp install the new session and publish it.
//   - SignOut always clears local state, even when the backend call fails.
//   - Bootstrap runs the session bootstrap for a route path.
//   - ReloadAuthState re-confirms the held session without a page load.
//
// All methods must honor context cancellation/timeouts.
type AuthService interface {
	Snapshot() broadcast.Snapshot
	User() *backend.User
	Session() *backend.Session
	IsLoading() bool
	IsAdmin() bool
	IsSessionRestoring() bool

	Bootstrap(ctx context.Context, path string) broadcast.Snapshot
	SignUp(ctx context.Context, email, password string, data map[string]any) (*backend.User, error)
	SignIn(ctx context.Context, email, password string) (*backend.User, error)
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	ReloadAuthState(ctx context.Context) (broadcast.Snapshot, error)
	CheckUserRole(ctx context.Context, userID string) string
	EnsureUserProfile(ctx context.Context, u *backend.User) error
	Ping(ctx context.Context) error
	Subscribe(fn func(prev, next broadcast.Snapshot)) (unsubscribe func())
	Close(ctx context.Context) error
}

// Roles is the part of roles.Resolver the service exposes.
type Roles interface {
	CheckUserRole(ctx context.Context, userID string) string
	EnsureUserProfile(ctx context.Context, u *backend.User) error
	Forget(ctx context.Context)
}

// Pinger checks a data-plane dependency, e.g. the gRPC health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type AuthDeps struct {
	Client      backend.Client
	Boot        *session.Bootstrapper
	Broadcaster *broadcast.Broadcaster
	Roles       Roles
	// Guard is optional; when set its counter is reset on every transition
	// into authenticated.
	Guard *routes.RedirectGuard
	// Probes are checked by Ping after the auth backend.
	Probes []Pinger
	// ResetRedirect is the link target of password reset e-mails.
	ResetRedirect string
	// CallTimeout bounds each sign-up, sign-in, sign-out and reset call.
	// Zero leaves them bounded by the caller's context only.
	CallTimeout time.Duration
	Logger      logging.Logger
}

type authService struct {
	AuthDeps
	logger      logging.Logger
	unsubscribe func()
}

// NewAuthService constructs an AuthService over an already wired session
// core.
func NewAuthService(deps AuthDeps) AuthService {
	a := &authService{AuthDeps: deps, logger: logging.OrNop(deps.Logger).With("component", "auth")}
	a.unsubscribe = deps.Broadcaster.Subscribe(a.onTransition)
	return a
}

func (a *authService) onTransition(prev, next broadcast.Snapshot) {
	if a.Guard != nil && next.Status == broadcast.Authenticated && prev.Status != broadcast.Authenticated {
		a.Guard.Reset()
	}
}

func (a *authService) Snapshot() broadcast.Snapshot { return a.Broadcaster.Current() }

func (a *authService) User() *backend.User { return a.Broadcaster.Current().User }

func (a *authService) Session() *backend.Session { return a.Broadcaster.Current().Session }

// IsLoading is true until the first bootstrap reaches a terminal status.
func (a *authService) IsLoading() bool { return !a.Broadcaster.Current().Status.Terminal() }

func (a *authService) IsAdmin() bool { return a.Broadcaster.Current().IsAdmin }

func (a *authService) IsSessionRestoring() bool { return a.Boot.Restoring() }

func (a *authService) Bootstrap(ctx context.Context, path string) broadcast.Snapshot {
	return a.Boot.Run(ctx, path)
}

// SignUp creates an account. When the backend returns a session right away
// (no e-mail confirmation) it is adopted like a sign-in; otherwise the
// returned user is unconfirmed and nothing is published.
func (a *authService) SignUp(ctx context.Context, email, password string, data map[string]any) (*backend.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	type signUp struct {
		u *backend.User
		s *backend.Session
	}
	res, err := bounded(ctx, a.CallTimeout, func(ctx context.Context) (signUp, error) {
		u, s, err := a.Client.SignUp(ctx, email, password, data)
		return signUp{u, s}, err
	})
	u, s := res.u, res.s
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	if s == nil {
		a.logger.Info(ctx, "sign up pending confirmation", "user_id", userID(u))
		return u, nil
	}

	snap := a.Boot.Adopt(ctx, u, s)
	a.provision(ctx, snap.User)
	return snap.User, nil
}

func (a *authService) SignIn(ctx context.Context, email, password string) (*backend.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	s, err := bounded(ctx, a.CallTimeout, func(ctx context.Context) (*backend.Session, error) {
		return a.Client.SignInWithPassword(ctx, email, password)
	})
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	snap := a.Boot.Adopt(ctx, s.User, s)
	a.provision(ctx, snap.User)
	return snap.User, nil
}

// provision makes sure a freshly signed-in user has a profile row. A
// failure is logged; role checks fall back until the row exists.
func (a *authService) provision(ctx context.Context, u *backend.User) {
	if a.Roles == nil || u == nil {
		return
	}
	if err := a.Roles.EnsureUserProfile(ctx, u); err != nil {
		a.logger.Warn(ctx, "profile provisioning failed", "user_id", u.ID, "error", err)
	}
}

// SignOut revokes the session remotely and clears every local trace of it.
// The backend error, if any, is returned after the local state is gone.
func (a *authService) SignOut(ctx context.Context) error {
	_, remoteErr := bounded(ctx, a.CallTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.Client.SignOut(ctx)
	})
	if remoteErr != nil {
		a.logger.Warn(ctx, "remote sign out failed", "error", remoteErr)
	}

	a.Boot.Clear(ctx)
	if a.Roles != nil {
		a.Roles.Forget(ctx)
	}

	if remoteErr != nil {
		return fmt.Errorf("sign out: %w", remoteErr)
	}
	return nil
}

func (a *authService) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidInput
	}
	_, err := bounded(ctx, a.CallTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.Client.ResetPasswordForEmail(ctx, email, a.ResetRedirect)
	})
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

func (a *authService) ReloadAuthState(ctx context.Context) (broadcast.Snapshot, error) {
	return a.Broadcaster.Reload(ctx)
}

// CheckUserRole answers User when no resolver is wired.
func (a *authService) CheckUserRole(ctx context.Context, userID string) string {
	if a.Roles == nil {
		return roles.User
	}
	return a.Roles.CheckUserRole(ctx, userID)
}

func (a *authService) EnsureUserProfile(ctx context.Context, u *backend.User) error {
	if a.Roles == nil {
		return nil
	}
	return a.Roles.EnsureUserProfile(ctx, u)
}

// Ping checks the auth backend, then every probe.
func (a *authService) Ping(ctx context.Context) error {
	if err := a.Client.Ping(ctx); err != nil {
		return err
	}
	for _, p := range a.Probes {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *authService) Subscribe(fn func(prev, next broadcast.Snapshot)) func() {
	return a.Broadcaster.Subscribe(fn)
}

// Close detaches the service from the broadcaster.
func (a *authService) Close(ctx context.Context) error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return nil
}

// bounded runs fn under d, or under ctx alone when d is not positive.
func bounded[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	return retry.WithTimeout(ctx, d, fn)
}

func userID(u *backend.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

// IsUnavailable reports whether err means the backend could not be reached,
// as opposed to a rejected request.
func IsUnavailable(err error) bool {
	return common.IsTransient(err)
}
