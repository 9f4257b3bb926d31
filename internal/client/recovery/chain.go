// Package recovery tries progressively weaker ways of confirming a stored
// credential before the caller gives up on it.
package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/credstore"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/metrics"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/token"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

const (
	MethodDirectIdentity    = "direct_identity"
	MethodRepersistRetry    = "repersist_retry"
	MethodExplicitSession   = "explicit_session"
	MethodPartialAcceptance = "partial_acceptance"
	MethodNone              = "none"
)

// Result of one Attempt. Partial is only ever set by the
// partial-acceptance step.
type Result struct {
	Success bool
	Method  string
	Partial bool
	User    *backend.User
	Session *backend.Session
}

// Credentials is the stored token pair the chain reads and re-persists.
type Credentials interface {
	Read(ctx context.Context) (credstore.Bundle, bool)
	Write(ctx context.Context, b credstore.Bundle) bool
}

// IdentityCache supplies the last confirmed user for partial acceptance.
type IdentityCache interface {
	Load(ctx context.Context) (*backend.User, error)
}

// Config bounds the backend calls made by the steps.
type Config struct {
	IdentityTimeout time.Duration
	RepersistPause  time.Duration
	SessionTimeout  time.Duration
}

// Chain is the ordered list of fallback steps tried when a stored
// credential could not be confirmed directly.
type Chain struct {
	client   backend.Client
	creds    Credentials
	identity IdentityCache
	cfg      Config
	logger   logging.Logger
	metrics  metrics.Recorder
}

// NewChain returns a Chain over client. A nil logger or recorder is
// replaced by a no-op.
func NewChain(client backend.Client, creds Credentials, identity IdentityCache, cfg Config, logger logging.Logger, rec metrics.Recorder) *Chain {
	return &Chain{
		client:   client,
		creds:    creds,
		identity: identity,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		metrics:  metrics.OrNop(rec),
	}
}

type step struct {
	name string
	run  func(ctx context.Context, accessToken string) (Result, error)
}

var errNoCredential = errors.New("no credential")

// Attempt runs the steps in order and stops at the first success.
func (c *Chain) Attempt(ctx context.Context, accessToken string) Result {
	steps := []step{
		{MethodDirectIdentity, c.directIdentity},
		{MethodRepersistRetry, c.repersistRetry},
		{MethodExplicitSession, c.explicitSession},
		{MethodPartialAcceptance, c.partialAcceptance},
	}

	for _, s := range steps {
		if ctx.Err() != nil {
			break
		}
		res, err := s.run(ctx, accessToken)
		c.metrics.RecoveryStep(s.name, err == nil)
		if err != nil {
			c.logger.Debug(ctx, "recovery step failed", "step", s.name, "error", err)
			continue
		}
		res.Success = true
		res.Method = s.name
		c.logger.Info(ctx, "session recovered", "method", s.name, "partial", res.Partial)
		return res
	}

	c.logger.Warn(ctx, "session recovery failed")
	return Result{Method: MethodNone}
}

func (c *Chain) directIdentity(ctx context.Context, _ string) (Result, error) {
	u, err := retry.WithTimeout(ctx, c.cfg.IdentityTimeout, c.client.GetUser)
	if err != nil {
		return Result{}, err
	}
	return Result{User: u}, nil
}

// known is the credential the chain works with: the caller's access token
// paired with whatever refresh token is stored.
func (c *Chain) known(ctx context.Context, accessToken string) (credstore.Bundle, bool) {
	b, ok := c.creds.Read(ctx)
	if accessToken == "" || (ok && b.AccessToken == accessToken) {
		return b, ok
	}
	nb := credstore.Bundle{AccessToken: accessToken, RefreshToken: b.RefreshToken}
	if exp, err := token.ExpiresAt(accessToken); err == nil {
		nb.ExpiresAt = exp.Unix()
	}
	return nb, true
}

func (c *Chain) repersistRetry(ctx context.Context, accessToken string) (Result, error) {
	b, ok := c.known(ctx, accessToken)
	if !ok {
		return Result{}, errNoCredential
	}
	if !c.creds.Write(ctx, b) {
		c.logger.Debug(ctx, "re-persist not verified, retrying identity anyway")
	}
	if err := retry.Sleep(ctx, c.cfg.RepersistPause); err != nil {
		return Result{}, err
	}
	return c.directIdentity(ctx, accessToken)
}

func (c *Chain) explicitSession(ctx context.Context, accessToken string) (Result, error) {
	b, ok := c.known(ctx, accessToken)
	if !ok {
		return Result{}, errNoCredential
	}

	set, err := retry.WithTimeout(ctx, c.cfg.SessionTimeout, func(ctx context.Context) (*backend.Session, error) {
		return c.client.SetSession(ctx, b.AccessToken, b.RefreshToken)
	})
	if err != nil {
		return Result{}, err
	}

	sess, err := retry.WithTimeout(ctx, c.cfg.SessionTimeout, c.client.GetSession)
	if err != nil {
		return Result{}, err
	}
	if sess == nil || sess.AccessToken == "" {
		return Result{}, backend.ErrNoSession
	}

	u := sess.User
	if u == nil && set != nil {
		u = set.User
	}
	return Result{User: u, Session: sess}, nil
}

func (c *Chain) partialAcceptance(ctx context.Context, accessToken string) (Result, error) {
	if _, ok := c.known(ctx, accessToken); !ok {
		return Result{}, errNoCredential
	}
	u, err := c.identity.Load(ctx)
	if err != nil {
		return Result{}, err
	}
	if u == nil {
		return Result{}, errors.New("no cached identity")
	}
	return Result{User: u, Partial: true}, nil
}
