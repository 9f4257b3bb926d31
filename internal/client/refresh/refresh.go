// Package refresh exchanges the stored refresh token for a new pair and
// spreads the result to every place that holds a credential.
package refresh

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/credstore"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/metrics"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Credentials is the part of credstore.Accessor the refresher needs.
type Credentials interface {
	Read(ctx context.Context) (credstore.Bundle, bool)
	Write(ctx context.Context, b credstore.Bundle) bool
}

type Config struct {
	// Timeout bounds each backend call.
	Timeout time.Duration
	// Policy retries the refresh call on transient errors only.
	Policy retry.Policy
}

type Refresher struct {
	creds   Credentials
	client  backend.Client
	cfg     Config
	logger  logging.Logger
	metrics metrics.Recorder
	group   singleflight.Group
}

func NewRefresher(creds Credentials, client backend.Client, cfg Config, logger logging.Logger, rec metrics.Recorder) *Refresher {
	return &Refresher{
		creds:   creds,
		client:  client,
		cfg:     cfg,
		logger:  logging.OrNop(logger),
		metrics: metrics.OrNop(rec),
	}
}

// Refresh reports whether a new token pair was obtained and every alias
// now returns it.
// Concurrent callers share one backend exchange. It never panics and never
// returns an error.
func (r *Refresher) Refresh(ctx context.Context) bool {
	v, _, _ := r.group.Do("refresh", func() (any, error) {
		return r.refresh(ctx), nil
	})
	ok, _ := v.(bool)
	r.metrics.Refresh(ok)
	return ok
}

func (r *Refresher) refresh(ctx context.Context) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error(ctx, "refresh panicked", "panic", p)
			ok = false
		}
	}()

	current, found := r.creds.Read(ctx)
	if !found || current.RefreshToken == "" {
		r.logger.Debug(ctx, "refresh skipped: no stored refresh token")
		return false
	}

	var sess *backend.Session
	err := retry.Do(ctx, r.cfg.Policy, func(ctx context.Context, attempt int) error {
		s, err := retry.WithTimeout(ctx, r.cfg.Timeout, func(ctx context.Context) (*backend.Session, error) {
			return r.client.RefreshSession(ctx, current.RefreshToken)
		})
		if err != nil {
			r.logger.Debug(ctx, "refresh attempt failed", "attempt", attempt, "error", err)
			if common.IsTransient(err) {
				return retry.Retryable(err)
			}
			return err
		}
		sess = s
		return nil
	})
	if err != nil {
		r.logger.Warn(ctx, "refresh failed", "kind", common.Classify(err), "error", err)
		return false
	}
	if sess == nil || sess.AccessToken == "" {
		r.logger.Warn(ctx, "refresh returned no access token")
		return false
	}

	next := credstore.Bundle{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}

	persisted := r.creds.Write(ctx, next)
	if !persisted {
		r.logger.Warn(ctx, "refreshed credential could not be verified in storage")
	}

	// The backend client may keep its own copy; push the pair explicitly.
	// A failed push is logged only: storage is what later reads trust.
	_, err = retry.WithTimeout(ctx, r.cfg.Timeout, func(ctx context.Context) (*backend.Session, error) {
		return r.client.SetSession(ctx, next.AccessToken, next.RefreshToken)
	})
	if err != nil {
		r.logger.Warn(ctx, "pushing refreshed session failed", "error", err)
	}

	return persisted
}
