package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/broadcast"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/credstore"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/token"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

type outcome struct {
	status  broadcast.Status
	user    *backend.User
	session *backend.Session
	partial bool
	method  string
}

func unauthenticated(method string) outcome {
	return outcome{status: broadcast.Unauthenticated, method: method}
}

var (
	errNotConfirmed   = errors.New("credential not confirmed")
	errCredentialGone = errors.New("credential disappeared")
)

// sequence is steps 2 to 7 of a run. It stops early once ctx is cancelled,
// which is how the safety timer abandons it.
func (b *Bootstrapper) sequence(ctx context.Context, logger logging.Logger, public bool) outcome {
	cred, has := b.Credentials.Read(ctx)
	if !has {
		// Without a credential the backend client has nothing to restore
		// from either, so protected routes need no network call.
		if public {
			return unauthenticated(MethodPublicRoute)
		}
		return unauthenticated(MethodNoCredential)
	}

	if token.IsMalformed(cred.AccessToken) {
		logger.Warn(ctx, "stored credential is malformed, purging")
		b.purge(ctx, logger)
		return unauthenticated(MethodMalformed)
	}

	b.restoring.Store(true)

	var result outcome
	var lastErr error
	err := retry.Do(ctx, b.cfg.Retry, func(ctx context.Context, attempt int) error {
		out, err := b.attempt(ctx, logger, public)
		if err == nil {
			result = out
			return nil
		}
		lastErr = err
		logger.Info(ctx, "bootstrap attempt failed", "attempt", attempt, "kind", common.Classify(err), "error", err)
		if errors.Is(err, errCredentialGone) {
			return err
		}
		return retry.Retryable(err)
	})
	if err == nil {
		return result
	}
	if ctx.Err() != nil {
		// abandoned: the safety check decides, nothing is erased here
		return unauthenticated(MethodSafetyTimeout)
	}

	if common.Classify(lastErr) == common.KindTimeout {
		logger.Warn(ctx, "bootstrap gave up on timeouts, keeping credential")
		return unauthenticated(MethodTimeout)
	}

	logger.Warn(ctx, "bootstrap retries exhausted, erasing credential", "error", lastErr)
	b.purge(ctx, logger)
	return unauthenticated(MethodExhausted)
}

// attempt is one pass over steps 3 to 5.
func (b *Bootstrapper) attempt(ctx context.Context, logger logging.Logger, public bool) (outcome, error) {
	cred, ok := b.Credentials.Read(ctx)
	if !ok {
		return outcome{}, errCredentialGone
	}
	if !b.Credentials.Write(ctx, cred) {
		logger.Debug(ctx, "re-persist not verified")
	}

	u, idErr := retry.WithTimeout(ctx, b.cfg.IdentityTimeout, b.Client.GetUser)
	if idErr == nil && u != nil {
		return outcome{
			status:  broadcast.Authenticated,
			user:    u,
			session: sessionFromBundle(cred, u),
			method:  MethodIdentity,
		}, nil
	}
	logger.Debug(ctx, "identity fetch failed", "error", idErr)

	s, sessErr := retry.WithTimeout(ctx, b.cfg.SessionTimeout, b.Client.GetSession)
	if sessErr == nil && s != nil && s.AccessToken != "" {
		user := s.User
		if user == nil {
			user = b.userFor(ctx, s.AccessToken)
		}
		return outcome{status: broadcast.Authenticated, user: user, session: s, method: MethodSession}, nil
	}
	logger.Debug(ctx, "session retrieval failed", "error", sessErr)

	if public {
		return unauthenticated(MethodPublicRoute), nil
	}
	if ctx.Err() != nil {
		return outcome{}, ctx.Err()
	}

	res := b.Recovery.Attempt(ctx, cred.AccessToken)
	if res.Success {
		user := res.User
		if user == nil {
			user = b.userFor(ctx, cred.AccessToken)
		}
		sess := res.Session
		if sess == nil {
			sess = sessionFromBundle(cred, user)
		}
		return outcome{
			status:  broadcast.Authenticated,
			user:    user,
			session: sess,
			partial: res.Partial,
			method:  res.Method,
		}, nil
	}

	if timedOut(idErr) || timedOut(sessErr) {
		return outcome{}, fmt.Errorf("%w: identity: %v, session: %v", common.ErrTimeout, idErr, sessErr)
	}
	return outcome{}, fmt.Errorf("%w: identity: %v, session: %v", errNotConfirmed, idErr, sessErr)
}

func timedOut(err error) bool {
	return err != nil && common.Classify(err) == common.KindTimeout
}

// userFor returns the cached identity when it belongs to the token's
// subject, or a bare user carrying only the id.
func (b *Bootstrapper) userFor(ctx context.Context, accessToken string) *backend.User {
	sub := token.Subject(accessToken)
	if cached, err := b.Identity.Load(ctx); err == nil && cached != nil && (sub == "" || cached.ID == sub) {
		return cached
	}
	return &backend.User{ID: sub}
}

// safetyCheck is the single cheap identity probe used when the sequence
// is about to overrun. It never erases anything.
func (b *Bootstrapper) safetyCheck(ctx context.Context, logger logging.Logger, budget time.Duration) outcome {
	cred, ok := b.Credentials.Read(ctx)
	if !ok || token.IsMalformed(cred.AccessToken) {
		return unauthenticated(MethodSafetyTimeout)
	}

	u, err := retry.WithTimeout(ctx, budget, b.Client.GetUser)
	if err != nil || u == nil {
		logger.Warn(ctx, "safety identity check failed", "error", err)
		return unauthenticated(MethodSafetyTimeout)
	}
	return outcome{
		status:  broadcast.Authenticated,
		user:    u,
		session: sessionFromBundle(cred, u),
		method:  MethodSafetyCheck,
	}
}

func (b *Bootstrapper) purge(ctx context.Context, logger logging.Logger) {
	if !b.Credentials.Erase(ctx) {
		logger.Warn(ctx, "credential erase incomplete")
	}
	if err := b.Identity.Clear(ctx); err != nil {
		logger.Warn(ctx, "identity cache clear failed", "error", err)
	}
}

func sessionFromBundle(cred credstore.Bundle, u *backend.User) *backend.Session {
	s := &backend.Session{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    cred.ExpiresAt,
		TokenType:    "bearer",
		User:         u,
	}
	if s.ExpiresAt == 0 {
		if exp, ok := cred.Expiry(); ok {
			s.ExpiresAt = exp.Unix()
		}
	}
	return s
}
