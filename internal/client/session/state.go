package session

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/broadcast"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/credstore"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/roles"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// finalize publishes the terminal snapshot for out. The role lookup runs
// after the first publish so it cannot delay the terminal status; a changed
// IsAdmin is published as a second transition.
func (b *Bootstrapper) finalize(ctx context.Context, logger logging.Logger, start time.Time, gen uint64, out outcome) broadcast.Snapshot {
	if ctx.Err() != nil || b.gen.Load() != gen {
		logger.Debug(ctx, "bootstrap result dropped", "method", out.method)
		return b.Broadcaster.Current()
	}

	prev := b.Broadcaster.Current()
	snap := broadcast.Snapshot{
		Status:  out.status,
		User:    out.user,
		Session: out.session,
		Partial: out.partial,
		Method:  out.method,
	}

	if out.status == broadcast.Authenticated {
		b.syncCredential(ctx, logger, out.session)
		if !out.partial {
			if err := b.Identity.Save(ctx, out.user); err != nil {
				logger.Warn(ctx, "identity cache write failed", "error", err)
			}
		}
		if prev.User != nil && out.user != nil && prev.User.ID == out.user.ID {
			snap.IsAdmin = prev.IsAdmin
		}
	}

	b.remember(snap)
	b.Broadcaster.Publish(snap)
	b.Metrics.BootstrapFinished(string(snap.Status), snap.Method, b.now().Sub(start))
	logger.Info(ctx, "auth status resolved",
		"status", snap.Status, "method", snap.Method, "partial", snap.Partial, "elapsed", b.now().Sub(start))

	if snap.Status == broadcast.Authenticated && b.Roles != nil && snap.User != nil {
		isAdmin := roles.IsAdmin(b.Roles.CheckUserRole(ctx, snap.User.ID))
		if isAdmin != snap.IsAdmin && b.gen.Load() == gen {
			snap.IsAdmin = isAdmin
			snap.UpdatedAt = time.Time{}
			b.remember(snap)
			b.Broadcaster.Publish(snap)
		}
	}

	return b.Broadcaster.Current()
}

// syncCredential writes a session that differs from the stored credential,
// e.g. one the backend client refreshed on its own.
func (b *Bootstrapper) syncCredential(ctx context.Context, logger logging.Logger, s *backend.Session) {
	if s == nil || s.AccessToken == "" {
		return
	}
	cur, ok := b.Credentials.Read(ctx)
	if ok && cur.AccessToken == s.AccessToken {
		return
	}
	next := credstore.Bundle{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, ExpiresAt: s.ExpiresAt}
	if next.RefreshToken == "" && ok {
		next.RefreshToken = cur.RefreshToken
	}
	if !b.Credentials.Write(ctx, next) {
		logger.Warn(ctx, "syncing confirmed session to storage failed")
	}
}

// Adopt installs a session obtained by signing in. Any run in flight is
// superseded.
func (b *Bootstrapper) Adopt(ctx context.Context, u *backend.User, s *backend.Session) broadcast.Snapshot {
	gen := b.gen.Add(1)
	logger := b.Logger.With("adopt", true)
	if u == nil && s != nil {
		u = s.User
	}
	return b.finalize(ctx, logger, b.now(), gen, outcome{
		status:  broadcast.Authenticated,
		user:    u,
		session: s,
		method:  MethodSignIn,
	})
}

// Clear forgets the credential and publishes unauthenticated.
func (b *Bootstrapper) Clear(ctx context.Context) broadcast.Snapshot {
	gen := b.gen.Add(1)
	logger := b.Logger.With("clear", true)
	b.purge(ctx, logger)
	return b.finalize(ctx, logger, b.now(), gen, unauthenticated(MethodSignOut))
}
