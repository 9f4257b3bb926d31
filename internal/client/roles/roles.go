// Package roles resolves a user's role and provisions the profile row that
// holds it.
//
// Resolution is a cascade: a confirmed cache row, then the role in the
// server-controlled app_metadata, then the profile source under a short
// deadline. Anything that is not read from the profile source is cached as
// temporary and checked again next time. user_metadata is written by the
// user and is never consulted.
package roles

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/repositories/rolecache"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

const (
	Admin = "admin"
	User  = "user"
)

func IsAdmin(role string) bool { return role == Admin }

var ErrNoProfile = errors.New("profile not found")

// ProfileSource is where confirmed roles live.
type ProfileSource interface {
	// LookupRole returns ErrNoProfile when the user has no row.
	LookupRole(ctx context.Context, userID string) (string, error)
	// EnsureProfile inserts a row for u unless one exists and reports
	// whether it did.
	EnsureProfile(ctx context.Context, u *backend.User, role string) (bool, error)
}

// KnownUser returns the user the session core currently holds, if any.
type KnownUser func(ctx context.Context) *backend.User

type Config struct {
	LookupTimeout time.Duration
	EnsureTimeout time.Duration
}

type Resolver struct {
	cache  rolecache.Repository
	source ProfileSource
	known  KnownUser
	cfg    Config
	logger logging.Logger
}

func NewResolver(cache rolecache.Repository, source ProfileSource, known KnownUser, cfg Config, logger logging.Logger) *Resolver {
	return &Resolver{cache: cache, source: source, known: known, cfg: cfg, logger: logging.OrNop(logger)}
}

// CheckUserRole never fails: when nothing better is known the answer is
// User.
func (r *Resolver) CheckUserRole(ctx context.Context, userID string) string {
	if userID == "" {
		return User
	}

	cached, hasCached, err := r.cache.Get(ctx, userID)
	if err != nil {
		r.logger.Warn(ctx, "role cache read failed", "user_id", userID, "error", err)
	}
	if hasCached && !cached.Temporary {
		return cached.Role
	}

	if role := r.metadataRole(ctx, userID); role != "" {
		r.store(ctx, userID, role, true)
		return role
	}

	role, err := retry.WithTimeout(ctx, r.cfg.LookupTimeout, func(ctx context.Context) (string, error) {
		return r.source.LookupRole(ctx, userID)
	})
	switch {
	case err == nil && role != "":
		r.store(ctx, userID, role, false)
		return role
	case errors.Is(err, ErrNoProfile):
		r.logger.Debug(ctx, "no profile row, using default role", "user_id", userID)
	case err != nil:
		r.logger.Warn(ctx, "profile lookup failed, using fallback role", "user_id", userID, "error", err)
	}

	fallback := User
	if hasCached {
		fallback = cached.Role
	}
	r.store(ctx, userID, fallback, true)
	return fallback
}

func (r *Resolver) metadataRole(ctx context.Context, userID string) string {
	if r.known == nil {
		return ""
	}
	u := r.known(ctx)
	if u == nil || u.ID != userID {
		return ""
	}
	return u.AppMetadataString("role")
}

func (r *Resolver) store(ctx context.Context, userID, role string, temporary bool) {
	err := r.cache.Put(ctx, rolecache.Entry{UserID: userID, Role: role, Temporary: temporary})
	if err != nil {
		r.logger.Warn(ctx, "role cache write failed", "user_id", userID, "error", err)
	}
}

// EnsureUserProfile creates the profile row for u when it is missing. New
// rows always start as User; promotion happens on the backend.
func (r *Resolver) EnsureUserProfile(ctx context.Context, u *backend.User) error {
	if u == nil || u.ID == "" {
		return backend.ErrNoSession
	}
	role := User

	created, err := retry.WithTimeout(ctx, r.cfg.EnsureTimeout, func(ctx context.Context) (bool, error) {
		return r.source.EnsureProfile(ctx, u, role)
	})
	if err != nil {
		return err
	}
	if created {
		r.logger.Info(ctx, "profile created", "user_id", u.ID, "role", role)
	}
	return nil
}

// Forget drops cached roles, e.g. on sign-out.
func (r *Resolver) Forget(ctx context.Context) {
	if err := r.cache.Clear(ctx); err != nil {
		r.logger.Warn(ctx, "role cache clear failed", "error", err)
	}
}
