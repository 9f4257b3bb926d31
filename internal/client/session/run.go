package session

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/broadcast"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/token"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/google/uuid"
)

// Run performs the bootstrap for path and returns the terminal snapshot it
// published. A run that overlaps another, or starts within MinInterval of
// the previous one, is skipped and returns the current snapshot.
func (b *Bootstrapper) Run(ctx context.Context, path string) broadcast.Snapshot {
	if !b.running.CompareAndSwap(false, true) {
		b.Logger.Debug(ctx, "bootstrap skipped: already running", "path", path)
		return b.Broadcaster.Current()
	}
	defer b.running.Store(false)

	start := b.now()
	b.mu.Lock()
	if !b.lastStart.IsZero() && start.Sub(b.lastStart) < b.cfg.MinInterval {
		b.mu.Unlock()
		b.Logger.Debug(ctx, "bootstrap skipped: min interval", "path", path)
		return b.Broadcaster.Current()
	}
	b.lastStart = start
	b.mu.Unlock()

	logger := b.Logger.With("run_id", uuid.NewString(), "path", path)

	if snap, ok := b.cached(start); ok {
		logger.Debug(ctx, "status cache hit", "status", snap.Status)
		snap.Method = MethodCache
		snap.UpdatedAt = time.Time{}
		b.Broadcaster.Publish(snap)
		b.Metrics.BootstrapFinished(string(snap.Status), MethodCache, b.now().Sub(start))
		return b.Broadcaster.Current()
	}

	public := b.Routes != nil && b.Routes.IsPublic(path)
	return b.guarded(ctx, logger, start, func(ctx context.Context) outcome {
		return b.sequence(ctx, logger, public)
	})
}

// Reload is the abbreviated run behind broadcast.Broadcaster.Reload: no
// status cache, no public-route short-circuit, and no network at all when
// the in-memory user is backend-confirmed and still matches a fresh stored
// credential. A partially accepted user always goes back to the backend.
func (b *Bootstrapper) Reload(ctx context.Context) broadcast.Snapshot {
	if !b.running.CompareAndSwap(false, true) {
		return b.Broadcaster.Current()
	}
	defer b.running.Store(false)

	start := b.now()
	logger := b.Logger.With("run_id", uuid.NewString(), "reload", true)

	cur := b.Broadcaster.Current()
	if cur.User != nil && !cur.Partial {
		if cred, ok := b.Credentials.Read(ctx); ok && token.IsFresh(cred.AccessToken) && token.Subject(cred.AccessToken) == cur.User.ID {
			logger.Debug(ctx, "reload fast path", "user_id", cur.User.ID)
			return b.finalize(ctx, logger, start, b.gen.Load(), outcome{
				status:  broadcast.Authenticated,
				user:    cur.User,
				session: sessionFromBundle(cred, cur.User),
				partial: cur.Partial,
				method:  MethodMemory,
			})
		}
	}

	return b.guarded(ctx, logger, start, func(ctx context.Context) outcome {
		return b.sequence(ctx, logger, false)
	})
}

// guarded races seq against the safety bound and finalizes whichever
// answer comes first. Near the end of the bound a cheap identity check runs
// alongside seq; an authenticated answer from it wins. Nothing outlives
// SafetyTimeout: at that point the run settles as unauthenticated.
func (b *Bootstrapper) guarded(ctx context.Context, logger logging.Logger, start time.Time, seq func(ctx context.Context) outcome) broadcast.Snapshot {
	gen := b.gen.Load()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer b.restoring.Store(false)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, "bootstrap panicked", "panic", r)
				done <- outcome{status: broadcast.Unauthenticated, method: MethodPanic}
			}
		}()
		done <- seq(runCtx)
	}()

	checkBudget := b.safetyCheckBudget()
	checkTimer := time.NewTimer(b.cfg.SafetyTimeout - checkBudget)
	defer checkTimer.Stop()
	deadline := time.NewTimer(b.cfg.SafetyTimeout)
	defer deadline.Stop()

	var checked chan outcome
	for {
		select {
		case out := <-done:
			return b.finalize(ctx, logger, start, gen, out)

		case <-checkTimer.C:
			logger.Warn(ctx, "bootstrap nearing safety timeout, checking identity", "budget", checkBudget)
			checked = make(chan outcome, 1)
			go func() {
				checked <- b.safetyCheck(runCtx, logger, checkBudget)
			}()

		case out := <-checked:
			checked = nil
			if out.status == broadcast.Authenticated {
				cancel()
				return b.finalize(ctx, logger, start, gen, out)
			}

		case <-deadline.C:
			logger.Warn(ctx, "bootstrap safety timeout reached", "after", b.cfg.SafetyTimeout)
			cancel()
			return b.finalize(ctx, logger, start, gen, unauthenticated(MethodSafetyTimeout))

		case <-ctx.Done():
			logger.Debug(ctx, "bootstrap abandoned by caller", "error", ctx.Err())
			return b.Broadcaster.Current()
		}
	}
}

// safetyCheckBudget is the slice at the end of SafetyTimeout reserved for
// the identity check; it never exceeds half the bound.
func (b *Bootstrapper) safetyCheckBudget() time.Duration {
	budget := b.cfg.SafetyCheckTimeout
	if half := b.cfg.SafetyTimeout / 2; budget > half || budget <= 0 {
		budget = half
	}
	return budget
}
