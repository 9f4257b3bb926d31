package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/broadcast"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/credstore"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/metrics"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/recovery"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// Methods recorded on snapshots besides the recovery chain's own.
const (
	MethodCache         = "cache"
	MethodPublicRoute   = "public_route"
	MethodNoCredential  = "no_credential"
	MethodMalformed     = "malformed_credential"
	MethodIdentity      = "identity"
	MethodSession       = "session"
	MethodMemory        = "memory"
	MethodSafetyCheck   = "safety_check"
	MethodSafetyTimeout = "safety_timeout"
	MethodExhausted     = "retries_exhausted"
	MethodTimeout       = "timeout"
	MethodPanic         = "panic"
	MethodSignIn        = "sign_in"
	MethodSignOut       = "sign_out"
)

// Credentials reads, writes and erases the stored token pair across every
// alias. credstore.Accessor implements it.
type Credentials interface {
	Read(ctx context.Context) (credstore.Bundle, bool)
	Write(ctx context.Context, b credstore.Bundle) bool
	Erase(ctx context.Context) bool
}

// Recovery runs the fallback chain for a credential the backend would not
// confirm.
type Recovery interface {
	Attempt(ctx context.Context, accessToken string) recovery.Result
}

// Identity is the local copy of the last confirmed user.
type Identity interface {
	Save(ctx context.Context, u *backend.User) error
	Load(ctx context.Context) (*backend.User, error)
	Clear(ctx context.Context) error
}

// Roles resolves a user's role after the first publish.
type Roles interface {
	CheckUserRole(ctx context.Context, userID string) string
}

// Routes tells public paths from protected ones.
type Routes interface {
	IsPublic(path string) bool
}

// Config holds the bounds of one bootstrap run. SafetyTimeout caps the
// whole run, safety check included.
type Config struct {
	IdentityTimeout    time.Duration
	SessionTimeout     time.Duration
	SafetyTimeout      time.Duration
	SafetyCheckTimeout time.Duration
	CacheTTL           time.Duration
	MinInterval        time.Duration
	Retry              retry.Policy
}

// DefaultConfig returns the bounds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		IdentityTimeout:    6 * time.Second,
		SessionTimeout:     8 * time.Second,
		SafetyTimeout:      10 * time.Second,
		SafetyCheckTimeout: 2 * time.Second,
		CacheTTL:           30 * time.Second,
		MinInterval:        1200 * time.Millisecond,
		Retry:              retry.Policy{MaxRetries: 3, BaseDelay: 800 * time.Millisecond, Factor: 1.5},
	}
}

// Deps are the collaborators of a Bootstrapper.
type Deps struct {
	Client      backend.Client
	Credentials Credentials
	Recovery    Recovery
	Identity    Identity
	// Roles is optional; without it IsAdmin is always false.
	Roles       Roles
	Routes      Routes
	Broadcaster *broadcast.Broadcaster
	Logger      logging.Logger
	Metrics     metrics.Recorder
}

type cacheEntry struct {
	snap broadcast.Snapshot
	at   time.Time
}

// Bootstrapper decides whether a stored credential still identifies a user
// and publishes the outcome. At most one run is in flight at a time.
type Bootstrapper struct {
	Deps
	cfg Config
	now func() time.Time

	running   atomic.Bool
	restoring atomic.Bool
	// gen is bumped by Adopt and Clear; runs started under an older
	// generation do not publish.
	gen atomic.Uint64

	mu        sync.Mutex
	lastStart time.Time
	cache     *cacheEntry
}

// New builds a Bootstrapper and attaches it to the broadcaster so that
// Reload can reach it.
func New(deps Deps, cfg Config) *Bootstrapper {
	deps.Logger = logging.OrNop(deps.Logger)
	deps.Metrics = metrics.OrNop(deps.Metrics)
	b := &Bootstrapper{Deps: deps, cfg: cfg, now: time.Now}
	deps.Broadcaster.Attach(b)
	return b
}

// Restoring reports whether a run is currently working on a stored
// credential.
func (b *Bootstrapper) Restoring() bool {
	return b.restoring.Load()
}

// InvalidateCache forces the next Run to go to the backend.
func (b *Bootstrapper) InvalidateCache() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = nil
}

func (b *Bootstrapper) cached(now time.Time) (broadcast.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cache == nil || now.Sub(b.cache.at) >= b.cfg.CacheTTL {
		return broadcast.Snapshot{}, false
	}
	return b.cache.snap, true
}

func (b *Bootstrapper) remember(snap broadcast.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = &cacheEntry{snap: snap, at: b.now()}
}
