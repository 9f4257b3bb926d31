// Package broadcast publishes the current auth status to every consumer and
// notifies subscribers when it changes.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
)

type Status string

const (
	Checking        Status = "checking"
	Authenticated   Status = "authenticated"
	Unauthenticated Status = "unauthenticated"
)

func (s Status) Terminal() bool {
	return s == Authenticated || s == Unauthenticated
}

type Snapshot struct {
	Status    Status
	User      *backend.User
	Session   *backend.Session
	IsAdmin   bool
	Partial   bool
	Method    string
	UpdatedAt time.Time
}

func (s Snapshot) userID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// transition reports whether next differs from s in a way listeners care
// about.
func (s Snapshot) transition(next Snapshot) bool {
	return s.Status != next.Status ||
		s.userID() != next.userID() ||
		s.Partial != next.Partial ||
		s.IsAdmin != next.IsAdmin
}

// Reloader re-runs the abbreviated bootstrap.
type Reloader interface {
	Reload(ctx context.Context) Snapshot
}

var ErrNoReloader = errors.New("no reloader attached")

type Broadcaster struct {
	mu       sync.RWMutex
	current  Snapshot
	changed  chan struct{}
	subs     map[int]func(prev, next Snapshot)
	nextID   int
	reloader Reloader

	// notifyMu keeps notifications in publish order.
	notifyMu sync.Mutex
	now      func() time.Time
}

// New starts in the checking state.
func New() *Broadcaster {
	return &Broadcaster{
		current: Snapshot{Status: Checking, UpdatedAt: time.Now()},
		changed: make(chan struct{}),
		subs:    make(map[int]func(prev, next Snapshot)),
		now:     time.Now,
	}
}

func (b *Broadcaster) Current() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Subscribe registers fn for status transitions. fn runs on the publishing
// goroutine and must not call Publish.
func (b *Broadcaster) Subscribe(fn func(prev, next Snapshot)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish replaces the snapshot and reports whether it was a transition.
func (b *Broadcaster) Publish(next Snapshot) bool {
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = b.now()
	}

	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	prev := b.current
	b.current = next
	changed := prev.transition(next)
	var fns []func(prev, next Snapshot)
	if changed {
		close(b.changed)
		b.changed = make(chan struct{})
		fns = make([]func(prev, next Snapshot), 0, len(b.subs))
		for _, fn := range b.subs {
			fns = append(fns, fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(prev, next)
	}
	return changed
}

// Attach sets the reloader used by Reload.
func (b *Broadcaster) Attach(r Reloader) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloader = r
}

func (b *Broadcaster) Reload(ctx context.Context) (Snapshot, error) {
	b.mu.RLock()
	r := b.reloader
	b.mu.RUnlock()
	if r == nil {
		return b.Current(), ErrNoReloader
	}
	return r.Reload(ctx), nil
}

// Wait blocks until the status is terminal or ctx is done.
func (b *Broadcaster) Wait(ctx context.Context) (Snapshot, error) {
	for {
		b.mu.RLock()
		cur, ch := b.current, b.changed
		b.mu.RUnlock()

		if cur.Status.Terminal() {
			return cur, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return cur, ctx.Err()
		}
	}
}
