// Package routes decides which paths need a session and when to send the
// user to the login page.
package routes

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/broadcast"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/metrics"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

const LoginPath = "/login"

// DefaultPublic is the allowlist of paths reachable without a session.
// Entries ending in "/" match as prefixes; "/" matches only itself.
var DefaultPublic = []string{
	"/",
	"/login",
	"/signup",
	"/reset-password",
	"/forgot-password",
	"/about",
	"/pricing",
	"/static/",
	"/healthz",
}

type Classifier struct {
	exact    map[string]bool
	prefixes []string
}

func NewClassifier(public []string) *Classifier {
	c := &Classifier{exact: make(map[string]bool)}
	for _, p := range public {
		switch {
		case p == "/":
			c.exact[p] = true
		case strings.HasSuffix(p, "/"):
			c.prefixes = append(c.prefixes, p)
		default:
			c.exact[p] = true
			c.prefixes = append(c.prefixes, p+"/")
		}
	}
	return c
}

// IsPublic ignores any query string or fragment in path.
func (c *Classifier) IsPublic(path string) bool {
	path = clean(path)
	if c.exact[path] {
		return true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func clean(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}

// LoginURL returns the login page that sends the user back to path.
func LoginURL(path string) string {
	if path == "" || strings.HasPrefix(clean(path), LoginPath) {
		return LoginPath
	}
	return LoginPath + "?returnTo=" + url.QueryEscape(path)
}

// SafeReturnTo only lets local absolute paths through.
func SafeReturnTo(returnTo string) string {
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") || strings.Contains(returnTo, "\\") {
		return "/"
	}
	return returnTo
}

type Decision struct {
	Redirect bool
	Location string
	// Capped is set when a redirect was due but the cap suppressed it.
	Capped bool
}

// RedirectGuard bounds login redirects for the lifetime of the process.
type RedirectGuard struct {
	classifier *Classifier
	max        int
	logger     logging.Logger
	metrics    metrics.Recorder

	mu     sync.Mutex
	count  int
	logged bool
}

func NewRedirectGuard(c *Classifier, maxRedirects int, logger logging.Logger, rec metrics.Recorder) *RedirectGuard {
	return &RedirectGuard{
		classifier: c,
		max:        maxRedirects,
		logger:     logging.OrNop(logger),
		metrics:    metrics.OrNop(rec),
	}
}

func (g *RedirectGuard) Decide(ctx context.Context, status broadcast.Status, path string) Decision {
	if status != broadcast.Unauthenticated || g.classifier.IsPublic(path) {
		return Decision{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.count >= g.max {
		g.metrics.RedirectCapped()
		if !g.logged {
			g.logged = true
			g.logger.Warn(ctx, "login redirect cap reached, rendering unauthenticated", "path", path, "max", g.max)
		}
		return Decision{Capped: true}
	}
	g.count++
	return Decision{Redirect: true, Location: LoginURL(path)}
}

// Reset clears the counter after a successful sign-in.
func (g *RedirectGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.count = 0
	g.logged = false
}

func (g *RedirectGuard) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}
