package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/wiring"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

// startPath is the route the CLI bootstraps for. It is protected, so a
// missing credential settles without a network call.
const startPath = "/dashboard"

type App struct {
	config  *config.Config
	auth    services.AuthService
	logger  logging.Logger
	closeFn func() error
	reader  *bufio.Reader
	out     io.Writer

	modeMu sync.Mutex
	mode   Mode
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewTextLogger(os.Stderr, c.LogLevel)

	stack, err := wiring.Build(ctx, c, wiring.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("init error: %w", err)
	}

	return &App{
		config:  c,
		auth:    stack.Auth,
		logger:  logger,
		closeFn: stack.Close,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}, nil
}

func (a *App) setMode(mode Mode) {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	if a.mode != mode {
		a.mode = mode
		a.logger.Info(context.Background(), "switched mode", "mode", mode)
	}
}

// Mode is the current connectivity mode; the watcher updates it.
func (a *App) Mode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.mode
}

func (a *App) Run(ctx context.Context) {
	// closeFn closes the whole stack, auth service included.
	defer func() {
		if a.closeFn != nil {
			if err := a.closeFn(); err != nil {
				a.logger.Warn(ctx, "closing session core", "error", err)
			}
		}
	}()
	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.auth.User() != nil
}

// Root restores any stored session, starts the connectivity watcher and
// blocks in the REPL until the user leaves.
func (a *App) Root(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(a.out, "Welcome to sessionkeeper (type 'help' for commands)")

	snap := a.auth.Bootstrap(ctx, startPath)
	a.setMode(modeFor(snap.Partial))
	if snap.User != nil {
		fmt.Fprintf(a.out, "Restored session for %s\n", snap.User.Email)
	}

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

func modeFor(partial bool) Mode {
	if partial {
		return ModeOffline
	}
	return ModeOnline
}

func (a *App) getStatus() string {
	s := ""
	if u := a.auth.User(); u != nil {
		s = u.Email + " "
	}
	if m := a.Mode(); m != "" {
		s += string(m)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.auth.Ping(pingCtx)
			cancel()

			if err != nil {
				if a.Mode() == ModeOnline {
					a.setMode(ModeOffline)
				}
				continue
			}
			if a.Mode() != ModeOnline {
				a.setMode(ModeOnline)
				// A session accepted on cached identity is re-confirmed
				// once the backend answers again.
				if a.auth.Snapshot().Partial {
					if _, err := a.auth.ReloadAuthState(ctx); err != nil {
						a.logger.Warn(ctx, "reload after reconnect", "error", err)
					}
				}
			}

		case <-ctx.Done():
			return
		}
	}
}
