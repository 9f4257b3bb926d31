package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/wiring"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownGrace = 5 * time.Second

// App runs the portal's HTTP server until a signal arrives.
type App struct {
	config *config.Config
	logger logging.Logger
	stack  *wiring.Stack
	server *http.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewTextLogger(os.Stderr, c.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	stack, err := wiring.Build(ctx, c, wiring.Options{Logger: logger, Registerer: reg})
	if err != nil {
		return nil, fmt.Errorf("init error: %w", err)
	}

	handler := New(Options{
		Auth:        stack.Auth,
		Guard:       stack.Guard,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		EscapeAfter: c.LoadingEscapeAfter,
		Logger:      logger,
	})

	return &App{
		config: c,
		logger: logger,
		stack:  stack,
		server: &http.Server{Addr: c.ListenAddr, Handler: handler, ReadHeaderTimeout: 10 * time.Second},
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	app.logger.Info(ctx, "portal listening", "addr", app.config.ListenAddr)
	if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "http server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting portal...")
	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.logger.Warn(shutdownCtx, "http shutdown", "error", err)
	}
	wg.Wait()

	if err := app.stack.Close(); err != nil {
		app.logger.Warn(shutdownCtx, "closing session core", "error", err)
	}
	app.logger.Info(shutdownCtx, "portal stopped")
}
