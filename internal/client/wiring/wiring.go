// Package wiring assembles the session core from a Config. Both binaries
// build the same graph; they differ only in the surface they put on top.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/broadcast"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/credstore"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/identity"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/metrics"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/recovery"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/refresh"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/repositories/rolecache"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/roles"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/routes"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/session"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/storage"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/transport"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const (
	redisPrefix      = "sessionkeeper:"
	cookieMaxAge     = 7 * 24 * time.Hour
	authHTTPTimeout  = 30 * time.Second
	replicaPingLimit = 2 * time.Second
	healthTimeout    = 2 * time.Second
)

type Options struct {
	Logger logging.Logger
	// Registerer receives the prometheus collectors; nil disables metrics.
	Registerer prometheus.Registerer
}

// Stack is the assembled session core.
type Stack struct {
	Config      *config.Config
	Logger      logging.Logger
	Auth        services.AuthService
	Broadcaster *broadcast.Broadcaster
	Classifier  *routes.Classifier
	Guard       *routes.RedirectGuard
	Credentials *credstore.Accessor
	Metrics     metrics.Recorder
	// DataClient carries the bearer-injecting, refresh-on-401 transport.
	// Use it for data-plane calls, never for the auth API itself.
	DataClient *http.Client

	closers []func() error
}

// Build opens local state and connects every optional backend the config
// names. A Redis replica that does not answer is skipped; every other
// failure aborts.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Stack, error) {
	logger := logging.OrNop(opts.Logger)
	s := &Stack{Config: cfg, Logger: logger}
	built := false
	defer func() {
		if !built {
			_ = s.Close()
		}
	}()

	db, err := storage.InitDatabase(ctx, cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("local state: %w", err)
	}
	s.closers = append(s.closers, db.Close)

	var kv credstore.Store = metadata.NewSQLiteRepository(db)
	if cfg.StorageSecret != "" {
		kv = credstore.NewSealed(kv, cfg.StorageSecret)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	cookies, err := credstore.NewCookieStore(jar, cfg.BackendURL, cookieMaxAge)
	if err != nil {
		return nil, fmt.Errorf("cookie store: %w", err)
	}

	layout := credstore.Layout{
		Persistent: kv,
		Replicas:   s.replicas(ctx, cfg),
		Cookies:    cookies,
		ProjectRef: cfg.ProjectRef,
	}
	s.Credentials = credstore.NewAccessor(layout.Locations(), logger)

	s.Metrics = metrics.Nop{}
	if opts.Registerer != nil {
		p, err := metrics.NewPrometheus(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		s.Metrics = p
	}

	storageKey := common.LegacyCombinedKey
	if cfg.ProjectRef != "" {
		storageKey = common.ProjectCombinedKey(cfg.ProjectRef)
	}
	client := backend.NewGoTrueClient(backend.Options{
		BaseURL:    cfg.BackendURL,
		APIKey:     cfg.AnonKey,
		HTTPClient: &http.Client{Jar: jar, Timeout: authHTTPTimeout},
		Storage:    kv,
		StorageKey: storageKey,
		Logger:     logger,
	})

	refresher := refresh.NewRefresher(s.Credentials, client, cfg.Refresh(), logger, s.Metrics)
	s.DataClient = &http.Client{
		Jar:       jar,
		Transport: transport.NewRoundTripper(http.DefaultTransport, s.Credentials, refresher, cfg.AnonKey, logger, s.Metrics),
	}

	ids := identity.NewCache(kv)
	chain := recovery.NewChain(client, s.Credentials, ids, cfg.Recovery(), logger, s.Metrics)

	source, err := s.profileSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s.Broadcaster = broadcast.New()
	s.Classifier = routes.NewClassifier(cfg.PublicPaths)
	s.Guard = routes.NewRedirectGuard(s.Classifier, cfg.MaxRedirects, logger, s.Metrics)

	known := func(context.Context) *backend.User { return s.Broadcaster.Current().User }
	resolver := roles.NewResolver(rolecache.NewSQLiteRepository(db), source, known, cfg.Roles(), logger)

	boot := session.New(session.Deps{
		Client:      client,
		Credentials: s.Credentials,
		Recovery:    chain,
		Identity:    ids,
		Roles:       resolver,
		Routes:      s.Classifier,
		Broadcaster: s.Broadcaster,
		Logger:      logger,
		Metrics:     s.Metrics,
	}, cfg.Session())

	var probes []services.Pinger
	if cfg.GRPCAddr != "" {
		conn, err := transport.Dial(cfg.GRPCAddr, transport.NewInterceptor(s.Credentials, refresher, logger, s.Metrics))
		if err != nil {
			return nil, fmt.Errorf("grpc: %w", err)
		}
		s.closers = append(s.closers, conn.Close)
		probes = append(probes, transport.NewHealthProbe(conn, "", healthTimeout))
	}

	s.Auth = services.NewAuthService(services.AuthDeps{
		Client:        client,
		Boot:          boot,
		Broadcaster:   s.Broadcaster,
		Roles:         resolver,
		Guard:         s.Guard,
		Probes:        probes,
		ResetRedirect: cfg.ResetRedirect,
		CallTimeout:   cfg.AuthCallTimeout,
		Logger:        logger,
	})
	s.closers = append(s.closers, func() error { return s.Auth.Close(context.Background()) })

	built = true
	return s, nil
}

func (s *Stack) replicas(ctx context.Context, cfg *config.Config) []credstore.Store {
	if cfg.RedisAddr == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, replicaPingLimit)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		s.Logger.Warn(ctx, "redis replica unreachable, continuing without it", "addr", cfg.RedisAddr, "error", err)
		_ = rdb.Close()
		return nil
	}

	s.closers = append(s.closers, rdb.Close)
	return []credstore.Store{credstore.NewRedisStore(rdb, redisPrefix, 0)}
}

// profileSource prefers a direct Postgres connection and falls back to the
// REST API over the data-plane client.
func (s *Stack) profileSource(ctx context.Context, cfg *config.Config) (roles.ProfileSource, error) {
	if cfg.PostgresDSN == "" {
		return roles.NewRESTSource(cfg.BackendURL, s.DataClient), nil
	}

	db, err := roles.OpenPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("profiles database: %w", err)
	}
	s.closers = append(s.closers, db.Close)
	return roles.NewPostgresSource(db), nil
}

// Close releases everything Build opened, in reverse order.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
