package portal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/broadcast"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/routes"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/gorilla/mux"
)

type Options struct {
	Auth  services.AuthService
	Guard *routes.RedirectGuard
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// EscapeAfter is how long the loading page waits before offering a
	// manual reload.
	EscapeAfter time.Duration
	Logger      logging.Logger
}

type Server struct {
	auth        services.AuthService
	guard       *routes.RedirectGuard
	escapeAfter time.Duration
	logger      logging.Logger
	router      *mux.Router
	now         func() time.Time

	mu            sync.Mutex
	checkingSince time.Time
}

func New(opts Options) *Server {
	s := &Server{
		auth:        opts.Auth,
		guard:       opts.Guard,
		escapeAfter: opts.EscapeAfter,
		logger:      logging.OrNop(opts.Logger).With("component", "portal"),
		router:      mux.NewRouter(),
		now:         time.Now,
	}

	r := s.router
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)

	pages := r.NewRoute().Subrouter()
	pages.Use(s.bootstrap)
	pages.HandleFunc("/", s.page("home")).Methods(http.MethodGet)
	pages.HandleFunc("/about", s.page("about")).Methods(http.MethodGet)
	pages.HandleFunc("/pricing", s.page("pricing")).Methods(http.MethodGet)
	pages.HandleFunc("/login", s.loginForm).Methods(http.MethodGet)
	pages.HandleFunc("/login", s.login).Methods(http.MethodPost)
	pages.HandleFunc("/signup", s.signupForm).Methods(http.MethodGet)
	pages.HandleFunc("/signup", s.signup).Methods(http.MethodPost)
	pages.HandleFunc("/forgot-password", s.forgotForm).Methods(http.MethodGet)
	pages.HandleFunc("/forgot-password", s.forgot).Methods(http.MethodPost)
	pages.HandleFunc("/reset-password", s.page("reset")).Methods(http.MethodGet)
	pages.HandleFunc("/logout", s.logout).Methods(http.MethodPost)
	pages.HandleFunc("/dashboard", s.requireAuth(s.dashboard)).Methods(http.MethodGet)
	pages.HandleFunc("/admin", s.requireAuth(s.admin)).Methods(http.MethodGet)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type snapshotKey struct{}

func withSnapshot(ctx context.Context, snap broadcast.Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, snap)
}

func snapshotFrom(ctx context.Context) broadcast.Snapshot {
	snap, _ := ctx.Value(snapshotKey{}).(broadcast.Snapshot)
	return snap
}

// bootstrap runs the session bootstrap for every page navigation. While the
// status is still checking the loading page is served instead; an
// unauthenticated visit to a protected page is redirected to the login page
// until the guard's cap is reached.
func (s *Server) bootstrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		snap := s.auth.Bootstrap(ctx, r.URL.Path)

		if !snap.Status.Terminal() {
			s.loading(w, r)
			return
		}
		s.resetChecking()

		d := s.guard.Decide(ctx, snap.Status, r.URL.Path)
		if d.Redirect {
			http.Redirect(w, r, d.Location, http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r.WithContext(withSnapshot(ctx, snap)))
	})
}

// requireAuth renders the sign-in notice in place when the guard declined
// to redirect.
func (s *Server) requireAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if snapshotFrom(r.Context()).Status != broadcast.Authenticated {
			s.render(w, r, http.StatusUnauthorized, "signin_required", pageData{
				LoginURL: routes.LoginURL(r.URL.Path),
			})
			return
		}
		h(w, r)
	}
}

func (s *Server) markChecking() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkingSince.IsZero() {
		s.checkingSince = s.now()
	}
	return s.checkingSince
}

func (s *Server) resetChecking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkingSince = time.Time{}
}
