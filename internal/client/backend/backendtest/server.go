package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/token"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const AnonKey = "anon-key"

type account struct {
	user     backend.User
	password string
}

// Server emulates the auth API (/auth/v1) and the profiles table of the
// REST API (/rest/v1/profiles) closely enough for end-to-end tests.
type Server struct {
	*httptest.Server

	// TTL is the lifetime of issued access tokens.
	TTL time.Duration
	// ConfirmEmail makes SignUp return a user without a session.
	ConfirmEmail bool

	mu       sync.Mutex
	accounts map[string]*account
	access   map[string]string
	refresh  map[string]string
	profiles map[string]map[string]any
	down     bool
	hits     map[string]int
}

// NewServer starts an emulator that is closed with the test.
func NewServer(t testing.TB) *Server {
	s := &Server{
		TTL:      time.Hour,
		accounts: map[string]*account{},
		access:   map[string]string{},
		refresh:  map[string]string{},
		profiles: map[string]map[string]any{},
		hits:     map[string]int{},
	}

	r := mux.NewRouter()
	r.Use(s.count, s.outage)
	auth := r.PathPrefix("/auth/v1").Subrouter()
	auth.HandleFunc("/token", s.handleToken).Methods(http.MethodPost)
	auth.HandleFunc("/user", s.handleUser).Methods(http.MethodGet)
	auth.HandleFunc("/signup", s.handleSignUp).Methods(http.MethodPost)
	auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	auth.HandleFunc("/recover", s.handleRecover).Methods(http.MethodPost)
	auth.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"name": "GoTrue"})
	}).Methods(http.MethodGet)
	rest := r.PathPrefix("/rest/v1").Subrouter()
	rest.HandleFunc("/profiles", s.handleProfilesGet).Methods(http.MethodGet)
	rest.HandleFunc("/profiles", s.handleProfilesPost).Methods(http.MethodPost)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// AddUser registers an account and returns its user.
func (s *Server) AddUser(email, password string, appMetadata map[string]any) backend.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := backend.User{ID: uuid.NewString(), Email: email, Role: "authenticated", AppMetadata: appMetadata}
	s.accounts[email] = &account{user: u, password: password}
	return u
}

// Issue mints a session for an existing user without a sign-in call.
func (s *Server) Issue(email string) backend.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(s.accounts[email].user)
}

// IssueExpired mints a session whose access token is already expired but
// whose refresh token is valid.
func (s *Server) IssueExpired(email string) backend.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.accounts[email].user
	sess := s.issueLocked(u)
	delete(s.access, sess.AccessToken)
	sess.AccessToken = token.Mint(u.ID, time.Now().Add(-time.Minute))
	sess.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	s.access[sess.AccessToken] = u.ID
	return sess
}

func (s *Server) issueLocked(u backend.User) backend.Session {
	exp := time.Now().Add(s.TTL)
	sess := backend.Session{
		AccessToken:  token.Mint(u.ID, exp),
		RefreshToken: uuid.NewString(),
		TokenType:    "bearer",
		ExpiresIn:    int64(s.TTL / time.Second),
		ExpiresAt:    exp.Unix(),
	}
	uc := u
	sess.User = &uc
	s.access[sess.AccessToken] = u.ID
	s.refresh[sess.RefreshToken] = u.ID
	return sess
}

// SetDown makes every endpoint answer 503.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// RevokeAll forgets every issued token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = map[string]string{}
	s.refresh = map[string]string{}
}

// SetProfile stores a profile row.
func (s *Server) SetProfile(userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = map[string]any{"id": userID, "role": role}
}

// Profile returns a stored profile row or nil.
func (s *Server) Profile(userID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[userID]
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits counts every request.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.hits {
		n += h
	}
	return n
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) outage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		down := s.down
		s.mu.Unlock()
		if down {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"msg": "service unavailable"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "bad_json", "msg": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.Query().Get("grant_type") {
	case "password":
		acc, ok := s.accounts[body.Email]
		if !ok || acc.password != body.Password {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "invalid_credentials", "msg": "Invalid login credentials"})
			return
		}
		writeJSON(w, http.StatusOK, s.issueLocked(acc.user))
	case "refresh_token":
		id, ok := s.refresh[body.RefreshToken]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "refresh_token_not_found", "msg": "Invalid Refresh Token"})
			return
		}
		delete(s.refresh, body.RefreshToken)
		writeJSON(w, http.StatusOK, s.issueLocked(s.userByIDLocked(id)))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "unsupported_grant_type", "msg": "unsupported grant type"})
	}
}

func (s *Server) userByIDLocked(id string) backend.User {
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc.user
		}
	}
	return backend.User{ID: id}
}

// authorize resolves the bearer token to a user id.
func (s *Server) authorize(r *http.Request) (string, bool) {
	tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", false
	}
	s.mu.Lock()
	id, ok := s.access[tok]
	s.mu.Unlock()
	if !ok || token.IsExpired(tok) {
		return "", false
	}
	return id, true
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authorize(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error_code": "bad_jwt", "msg": "invalid JWT"})
		return
	}
	s.mu.Lock()
	u := s.userByIDLocked(id)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string         `json:"email"`
		Password string         `json:"password"`
		Data     map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "validation_failed", "msg": "email required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[body.Email]; exists {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error_code": "user_already_exists", "msg": "User already registered"})
		return
	}
	u := backend.User{ID: uuid.NewString(), Email: body.Email, Role: "authenticated", UserMetadata: body.Data}
	s.accounts[body.Email] = &account{user: u, password: body.Password}
	if s.ConfirmEmail {
		writeJSON(w, http.StatusOK, u)
		return
	}
	writeJSON(w, http.StatusOK, s.issueLocked(u))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authorize(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error_code": "bad_jwt", "msg": "invalid JWT"})
		return
	}
	s.mu.Lock()
	for k, v := range s.access {
		if v == id {
			delete(s.access, k)
		}
	}
	for k, v := range s.refresh {
		if v == id {
			delete(s.refresh, k)
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecover(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleProfilesGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "JWT expired"})
		return
	}
	id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")

	s.mu.Lock()
	row, ok := s.profiles[id]
	s.mu.Unlock()

	rows := []map[string]any{}
	if ok {
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleProfilesPost(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "JWT expired"})
		return
	}
	var row map[string]any
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	id, _ := row["id"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[id]; exists {
		if strings.Contains(r.Header.Get("Prefer"), "ignore-duplicates") {
			w.WriteHeader(http.StatusCreated)
			return
		}
		writeJSON(w, http.StatusConflict, map[string]string{"code": "23505", "message": "duplicate key"})
		return
	}
	s.profiles[id] = row
	w.WriteHeader(http.StatusCreated)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
