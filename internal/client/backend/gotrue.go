package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	auth "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/token"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

const authPrefix = "/auth/v1"

// SessionStorage is where the client persists its own copy of the session.
// Any credstore.Store satisfies it.
type SessionStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	// Storage and StorageKey are optional. When set, the held session is
	// written there and read back on cold start.
	Storage    SessionStorage
	StorageKey string
	Logger     logging.Logger
	Now        func() time.Time
}

// GoTrueClient talks to a GoTrue-compatible auth API through auth-go and
// holds the current session in memory.
type GoTrueClient struct {
	api        auth.Client
	httpClient *http.Client
	storage    SessionStorage
	storageKey string
	logger     logging.Logger
	now        func() time.Time

	mu      sync.Mutex
	session *Session
}

var _ Client = (*GoTrueClient)(nil)

func NewGoTrueClient(opts Options) *GoTrueClient {
	c := &GoTrueClient{
		api:        auth.New("", opts.APIKey).WithCustomAuthURL(strings.TrimRight(opts.BaseURL, "/") + authPrefix),
		httpClient: opts.HTTPClient,
		storage:    opts.Storage,
		storageKey: opts.StorageKey,
		logger:     logging.OrNop(opts.Logger),
		now:        opts.Now,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// CurrentSession returns a copy of the held session without any network
// call, or nil.
func (c *GoTrueClient) CurrentSession(ctx context.Context) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked(ctx)
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// loadLocked lets the stored copy win over memory, the way browser SDKs
// treat their storage as the source of truth. Memory is used when the
// store is unset, empty or unreadable.
func (c *GoTrueClient) loadLocked(ctx context.Context) {
	if c.storage == nil || c.storageKey == "" {
		return
	}

	raw, err := c.storage.Get(ctx, c.storageKey)
	if err != nil || len(raw) == 0 {
		return
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil || s.AccessToken == "" {
		c.logger.Debug(ctx, "ignoring stored session", "key", c.storageKey, "error", err)
		return
	}
	if c.session != nil && c.session.AccessToken == s.AccessToken {
		if s.User == nil {
			s.User = c.session.User
		}
		if s.RefreshToken == "" {
			s.RefreshToken = c.session.RefreshToken
		}
	}
	c.session = &s
}

func (c *GoTrueClient) save(ctx context.Context, s *Session) {
	c.mu.Lock()
	cp := *s
	c.session = &cp
	c.mu.Unlock()

	if c.storage == nil || c.storageKey == "" {
		return
	}
	raw, err := json.Marshal(s)
	if err == nil {
		err = c.storage.Set(ctx, c.storageKey, raw)
	}
	if err != nil {
		c.logger.Warn(ctx, "persisting session failed", "key", c.storageKey, "error", err)
	}
}

func (c *GoTrueClient) clear(ctx context.Context) {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	if c.storage == nil || c.storageKey == "" {
		return
	}
	if err := c.storage.Delete(ctx, c.storageKey); err != nil {
		c.logger.Warn(ctx, "removing stored session failed", "key", c.storageKey, "error", err)
	}
}

func (c *GoTrueClient) GetUser(ctx context.Context) (*User, error) {
	s := c.CurrentSession(ctx)
	if s == nil {
		return nil, ErrNoSession
	}

	u, err := c.fetchUser(ctx, s.AccessToken)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.session != nil && c.session.AccessToken == s.AccessToken {
		uc := *u
		c.session.User = &uc
	}
	c.mu.Unlock()

	return u, nil
}

func (c *GoTrueClient) fetchUser(ctx context.Context, accessToken string) (*User, error) {
	resp, err := c.call(ctx, accessToken, nil).GetUser()
	if err != nil {
		return nil, mapError(ctx, err)
	}
	var u User
	if err := fromWire(resp, &u); err != nil {
		return nil, err
	}
	if !hasID(u) {
		return nil, fmt.Errorf("%w: user without id", ErrMalformedResponse)
	}
	return &u, nil
}

func (c *GoTrueClient) GetSession(ctx context.Context) (*Session, error) {
	s := c.CurrentSession(ctx)
	if s == nil {
		return nil, ErrNoSession
	}

	switch token.Check(s.AccessToken, c.now()) {
	case token.Malformed:
		return nil, fmt.Errorf("%w: held session", common.ErrMalformedCredential)
	case token.Expired:
		if s.RefreshToken == "" {
			return nil, ErrNoSession
		}
		return c.RefreshSession(ctx, s.RefreshToken)
	}
	return s, nil
}

func (c *GoTrueClient) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		if s := c.CurrentSession(ctx); s != nil {
			refreshToken = s.RefreshToken
		}
	}
	if refreshToken == "" {
		return nil, ErrNoSession
	}

	return c.tokenGrant(ctx, types.TokenRequest{GrantType: "refresh_token", RefreshToken: refreshToken})
}

func (c *GoTrueClient) SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}

	switch token.Check(accessToken, c.now()) {
	case token.Malformed:
		return nil, fmt.Errorf("%w: access token", common.ErrMalformedCredential)
	case token.Expired:
		if refreshToken == "" {
			return nil, ErrNoSession
		}
		return c.RefreshSession(ctx, refreshToken)
	}

	u, err := c.fetchUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	s := &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		User:         u,
	}
	s.normalize(c.now())
	c.save(ctx, s)
	return s, nil
}

func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	return c.tokenGrant(ctx, types.TokenRequest{GrantType: "password", Email: email, Password: password})
}

func (c *GoTrueClient) tokenGrant(ctx context.Context, req types.TokenRequest) (*Session, error) {
	resp, err := c.call(ctx, "", nil).Token(req)
	if err != nil {
		return nil, mapError(ctx, err)
	}
	var s Session
	if err := fromWire(resp, &s); err != nil {
		return nil, err
	}
	if s.AccessToken == "" || s.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token response without tokens", ErrMalformedResponse)
	}
	s.normalize(c.now())
	c.save(ctx, &s)
	return &s, nil
}

func (c *GoTrueClient) SignUp(ctx context.Context, email, password string, data map[string]any) (*User, *Session, error) {
	req := types.SignupRequest{Email: email, Password: password}
	if len(data) > 0 {
		req.Data = data
	}

	resp, err := c.call(ctx, "", nil).Signup(req)
	if err != nil {
		return nil, nil, mapError(ctx, err)
	}

	var s Session
	if err := fromWire(resp, &s); err != nil {
		return nil, nil, err
	}
	if s.AccessToken != "" {
		s.normalize(c.now())
		c.save(ctx, &s)
		return s.User, &s, nil
	}

	// E-mail confirmation pending: the body is the user itself.
	var u User
	if err := fromWire(resp, &u); err != nil || !hasID(u) {
		return nil, nil, fmt.Errorf("%w: signup response", ErrMalformedResponse)
	}
	return &u, nil, nil
}

// SignOut revokes the session on the backend and forgets it locally. The
// local state is cleared even when the backend call fails.
func (c *GoTrueClient) SignOut(ctx context.Context) error {
	s := c.CurrentSession(ctx)
	c.clear(ctx)
	if s == nil {
		return nil
	}

	err := mapError(ctx, c.call(ctx, s.AccessToken, url.Values{"scope": {"global"}}).Logout())
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusNotFound) {
		return nil
	}
	return err
}

func (c *GoTrueClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var q url.Values
	if redirectTo != "" {
		q = url.Values{"redirect_to": {redirectTo}}
	}
	return mapError(ctx, c.call(ctx, "", q).Recover(types.RecoverRequest{Email: email}))
}

func (c *GoTrueClient) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "", nil).HealthCheck()
	return mapError(ctx, err)
}

// call returns an auth-go client bound to ctx for a single request. auth-go
// builds its requests without a context, so cancellation and extra query
// parameters are attached by the transport.
func (c *GoTrueClient) call(ctx context.Context, bearer string, query url.Values) auth.Client {
	hc := *c.httpClient
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = &callTransport{ctx: ctx, query: query, base: base}

	api := c.api.WithClient(hc)
	if bearer != "" {
		api = api.WithToken(bearer)
	}
	return api
}

type callTransport struct {
	ctx   context.Context
	query url.Values
	base  http.RoundTripper
}

func (t *callTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(t.ctx)
	req.Header.Set("X-Client-Info", "sessionkeeper-go")
	if len(t.query) > 0 {
		q := req.URL.Query()
		for k, vs := range t.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}
	return t.base.RoundTrip(req)
}

// fromWire moves an auth-go response into the local type through its JSON
// form, so the held session keeps the shape browser SDKs persist.
func fromWire(in, out any) error {
	raw, err := json.Marshal(in)
	if err == nil {
		err = json.Unmarshal(raw, out)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

func hasID(u User) bool {
	return u.ID != "" && u.ID != uuid.Nil.String()
}
