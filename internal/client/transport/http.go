package transport

import (
	"context"
	"io"
	"net/http"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/credstore"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/metrics"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/token"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

type Credentials interface {
	Read(ctx context.Context) (credstore.Bundle, bool)
}

type Refresher interface {
	Refresh(ctx context.Context) bool
}

// tokens is shared by the HTTP and gRPC transports.
type tokens struct {
	creds     Credentials
	refresher Refresher
	logger    logging.Logger
	metrics   metrics.Recorder
}

// current returns the access token to send, refreshing first when the
// stored one is not fresh. An empty result means "anonymous".
func (t *tokens) current(ctx context.Context) string {
	b, ok := t.creds.Read(ctx)
	if !ok {
		return ""
	}
	if token.IsFresh(b.AccessToken) {
		return b.AccessToken
	}

	t.logger.Debug(ctx, "access token stale, refreshing before request")
	if !t.refresher.Refresh(ctx) {
		return b.AccessToken
	}
	if nb, ok := t.creds.Read(ctx); ok {
		return nb.AccessToken
	}
	return b.AccessToken
}

// renewed refreshes after an authorization error and returns the new
// token, or false when the call must not be replayed.
func (t *tokens) renewed(ctx context.Context) (string, bool) {
	if !t.refresher.Refresh(ctx) {
		return "", false
	}
	b, ok := t.creds.Read(ctx)
	if !ok {
		return "", false
	}
	return b.AccessToken, true
}

// RoundTripper is an http.RoundTripper for the REST data plane.
type RoundTripper struct {
	base   http.RoundTripper
	apiKey string
	tokens
}

var _ http.RoundTripper = (*RoundTripper)(nil)

// NewRoundTripper wraps base (http.DefaultTransport when nil).
func NewRoundTripper(base http.RoundTripper, creds Credentials, refresher Refresher, apiKey string, logger logging.Logger, rec metrics.Recorder) *RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RoundTripper{
		base:   base,
		apiKey: apiKey,
		tokens: tokens{
			creds:     creds,
			refresher: refresher,
			logger:    logging.OrNop(logger),
			metrics:   metrics.OrNop(rec),
		},
	}
}

func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	tok := t.current(ctx)
	resp, err := t.base.RoundTrip(t.authorize(req.Clone(ctx), tok))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// A consumed body can only be replayed through GetBody.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	next, ok := t.renewed(ctx)
	if !ok {
		return resp, nil
	}

	replay := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		replay.Body = body
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	t.metrics.RequestRetried("http")
	t.logger.Debug(ctx, "replaying request after refresh", "method", req.Method, "path", req.URL.Path)
	return t.base.RoundTrip(t.authorize(replay, next))
}

func (t *RoundTripper) authorize(req *http.Request, accessToken string) *http.Request {
	bearer := accessToken
	if bearer == "" {
		bearer = t.apiKey
	}
	if t.apiKey != "" {
		req.Header.Set(common.APIKeyHeaderName, t.apiKey)
	}
	if bearer != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+bearer)
	}
	return req
}
