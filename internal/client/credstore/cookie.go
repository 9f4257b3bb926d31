package credstore

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"
)

// CookieStore keeps values as cookies in a jar scoped to the backend origin,
// so the same jar attached to an http.Client sends them along.
type CookieStore struct {
	jar    http.CookieJar
	origin *url.URL
	maxAge time.Duration
	now    func() time.Time
}

func NewCookieStore(jar http.CookieJar, origin string, maxAge time.Duration) (*CookieStore, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("cookie origin must be http or https")
	}
	u.Path = "/"
	return &CookieStore{jar: jar, origin: u, maxAge: maxAge, now: time.Now}, nil
}

func (c *CookieStore) Name() string { return "cookie" }

func (c *CookieStore) Get(_ context.Context, key string) ([]byte, error) {
	for _, ck := range c.jar.Cookies(c.origin) {
		if ck.Name != key {
			continue
		}
		v, err := url.QueryUnescape(ck.Value)
		if err != nil {
			return nil, err
		}
		return []byte(v), nil
	}
	return nil, nil
}

func (c *CookieStore) Set(_ context.Context, key string, value []byte) error {
	c.jar.SetCookies(c.origin, []*http.Cookie{{
		Name:     key,
		Value:    url.QueryEscape(string(value)),
		Path:     "/",
		Expires:  c.now().Add(c.maxAge),
		Secure:   c.origin.Scheme == "https",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}})
	return nil
}

func (c *CookieStore) Delete(_ context.Context, key string) error {
	c.jar.SetCookies(c.origin, []*http.Cookie{{
		Name:   key,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})
	return nil
}
