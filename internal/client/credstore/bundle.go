package credstore

import (
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/token"
)

// Bundle is the access/refresh token pair plus expiry, treated as a single
// value replicated across backends.
type Bundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// Present reports whether the bundle exists at all. A bundle without an
// access token is absent regardless of its other fields.
func (b Bundle) Present() bool {
	return b.AccessToken != ""
}

// Expiry returns ExpiresAt, falling back to the token's exp claim.
func (b Bundle) Expiry() (time.Time, bool) {
	if b.ExpiresAt > 0 {
		return time.Unix(b.ExpiresAt, 0), true
	}
	exp, err := token.ExpiresAt(b.AccessToken)
	if err != nil {
		return time.Time{}, false
	}
	return exp, true
}

// combined is the JSON shape stored under combined keys. Two generations are
// understood: the flat session object and the older {"currentSession": ...}
// wrapper.
type combined struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	TokenType    string `json:"token_type,omitempty"`

	CurrentSession *struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
	} `json:"currentSession,omitempty"`
	LegacyExpiresAt int64 `json:"expiresAt,omitempty"`
}

func encodeCombined(b Bundle) ([]byte, error) {
	return json.Marshal(combined{
		AccessToken:  b.AccessToken,
		RefreshToken: b.RefreshToken,
		ExpiresAt:    b.ExpiresAt,
		TokenType:    "bearer",
	})
}

func decodeCombined(raw []byte) (Bundle, error) {
	var c combined
	if err := json.Unmarshal(raw, &c); err != nil {
		return Bundle{}, err
	}

	if c.AccessToken != "" {
		return Bundle{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken, ExpiresAt: c.ExpiresAt}, nil
	}
	if c.CurrentSession != nil {
		exp := c.CurrentSession.ExpiresAt
		if exp == 0 {
			exp = c.LegacyExpiresAt
		}
		return Bundle{
			AccessToken:  c.CurrentSession.AccessToken,
			RefreshToken: c.CurrentSession.RefreshToken,
			ExpiresAt:    exp,
		}, nil
	}
	return Bundle{}, nil
}
