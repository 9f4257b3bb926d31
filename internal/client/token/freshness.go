// Package token decodes the expiry embedded in a bearer access token and
// reports how fresh it is. It never contacts the network and never verifies
// signatures; that is the backend's job.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// ExpiryBuffer is the minimum remaining validity for a token to count as
// fresh. A request started with less than this may land after expiry.
const ExpiryBuffer = 5 * time.Minute

// State is the freshness verdict for an access token.
type State int

const (
	Malformed State = iota
	Expired
	ExpiringSoon
	Fresh
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case ExpiringSoon:
		return "expiring_soon"
	case Expired:
		return "expired"
	default:
		return "malformed"
	}
}

var errMissingExp = errors.New("missing exp claim")

var parser = jwt.NewParser()

// ExpiresAt decodes the exp claim. Any structural problem is reported as
// common.ErrMalformedCredential.
func ExpiresAt(accessToken string) (time.Time, error) {
	if accessToken == "" {
		return time.Time{}, fmt.Errorf("%w: empty token", common.ErrMalformedCredential)
	}

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", common.ErrMalformedCredential, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", common.ErrMalformedCredential, err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("%w: %w", common.ErrMalformedCredential, errMissingExp)
	}

	return exp.Time, nil
}

// Subject returns the sub claim, or "" when it cannot be decoded.
func Subject(accessToken string) string {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

// Check classifies accessToken relative to now.
func Check(accessToken string, now time.Time) State {
	exp, err := ExpiresAt(accessToken)
	if err != nil {
		return Malformed
	}

	left := exp.Sub(now)
	switch {
	case left <= 0:
		return Expired
	case left <= ExpiryBuffer:
		return ExpiringSoon
	default:
		return Fresh
	}
}

// IsFresh reports whether the token has more than ExpiryBuffer of validity
// left. Decode failures are never fresh.
func IsFresh(accessToken string) bool {
	return Check(accessToken, time.Now()) == Fresh
}

// IsExpired reports whether the token is past its expiry or undecodable.
func IsExpired(accessToken string) bool {
	st := Check(accessToken, time.Now())
	return st == Expired || st == Malformed
}

// IsMalformed reports whether the token cannot be decoded at all.
func IsMalformed(accessToken string) bool {
	_, err := ExpiresAt(accessToken)
	return err != nil
}
