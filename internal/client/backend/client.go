// Package backend is the session core's view of the hosted auth service:
// the operations it consumes and a GoTrue REST implementation.
package backend

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/token"
)

// User is the backend-owned identity. Only a denormalized copy is kept
// locally.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// AppMetadataString returns a string from app_metadata only. Users cannot
// write app_metadata, so this is the one to read for authorization.
func (u *User) AppMetadataString(key string) string {
	if u == nil {
		return ""
	}
	s, _ := u.AppMetadata[key].(string)
	return s
}

// MetadataString returns a string from app_metadata, falling back to
// user_metadata. The user can set anything in user_metadata; never use it
// for authorization.
func (u *User) MetadataString(key string) string {
	if u == nil {
		return ""
	}
	for _, m := range []map[string]any{u.AppMetadata, u.UserMetadata} {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Session is a token pair issued by the backend.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// normalize fills ExpiresAt from ExpiresIn or the token itself.
func (s *Session) normalize(now time.Time) {
	if s.ExpiresAt != 0 {
		return
	}
	if s.ExpiresIn > 0 {
		s.ExpiresAt = now.Unix() + s.ExpiresIn
		return
	}
	if exp, err := token.ExpiresAt(s.AccessToken); err == nil {
		s.ExpiresAt = exp.Unix()
	}
}

// Client lists the backend operations the session core consumes. Every
// call may block on the network; callers bound them with their own
// timeouts.
type Client interface {
	// GetUser asks "who am I" using whatever session the client holds.
	GetUser(ctx context.Context) (*User, error)
	// GetSession returns the held session, refreshing it if expired.
	GetSession(ctx context.Context) (*Session, error)
	// RefreshSession exchanges a refresh token (or the held one when empty).
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	// SetSession installs a token pair as the held session.
	SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// SignUp returns a session only when the project does not require
	// e-mail confirmation.
	SignUp(ctx context.Context, email, password string, data map[string]any) (*User, *Session, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	Ping(ctx context.Context) error
}
