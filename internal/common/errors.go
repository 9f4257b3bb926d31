// Package common defines shared constants and sentinel errors used across
// the session core. Callers should use errors.Is to match these values.
package common

import (
	"context"
	"errors"
)

var (
	// ErrTimeout means a backend call exceeded its bound. Transient.
	ErrTimeout = errors.New("operation timed out")

	// ErrMalformedCredential means a stored credential could not be decoded.
	ErrMalformedCredential = errors.New("malformed credential")

	// ErrUnauthorized is an explicit rejection from the backend.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable means the backend could not be reached.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrStorage wraps failures of a storage backend (quota, disabled storage).
	ErrStorage = errors.New("storage failure")

	// ErrNoSession is returned when there is no session to operate on.
	ErrNoSession = errors.New("no session")

	// ErrMalformedResponse means the backend answered with an unusable payload.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// Kind is the error taxonomy the bootstrap reasons about.
type Kind string

const (
	KindNone      Kind = ""
	KindTimeout   Kind = "timeout"
	KindMalformed Kind = "malformed"
	KindRejected  Kind = "rejected"
	KindStorage   Kind = "storage"
	KindOther     Kind = "other"
)

// Classify maps err onto the taxonomy. Context deadlines count as timeouts.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrMalformedCredential):
		return KindMalformed
	case errors.Is(err, ErrUnauthorized):
		return KindRejected
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindOther
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err) == KindTimeout || errors.Is(err, ErrUnavailable)
}
