// Package transport attaches the stored access token to outgoing data-plane
// calls. Before a call a stale token is refreshed; after an authorization
// error the call is refreshed and replayed exactly once.
//
// The auth client itself must not go through these transports: refreshing
// uses it.
package transport
