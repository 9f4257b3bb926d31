// Package common contains shared constants and sentinel errors used across
// sessionkeeper components.
package common

// Storage aliases under which the credential bundle is replicated. Older
// portal builds wrote different names, so every alias is read and written.
const (
	AccessTokenKey    = "sb-access-token"
	RefreshTokenKey   = "sb-refresh-token"
	LegacyCombinedKey = "supabase.auth.token"

	// IdentityKey holds the denormalized copy of the last confirmed user.
	IdentityKey = "sb-user-identity"
)

// AuthorizationHeaderName is the HTTP header and gRPC metadata key used to
// carry the access token on outbound requests.
const AuthorizationHeaderName = "authorization"

// APIKeyHeaderName carries the project's anonymous key on every backend call.
const APIKeyHeaderName = "apikey"

// ProjectCombinedKey returns the backend-environment-specific combined key,
// e.g. "sb-abcd1234-auth-token".
func ProjectCombinedKey(projectRef string) string {
	return "sb-" + projectRef + "-auth-token"
}
