// Package credstore reads and writes the credential bundle across redundant
// storage backends under every historical key alias.
//
// Locations are tried in a fixed priority order. Reads take, field by field,
// the first non-empty value; writes go to every alias. Storage failures are
// logged and swallowed because another alias may still succeed. Nothing in
// this package retries: each call is a single best-effort attempt.
//
// Backends
//
//   - metadata.SQLiteRepository: the persistent key-value store.
//   - RedisStore: an optional shared replica.
//   - CookieStore: cookies on the backend origin; secondary, best effort.
//   - MemoryStore: process memory.
//   - Sealed: wraps any backend and encrypts values at rest.
package credstore
