// Package cli provides the interactive sessionkeeper command-line client.
//
// On start it restores any stored session through the same bootstrap the
// portal uses, starts a connectivity watcher and runs a small REPL:
//   - register / login / reset / logout
//   - status, whoami, role
//   - reload (re-confirm the held session in place)
//
// When the backend is unreachable at login the stored session is restored
// instead and the client runs in offline mode until a ping succeeds.
package cli
