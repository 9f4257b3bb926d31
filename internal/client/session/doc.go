// Package session decides, once per mount, whether the stored credential
// still represents a signed-in user.
//
// A run moves the broadcaster from checking to exactly one terminal status.
// It consults the status cache, short-circuits public routes without a
// credential, then tries identity, session retrieval and the recovery chain
// with bounded retries. A safety timer forces a decision if the sequence
// overruns; whatever the abandoned sequence produces afterwards is dropped.
package session
