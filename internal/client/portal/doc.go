// Package portal is the local web surface of the session core: a gorilla/mux
// router whose pages run the bootstrap on every navigation and whose
// protected routes are fenced by the redirect guard.
//
// Routes
//
//	GET  /                  home (public)
//	GET  /about, /pricing   static (public)
//	GET  /login             sign-in form; POST signs in and follows returnTo
//	GET  /signup            sign-up form; POST creates the account
//	GET  /forgot-password   reset form; POST sends the reset e-mail
//	GET  /reset-password    landing page of the reset link
//	POST /logout            signs out
//	GET  /dashboard         requires an authenticated session
//	GET  /admin             requires the admin role
//	GET  /api/session       current snapshot as JSON
//	POST /api/reload        re-confirms the session
//	GET  /healthz           backend and data-plane liveness
//	GET  /metrics           prometheus exposition
package portal
