package portal

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/broadcast"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/roles"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/routes"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

func (s *Server) base(r *http.Request, title string) pageData {
	d := pageData{Title: title}
	snap := snapshotFrom(r.Context())
	if snap.Status == broadcast.Authenticated && snap.User != nil {
		d.User = snap.User.Email
		if d.User == "" {
			d.User = snap.User.ID
		}
		d.IsAdmin = snap.IsAdmin
		d.Partial = snap.Partial
		d.Method = snap.Method
	}
	return d
}

func (s *Server) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, name, s.base(r, name))
	}
}

func (s *Server) loading(w http.ResponseWriter, r *http.Request) {
	since := s.markChecking()
	d := pageData{Title: "Loading"}
	d.ShowEscape = s.now().Sub(since) >= s.escapeAfter
	s.render(w, r, http.StatusOK, "loading", d)
}

func (s *Server) loginForm(w http.ResponseWriter, r *http.Request) {
	if snapshotFrom(r.Context()).Status == broadcast.Authenticated {
		http.Redirect(w, r, returnTarget(r.URL.Query().Get("returnTo")), http.StatusSeeOther)
		return
	}
	d := s.base(r, "Sign in")
	d.ReturnTo = returnTarget(r.URL.Query().Get("returnTo"))
	s.render(w, r, http.StatusOK, "login", d)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	returnTo := returnTarget(r.PostFormValue("returnTo"))

	_, err := s.auth.SignIn(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	if err != nil {
		d := s.base(r, "Sign in")
		d.ReturnTo = returnTo
		d.Error = userMessage(err)
		s.render(w, r, statusFor(err), "login", d)
		return
	}
	http.Redirect(w, r, returnTo, http.StatusSeeOther)
}

func (s *Server) signupForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "signup", s.base(r, "Sign up"))
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	var data map[string]any
	if name := strings.TrimSpace(r.PostFormValue("full_name")); name != "" {
		data = map[string]any{"full_name": name}
	}

	u, err := s.auth.SignUp(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"), data)
	if err != nil {
		d := s.base(r, "Sign up")
		d.Error = userMessage(err)
		s.render(w, r, statusFor(err), "signup", d)
		return
	}
	if s.auth.Snapshot().Status == broadcast.Authenticated && s.auth.User() != nil && s.auth.User().ID == u.ID {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	d := s.base(r, "Sign up")
	d.Notice = "Check your e-mail to confirm the account."
	s.render(w, r, http.StatusOK, "login", d)
}

func (s *Server) forgotForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "forgot", s.base(r, "Reset password"))
}

func (s *Server) forgot(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	d := s.base(r, "Reset password")
	if err := s.auth.ResetPassword(r.Context(), r.PostFormValue("email")); err != nil {
		d.Error = userMessage(err)
		s.render(w, r, statusFor(err), "forgot", d)
		return
	}
	d.Notice = "If the address is registered, a reset link is on its way."
	s.render(w, r, http.StatusOK, "forgot", d)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context()); err != nil {
		s.logger.Warn(r.Context(), "sign out incomplete", "error", err)
	}
	http.Redirect(w, r, routes.LoginPath, http.StatusSeeOther)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	d := s.base(r, "Dashboard")
	snap := snapshotFrom(r.Context())
	d.Role = s.auth.CheckUserRole(r.Context(), snap.User.ID)
	s.render(w, r, http.StatusOK, "dashboard", d)
}

func (s *Server) admin(w http.ResponseWriter, r *http.Request) {
	snap := snapshotFrom(r.Context())
	if !snap.IsAdmin && !roles.IsAdmin(s.auth.CheckUserRole(r.Context(), snap.User.ID)) {
		s.render(w, r, http.StatusForbidden, "forbidden", s.base(r, "Forbidden"))
		return
	}
	s.render(w, r, http.StatusOK, "admin", s.base(r, "Administration"))
}

type sessionView struct {
	Status    broadcast.Status `json:"status"`
	UserID    string           `json:"user_id,omitempty"`
	Email     string           `json:"email,omitempty"`
	IsAdmin   bool             `json:"is_admin"`
	Partial   bool             `json:"partial"`
	Method    string           `json:"method,omitempty"`
	Restoring bool             `json:"restoring"`
	ExpiresAt int64            `json:"expires_at,omitempty"`
}

func (s *Server) view(snap broadcast.Snapshot) sessionView {
	v := sessionView{
		Status:    snap.Status,
		IsAdmin:   snap.IsAdmin,
		Partial:   snap.Partial,
		Method:    snap.Method,
		Restoring: s.auth.IsSessionRestoring(),
	}
	if snap.User != nil {
		v.UserID = snap.User.ID
		v.Email = snap.User.Email
	}
	if snap.Session != nil {
		v.ExpiresAt = snap.Session.ExpiresAt
	}
	return v
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view(s.auth.Snapshot()))
}

// handleReload re-confirms the session. Browsers posting the loading page's
// escape form are sent back to where they came from.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.auth.ReloadAuthState(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		back := routes.SafeReturnTo(refererPath(r))
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, s.view(snap))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func refererPath(r *http.Request) string {
	u, err := url.Parse(r.Referer())
	if err != nil || u.Path == "" {
		return ""
	}
	return u.RequestURI()
}

// returnTarget is where a successful sign-in lands.
func returnTarget(returnTo string) string {
	if returnTo == "" {
		return "/dashboard"
	}
	return routes.SafeReturnTo(returnTo)
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return "E-mail and password are required."
	case errors.Is(err, common.ErrUnauthorized):
		return "Invalid e-mail or password."
	case services.IsUnavailable(err):
		return "The service is unreachable, try again shortly."
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Something went wrong."
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusUnauthorized
	case services.IsUnavailable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}
