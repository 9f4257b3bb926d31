package portal

import (
	"html/template"
	"net/http"
)

type pageData struct {
	Title      string
	User       string
	Role       string
	IsAdmin    bool
	Partial    bool
	Method     string
	Error      string
	Notice     string
	ReturnTo   string
	LoginURL   string
	ShowEscape bool
}

const layout = `{{define "top"}}<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>{{block "head" .}}{{end}}</head>
<body>
<nav><a href="/">Home</a> <a href="/dashboard">Dashboard</a>
{{if .User}}<form method="post" action="/logout" style="display:inline"><button>Sign out ({{.User}})</button></form>{{else}}<a href="/login">Sign in</a>{{end}}</nav>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}{{if .Notice}}<p class="notice">{{.Notice}}</p>{{end}}
{{end}}
{{define "bottom"}}</body></html>{{end}}`

var pages = map[string]string{
	"home":    `{{template "top" .}}<h1>Projects</h1><p>Plan, track and ship.</p>{{template "bottom" .}}`,
	"about":   `{{template "top" .}}<h1>About</h1>{{template "bottom" .}}`,
	"pricing": `{{template "top" .}}<h1>Pricing</h1>{{template "bottom" .}}`,
	"reset":   `{{template "top" .}}<h1>Choose a new password</h1><p>Follow the link in your e-mail.</p>{{template "bottom" .}}`,
	"login": `{{template "top" .}}<h1>Sign in</h1>
<form method="post" action="/login">
<input type="hidden" name="returnTo" value="{{.ReturnTo}}">
<input name="email" type="email" placeholder="email"> <input name="password" type="password" placeholder="password">
<button>Sign in</button></form>
<p><a href="/signup">Create an account</a> · <a href="/forgot-password">Forgot password?</a></p>{{template "bottom" .}}`,
	"signup": `{{template "top" .}}<h1>Create an account</h1>
<form method="post" action="/signup">
<input name="full_name" placeholder="full name"> <input name="email" type="email" placeholder="email">
<input name="password" type="password" placeholder="password"> <button>Sign up</button></form>{{template "bottom" .}}`,
	"forgot": `{{template "top" .}}<h1>Reset your password</h1>
<form method="post" action="/forgot-password"><input name="email" type="email" placeholder="email"> <button>Send link</button></form>{{template "bottom" .}}`,
	"dashboard": `{{template "top" .}}<h1>Dashboard</h1>
{{if .Partial}}<p class="warning">Working offline: your session could not be confirmed with the server.</p>{{end}}
<p>Signed in as {{.User}} ({{.Role}}), via {{.Method}}.</p>{{if .IsAdmin}}<p><a href="/admin">Administration</a></p>{{end}}{{template "bottom" .}}`,
	"admin":           `{{template "top" .}}<h1>Administration</h1>{{template "bottom" .}}`,
	"forbidden":       `{{template "top" .}}<h1>Forbidden</h1>{{template "bottom" .}}`,
	"signin_required": `{{template "top" .}}<h1>Sign in required</h1><p><a href="{{.LoginURL}}">Sign in</a> to continue.</p>{{template "bottom" .}}`,
	"loading": `{{define "head"}}<meta http-equiv="refresh" content="1">{{end}}{{template "top" .}}<h1>Checking your session…</h1>
{{if .ShowEscape}}<form method="post" action="/api/reload"><button>Still waiting? Retry now</button></form>{{end}}{{template "bottom" .}}`,
}

var templates = func() map[string]*template.Template {
	out := make(map[string]*template.Template, len(pages))
	for name, body := range pages {
		t := template.Must(template.New("layout").Parse(layout))
		out[name] = template.Must(t.New(name).Parse(body))
	}
	return out
}()

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := templates[name].ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error(r.Context(), "template render failed", "page", name, "error", err)
	}
}
