package httpx

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/target/enquiry-gateway/internal/domain/access"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/observability/metrics"
)

// LandingHandlers serves the role landing surfaces and the access pages around them.
type LandingHandlers struct {
	Cookies   CookieConfig
	Providers func() []string
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	guard     access.Guard
}

func (h *LandingHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var pages = template.Must(template.New("pages").Parse(`
{{define "dashboard"}}<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Surface}} dashboard</title></head>
<body data-role="{{.User.Role}}"><h1>{{.Surface}} dashboard</h1>
<p>Signed in as {{if .User.DisplayName}}{{.User.DisplayName}}{{else}}{{.User.Email}}{{end}}.</p>
</body></html>{{end}}
{{define "unauthorized"}}<!doctype html>
<html><head><meta charset="utf-8"><title>Access denied</title></head>
<body><h1>Access denied</h1><p>Your account cannot open that page.</p>
<p><a href="/app">Go to your dashboard</a></p></body></html>{{end}}
{{define "login"}}<!doctype html>
<html><head><meta charset="utf-8"><title>Sign in</title></head>
<body><h1>Sign in</h1>{{if .Error}}<p role="alert">Sign-in failed: {{.Error}}</p>{{end}}
<ul>{{range .Providers}}<li><button data-provider="{{.}}">Continue with {{.}}</button></li>{{end}}</ul>
<form data-redirect="{{.Redirect}}"></form></body></html>{{end}}
`))

type dashboardData struct {
	Surface domainauth.Role           `json:"surface"`
	User    domainauth.SessionSummary `json:"user"`
}

// Dashboard returns the landing surface built for surface. It reconciles the role hint
// locations against the session the gateway validated before rendering.
// GET /app/{role}/dashboard.
func (h *LandingHandlers) Dashboard(surface domainauth.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, ok := SessionFromContext(r.Context())
		if !ok {
			redirectToLogin(w, r, access.NormalizePath(r.URL.Path))
			return
		}

		action := h.guard.Reconcile(access.GuardInput{
			Surface:       surface,
			Hints:         readRoleHints(r),
			Authoritative: tok.Role,
		})
		h.Metrics.ObserveGuard(string(action.Kind), action.Elevated)
		for _, fix := range action.Repairs {
			if fix.Location == RoleHintHeader {
				continue
			}
			h.Cookies.setHint(w, r, fix.Location, fix.Claimed, int(tok.Remaining(h.Cookies.now()).Seconds()))
		}
		if action.Elevated {
			h.logger().WarnContext(r.Context(), "role hint claimed more privilege than the session",
				"subject", tok.SubjectID, "role", tok.Role, "surface", surface)
		}
		if action.Kind == access.GuardRedirect {
			http.Redirect(w, r, action.Target, http.StatusSeeOther)
			return
		}

		data := dashboardData{Surface: surface, User: tok.Summary()}
		if !isBrowserRequest(r) {
			WriteJSON(w, http.StatusOK, data)
			return
		}
		h.render(w, r, http.StatusOK, "dashboard", data)
	}
}

// readRoleHints collects every hint location. Absent cookies are reported with an empty
// claim so a repair recreates them; the header only counts when present.
func readRoleHints(r *http.Request) []access.RoleHint {
	hints := make([]access.RoleHint, 0, 3)
	for _, name := range []string{RoleHintCookie, UIRoleHintCookie} {
		hints = append(hints, access.RoleHint{Location: name, Claimed: parseHint(cookieValue(r, name))})
	}
	if v := r.Header.Get(RoleHintHeader); v != "" {
		hints = append(hints, access.RoleHint{Location: RoleHintHeader, Claimed: parseHint(v)})
	}
	return hints
}

func parseHint(v string) domainauth.Role {
	role, err := domainauth.ParseRole(v)
	if err != nil {
		return ""
	}
	return role
}

// AppHome sends the subject to the home of its authoritative role.
// GET /app.
func (h *LandingHandlers) AppHome(w http.ResponseWriter, r *http.Request) {
	tok, ok := SessionFromContext(r.Context())
	if !ok {
		redirectToLogin(w, r, "/app")
		return
	}
	http.Redirect(w, r, tok.Role.Home(), http.StatusSeeOther)
}

// Unauthorized is the access-denied surface. It is distinct from the login page.
// GET /unauthorized.
func (h *LandingHandlers) Unauthorized(w http.ResponseWriter, r *http.Request) {
	if !isBrowserRequest(r) {
		WriteJSON(w, http.StatusForbidden, errorBody{
			Error:   "insufficient_permissions",
			Message: "insufficient permissions",
		})
		return
	}
	h.render(w, r, http.StatusForbidden, "unauthorized", nil)
}

// Login renders the sign-in entry page; the form itself is client-side.
// GET /login.
func (h *LandingHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var providers []string
	if h.Providers != nil {
		providers = h.Providers()
	}
	h.render(w, r, http.StatusOK, "login", struct {
		Error     string
		Redirect  string
		Providers []string
	}{
		Error:     r.URL.Query().Get("error"),
		Redirect:  access.SafeReturnPath(r.URL.Query().Get("redirect"), "/app"),
		Providers: providers,
	})
}

func (h *LandingHandlers) render(w http.ResponseWriter, r *http.Request, code int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		h.logger().ErrorContext(r.Context(), "render page", "page", name, "error", err)
	}
}
