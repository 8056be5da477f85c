package httpx

import (
	"context"
	"crypto/subtle"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/target/enquiry-gateway/internal/domain/access"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	obserrors "github.com/target/enquiry-gateway/internal/observability/errors"
	"github.com/target/enquiry-gateway/internal/observability/metrics"
)

// AuthServiceInterface defines the auth operations the handlers drive.
type AuthServiceInterface interface {
	Providers() []string
	SignIn(ctx context.Context, email, password string) (domainauth.Grant, error)
	SignUp(ctx context.Context, email, password string, role domainauth.Role) (domainauth.Grant, error)
	BeginOAuth(ctx context.Context, provider, redirectTo string) (domainauth.OAuthStart, error)
	CompleteOAuth(ctx context.Context, cb domainauth.OAuthCallback) (domainauth.Grant, error)
	Session(ctx context.Context, raw string) (*domainauth.SessionSummary, error)
	Refresh(ctx context.Context, raw string) (domainauth.Grant, error)
	SignOut(ctx context.Context, raw string) error
}

// Actions accepted by POST /api/auth.
const (
	ActionSignIn  = "signIn"
	ActionSignUp  = "signUp"
	ActionOAuth   = "oauth"
	ActionSignOut = "signOut"
)

// AuthRequest is the body of POST /api/auth. Fields beyond Action depend on the action.
type AuthRequest struct {
	Action     string `json:"action"`
	Email      string `json:"email,omitempty"`
	Password   string `json:"password,omitempty"`
	Role       string `json:"role,omitempty"`
	Provider   string `json:"provider,omitempty"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// SessionInfo describes the issued session token without its payload.
type SessionInfo struct {
	ID        string    `json:"id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GrantResponse is returned by every operation that issues a session.
type GrantResponse struct {
	User     domainauth.SessionSummary `json:"user"`
	Session  SessionInfo               `json:"session"`
	Warnings []domainauth.Kind         `json:"warnings,omitempty"`
}

// OAuthResponse is returned by the oauth action.
type OAuthResponse struct {
	RedirectURL string `json:"redirect_url"`
	State       string `json:"state"`
}

// SessionResponse is returned by GET /api/auth/session.
type SessionResponse struct {
	Authenticated bool                       `json:"authenticated"`
	User          *domainauth.SessionSummary `json:"user,omitempty"`
}

// SignOutResponse is returned by the signOut action.
type SignOutResponse struct {
	SignedOut bool `json:"signed_out"`
}

// CallbackRequest carries the URL fragment a provider redirect delivered to the browser.
type CallbackRequest struct {
	Fragment string `json:"fragment"`
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc     AuthServiceInterface
	Cookies CookieConfig
	Limiter *RateLimiter
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// fail logs server-side failures with their cause type before rendering the error.
func (h *AuthHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch kind := domainauth.KindOf(err); kind {
	case domainauth.KindInternal, domainauth.KindProviderUnavailable:
		h.logger().ErrorContext(r.Context(), "auth request failed",
			"path", r.URL.Path,
			"kind", kind,
			"error_type", obserrors.Classify(err),
			"error", err)
	}
	writeAuthError(w, err)
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Action dispatches POST /api/auth on the action discriminator.
func (h *AuthHandlers) Action(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	switch req.Action {
	case ActionSignIn, ActionSignUp:
		if !h.Limiter.Allow(r) {
			h.Metrics.ObserveRateLimited(req.Action)
			w.Header().Set("Retry-After", "60")
			WriteError(w, ErrorParams{
				Code:    http.StatusTooManyRequests,
				ErrCode: "rate_limited",
				Err:     errors.New("too many attempts, try again later"),
			})
			return
		}
		h.credentials(w, r, req)
	case ActionOAuth:
		h.beginOAuth(w, r, req)
	case ActionSignOut:
		h.signOut(w, r)
	default:
		writeAuthError(w, domainauth.NewError(domainauth.KindValidation, "unknown action"))
	}
}

func (h *AuthHandlers) credentials(w http.ResponseWriter, r *http.Request, req AuthRequest) {
	start := time.Now()
	var (
		grant domainauth.Grant
		err   error
	)
	if req.Action == ActionSignIn {
		grant, err = h.Svc.SignIn(r.Context(), req.Email, req.Password)
	} else {
		role, parseErr := domainauth.ParseRole(req.Role)
		if parseErr != nil {
			err = domainauth.WrapError(parseErr, domainauth.KindValidation, "role must be customer or company")
		} else {
			grant, err = h.Svc.SignUp(r.Context(), req.Email, req.Password, role)
		}
	}
	h.Metrics.ObserveOperation(req.Action, string(domainauth.KindOf(err)), time.Since(start))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeGrant(w, r, grant)
}

func (h *AuthHandlers) beginOAuth(w http.ResponseWriter, r *http.Request, req AuthRequest) {
	start := time.Now()
	res, err := h.Svc.BeginOAuth(r.Context(), req.Provider, req.RedirectTo)
	h.Metrics.ObserveOperation(ActionOAuth, string(domainauth.KindOf(err)), time.Since(start))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Cookies.setOAuth(w, r, res.State, res.Nonce)
	WriteJSON(w, http.StatusOK, OAuthResponse{RedirectURL: res.URL, State: res.State})
}

// signOut always clears the cookies; backend failures only reach the logs.
func (h *AuthHandlers) signOut(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if raw := sessionCookieValue(r); raw != "" {
		if err := h.Svc.SignOut(r.Context(), raw); err != nil {
			h.logger().WarnContext(r.Context(), "sign-out cleanup incomplete", "error", err)
		}
	}
	h.Metrics.ObserveOperation(ActionSignOut, "", time.Since(start))
	h.Cookies.clearSession(w, r)
	h.Cookies.clearOAuth(w, r)
	WriteJSON(w, http.StatusOK, SignOutResponse{SignedOut: true})
}

// Callback completes a redirect sign-in.
// POST /api/auth/callback.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if h.repeatCallback(w, r, req.Fragment) {
		return
	}
	start := time.Now()
	grant, err := h.completeCallback(r, req.Fragment)
	h.Metrics.ObserveOperation("callback", string(domainauth.KindOf(err)), time.Since(start))
	h.Cookies.clearOAuth(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Cookies.setCallbackDone(w, r, domainauth.FragmentFingerprint(req.Fragment), grant.Token.ID)
	h.writeGrant(w, r, grant)
}

// repeatCallback answers a second delivery of an already completed fragment with the
// session it produced, as long as that session is still usable.
func (h *AuthHandlers) repeatCallback(w http.ResponseWriter, r *http.Request, fragment string) bool {
	fp, tokenID, ok := callbackDone(r)
	if !ok || strings.TrimSpace(fragment) == "" ||
		subtle.ConstantTimeCompare([]byte(fp), []byte(domainauth.FragmentFingerprint(fragment))) != 1 {
		return false
	}
	raw := sessionCookieValue(r)
	if raw == "" {
		return false
	}
	sum, err := h.Svc.Session(r.Context(), raw)
	if err != nil || sum == nil {
		return false
	}
	WriteJSON(w, http.StatusOK, GrantResponse{
		User:    *sum,
		Session: SessionInfo{ID: tokenID, ExpiresAt: sum.ExpiresAt},
	})
	return true
}

func (h *AuthHandlers) completeCallback(r *http.Request, fragment string) (domainauth.Grant, error) {
	cb, err := domainauth.ParseFragment(fragment)
	if err != nil {
		return domainauth.Grant{}, err
	}
	state := cookieValue(r, oauthStateCookie)
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(cb.State)) != 1 {
		return domainauth.Grant{}, domainauth.NewError(domainauth.KindMalformedCallback, "callback state does not match a pending sign-in")
	}
	cb.Nonce = cookieValue(r, oauthNonceCookie)
	return h.Svc.CompleteOAuth(r.Context(), cb)
}

// Refresh reissues the session cookie with a fresh expiry.
// POST /api/auth/refresh.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := sessionCookieValue(r)
	if raw == "" {
		writeAuthError(w, domainauth.NewError(domainauth.KindSessionExpired, "no session to refresh"))
		return
	}
	start := time.Now()
	grant, err := h.Svc.Refresh(r.Context(), raw)
	h.Metrics.ObserveOperation("refresh", string(domainauth.KindOf(err)), time.Since(start))
	if err != nil {
		switch domainauth.KindOf(err) {
		case domainauth.KindSessionExpired, domainauth.KindMalformedSession, domainauth.KindUnauthorized:
			h.Cookies.clearSession(w, r)
		}
		h.fail(w, r, err)
		return
	}
	h.writeGrant(w, r, grant)
}

// Session reports the current session. "Not signed in" is a 200, never an error.
// GET /api/auth/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	raw := sessionCookieValue(r)
	if raw == "" {
		WriteJSON(w, http.StatusOK, SessionResponse{})
		return
	}
	sum, err := h.Svc.Session(r.Context(), raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sum == nil {
		h.Cookies.clearSession(w, r)
		WriteJSON(w, http.StatusOK, SessionResponse{})
		return
	}
	WriteJSON(w, http.StatusOK, SessionResponse{Authenticated: true, User: sum})
}

func (h *AuthHandlers) writeGrant(w http.ResponseWriter, r *http.Request, g domainauth.Grant) {
	h.Cookies.setSession(w, r, g.Token)
	h.Cookies.setRoleHints(w, r, g.Token.Role, g.Token.ExpiresAt)
	WriteJSON(w, http.StatusOK, GrantResponse{
		User: g.Summary(),
		Session: SessionInfo{
			ID:        g.Token.ID,
			IssuedAt:  g.Token.IssuedAt,
			ExpiresAt: g.Token.ExpiresAt,
		},
		Warnings: g.Warnings,
	})
}

// callbackPage posts the fragment, which the server never receives, back to the API.
var callbackPage = template.Must(template.New("callback").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Signing in</title></head>
<body><p id="status">Signing you in...</p>
<script>
(function () {
  var target = {{.Target}};
  var fragment = window.location.hash;
  history.replaceState(null, "", window.location.pathname);
  fetch("/api/auth/callback", {
    method: "POST",
    credentials: "same-origin",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({fragment: fragment})
  }).then(function (res) {
    if (res.ok) { window.location.replace(target); return; }
    return res.json().then(function (body) {
      window.location.replace("/login?error=" + encodeURIComponent(body.error || "malformed_callback"));
    });
  }).catch(function () {
    window.location.replace("/login?error=provider_unavailable");
  });
})();
</script></body></html>`))

// CallbackPage is where the provider redirects the browser.
// GET /auth/callback.
func (h *AuthHandlers) CallbackPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if code := q.Get("error"); code != "" {
		h.Cookies.clearOAuth(w, r)
		http.Redirect(w, r, loginPath+"?error="+url.QueryEscape(code), http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	data := struct{ Target string }{Target: access.SafeReturnPath(q.Get("redirect"), "/app")}
	if err := callbackPage.Execute(w, data); err != nil {
		h.logger().ErrorContext(r.Context(), "render callback page", "error", err)
	}
}
