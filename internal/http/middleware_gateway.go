package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/target/enquiry-gateway/internal/domain/access"
	"github.com/target/enquiry-gateway/internal/observability/metrics"
	"github.com/target/enquiry-gateway/internal/ports"
)

const (
	loginPath        = "/login"
	unauthorizedPath = "/unauthorized"
)

// GatewayMiddlewareConfig groups dependencies for the Gateway middleware.
type GatewayMiddlewareConfig struct {
	Gateway     *access.Gateway
	Revocations ports.RevocationStore // optional
	Cookies     CookieConfig
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Gateway runs every request through the access gateway before any handler sees it.
// Browser requests are redirected with 303; API requests get 401 for missing or unusable
// sessions and 403 for role mismatches.
func Gateway(cfg GatewayMiddlewareConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gw := cfg.Gateway
	if gw == nil {
		gw = access.NewGateway(access.GatewayOptions{})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie := sessionCookieValue(r)
			d := gw.Authorize(r.URL.Path, cookie)
			d = checkRevocation(r, d, cfg.Revocations, logger)
			cfg.Metrics.ObserveDecision(string(d.Kind), string(d.Reason))

			switch d.Kind {
			case access.DecisionAllow:
				next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), d.Token)))
			case access.DecisionRedirectUnauthorized:
				if isBrowserRequest(r) {
					http.Redirect(w, r, unauthorizedPath, http.StatusSeeOther)
					return
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Err:     errors.New("insufficient permissions"),
				})
			default:
				if cookie != "" && d.Reason != access.ReasonRevocationUnavailable {
					cfg.Cookies.clearSession(w, r)
				}
				if isBrowserRequest(r) {
					redirectToLogin(w, r, d.ReturnPath)
					return
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
			}
		})
	}
}

// checkRevocation demotes an allow decision whose token was signed out elsewhere.
// A store failure denies the request but keeps the cookie.
func checkRevocation(r *http.Request, d access.Decision, store ports.RevocationStore, logger *slog.Logger) access.Decision {
	if store == nil || d.Kind != access.DecisionAllow || d.Token == nil {
		return d
	}
	revoked, err := store.IsRevoked(r.Context(), d.Token.ID)
	if err == nil && !revoked {
		return d
	}
	reason := access.ReasonRevokedSession
	if err != nil {
		logger.WarnContext(r.Context(), "revocation lookup failed", "error", err)
		reason = access.ReasonRevocationUnavailable
	}
	return access.Decision{
		Kind:         access.DecisionRedirectLogin,
		Reason:       reason,
		ReturnPath:   access.NormalizePath(r.URL.Path),
		RequiredRole: d.RequiredRole,
	}
}

// redirectToLogin sends the browser to the login page, carrying where it wanted to go.
func redirectToLogin(w http.ResponseWriter, r *http.Request, returnPath string) {
	target := returnPath
	if target != "" && r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	target = access.SafeReturnPath(target, "/")
	http.Redirect(w, r, loginPath+"?redirect="+url.QueryEscape(target), http.StatusSeeOther)
}
