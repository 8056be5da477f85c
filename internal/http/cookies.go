package httpx

import (
	"net/http"
	"strings"
	"time"

	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
)

const (
	// RoleHintCookie and UIRoleHintCookie cache the subject's role for client-side navigation.
	// They are readable by scripts and never consulted for authorization.
	RoleHintCookie   = "enq_role"
	UIRoleHintCookie = "enq_ui_role"
	// RoleHintHeader is a read-only hint location set by client code.
	RoleHintHeader = "X-Role-Hint"

	oauthStateCookie = "oauth_state"
	oauthNonceCookie = "oauth_nonce"
	// oauthDoneCookie remembers the last completed callback as "<fingerprint>.<token id>".
	oauthDoneCookie = "oauth_done"
	oauthCookieTTL  = 600 // 10 minutes
)

// CookieConfig holds the attributes shared by every cookie the service writes.
type CookieConfig struct {
	Domain string
	// Secure forces the Secure attribute; otherwise it follows the request scheme.
	Secure bool
	Now    func() time.Time
}

func (c CookieConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c CookieConfig) secure(r *http.Request) bool {
	return c.Secure || r.TLS != nil || isForwardedHTTPS(r)
}

// isForwardedHTTPS checks if the request was forwarded over HTTPS.
// Handles comma-separated values in X-Forwarded-Proto header.
func isForwardedHTTPS(r *http.Request) bool {
	xfProto := r.Header.Get("X-Forwarded-Proto")
	if xfProto == "" {
		return false
	}
	for _, proto := range strings.Split(xfProto, ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}

// setSession writes the session cookie with Max-Age equal to the token's remaining lifetime.
func (c CookieConfig) setSession(w http.ResponseWriter, r *http.Request, tok domainauth.SessionToken) {
	maxAge := int(tok.Remaining(c.now()).Seconds())
	if maxAge < 1 {
		// Max-Age=0 would turn it into a browser-session cookie.
		c.clear(w, r, domainauth.SessionCookieName)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     domainauth.SessionCookieName,
		Value:    tok.Raw,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// setRoleHints writes both hint cookies to role. They live as long as the session.
func (c CookieConfig) setRoleHints(w http.ResponseWriter, r *http.Request, role domainauth.Role, expires time.Time) {
	maxAge := int(expires.Sub(c.now()).Seconds())
	if maxAge < 1 {
		maxAge = -1
	}
	for _, name := range []string{RoleHintCookie, UIRoleHintCookie} {
		c.setHint(w, r, name, role, maxAge)
	}
}

func (c CookieConfig) setHint(w http.ResponseWriter, r *http.Request, name string, role domainauth.Role, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    string(role),
		Path:     "/",
		Domain:   c.Domain,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// setOAuth stores the pending redirect sign-in's state and nonce.
func (c CookieConfig) setOAuth(w http.ResponseWriter, r *http.Request, state, nonce string) {
	for name, value := range map[string]string{oauthStateCookie: state, oauthNonceCookie: nonce} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Domain:   c.Domain,
			HttpOnly: true,
			Secure:   c.secure(r),
			SameSite: http.SameSiteLaxMode,
			MaxAge:   oauthCookieTTL,
		})
	}
}

// setCallbackDone records which fragment produced the current session.
func (c CookieConfig) setCallbackDone(w http.ResponseWriter, r *http.Request, fingerprint, tokenID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthDoneCookie,
		Value:    fingerprint + "." + tokenID,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   oauthCookieTTL,
	})
}

// callbackDone returns the fingerprint and token id recorded by setCallbackDone.
func callbackDone(r *http.Request) (fingerprint, tokenID string, ok bool) {
	return strings.Cut(cookieValue(r, oauthDoneCookie), ".")
}

// clear expires a cookie. It mirrors the attributes used when setting cookies
// so every browser accepts the deletion.
func (c CookieConfig) clear(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: name == domainauth.SessionCookieName || strings.HasPrefix(name, "oauth_"),
		Secure:   c.secure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSession removes the session cookie, both role hints and the completed-callback marker.
func (c CookieConfig) clearSession(w http.ResponseWriter, r *http.Request) {
	c.clear(w, r, domainauth.SessionCookieName)
	c.clear(w, r, RoleHintCookie)
	c.clear(w, r, UIRoleHintCookie)
	if cookieValue(r, oauthDoneCookie) != "" {
		c.clear(w, r, oauthDoneCookie)
	}
}

func (c CookieConfig) clearOAuth(w http.ResponseWriter, r *http.Request) {
	c.clear(w, r, oauthStateCookie)
	c.clear(w, r, oauthNonceCookie)
}

func cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

func sessionCookieValue(r *http.Request) string {
	return cookieValue(r, domainauth.SessionCookieName)
}
