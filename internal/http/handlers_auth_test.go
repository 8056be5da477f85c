package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
)

func TestAuthAction_SignIn(t *testing.T) {
	f := newRouterFixture(t)
	acct := f.provider.AddAccount("ada@example.com", "s3cret", domainauth.RoleCompany)

	rec := f.do(jsonRequest(t, http.MethodPost, "/api/auth", AuthRequest{Action: ActionSignIn, Email: "ada@example.com", Password: "s3cret"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody[GrantResponse](t, rec)
	assert.Equal(t, acct.SubjectID, body.User.SubjectID)
	assert.Equal(t, domainauth.RoleCompany, body.User.Role)
	assert.Equal(t, httpNow.Add(time.Hour), body.Session.ExpiresAt)
	assert.Empty(t, body.Warnings)

	session := responseCookie(rec, domainauth.SessionCookieName)
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, session.SameSite)
	assert.Equal(t, "/", session.Path)
	assert.Equal(t, 3600, session.MaxAge)
	assert.NotContains(t, rec.Body.String(), session.Value, "the token payload stays in the cookie")

	hint := responseCookie(rec, RoleHintCookie)
	require.NotNil(t, hint)
	assert.Equal(t, "company", hint.Value)
	assert.False(t, hint.HttpOnly)
}

func TestAuthAction_SignInFailures(t *testing.T) {
	f := newRouterFixture(t)
	f.provider.AddAccount("ada@example.com", "s3cret", domainauth.RoleCompany)

	tests := []struct {
		name    string
		req     AuthRequest
		setup   func()
		status  int
		errCode string
	}{
		{name: "wrong password", req: AuthRequest{Action: ActionSignIn, Email: "ada@example.com", Password: "nope"}, status: http.StatusUnauthorized, errCode: "invalid_credentials"},
		{name: "bad email", req: AuthRequest{Action: ActionSignIn, Email: "ada", Password: "x"}, status: http.StatusBadRequest, errCode: "validation"},
		{name: "unknown action", req: AuthRequest{Action: "impersonate"}, status: http.StatusBadRequest, errCode: "validation"},
		{
			name: "provider outage",
			req:  AuthRequest{Action: ActionSignIn, Email: "ada@example.com", Password: "s3cret"},
			setup: func() {
				f.provider.VerifyFunc = func(context.Context, string, string) (domainauth.Identity, error) {
					return domainauth.Identity{}, errors.New("connection refused")
				}
			},
			status:  http.StatusServiceUnavailable,
			errCode: "provider_unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			rec := f.do(jsonRequest(t, http.MethodPost, "/api/auth", tt.req))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.errCode, decodeBody[errorBody](t, rec).Error)
			assert.Nil(t, responseCookie(rec, domainauth.SessionCookieName))
			assert.NotContains(t, rec.Body.String(), "connection refused", "causes are not leaked")
		})
	}
}

func TestAuthAction_RejectsUnknownFields(t *testing.T) {
	f := newRouterFixture(t)
	req := jsonRequest(t, http.MethodPost, "/api/auth", map[string]string{"action": ActionSignIn, "isAdmin": "true"})
	rec := f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeBody[errorBody](t, rec).Error)
}

func TestAuthAction_SignUp(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(jsonRequest(t, http.MethodPost, "/api/auth", AuthRequest{Action: ActionSignUp, Email: "new@example.com", Password: "pw", Role: "customer"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[GrantResponse](t, rec)
	assert.Equal(t, domainauth.RoleCustomer, body.User.Role)
	assert.NotNil(t, responseCookie(rec, domainauth.SessionCookieName), "sign-up signs the subject in")
	assert.True(t, f.profiles.Has(body.User.SubjectID))

	for _, role := range []string{"admin", "owner", ""} {
		rec = f.do(jsonRequest(t, http.MethodPost, "/api/auth", AuthRequest{Action: ActionSignUp, Email: role + "x@example.com", Password: "pw", Role: role}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, role)
	}
}

func TestAuthAction_SignUpProfileFailureIsAWarning(t *testing.T) {
	f := newRouterFixture(t)
	f.profiles.CreateErr = errors.New("db down")

	rec := f.do(jsonRequest(t, http.MethodPost, "/api/auth", AuthRequest{Action: ActionSignUp, Email: "new@example.com", Password: "pw", Role: "company"}))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[GrantResponse](t, rec)
	assert.Equal(t, []domainauth.Kind{domainauth.KindProfileCreationDeferred}, body.Warnings)
	assert.NotNil(t, responseCookie(rec, domainauth.SessionCookieName))
}

func TestAuthAction_RateLimited(t *testing.T) {
	f := newRouterFixture(t, func(rs *RouterServices) { rs.RateLimit = RateLimitConfig{PerMinute: 1, Burst: 2} })
	req := func() *http.Request {
		r := jsonRequest(t, http.MethodPost, "/api/auth", AuthRequest{Action: ActionSignIn, Email: "a@example.com", Password: "x"})
		r.RemoteAddr = "203.0.113.7:5555"
		return r
	}
	assert.Equal(t, http.StatusUnauthorized, f.do(req()).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(req()).Code)
	rec := f.do(req())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeBody[errorBody](t, rec).Error)
	assert.Contains(t, scrapeMetrics(t, f.metrics), `enquiry_auth_rate_limited_total{action="signIn"} 1`)

	other := req()
	other.RemoteAddr = "198.51.100.1:5555"
	assert.Equal(t, http.StatusUnauthorized, f.do(other).Code, "limits are per client")
}

func TestAuthAction_OAuthRoundTrip(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(jsonRequest(t, http.MethodPost, "/api/auth", AuthRequest{Action: ActionOAuth, Provider: "mock", RedirectTo: "/app/customer/dashboard"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	start := decodeBody[OAuthResponse](t, rec)
	assert.True(t, strings.HasPrefix(start.State, "mock."))
	assert.Contains(t, start.RedirectURL, "state="+start.State)
	stateCookie := responseCookie(rec, oauthStateCookie)
	nonceCookie := responseCookie(rec, oauthNonceCookie)
	require.NotNil(t, stateCookie)
	require.NotNil(t, nonceCookie)
	assert.Equal(t, oauthCookieTTL, stateCookie.MaxAge)
	assert.NotContains(t, rec.Body.String(), nonceCookie.Value, "the nonce stays server side")

	fragment := url.Values{"access_token": {"at"}, "state": {start.State}}.Encode()
	cb := jsonRequest(t, http.MethodPost, "/api/auth/callback", CallbackRequest{Fragment: "#" + fragment})
	cb.AddCookie(stateCookie)
	cb.AddCookie(nonceCookie)
	rec = f.do(cb)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "oauth-user-1", decodeBody[GrantResponse](t, rec).User.SubjectID)
	assert.NotNil(t, responseCookie(rec, domainauth.SessionCookieName))
	assert.Equal(t, -1, responseCookie(rec, oauthStateCookie).MaxAge, "pending state is consumed")
}

func TestAuthCallback_RepeatedFragmentIsIdempotent(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(jsonRequest(t, http.MethodPost, "/api/auth", AuthRequest{Action: ActionOAuth, Provider: "mock"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	start := decodeBody[OAuthResponse](t, rec)
	stateCookie := responseCookie(rec, oauthStateCookie)
	nonceCookie := responseCookie(rec, oauthNonceCookie)

	fragment := "#" + url.Values{"access_token": {"at"}, "state": {start.State}}.Encode()
	first := jsonRequest(t, http.MethodPost, "/api/auth/callback", CallbackRequest{Fragment: fragment})
	first.AddCookie(stateCookie)
	first.AddCookie(nonceCookie)
	rec = f.do(first)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	issued := decodeBody[GrantResponse](t, rec)
	sessionCookie := responseCookie(rec, domainauth.SessionCookieName)
	doneCookie := responseCookie(rec, oauthDoneCookie)
	require.NotNil(t, sessionCookie)
	require.NotNil(t, doneCookie)
	assert.True(t, doneCookie.HttpOnly)
	require.Equal(t, 1, f.provider.Exchanges())

	second := func(fragment string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
		req := jsonRequest(t, http.MethodPost, "/api/auth/callback", CallbackRequest{Fragment: fragment})
		for _, c := range cookies {
			req.AddCookie(c)
		}
		return f.do(req)
	}

	t.Run("same fragment returns the current session", func(t *testing.T) {
		rec := second(fragment, sessionCookie, doneCookie)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := decodeBody[GrantResponse](t, rec)
		assert.Equal(t, issued.User.SubjectID, got.User.SubjectID)
		assert.Equal(t, issued.Session.ID, got.Session.ID)
		assert.Nil(t, responseCookie(rec, domainauth.SessionCookieName), "no second session is written")
		assert.Equal(t, 1, f.provider.Exchanges())
	})

	t.Run("other fragment still needs a pending sign-in", func(t *testing.T) {
		other := "#" + url.Values{"access_token": {"other"}, "state": {start.State}}.Encode()
		rec := second(other, sessionCookie, doneCookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "malformed_callback", decodeBody[errorBody](t, rec).Error)
	})

	t.Run("without the session it produced", func(t *testing.T) {
		rec := second(fragment, doneCookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("after the session was revoked", func(t *testing.T) {
		tok, err := f.codec.Parse(sessionCookie.Value)
		require.NoError(t, err)
		require.NoError(t, f.revocations.Revoke(context.Background(), tok))
		rec := second(fragment, sessionCookie, doneCookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 1, f.provider.Exchanges())
	})
}

func TestAuthCallback_Rejections(t *testing.T) {
	f := newRouterFixture(t)
	state := &http.Cookie{Name: oauthStateCookie, Value: "mock.abc"}

	tests := []struct {
		name     string
		fragment string
		cookies  []*http.Cookie
	}{
		{name: "empty", fragment: "", cookies: []*http.Cookie{state}},
		{name: "provider error", fragment: "error=access_denied&state=mock.abc", cookies: []*http.Cookie{state}},
		{name: "no token", fragment: "state=mock.abc", cookies: []*http.Cookie{state}},
		{name: "no pending sign-in", fragment: "access_token=at&state=mock.abc"},
		{name: "state mismatch", fragment: "access_token=at&state=mock.other", cookies: []*http.Cookie{state}},
		{name: "unknown provider", fragment: "access_token=at&state=ghost.abc", cookies: []*http.Cookie{{Name: oauthStateCookie, Value: "ghost.abc"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(t, http.MethodPost, "/api/auth/callback", CallbackRequest{Fragment: tt.fragment})
			for _, c := range tt.cookies {
				req.AddCookie(c)
			}
			rec := f.do(req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "malformed_callback", decodeBody[errorBody](t, rec).Error)
			assert.Nil(t, responseCookie(rec, domainauth.SessionCookieName))
		})
	}
	assert.Zero(t, f.provider.Exchanges())
}

func TestAuthSession(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(jsonRequest(t, http.MethodGet, "/api/auth/session", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[SessionResponse](t, rec).Authenticated)

	cookie, tok := f.session(t, domainauth.RoleCustomer)
	req := jsonRequest(t, http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[SessionResponse](t, rec)
	require.True(t, body.Authenticated)
	assert.Equal(t, tok.SubjectID, body.User.SubjectID)

	req = jsonRequest(t, http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: domainauth.SessionCookieName, Value: "junk"})
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[SessionResponse](t, rec).Authenticated)
	assert.Equal(t, -1, responseCookie(rec, domainauth.SessionCookieName).MaxAge)
}

func TestAuthRefresh(t *testing.T) {
	f := newRouterFixture(t)
	cookie, old := f.session(t, domainauth.RoleCompany)

	req := jsonRequest(t, http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(cookie)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fresh := responseCookie(rec, domainauth.SessionCookieName)
	require.NotNil(t, fresh)
	assert.NotEqual(t, cookie.Value, fresh.Value)
	revoked, err := f.revocations.IsRevoked(context.Background(), old.ID)
	require.NoError(t, err)
	assert.True(t, revoked, "the rotated token is revoked")

	rec = f.do(jsonRequest(t, http.MethodPost, "/api/auth/refresh", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session_expired", decodeBody[errorBody](t, rec).Error)
}

func TestAuthAction_SignOut(t *testing.T) {
	f := newRouterFixture(t)
	cookie, tok := f.session(t, domainauth.RoleCustomer)

	req := jsonRequest(t, http.MethodPost, "/api/auth", AuthRequest{Action: ActionSignOut})
	req.AddCookie(cookie)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[SignOutResponse](t, rec).SignedOut)
	for _, name := range []string{domainauth.SessionCookieName, RoleHintCookie, UIRoleHintCookie} {
		c := responseCookie(rec, name)
		require.NotNil(t, c, name)
		assert.Equal(t, -1, c.MaxAge, name)
	}
	assert.Equal(t, []string{tok.SubjectID}, f.provider.Invalidated())

	// The old cookie no longer opens protected pages.
	req = browserRequest("/app/customer/dashboard", cookie)
	rec = f.do(req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/login")
}

func TestAuthAction_SignOutSucceedsWhenBackendFails(t *testing.T) {
	f := newRouterFixture(t)
	f.revocations.Err = errors.New("redis down")
	f.provider.InvalidateFunc = func(context.Context, string) error { return errors.New("idp down") }
	cookie, _ := f.session(t, domainauth.RoleCustomer)

	req := jsonRequest(t, http.MethodPost, "/api/auth", AuthRequest{Action: ActionSignOut})
	req.AddCookie(cookie)
	rec := f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -1, responseCookie(rec, domainauth.SessionCookieName).MaxAge)
}

func TestCallbackPage(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(browserRequest("/auth/callback?error=access_denied"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?error=access_denied", rec.Header().Get("Location"))

	rec = f.do(browserRequest("/auth/callback?redirect=%2Fapp%2Fcompany%2Fdashboard"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/auth/callback")
	assert.Contains(t, rec.Body.String(), "company")
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))

	rec = f.do(browserRequest("/auth/callback?redirect=%2F%2Fevil.example"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "evil.example")
}

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, statusForKind(domainauth.KindInvalidCredentials))
	assert.Equal(t, http.StatusServiceUnavailable, statusForKind(domainauth.KindProviderUnavailable))
	assert.Equal(t, http.StatusBadRequest, statusForKind(domainauth.KindMalformedCallback))
	assert.Equal(t, http.StatusForbidden, statusForKind(domainauth.KindUnauthorized))
	assert.Equal(t, http.StatusInternalServerError, statusForKind(domainauth.KindInternal))
}

func TestAuthAction_RequiresJSONBody(t *testing.T) {
	f := newRouterFixture(t)
	req := jsonRequest(t, http.MethodPost, "/api/auth", AuthRequest{Action: ActionSignOut})
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := f.do(req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}
