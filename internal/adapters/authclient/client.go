// Package authclient drives the gateway's auth endpoints over HTTP. It satisfies
// identity.Backend so command-line and other out-of-process clients reuse the
// identity reconciliation service.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	httpx "github.com/target/enquiry-gateway/internal/http"
)

const defaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client // optional; its Jar is replaced
	UserAgent  string
}

// Client is an HTTP implementation of identity.Backend. The session token travels only in
// the cookie jar; Raw values handed back to callers are read from it.
type Client struct {
	base      *url.URL
	http      *http.Client
	jar       http.CookieJar
	userAgent string
}

// New returns a Client for the gateway at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("authclient: base URL %q must be absolute", opts.BaseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	hc := &http.Client{Timeout: defaultTimeout}
	if opts.HTTPClient != nil {
		clone := *opts.HTTPClient
		hc = &clone
	}
	hc.Jar = jar
	// Redirects are never part of the API contract.
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	ua := opts.UserAgent
	if ua == "" {
		ua = "enquiry-gateway-client"
	}
	return &Client{base: base, http: hc, jar: jar, userAgent: ua}, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (domainauth.Grant, error) {
	return c.grant(ctx, "/api/auth", httpx.AuthRequest{Action: httpx.ActionSignIn, Email: email, Password: password})
}

func (c *Client) SignUp(ctx context.Context, email, password string, role domainauth.Role) (domainauth.Grant, error) {
	return c.grant(ctx, "/api/auth", httpx.AuthRequest{
		Action:   httpx.ActionSignUp,
		Email:    email,
		Password: password,
		Role:     string(role),
	})
}

// BeginOAuth returns the provider URL. The nonce stays in the server's cookie, so the
// returned OAuthStart carries none.
func (c *Client) BeginOAuth(ctx context.Context, provider, redirectTo string) (domainauth.OAuthStart, error) {
	var out httpx.OAuthResponse
	req := httpx.AuthRequest{Action: httpx.ActionOAuth, Provider: provider, RedirectTo: redirectTo}
	if err := c.post(ctx, "/api/auth", req, &out); err != nil {
		return domainauth.OAuthStart{}, err
	}
	return domainauth.OAuthStart{URL: out.RedirectURL, State: out.State}, nil
}

func (c *Client) CompleteOAuth(ctx context.Context, cb domainauth.OAuthCallback) (domainauth.Grant, error) {
	return c.grant(ctx, "/api/auth/callback", httpx.CallbackRequest{Fragment: cb.Encode()})
}

func (c *Client) Refresh(ctx context.Context, raw string) (domainauth.Grant, error) {
	c.setSession(raw)
	return c.grant(ctx, "/api/auth/refresh", nil)
}

// SignOut asks the server to revoke raw. The server clears the cookie even when its own
// cleanup fails, so only transport failures are reported.
func (c *Client) SignOut(ctx context.Context, raw string) error {
	c.setSession(raw)
	var out httpx.SignOutResponse
	return c.post(ctx, "/api/auth", httpx.AuthRequest{Action: httpx.ActionSignOut}, &out)
}

// Session returns the server's view of the cookie session, nil when signed out.
func (c *Client) Session(ctx context.Context, raw string) (*domainauth.SessionSummary, error) {
	c.setSession(raw)
	var out httpx.SessionResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/session", nil, &out); err != nil {
		return nil, err
	}
	if !out.Authenticated {
		return nil, nil
	}
	return out.User, nil
}

func (c *Client) grant(ctx context.Context, path string, body any) (domainauth.Grant, error) {
	var out httpx.GrantResponse
	if err := c.post(ctx, path, body, &out); err != nil {
		return domainauth.Grant{}, err
	}
	raw := c.sessionCookie()
	if raw == "" {
		return domainauth.Grant{}, domainauth.NewError(domainauth.KindInternal, "server did not set a session cookie")
	}
	return domainauth.Grant{
		Token: domainauth.SessionToken{
			ID:          out.Session.ID,
			SubjectID:   out.User.SubjectID,
			Role:        out.User.Role,
			Email:       out.User.Email,
			DisplayName: out.User.DisplayName,
			IssuedAt:    out.Session.IssuedAt,
			ExpiresAt:   out.Session.ExpiresAt,
			Raw:         raw,
		},
		Warnings: out.Warnings,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return domainauth.WrapError(err, domainauth.KindInternal, "encode request")
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), rdr)
	if err != nil {
		return domainauth.WrapError(err, domainauth.KindInternal, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return domainauth.WrapError(err, domainauth.KindProviderUnavailable, "auth server unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domainauth.WrapError(err, domainauth.KindProviderUnavailable, "read response")
	}
	if resp.StatusCode/100 != 2 {
		return errorFromResponse(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return domainauth.WrapError(err, domainauth.KindInternal, "decode response")
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorFromResponse rebuilds the typed error from the body, falling back to the status.
func errorFromResponse(status int, data []byte) error {
	var body errorBody
	_ = json.Unmarshal(data, &body)
	msg := body.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch kind := domainauth.Kind(body.Error); kind {
	case domainauth.KindInvalidCredentials, domainauth.KindProviderUnavailable, domainauth.KindSessionExpired,
		domainauth.KindMalformedSession, domainauth.KindMalformedCallback, domainauth.KindUnauthorized,
		domainauth.KindValidation, domainauth.KindSuperseded, domainauth.KindInternal:
		return domainauth.NewError(kind, msg)
	}
	switch body.Error {
	case "rate_limited":
		return domainauth.NewError(domainauth.KindProviderUnavailable, msg)
	case "authentication_required":
		return domainauth.NewError(domainauth.KindSessionExpired, msg)
	case "insufficient_permissions":
		return domainauth.NewError(domainauth.KindUnauthorized, msg)
	}
	switch {
	case status == http.StatusUnauthorized:
		return domainauth.NewError(domainauth.KindInvalidCredentials, msg)
	case status == http.StatusForbidden:
		return domainauth.NewError(domainauth.KindUnauthorized, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return domainauth.NewError(domainauth.KindProviderUnavailable, msg)
	case status >= 400 && status < 500:
		return domainauth.NewError(domainauth.KindValidation, msg)
	default:
		return domainauth.NewError(domainauth.KindInternal, fmt.Sprintf("unexpected status %d", status))
	}
}

func (c *Client) setSession(raw string) {
	ck := &http.Cookie{Name: domainauth.SessionCookieName, Value: raw, Path: "/"}
	if raw == "" {
		ck.MaxAge = -1
	}
	c.jar.SetCookies(c.base, []*http.Cookie{ck})
}

func (c *Client) sessionCookie() string {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == domainauth.SessionCookieName {
			return ck.Value
		}
	}
	return ""
}
