package oidc

// Package oidc adapts an OpenID Connect identity provider to the auth ports: redirect sign-in
// with tokens returned in the URL fragment, and email/password sign-in via the password grant.

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	jmespath "github.com/jmespath-community/go-jmespath"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/ports"
	"golang.org/x/oauth2"
)

// DefaultGroupsClaim extracts groups from the common OIDC and AD/ADFS claim shapes.
const DefaultGroupsClaim = "groups || memberof || `[]`"

var (
	_ ports.OAuthProvider      = (*Provider)(nil)
	_ ports.CredentialProvider = (*Provider)(nil)
)

// Provider implements OAuthProvider and CredentialProvider against an OIDC issuer.
type Provider struct {
	config      *oauth2.Config
	httpClient  *http.Client
	baseURL     *url.URL
	groupsClaim string
	roleClaim   string

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string // required only for the password grant
	Scope        string
	DiscoveryURL string
	// BaseURL resolves relative callback URLs into the absolute redirect_uri sent to the issuer.
	BaseURL string
	// GroupsClaim is a JMESPath expression over the id_token claims yielding a list of groups.
	GroupsClaim string
	// RoleClaim, when set, is a JMESPath expression yielding the application role directly.
	RoleClaim  string
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
	Now        func() time.Time
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	UserinfoEndpoint      string   `json:"userinfo_endpoint"`
	JwksURI               string   `json:"jwks_uri"`
	SigningAlgs           []string `json:"id_token_signing_alg_values_supported,omitempty"`
}

// NewProvider creates a new OIDC provider, fetching the issuer's discovery document once.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}
	var base *url.URL
	if config.BaseURL != "" {
		u, err := url.Parse(config.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("base URL must be absolute: %q", config.BaseURL)
		}
		base = u
	}
	groups := config.GroupsClaim
	if groups == "" {
		groups = DefaultGroupsClaim
	}
	if _, err := jmespath.Compile(groups); err != nil {
		return nil, fmt.Errorf("groups claim expression: %w", err)
	}
	if config.RoleClaim != "" {
		if _, err := jmespath.Compile(config.RoleClaim); err != nil {
			return nil, fmt.Errorf("role claim expression: %w", err)
		}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	// Initialize go-oidc provider and verifier (single discovery fetch)
	ctx = gooidc.ClientContext(ctx, httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	scopes := strings.Fields(config.Scope)
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}
	return &Provider{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
		httpClient:   httpClient,
		baseURL:      base,
		groupsClaim:  groups,
		roleClaim:    config.RoleClaim,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID, Now: config.Now}),
	}, nil
}

// AuthorizeURL builds an implicit-flow URL: the issuer returns id_token and access_token in
// the fragment of the callback URL.
func (p *Provider) AuthorizeURL(_ context.Context, in ports.OAuthRequest) (string, error) {
	if in.State == "" || in.Nonce == "" {
		return "", domainauth.NewError(domainauth.KindValidation, "state and nonce are required")
	}
	redirectURI, err := p.resolve(in.CallbackURL)
	if err != nil {
		return "", err
	}
	return p.config.AuthCodeURL(in.State,
		oauth2.SetAuthURLParam("response_type", "id_token token"),
		oauth2.SetAuthURLParam("response_mode", "fragment"),
		oauth2.SetAuthURLParam("redirect_uri", redirectURI),
		oauth2.SetAuthURLParam("nonce", in.Nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	), nil
}

func (p *Provider) resolve(callback string) (string, error) {
	if callback == "" {
		return "", domainauth.NewError(domainauth.KindValidation, "callback URL is required")
	}
	u, err := url.Parse(callback)
	if err != nil {
		return "", domainauth.WrapError(err, domainauth.KindValidation, "callback URL is invalid")
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if p.baseURL == nil {
		return "", domainauth.NewError(domainauth.KindValidation, "relative callback URL needs a configured base URL")
	}
	return p.baseURL.ResolveReference(u).String(), nil
}

// ExchangeOAuthCode verifies the id_token carried in the callback and maps its claims.
// cb.Nonce must hold the nonce of the pending sign-in; a callback nobody started is rejected.
func (p *Provider) ExchangeOAuthCode(ctx context.Context, cb domainauth.OAuthCallback) (domainauth.Identity, error) {
	if cb.IDToken == "" {
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindMalformedCallback, "callback carries no id_token")
	}
	if cb.Nonce == "" {
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindMalformedCallback, "no pending sign-in to match the id_token nonce")
	}
	ctx = gooidc.ClientContext(ctx, p.httpClient)
	idTok, err := p.verifier.Verify(ctx, cb.IDToken)
	if err != nil {
		return domainauth.Identity{}, domainauth.WrapError(err, domainauth.KindMalformedCallback, "id_token rejected")
	}
	if subtle.ConstantTimeCompare([]byte(idTok.Nonce), []byte(cb.Nonce)) != 1 {
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindMalformedCallback, "id_token nonce mismatch")
	}
	if cb.AccessToken != "" && idTok.AccessTokenHash != "" {
		if verr := idTok.VerifyAccessToken(cb.AccessToken); verr != nil {
			return domainauth.Identity{}, domainauth.WrapError(verr, domainauth.KindMalformedCallback, "access_token does not match id_token")
		}
	}
	var claims map[string]any
	if cerr := idTok.Claims(&claims); cerr != nil {
		return domainauth.Identity{}, domainauth.WrapError(cerr, domainauth.KindMalformedCallback, "parse id_token claims")
	}
	id, err := p.identityFromClaims(claims)
	if err != nil {
		return domainauth.Identity{}, err
	}
	id.ExpiresAt = idTok.Expiry
	return id, nil
}

// VerifyCredentials signs in with the resource owner password grant.
func (p *Provider) VerifyCredentials(ctx context.Context, email, password string) (domainauth.Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.config.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && isCredentialRejection(re) {
			return domainauth.Identity{}, domainauth.NewError(domainauth.KindInvalidCredentials, "invalid email or password")
		}
		return domainauth.Identity{}, fmt.Errorf("password grant: %w", err)
	}

	var claims map[string]any
	if rawID, ok := tok.Extra("id_token").(string); ok && rawID != "" {
		idTok, verr := p.verifier.Verify(gooidc.ClientContext(ctx, p.httpClient), rawID)
		if verr != nil {
			return domainauth.Identity{}, fmt.Errorf("verify id_token: %w", verr)
		}
		if cerr := idTok.Claims(&claims); cerr != nil {
			return domainauth.Identity{}, fmt.Errorf("parse id_token claims: %w", cerr)
		}
	} else {
		ui, uerr := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
		if uerr != nil {
			return domainauth.Identity{}, fmt.Errorf("fetch user info: %w", uerr)
		}
		if cerr := ui.Claims(&claims); cerr != nil {
			return domainauth.Identity{}, fmt.Errorf("decode user info: %w", cerr)
		}
	}
	id, err := p.identityFromClaims(claims)
	if err != nil {
		return domainauth.Identity{}, err
	}
	if id.Email == "" {
		id.Email = email
	}
	if !tok.Expiry.IsZero() {
		id.ExpiresAt = tok.Expiry
	}
	return id, nil
}

// CreateSubject is not offered by OIDC issuers; accounts are provisioned at the issuer.
func (p *Provider) CreateSubject(context.Context, ports.CreateSubjectInput) (domainauth.Identity, error) {
	return domainauth.Identity{}, domainauth.NewError(domainauth.KindValidation, "self-registration is not available with this identity provider")
}

// InvalidateSession is a no-op: implicit-flow tokens are not held server side.
func (p *Provider) InvalidateSession(context.Context, string) error { return nil }

func isCredentialRejection(re *oauth2.RetrieveError) bool {
	switch re.ErrorCode {
	case "invalid_grant", "invalid_client", "unauthorized_client":
		return true
	}
	return re.Response != nil && (re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized)
}

// identityFromClaims maps raw claims into an Identity using precedence rules.
func (p *Provider) identityFromClaims(claims map[string]any) (domainauth.Identity, error) {
	id := domainauth.Identity{
		SubjectID: firstNonEmpty(stringClaim(claims, "samaccountname"), stringClaim(claims, "sub")),
		Email:     firstNonEmpty(stringClaim(claims, "email"), stringClaim(claims, "mail")),
		DisplayName: firstNonEmpty(
			stringClaim(claims, "name"),
			strings.TrimSpace(firstNonEmpty(stringClaim(claims, "given_name"), stringClaim(claims, "firstname"))+" "+
				firstNonEmpty(stringClaim(claims, "family_name"), stringClaim(claims, "lastname"))),
		),
	}
	if id.SubjectID == "" {
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindMalformedCallback, "claims carry no subject")
	}

	groups, err := jmespath.Search(p.groupsClaim, claims)
	if err != nil {
		return domainauth.Identity{}, domainauth.WrapError(err, domainauth.KindInternal, "evaluate groups claim")
	}
	id.Groups = toStrings(groups)

	if p.roleClaim != "" {
		raw, rerr := jmespath.Search(p.roleClaim, claims)
		if rerr != nil {
			return domainauth.Identity{}, domainauth.WrapError(rerr, domainauth.KindInternal, "evaluate role claim")
		}
		if s, ok := raw.(string); ok {
			if role, perr := domainauth.ParseRole(s); perr == nil {
				id.Role = role
			}
		}
	}
	return id, nil
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	default:
		return nil
	}
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
