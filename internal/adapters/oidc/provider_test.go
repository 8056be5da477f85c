package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/ports"
)

// fakeIssuer serves discovery, JWKS and a password-grant token endpoint.
type fakeIssuer struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey
	claims jwt.MapClaims // extra claims merged into issued id_tokens
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	fi := &fakeIssuer{t: t, key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(DiscoveryDocument{
			Issuer:                fi.server.URL,
			AuthorizationEndpoint: fi.server.URL + "/authorize",
			TokenEndpoint:         fi.server.URL + "/token",
			UserinfoEndpoint:      fi.server.URL + "/userinfo",
			JwksURI:               fi.server.URL + "/jwks",
			SigningAlgs:           []string{"RS256"},
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, _ *http.Request) {
		pub := fi.key.PublicKey
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "k1",
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("grant_type") != "password" || r.PostForm.Get("password") != "correct" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"token_type":   "bearer",
			"expires_in":   600,
			"id_token":     fi.idToken(jwt.MapClaims{"sub": "pw-user", "email": r.PostForm.Get("username")}),
		})
	})
	fi.server = httptest.NewServer(mux)
	t.Cleanup(fi.server.Close)
	return fi
}

func (fi *fakeIssuer) idToken(extra jwt.MapClaims) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": fi.server.URL,
		"aud": "test-client",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range fi.claims {
		claims[k] = v
	}
	for k, v := range extra {
		claims[k] = v
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(fi.key)
	require.NoError(fi.t, err)
	return signed
}

func newTestProvider(t *testing.T, fi *fakeIssuer, mutate ...func(*ProviderConfig)) *Provider {
	t.Helper()
	cfg := ProviderConfig{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		DiscoveryURL: fi.server.URL + "/.well-known/openid-configuration",
		BaseURL:      "https://app.example",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	return p
}

func TestNewProvider_Success(t *testing.T) {
	fi := newFakeIssuer(t)
	p := newTestProvider(t, fi)
	assert.Equal(t, fi.server.URL+"/authorize", p.config.Endpoint.AuthURL)
	assert.Equal(t, fi.server.URL+"/token", p.config.Endpoint.TokenURL)
	assert.Equal(t, []string{"openid", "profile", "email"}, p.config.Scopes)
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{name: "missing client ID", config: ProviderConfig{DiscoveryURL: "http://example.com"}, errMsg: "client ID is required"},
		{name: "missing discovery URL", config: ProviderConfig{ClientID: "c"}, errMsg: "discovery URL is required"},
		{name: "relative base URL", config: ProviderConfig{ClientID: "c", DiscoveryURL: "http://example.com", BaseURL: "/app"}, errMsg: "base URL must be absolute"},
		{name: "bad groups expression", config: ProviderConfig{ClientID: "c", DiscoveryURL: "http://example.com", GroupsClaim: "groups[["}, errMsg: "groups claim expression"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_AuthorizeURL(t *testing.T) {
	p := newTestProvider(t, newFakeIssuer(t))

	raw, err := p.AuthorizeURL(context.Background(), ports.OAuthRequest{
		State:       "corp.s1",
		Nonce:       "n1",
		CallbackURL: "/auth/callback?redirect=%2Fapp",
	})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "id_token token", q.Get("response_type"))
	assert.Equal(t, "fragment", q.Get("response_mode"))
	assert.Equal(t, "corp.s1", q.Get("state"))
	assert.Equal(t, "n1", q.Get("nonce"))
	assert.Equal(t, "https://app.example/auth/callback?redirect=%2Fapp", q.Get("redirect_uri"))
	assert.Equal(t, "test-client", q.Get("client_id"))

	_, err = p.AuthorizeURL(context.Background(), ports.OAuthRequest{State: "s"})
	assert.Equal(t, domainauth.KindValidation, domainauth.KindOf(err))
}

func TestProvider_ExchangeOAuthCode(t *testing.T) {
	fi := newFakeIssuer(t)
	p := newTestProvider(t, fi)

	id, err := p.ExchangeOAuthCode(context.Background(), domainauth.OAuthCallback{
		IDToken: fi.idToken(jwt.MapClaims{
			"sub":         "u-1",
			"email":       "u@example.com",
			"given_name":  "Una",
			"family_name": "User",
			"groups":      []string{"enquiry-company"},
			"nonce":       "n1",
		}),
		Nonce: "n1",
	})
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.SubjectID)
	assert.Equal(t, "u@example.com", id.Email)
	assert.Equal(t, "Una User", id.DisplayName)
	assert.Equal(t, []string{"enquiry-company"}, id.Groups)
	assert.Empty(t, id.Role, "role is left to the role mapper")
	assert.False(t, id.ExpiresAt.IsZero())
}

func TestProvider_ExchangeOAuthCode_ADShapeAndRoleClaim(t *testing.T) {
	fi := newFakeIssuer(t)
	p := newTestProvider(t, fi, func(c *ProviderConfig) { c.RoleClaim = "app_role" })

	id, err := p.ExchangeOAuthCode(context.Background(), domainauth.OAuthCallback{
		IDToken: fi.idToken(jwt.MapClaims{
			"sub":            "opaque",
			"samaccountname": "z001",
			"mail":           "z@corp.example",
			"memberof":       []string{"CN=admins"},
			"app_role":       "Admin",
			"nonce":          "n2",
		}),
		Nonce: "n2",
	})
	require.NoError(t, err)
	assert.Equal(t, "z001", id.SubjectID)
	assert.Equal(t, "z@corp.example", id.Email)
	assert.Equal(t, []string{"CN=admins"}, id.Groups)
	assert.Equal(t, domainauth.RoleAdmin, id.Role)
}

func TestProvider_ExchangeOAuthCode_Rejects(t *testing.T) {
	fi := newFakeIssuer(t)
	p := newTestProvider(t, fi)
	other := newFakeIssuer(t)

	cases := map[string]domainauth.OAuthCallback{
		"no id_token":          {AccessToken: "at", Nonce: "n1"},
		"garbage":              {IDToken: "not.a.jwt", Nonce: "n1"},
		"nonce mismatch":       {IDToken: fi.idToken(jwt.MapClaims{"sub": "u", "nonce": "other"}), Nonce: "n1"},
		"token without nonce":  {IDToken: fi.idToken(jwt.MapClaims{"sub": "u"}), Nonce: "n1"},
		"no pending sign-in":   {IDToken: fi.idToken(jwt.MapClaims{"sub": "u", "nonce": "n1"})},
		"wrong audience":       {IDToken: fi.idToken(jwt.MapClaims{"sub": "u", "nonce": "n1", "aud": "someone-else"}), Nonce: "n1"},
		"expired":              {IDToken: fi.idToken(jwt.MapClaims{"sub": "u", "nonce": "n1", "exp": time.Now().Add(-time.Hour).Unix()}), Nonce: "n1"},
		"foreign issuer":       {IDToken: other.idToken(jwt.MapClaims{"sub": "u", "nonce": "n1"}), Nonce: "n1"},
		"no subject":           {IDToken: fi.idToken(jwt.MapClaims{"email": "x@example.com", "nonce": "n1"}), Nonce: "n1"},
		"access_token swapped": {IDToken: fi.idToken(jwt.MapClaims{"sub": "u", "nonce": "n1", "at_hash": "AAAAAAAAAAAAAAAAAAAAAA"}), AccessToken: "at", Nonce: "n1"},
	}
	for name, cb := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.ExchangeOAuthCode(context.Background(), cb)
			require.Error(t, err)
			assert.ErrorIs(t, err, domainauth.ErrMalformedCallback)
		})
	}
}

func TestProvider_VerifyCredentials(t *testing.T) {
	fi := newFakeIssuer(t)
	p := newTestProvider(t, fi)

	id, err := p.VerifyCredentials(context.Background(), "pw@example.com", "correct")
	require.NoError(t, err)
	assert.Equal(t, "pw-user", id.SubjectID)
	assert.Equal(t, "pw@example.com", id.Email)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), id.ExpiresAt, time.Minute)

	_, err = p.VerifyCredentials(context.Background(), "pw@example.com", "wrong")
	assert.ErrorIs(t, err, domainauth.ErrInvalidCredentials)
}

func TestProvider_VerifyCredentials_OutageIsNotInvalidCredentials(t *testing.T) {
	fi := newFakeIssuer(t)
	p := newTestProvider(t, fi)
	fi.server.Close()

	_, err := p.VerifyCredentials(context.Background(), "pw@example.com", "correct")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domainauth.ErrInvalidCredentials)
}

func TestProvider_CreateSubjectUnsupported(t *testing.T) {
	p := newTestProvider(t, newFakeIssuer(t))
	_, err := p.CreateSubject(context.Background(), ports.CreateSubjectInput{Email: "a@b.com"})
	assert.Equal(t, domainauth.KindValidation, domainauth.KindOf(err))
	assert.NoError(t, p.InvalidateSession(context.Background(), "s"))
}

func TestToStrings(t *testing.T) {
	assert.Equal(t, []string{"a"}, toStrings("a"))
	assert.Nil(t, toStrings(""))
	assert.Equal(t, []string{"a", "b"}, toStrings([]any{"a", 1, "", "b"}))
	assert.Nil(t, toStrings(42))
}
