package authclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/enquiry-gateway/internal/domain/access"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	httpx "github.com/target/enquiry-gateway/internal/http"
	"github.com/target/enquiry-gateway/internal/identity"
	fakes "github.com/target/enquiry-gateway/internal/mocks/auth"
	"github.com/target/enquiry-gateway/internal/ports"
	"github.com/target/enquiry-gateway/internal/service"
)

type serverFixture struct {
	server      *httptest.Server
	provider    *fakes.FakeProvider
	revocations *fakes.MemoryRevocationStore
}

func newServer(t *testing.T) *serverFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &serverFixture{
		provider:    fakes.NewFakeProvider(),
		revocations: fakes.NewMemoryRevocationStore(),
	}
	codec := fakes.NewFakeCodec(nil)
	svc := service.NewAuthService(service.AuthServiceOptions{
		Credentials: f.provider,
		OAuth:       map[string]ports.OAuthProvider{"mock": f.provider},
		Profiles:    fakes.NewMemoryProfileStore(),
		Codec:       codec,
		Revocations: f.revocations,
		SessionTTL:  time.Hour,
		Logger:      logger,
	})
	f.server = httptest.NewServer(httpx.NewRouter(httpx.RouterServices{
		Auth:        svc,
		Gateway:     access.NewGateway(access.GatewayOptions{Parser: codec}),
		Revocations: f.revocations,
		Logger:      logger,
	}))
	t.Cleanup(f.server.Close)
	return f
}

func newClient(t *testing.T, base string) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: base})
	require.NoError(t, err)
	return c
}

func TestNew_RejectsRelativeBase(t *testing.T) {
	_, err := New(Options{BaseURL: "/api"})
	require.Error(t, err)
}

func TestClient_SignIn(t *testing.T) {
	f := newServer(t)
	acct := f.provider.AddAccount("ada@example.com", "pw", domainauth.RoleCompany)
	c := newClient(t, f.server.URL)

	grant, err := c.SignIn(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, acct.SubjectID, grant.Token.SubjectID)
	assert.Equal(t, domainauth.RoleCompany, grant.Token.Role)
	assert.NotEmpty(t, grant.Token.ID)
	assert.Equal(t, "tok-1", grant.Token.Raw, "raw token comes from the cookie jar")
	assert.True(t, grant.Token.ExpiresAt.After(grant.Token.IssuedAt))

	_, err = c.SignIn(context.Background(), "ada@example.com", "wrong")
	assert.ErrorIs(t, err, domainauth.ErrInvalidCredentials)
}

func TestClient_SessionAndSignOut(t *testing.T) {
	f := newServer(t)
	f.provider.AddAccount("ada@example.com", "pw", domainauth.RoleCustomer)
	c := newClient(t, f.server.URL)
	ctx := context.Background()

	grant, err := c.SignIn(ctx, "ada@example.com", "pw")
	require.NoError(t, err)

	sum, err := c.Session(ctx, grant.Token.Raw)
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, grant.Token.SubjectID, sum.SubjectID)

	require.NoError(t, c.SignOut(ctx, grant.Token.Raw))
	revoked, err := f.revocations.IsRevoked(ctx, grant.Token.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	sum, err = c.Session(ctx, grant.Token.Raw)
	require.NoError(t, err)
	assert.Nil(t, sum, "a revoked token reads as signed out")
}

func TestClient_OAuth(t *testing.T) {
	f := newServer(t)
	c := newClient(t, f.server.URL)
	ctx := context.Background()

	start, err := c.BeginOAuth(ctx, "mock", "/app")
	require.NoError(t, err)
	assert.Contains(t, start.URL, "state="+start.State)
	assert.Empty(t, start.Nonce)

	grant, err := c.CompleteOAuth(ctx, domainauth.OAuthCallback{AccessToken: "at", State: start.State})
	require.NoError(t, err)
	assert.Equal(t, "oauth-user-1", grant.Token.SubjectID)

	_, err = c.BeginOAuth(ctx, "ghost", "/app")
	assert.Equal(t, domainauth.KindValidation, domainauth.KindOf(err))
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := newClient(t, base).SignIn(context.Background(), "a@example.com", "pw")
	assert.ErrorIs(t, err, domainauth.ErrProviderUnavailable)
}

func TestErrorFromResponse(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   domainauth.Kind
	}{
		{http.StatusUnauthorized, `{"error":"invalid_credentials","message":"nope"}`, domainauth.KindInvalidCredentials},
		{http.StatusBadRequest, `{"error":"malformed_callback"}`, domainauth.KindMalformedCallback},
		{http.StatusTooManyRequests, `{"error":"rate_limited"}`, domainauth.KindProviderUnavailable},
		{http.StatusUnauthorized, `{"error":"authentication_required"}`, domainauth.KindSessionExpired},
		{http.StatusForbidden, `{"error":"insufficient_permissions"}`, domainauth.KindUnauthorized},
		{http.StatusBadGateway, `<html>bad gateway</html>`, domainauth.KindProviderUnavailable},
		{http.StatusUnauthorized, ``, domainauth.KindInvalidCredentials},
		{http.StatusUnsupportedMediaType, `{"error":"unsupported_media_type"}`, domainauth.KindValidation},
	}
	for _, tt := range tests {
		err := errorFromResponse(tt.status, []byte(tt.body))
		assert.Equal(t, tt.want, domainauth.KindOf(err), "%d %s", tt.status, tt.body)
	}
}

func TestClient_DrivesIdentityService(t *testing.T) {
	f := newServer(t)
	f.provider.AddAccount("ada@example.com", "pw", domainauth.RoleCompany)
	store := identity.NewMemoryStore()
	svc, err := identity.New(identity.Options{Backend: newClient(t, f.server.URL), Store: store})
	require.NoError(t, err)
	ctx := context.Background()

	v, err := svc.SignIn(ctx, "ada@example.com", "pw")
	require.NoError(t, err)
	require.True(t, v.Authenticated())
	first, err := store.Load(ctx)
	require.NoError(t, err)

	v, err = svc.RefreshSession(ctx)
	require.NoError(t, err)
	assert.True(t, v.Authenticated())
	second, err := store.Load(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Raw, second.Raw)

	svc.SignOut(ctx)
	assert.Equal(t, domainauth.StatusAnonymous, svc.View().Status)
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, domainauth.ErrNoSession)
	require.Eventually(t, func() bool {
		revoked, _ := f.revocations.IsRevoked(ctx, second.ID)
		return revoked
	}, time.Second, 10*time.Millisecond)
}
