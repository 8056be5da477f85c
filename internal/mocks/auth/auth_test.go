package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/ports"
)

func TestFakeProvider_CreateThenVerify(t *testing.T) {
	provider := NewFakeProvider()
	ctx := context.Background()

	created, err := provider.CreateSubject(ctx, ports.CreateSubjectInput{
		Email:    "a@b.com",
		Password: "pw",
		Role:     domainauth.RoleCustomer,
	})
	require.NoError(t, err)
	assert.Equal(t, "subject-1", created.SubjectID)

	got, err := provider.VerifyCredentials(ctx, "A@B.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = provider.VerifyCredentials(ctx, "a@b.com", "wrong")
	assert.ErrorIs(t, err, domainauth.ErrInvalidCredentials)

	_, err = provider.CreateSubject(ctx, ports.CreateSubjectInput{Email: "a@b.com", Password: "x", Role: domainauth.RoleCompany})
	require.Error(t, err)
}

func TestFakeProvider_OAuthDefaults(t *testing.T) {
	provider := NewFakeProvider()
	ctx := context.Background()

	url, err := provider.AuthorizeURL(ctx, ports.OAuthRequest{State: "mock.s1", Nonce: "n1"})
	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/authorize?state=mock.s1&nonce=n1", url)

	id, err := provider.ExchangeOAuthCode(ctx, domainauth.OAuthCallback{AccessToken: "at"})
	require.NoError(t, err)
	assert.Equal(t, "oauth-user-1", id.SubjectID)
	assert.Equal(t, 1, provider.Exchanges())

	_, err = provider.ExchangeOAuthCode(ctx, domainauth.OAuthCallback{})
	assert.ErrorIs(t, err, domainauth.ErrMalformedCallback)
}

func TestFakeProvider_CustomFunc(t *testing.T) {
	boom := errors.New("down")
	provider := &FakeProvider{
		InvalidateFunc: func(context.Context, string) error { return boom },
	}
	assert.ErrorIs(t, provider.InvalidateSession(context.Background(), "s"), boom)
	assert.Empty(t, provider.Invalidated())
}

func TestMemoryProfileStore(t *testing.T) {
	store := NewMemoryProfileStore()
	ctx := context.Background()

	_, err := store.GetProfile(ctx, "s1")
	assert.ErrorIs(t, err, ports.ErrProfileNotFound)

	require.NoError(t, store.CreateProfileRecord(ctx, ports.Profile{SubjectID: "s1", Role: domainauth.RoleCompany}))
	require.NoError(t, store.CreateProfileRecord(ctx, ports.Profile{SubjectID: "s1", Role: domainauth.RoleCustomer}))

	p, err := store.GetProfile(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleCompany, p.Role, "second create is a no-op")
	assert.Equal(t, 2, store.Creates())

	store.CreateErr = errors.New("db down")
	require.Error(t, store.CreateProfileRecord(ctx, ports.Profile{SubjectID: "s2"}))
	assert.False(t, store.Has("s2"))
}

func TestMemoryRevocationStore(t *testing.T) {
	store := NewMemoryRevocationStore()
	ctx := context.Background()

	ok, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Revoke(ctx, domainauth.SessionToken{ID: "jti-1", ExpiresAt: time.Now().Add(time.Hour)}))
	ok, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Error(t, store.Revoke(ctx, domainauth.SessionToken{}))
}

func TestFakeCodec(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	codec := NewFakeCodec(func() time.Time { return now })

	tok, err := codec.Issue(domainauth.Identity{SubjectID: "s1", Role: domainauth.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.Raw)
	assert.Equal(t, now.Add(time.Hour), tok.ExpiresAt)

	parsed, err := codec.Parse("tok-1")
	require.NoError(t, err)
	assert.Equal(t, tok, parsed)

	_, err = codec.Parse("tok-2")
	assert.ErrorIs(t, err, domainauth.ErrMalformedSession)
}

func TestStaticRoleMapper(t *testing.T) {
	mapper := StaticRoleMapper{AdminGroup: "admins", CompanyGroup: "companies"}

	assert.Equal(t, domainauth.RoleAdmin, mapper.Map([]string{"companies", "admins"}))
	assert.Equal(t, domainauth.RoleCompany, mapper.Map([]string{"companies"}))
	assert.Equal(t, domainauth.RoleCustomer, mapper.Map([]string{"other"}))
	assert.Equal(t, domainauth.RoleCustomer, mapper.Map(nil))
	assert.Equal(t, domainauth.RoleCustomer, StaticRoleMapper{}.Map([]string{"admins"}))
}
