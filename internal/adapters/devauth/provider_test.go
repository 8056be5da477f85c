package devauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/ports"
)

func newDevProvider(t *testing.T) *Provider {
	t.Helper()
	prov, err := NewProvider(Config{Accounts: []Account{
		{Email: "Customer@Example.com", Password: "customer-pw", Role: domainauth.RoleCustomer},
		{Email: "company@example.com", Password: "company-pw", Role: domainauth.RoleCompany, DisplayName: "Acme"},
	}})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	return prov
}

func TestProvider_VerifyCredentials(t *testing.T) {
	prov := newDevProvider(t)
	ctx := context.Background()

	id, err := prov.VerifyCredentials(ctx, "customer@example.com", "customer-pw")
	if err != nil {
		t.Fatalf("VerifyCredentials error: %v", err)
	}
	if id.Role != domainauth.RoleCustomer || id.DisplayName != "customer" || id.SubjectID == "" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	for _, tc := range []struct{ email, pw string }{
		{"customer@example.com", "wrong"},
		{"nobody@example.com", "customer-pw"},
	} {
		_, err = prov.VerifyCredentials(ctx, tc.email, tc.pw)
		if !errors.Is(err, domainauth.ErrInvalidCredentials) {
			t.Fatalf("expected invalid credentials for %s, got %v", tc.email, err)
		}
	}
}

func TestProvider_CreateSubject(t *testing.T) {
	prov := newDevProvider(t)
	ctx := context.Background()

	id, err := prov.CreateSubject(ctx, ports.CreateSubjectInput{Email: "new@example.com", Password: "pw", Role: domainauth.RoleCompany})
	if err != nil {
		t.Fatalf("CreateSubject error: %v", err)
	}
	got, err := prov.VerifyCredentials(ctx, "new@example.com", "pw")
	if err != nil || got.SubjectID != id.SubjectID {
		t.Fatalf("new account not usable: %+v %v", got, err)
	}

	if _, err = prov.CreateSubject(ctx, ports.CreateSubjectInput{Email: "new@example.com", Password: "pw", Role: domainauth.RoleCompany}); err == nil {
		t.Fatal("duplicate account should fail")
	}
	_, err = prov.CreateSubject(ctx, ports.CreateSubjectInput{Email: "boss@example.com", Password: "pw", Role: domainauth.RoleAdmin})
	if domainauth.KindOf(err) != domainauth.KindValidation {
		t.Fatalf("admin self-registration should be rejected, got %v", err)
	}
}

func TestProvider_AuthorizeAndExchange(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prov, err := NewProvider(Config{
		Accounts:   []Account{{Email: "company@example.com", Password: "pw", Role: domainauth.RoleCompany}},
		OAuthEmail: "company@example.com",
		Now:        func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}

	state := domainauth.OAuthState("dev", "abc")
	u, err := prov.AuthorizeURL(context.Background(), ports.OAuthRequest{State: state, CallbackURL: "/auth/callback"})
	if err != nil {
		t.Fatalf("AuthorizeURL error: %v", err)
	}
	if !strings.HasPrefix(u, "/auth/callback#") {
		t.Fatalf("unexpected authorize URL: %s", u)
	}

	cb, err := domainauth.ParseFragment(u[strings.Index(u, "#"):])
	if err != nil {
		t.Fatalf("ParseFragment error: %v", err)
	}
	if cb.Provider != "dev" || cb.ExpiresIn != 300 {
		t.Fatalf("unexpected callback: %+v", cb)
	}

	id, err := prov.ExchangeOAuthCode(context.Background(), cb)
	if err != nil {
		t.Fatalf("ExchangeOAuthCode error: %v", err)
	}
	if id.Email != "company@example.com" || id.Role != domainauth.RoleCompany {
		t.Fatalf("unexpected identity: %+v", id)
	}

	now = now.Add(10 * time.Minute)
	if _, err = prov.ExchangeOAuthCode(context.Background(), cb); !errors.Is(err, domainauth.ErrInvalidCredentials) {
		t.Fatalf("expired dev token should be rejected, got %v", err)
	}
}

func TestNewProvider_UnknownOAuthAccount(t *testing.T) {
	_, err := NewProvider(Config{
		Accounts:   []Account{{Email: "a@example.com", Password: "pw", Role: domainauth.RoleCustomer}},
		OAuthEmail: "b@example.com",
	})
	if err == nil {
		t.Fatal("expected error for unseeded OAuth account")
	}
}

func TestPasswordHash_RoundTrip(t *testing.T) {
	h, err := hashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$") {
		t.Fatalf("unexpected PHC string: %s", h)
	}
	ok, err := verifyPassword("s3cret", h)
	if err != nil || !ok {
		t.Fatalf("verify failed: %v", err)
	}
	ok, _ = verifyPassword("other", h)
	if ok {
		t.Fatal("wrong password verified")
	}
	if _, err = verifyPassword("x", "$bcrypt$x"); err == nil {
		t.Fatal("expected format error")
	}
}
