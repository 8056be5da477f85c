package devauth

// Package devauth provides a simple, config-driven identity provider for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/ports"
)

// Account is a seeded development account.
type Account struct {
	Email       string
	Password    string
	Role        domainauth.Role
	DisplayName string
}

// Config controls the dev provider behavior.
type Config struct {
	Accounts []Account
	// OAuthEmail selects the account returned by the redirect flow. Defaults to the first account.
	OAuthEmail string
	// TokenLifetime bounds dev access tokens handed out by AuthorizeURL. Default 5m.
	TokenLifetime time.Duration
	// AllowAdminSignUp lets CreateSubject register admins. Off by default.
	AllowAdminSignUp bool
	Now              func() time.Time
}

// Provider implements ports.CredentialProvider and ports.OAuthProvider for local development.
// Credentials are held in memory as Argon2id hashes. The redirect flow short-circuits the
// external provider by sending the browser straight back to our callback with a token fragment.
type Provider struct {
	mu          sync.Mutex
	accounts    map[string]devAccount
	tokens      map[string]pendingToken
	oauthEmail  string
	lifetime    time.Duration
	allowAdmin  bool
	now         func() time.Time
	invalidated map[string]time.Time
}

type devAccount struct {
	hash     string
	identity domainauth.Identity
}

type pendingToken struct {
	email     string
	expiresAt time.Time
}

var (
	_ ports.CredentialProvider = (*Provider)(nil)
	_ ports.OAuthProvider      = (*Provider)(nil)
)

// NewProvider constructs a dev provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	p := &Provider{
		accounts:    make(map[string]devAccount),
		tokens:      make(map[string]pendingToken),
		lifetime:    cfg.TokenLifetime,
		allowAdmin:  cfg.AllowAdminSignUp,
		now:         cfg.Now,
		invalidated: make(map[string]time.Time),
	}
	if p.lifetime <= 0 {
		p.lifetime = 5 * time.Minute
	}
	if p.now == nil {
		p.now = time.Now
	}
	for _, a := range cfg.Accounts {
		if _, err := p.add(a); err != nil {
			return nil, fmt.Errorf("dev auth: seed %s: %w", a.Email, err)
		}
	}
	p.oauthEmail = strings.ToLower(strings.TrimSpace(cfg.OAuthEmail))
	if p.oauthEmail == "" && len(cfg.Accounts) > 0 {
		p.oauthEmail = strings.ToLower(strings.TrimSpace(cfg.Accounts[0].Email))
	}
	if p.oauthEmail != "" {
		if _, ok := p.accounts[p.oauthEmail]; !ok {
			return nil, fmt.Errorf("dev auth: OAuth account %q is not seeded", cfg.OAuthEmail)
		}
	}
	return p, nil
}

func (p *Provider) add(a Account) (domainauth.Identity, error) {
	email := strings.ToLower(strings.TrimSpace(a.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domainauth.Identity{}, errors.New("email is required")
	}
	if a.Password == "" {
		return domainauth.Identity{}, errors.New("password is required")
	}
	if !a.Role.Valid() {
		return domainauth.Identity{}, fmt.Errorf("unknown role %q", a.Role)
	}
	if _, exists := p.accounts[email]; exists {
		return domainauth.Identity{}, errors.New("account already exists")
	}
	hash, err := hashPassword(a.Password)
	if err != nil {
		return domainauth.Identity{}, err
	}
	name := a.DisplayName
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	id := domainauth.Identity{
		SubjectID:   uuid.NewString(),
		Email:       email,
		DisplayName: name,
		Role:        a.Role,
	}
	p.accounts[email] = devAccount{hash: hash, identity: id}
	return id, nil
}

// VerifyCredentials checks email and password against the seeded accounts.
func (p *Provider) VerifyCredentials(ctx context.Context, email, password string) (domainauth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domainauth.Identity{}, err
	}
	p.mu.Lock()
	acct, ok := p.accounts[strings.ToLower(strings.TrimSpace(email))]
	p.mu.Unlock()
	if !ok {
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindInvalidCredentials, "invalid email or password")
	}
	match, err := verifyPassword(password, acct.hash)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindInvalidCredentials, "invalid email or password")
	}
	return acct.identity, nil
}

// CreateSubject registers a new in-memory account.
func (p *Provider) CreateSubject(ctx context.Context, in ports.CreateSubjectInput) (domainauth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domainauth.Identity{}, err
	}
	if in.Role == domainauth.RoleAdmin && !p.allowAdmin {
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindValidation, "admin accounts cannot self-register")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id, err := p.add(Account{Email: in.Email, Password: in.Password, Role: in.Role})
	if err != nil {
		return domainauth.Identity{}, domainauth.WrapError(err, domainauth.KindValidation, "cannot create account")
	}
	return id, nil
}

// InvalidateSession records the sign-out. The dev provider keeps no remote sessions.
func (p *Provider) InvalidateSession(_ context.Context, subjectID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidated[subjectID] = p.now()
	return nil
}

// AuthorizeURL returns our own callback URL carrying a freshly minted dev token in the fragment.
func (p *Provider) AuthorizeURL(_ context.Context, in ports.OAuthRequest) (string, error) {
	if in.State == "" {
		return "", errors.New("state is required")
	}
	if in.CallbackURL == "" {
		return "", errors.New("callback URL is required")
	}
	if p.oauthEmail == "" {
		return "", domainauth.NewError(domainauth.KindProviderUnavailable, "dev OAuth account is not configured")
	}
	tok, err := randomString(32)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	p.mu.Lock()
	p.pruneLocked()
	p.tokens[tok] = pendingToken{email: p.oauthEmail, expiresAt: p.now().Add(p.lifetime)}
	p.mu.Unlock()

	frag := url.Values{}
	frag.Set("access_token", tok)
	frag.Set("token_type", "bearer")
	frag.Set("expires_in", strconv.Itoa(int(p.lifetime.Seconds())))
	frag.Set("state", in.State)
	return in.CallbackURL + "#" + frag.Encode(), nil
}

// ExchangeOAuthCode resolves a dev token minted by AuthorizeURL.
func (p *Provider) ExchangeOAuthCode(ctx context.Context, cb domainauth.OAuthCallback) (domainauth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domainauth.Identity{}, err
	}
	if cb.AccessToken == "" {
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindMalformedCallback, "access token is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pending, ok := p.tokens[cb.AccessToken]
	if !ok || !pending.expiresAt.After(p.now()) {
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindInvalidCredentials, "dev token is unknown or expired")
	}
	acct, ok := p.accounts[pending.email]
	if !ok {
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindInvalidCredentials, "dev account no longer exists")
	}
	return acct.identity, nil
}

func (p *Provider) pruneLocked() {
	now := p.now()
	for k, v := range p.tokens {
		if !v.expiresAt.After(now) {
			delete(p.tokens, k)
		}
	}
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least n base64 URL chars
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < n {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:n], nil
}
