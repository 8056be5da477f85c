package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.CredentialProvider = (*FakeProvider)(nil)
	_ ports.OAuthProvider      = (*FakeProvider)(nil)
	_ ports.ProfileStore       = (*MemoryProfileStore)(nil)
	_ ports.RevocationStore    = (*MemoryRevocationStore)(nil)
	_ ports.TokenCodec         = (*FakeCodec)(nil)
	_ ports.RoleMapper         = (*StaticRoleMapper)(nil)
)

// FakeProvider simulates an identity provider with an in-memory account table.
// Func fields override the default behavior for a single method.
type FakeProvider struct {
	VerifyFunc     func(ctx context.Context, email, password string) (domainauth.Identity, error)
	CreateFunc     func(ctx context.Context, in ports.CreateSubjectInput) (domainauth.Identity, error)
	InvalidateFunc func(ctx context.Context, subjectID string) error
	AuthorizeFunc  func(ctx context.Context, in ports.OAuthRequest) (string, error)
	ExchangeFunc   func(ctx context.Context, cb domainauth.OAuthCallback) (domainauth.Identity, error)

	// AuthURL is the base of URLs returned by AuthorizeURL.
	AuthURL string
	// OAuthUser is returned by ExchangeOAuthCode when ExchangeFunc is nil.
	OAuthUser domainauth.Identity

	mu          sync.Mutex
	accounts    map[string]fakeAccount
	nextID      int
	invalidated []string
	exchanges   int
}

type fakeAccount struct {
	password string
	identity domainauth.Identity
}

// NewFakeProvider creates a FakeProvider with sensible defaults.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		AuthURL: "https://mock-idp/authorize",
		OAuthUser: domainauth.Identity{
			SubjectID:   "oauth-user-1",
			Email:       "oauth.user@example.com",
			DisplayName: "OAuth User",
			Role:        domainauth.RoleCustomer,
		},
		accounts: make(map[string]fakeAccount),
	}
}

// AddAccount registers credentials directly, bypassing CreateSubject.
func (f *FakeProvider) AddAccount(email, password string, role domainauth.Role) domainauth.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(email, password, role)
}

func (f *FakeProvider) addLocked(email, password string, role domainauth.Role) domainauth.Identity {
	if f.accounts == nil {
		f.accounts = make(map[string]fakeAccount)
	}
	f.nextID++
	id := domainauth.Identity{
		SubjectID:   fmt.Sprintf("subject-%d", f.nextID),
		Email:       email,
		DisplayName: strings.Split(email, "@")[0],
		Role:        role,
	}
	f.accounts[strings.ToLower(email)] = fakeAccount{password: password, identity: id}
	return id
}

func (f *FakeProvider) VerifyCredentials(ctx context.Context, email, password string) (domainauth.Identity, error) {
	if f.VerifyFunc != nil {
		return f.VerifyFunc(ctx, email, password)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[strings.ToLower(email)]
	if !ok || acct.password != password {
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindInvalidCredentials, "invalid email or password")
	}
	return acct.identity, nil
}

func (f *FakeProvider) CreateSubject(ctx context.Context, in ports.CreateSubjectInput) (domainauth.Identity, error) {
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, in)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.accounts[strings.ToLower(in.Email)]; exists {
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindValidation, "account already exists")
	}
	return f.addLocked(in.Email, in.Password, in.Role), nil
}

func (f *FakeProvider) InvalidateSession(ctx context.Context, subjectID string) error {
	if f.InvalidateFunc != nil {
		return f.InvalidateFunc(ctx, subjectID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, subjectID)
	return nil
}

// Invalidated returns the subjects passed to InvalidateSession.
func (f *FakeProvider) Invalidated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.invalidated...)
}

func (f *FakeProvider) AuthorizeURL(ctx context.Context, in ports.OAuthRequest) (string, error) {
	if f.AuthorizeFunc != nil {
		return f.AuthorizeFunc(ctx, in)
	}
	base := f.AuthURL
	if base == "" {
		base = "https://mock-idp/authorize"
	}
	return base + "?state=" + in.State + "&nonce=" + in.Nonce, nil
}

func (f *FakeProvider) ExchangeOAuthCode(ctx context.Context, cb domainauth.OAuthCallback) (domainauth.Identity, error) {
	if f.ExchangeFunc != nil {
		return f.ExchangeFunc(ctx, cb)
	}
	f.mu.Lock()
	f.exchanges++
	f.mu.Unlock()
	if cb.AccessToken == "" && cb.IDToken == "" {
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindMalformedCallback, "no token")
	}
	return f.OAuthUser, nil
}

// Exchanges returns how many callbacks reached the default ExchangeOAuthCode.
func (f *FakeProvider) Exchanges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchanges
}

// MemoryProfileStore is an in-memory profile store for unit tests.
type MemoryProfileStore struct {
	// CreateErr, when set, fails every CreateProfileRecord call.
	CreateErr error
	// GetErr, when set, fails every GetProfile call.
	GetErr error

	mu       sync.Mutex
	profiles map[string]ports.Profile
	creates  int
}

// NewMemoryProfileStore creates a new in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]ports.Profile)}
}

func (m *MemoryProfileStore) CreateProfileRecord(_ context.Context, p ports.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if p.SubjectID == "" {
		return errors.New("subject ID cannot be empty")
	}
	if m.profiles == nil {
		m.profiles = make(map[string]ports.Profile)
	}
	if _, exists := m.profiles[p.SubjectID]; exists {
		return nil
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.profiles[p.SubjectID] = p
	return nil
}

func (m *MemoryProfileStore) GetProfile(_ context.Context, subjectID string) (ports.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return ports.Profile{}, m.GetErr
	}
	p, ok := m.profiles[subjectID]
	if !ok {
		return ports.Profile{}, ports.ErrProfileNotFound
	}
	return p, nil
}

// Creates returns the number of CreateProfileRecord calls, failed ones included.
func (m *MemoryProfileStore) Creates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

// Has reports whether a profile exists for subjectID.
func (m *MemoryProfileStore) Has(subjectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.profiles[subjectID]
	return ok
}

// MemoryRevocationStore is an in-memory revocation store for unit tests.
type MemoryRevocationStore struct {
	Err error

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewMemoryRevocationStore creates a new in-memory revocation store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{revoked: make(map[string]time.Time)}
}

func (m *MemoryRevocationStore) Revoke(_ context.Context, tok domainauth.SessionToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if tok.ID == "" {
		return errors.New("token ID cannot be empty")
	}
	if m.revoked == nil {
		m.revoked = make(map[string]time.Time)
	}
	m.revoked[tok.ID] = tok.ExpiresAt
	return nil
}

func (m *MemoryRevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	_, ok := m.revoked[tokenID]
	return ok, nil
}

// FakeCodec issues unsigned, predictable tokens whose Raw value is "tok-<n>".
// Parse only recognizes tokens it issued or that were registered with Add.
type FakeCodec struct {
	Now func() time.Time

	mu     sync.Mutex
	n      int
	issued map[string]domainauth.SessionToken
}

// NewFakeCodec creates a FakeCodec using clock now.
func NewFakeCodec(now func() time.Time) *FakeCodec {
	if now == nil {
		now = time.Now
	}
	return &FakeCodec{Now: now, issued: make(map[string]domainauth.SessionToken)}
}

func (c *FakeCodec) Issue(id domainauth.Identity, ttl time.Duration) (domainauth.SessionToken, error) {
	if id.SubjectID == "" || !id.Role.Valid() {
		return domainauth.SessionToken{}, errors.New("invalid identity")
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	issued := now()
	tok := domainauth.SessionToken{
		ID:          fmt.Sprintf("jti-%d", c.n),
		SubjectID:   id.SubjectID,
		Role:        id.Role,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		IssuedAt:    issued,
		ExpiresAt:   issued.Add(ttl),
		Raw:         fmt.Sprintf("tok-%d", c.n),
	}
	if c.issued == nil {
		c.issued = make(map[string]domainauth.SessionToken)
	}
	c.issued[tok.Raw] = tok
	return tok, nil
}

// Add registers tok so Parse(tok.Raw) returns it.
func (c *FakeCodec) Add(tok domainauth.SessionToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.issued == nil {
		c.issued = make(map[string]domainauth.SessionToken)
	}
	c.issued[tok.Raw] = tok
}

func (c *FakeCodec) Parse(raw string) (domainauth.SessionToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.issued[raw]
	if !ok {
		return domainauth.SessionToken{}, domainauth.NewError(domainauth.KindMalformedSession, "unknown token")
	}
	return tok, nil
}

// Issued returns how many tokens were issued.
func (c *FakeCodec) Issued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// StaticRoleMapper maps groups by simple string membership rules.
type StaticRoleMapper struct {
	AdminGroup   string
	CompanyGroup string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	for _, g := range groups {
		if m.AdminGroup != "" && g == m.AdminGroup {
			return domainauth.RoleAdmin
		}
	}
	for _, g := range groups {
		if m.CompanyGroup != "" && g == m.CompanyGroup {
			return domainauth.RoleCompany
		}
	}
	return domainauth.RoleCustomer
}
