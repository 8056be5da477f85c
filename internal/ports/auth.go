package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service and internal/identity.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
)

// CredentialProvider verifies and creates email/password subjects at the identity provider.
type CredentialProvider interface {
	// VerifyCredentials returns the identity for valid credentials or an InvalidCredentials error.
	VerifyCredentials(ctx context.Context, email, password string) (domainauth.Identity, error)

	// CreateSubject registers a new subject and returns its identity.
	CreateSubject(ctx context.Context, in CreateSubjectInput) (domainauth.Identity, error)

	// InvalidateSession tells the provider the subject signed out. Best effort.
	InvalidateSession(ctx context.Context, subjectID string) error
}

// CreateSubjectInput groups parameters for subject creation.
type CreateSubjectInput struct {
	Email    string
	Password string
	Role     domainauth.Role
}

// OAuthRequest carries inputs for building a provider redirect.
type OAuthRequest struct {
	State       string
	Nonce       string
	CallbackURL string
}

// OAuthProvider initiates and completes a redirect-based sign-in.
type OAuthProvider interface {
	// AuthorizeURL returns the provider URL the browser should be sent to.
	AuthorizeURL(ctx context.Context, in OAuthRequest) (string, error)

	// ExchangeOAuthCode validates the tokens carried in the callback fragment and returns the identity.
	ExchangeOAuthCode(ctx context.Context, cb domainauth.OAuthCallback) (domainauth.Identity, error)
}

// ErrProfileNotFound is returned by ProfileStore.GetProfile when no record exists.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is the application-side record enriching a subject.
type Profile struct {
	SubjectID   string
	Role        domainauth.Role
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// ProfileStore persists subject profile records.
type ProfileStore interface {
	CreateProfileRecord(ctx context.Context, p Profile) error
	GetProfile(ctx context.Context, subjectID string) (Profile, error)
}

// TokenCodec issues and parses signed session tokens.
type TokenCodec interface {
	Issue(id domainauth.Identity, ttl time.Duration) (domainauth.SessionToken, error)
	Parse(raw string) (domainauth.SessionToken, error)
}

// RevocationStore records signed-out tokens until they would have expired.
type RevocationStore interface {
	Revoke(ctx context.Context, tok domainauth.SessionToken) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// TokenStore is the client-held persistence of the current session token.
// Load returns domainauth.ErrNoSession when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context) (domainauth.SessionToken, error)
	Save(ctx context.Context, tok domainauth.SessionToken) error
	Clear(ctx context.Context) error
}

// RoleMapper maps provider groups to application roles.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}
