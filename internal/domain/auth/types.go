package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strings"
	"time"
)

// SessionCookieName is the fixed name of the cookie carrying the serialized session token.
const SessionCookieName = "enq_session"

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleCompany  Role = "company"
	RoleAdmin    Role = "admin"
)

// ParseRole converts a string into a known Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleCustomer, RoleCompany, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleCompany, RoleAdmin:
		return true
	default:
		return false
	}
}

// Rank orders roles by privilege. Customer and company are peers; unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleCustomer, RoleCompany:
		return 1
	case RoleAdmin:
		return 2
	default:
		return 0
	}
}

// Satisfies reports whether a subject holding r may enter a route requiring required.
// An empty requirement accepts any known role; admin overrides every requirement.
func (r Role) Satisfies(required Role) bool {
	if !r.Valid() {
		return false
	}
	if required == "" || r == RoleAdmin {
		return true
	}
	return r == required
}

// Home returns the landing path for the role.
func (r Role) Home() string {
	switch r {
	case RoleCustomer, RoleCompany, RoleAdmin:
		return "/app/" + string(r) + "/dashboard"
	default:
		return "/login"
	}
}

// Identity represents the authenticated principal returned by an IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	SubjectID   string
	Email       string
	DisplayName string
	Role        Role
	Groups      []string
	ExpiresAt   time.Time // absolute expiry from IdP token, zero when the provider gives none
}

// SessionToken is the signed, time-bounded proof of authentication.
// Raw holds the serialized payload; the core only interprets expiry and role.
type SessionToken struct {
	ID          string
	SubjectID   string
	Role        Role
	Email       string
	DisplayName string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Raw         string
}

// Valid reports whether the token is well formed and unexpired at now.
func (t SessionToken) Valid(now time.Time) bool {
	if t.SubjectID == "" || !t.Role.Valid() {
		return false
	}
	if !t.ExpiresAt.After(t.IssuedAt) {
		return false
	}
	return t.ExpiresAt.After(now)
}

// Expired reports whether the token's expiry has elapsed at now.
func (t SessionToken) Expired(now time.Time) bool { return !t.ExpiresAt.After(now) }

// Remaining returns the lifetime left at now, never negative.
func (t SessionToken) Remaining(now time.Time) time.Duration {
	if d := t.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Summary returns the UI-facing view of the token.
func (t SessionToken) Summary() SessionSummary {
	return SessionSummary{
		SubjectID:   t.SubjectID,
		Role:        t.Role,
		Email:       t.Email,
		DisplayName: t.DisplayName,
		ExpiresAt:   t.ExpiresAt,
	}
}

// SessionSummary is the subject summary handed to UI code and API clients.
type SessionSummary struct {
	SubjectID   string    `json:"id"`
	Role        Role      `json:"role"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// OAuthCallback holds the values carried back from a provider redirect.
// Values come from the URL fragment, which only the client can read.
type OAuthCallback struct {
	Provider    string
	AccessToken string
	IDToken     string
	State       string
	ExpiresIn   int
	Error       string
	// Nonce is the value expected inside the id_token. It never travels in the fragment;
	// the host fills it from its own storage of the pending sign-in.
	Nonce string
}

// Grant is the outcome of a successful authentication: the issued token plus non-fatal warnings.
type Grant struct {
	Token    SessionToken
	Warnings []Kind
}

// Summary returns the subject summary of the granted session.
func (g Grant) Summary() SessionSummary { return g.Token.Summary() }

// OAuthStart is phase one of a redirect sign-in.
type OAuthStart struct {
	URL   string // provider URL the browser is sent to
	State string
	Nonce string
}

// Status is the lifecycle state of a client identity view.
type Status string

const (
	StatusAnonymous      Status = "anonymous"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusExpired        Status = "expired"
	StatusError          Status = "error"
)
