// Package identity keeps a client's view of the current user consistent with the stored
// session token while sign-in, OAuth callbacks, refreshes and sign-outs race each other.
package identity

import (
	"context"
	"time"

	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
)

// Backend is the capability the service needs from the auth server. *service.AuthService
// satisfies it in-process and authclient.Client over HTTP.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (domainauth.Grant, error)
	SignUp(ctx context.Context, email, password string, role domainauth.Role) (domainauth.Grant, error)
	BeginOAuth(ctx context.Context, provider, redirectTo string) (domainauth.OAuthStart, error)
	CompleteOAuth(ctx context.Context, cb domainauth.OAuthCallback) (domainauth.Grant, error)
	Refresh(ctx context.Context, raw string) (domainauth.Grant, error)
	SignOut(ctx context.Context, raw string) error
}

// View is the UI-facing snapshot of the current identity. User is set only when Status is
// authenticated.
type View struct {
	Status       domainauth.Status
	User         *domainauth.SessionSummary
	LastSyncedAt time.Time
	Generation   uint64
	Err          *domainauth.Error
	Warnings     []domainauth.Kind
}

// Authenticated reports whether the view carries a signed-in user.
func (v View) Authenticated() bool {
	return v.Status == domainauth.StatusAuthenticated && v.User != nil
}

func (v View) clone() View {
	out := v
	if v.User != nil {
		u := *v.User
		out.User = &u
	}
	if v.Warnings != nil {
		out.Warnings = append([]domainauth.Kind(nil), v.Warnings...)
	}
	return out
}
