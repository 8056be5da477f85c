package httpx

import (
	"context"

	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
)

// sessionKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type sessionKey struct{}

// SetSessionInContext returns a child context that carries the validated session token.
// If tok is nil, the original ctx is returned unchanged.
func SetSessionInContext(ctx context.Context, tok *domainauth.SessionToken) context.Context {
	if tok == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, tok)
}

// SessionFromContext returns the token the gateway validated for this request.
func SessionFromContext(ctx context.Context) (*domainauth.SessionToken, bool) {
	if tok, ok := ctx.Value(sessionKey{}).(*domainauth.SessionToken); ok && tok != nil {
		return tok, true
	}
	return nil, false
}
