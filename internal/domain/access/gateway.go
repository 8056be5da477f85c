package access

import (
	"time"

	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
)

// DecisionKind is the outcome class of an authorization check.
type DecisionKind string

const (
	DecisionAllow                DecisionKind = "allow"
	DecisionRedirectLogin        DecisionKind = "redirect_login"
	DecisionRedirectUnauthorized DecisionKind = "redirect_unauthorized"
)

// Reason explains a decision for logs and metrics.
type Reason string

const (
	ReasonPublic           Reason = "public"
	ReasonAuthenticated    Reason = "authenticated"
	ReasonMissingSession   Reason = "missing_session"
	ReasonMalformedSession Reason = "malformed_session"
	ReasonExpiredSession   Reason = "expired_session"
	ReasonRoleMismatch     Reason = "role_mismatch"

	// Set by transport hosts that consult a revocation list after an allow decision.
	ReasonRevokedSession        Reason = "revoked_session"
	ReasonRevocationUnavailable Reason = "revocation_unavailable"
)

// Decision is the result of Gateway.Authorize.
type Decision struct {
	Kind         DecisionKind
	Reason       Reason
	ReturnPath   string // set for RedirectLogin so the login flow can forward back
	RequiredRole domainauth.Role
	// Token is set when a valid session was parsed (protected routes only).
	Token *domainauth.SessionToken
}

// TokenParser turns a cookie value into a session token.
// Implementations must not enforce expiry; the gateway checks it against its own clock.
type TokenParser interface {
	Parse(raw string) (domainauth.SessionToken, error)
}

// GatewayOptions groups dependencies for Gateway.
type GatewayOptions struct {
	Classifier *Classifier
	Parser     TokenParser
	Now        func() time.Time
}

// Gateway decides allow / redirect-to-login / redirect-to-unauthorized for each request.
// It holds no mutable state and is safe for concurrent use.
type Gateway struct {
	classifier *Classifier
	parser     TokenParser
	now        func() time.Time
}

// NewGateway constructs a Gateway. A nil classifier uses the default rule tables.
func NewGateway(opts GatewayOptions) *Gateway {
	g := &Gateway{
		classifier: opts.Classifier,
		parser:     opts.Parser,
		now:        opts.Now,
	}
	if g.classifier == nil {
		g.classifier = DefaultClassifier()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Classifier returns the gateway's route classifier.
func (g *Gateway) Classifier() *Classifier { return g.classifier }

// Authorize classifies requestPath and validates the session cookie value (empty means absent).
// Any ambiguity about the session denies access: unparseable or expired tokens are treated
// exactly like a missing cookie.
func (g *Gateway) Authorize(requestPath, cookie string) Decision {
	p := NormalizePath(requestPath)
	class := g.classifier.Classify(p)
	if class.Visibility == VisibilityPublic {
		return Decision{Kind: DecisionAllow, Reason: ReasonPublic}
	}

	login := func(reason Reason) Decision {
		return Decision{
			Kind:         DecisionRedirectLogin,
			Reason:       reason,
			ReturnPath:   p,
			RequiredRole: class.RequiredRole,
		}
	}

	if cookie == "" {
		return login(ReasonMissingSession)
	}
	if g.parser == nil {
		return login(ReasonMalformedSession)
	}
	tok, err := g.parser.Parse(cookie)
	if err != nil || tok.SubjectID == "" || !tok.Role.Valid() || !tok.ExpiresAt.After(tok.IssuedAt) {
		return login(ReasonMalformedSession)
	}
	if tok.Expired(g.now()) {
		return login(ReasonExpiredSession)
	}
	if !tok.Role.Satisfies(class.RequiredRole) {
		return Decision{
			Kind:         DecisionRedirectUnauthorized,
			Reason:       ReasonRoleMismatch,
			RequiredRole: class.RequiredRole,
		}
	}
	return Decision{
		Kind:         DecisionAllow,
		Reason:       ReasonAuthenticated,
		RequiredRole: class.RequiredRole,
		Token:        &tok,
	}
}
