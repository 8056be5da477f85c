package access

import (
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
)

// RoleHint is a role claim cached outside the session token, e.g. a UI cookie.
// Hints are client writable; they only steer navigation and are never an authorization input.
type RoleHint struct {
	Location string
	Claimed  domainauth.Role
}

// GuardActionKind is the navigation outcome of a reconciliation pass.
type GuardActionKind string

const (
	GuardStay     GuardActionKind = "stay"
	GuardRedirect GuardActionKind = "redirect"
)

// GuardAction tells the landing surface where to go and which hint locations to overwrite.
type GuardAction struct {
	Kind    GuardActionKind
	Target  string     // set when Kind is GuardRedirect
	Repairs []RoleHint // hint locations to overwrite, Claimed holds the authoritative role
	// Elevated is true when a hint claimed more privilege than the session grants.
	Elevated bool
}

// GuardInput groups the values compared by Reconcile.
type GuardInput struct {
	Surface       domainauth.Role // role the landing surface was built for
	Hints         []RoleHint
	Authoritative domainauth.Role // role from the validated session token
}

// Guard reconciles cached role hints against the authoritative session role.
type Guard struct{}

// Reconcile returns the navigation action for a landing surface.
// Routing targets the most privileged consistent view, never the most privileged claimed one.
func (Guard) Reconcile(in GuardInput) GuardAction {
	if !in.Authoritative.Valid() {
		return GuardAction{Kind: GuardStay}
	}

	var (
		repairs  []RoleHint
		elevated bool
	)
	for _, h := range in.Hints {
		if h.Claimed == in.Authoritative {
			continue
		}
		if h.Claimed.Rank() > in.Authoritative.Rank() {
			elevated = true
		}
		repairs = append(repairs, RoleHint{Location: h.Location, Claimed: in.Authoritative})
	}

	home := in.Authoritative.Home()
	switch {
	case elevated:
		// Overwrite every location, not only the divergent ones.
		repairs = make([]RoleHint, 0, len(in.Hints))
		for _, h := range in.Hints {
			repairs = append(repairs, RoleHint{Location: h.Location, Claimed: in.Authoritative})
		}
		return GuardAction{Kind: GuardRedirect, Target: home, Repairs: repairs, Elevated: true}
	case in.Authoritative == domainauth.RoleAdmin && in.Surface != domainauth.RoleAdmin:
		return GuardAction{Kind: GuardRedirect, Target: home, Repairs: repairs}
	default:
		return GuardAction{Kind: GuardStay, Repairs: repairs}
	}
}
