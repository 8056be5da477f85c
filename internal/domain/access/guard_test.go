package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
)

func TestGuard_ElevatedHintIsRepairedAndRedirected(t *testing.T) {
	action := Guard{}.Reconcile(GuardInput{
		Surface: domainauth.RoleCompany,
		Hints: []RoleHint{
			{Location: "cookie:enq_role", Claimed: domainauth.RoleAdmin},
			{Location: "cookie:enq_ui_role", Claimed: domainauth.RoleCompany},
		},
		Authoritative: domainauth.RoleCompany,
	})

	assert.Equal(t, GuardRedirect, action.Kind)
	assert.Equal(t, "/app/company/dashboard", action.Target)
	assert.True(t, action.Elevated)
	assert.ElementsMatch(t, []RoleHint{
		{Location: "cookie:enq_role", Claimed: domainauth.RoleCompany},
		{Location: "cookie:enq_ui_role", Claimed: domainauth.RoleCompany},
	}, action.Repairs)
}

func TestGuard_AdminOnNonAdminSurfaceGoesToAdminHome(t *testing.T) {
	action := Guard{}.Reconcile(GuardInput{
		Surface:       domainauth.RoleCustomer,
		Authoritative: domainauth.RoleAdmin,
	})
	assert.Equal(t, GuardRedirect, action.Kind)
	assert.Equal(t, "/app/admin/dashboard", action.Target)
	assert.False(t, action.Elevated)
}

func TestGuard_PeerDriftIsRepairedWithoutRedirect(t *testing.T) {
	action := Guard{}.Reconcile(GuardInput{
		Surface:       domainauth.RoleCustomer,
		Hints:         []RoleHint{{Location: "cookie:enq_role", Claimed: domainauth.RoleCompany}},
		Authoritative: domainauth.RoleCustomer,
	})
	assert.Equal(t, GuardStay, action.Kind)
	assert.Equal(t, []RoleHint{{Location: "cookie:enq_role", Claimed: domainauth.RoleCustomer}}, action.Repairs)
}

func TestGuard_ConsistentHintsStay(t *testing.T) {
	action := Guard{}.Reconcile(GuardInput{
		Surface:       domainauth.RoleAdmin,
		Hints:         []RoleHint{{Location: "cookie:enq_role", Claimed: domainauth.RoleAdmin}},
		Authoritative: domainauth.RoleAdmin,
	})
	assert.Equal(t, GuardAction{Kind: GuardStay}, action)
}

func TestGuard_HintsAloneNeverRoute(t *testing.T) {
	// Without an authoritative role the guard does nothing, whatever the hints claim.
	action := Guard{}.Reconcile(GuardInput{
		Surface: domainauth.RoleCustomer,
		Hints:   []RoleHint{{Location: "cookie:enq_role", Claimed: domainauth.RoleAdmin}},
	})
	assert.Equal(t, GuardAction{Kind: GuardStay}, action)
}
