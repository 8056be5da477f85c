package authroles

import (
	"strings"

	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
)

// StaticRoleMapper maps provider groups to application roles by simple membership rules.
// Admin wins over company, company over customer. Groups that match nothing yield Default,
// which may be empty to reject subjects outside every configured group.
type StaticRoleMapper struct {
	AdminGroup    string
	CompanyGroup  string
	CustomerGroup string
	Default       domainauth.Role
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	has := func(want string) bool {
		if want == "" {
			return false
		}
		for _, g := range groups {
			if strings.EqualFold(g, want) {
				return true
			}
		}
		return false
	}
	switch {
	case has(m.AdminGroup):
		return domainauth.RoleAdmin
	case has(m.CompanyGroup):
		return domainauth.RoleCompany
	case has(m.CustomerGroup):
		return domainauth.RoleCustomer
	}
	// A group literally named after a role is accepted as that role.
	for _, g := range groups {
		if r, err := domainauth.ParseRole(g); err == nil && r != domainauth.RoleAdmin {
			return r
		}
	}
	return m.Default
}
