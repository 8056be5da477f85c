// Package access implements request-time access control: route classification,
// the authorization gateway and the role consistency guard. Everything here is pure;
// transport hosts live in internal/http.
package access

import (
	"errors"
	"fmt"
	"path"
	"strings"

	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
)

// Visibility is the access class of a route.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityProtected Visibility = "protected"
)

// Rule maps a path pattern to a visibility and optional role requirement.
type Rule struct {
	Pattern      string
	Exact        bool
	Visibility   Visibility
	RequiredRole domainauth.Role // empty means any authenticated role
}

// Matches reports whether the normalized path p falls under the rule.
// Prefix rules are segment aware: "/app/customer" does not match "/app/customers".
func (r Rule) Matches(p string) bool {
	if r.Exact {
		return p == r.Pattern
	}
	prefix := strings.TrimSuffix(r.Pattern, "/")
	if prefix == "" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// Classification is the outcome of classifying a path.
type Classification struct {
	Visibility   Visibility
	RequiredRole domainauth.Role
	Rule         Rule
	Matched      bool // false when no rule matched and the public default applied
}

// Classifier maps request paths to classifications using an immutable rule table.
// It is safe for concurrent use.
type Classifier struct {
	public    []Rule
	protected []Rule
}

// NewClassifier validates and copies the rule sets.
func NewClassifier(public, protected []Rule) (*Classifier, error) {
	c := &Classifier{
		public:    make([]Rule, 0, len(public)),
		protected: make([]Rule, 0, len(protected)),
	}
	var errs []error
	for _, r := range public {
		if err := validateRule(r); err != nil {
			errs = append(errs, err)
			continue
		}
		r.Visibility = VisibilityPublic
		r.RequiredRole = ""
		c.public = append(c.public, r)
	}
	for _, r := range protected {
		if err := validateRule(r); err != nil {
			errs = append(errs, err)
			continue
		}
		r.Visibility = VisibilityProtected
		c.protected = append(c.protected, r)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

func validateRule(r Rule) error {
	if !strings.HasPrefix(r.Pattern, "/") {
		return fmt.Errorf("rule pattern %q must start with /", r.Pattern)
	}
	if !r.Exact && strings.TrimSuffix(r.Pattern, "/") == "" {
		return fmt.Errorf("rule pattern %q matches every path; use an exact rule", r.Pattern)
	}
	if r.RequiredRole != "" && !r.RequiredRole.Valid() {
		return fmt.Errorf("rule %q requires unknown role %q", r.Pattern, r.RequiredRole)
	}
	return nil
}

// DefaultPublicRules returns the built-in public route set.
func DefaultPublicRules() []Rule {
	return []Rule{
		{Pattern: "/", Exact: true},
		{Pattern: "/static/"},
		{Pattern: "/assets/"},
		{Pattern: "/favicon.ico", Exact: true},
		{Pattern: "/robots.txt", Exact: true},
		{Pattern: "/about"},
		{Pattern: "/pricing"},
		{Pattern: "/contact"},
		{Pattern: "/login"},
		{Pattern: "/signup"},
		{Pattern: "/auth/"},
		{Pattern: "/unauthorized"},
		{Pattern: "/api/public/"},
		{Pattern: "/api/auth/"},
		{Pattern: "/healthz", Exact: true},
		{Pattern: "/readyz", Exact: true},
		{Pattern: "/metrics", Exact: true},
	}
}

// DefaultProtectedRules returns the built-in protected route set, most specific first.
func DefaultProtectedRules() []Rule {
	return []Rule{
		{Pattern: "/app/customer/", RequiredRole: domainauth.RoleCustomer},
		{Pattern: "/app/company/", RequiredRole: domainauth.RoleCompany},
		{Pattern: "/app/admin/", RequiredRole: domainauth.RoleAdmin},
		{Pattern: "/app/"},
		{Pattern: "/api/"},
	}
}

// DefaultClassifier returns a classifier over the built-in rule tables.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultPublicRules(), DefaultProtectedRules())
	if err != nil {
		panic(fmt.Sprintf("default route rules are invalid: %v", err))
	}
	return c
}

// Classify returns the classification of p. It is total: any string yields a decision.
// Public rules short-circuit before protected rules; unmatched paths are public.
func (c *Classifier) Classify(p string) Classification {
	p = NormalizePath(p)
	for i := range c.public {
		if c.public[i].Matches(p) {
			return Classification{Visibility: VisibilityPublic, Rule: c.public[i], Matched: true}
		}
	}
	for i := range c.protected {
		if c.protected[i].Matches(p) {
			return Classification{
				Visibility:   VisibilityProtected,
				RequiredRole: c.protected[i].RequiredRole,
				Rule:         c.protected[i],
				Matched:      true,
			}
		}
	}
	return Classification{Visibility: VisibilityPublic}
}

// NormalizePath strips query and fragment, resolves dot segments and guarantees a leading slash.
func NormalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
