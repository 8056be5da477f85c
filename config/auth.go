package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses an OIDC provider for both password and redirect sign-in.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses in-memory dev accounts (for development only).
	AuthModeMock AuthMode = "mock"
)

// MinSigningKeyLength matches the HS256 key floor enforced by the token codec.
const MinSigningKeyLength = 32

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	// ProviderName is the key clients pass as "provider" to start the redirect flow.
	ProviderName string `env:"PROVIDER_NAME" envDefault:"corporate"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	// GroupsClaim and RoleClaim are JMESPath expressions over the id_token claims.
	GroupsClaim string `env:"GROUPS_CLAIM"`
	RoleClaim   string `env:"ROLE_CLAIM"`
}

// DevAuthConfig controls mock/dev authentication.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	// Accounts lists "email:password:role[:Display Name]" entries separated by ";".
	Accounts []string `env:"ACCOUNTS" envDefault:"customer@example.com:customer:customer;company@example.com:company:company;admin@example.com:admin:admin" envSeparator:";"`
	// OAuthEmail selects the account the mock redirect flow signs in.
	OAuthEmail       string `env:"OAUTH_EMAIL"`
	AllowAdminSignUp bool   `env:"ALLOW_ADMIN_SIGNUP" envDefault:"false"`
}

// DevAccount is one parsed DevAuthConfig.Accounts entry.
type DevAccount struct {
	Email       string
	Password    string
	Role        string
	DisplayName string
}

// ParsedAccounts splits the configured dev accounts.
func (d DevAuthConfig) ParsedAccounts() ([]DevAccount, error) {
	out := make([]DevAccount, 0, len(d.Accounts))
	for _, raw := range d.Accounts {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, ":", 4)
		if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("dev account %q: want email:password:role[:name]", redactAccount(raw))
		}
		acct := DevAccount{
			Email:    strings.TrimSpace(parts[0]),
			Password: parts[1],
			Role:     strings.ToLower(strings.TrimSpace(parts[2])),
		}
		if len(parts) == 4 {
			acct.DisplayName = strings.TrimSpace(parts[3])
		}
		out = append(out, acct)
	}
	return out, nil
}

func redactAccount(raw string) string {
	if i := strings.Index(raw, ":"); i >= 0 {
		return raw[:i] + ":***"
	}
	return raw
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// SigningKey signs session tokens (HS256). Required outside dev mode.
	SigningKey  string `env:"AUTH_SIGNING_KEY"`
	TokenIssuer string `env:"AUTH_TOKEN_ISSUER" envDefault:"enquiry-gateway"`

	SessionTTL      time.Duration `env:"AUTH_SESSION_TTL"       envDefault:"8h"`
	RefreshGrace    time.Duration `env:"AUTH_REFRESH_GRACE"     envDefault:"10m"`
	ProviderTimeout time.Duration `env:"AUTH_PROVIDER_TIMEOUT"  envDefault:"10s"`
	ProfileTimeout  time.Duration `env:"AUTH_PROFILE_TIMEOUT"   envDefault:"5s"`
	CallbackPath    string        `env:"AUTH_CALLBACK_PATH"     envDefault:"/auth/callback"`

	OAuth   OAuthConfig   `envPrefix:"OAUTH_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// Provider groups mapped to roles when the identity carries no role of its own.
	AdminGroup    string `env:"ADMIN_GROUP"`
	CompanyGroup  string `env:"COMPANY_GROUP"`
	CustomerGroup string `env:"CUSTOMER_GROUP"`
	// DefaultRole applies to subjects outside every group. Empty rejects them.
	DefaultRole string `env:"AUTH_DEFAULT_ROLE"`
}

// Sanitize clamps durations into workable ranges.
func (a *AuthConfig) Sanitize() {
	a.SigningKey = strings.TrimSpace(a.SigningKey)
	a.SessionTTL = clampDuration(a.SessionTTL, time.Minute, 7*24*time.Hour, 8*time.Hour)
	a.ProviderTimeout = clampDuration(a.ProviderTimeout, time.Second, time.Minute, 10*time.Second)
	a.ProfileTimeout = clampDuration(a.ProfileTimeout, 500*time.Millisecond, 30*time.Second, 5*time.Second)
	if a.RefreshGrace < 0 {
		a.RefreshGrace = 0
	}
	if a.RefreshGrace > a.SessionTTL {
		a.RefreshGrace = a.SessionTTL
	}
	if a.CallbackPath = strings.TrimSpace(a.CallbackPath); !strings.HasPrefix(a.CallbackPath, "/") {
		a.CallbackPath = "/auth/callback"
	}
	a.DefaultRole = strings.ToLower(strings.TrimSpace(a.DefaultRole))
	a.OAuth.ProviderName = strings.ToLower(strings.TrimSpace(a.OAuth.ProviderName))
	if a.OAuth.ProviderName == "" {
		a.OAuth.ProviderName = "corporate"
	}
}

// Validate reports missing settings for the selected mode.
func (a *AuthConfig) Validate(isDev bool) error {
	var errs []error
	if a.SigningKey == "" && !isDev {
		errs = append(errs, errors.New("AUTH_SIGNING_KEY is required outside dev mode"))
	}
	if a.SigningKey != "" && len(a.SigningKey) < MinSigningKeyLength {
		errs = append(errs, fmt.Errorf("AUTH_SIGNING_KEY must be at least %d bytes", MinSigningKeyLength))
	}
	switch a.Mode {
	case AuthModeOAuth:
		if a.OAuth.ClientID == "" {
			errs = append(errs, errors.New("OAUTH_CLIENT_ID is required in oauth mode"))
		}
		if a.OAuth.DiscoveryURL == "" {
			errs = append(errs, errors.New("OAUTH_DISCOVERY_URL is required in oauth mode"))
		}
	case AuthModeMock:
		if !isDev {
			errs = append(errs, errors.New("AUTH_MODE=mock is only allowed in dev mode"))
		}
		if _, err := a.DevAuth.ParsedAccounts(); err != nil {
			errs = append(errs, err)
		}
	}
	switch a.DefaultRole {
	case "", "customer", "company", "admin":
	default:
		errs = append(errs, fmt.Errorf("AUTH_DEFAULT_ROLE %q is not a role", a.DefaultRole))
	}
	return errors.Join(errs...)
}

func clampDuration(v, lo, hi, def time.Duration) time.Duration {
	switch {
	case v <= 0:
		return def
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
