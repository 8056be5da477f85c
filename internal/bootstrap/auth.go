package bootstrap

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/enquiry-gateway/config"
	"github.com/target/enquiry-gateway/internal/adapters/authroles"
	"github.com/target/enquiry-gateway/internal/adapters/devauth"
	"github.com/target/enquiry-gateway/internal/adapters/jwtcodec"
	"github.com/target/enquiry-gateway/internal/adapters/oidc"
	"github.com/target/enquiry-gateway/internal/data"
	"github.com/target/enquiry-gateway/internal/domain/access"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/ports"
	"github.com/target/enquiry-gateway/internal/service"
)

// AuthConfig contains the dependencies for building the auth stack.
type AuthConfig struct {
	App         *config.AppConfig
	DB          *sql.DB               // optional; profiles are not persisted without it
	Revocations ports.RevocationStore // optional; sign-out cannot revoke without it
	Logger      *slog.Logger
	Now         func() time.Time
}

// AuthStack is the wired session layer shared by the HTTP router and the admin tooling.
type AuthStack struct {
	Codec       *jwtcodec.Codec
	Service     *service.AuthService
	Gateway     *access.Gateway
	Revocations ports.RevocationStore // nil when Redis is disabled
}

// BuildAuthStack creates the token codec, identity providers, auth service and access gateway
// for the configured auth mode.
func BuildAuthStack(ctx context.Context, cfg AuthConfig) (*AuthStack, error) {
	if cfg.App == nil {
		return nil, errors.New("auth config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := cfg.App

	codec, err := BuildCodec(app, cfg.Now, logger)
	if err != nil {
		return nil, err
	}

	credentials, oauthProvider, err := buildProviders(ctx, app, cfg.Now)
	if err != nil {
		return nil, err
	}

	roleMapper, err := buildRoleMapper(app.Auth)
	if err != nil {
		return nil, err
	}

	var profiles ports.ProfileStore
	if cfg.DB != nil {
		profiles = data.NewProfileRepo(cfg.DB)
	} else {
		logger.Warn("profile store disabled: database not configured")
	}

	revocations := cfg.Revocations
	if revocations == nil {
		logger.Warn("session revocation disabled: redis not configured")
	}

	classifier, err := BuildClassifier(app.Routes)
	if err != nil {
		return nil, err
	}

	svc := service.NewAuthService(service.AuthServiceOptions{
		Credentials:      credentials,
		OAuth:            map[string]ports.OAuthProvider{app.Auth.OAuth.ProviderName: oauthProvider},
		Profiles:         profiles,
		Codec:            codec,
		Revocations:      revocations,
		Roles:            roleMapper,
		Logger:           logger,
		SessionTTL:       app.Auth.SessionTTL,
		ProviderTimeout:  app.Auth.ProviderTimeout,
		ProfileTimeout:   app.Auth.ProfileTimeout,
		RefreshGrace:     app.Auth.RefreshGrace,
		CallbackURL:      app.Auth.CallbackPath,
		AllowAdminSignUp: app.Auth.Mode == config.AuthModeMock && app.Auth.DevAuth.AllowAdminSignUp,
		Now:              cfg.Now,
	})

	logger.Info("auth stack ready",
		"mode", app.Auth.Mode,
		"oauth_provider", app.Auth.OAuth.ProviderName,
		"profiles", profiles != nil,
		"revocation", revocations != nil,
	)

	return &AuthStack{
		Codec:   codec,
		Service: svc,
		Gateway: access.NewGateway(access.GatewayOptions{
			Classifier: classifier,
			Parser:     codec,
			Now:        cfg.Now,
		}),
		Revocations: revocations,
	}, nil
}

// BuildCodec creates the session token codec. Dev mode without a configured key gets a random
// one, which invalidates every session on restart.
func BuildCodec(app *config.AppConfig, now func() time.Time, logger *slog.Logger) (*jwtcodec.Codec, error) {
	key := []byte(app.Auth.SigningKey)
	if len(key) == 0 {
		if !app.IsDev {
			return nil, errors.New("AUTH_SIGNING_KEY is required outside dev mode")
		}
		key = make([]byte, jwtcodec.MinKeyLength)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate ephemeral signing key: %w", err)
		}
		if logger != nil {
			logger.Warn("using an ephemeral signing key; sessions will not survive a restart")
		}
	}
	codec, err := jwtcodec.New(jwtcodec.Options{Key: key, Issuer: app.Auth.TokenIssuer, Now: now})
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	return codec, nil
}

func buildProviders(
	ctx context.Context,
	app *config.AppConfig,
	now func() time.Time,
) (ports.CredentialProvider, ports.OAuthProvider, error) {
	switch app.Auth.Mode {
	case config.AuthModeMock:
		prov, err := buildDevProvider(app.Auth.DevAuth, now)
		if err != nil {
			return nil, nil, err
		}
		return prov, prov, nil

	case config.AuthModeOAuth:
		oauth := app.Auth.OAuth
		prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			Scope:        oauth.Scope,
			DiscoveryURL: oauth.DiscoveryURL,
			BaseURL:      app.HTTP.BaseURL,
			GroupsClaim:  oauth.GroupsClaim,
			RoleClaim:    oauth.RoleClaim,
			Now:          now,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("oidc provider: %w", err)
		}
		return prov, prov, nil

	default:
		return nil, nil, fmt.Errorf("unsupported auth mode %q", app.Auth.Mode)
	}
}

func buildDevProvider(cfg config.DevAuthConfig, now func() time.Time) (*devauth.Provider, error) {
	parsed, err := cfg.ParsedAccounts()
	if err != nil {
		return nil, err
	}
	accounts := make([]devauth.Account, 0, len(parsed))
	for _, a := range parsed {
		role, err := domainauth.ParseRole(a.Role)
		if err != nil {
			return nil, fmt.Errorf("dev account %s: %w", a.Email, err)
		}
		accounts = append(accounts, devauth.Account{
			Email:       a.Email,
			Password:    a.Password,
			Role:        role,
			DisplayName: a.DisplayName,
		})
	}
	prov, err := devauth.NewProvider(devauth.Config{
		Accounts:         accounts,
		OAuthEmail:       cfg.OAuthEmail,
		AllowAdminSignUp: cfg.AllowAdminSignUp,
		Now:              now,
	})
	if err != nil {
		return nil, fmt.Errorf("dev auth provider: %w", err)
	}
	return prov, nil
}

func buildRoleMapper(cfg config.AuthConfig) (authroles.StaticRoleMapper, error) {
	m := authroles.StaticRoleMapper{
		AdminGroup:    cfg.AdminGroup,
		CompanyGroup:  cfg.CompanyGroup,
		CustomerGroup: cfg.CustomerGroup,
	}
	if cfg.DefaultRole != "" {
		role, err := domainauth.ParseRole(cfg.DefaultRole)
		if err != nil {
			return m, fmt.Errorf("default role: %w", err)
		}
		m.Default = role
	}
	return m, nil
}

// BuildClassifier loads the configured route table, falling back to the built-in rules.
func BuildClassifier(cfg config.RoutesConfig) (*access.Classifier, error) {
	table, err := config.LoadRouteTable(cfg.File)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return access.DefaultClassifier(), nil
	}
	return ClassifierFromTable(table)
}

// ClassifierFromTable converts a decoded route table into a classifier.
func ClassifierFromTable(table *config.RouteTable) (*access.Classifier, error) {
	public := make([]access.Rule, 0, len(table.Public))
	for _, r := range table.Public {
		public = append(public, access.Rule{Pattern: r.Pattern, Exact: r.Exact})
	}
	protected := make([]access.Rule, 0, len(table.Protected))
	for _, r := range table.Protected {
		rule := access.Rule{Pattern: r.Pattern, Exact: r.Exact}
		if r.Role != "" {
			role, err := domainauth.ParseRole(r.Role)
			if err != nil {
				return nil, fmt.Errorf("route %q: %w", r.Pattern, err)
			}
			rule.RequiredRole = role
		}
		protected = append(protected, rule)
	}
	classifier, err := access.NewClassifier(public, protected)
	if err != nil {
		return nil, fmt.Errorf("route table: %w", err)
	}
	return classifier, nil
}
