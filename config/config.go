package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: sign-in modes, token signing, providers and role mapping
//   - database.go: PostgreSQL and Redis
//   - http.go: HTTP server, cookies and rate limiting
//   - routes.go: route classification table
//   - observability.go: logging and metrics
type AppConfig struct {
	// IsDev controls development mode behavior (ephemeral signing key, insecure cookies).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	Auth AuthConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig

	Routes RoutesConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.detectDevMode()
	c.Auth.Sanitize()
	c.HTTP.Sanitize(c.IsDev)
	c.Routes.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports configuration that cannot produce a working gateway. Call after Sanitize.
func (c *AppConfig) Validate() error {
	return c.Auth.Validate(c.IsDev)
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
