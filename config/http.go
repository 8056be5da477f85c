package config

import (
	"strings"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the public URL of the gateway (e.g., "https://enquiries.example.com").
	// OAuth redirect URIs are resolved against it.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// SecureCookies forces the Secure attribute. Dev mode turns it off unless set explicitly.
	SecureCookies *bool `env:"APP_SECURE_COOKIES"`

	// Sign-in / sign-up attempts allowed per client per minute. 0 disables limiting.
	RateLimitPerMinute int `env:"AUTH_RATE_LIMIT_PER_MINUTE" envDefault:"30"`
	RateLimitBurst     int `env:"AUTH_RATE_LIMIT_BURST"      envDefault:"10"`
	// TrustForwardedFor keys rate limits on X-Forwarded-For. Enable only behind a proxy that sets it.
	TrustForwardedFor bool `env:"HTTP_TRUST_FORWARDED_FOR" envDefault:"false"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"    envDefault:"15s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize(isDev bool) {
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	h.CookieDomain = strings.TrimSpace(h.CookieDomain)
	if h.SecureCookies == nil {
		secure := !isDev
		h.SecureCookies = &secure
	}
	if h.RateLimitPerMinute < 0 {
		h.RateLimitPerMinute = 0
	}
	if h.RateLimitBurst < 1 {
		h.RateLimitBurst = 1
	}
	h.ReadHeaderTimeout = clampDuration(h.ReadHeaderTimeout, time.Second, time.Minute, 5*time.Second)
	h.ShutdownTimeout = clampDuration(h.ShutdownTimeout, time.Second, 2*time.Minute, 15*time.Second)
}

// Secure reports whether cookies carry the Secure attribute.
func (h *HTTPConfig) Secure() bool {
	return h.SecureCookies != nil && *h.SecureCookies
}
