package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/enquiry-gateway/config"
	httpx "github.com/target/enquiry-gateway/internal/http"
	"github.com/target/enquiry-gateway/internal/observability/metrics"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config *config.AppConfig
	Auth   *AuthStack
	// Infrastructure is optional; its stores are reported by GET /readyz.
	Infrastructure *Infrastructure
	Metrics        *metrics.Metrics // optional
	Logger         *slog.Logger
}

// NewHTTPServer builds the gateway handler and wraps it in an unstarted server.
func NewHTTPServer(cfg HTTPServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Auth:        cfg.Auth.Service,
		Gateway:     cfg.Auth.Gateway,
		Revocations: cfg.Auth.Revocations,
		Cookies: httpx.CookieConfig{
			Domain: appCfg.HTTP.CookieDomain,
			Secure: appCfg.HTTP.Secure(),
		},
		RateLimit: httpx.RateLimitConfig{
			PerMinute:         appCfg.HTTP.RateLimitPerMinute,
			Burst:             appCfg.HTTP.RateLimitBurst,
			TrustForwardedFor: appCfg.HTTP.TrustForwardedFor,
		},
		Readiness: cfg.Infrastructure.ReadinessChecks(),
		Metrics:   cfg.Metrics,
		Logger:    logger,
	})

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: appCfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// ShutdownHTTPServer gracefully shuts down the HTTP server, waiting at most timeout for
// in-flight requests.
func ShutdownHTTPServer(ctx context.Context, server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	if server == nil {
		return nil
	}
	if logger != nil {
		logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if logger != nil {
		logger.Info("HTTP server stopped")
	}
	return nil
}
