package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/enquiry-gateway/internal/domain/access"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/observability/metrics"
	"github.com/target/enquiry-gateway/internal/ports"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth        AuthServiceInterface
	Gateway     *access.Gateway
	Revocations ports.RevocationStore // optional
	Cookies     CookieConfig
	RateLimit   RateLimitConfig
	Readiness   []ReadinessCheck // stores checked by /readyz; empty when none are enabled
	Metrics     *metrics.Metrics // optional; /metrics is only mounted when set
	Logger      *slog.Logger
}

// NewRouter builds the mux and wraps it with recovery, request logging and the access gateway.
// The gateway runs before routing, so unknown protected paths are still denied.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{
		Svc:     services.Auth,
		Cookies: services.Cookies,
		Limiter: NewRateLimiter(services.RateLimit),
		Metrics: services.Metrics,
		Logger:  logger,
	}
	landing := &LandingHandlers{
		Cookies:   services.Cookies,
		Providers: services.Auth.Providers,
		Metrics:   services.Metrics,
		Logger:    logger,
	}

	registerAuthRoutes(mux, authHandlers)
	registerLandingRoutes(mux, landing)
	health := &HealthHandlers{Checks: services.Readiness, Logger: logger}
	mux.HandleFunc("GET /healthz", health.Live)
	mux.HandleFunc("HEAD /healthz", health.Live)
	mux.HandleFunc("GET /readyz", health.Ready)
	mux.HandleFunc("HEAD /readyz", health.Ready)
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics.Handler())
	}

	gateway := Gateway(GatewayMiddlewareConfig{
		Gateway:     services.Gateway,
		Revocations: services.Revocations,
		Cookies:     services.Cookies,
		Metrics:     services.Metrics,
		Logger:      logger,
	})
	return Recover(logger)(Logging(logger)(gateway(mux)))
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("POST /api/auth", h.Action)
	mux.HandleFunc("POST /api/auth/callback", h.Callback)
	mux.HandleFunc("POST /api/auth/refresh", h.Refresh)
	mux.HandleFunc("GET /api/auth/session", h.Session)
	mux.HandleFunc("GET /auth/callback", h.CallbackPage)
}

func registerLandingRoutes(mux *http.ServeMux, h *LandingHandlers) {
	for _, role := range []domainauth.Role{domainauth.RoleCustomer, domainauth.RoleCompany, domainauth.RoleAdmin} {
		mux.Handle("GET "+role.Home(), h.Dashboard(role))
	}
	mux.HandleFunc("GET /app", h.AppHome)
	mux.HandleFunc("GET /app/{$}", h.AppHome)
	mux.HandleFunc("GET /unauthorized", h.Unauthorized)
	mux.HandleFunc("GET /login", h.Login)
}
