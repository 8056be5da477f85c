package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/target/enquiry-gateway/config"
	"github.com/target/enquiry-gateway/internal/bootstrap"
	"github.com/target/enquiry-gateway/internal/observability/metrics"
)

func main() {
	ctx := context.Background()
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		// The configured logger is not available yet.
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).ErrorContext(ctx, "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
	logger := bootstrap.InitLogger(cfg.Observability)
	if err := run(ctx, &cfg, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	logStartupInfo(ctx, logger, cfg)

	infra, err := bootstrap.ConnectInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := infra.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close infrastructure failed", "error", cerr)
		}
	}()

	stack, err := bootstrap.BuildAuthStack(ctx, bootstrap.AuthConfig{
		App:         cfg,
		DB:          infra.DB,
		Revocations: infra.Revocations(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
	}

	server := bootstrap.NewHTTPServer(bootstrap.HTTPServerConfig{
		Config:         cfg,
		Auth:           stack,
		Infrastructure: infra,
		Metrics:        m,
		Logger:         logger,
	})

	return bootstrap.RunServicesWithShutdown(ctx, bootstrap.ServiceOrchestrationConfig{
		Config: cfg,
		Server: server,
		Logger: logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting enquiry gateway",
		"addr", cfg.HTTP.Addr,
		"base_url", cfg.HTTP.BaseURL,
		"auth_mode", cfg.Auth.Mode,
		"dev", cfg.IsDev,
		"db_enabled", cfg.Postgres.Enabled,
		"db_host", cfg.Postgres.Host,
		"redis_enabled", cfg.Redis.Enabled,
		"routes_file", cfg.Routes.File,
	)
}
