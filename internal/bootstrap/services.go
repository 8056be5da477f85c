package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/enquiry-gateway/config"
	httpx "github.com/target/enquiry-gateway/internal/http"
	"github.com/target/enquiry-gateway/internal/ports"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 15 * time.Second

// Infrastructure holds the shared connections. Either may be nil when disabled in config.
type Infrastructure struct {
	DB         *sql.DB
	Revocation *RevocationBackend
}

// ConnectInfrastructure connects the enabled backing stores and applies migrations when asked to.
func ConnectInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{}

	if cfg.Postgres.Enabled {
		db, err := ConnectProfileDB(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		infra.DB = db
		if cfg.Postgres.RunMigrationsOnStart {
			err = RunMigrations(ctx, db, logger)
		} else {
			logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
			err = CheckSchema(ctx, db, logger)
		}
		if err != nil {
			return nil, errors.Join(err, infra.Close())
		}
	}

	if cfg.Redis.Enabled {
		backend, err := ConnectRevocationStore(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect redis: %w", err), infra.Close())
		}
		infra.Revocation = backend
	}
	return infra, nil
}

// Revocations returns the revocation store, or nil when Redis is disabled.
//
//nolint:ireturn // a nil interface, not a typed nil, signals "disabled" to callers.
func (i *Infrastructure) Revocations() ports.RevocationStore {
	if i == nil || i.Revocation == nil {
		return nil
	}
	return i.Revocation.Store
}

// ReadinessChecks lists a check per connected store for GET /readyz.
func (i *Infrastructure) ReadinessChecks() []httpx.ReadinessCheck {
	if i == nil {
		return nil
	}
	var checks []httpx.ReadinessCheck
	if i.DB != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "profiles", Check: i.DB.PingContext})
	}
	if i.Revocation != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "revocations", Check: i.Revocation.Ready})
	}
	return checks
}

// Close releases every open connection.
func (i *Infrastructure) Close() error {
	var errs []error
	if i.Revocation != nil {
		if err := i.Revocation.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		i.Revocation = nil
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		i.DB = nil
	}
	return errors.Join(errs...)
}

// ServiceOrchestrationConfig groups what RunServicesWithShutdown runs.
type ServiceOrchestrationConfig struct {
	Config *config.AppConfig
	Server *http.Server
	// Listener is optional; the server listens on Server.Addr when nil.
	Listener net.Listener
	Logger   *slog.Logger
}

// RunServicesWithShutdown serves HTTP until ctx is canceled, SIGINT/SIGTERM arrives or the
// server fails, then drains in-flight requests.
func RunServicesWithShutdown(ctx context.Context, cfg ServiceOrchestrationConfig) error {
	if cfg.Server == nil {
		return errors.New("service orchestration config missing HTTP server")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	shutdownTimeout := defaultShutdownTimeout
	if cfg.Config != nil && cfg.Config.HTTP.ShutdownTimeout > 0 {
		shutdownTimeout = cfg.Config.HTTP.ShutdownTimeout
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if cfg.Listener != nil {
			logger.Info("starting HTTP server", "addr", cfg.Listener.Addr().String())
			err = cfg.Server.Serve(cfg.Listener)
		} else {
			logger.Info("starting HTTP server", "addr", cfg.Server.Addr)
			err = cfg.Server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down services...")
		return ShutdownHTTPServer(gctx, cfg.Server, shutdownTimeout, logger)
	})
	return g.Wait()
}
