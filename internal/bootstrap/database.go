package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/target/enquiry-gateway/config"
	"github.com/target/enquiry-gateway/internal/data"
	"github.com/target/enquiry-gateway/internal/migrate"
)

const connectTimeout = 5 * time.Second

// profileDSN builds the pgx DSN. url.URL escapes special characters in credentials.
func profileDSN(cfg config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectProfileDB opens the Postgres database holding profiles and the revocation audit.
func ConnectProfileDB(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", profileDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One profile read or write per sign-in; a small pool is plenty.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "profile database connected",
			"host", cfg.Host,
			"port", cfg.Port,
			"database", cfg.Name,
		)
	}
	return db, nil
}

// RunMigrations applies the profile and revocation audit schema.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := data.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}

// CheckSchema reports migrations that were not applied when startup migrations are off.
// Sign-in keeps working without the tables; profile repair and the audit trail do not.
func CheckSchema(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pending, err := migrate.Pending(ctx, db)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	if len(pending) == 0 || logger == nil {
		return nil
	}
	versions := make([]string, 0, len(pending))
	for _, m := range pending {
		versions = append(versions, m.Version)
	}
	logger.WarnContext(ctx, "profile schema is behind; run enquiry-admin migrate",
		"pending", versions)
	return nil
}
