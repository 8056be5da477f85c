package testutil

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/target/enquiry-gateway/internal/migrate"
)

// TestDBConfig holds the connection settings for the test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultTestDBConfig reads TEST_DB_* variables. The default port 55432 matches the local
// docker-compose test profile; CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "enquiry"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "enquiry"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "enquiry"),
		SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
	}
}

// DSN renders the configuration as a postgres URL.
func (c TestDBConfig) DSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func openTestDB(t TestingTB, timeout time.Duration) (*sql.DB, error) {
	t.Helper()
	db, err := sql.Open("pgx", DefaultTestDBConfig().DSN())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SkipIfNoTestDB skips the test if the test database is not reachable.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()
	db, err := openTestDB(t, 2*time.Second)
	if err != nil {
		skipOrFail(t, requireDB(), "Test database not available:", err)
		return
	}
	if cerr := db.Close(); cerr != nil {
		t.Logf("test db close failed: %v", cerr)
	}
}

// SetupTestDB opens the test database, applies migrations and empties the tables. The handle
// is closed when the test finishes.
func SetupTestDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	db, err := openTestDB(t, 5*time.Second)
	if err != nil {
		t.Fatal("Failed to connect to test database:", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		_ = db.Close()
		t.Fatal("Failed to run migrations:", err)
	}
	CleanupTestDB(t, db)
	registerCleanup(t, func() {
		CleanupTestDB(t, db)
		if err := db.Close(); err != nil {
			t.Logf("warning: failed to close test db: %v", err)
		}
	})
	return db
}

// CleanupTestDB removes all rows written by tests.
func CleanupTestDB(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, stmt := range []string{"DELETE FROM session_revocations", "DELETE FROM profiles"} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("cleanup %q: %v", stmt, err)
		}
	}
}
