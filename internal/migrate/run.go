// Package migrate applies the embedded SQL schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// advisoryLockKey serializes migration runs across gateway replicas starting together.
const advisoryLockKey int64 = 0x656e7175697279 // "enquiry"

// Migration is one embedded schema file.
type Migration struct {
	Version string
	File    string
}

// Embedded lists the embedded migrations in apply order.
func Embedded() ([]Migration, error) {
	return list(migrationsFS)
}

func list(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), File: e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Run applies every embedded migration not yet recorded in schema_migrations. It is safe to
// call multiple times and from several processes at once.
func Run(ctx context.Context, db *sql.DB) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration conn: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, advisoryLockKey)
	}()

	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	migrations, err := Embedded()
	if err != nil {
		return err
	}
	logger := slog.Default().With("component", "migrations")
	for _, m := range migrations {
		if err := apply(ctx, conn, m, logger); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the embedded migrations the database has not recorded yet.
func Pending(ctx context.Context, db *sql.DB) ([]Migration, error) {
	migrations, err := Embedded()
	if err != nil {
		return nil, err
	}
	var tracked bool
	if err := db.QueryRowContext(ctx,
		`SELECT to_regclass('schema_migrations') IS NOT NULL`,
	).Scan(&tracked); err != nil {
		return nil, fmt.Errorf("check schema_migrations: %w", err)
	}
	if !tracked {
		return migrations, nil
	}
	applied := make(map[string]bool)
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	var out []Migration
	for _, m := range migrations {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out, nil
}

func apply(ctx context.Context, conn *sql.Conn, m Migration, logger *slog.Logger) error {
	var exists bool
	if err := conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check migration %s: %w", m.File, err)
	}
	if exists {
		return nil
	}

	body, err := migrationsFS.ReadFile("migrations/" + m.File)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", m.File, err)
	}
	logger.InfoContext(ctx, "applying migration", "version", m.Version)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "failed to rollback migration", "err", rbErr, "migration_file", m.File)
		}
	}()
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("exec migration %s: %w", m.File, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
		return fmt.Errorf("record migration %s: %w", m.File, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.File, err)
	}
	return nil
}
