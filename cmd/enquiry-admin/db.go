package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/target/enquiry-gateway/internal/bootstrap"
	"github.com/target/enquiry-gateway/internal/data"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/migrate"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultQueryTimeout     = 30 * time.Second
)

type migrateOptions struct {
	Timeout time.Duration
}

type profilesOptions struct {
	Role   domainauth.Role
	Limit  int
	Offset int
}

func parseMigrateFlags(name string, args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{}
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseProfilesFlags(args []string) (profilesOptions, error) {
	fs := flag.NewFlagSet("profiles", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var role string
	opts := profilesOptions{}
	fs.StringVar(&role, "role", "", "Only list this role (customer, company, admin)")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum rows to return (max 500)")
	fs.IntVar(&opts.Offset, "offset", 0, "Rows to skip")

	if err := fs.Parse(args); err != nil {
		return profilesOptions{}, err
	}
	if role != "" {
		r, err := domainauth.ParseRole(role)
		if err != nil {
			return profilesOptions{}, err
		}
		opts.Role = r
	}
	if opts.Limit <= 0 {
		return profilesOptions{}, errors.New("--limit must be greater than zero")
	}
	if opts.Offset < 0 {
		return profilesOptions{}, errors.New("--offset cannot be negative")
	}
	return opts, nil
}

// withDatabase opens the configured database for the duration of fn.
func withDatabase(cmdCtx *commandContext, fn func(db *sql.DB) error) error {
	if !cmdCtx.Config.Postgres.Enabled {
		return errors.New("database is disabled (DB_ENABLED=false)")
	}
	db, err := bootstrap.ConnectProfileDB(cmdCtx.Ctx, cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()
	return fn(db)
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags("migrate", args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	return withDatabase(cmdCtx, func(db *sql.DB) error {
		cmdCtx.Logger.Info("running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return migrateErr
		}
		cmdCtx.Logger.Info("migrations completed successfully")
		return nil
	})
}

func runMigrateStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags("migrate-status", args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	return withDatabase(cmdCtx, func(db *sql.DB) error {
		pending, err := migrate.Pending(ctx, db)
		if err != nil {
			return err
		}
		return printPending(cmdCtx, pending)
	})
}

func printPending(cmdCtx *commandContext, pending []migrate.Migration) error {
	if len(pending) == 0 {
		return writeln(cmdCtx.Out, "Database is up to date.")
	}
	if err := writef(cmdCtx.Out, "%d pending migration(s):\n", len(pending)); err != nil {
		return err
	}
	for _, m := range pending {
		if err := writef(cmdCtx.Out, "  %s\n", m.Version); err != nil {
			return err
		}
	}
	return nil
}

func runListProfiles(cmdCtx *commandContext, args []string) error {
	opts, err := parseProfilesFlags(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultQueryTimeout)
	defer cancel()

	return withDatabase(cmdCtx, func(db *sql.DB) error {
		profiles, err := data.NewProfileRepo(db).ListProfiles(ctx, data.ProfileListOptions{
			Role:   opts.Role,
			Limit:  opts.Limit,
			Offset: opts.Offset,
		})
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			return writeln(cmdCtx.Out, "No profiles found.")
		}
		w := tabwriter.NewWriter(cmdCtx.Out, 0, 4, 2, ' ', 0)
		if err := writeln(w, "Subject\tRole\tEmail\tName\tCreated"); err != nil {
			return fmt.Errorf("write profiles header: %w", err)
		}
		for _, p := range profiles {
			if err := writef(w, "%s\t%s\t%s\t%s\t%s\n",
				p.SubjectID, p.Role, p.Email, p.DisplayName, p.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
				return fmt.Errorf("write profile row: %w", err)
			}
		}
		return w.Flush()
	})
}

func runListRevocations(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("revocations", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	subject := fs.String("subject", "", "Subject id to inspect (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("--subject is required")
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultQueryTimeout)
	defer cancel()

	return withDatabase(cmdCtx, func(db *sql.DB) error {
		entries, err := data.NewRevocationLogRepo(db).ListBySubject(ctx, *subject)
		if err != nil {
			return err
		}
		return printRevocations(cmdCtx, entries)
	})
}

func printRevocations(cmdCtx *commandContext, entries []data.Revocation) error {
	if len(entries) == 0 {
		return writeln(cmdCtx.Out, "No revocations recorded.")
	}
	w := tabwriter.NewWriter(cmdCtx.Out, 0, 4, 2, ' ', 0)
	if err := writeln(w, "Token\tRevoked\tExpires\tReason"); err != nil {
		return fmt.Errorf("write revocations header: %w", err)
	}
	for _, e := range entries {
		if err := writef(w, "%s\t%s\t%s\t%s\n",
			e.TokenID,
			e.RevokedAt.UTC().Format(time.RFC3339),
			e.ExpiresAt.UTC().Format(time.RFC3339),
			e.Reason); err != nil {
			return fmt.Errorf("write revocation row: %w", err)
		}
	}
	return w.Flush()
}
