package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/target/enquiry-gateway/config"
	"github.com/target/enquiry-gateway/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	// server commands talk to Postgres/Redis directly and need the full gateway config.
	server bool
	run    commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	In     io.Reader
}

func main() {
	logger := bootstrap.InitLogger(config.ObservabilityConfig{LogLevel: os.Getenv("LOG_LEVEL"), LogFormat: "text"})

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{Ctx: ctx, Logger: logger, Out: os.Stdout, In: os.Stdin}
	if cmd.server {
		cfg, err := bootstrap.LoadConfig()
		if err != nil {
			logger.ErrorContext(ctx, "load config", "error", err)
			stop()
			os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
		}
		cmdCtx.Config = cfg
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmdName, "error", runErr)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			server:      true,
			run:         runMigrations,
		},
		"migrate-status": {
			name:        "migrate-status",
			description: "List migrations not yet applied",
			server:      true,
			run:         runMigrateStatus,
		},
		"profiles": {
			name:        "profiles",
			description: "List user profiles, newest first",
			server:      true,
			run:         runListProfiles,
		},
		"revoke": {
			name:        "revoke",
			description: "Revoke a session token before it expires and record the reason",
			server:      true,
			run:         runRevoke,
		},
		"revocations": {
			name:        "revocations",
			description: "Show the revocation audit trail for a subject",
			server:      true,
			run:         runListRevocations,
		},
		"login": {
			name:        "login",
			description: "Sign in with email and password and store the session locally",
			run:         runLogin,
		},
		"signup": {
			name:        "signup",
			description: "Create an account and store the session locally",
			run:         runSignUp,
		},
		"oauth-login": {
			name:        "oauth-login",
			description: "Sign in through an OAuth provider by pasting the callback URL",
			run:         runOAuthLogin,
		},
		"whoami": {
			name:        "whoami",
			description: "Show the locally stored session",
			run:         runWhoAmI,
		},
		"refresh": {
			name:        "refresh",
			description: "Exchange the stored session for a fresh one",
			run:         runRefresh,
		},
		"logout": {
			name:        "logout",
			description: "Sign out and forget the stored session",
			run:         runLogout,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: enquiry-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-16s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}
