package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/target/enquiry-gateway/internal/adapters/filestore"
	"github.com/target/enquiry-gateway/internal/bootstrap"
	"github.com/target/enquiry-gateway/internal/data"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/ports"
)

type revokeOptions struct {
	Token     string
	TokenFile string
	Reason    string
	Yes       bool
}

// revokeTargets are the stores a revocation is written to. Either may be nil.
type revokeTargets struct {
	Store ports.RevocationStore
	Log   revocationRecorder
}

type revocationRecorder interface {
	Record(ctx context.Context, tok domainauth.SessionToken, reason string) (bool, error)
}

func parseRevokeFlags(args []string) (revokeOptions, error) {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := revokeOptions{}
	fs.StringVar(&opts.Token, "token", "", "Raw session token to revoke")
	fs.StringVar(&opts.TokenFile, "token-file", "", "File holding the raw token, or a session file written by login")
	fs.StringVar(&opts.Reason, "reason", "", "Why the session is revoked (required)")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return revokeOptions{}, err
	}
	if (opts.Token == "") == (opts.TokenFile == "") {
		return revokeOptions{}, errors.New("exactly one of --token or --token-file is required")
	}
	opts.Reason = strings.TrimSpace(opts.Reason)
	if opts.Reason == "" {
		return revokeOptions{}, errors.New("--reason is required")
	}
	return opts, nil
}

// readRawToken accepts either a bare token or a session file produced by the login command.
func readRawToken(ctx context.Context, opts revokeOptions) (string, error) {
	if opts.Token != "" {
		return strings.TrimSpace(opts.Token), nil
	}
	store, err := filestore.New(opts.TokenFile)
	if err != nil {
		return "", err
	}
	if tok, lerr := store.Load(ctx); lerr == nil {
		return tok.Raw, nil
	}
	raw, err := os.ReadFile(opts.TokenFile)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errors.New("token file is empty")
	}
	return token, nil
}

func runRevoke(cmdCtx *commandContext, args []string) error {
	opts, err := parseRevokeFlags(args)
	if err != nil {
		return err
	}
	if cmdCtx.Config.Auth.SigningKey == "" {
		return errors.New("AUTH_SIGNING_KEY must be set to verify the token being revoked")
	}
	codec, err := bootstrap.BuildCodec(&cmdCtx.Config, nil, cmdCtx.Logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultQueryTimeout)
	defer cancel()

	raw, err := readRawToken(ctx, opts)
	if err != nil {
		return err
	}
	tok, err := codec.Parse(raw)
	if err != nil {
		return fmt.Errorf("token is not a session issued by this gateway: %w", err)
	}
	if !opts.Yes {
		if err := confirm(cmdCtx, fmt.Sprintf("About to revoke session %s of subject %s (expires %s).",
			tok.ID, tok.SubjectID, tok.ExpiresAt.UTC().Format(time.RFC3339))); err != nil {
			return err
		}
	}

	infraCfg := cmdCtx.Config
	infraCfg.Postgres.RunMigrationsOnStart = false
	infra, err := bootstrap.ConnectInfrastructure(ctx, &infraCfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := infra.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("close infrastructure failed", "error", closeErr)
		}
	}()

	targets := revokeTargets{Store: infra.Revocations()}
	if infra.DB != nil {
		targets.Log = data.NewRevocationLogRepo(infra.DB)
	}
	return revokeToken(ctx, cmdCtx, targets, tok, opts.Reason)
}

func revokeToken(
	ctx context.Context,
	cmdCtx *commandContext,
	targets revokeTargets,
	tok domainauth.SessionToken,
	reason string,
) error {
	if targets.Store == nil {
		return errors.New("redis is disabled; the gateway cannot enforce a revocation")
	}
	if err := targets.Store.Revoke(ctx, tok); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	cmdCtx.Logger.Info("session revoked", "token_id", tok.ID, "subject_id", tok.SubjectID)

	if targets.Log == nil {
		return writeln(cmdCtx.Out, "Revoked. No audit entry written: database is disabled.")
	}
	inserted, err := targets.Log.Record(ctx, tok, reason)
	if err != nil {
		return fmt.Errorf("session revoked but audit entry failed: %w", err)
	}
	if !inserted {
		return writeln(cmdCtx.Out, "Revoked. An audit entry for this token already existed.")
	}
	return writeln(cmdCtx.Out, "Revoked.")
}

func confirm(cmdCtx *commandContext, intro string) error {
	if err := writeln(cmdCtx.Out, intro); err != nil {
		return fmt.Errorf("print confirmation message: %w", err)
	}
	if err := writef(cmdCtx.Out, "Continue? [y/N]: "); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	in := cmdCtx.In
	if in == nil {
		in = strings.NewReader("")
	}
	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}
