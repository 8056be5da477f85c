package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/target/enquiry-gateway/internal/adapters/authclient"
	"github.com/target/enquiry-gateway/internal/adapters/filestore"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/identity"
)

const (
	defaultServer        = "http://localhost:8080"
	defaultClientTimeout = 30 * time.Second
)

type clientOptions struct {
	Server      string
	SessionFile string
}

// registerClientFlags binds the flags every session command shares.
func registerClientFlags(fs *flag.FlagSet, opts *clientOptions) {
	server := os.Getenv("ENQUIRY_SERVER")
	if server == "" {
		server = defaultServer
	}
	fs.StringVar(&opts.Server, "server", server, "Gateway base URL (env ENQUIRY_SERVER)")
	fs.StringVar(&opts.SessionFile, "session-file", "", "Where the session is stored (default: user config dir)")
}

type sessionClient struct {
	identity *identity.Service
	client   *authclient.Client
	store    *filestore.Store
}

func newSessionClient(cmdCtx *commandContext, opts clientOptions) (*sessionClient, error) {
	path := opts.SessionFile
	if path == "" {
		p, err := filestore.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	store, err := filestore.New(path)
	if err != nil {
		return nil, err
	}
	client, err := authclient.New(authclient.Options{BaseURL: opts.Server, UserAgent: "enquiry-admin"})
	if err != nil {
		return nil, err
	}
	svc, err := identity.New(identity.Options{
		Backend: client,
		Store:   store,
		Logger:  cmdCtx.Logger,
		Timeout: defaultClientTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &sessionClient{identity: svc, client: client, store: store}, nil
}

type credentialOptions struct {
	clientOptions
	Email    string
	Password string
	Role     string
}

func parseCredentialFlags(name string, args []string, withRole bool) (credentialOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := credentialOptions{}
	registerClientFlags(fs, &opts.clientOptions)
	fs.StringVar(&opts.Email, "email", "", "Account email (required)")
	fs.StringVar(&opts.Password, "password", "", "Account password (env ENQUIRY_PASSWORD)")
	if withRole {
		fs.StringVar(&opts.Role, "role", string(domainauth.RoleCustomer), "Role to register as (customer, company)")
	}
	if err := fs.Parse(args); err != nil {
		return credentialOptions{}, err
	}
	if opts.Password == "" {
		opts.Password = os.Getenv("ENQUIRY_PASSWORD")
	}
	if strings.TrimSpace(opts.Email) == "" {
		return credentialOptions{}, errors.New("--email is required")
	}
	if opts.Password == "" {
		return credentialOptions{}, errors.New("--password or ENQUIRY_PASSWORD is required")
	}
	return opts, nil
}

func parseClientFlags(name string, args []string) (clientOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := clientOptions{}
	registerClientFlags(fs, &opts)
	if err := fs.Parse(args); err != nil {
		return clientOptions{}, err
	}
	return opts, nil
}

func runLogin(cmdCtx *commandContext, args []string) error {
	opts, err := parseCredentialFlags("login", args, false)
	if err != nil {
		return err
	}
	sc, err := newSessionClient(cmdCtx, opts.clientOptions)
	if err != nil {
		return err
	}
	view, err := sc.identity.SignIn(cmdCtx.Ctx, opts.Email, opts.Password)
	if err != nil {
		return err
	}
	return printView(cmdCtx, view)
}

func runSignUp(cmdCtx *commandContext, args []string) error {
	opts, err := parseCredentialFlags("signup", args, true)
	if err != nil {
		return err
	}
	role, err := domainauth.ParseRole(opts.Role)
	if err != nil {
		return err
	}
	sc, err := newSessionClient(cmdCtx, opts.clientOptions)
	if err != nil {
		return err
	}
	view, err := sc.identity.SignUp(cmdCtx.Ctx, opts.Email, opts.Password, role)
	if err != nil {
		return err
	}
	return printView(cmdCtx, view)
}

func runOAuthLogin(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("oauth-login", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := clientOptions{}
	registerClientFlags(fs, &opts)
	provider := fs.String("provider", "corporate", "OAuth provider name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sc, err := newSessionClient(cmdCtx, opts)
	if err != nil {
		return err
	}

	authURL, err := sc.identity.SignInWithOAuth(cmdCtx.Ctx, *provider, "/app")
	if err != nil {
		return err
	}
	if err := writef(cmdCtx.Out, "Open this URL in a browser and sign in:\n\n  %s\n\n", absoluteURL(opts.Server, authURL)); err != nil {
		return err
	}
	if err := writef(cmdCtx.Out, "Paste the URL the browser lands on: "); err != nil {
		return err
	}
	line, err := bufio.NewReader(cmdCtx.In).ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return fmt.Errorf("read callback URL: %w", err)
	}
	fragment, err := callbackFragment(line)
	if err != nil {
		return err
	}
	view, err := sc.identity.CompleteOAuthCallback(cmdCtx.Ctx, fragment)
	if err != nil {
		return err
	}
	return printView(cmdCtx, view)
}

// absoluteURL resolves the relative URLs the dev provider hands out against the server.
func absoluteURL(server, raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() {
		return raw
	}
	base, err := url.Parse(server)
	if err != nil {
		return raw
	}
	return base.ResolveReference(u).String()
}

func callbackFragment(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("callback URL is empty")
	}
	if strings.HasPrefix(raw, "#") {
		return raw[1:], nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse callback URL: %w", err)
	}
	if u.Fragment == "" {
		return "", errors.New("callback URL carries no #fragment; copy the full address")
	}
	return u.Fragment, nil
}

func runWhoAmI(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := clientOptions{}
	registerClientFlags(fs, &opts)
	verify := fs.Bool("verify", false, "Ask the gateway whether the session is still accepted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sc, err := newSessionClient(cmdCtx, opts)
	if err != nil {
		return err
	}
	view := sc.identity.Bootstrap(cmdCtx.Ctx, "")
	if err := printView(cmdCtx, view); err != nil {
		return err
	}
	if !*verify || !view.Authenticated() {
		return nil
	}
	tok, err := sc.store.Load(cmdCtx.Ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultClientTimeout)
	defer cancel()
	summary, err := sc.client.Session(ctx, tok.Raw)
	if err != nil {
		return err
	}
	if summary == nil {
		return writeln(cmdCtx.Out, "Gateway: session is no longer accepted")
	}
	return writeln(cmdCtx.Out, "Gateway: session accepted")
}

func runRefresh(cmdCtx *commandContext, args []string) error {
	opts, err := parseClientFlags("refresh", args)
	if err != nil {
		return err
	}
	sc, err := newSessionClient(cmdCtx, opts)
	if err != nil {
		return err
	}
	sc.identity.Bootstrap(cmdCtx.Ctx, "")
	view, err := sc.identity.RefreshSession(cmdCtx.Ctx)
	if err != nil {
		return err
	}
	return printView(cmdCtx, view)
}

func runLogout(cmdCtx *commandContext, args []string) error {
	opts, err := parseClientFlags("logout", args)
	if err != nil {
		return err
	}
	sc, err := newSessionClient(cmdCtx, opts)
	if err != nil {
		return err
	}
	sc.identity.Bootstrap(cmdCtx.Ctx, "")
	sc.identity.SignOut(cmdCtx.Ctx)
	return writeln(cmdCtx.Out, "Signed out.")
}

func printView(cmdCtx *commandContext, view identity.View) error {
	if !view.Authenticated() {
		msg := "Not signed in (" + string(view.Status) + ")"
		if view.Err != nil {
			msg += ": " + view.Err.Error()
		}
		return writeln(cmdCtx.Out, msg)
	}
	u := view.User
	if err := writef(cmdCtx.Out, "Signed in as %s (%s)\n", u.Email, u.Role); err != nil {
		return err
	}
	if u.DisplayName != "" {
		if err := writef(cmdCtx.Out, "Name:    %s\n", u.DisplayName); err != nil {
			return err
		}
	}
	if err := writef(cmdCtx.Out, "Subject: %s\nExpires: %s\n", u.SubjectID, u.ExpiresAt.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	for _, w := range view.Warnings {
		if err := writef(cmdCtx.Out, "Warning: %s\n", w); err != nil {
			return err
		}
	}
	return nil
}
