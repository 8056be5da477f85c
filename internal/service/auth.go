package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/target/enquiry-gateway/internal/domain/access"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/ports"
)

const (
	defaultSessionTTL      = 8 * time.Hour
	defaultProviderTimeout = 10 * time.Second
	defaultProfileTimeout  = 5 * time.Second
	defaultRefreshGrace    = 10 * time.Minute
	defaultCallbackPath    = "/auth/callback"

	profileAttempts = 3
	profileBackoff  = 50 * time.Millisecond
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Credentials ports.CredentialProvider
	OAuth       map[string]ports.OAuthProvider
	Profiles    ports.ProfileStore
	Codec       ports.TokenCodec
	Revocations ports.RevocationStore // optional
	Roles       ports.RoleMapper      // optional, fills identities that arrive without a role
	Logger      *slog.Logger

	SessionTTL      time.Duration
	ProviderTimeout time.Duration
	ProfileTimeout  time.Duration
	// RefreshGrace is how long after expiry a token may still be exchanged for a new one.
	RefreshGrace time.Duration
	// CallbackURL is where providers send the browser back to. Relative paths are allowed.
	CallbackURL      string
	AllowAdminSignUp bool
	Now              func() time.Time
}

// AuthService orchestrates sign-in, sign-up, OAuth, refresh and sign-out by coordinating the
// identity providers, the profile store and the session token codec.
type AuthService struct {
	credentials ports.CredentialProvider
	oauth       map[string]ports.OAuthProvider
	profiles    ports.ProfileStore
	codec       ports.TokenCodec
	revocations ports.RevocationStore
	roles       ports.RoleMapper
	logger      *slog.Logger

	sessionTTL       time.Duration
	providerTimeout  time.Duration
	profileTimeout   time.Duration
	refreshGrace     time.Duration
	callbackURL      string
	allowAdminSignUp bool
	now              func() time.Time
	sleep            func(context.Context, time.Duration) error
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	s := &AuthService{
		credentials:      opts.Credentials,
		oauth:            opts.OAuth,
		profiles:         opts.Profiles,
		codec:            opts.Codec,
		revocations:      opts.Revocations,
		roles:            opts.Roles,
		logger:           opts.Logger,
		sessionTTL:       opts.SessionTTL,
		providerTimeout:  opts.ProviderTimeout,
		profileTimeout:   opts.ProfileTimeout,
		refreshGrace:     opts.RefreshGrace,
		callbackURL:      opts.CallbackURL,
		allowAdminSignUp: opts.AllowAdminSignUp,
		now:              opts.Now,
		sleep:            sleepCtx,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = defaultSessionTTL
	}
	if s.providerTimeout <= 0 {
		s.providerTimeout = defaultProviderTimeout
	}
	if s.profileTimeout <= 0 {
		s.profileTimeout = defaultProfileTimeout
	}
	if s.refreshGrace < 0 {
		s.refreshGrace = 0
	} else if s.refreshGrace == 0 {
		s.refreshGrace = defaultRefreshGrace
	}
	if s.callbackURL == "" {
		s.callbackURL = defaultCallbackPath
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.oauth == nil {
		s.oauth = map[string]ports.OAuthProvider{}
	}
	return s
}

// Providers returns the configured OAuth provider names in sorted order.
func (s *AuthService) Providers() []string {
	names := make([]string, 0, len(s.oauth))
	for name := range s.oauth {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SignIn verifies email/password credentials and issues a session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (domainauth.Grant, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return domainauth.Grant{}, err
	}
	if s.credentials == nil {
		return domainauth.Grant{}, domainauth.NewError(domainauth.KindValidation, "password sign-in is not enabled")
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	id, err := s.credentials.VerifyCredentials(pctx, email, password)
	if err != nil {
		return domainauth.Grant{}, providerError(err, "verify credentials")
	}
	if id.Email == "" {
		id.Email = email
	}
	return s.issue(ctx, id)
}

// SignUp creates a subject, records its profile and signs it in. A profile write failure is
// reported as a ProfileCreationDeferred warning; the subject still gets a session.
func (s *AuthService) SignUp(ctx context.Context, email, password string, role domainauth.Role) (domainauth.Grant, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return domainauth.Grant{}, err
	}
	if !role.Valid() {
		return domainauth.Grant{}, domainauth.NewError(domainauth.KindValidation, fmt.Sprintf("unknown role %q", role))
	}
	if role == domainauth.RoleAdmin && !s.allowAdminSignUp {
		return domainauth.Grant{}, domainauth.NewError(domainauth.KindValidation, "admin accounts cannot be self-registered")
	}
	if s.credentials == nil {
		return domainauth.Grant{}, domainauth.NewError(domainauth.KindValidation, "password sign-up is not enabled")
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	id, err := s.credentials.CreateSubject(pctx, ports.CreateSubjectInput{Email: email, Password: password, Role: role})
	if err != nil {
		return domainauth.Grant{}, providerError(err, "create subject")
	}
	if id.Email == "" {
		id.Email = email
	}
	if id.Role == "" {
		id.Role = role
	}

	tok, err := s.mint(id)
	if err != nil {
		return domainauth.Grant{}, err
	}
	grant := domainauth.Grant{Token: tok}

	if s.profiles == nil {
		return grant, nil
	}
	// The subject already exists at the provider, so the profile write must not be abandoned
	// just because the caller went away.
	wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), s.profileTimeout)
	defer wcancel()
	if perr := s.profiles.CreateProfileRecord(wctx, profileFor(id)); perr != nil {
		s.logger.WarnContext(ctx, "profile creation deferred",
			"subject_id", id.SubjectID,
			"error", perr)
		grant.Warnings = append(grant.Warnings, domainauth.KindProfileCreationDeferred)
	}
	return grant, nil
}

// BeginOAuth prepares a redirect sign-in with the named provider. redirectTo is where the
// browser lands after the callback; anything other than a local path falls back to /app.
func (s *AuthService) BeginOAuth(ctx context.Context, provider, redirectTo string) (domainauth.OAuthStart, error) {
	p, ok := s.oauth[provider]
	if !ok {
		return domainauth.OAuthStart{}, domainauth.NewError(domainauth.KindValidation, fmt.Sprintf("unknown provider %q", provider))
	}
	random, err := randomString(24)
	if err != nil {
		return domainauth.OAuthStart{}, domainauth.WrapError(err, domainauth.KindInternal, "generate state")
	}
	nonce, err := randomString(24)
	if err != nil {
		return domainauth.OAuthStart{}, domainauth.WrapError(err, domainauth.KindInternal, "generate nonce")
	}
	state := domainauth.OAuthState(provider, random)

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	authURL, err := p.AuthorizeURL(pctx, ports.OAuthRequest{
		State:       state,
		Nonce:       nonce,
		CallbackURL: s.callbackFor(redirectTo),
	})
	if err != nil {
		return domainauth.OAuthStart{}, providerError(err, "build authorize url")
	}
	return domainauth.OAuthStart{URL: authURL, State: state, Nonce: nonce}, nil
}

func (s *AuthService) callbackFor(redirectTo string) string {
	target := access.SafeReturnPath(redirectTo, "/app")
	sep := "?"
	if strings.Contains(s.callbackURL, "?") {
		sep = "&"
	}
	return s.callbackURL + sep + "redirect=" + url.QueryEscape(target)
}

// CompleteOAuth finishes a redirect sign-in with the values read from the callback fragment.
func (s *AuthService) CompleteOAuth(ctx context.Context, cb domainauth.OAuthCallback) (domainauth.Grant, error) {
	if cb.Error != "" {
		return domainauth.Grant{}, domainauth.NewError(domainauth.KindMalformedCallback, "provider returned error: "+cb.Error)
	}
	if cb.AccessToken == "" && cb.IDToken == "" {
		return domainauth.Grant{}, domainauth.NewError(domainauth.KindMalformedCallback, "callback carries no token")
	}
	if cb.Provider == "" && cb.State != "" {
		cb.Provider, _, _ = strings.Cut(cb.State, ".")
	}
	p, ok := s.oauth[cb.Provider]
	if !ok {
		return domainauth.Grant{}, domainauth.NewError(domainauth.KindMalformedCallback, fmt.Sprintf("callback names unknown provider %q", cb.Provider))
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	id, err := p.ExchangeOAuthCode(pctx, cb)
	if err != nil {
		return domainauth.Grant{}, providerError(err, "exchange callback")
	}
	return s.issue(ctx, id)
}

// Session resolves raw into a subject summary. Absent, malformed, expired and revoked tokens
// all yield a nil summary; only an unreachable revocation store is an error.
func (s *AuthService) Session(ctx context.Context, raw string) (*domainauth.SessionSummary, error) {
	if raw == "" {
		return nil, nil
	}
	tok, err := s.codec.Parse(raw)
	if err != nil || !tok.Valid(s.now()) {
		return nil, nil //nolint:nilerr // an unusable token means "not signed in"
	}
	revoked, err := s.isRevoked(ctx, tok)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, nil
	}
	sum := tok.Summary()
	return &sum, nil
}

// Refresh exchanges raw for a token with a fresh expiry. Tokens that expired within the
// refresh grace window are still accepted; the old token is revoked once the new one is issued.
func (s *AuthService) Refresh(ctx context.Context, raw string) (domainauth.Grant, error) {
	if raw == "" {
		return domainauth.Grant{}, domainauth.NewError(domainauth.KindSessionExpired, "no session to refresh")
	}
	tok, err := s.codec.Parse(raw)
	if err != nil {
		return domainauth.Grant{}, domainauth.WrapError(err, domainauth.KindMalformedSession, "session token is invalid")
	}
	now := s.now()
	if tok.Expired(now) && now.Sub(tok.ExpiresAt) > s.refreshGrace {
		return domainauth.Grant{}, domainauth.NewError(domainauth.KindSessionExpired, "session expired")
	}
	revoked, err := s.isRevoked(ctx, tok)
	if err != nil {
		return domainauth.Grant{}, err
	}
	if revoked {
		return domainauth.Grant{}, domainauth.NewError(domainauth.KindSessionExpired, "session was signed out")
	}

	grant, err := s.issue(ctx, domainauth.Identity{
		SubjectID:   tok.SubjectID,
		Email:       tok.Email,
		DisplayName: tok.DisplayName,
		Role:        tok.Role,
	})
	if err != nil {
		return domainauth.Grant{}, err
	}
	if s.revocations != nil && !tok.Expired(now) {
		if rerr := s.revocations.Revoke(ctx, tok); rerr != nil {
			s.logger.WarnContext(ctx, "failed to revoke rotated session token",
				"subject_id", tok.SubjectID,
				"error", rerr)
		}
	}
	return grant, nil
}

// SignOut revokes raw locally and tells the credential provider. Failures are returned joined
// so callers can log them, but a sign-out is never refused: callers clear their state anyway.
func (s *AuthService) SignOut(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	tok, err := s.codec.Parse(raw)
	if err != nil {
		return nil //nolint:nilerr // nothing to revoke
	}

	var errs []error
	if s.revocations != nil {
		if rerr := s.revocations.Revoke(ctx, tok); rerr != nil {
			errs = append(errs, fmt.Errorf("revoke session: %w", rerr))
		}
	}
	if s.credentials != nil {
		pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
		defer cancel()
		if ierr := s.credentials.InvalidateSession(pctx, tok.SubjectID); ierr != nil {
			errs = append(errs, fmt.Errorf("invalidate provider session: %w", ierr))
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.WarnContext(ctx, "sign-out completed with errors",
			"subject_id", tok.SubjectID,
			"error", err)
		return err
	}
	return nil
}

// issue mints a session for id after repairing its profile record.
func (s *AuthService) issue(ctx context.Context, id domainauth.Identity) (domainauth.Grant, error) {
	if id.Role == "" && s.roles != nil {
		id.Role = s.roles.Map(id.Groups)
	}
	id = s.ensureProfile(ctx, id)
	tok, err := s.mint(id)
	if err != nil {
		return domainauth.Grant{}, err
	}
	return domainauth.Grant{Token: tok}, nil
}

func (s *AuthService) mint(id domainauth.Identity) (domainauth.SessionToken, error) {
	if id.SubjectID == "" {
		return domainauth.SessionToken{}, domainauth.NewError(domainauth.KindInternal, "provider returned identity without subject")
	}
	if !id.Role.Valid() {
		return domainauth.SessionToken{}, domainauth.NewError(domainauth.KindUnauthorized, "subject has no recognized role")
	}
	ttl := s.sessionTTL
	if !id.ExpiresAt.IsZero() {
		if remaining := id.ExpiresAt.Sub(s.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return domainauth.SessionToken{}, domainauth.NewError(domainauth.KindSessionExpired, "provider session already expired")
	}
	tok, err := s.codec.Issue(id, ttl)
	if err != nil {
		return domainauth.SessionToken{}, domainauth.WrapError(err, domainauth.KindInternal, "issue session token")
	}
	return tok, nil
}

// ensureProfile reads the subject's profile, creating it when missing. Failures are logged and
// never block authentication. A stored display name fills a missing one on id.
func (s *AuthService) ensureProfile(ctx context.Context, id domainauth.Identity) domainauth.Identity {
	if s.profiles == nil || id.SubjectID == "" {
		return id
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.profileTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= profileAttempts; attempt++ {
		p, err := s.profiles.GetProfile(pctx, id.SubjectID)
		if err == nil {
			if id.DisplayName == "" {
				id.DisplayName = p.DisplayName
			}
			return id
		}
		if errors.Is(err, ports.ErrProfileNotFound) {
			if !id.Role.Valid() {
				return id
			}
			if cerr := s.profiles.CreateProfileRecord(pctx, profileFor(id)); cerr != nil {
				s.logger.WarnContext(ctx, "profile repair failed",
					"subject_id", id.SubjectID,
					"error", cerr)
			} else {
				s.logger.InfoContext(ctx, "profile repaired", "subject_id", id.SubjectID)
			}
			return id
		}
		lastErr = err
		if attempt < profileAttempts {
			if serr := s.sleep(pctx, time.Duration(attempt)*profileBackoff); serr != nil {
				lastErr = errors.Join(lastErr, serr)
				break
			}
		}
	}
	s.logger.WarnContext(ctx, "profile lookup failed",
		"subject_id", id.SubjectID,
		"error", lastErr)
	return id
}

func (s *AuthService) isRevoked(ctx context.Context, tok domainauth.SessionToken) (bool, error) {
	if s.revocations == nil || tok.ID == "" {
		return false, nil
	}
	revoked, err := s.revocations.IsRevoked(ctx, tok.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "revocation lookup failed", "error", err)
		return false, domainauth.WrapError(err, domainauth.KindProviderUnavailable, "session state unavailable")
	}
	return revoked, nil
}

func profileFor(id domainauth.Identity) ports.Profile {
	return ports.Profile{
		SubjectID:   id.SubjectID,
		Role:        id.Role,
		Email:       id.Email,
		DisplayName: id.DisplayName,
	}
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return domainauth.NewError(domainauth.KindValidation, "email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domainauth.NewError(domainauth.KindValidation, "email address is invalid")
	}
	return nil
}

// providerError keeps typed provider errors and classifies everything else. Untyped failures
// from a provider (network, 5xx, deadline) are outages, not credential problems.
func providerError(err error, op string) error {
	var ae *domainauth.Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.Canceled) {
		return domainauth.WrapError(err, domainauth.KindSuperseded, op+" cancelled")
	}
	return domainauth.WrapError(err, domainauth.KindProviderUnavailable, op+": identity provider unavailable")
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
