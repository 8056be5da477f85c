package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/target/enquiry-gateway/internal/domain/access"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/ports"
)

const defaultTimeout = 15 * time.Second

// Options configures a Service.
type Options struct {
	Backend Backend
	Store   ports.TokenStore
	Logger  *slog.Logger
	// Timeout bounds every backend call. Defaults to 15s.
	Timeout time.Duration
	Now     func() time.Time
}

type pendingOAuth struct {
	state string
	nonce string
}

type appliedCallback struct {
	fingerprint string
	tokenID     string
}

// Service owns the client identity view. All mutations go through its operations; results of
// operations that were superseded by a later sign-in or sign-out are discarded.
type Service struct {
	backend Backend
	store   ports.TokenStore
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	view     View
	gen      uint64
	cancelOp context.CancelFunc
	tokenID  string
	pending  *pendingOAuth
	applied  appliedCallback
	subs     map[uint64]chan View
	nextSub  uint64

	refreshes singleflight.Group
	callbacks singleflight.Group
}

// New constructs a Service in the anonymous state.
func New(opts Options) (*Service, error) {
	if opts.Backend == nil {
		return nil, errors.New("identity: backend is required")
	}
	if opts.Store == nil {
		return nil, errors.New("identity: token store is required")
	}
	s := &Service{
		backend: opts.Backend,
		store:   opts.Store,
		logger:  opts.Logger,
		timeout: opts.Timeout,
		now:     opts.Now,
		view:    View{Status: domainauth.StatusAnonymous},
		subs:    make(map[uint64]chan View),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// View returns a copy of the current view.
func (s *Service) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.clone()
}

// Subscribe returns a channel receiving the view after every change. Slow readers only see
// the latest view. The returned func unsubscribes and closes the channel.
func (s *Service) Subscribe() (<-chan View, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan View, 1)
	s.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// Bootstrap derives the initial view. A URL carrying a provider callback leaves the view
// authenticating until CompleteOAuthCallback runs; otherwise the view comes from the store.
func (s *Service) Bootstrap(ctx context.Context, currentURL string) View {
	if currentURL != "" {
		if u, err := url.Parse(currentURL); err == nil {
			if domainauth.HasCallbackPayload(u.Fragment) || u.Query().Get("error") != "" {
				s.mu.Lock()
				defer s.mu.Unlock()
				s.view = View{Status: domainauth.StatusAuthenticating, Generation: s.gen}
				s.publishLocked()
				return s.view.clone()
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deriveLocked(ctx)
	s.publishLocked()
	return s.view.clone()
}

// Resync re-derives the view from the store, for example when a tab regains focus. It leaves
// in-flight operations and an error for the same stored token untouched.
func (s *Service) Resync(ctx context.Context) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.view.Status {
	case domainauth.StatusAuthenticating:
		return s.view.clone()
	case domainauth.StatusError:
		tok, err := s.store.Load(ctx)
		if err == nil && tok.ID == s.tokenID {
			return s.view.clone()
		}
	}
	s.deriveLocked(ctx)
	s.publishLocked()
	return s.view.clone()
}

// CheckExpiry moves an authenticated view whose token has elapsed to expired.
func (s *Service) CheckExpiry() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view.Authenticated() && !s.view.User.ExpiresAt.After(s.now()) {
		s.view.Status = domainauth.StatusExpired
		s.view.User = nil
		s.publishLocked()
	}
	return s.view.clone()
}

// RunExpiryWatch calls CheckExpiry every interval until ctx is done.
func (s *Service) RunExpiryWatch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckExpiry()
		}
	}
}

// SignIn authenticates with email and password. It supersedes any operation in flight.
func (s *Service) SignIn(ctx context.Context, email, password string) (View, error) {
	opCtx, gen, done := s.begin(ctx)
	defer done()
	grant, err := s.backend.SignIn(opCtx, email, password)
	return s.complete(ctx, gen, grant, err, "")
}

// SignUp creates an account and signs it in. A deferred profile shows up in View.Warnings.
func (s *Service) SignUp(ctx context.Context, email, password string, role domainauth.Role) (View, error) {
	opCtx, gen, done := s.begin(ctx)
	defer done()
	grant, err := s.backend.SignUp(opCtx, email, password, role)
	return s.complete(ctx, gen, grant, err, "")
}

// SignInWithOAuth starts a redirect sign-in and returns the provider URL. The view stays
// authenticating until the callback completes.
func (s *Service) SignInWithOAuth(ctx context.Context, provider, redirectTarget string) (string, error) {
	opCtx, gen, done := s.begin(ctx)
	defer done()
	start, err := s.backend.BeginOAuth(opCtx, provider, redirectTarget)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return "", errSuperseded()
	}
	if err != nil {
		ae := domainauth.AsError(err)
		s.failLocked(ctx, ae)
		return "", ae
	}
	s.pending = &pendingOAuth{state: start.State, nonce: start.Nonce}
	return start.URL, nil
}

// CompleteOAuthCallback finishes a redirect sign-in from the callback URL fragment. Calling it
// again with the same fragment while its session is still stored returns the authenticated
// view without contacting the backend or writing the store.
func (s *Service) CompleteOAuthCallback(ctx context.Context, fragment string) (View, error) {
	fp := domainauth.FragmentFingerprint(fragment)

	if v, ok := s.alreadyApplied(ctx, fp); ok {
		return v, nil
	}
	res, err, _ := s.callbacks.Do(fp, func() (any, error) {
		if v, ok := s.alreadyApplied(ctx, fp); ok {
			return v, nil
		}
		return s.completeCallback(ctx, fragment, fp)
	})
	v, _ := res.(View)
	return v, err
}

func (s *Service) alreadyApplied(ctx context.Context, fp string) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied.fingerprint != fp || s.applied.tokenID == "" {
		return View{}, false
	}
	tok, err := LoadValid(ctx, s.store, s.now())
	if err != nil || tok.ID != s.applied.tokenID {
		return View{}, false
	}
	if !s.view.Authenticated() {
		s.setAuthenticatedLocked(tok)
		s.publishLocked()
	}
	return s.view.clone(), true
}

func (s *Service) completeCallback(ctx context.Context, fragment, fp string) (View, error) {
	cb, perr := domainauth.ParseFragment(fragment)

	opCtx, gen, done := s.begin(ctx)
	defer done()
	if perr != nil {
		return s.complete(ctx, gen, domainauth.Grant{}, perr, "")
	}

	// Without a pending sign-in (the page was reloaded) the nonce stays empty and a backend
	// that verifies id_tokens refuses the callback.
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending != nil {
		if pending.state != cb.State {
			return s.complete(ctx, gen, domainauth.Grant{}, domainauth.NewError(domainauth.KindMalformedCallback, "callback state does not match the pending sign-in"), "")
		}
		cb.Nonce = pending.nonce
	}

	grant, err := s.backend.CompleteOAuth(opCtx, cb)
	return s.complete(ctx, gen, grant, err, fp)
}

// RefreshSession exchanges the stored token for a fresh one. Concurrent calls share one
// backend request. From expired, any failure signs the view out; from authenticated, an
// outage moves to error and keeps the stored token.
func (s *Service) RefreshSession(ctx context.Context) (View, error) {
	res, err, _ := s.refreshes.Do("refresh", func() (any, error) {
		return s.refresh(ctx)
	})
	v, _ := res.(View)
	return v, err
}

func (s *Service) refresh(ctx context.Context) (View, error) {
	s.mu.Lock()
	gen := s.gen
	tok, lerr := s.store.Load(ctx)
	s.mu.Unlock()

	if lerr != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			return s.view.clone(), errSuperseded()
		}
		ae := domainauth.NewError(domainauth.KindSessionExpired, "no session to refresh")
		if !errors.Is(lerr, domainauth.ErrNoSession) {
			ae = domainauth.WrapError(lerr, domainauth.KindMalformedSession, "stored session is unreadable")
		}
		s.resetLocked(ctx, ae)
		return s.view.clone(), ae
	}

	bctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	grant, err := s.backend.Refresh(bctx, tok.Raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return s.view.clone(), errSuperseded()
	}
	if err != nil {
		ae := domainauth.AsError(err)
		if s.view.Status != domainauth.StatusExpired && isOutage(ae.Kind) {
			s.view.Status = domainauth.StatusError
			s.view.User = nil
			s.view.Err = ae
			s.publishLocked()
		} else {
			s.resetLocked(ctx, ae)
		}
		return s.view.clone(), ae
	}
	if serr := s.store.Save(ctx, grant.Token); serr != nil {
		ae := domainauth.WrapError(serr, domainauth.KindInternal, "save session")
		s.view.Status = domainauth.StatusError
		s.view.User = nil
		s.view.Err = ae
		s.publishLocked()
		return s.view.clone(), ae
	}
	s.setAuthenticatedLocked(grant.Token)
	s.publishLocked()
	return s.view.clone(), nil
}

// SignOut clears local state unconditionally and then tells the backend. Backend failures are
// logged; the view is anonymous when SignOut returns.
func (s *Service) SignOut(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	if s.cancelOp != nil {
		s.cancelOp()
		s.cancelOp = nil
	}
	tok, lerr := s.store.Load(ctx)
	if err := s.store.Clear(ctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear session store", "error", err)
	}
	s.pending = nil
	s.applied = appliedCallback{}
	s.tokenID = ""
	s.view = View{Status: domainauth.StatusAnonymous, Generation: s.gen}
	s.publishLocked()
	s.mu.Unlock()

	if lerr != nil || tok.Raw == "" {
		return
	}
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.backend.SignOut(bctx, tok.Raw); err != nil {
		s.logger.WarnContext(ctx, "remote sign-out failed", "error", err)
	}
}

// ReconcileHints runs the role consistency guard for surface against the view's authoritative
// role. Without a signed-in user it never redirects or repairs.
func (s *Service) ReconcileHints(surface domainauth.Role, hints []access.RoleHint) access.GuardAction {
	s.mu.Lock()
	var authoritative domainauth.Role
	if s.view.Authenticated() {
		authoritative = s.view.User.Role
	}
	s.mu.Unlock()
	return access.Guard{}.Reconcile(access.GuardInput{
		Surface:       surface,
		Hints:         hints,
		Authoritative: authoritative,
	})
}

// begin starts an operation that supersedes every other one: it bumps the generation,
// cancels the previous operation and marks the view authenticating.
func (s *Service) begin(ctx context.Context) (context.Context, uint64, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cancelOp != nil {
		s.cancelOp()
	}
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	s.cancelOp = cancel
	s.view = View{Status: domainauth.StatusAuthenticating, Generation: s.gen, LastSyncedAt: s.view.LastSyncedAt}
	s.publishLocked()
	return opCtx, s.gen, cancel
}

// complete applies an operation result if gen is still current.
func (s *Service) complete(ctx context.Context, gen uint64, grant domainauth.Grant, err error, fingerprint string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return s.view.clone(), errSuperseded()
	}
	s.cancelOp = nil
	if err != nil {
		ae := domainauth.AsError(err)
		s.failLocked(ctx, ae)
		return s.view.clone(), ae
	}
	if serr := s.store.Save(ctx, grant.Token); serr != nil {
		ae := domainauth.WrapError(serr, domainauth.KindInternal, "save session")
		s.failLocked(ctx, ae)
		return s.view.clone(), ae
	}
	s.pending = nil
	if fingerprint != "" {
		s.applied = appliedCallback{fingerprint: fingerprint, tokenID: grant.Token.ID}
	}
	s.setAuthenticatedLocked(grant.Token)
	s.view.Warnings = append([]domainauth.Kind(nil), grant.Warnings...)
	s.publishLocked()
	return s.view.clone(), nil
}

// failLocked records a failed operation. Outages move to error; anything else re-derives the
// view from the store so a rejected attempt does not discard an existing session.
func (s *Service) failLocked(ctx context.Context, ae *domainauth.Error) {
	if isOutage(ae.Kind) {
		s.view = View{Status: domainauth.StatusError, Generation: s.gen, LastSyncedAt: s.view.LastSyncedAt, Err: ae}
	} else {
		s.deriveLocked(ctx)
		s.view.Err = ae
	}
	s.publishLocked()
}

func (s *Service) resetLocked(ctx context.Context, ae *domainauth.Error) {
	if err := s.store.Clear(ctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear session store", "error", err)
	}
	s.tokenID = ""
	s.applied = appliedCallback{}
	s.view = View{Status: domainauth.StatusAnonymous, Generation: s.gen, LastSyncedAt: s.view.LastSyncedAt, Err: ae}
	s.publishLocked()
}

func (s *Service) deriveLocked(ctx context.Context) {
	last := s.view.LastSyncedAt
	tok, err := LoadValid(ctx, s.store, s.now())
	switch {
	case err == nil:
		s.setAuthenticatedLocked(tok)
		return
	case domainauth.KindOf(err) == domainauth.KindSessionExpired:
		s.tokenID = tok.ID
		s.view = View{Status: domainauth.StatusExpired, Generation: s.gen, LastSyncedAt: last}
	case errors.Is(err, domainauth.ErrNoSession):
		s.tokenID = ""
		s.view = View{Status: domainauth.StatusAnonymous, Generation: s.gen, LastSyncedAt: last}
	default:
		s.logger.WarnContext(ctx, "discarding unusable stored session", "error", err)
		if cerr := s.store.Clear(ctx); cerr != nil {
			s.logger.ErrorContext(ctx, "failed to clear session store", "error", cerr)
		}
		s.tokenID = ""
		s.view = View{Status: domainauth.StatusAnonymous, Generation: s.gen, LastSyncedAt: last}
	}
}

func (s *Service) setAuthenticatedLocked(tok domainauth.SessionToken) {
	sum := tok.Summary()
	s.tokenID = tok.ID
	s.view = View{
		Status:       domainauth.StatusAuthenticated,
		User:         &sum,
		LastSyncedAt: s.now(),
		Generation:   s.gen,
	}
}

func (s *Service) publishLocked() {
	v := s.view.clone()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func isOutage(kind domainauth.Kind) bool {
	return kind == domainauth.KindProviderUnavailable || kind == domainauth.KindInternal
}

func errSuperseded() *domainauth.Error {
	return domainauth.NewError(domainauth.KindSuperseded, "operation superseded by a newer one")
}
