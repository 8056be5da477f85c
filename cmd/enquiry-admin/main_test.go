package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/enquiry-gateway/config"
	"github.com/target/enquiry-gateway/internal/adapters/filestore"
	"github.com/target/enquiry-gateway/internal/bootstrap"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	"github.com/target/enquiry-gateway/internal/migrate"
	"github.com/target/enquiry-gateway/internal/mocks"
	fakes "github.com/target/enquiry-gateway/internal/mocks/auth"
)

// syncBuffer lets a test goroutine read output while a command is still writing it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestContext(in io.Reader) (*commandContext, *syncBuffer) {
	out := &syncBuffer{}
	if in == nil {
		in = strings.NewReader("")
	}
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Out:    out,
		In:     in,
	}, out
}

// startGateway runs a dev-mode gateway with the built-in mock accounts.
func startGateway(t *testing.T) string {
	t.Helper()
	app := &config.AppConfig{
		IsDev: true,
		Auth: config.AuthConfig{
			Mode:        config.AuthModeMock,
			SigningKey:  "0123456789abcdef0123456789abcdef",
			TokenIssuer: "enquiry-gateway",
			DevAuth: config.DevAuthConfig{
				Accounts: []string{"company@example.com:company-pass:company:Acme Ltd"},
			},
		},
	}
	app.Auth.Sanitize()
	stack, err := bootstrap.BuildAuthStack(context.Background(), bootstrap.AuthConfig{
		App:    app,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	server := bootstrap.NewHTTPServer(bootstrap.HTTPServerConfig{Config: app, Auth: stack})
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestPrintUsage_ListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	out := buf.String()
	for name := range commands() {
		assert.Contains(t, out, "  "+name+" ")
	}
	assert.Less(t, strings.Index(out, "login"), strings.Index(out, "revoke"))
}

func TestParseRevokeFlags(t *testing.T) {
	_, err := parseRevokeFlags([]string{"--reason", "x"})
	require.Error(t, err)
	_, err = parseRevokeFlags([]string{"--token", "a", "--token-file", "b", "--reason", "x"})
	require.Error(t, err)
	_, err = parseRevokeFlags([]string{"--token", "a"})
	require.Error(t, err)

	opts, err := parseRevokeFlags([]string{"--token", "a", "--reason", "  lost laptop ", "--yes"})
	require.NoError(t, err)
	assert.Equal(t, "lost laptop", opts.Reason)
	assert.True(t, opts.Yes)
}

func TestParseProfilesFlags(t *testing.T) {
	opts, err := parseProfilesFlags([]string{"--role", "Company", "--limit", "5"})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleCompany, opts.Role)
	assert.Equal(t, 5, opts.Limit)

	_, err = parseProfilesFlags([]string{"--role", "owner"})
	require.Error(t, err)
	_, err = parseProfilesFlags([]string{"--limit", "0"})
	require.Error(t, err)
	_, err = parseProfilesFlags([]string{"--offset", "-1"})
	require.Error(t, err)
}

func TestReadRawToken(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	raw, err := readRawToken(ctx, revokeOptions{Token: " abc "})
	require.NoError(t, err)
	assert.Equal(t, "abc", raw)

	plain := filepath.Join(dir, "token.txt")
	require.NoError(t, os.WriteFile(plain, []byte("header.payload.sig\n"), 0o600))
	raw, err = readRawToken(ctx, revokeOptions{TokenFile: plain})
	require.NoError(t, err)
	assert.Equal(t, "header.payload.sig", raw)

	sessionPath := filepath.Join(dir, "session.json")
	store, err := filestore.New(sessionPath)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, domainauth.SessionToken{
		ID: "j1", SubjectID: "s1", Role: domainauth.RoleCustomer,
		IssuedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour), Raw: "from.session.file",
	}))
	raw, err = readRawToken(ctx, revokeOptions{TokenFile: sessionPath})
	require.NoError(t, err)
	assert.Equal(t, "from.session.file", raw)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = readRawToken(ctx, revokeOptions{TokenFile: empty})
	require.Error(t, err)
}

type recordedRevocation struct {
	tok    domainauth.SessionToken
	reason string
}

type fakeRecorder struct {
	entries []recordedRevocation
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, tok domainauth.SessionToken, reason string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, e := range f.entries {
		if e.tok.ID == tok.ID {
			return false, nil
		}
	}
	f.entries = append(f.entries, recordedRevocation{tok: tok, reason: reason})
	return true, nil
}

func TestRevokeToken(t *testing.T) {
	tok := domainauth.SessionToken{ID: "j1", SubjectID: "s1", ExpiresAt: time.Now().Add(time.Hour)}

	t.Run("writes store and audit log", func(t *testing.T) {
		cmdCtx, out := newTestContext(nil)
		store := fakes.NewMemoryRevocationStore()
		rec := &fakeRecorder{}

		require.NoError(t, revokeToken(cmdCtx.Ctx, cmdCtx, revokeTargets{Store: store, Log: rec}, tok, "compromised"))
		revoked, err := store.IsRevoked(cmdCtx.Ctx, "j1")
		require.NoError(t, err)
		assert.True(t, revoked)
		require.Len(t, rec.entries, 1)
		assert.Equal(t, "compromised", rec.entries[0].reason)
		assert.Contains(t, out.String(), "Revoked.")

		require.NoError(t, revokeToken(cmdCtx.Ctx, cmdCtx, revokeTargets{Store: store, Log: rec}, tok, "again"))
		assert.Contains(t, out.String(), "already existed")
	})

	t.Run("requires redis", func(t *testing.T) {
		cmdCtx, _ := newTestContext(nil)
		err := revokeToken(cmdCtx.Ctx, cmdCtx, revokeTargets{Log: &fakeRecorder{}}, tok, "r")
		require.Error(t, err)
	})

	t.Run("store failure skips audit", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockRevocationStore(ctrl)
		store.EXPECT().Revoke(gomock.Any(), tok).Return(errors.New("redis down"))
		rec := &fakeRecorder{}

		cmdCtx, _ := newTestContext(nil)
		err := revokeToken(cmdCtx.Ctx, cmdCtx, revokeTargets{Store: store, Log: rec}, tok, "r")
		require.Error(t, err)
		assert.Empty(t, rec.entries)
	})

	t.Run("audit failure is reported", func(t *testing.T) {
		cmdCtx, _ := newTestContext(nil)
		err := revokeToken(cmdCtx.Ctx, cmdCtx, revokeTargets{
			Store: fakes.NewMemoryRevocationStore(),
			Log:   &fakeRecorder{err: errors.New("db down")},
		}, tok, "r")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audit entry failed")
	})

	t.Run("no database", func(t *testing.T) {
		cmdCtx, out := newTestContext(nil)
		require.NoError(t, revokeToken(cmdCtx.Ctx, cmdCtx, revokeTargets{Store: fakes.NewMemoryRevocationStore()}, tok, "r"))
		assert.Contains(t, out.String(), "No audit entry")
	})
}

func TestConfirm(t *testing.T) {
	cmdCtx, _ := newTestContext(strings.NewReader("Y\n"))
	require.NoError(t, confirm(cmdCtx, "about to act"))

	cmdCtx, _ = newTestContext(strings.NewReader("n\n"))
	require.Error(t, confirm(cmdCtx, "about to act"))

	cmdCtx, _ = newTestContext(strings.NewReader(""))
	require.Error(t, confirm(cmdCtx, "about to act"), "EOF declines")
}

func TestPrintPending(t *testing.T) {
	cmdCtx, out := newTestContext(nil)
	require.NoError(t, printPending(cmdCtx, nil))
	assert.Contains(t, out.String(), "up to date")

	cmdCtx, out = newTestContext(nil)
	require.NoError(t, printPending(cmdCtx, []migrate.Migration{{Version: "0002_session_revocations"}}))
	assert.Contains(t, out.String(), "1 pending migration(s)")
	assert.Contains(t, out.String(), "0002_session_revocations")
}

func TestCallbackFragment(t *testing.T) {
	frag, err := callbackFragment("http://localhost:8080/auth/callback?redirect=%2Fapp#access_token=a&state=s\n")
	require.NoError(t, err)
	assert.Equal(t, "access_token=a&state=s", frag)

	frag, err = callbackFragment("#id_token=x")
	require.NoError(t, err)
	assert.Equal(t, "id_token=x", frag)

	_, err = callbackFragment("http://localhost:8080/auth/callback")
	require.Error(t, err)
	_, err = callbackFragment("   ")
	require.Error(t, err)
}

func TestAbsoluteURL(t *testing.T) {
	assert.Equal(t, "http://gw:8080/auth/callback#a=b", absoluteURL("http://gw:8080", "/auth/callback#a=b"))
	assert.Equal(t, "https://idp.example/authorize?x=1", absoluteURL("http://gw:8080", "https://idp.example/authorize?x=1"))
}

func TestSessionCommands_EndToEnd(t *testing.T) {
	server := startGateway(t)
	sessionFile := filepath.Join(t.TempDir(), "session.json")
	common := []string{"--server", server, "--session-file", sessionFile}

	cmdCtx, out := newTestContext(nil)
	require.NoError(t, runWhoAmI(cmdCtx, common))
	assert.Contains(t, out.String(), "Not signed in (anonymous)")

	cmdCtx, out = newTestContext(nil)
	err := runLogin(cmdCtx, append([]string{"--email", "company@example.com", "--password", "wrong"}, common...))
	require.Error(t, err)
	assert.ErrorIs(t, err, domainauth.ErrInvalidCredentials)

	cmdCtx, out = newTestContext(nil)
	require.NoError(t, runLogin(cmdCtx, append([]string{"--email", "company@example.com", "--password", "company-pass"}, common...)))
	assert.Contains(t, out.String(), "Signed in as company@example.com (company)")
	assert.Contains(t, out.String(), "Acme Ltd")

	store, err := filestore.New(sessionFile)
	require.NoError(t, err)
	first, err := store.Load(context.Background())
	require.NoError(t, err)

	cmdCtx, out = newTestContext(nil)
	require.NoError(t, runWhoAmI(cmdCtx, append([]string{"--verify"}, common...)))
	assert.Contains(t, out.String(), "Gateway: session accepted")

	cmdCtx, _ = newTestContext(nil)
	require.NoError(t, runRefresh(cmdCtx, common))
	second, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	cmdCtx, out = newTestContext(nil)
	require.NoError(t, runLogout(cmdCtx, common))
	assert.Contains(t, out.String(), "Signed out.")
	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, domainauth.ErrNoSession)
}

func TestSignUp_RejectsAdmin(t *testing.T) {
	server := startGateway(t)
	sessionFile := filepath.Join(t.TempDir(), "session.json")

	cmdCtx, _ := newTestContext(nil)
	err := runSignUp(cmdCtx, []string{
		"--server", server, "--session-file", sessionFile,
		"--email", "boss@example.com", "--password", "long-enough-pass", "--role", "admin",
	})
	require.Error(t, err)

	cmdCtx, out := newTestContext(nil)
	require.NoError(t, runSignUp(cmdCtx, []string{
		"--server", server, "--session-file", sessionFile,
		"--email", "buyer@example.com", "--password", "long-enough-pass", "--role", "customer",
	}))
	assert.Contains(t, out.String(), "Signed in as buyer@example.com (customer)")
}

var authURLPattern = regexp.MustCompile(`(?m)^\s+(http\S+)$`)

func TestOAuthLogin_DevProvider(t *testing.T) {
	server := startGateway(t)
	sessionFile := filepath.Join(t.TempDir(), "session.json")

	pr, pw := io.Pipe()
	cmdCtx, out := newTestContext(pr)

	// The dev provider sends the browser straight back, so the printed URL is the callback.
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if m := authURLPattern.FindStringSubmatch(out.String()); m != nil && strings.Contains(out.String(), "Paste") {
				_, _ = io.WriteString(pw, m[1]+"\n")
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		_ = pw.CloseWithError(errors.New("no authorize URL printed"))
	}()

	require.NoError(t, runOAuthLogin(cmdCtx, []string{"--server", server, "--session-file", sessionFile, "--provider", "corporate"}))
	assert.Contains(t, out.String(), "Signed in as company@example.com (company)")
}
