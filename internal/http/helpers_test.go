package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/target/enquiry-gateway/internal/domain/access"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	fakes "github.com/target/enquiry-gateway/internal/mocks/auth"
	"github.com/target/enquiry-gateway/internal/observability/metrics"
	"github.com/target/enquiry-gateway/internal/ports"
	"github.com/target/enquiry-gateway/internal/service"
)

var httpNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return httpNow }

type routerFixture struct {
	handler     http.Handler
	svc         *service.AuthService
	provider    *fakes.FakeProvider
	profiles    *fakes.MemoryProfileStore
	codec       *fakes.FakeCodec
	revocations *fakes.MemoryRevocationStore
	metrics     *metrics.Metrics
}

func newRouterFixture(t *testing.T, mutate ...func(*RouterServices)) *routerFixture {
	t.Helper()
	f := &routerFixture{
		provider:    fakes.NewFakeProvider(),
		profiles:    fakes.NewMemoryProfileStore(),
		codec:       fakes.NewFakeCodec(clock),
		revocations: fakes.NewMemoryRevocationStore(),
		metrics:     metrics.New(),
	}
	f.svc = service.NewAuthService(service.AuthServiceOptions{
		Credentials: f.provider,
		OAuth:       map[string]ports.OAuthProvider{"mock": f.provider},
		Profiles:    f.profiles,
		Codec:       f.codec,
		Revocations: f.revocations,
		SessionTTL:  time.Hour,
		Now:         clock,
		Logger:      discardLogger(),
	})
	rs := RouterServices{
		Auth:        f.svc,
		Gateway:     access.NewGateway(access.GatewayOptions{Parser: f.codec, Now: clock}),
		Revocations: f.revocations,
		Cookies:     CookieConfig{Now: clock},
		RateLimit:   RateLimitConfig{PerMinute: 60, Burst: 20},
		Metrics:     f.metrics,
		Logger:      discardLogger(),
	}
	for _, m := range mutate {
		m(&rs)
	}
	f.handler = NewRouter(rs)
	return f
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// session issues a token directly through the codec and returns it as a request cookie.
func (f *routerFixture) session(t *testing.T, role domainauth.Role) (*http.Cookie, domainauth.SessionToken) {
	t.Helper()
	tok, err := f.codec.Issue(domainauth.Identity{SubjectID: "s-" + string(role), Email: string(role) + "@example.com", Role: role}, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: domainauth.SessionCookieName, Value: tok.Raw}, tok
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

func browserRequest(target string, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func scrapeMetrics(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}
