package httpx

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-client limits on credential submissions.
type RateLimitConfig struct {
	PerMinute int // sustained attempts per client per minute; 0 disables limiting
	Burst     int
	// TrustForwardedFor keys clients by the first X-Forwarded-For entry.
	// Enable only behind a proxy that overwrites the header.
	TrustForwardedFor bool
}

const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per client key.
// A nil RateLimiter allows everything.
type RateLimiter struct {
	limit        rate.Limit
	burst        int
	trustForward bool
	now          func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

// NewRateLimiter returns nil when cfg disables limiting.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.PerMinute <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.PerMinute
	}
	return &RateLimiter{
		limit:        rate.Limit(float64(cfg.PerMinute) / 60),
		burst:        burst,
		trustForward: cfg.TrustForwardedFor,
		now:          time.Now,
		clients:      make(map[string]*clientLimiter),
	}
}

// Allow reports whether the client behind r may make another attempt now.
func (l *RateLimiter) Allow(r *http.Request) bool {
	if l == nil {
		return true
	}
	key := l.clientKey(r)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > limiterIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}
	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (l *RateLimiter) clientKey(r *http.Request) string {
	if l.trustForward {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
