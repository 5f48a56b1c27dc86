package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimitConfig caps request throughput per client address. A zero value
// disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute float64
	Burst             int
}

func (c RateLimitConfig) enabled() bool {
	return c.RequestsPerMinute > 0
}

// rateLimiter tracks one token bucket per client identifier.
type rateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if !cfg.enabled() {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &rateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*rate.Limiter),
	}
}

func (l *rateLimiter) allow(r *http.Request) bool {
	if l == nil {
		return true
	}
	id := clientID(r)
	l.mu.Lock()
	limiter, ok := l.visitors[id]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.cfg.RequestsPerMinute/60), l.cfg.Burst)
		l.visitors[id] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// clientID prefers the forwarded address when a proxy fronts the server.
func clientID(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
