package mcp

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ipRateLimiter is a per-client token bucket. Loopback clients are exempt:
// the limiter exists to slow remote abuse, not local tooling.
type ipRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	rps     float64
	burst   int
}

type tokenBucket struct {
	tokens   float64
	lastSeen time.Time
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		buckets: make(map[string]*tokenBucket),
		rps:     rps,
		burst:   burst,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	if l == nil || l.rps <= 0 || l.burst <= 0 {
		return true
	}
	clientIP := normalizeClientIP(ip)
	if clientIP == "" || isLoopbackClientIP(clientIP) {
		return true
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[clientIP]
	if !ok {
		l.buckets[clientIP] = &tokenBucket{tokens: float64(l.burst - 1), lastSeen: now}
		return true
	}

	elapsed := now.Sub(bucket.lastSeen).Seconds()
	if elapsed > 0 {
		bucket.tokens += elapsed * l.rps
		if bucket.tokens > float64(l.burst) {
			bucket.tokens = float64(l.burst)
		}
	}
	bucket.lastSeen = now

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true
	}
	return false
}

// cleanup drops buckets idle longer than maxAge so the map cannot grow
// without bound under churning client IPs.
func (l *ipRateLimiter) cleanup(maxAge time.Duration) {
	if l == nil || maxAge <= 0 {
		return
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, bucket := range l.buckets {
		if bucket == nil || now.Sub(bucket.lastSeen) > maxAge {
			delete(l.buckets, ip)
		}
	}
}

// realIP resolves the client address, trusting the first X-Forwarded-For
// entry when a proxy supplies one.
func realIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func normalizeClientIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ip = strings.Trim(ip, "[]")
	if zone := strings.Index(ip, "%"); zone >= 0 {
		ip = ip[:zone]
	}
	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed.String()
	}
	return strings.ToLower(ip)
}

func isLoopbackClientIP(ip string) bool {
	if strings.EqualFold(ip, "localhost") {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

// originAllowed enforces the browser-origin allowlist. Requests without an
// Origin header (CLI clients, curl) always pass; localhost origins always
// pass; anything else must be listed explicitly.
func originAllowed(allowed []string, origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Hostname() == "" {
		return false
	}
	if isLoopbackClientIP(normalizeClientIP(parsed.Hostname())) {
		return true
	}

	for _, entry := range allowed {
		if strings.EqualFold(strings.TrimSpace(entry), origin) {
			return true
		}
	}
	return false
}
