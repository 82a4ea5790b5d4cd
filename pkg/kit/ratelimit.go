package kit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdleTTL = 10 * time.Minute

// KeyedLimiter keeps one token bucket per key and forgets keys that have
// been idle for longer than idleTTL.
type KeyedLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	byKey   map[string]*bucket
	sweepAt time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter returns nil when rps or burst is not positive; a nil
// limiter allows everything.
func NewKeyedLimiter(rps float64, burst int) *KeyedLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &KeyedLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: defaultIdleTTL,
		byKey:   make(map[string]*bucket),
	}
}

func (l *KeyedLimiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	b, ok := l.byKey[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *KeyedLimiter) sweep(now time.Time) {
	if now.Before(l.sweepAt) {
		return
	}
	for k, b := range l.byKey {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.byKey, k)
		}
	}
	l.sweepAt = now.Add(l.idleTTL)
}

// Middleware limits requests per key; key falls back to the client IP when it
// returns "".
func (l *KeyedLimiter) Middleware(key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := ""
			if key != nil {
				k = key(r)
			}
			if k == "" {
				k = clientIP(r)
			}

			if !l.Allow(k, time.Now()) {
				WriteError(w, r, http.StatusTooManyRequests, "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if ip := firstForwardedFor(r.Header.Get("X-Forwarded-For")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}

	return r.RemoteAddr
}

func firstForwardedFor(xff string) string {
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}
