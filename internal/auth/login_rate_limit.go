package auth

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LoginRateLimiter is a per-IP pre-filter in front of the login route. It is
// deliberately in-memory and per-instance: the persistent per-username ledger
// behind it is the real lockout, this just sheds traffic before it.
type LoginRateLimiter struct {
	mu      sync.Mutex
	maxHits int
	window  time.Duration
	hits    map[string][]time.Time
	maxKeys int
	now     func() time.Time
}

func NewLoginRateLimiter(maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		maxHits: maxHits,
		window:  window,
		hits:    make(map[string][]time.Time),
		maxKeys: 5000,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(clientIP(r))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *LoginRateLimiter) allow(ip string) (bool, time.Duration) {
	now := l.now()
	threshold := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.hits[ip][:0:len(l.hits[ip])]
	for _, hit := range l.hits[ip] {
		if hit.After(threshold) {
			recent = append(recent, hit)
		}
	}

	if len(recent) >= l.maxHits {
		l.hits[ip] = recent
		return false, recent[0].Add(l.window).Sub(now)
	}

	l.hits[ip] = append(recent, now)

	// Bound memory by discarding idle buckets once the map grows large.
	if len(l.hits) > l.maxKeys {
		for key, value := range l.hits {
			if len(value) == 0 || value[len(value)-1].Before(threshold) {
				delete(l.hits, key)
			}
		}
	}

	return true, 0
}

func clientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		if ip := strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0]); ip != "" {
			return ip
		}
	}

	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
