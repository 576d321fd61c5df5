package http

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	authmw "github.com/mind-engage/teameval/internal/auth/middleware"
)

// SubmitLimiter throttles submissions per authenticated user.
type SubmitLimiter struct {
	mu      sync.Mutex
	perSec  rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
	buckets map[string]*bucket
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewSubmitLimiter(perSec float64, burst int) *SubmitLimiter {
	if burst < 1 {
		burst = 1
	}
	return &SubmitLimiter{
		perSec:  rate.Limit(perSec),
		burst:   burst,
		ttl:     10 * time.Minute,
		now:     time.Now,
		buckets: map[string]*bucket{},
	}
}

func (l *SubmitLimiter) allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.ttl {
			delete(l.buckets, k)
		}
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.perSec, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Middleware rejects over-limit requests with 429. A non-positive rate
// disables limiting.
func (l *SubmitLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l == nil || l.perSec <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		key := authmw.SubjectFromContext(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}
		if !l.allow(key) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many submissions", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
