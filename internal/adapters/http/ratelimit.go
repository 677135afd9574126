package httpadapter

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// uploadLimiter throttles ingestion per user. Inference is the expensive
// part, so the gate sits on the upload route only.
type uploadLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newUploadLimiter(rps float64, burst int) *uploadLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &uploadLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *uploadLimiter) allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func rateLimitKey(r *http.Request) string {
	if user, ok := UserFromContext(r.Context()); ok && user.ID != "" {
		return user.ID
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
