package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL   = 10 * time.Minute
	limiterSweepEach = 5 * time.Minute
)

// RateLimiter hands out one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second with the given burst per IP.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether a request from ip fits within the limit.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	now := rl.now()
	cl, ok := rl.limiters[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[ip] = cl
	}
	cl.lastSeen = now
	rl.mu.Unlock()
	return cl.limiter.AllowN(now, 1)
}

// Sweep evicts clients idle for longer than the idle TTL and returns how
// many were removed.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-limiterIdleTTL)
	removed := 0
	for ip, cl := range rl.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(limiterSweepEach)
	defer ticker.Stop()
	for range ticker.C {
		rl.Sweep()
	}
}

// RateLimit returns an HTTP middleware that rejects requests exceeding the
// configured rate with 429 Too Many Requests.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(rps, burst)
	go limiter.sweepLoop()
	return limiter.Middleware
}

// Middleware applies the limiter to next.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers X-Real-Ip set by chi's RealIP middleware.
func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
