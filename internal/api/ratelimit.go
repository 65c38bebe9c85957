package api

import (
	"net/http"
	"os"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter applies a per-tenant token bucket to solve submissions.
// Solves are the only expensive endpoint; reads stay unthrottled.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewRateLimiterFromEnv() *RateLimiter {
	rps := 2.0
	burst := 5
	if v := os.Getenv("SOLVE_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}
	if v := os.Getenv("SOLVE_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	return &RateLimiter{limiters: map[string]*rate.Limiter{}, rps: rate.Limit(rps), burst: burst}
}

func (rl *RateLimiter) limiter(tenant string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[tenant]
	if !ok {
		l = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[tenant] = l
	}
	return l
}

// Allow reports whether the tenant may submit another solve now.
func (rl *RateLimiter) Allow(tenant string) bool {
	return rl.limiter(tenant).Allow()
}

// Wrap guards a handler with the per-tenant limit.
func (rl *RateLimiter) Wrap(s *Server, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := s.getPrincipal(r)
		if !rl.Allow(p.Tenant) {
			writeProblem(w, http.StatusTooManyRequests, "Rate Limited", "solve rate limit exceeded for tenant", r.URL.Path)
			return
		}
		next(w, r)
	}
}
