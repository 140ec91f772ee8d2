package guard

import (
	"context"
	"fmt"
	"sync"

	"github.com/gridshare/platform/internal/domain"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key, e.g. per region endpoint.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter allows rps calls per second per key with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Check reports whether a call for key may proceed now without waiting.
func (rl *RateLimiter) Check(_ context.Context, key string) domain.GuardResult {
	if rl.limiter(key).Allow() {
		return domain.GuardResult{Allowed: true}
	}
	return domain.GuardResult{
		Allowed: false,
		Reason:  fmt.Sprintf("rate limit exceeded for %s: %.2f/s burst %d", key, float64(rl.limit), rl.burst),
		Guard:   "rate_limiter",
	}
}

// Wait blocks until a call for key may proceed or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.limiter(key).Wait(ctx)
}
