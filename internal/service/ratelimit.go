package service

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/boddenberg/leadchat-go/internal/infra/cache"
)

// RateLimiter hands out one token bucket per key. Idle buckets expire with
// the cache TTL.
type RateLimiter struct {
	buckets *cache.InMemory[*rate.Limiter]
	limit   rate.Limit
	burst   int
}

// NewRateLimiter allows perMinute events per key with the given burst.
// perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute, burst int, idleTTL time.Duration) *RateLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &RateLimiter{
		buckets: cache.New[*rate.Limiter](idleTTL),
		limit:   limit,
		burst:   max(burst, 1),
	}
}

// Allow consumes one token for key.
func (r *RateLimiter) Allow(key string) bool {
	l, _ := r.buckets.GetOrCreate(key, func() *rate.Limiter {
		return rate.NewLimiter(r.limit, r.burst)
	})
	return l.Allow()
}

// Stop releases the background cleanup.
func (r *RateLimiter) Stop() {
	r.buckets.Stop()
}
