package tools

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures the per-tool token bucket.
type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultRateLimiterConfig mirrors the teacher's ratelimit.DefaultConfig
// defaults (10 rps, double burst).
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{RequestsPerSecond: 10, Burst: 20}
}

// RateLimiter keys a golang.org/x/time/rate.Limiter per tool name, lazily
// creating buckets on first use. Grounded on the teacher's
// internal/ratelimit.Limiter keyed-bucket-map shape, adapted to
// golang.org/x/time/rate instead of a hand-rolled token bucket since that
// package is already part of the domain stack (SPEC_FULL.md).
type RateLimiter struct {
	mu      sync.Mutex
	config  RateLimiterConfig
	buckets map[string]*rate.Limiter
}

// NewRateLimiter constructs a limiter using config for every newly seen key.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRateLimiterConfig().RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = int(config.RequestsPerSecond * 2)
	}
	return &RateLimiter{config: config, buckets: make(map[string]*rate.Limiter)}
}

// Allow reports whether a call for tool name may proceed right now,
// consuming a token if so.
func (rl *RateLimiter) Allow(name string) bool {
	return rl.bucketFor(name).Allow()
}

func (rl *RateLimiter) bucketFor(name string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[name]
	if !ok {
		b = rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)
		rl.buckets[name] = b
	}
	return b
}
