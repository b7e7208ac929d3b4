package resilience

import (
	"time"
)

// Config holds configuration for all resilience primitives.
type Config struct {
	CircuitBreaker CircuitBreakerConfig
	RateLimiter    RateLimiterConfig
	Bulkhead       BulkheadConfig
}

// CircuitBreakerConfig configures the per-host circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes needed to close.
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration

	// HalfOpenMaxRequests caps concurrent probes while half-open.
	HalfOpenMaxRequests int
}

// RateLimiterConfig configures the per-host token bucket.
type RateLimiterConfig struct {
	// MaxTokens is the bucket size, i.e. the allowed burst.
	MaxTokens float64

	// RefillRate is tokens added per second.
	RefillRate float64

	// PollInterval is how often Wait re-checks an empty bucket.
	PollInterval time.Duration
}

// BulkheadConfig caps concurrent cache-warming processes.
type BulkheadConfig struct {
	MaxConcurrent int
}

// DefaultConfig returns defaults tuned for a single dashboard backend:
// a sustained two requests per second with a burst of four, matching the
// 500ms minimum spacing the upstream scrapers expect.
func DefaultConfig() *Config {
	return &Config{
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:    5,
			SuccessThreshold:    2,
			OpenTimeout:         30 * time.Second,
			HalfOpenMaxRequests: 1,
		},
		RateLimiter: RateLimiterConfig{
			MaxTokens:    4,
			RefillRate:   2,
			PollInterval: 50 * time.Millisecond,
		},
		Bulkhead: BulkheadConfig{
			MaxConcurrent: 2,
		},
	}
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	d := DefaultConfig().CircuitBreaker
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = d.HalfOpenMaxRequests
	}
	return c
}

func (c RateLimiterConfig) withDefaults() RateLimiterConfig {
	d := DefaultConfig().RateLimiter
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.RefillRate <= 0 {
		c.RefillRate = d.RefillRate
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}
