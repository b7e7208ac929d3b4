package resilience

import (
	"context"
	"time"
)

// RateLimiter is a per-host token bucket shared across processes.
type RateLimiter struct {
	config RateLimiterConfig
	store  *Store
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter with the given config.
func NewRateLimiter(store *Store, config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		config: config.withDefaults(),
		store:  store,
		now:    time.Now,
	}
}

// refill tops up the bucket for the time elapsed since the last refill.
// A bucket never refilled before starts full.
func (rl *RateLimiter) refill(r *RateLimiterState, now time.Time) {
	if r.LastRefillAt.IsZero() {
		r.Tokens = rl.config.MaxTokens
		r.LastRefillAt = now
		return
	}
	elapsed := now.Sub(r.LastRefillAt)
	if elapsed <= 0 {
		return
	}
	r.LastRefillAt = now
	r.Tokens = min(r.Tokens+elapsed.Seconds()*rl.config.RefillRate, rl.config.MaxTokens)
}

// reserve takes a token for host if one is available. Otherwise it returns
// how long the caller should wait before trying again.
func (rl *RateLimiter) reserve(host string) (time.Duration, error) {
	var wait time.Duration
	err := rl.store.Update(func(s *State) error {
		r := &s.Host(host).RateLimiter
		now := rl.now()

		if d := r.BlockedFor(now); d > 0 {
			wait = d
			return nil
		}

		rl.refill(r, now)
		if r.Tokens >= 1 {
			r.Tokens--
			s.UpdatedAt = now
			return nil
		}
		wait = time.Duration((1 - r.Tokens) / rl.config.RefillRate * float64(time.Second))
		return nil
	})
	return wait, err
}

// Allow takes a token for host without waiting. State errors fail open.
func (rl *RateLimiter) Allow(host string) (bool, error) {
	wait, err := rl.reserve(host)
	if err != nil {
		return true, nil //nolint:nilerr // fail open when state is unwritable
	}
	return wait == 0, nil
}

// Wait blocks until a token for host is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	for {
		wait, err := rl.reserve(host)
		if err != nil || wait == 0 {
			return nil //nolint:nilerr // fail open when state is unwritable
		}

		// Poll rather than sleep the whole wait: another process may
		// clear a Retry-After block or we may get cancelled.
		t := time.NewTimer(min(wait, rl.config.PollInterval))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// SetRetryAfter blocks host until the given time. An earlier time never
// shortens an existing block.
func (rl *RateLimiter) SetRetryAfter(host string, until time.Time) error {
	return rl.store.Update(func(s *State) error {
		r := &s.Host(host).RateLimiter
		if until.After(r.RetryAfterUntil) {
			r.RetryAfterUntil = until
			s.UpdatedAt = rl.now()
		}
		return nil
	})
}

// Tokens returns the tokens available for host now.
func (rl *RateLimiter) Tokens(host string) (float64, error) {
	state, err := rl.store.Load()
	if err != nil {
		return 0, err
	}
	hs, _ := state.Peek(host)
	r := hs.RateLimiter
	rl.refill(&r, rl.now())
	return r.Tokens, nil
}

// RetryAfterRemaining returns how long host is still blocked by a 429.
func (rl *RateLimiter) RetryAfterRemaining(host string) (time.Duration, error) {
	state, err := rl.store.Load()
	if err != nil {
		return 0, err
	}
	hs, _ := state.Peek(host)
	return hs.RateLimiter.BlockedFor(rl.now()), nil
}

// Reset refills the bucket and lifts any block for host, or for every
// host when host is empty.
func (rl *RateLimiter) Reset(host string) error {
	return rl.store.Update(func(s *State) error {
		for name, hs := range s.Hosts {
			if host == "" || name == host {
				hs.RateLimiter = RateLimiterState{}
			}
		}
		s.UpdatedAt = rl.now()
		return nil
	})
}
