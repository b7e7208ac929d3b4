package resilience

import (
	"time"
)

// CircuitBreaker trips per upstream host after consecutive failures.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	store  *Store
	now    func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given config.
func NewCircuitBreaker(store *Store, config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config: config.withDefaults(),
		store:  store,
		now:    time.Now,
	}
}

// Allow reports whether a request to host may proceed. While half-open it
// reserves one of the probe slots; the caller must follow up with
// RecordSuccess, RecordFailure or Release.
//
// Closed circuits are checked with a read only. State errors fail open.
func (cb *CircuitBreaker) Allow(host string) (bool, error) {
	state, err := cb.store.Load()
	if err != nil {
		return true, nil //nolint:nilerr // fail open when state is unreadable
	}
	hs, ok := state.Peek(host)
	if !ok || hs.CircuitBreaker.IsClosed() {
		return true, nil
	}

	now := cb.now()
	if hs.CircuitBreaker.IsOpen() && now.Sub(hs.CircuitBreaker.OpenedAt) < cb.config.OpenTimeout {
		return false, nil
	}

	var allowed bool
	err = cb.store.Update(func(s *State) error {
		c := &s.Host(host).CircuitBreaker
		switch {
		case c.IsClosed():
			allowed = true
			return nil
		case c.IsOpen():
			if now.Sub(c.OpenedAt) < cb.config.OpenTimeout {
				return nil
			}
			c.State = CircuitHalfOpen
			c.Successes = 0
			c.Failures = 0
			c.HalfOpenAttempts = 0
		}

		// Probes orphaned by a crashed process free up after OpenTimeout.
		if c.HalfOpenAttempts >= cb.config.HalfOpenMaxRequests &&
			!c.HalfOpenLastAttemptAt.IsZero() &&
			now.Sub(c.HalfOpenLastAttemptAt) >= cb.config.OpenTimeout {
			c.HalfOpenAttempts = 0
		}
		if c.HalfOpenAttempts >= cb.config.HalfOpenMaxRequests {
			return nil
		}
		c.HalfOpenAttempts++
		c.HalfOpenLastAttemptAt = now
		s.UpdatedAt = now
		allowed = true
		return nil
	})
	if err != nil {
		return true, nil //nolint:nilerr // fail open when state is unwritable
	}
	return allowed, nil
}

// RecordSuccess records a healthy response from host.
func (cb *CircuitBreaker) RecordSuccess(host string) error {
	return cb.store.Update(func(s *State) error {
		c := &s.Host(host).CircuitBreaker
		switch {
		case c.IsHalfOpen():
			if c.HalfOpenAttempts > 0 {
				c.HalfOpenAttempts--
			}
			c.Successes++
			if c.Successes >= cb.config.SuccessThreshold {
				*c = CircuitBreakerState{State: CircuitClosed, LastFailureAt: c.LastFailureAt}
			}
		case c.IsClosed():
			c.Failures = 0
		}
		s.UpdatedAt = cb.now()
		return nil
	})
}

// RecordFailure records a 5xx, network error or timeout from host.
func (cb *CircuitBreaker) RecordFailure(host string) error {
	return cb.store.Update(func(s *State) error {
		c := &s.Host(host).CircuitBreaker
		now := cb.now()
		c.LastFailureAt = now

		switch {
		case c.IsClosed():
			c.Failures++
			if c.Failures >= cb.config.FailureThreshold {
				c.State = CircuitOpen
				c.OpenedAt = now
			}
		case c.IsHalfOpen():
			c.State = CircuitOpen
			c.OpenedAt = now
			c.Successes = 0
			c.HalfOpenAttempts = 0
			c.HalfOpenLastAttemptAt = time.Time{}
		}
		s.UpdatedAt = now
		return nil
	})
}

// Release frees a half-open probe slot without judging the outcome, for
// requests abandoned by their caller.
func (cb *CircuitBreaker) Release(host string) error {
	return cb.store.Update(func(s *State) error {
		c := &s.Host(host).CircuitBreaker
		if c.IsHalfOpen() && c.HalfOpenAttempts > 0 {
			c.HalfOpenAttempts--
		}
		return nil
	})
}

// State returns the circuit state for host, reporting half_open once an
// open circuit's timeout has passed.
func (cb *CircuitBreaker) State(host string) (string, error) {
	state, err := cb.store.Load()
	if err != nil {
		return CircuitClosed, err
	}
	hs, ok := state.Peek(host)
	if !ok || hs.CircuitBreaker.IsClosed() {
		return CircuitClosed, nil
	}
	if hs.CircuitBreaker.IsOpen() && cb.now().Sub(hs.CircuitBreaker.OpenedAt) >= cb.config.OpenTimeout {
		return CircuitHalfOpen, nil
	}
	return hs.CircuitBreaker.State, nil
}

// Reset closes the circuit for host, or for every host when host is empty.
func (cb *CircuitBreaker) Reset(host string) error {
	return cb.store.Update(func(s *State) error {
		for name, hs := range s.Hosts {
			if host == "" || name == host {
				hs.CircuitBreaker = CircuitBreakerState{State: CircuitClosed}
			}
		}
		s.UpdatedAt = cb.now()
		return nil
	})
}
