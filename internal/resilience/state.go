package resilience

import (
	"slices"
	"sort"
	"time"
)

const (
	// StateVersion is the current state schema version.
	// Version 2 keys breaker and limiter state by upstream host.
	StateVersion = 2
)

// State is the resilience state shared by every dashcache process on the machine,
// so a `serve` process and ad-hoc `fetch` invocations back off from the same
// failing upstream together.
type State struct {
	Version int `json:"version"`

	// Hosts holds breaker and limiter state per upstream host (host:port).
	Hosts map[string]*HostState `json:"hosts"`

	// Bulkhead tracks processes currently warming the cache.
	Bulkhead BulkheadState `json:"bulkhead"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HostState is the gate state for one upstream host.
type HostState struct {
	CircuitBreaker CircuitBreakerState `json:"circuit_breaker"`
	RateLimiter    RateLimiterState    `json:"rate_limiter"`
}

// Host returns the state for host, creating it if needed.
func (s *State) Host(host string) *HostState {
	if s.Hosts == nil {
		s.Hosts = make(map[string]*HostState)
	}
	hs, ok := s.Hosts[host]
	if !ok {
		hs = &HostState{CircuitBreaker: CircuitBreakerState{State: CircuitClosed}}
		s.Hosts[host] = hs
	}
	return hs
}

// Peek returns the state for host without creating it.
func (s *State) Peek(host string) (HostState, bool) {
	if hs, ok := s.Hosts[host]; ok && hs != nil {
		return *hs, true
	}
	return HostState{}, false
}

// HostNames returns the known hosts, sorted.
func (s *State) HostNames() []string {
	names := make([]string, 0, len(s.Hosts))
	for name := range s.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CircuitBreakerState tracks one host's circuit.
//   - closed: requests flow
//   - open: requests fail fast until OpenTimeout passes
//   - half_open: a limited number of probe requests decide whether to close
type CircuitBreakerState struct {
	State     string `json:"state"`
	Failures  int    `json:"failures"`
	Successes int    `json:"successes"`

	// HalfOpenAttempts counts probes in flight across processes.
	HalfOpenAttempts int `json:"half_open_attempts,omitempty"`

	// HalfOpenLastAttemptAt detects probes orphaned by a crashed process.
	HalfOpenLastAttemptAt time.Time `json:"half_open_last_attempt_at"`

	LastFailureAt time.Time `json:"last_failure_at"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Circuit breaker state constants.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half_open"
)

// IsClosed returns true if the circuit is in closed (normal) state.
func (c *CircuitBreakerState) IsClosed() bool {
	return c.State == "" || c.State == CircuitClosed
}

// IsOpen returns true if the circuit is open (failing fast).
func (c *CircuitBreakerState) IsOpen() bool {
	return c.State == CircuitOpen
}

// IsHalfOpen returns true if the circuit is probing.
func (c *CircuitBreakerState) IsHalfOpen() bool {
	return c.State == CircuitHalfOpen
}

// RateLimiterState is a token bucket plus an optional Retry-After block.
type RateLimiterState struct {
	Tokens       float64   `json:"tokens"`
	LastRefillAt time.Time `json:"last_refill_at"`

	// RetryAfterUntil is set from a 429 Retry-After header.
	RetryAfterUntil time.Time `json:"retry_after_until"`
}

// BlockedFor returns how long the Retry-After block still lasts at now.
func (r *RateLimiterState) BlockedFor(now time.Time) time.Duration {
	if r.RetryAfterUntil.IsZero() || !now.Before(r.RetryAfterUntil) {
		return 0
	}
	return r.RetryAfterUntil.Sub(now)
}

// BulkheadState tracks the PIDs holding warmer slots.
// Dead PIDs are pruned by bulkhead operations, not on load.
type BulkheadState struct {
	ActivePIDs []int `json:"active_pids"`
}

// Count returns the number of active permits.
func (b *BulkheadState) Count() int {
	return len(b.ActivePIDs)
}

// HasPID returns true if the given PID holds a permit.
func (b *BulkheadState) HasPID(pid int) bool {
	return slices.Contains(b.ActivePIDs, pid)
}

// AddPID adds a PID to the active list if not already present.
func (b *BulkheadState) AddPID(pid int) {
	if !b.HasPID(pid) {
		b.ActivePIDs = append(b.ActivePIDs, pid)
	}
}

// RemovePID removes a PID from the active list.
func (b *BulkheadState) RemovePID(pid int) {
	b.ActivePIDs = slices.DeleteFunc(b.ActivePIDs, func(p int) bool { return p == pid })
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		Version:   StateVersion,
		Hosts:     make(map[string]*HostState),
		Bulkhead:  BulkheadState{ActivePIDs: []int{}},
		UpdatedAt: time.Now(),
	}
}
