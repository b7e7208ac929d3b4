package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/littleredflower/dashcache/internal/api"
	"github.com/littleredflower/dashcache/internal/output"
)

var _ api.Gate = (*Gate)(nil)

// DefaultRetryAfter blocks a host that answered 429 without a Retry-After.
const DefaultRetryAfter = 60 * time.Second

// Gate runs every upstream attempt through the host's rate limiter and
// circuit breaker, and feeds the outcome back to them.
type Gate struct {
	breaker *CircuitBreaker
	limiter *RateLimiter
}

// NewGate creates a Gate. Either primitive may be nil.
func NewGate(cb *CircuitBreaker, rl *RateLimiter) *Gate {
	return &Gate{breaker: cb, limiter: rl}
}

// NewGateFromConfig creates a Gate whose primitives share store.
func NewGateFromConfig(store *Store, cfg *Config) *Gate {
	return NewGate(NewCircuitBreaker(store, cfg.CircuitBreaker), NewRateLimiter(store, cfg.RateLimiter))
}

// Admit asks the breaker whether a call to host may start. It is consulted
// once per call, so retries inside an admitted call are not cut short.
func (g *Gate) Admit(host string) error {
	if g.breaker == nil {
		return nil
	}
	if allowed, _ := g.breaker.Allow(host); !allowed {
		return output.ErrCircuitOpen(host)
	}
	return nil
}

// Allow takes a rate limit token for host, waiting no longer than ctx
// allows. While a 429 block is in force it fails at once with the
// remaining wait, rather than holding the caller until the block lifts.
//
// A rejected attempt never reaches Done, so any half-open probe slot taken
// by Admit is given back here.
func (g *Gate) Allow(ctx context.Context, host string) error {
	if g.limiter == nil {
		return nil
	}
	err := g.checkBlock(host)
	if err == nil {
		err = g.limiter.Wait(ctx, host)
	}
	if err != nil && g.breaker != nil {
		_ = g.breaker.Release(host)
	}
	return err
}

func (g *Gate) checkBlock(host string) error {
	remaining, err := g.limiter.RetryAfterRemaining(host)
	if err != nil || remaining <= 0 {
		return nil //nolint:nilerr // fail open when state is unreadable
	}
	return output.ErrRateLimit(max(remaining.Round(time.Second), time.Second))
}

// Done records the attempt's outcome. Only 5xx responses, network errors
// and timeouts count against the breaker; a 4xx means the host is up.
func (g *Gate) Done(host string, err error) {
	if e := (*output.Error)(nil); errors.As(err, &e) && e.Code == output.CodeRateLimit && g.limiter != nil {
		d := e.RetryAfter
		if d <= 0 {
			d = DefaultRetryAfter
		}
		_ = g.limiter.SetRetryAfter(host, g.limiter.now().Add(d))
	}

	if g.breaker == nil {
		return
	}
	var e *output.Error
	switch {
	case err == nil:
		_ = g.breaker.RecordSuccess(host)
	case errors.As(err, &e):
		if isBreakerFailure(e) {
			_ = g.breaker.RecordFailure(host)
		} else {
			_ = g.breaker.RecordSuccess(host)
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		_ = g.breaker.Release(host)
	default:
		_ = g.breaker.RecordFailure(host)
	}
}

// Reset closes every circuit and lifts every rate limit block.
func (g *Gate) Reset() error {
	if g.breaker != nil {
		if err := g.breaker.Reset(""); err != nil {
			return err
		}
	}
	if g.limiter != nil {
		return g.limiter.Reset("")
	}
	return nil
}

func isBreakerFailure(e *output.Error) bool {
	switch e.Code {
	case output.CodeNetwork, output.CodeTimeout:
		return true
	case output.CodeAPI:
		return e.HTTPStatus >= 500
	default:
		return false
	}
}
