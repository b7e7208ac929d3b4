package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, cfg RateLimiterConfig) (*RateLimiter, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)}
	rl := NewRateLimiter(NewStore(t.TempDir()), cfg)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterStartsFull(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{})

	tokens, err := rl.Tokens(host)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens != 4 {
		t.Errorf("expected a full bucket of 4, got %v", tokens)
	}
}

func TestRateLimiterBurstThenRejects(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{MaxTokens: 3, RefillRate: 1})

	for i := 0; i < 3; i++ {
		if allowed, _ := rl.Allow(host); !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if allowed, _ := rl.Allow(host); allowed {
		t.Error("expected request beyond burst to be rejected")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl, clock := newTestLimiter(t, RateLimiterConfig{MaxTokens: 2, RefillRate: 2})

	_, _ = rl.Allow(host)
	_, _ = rl.Allow(host)
	clock.advance(500 * time.Millisecond)

	if allowed, _ := rl.Allow(host); !allowed {
		t.Error("expected one token after 500ms at 2/s")
	}
	if allowed, _ := rl.Allow(host); allowed {
		t.Error("expected bucket to be empty again")
	}
}

func TestRateLimiterHostsAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{MaxTokens: 1, RefillRate: 1})

	_, _ = rl.Allow(host)
	if allowed, _ := rl.Allow("other:80"); !allowed {
		t.Error("expected a separate bucket per host")
	}
}

func TestRateLimiterRetryAfterBlocks(t *testing.T) {
	rl, clock := newTestLimiter(t, RateLimiterConfig{})

	if err := rl.SetRetryAfter(host, clock.now().Add(10*time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// An earlier deadline must not shorten the block.
	_ = rl.SetRetryAfter(host, clock.now().Add(time.Second))

	if allowed, _ := rl.Allow(host); allowed {
		t.Error("expected request to be blocked during Retry-After")
	}
	remaining, _ := rl.RetryAfterRemaining(host)
	if remaining != 10*time.Second {
		t.Errorf("expected 10s remaining, got %v", remaining)
	}

	clock.advance(11 * time.Second)
	if allowed, _ := rl.Allow(host); !allowed {
		t.Error("expected request to be allowed after Retry-After")
	}
}

func TestRateLimiterWaitHonorsContext(t *testing.T) {
	rl, clock := newTestLimiter(t, RateLimiterConfig{PollInterval: time.Millisecond})
	_ = rl.SetRetryAfter(host, clock.now().Add(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx, host)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRateLimiterWaitReturnsWhenTokenAvailable(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{})

	if err := rl.Wait(context.Background(), host); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRateLimiterReset(t *testing.T) {
	rl, clock := newTestLimiter(t, RateLimiterConfig{MaxTokens: 1, RefillRate: 1})

	_, _ = rl.Allow(host)
	_ = rl.SetRetryAfter(host, clock.now().Add(time.Minute))
	if err := rl.Reset(host); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if allowed, _ := rl.Allow(host); !allowed {
		t.Error("expected request to be allowed after reset")
	}
}
