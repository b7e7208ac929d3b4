package observability

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/littleredflower/dashcache/internal/api"
	"github.com/littleredflower/dashcache/internal/datacache"
)

func TestSessionCollector_RecordRequest(t *testing.T) {
	c := NewSessionCollector()

	c.RecordRequest(RequestMetrics{
		Method:     "GET",
		URL:        "/api/dashboard",
		StatusCode: 200,
		Duration:   50 * time.Millisecond,
	})
	c.RecordRequest(RequestMetrics{
		Method:     "GET",
		URL:        "/api/risk",
		StatusCode: 503,
		Duration:   10 * time.Millisecond,
		Error:      errors.New("HTTP 503"),
	})

	summary := c.Summary()
	if summary.TotalRequests != 2 {
		t.Errorf("expected 2 total requests, got %d", summary.TotalRequests)
	}
	if summary.FailedRequests != 1 {
		t.Errorf("expected 1 failed request, got %d", summary.FailedRequests)
	}
	if summary.TotalLatency != 60*time.Millisecond {
		t.Errorf("expected 60ms total latency, got %v", summary.TotalLatency)
	}
}

func TestSessionCollector_RecordRequestFromClient(t *testing.T) {
	c := NewSessionCollector()

	info := api.RequestInfo{Method: "GET", URL: "http://up/api/sentiment", Host: "up", Attempt: 1}
	result := api.RequestResult{StatusCode: 200, Duration: 45 * time.Millisecond}
	c.RecordRequestFromClient(info, result)

	summary := c.Summary()
	if summary.TotalRequests != 1 {
		t.Fatalf("expected 1 request, got %d", summary.TotalRequests)
	}
	if summary.TotalLatency != 45*time.Millisecond {
		t.Errorf("expected 45ms, got %v", summary.TotalLatency)
	}
}

func TestSessionCollector_RecordRetry(t *testing.T) {
	c := NewSessionCollector()

	c.RecordRetry(RetryMetrics{Method: "GET", URL: "/api/dashboard", Attempt: 1})
	c.RecordRetry(RetryMetrics{Method: "GET", URL: "/api/dashboard", Attempt: 2})

	if got := c.Summary().TotalRetries; got != 2 {
		t.Errorf("expected 2 retries, got %d", got)
	}
}

func TestSessionCollector_RecordCacheEvent(t *testing.T) {
	c := NewSessionCollector()

	for _, e := range []datacache.Event{
		{Kind: datacache.EventMiss},
		{Kind: datacache.EventFetchDone},
		{Kind: datacache.EventHit},
		{Kind: datacache.EventHit},
		{Kind: datacache.EventStaleHit},
		{Kind: datacache.EventRevalidate, Background: true},
		{Kind: datacache.EventFetchFailed, Background: true},
		{Kind: datacache.EventFetchFailed},
		{Kind: datacache.EventEvict},
		{Kind: datacache.EventCleared, Count: 3},
	} {
		c.RecordCacheEvent(e)
	}

	s := c.Summary()
	if s.CacheHits != 2 || s.StaleHits != 1 || s.CacheMisses != 1 {
		t.Errorf("unexpected lookup counts: hits=%d stale=%d misses=%d", s.CacheHits, s.StaleHits, s.CacheMisses)
	}
	if s.Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", s.Evictions)
	}
	if s.Revalidations != 1 || s.RevalidationFailures != 1 {
		t.Errorf("expected 1 revalidation and 1 failure, got %d and %d", s.Revalidations, s.RevalidationFailures)
	}
	if got := s.HitRate(); got != 0.75 {
		t.Errorf("expected hit rate 0.75, got %v", got)
	}
}

func TestSessionMetrics_HitRateEmpty(t *testing.T) {
	if got := (SessionMetrics{}).HitRate(); got != 0 {
		t.Errorf("expected 0 for no lookups, got %v", got)
	}
}

func TestSessionCollector_Reset(t *testing.T) {
	c := NewSessionCollector()
	before := c.Summary().StartTime

	c.RecordRequest(RequestMetrics{Duration: time.Millisecond})
	c.RecordCacheEvent(datacache.Event{Kind: datacache.EventHit})
	time.Sleep(time.Millisecond)
	c.Reset()

	s := c.Summary()
	if s.TotalRequests != 0 || s.CacheHits != 0 || s.TotalLatency != 0 {
		t.Errorf("expected zeroed counters after reset, got %+v", s)
	}
	if !s.StartTime.After(before) {
		t.Error("expected start time to move forward on reset")
	}
}

func TestSessionCollector_Concurrent(t *testing.T) {
	c := NewSessionCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.RecordRequest(RequestMetrics{Duration: time.Millisecond})
		}()
		go func() {
			defer wg.Done()
			c.RecordCacheEvent(datacache.Event{Kind: datacache.EventMiss})
		}()
	}
	wg.Wait()

	s := c.Summary()
	if s.TotalRequests != 50 || s.CacheMisses != 50 {
		t.Errorf("expected 50 requests and 50 misses, got %d and %d", s.TotalRequests, s.CacheMisses)
	}
}
