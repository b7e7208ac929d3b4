// Package observability provides session counters, a fetch latency log and
// trace output for upstream requests and cache decisions.
package observability

import (
	"sync"
	"time"

	"github.com/littleredflower/dashcache/internal/api"
	"github.com/littleredflower/dashcache/internal/datacache"
)

// RequestMetrics holds timing and status information for a single upstream attempt.
type RequestMetrics struct {
	Method     string
	URL        string
	Host       string
	Attempt    int
	StatusCode int
	Duration   time.Duration
	Retryable  bool
	Error      error
}

// RetryMetrics records a retry event.
type RetryMetrics struct {
	Method  string
	URL     string
	Attempt int
	Error   error
}

// SessionMetrics aggregates metrics since the collector started or was reset.
type SessionMetrics struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	TotalRequests  int           `json:"total_requests"`
	FailedRequests int           `json:"failed_requests"`
	TotalRetries   int           `json:"total_retries"`
	TotalLatency   time.Duration `json:"total_latency"`

	CacheHits            int `json:"cache_hits"`
	StaleHits            int `json:"stale_hits"`
	CacheMisses          int `json:"cache_misses"`
	Evictions            int `json:"evictions"`
	Revalidations        int `json:"revalidations"`
	RevalidationFailures int `json:"revalidation_failures"`
}

// HitRate is the share of cache lookups answered without waiting on
// upstream. Stale hits count as hits.
func (m SessionMetrics) HitRate() float64 {
	lookups := m.CacheHits + m.StaleHits + m.CacheMisses
	if lookups == 0 {
		return 0
	}
	return float64(m.CacheHits+m.StaleHits) / float64(lookups)
}

// SessionCollector accumulates metrics across a session.
// It is safe for concurrent use and uses counters instead of unbounded slices.
type SessionCollector struct {
	mu sync.Mutex

	startTime      time.Time
	totalRequests  int
	failedRequests int
	totalRetries   int
	totalLatency   time.Duration

	cacheHits            int
	staleHits            int
	cacheMisses          int
	evictions            int
	revalidations        int
	revalidationFailures int
}

// NewSessionCollector creates a new SessionCollector.
func NewSessionCollector() *SessionCollector {
	return &SessionCollector{
		startTime: time.Now(),
	}
}

// RecordRequest records metrics for an upstream attempt.
func (c *SessionCollector) RecordRequest(m RequestMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.totalLatency += m.Duration
	if m.Error != nil {
		c.failedRequests++
	}
}

// RecordRequestFromClient records metrics from api client hook types.
func (c *SessionCollector) RecordRequestFromClient(info api.RequestInfo, result api.RequestResult) {
	c.RecordRequest(RequestMetrics{
		Method:     info.Method,
		URL:        info.URL,
		Host:       info.Host,
		Attempt:    info.Attempt,
		StatusCode: result.StatusCode,
		Duration:   result.Duration,
		Retryable:  result.Retryable,
		Error:      result.Error,
	})
}

// RecordRetry records a retry event.
func (c *SessionCollector) RecordRetry(_ RetryMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

// RecordCacheEvent counts a cache decision or load outcome.
func (c *SessionCollector) RecordCacheEvent(e datacache.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Kind {
	case datacache.EventHit:
		c.cacheHits++
	case datacache.EventStaleHit:
		c.staleHits++
	case datacache.EventMiss:
		c.cacheMisses++
	case datacache.EventEvict:
		c.evictions++
	case datacache.EventRevalidate:
		c.revalidations++
	case datacache.EventFetchFailed:
		if e.Background {
			c.revalidationFailures++
		}
	default:
		// fetch completions and clears are tracked by FetchLog and Stats
	}
}

// Summary returns aggregated metrics for the session.
func (c *SessionCollector) Summary() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return SessionMetrics{
		StartTime:            c.startTime,
		EndTime:              time.Now(),
		TotalRequests:        c.totalRequests,
		FailedRequests:       c.failedRequests,
		TotalRetries:         c.totalRetries,
		TotalLatency:         c.totalLatency,
		CacheHits:            c.cacheHits,
		StaleHits:            c.staleHits,
		CacheMisses:          c.cacheMisses,
		Evictions:            c.evictions,
		Revalidations:        c.revalidations,
		RevalidationFailures: c.revalidationFailures,
	}
}

// Reset clears all collected metrics and resets the start time.
func (c *SessionCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.totalRequests = 0
	c.failedRequests = 0
	c.totalRetries = 0
	c.totalLatency = 0
	c.cacheHits = 0
	c.staleHits = 0
	c.cacheMisses = 0
	c.evictions = 0
	c.revalidations = 0
	c.revalidationFailures = 0
}
