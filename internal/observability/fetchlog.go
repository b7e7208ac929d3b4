package observability

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/littleredflower/dashcache/internal/datacache"
)

const (
	maxFetchRecords = 100
	latencyWindow   = 50
)

// FetchRecord is one completed cache load.
type FetchRecord struct {
	Timestamp  time.Time     `json:"timestamp"`
	Key        string        `json:"key"`
	Duration   time.Duration `json:"duration"`
	Background bool          `json:"background"`
	Failed     bool          `json:"failed"`
}

// KeyStats aggregates loads for one cache key.
type KeyStats struct {
	Key        string        `json:"key"`
	FetchCount int           `json:"fetch_count"`
	ErrorCount int           `json:"error_count"`
	AvgLatency time.Duration `json:"avg_latency"`
	LastFetch  time.Time     `json:"last_fetch"`
}

// FetchSummary is a point-in-time view of recent load health.
type FetchSummary struct {
	Keys       int           `json:"keys"`
	Fetches    int           `json:"fetches"`
	P50Latency time.Duration `json:"p50_latency"`
	ErrorRate  float64       `json:"error_rate"`
}

type keyTotals struct {
	fetches   int
	errors    int
	totalTime time.Duration
	last      time.Time
}

// FetchLog keeps the last 100 loads in a ring buffer plus per-key totals.
type FetchLog struct {
	mu      sync.RWMutex
	records []FetchRecord
	totals  map[string]*keyTotals
	now     func() time.Time
}

// NewFetchLog creates an empty fetch log.
func NewFetchLog() *FetchLog {
	return &FetchLog{
		totals: make(map[string]*keyTotals),
		now:    time.Now,
	}
}

// Record adds a load to the ring buffer and updates per-key totals.
func (l *FetchLog) Record(r FetchRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.Timestamp.IsZero() {
		r.Timestamp = l.now()
	}
	if len(l.records) >= maxFetchRecords {
		l.records = l.records[1:]
	}
	l.records = append(l.records, r)

	t, ok := l.totals[r.Key]
	if !ok {
		t = &keyTotals{}
		l.totals[r.Key] = t
	}
	t.fetches++
	t.totalTime += r.Duration
	t.last = r.Timestamp
	if r.Failed {
		t.errors++
	}
}

// RecordCacheEvent records load outcomes and ignores other events.
func (l *FetchLog) RecordCacheEvent(e datacache.Event) {
	switch e.Kind {
	case datacache.EventFetchDone, datacache.EventFetchFailed:
		l.Record(FetchRecord{
			Key:        e.Key,
			Duration:   e.Duration,
			Background: e.Background,
			Failed:     e.Kind == datacache.EventFetchFailed,
		})
	default:
	}
}

// Summary computes P50 latency over the most recent successful loads and
// the error rate over the same window.
func (l *FetchLog) Summary() FetchSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary := FetchSummary{Keys: len(l.totals)}

	var latencies []time.Duration
	var failed, total int
	for i := len(l.records) - 1; i >= 0 && len(latencies) < latencyWindow; i-- {
		r := l.records[i]
		total++
		if r.Failed {
			failed++
			continue
		}
		latencies = append(latencies, r.Duration)
	}
	summary.Fetches = total

	if len(latencies) > 0 {
		slices.Sort(latencies)
		summary.P50Latency = latencies[len(latencies)/2]
	}
	if total > 0 {
		summary.ErrorRate = float64(failed) / float64(total)
	}
	return summary
}

// Recent returns up to n of the newest records, newest first.
func (l *FetchLog) Recent(n int) []FetchRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n = min(n, len(l.records))
	out := make([]FetchRecord, 0, n)
	for i := len(l.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.records[i])
	}
	return out
}

// KeyStats returns per-key totals sorted by key.
func (l *FetchLog) KeyStats() []KeyStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]KeyStats, 0, len(l.totals))
	for key, t := range l.totals {
		ks := KeyStats{
			Key:        key,
			FetchCount: t.fetches,
			ErrorCount: t.errors,
			LastFetch:  t.last,
		}
		if t.fetches > 0 {
			ks.AvgLatency = t.totalTime / time.Duration(t.fetches)
		}
		out = append(out, ks)
	}
	slices.SortFunc(out, func(a, b KeyStats) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

// Reset drops every record.
func (l *FetchLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	l.totals = make(map[string]*keyTotals)
}
