package observability

import (
	"context"
	"sync"

	"github.com/littleredflower/dashcache/internal/api"
	"github.com/littleredflower/dashcache/internal/datacache"
)

var (
	_ api.Hooks       = (*Hooks)(nil)
	_ datacache.Hooks = (*Hooks)(nil)
)

// Hooks feeds upstream requests and cache events into the collector and
// fetch log, and traces them at the configured verbosity:
//   - 0: Silent (collect stats only, no output)
//   - 1: Cache decisions
//   - 2: Cache decisions + HTTP requests and retries
type Hooks struct {
	mu        sync.Mutex
	level     int
	collector *SessionCollector
	fetchLog  *FetchLog
	writer    *TraceWriter
}

// NewHooks creates Hooks. Any of collector, fetchLog and writer may be nil.
func NewHooks(level int, collector *SessionCollector, fetchLog *FetchLog, writer *TraceWriter) *Hooks {
	return &Hooks{
		level:     level,
		collector: collector,
		fetchLog:  fetchLog,
		writer:    writer,
	}
}

// SetLevel changes the verbosity level at runtime.
func (h *Hooks) SetLevel(level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// Level returns the current verbosity level.
func (h *Hooks) Level() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

func (h *Hooks) snapshot() (int, *SessionCollector, *FetchLog, *TraceWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level, h.collector, h.fetchLog, h.writer
}

// OnCacheEvent is called for every cache decision and load outcome.
func (h *Hooks) OnCacheEvent(e datacache.Event) {
	level, collector, fetchLog, writer := h.snapshot()

	if collector != nil {
		collector.RecordCacheEvent(e)
	}
	if fetchLog != nil {
		fetchLog.RecordCacheEvent(e)
	}
	if level >= 1 && writer != nil {
		writer.WriteCacheEvent(e)
	}
}

// OnRequestStart is called before an upstream attempt is sent.
func (h *Hooks) OnRequestStart(ctx context.Context, info api.RequestInfo) context.Context {
	level, _, _, writer := h.snapshot()

	if level >= 2 && writer != nil {
		writer.WriteRequestStart(info)
	}
	return ctx
}

// OnRequestEnd is called after an upstream attempt completes.
func (h *Hooks) OnRequestEnd(_ context.Context, info api.RequestInfo, result api.RequestResult) {
	level, collector, _, writer := h.snapshot()

	if collector != nil {
		collector.RecordRequestFromClient(info, result)
	}
	if level >= 2 && writer != nil {
		writer.WriteRequestEnd(info, result)
	}
}

// OnRetry is called before a retry attempt.
func (h *Hooks) OnRetry(_ context.Context, info api.RequestInfo, attempt int, err error) {
	level, collector, _, writer := h.snapshot()

	if collector != nil {
		collector.RecordRetry(RetryMetrics{
			Method:  info.Method,
			URL:     info.URL,
			Attempt: attempt,
			Error:   err,
		})
	}
	if level >= 2 && writer != nil {
		writer.WriteRetry(info, attempt, err)
	}
}
