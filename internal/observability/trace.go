package observability

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/littleredflower/dashcache/internal/api"
	"github.com/littleredflower/dashcache/internal/datacache"
)

// sensitiveParams are query parameter names scrubbed from trace output.
var sensitiveParams = map[string]bool{
	"access_token": true,
	"token":        true,
	"api_key":      true,
	"apikey":       true,
	"key":          true,
	"password":     true,
	"secret":       true,
	"signature":    true,
	"sign":         true,
}

// TraceWriter outputs human-readable trace information to stderr.
// It formats output with timestamps relative to session start.
type TraceWriter struct {
	mu        sync.Mutex
	writer    io.Writer
	startTime time.Time
}

// NewTraceWriter creates a new TraceWriter that writes to stderr.
func NewTraceWriter() *TraceWriter {
	return NewTraceWriterTo(os.Stderr)
}

// NewTraceWriterTo creates a new TraceWriter that writes to the given writer.
func NewTraceWriterTo(w io.Writer) *TraceWriter {
	return &TraceWriter{
		writer:    w,
		startTime: time.Now(),
	}
}

func (t *TraceWriter) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime).Seconds()
	fmt.Fprintf(t.writer, "[%.3fs] "+format+"\n", append([]any{elapsed}, args...)...)
}

// WriteCacheEvent writes one cache decision.
// Format: [0.234s] HIT /api/dashboard or [0.234s] FETCHED /api/dashboard (45ms, background)
func (t *TraceWriter) WriteCacheEvent(e datacache.Event) {
	key := scrubURL(e.Key)
	suffix := ""
	if e.Background {
		suffix = ", background"
	}

	switch e.Kind {
	case datacache.EventHit:
		t.printf("HIT %s", key)
	case datacache.EventStaleHit:
		t.printf("STALE %s", key)
	case datacache.EventMiss:
		t.printf("MISS %s", key)
	case datacache.EventEvict:
		t.printf("EVICT %s", key)
	case datacache.EventRevalidate:
		t.printf("REVALIDATE %s", key)
	case datacache.EventFetchDone:
		t.printf("FETCHED %s (%dms%s)", key, e.Duration.Milliseconds(), suffix)
	case datacache.EventFetchFailed:
		t.printf("FETCH FAILED %s: %v", key, e.Err)
	case datacache.EventCleared:
		if e.Key != "" {
			t.printf("CLEARED %d entries under %s", e.Count, key)
		} else {
			t.printf("CLEARED %d entries", e.Count)
		}
	}
}

// WriteRequestStart writes a request start trace line.
// Format: [0.234s]   -> GET http://127.0.0.1:8000/api/dashboard
// Sensitive query parameters are redacted.
func (t *TraceWriter) WriteRequestStart(info api.RequestInfo) {
	t.printf("  -> %s %s", info.Method, scrubURL(info.URL))
}

// WriteRequestEnd writes a request completion trace line.
// Format: [0.234s]   <- 200 (45ms)
func (t *TraceWriter) WriteRequestEnd(_ api.RequestInfo, result api.RequestResult) {
	if result.Error != nil {
		t.printf("  <- ERROR: %v", result.Error)
		return
	}
	t.printf("  <- %d (%dms)", result.StatusCode, result.Duration.Milliseconds())
}

// WriteRetry writes a retry trace line.
// Format: [0.234s]   RETRY #2: HTTP 503
func (t *TraceWriter) WriteRetry(_ api.RequestInfo, attempt int, err error) {
	t.printf("  RETRY #%d: %v", attempt, err)
}

// Reset resets the start time for relative timestamps.
func (t *TraceWriter) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startTime = time.Now()
}

// scrubURL redacts sensitive query parameters from a URL for safe logging.
// Returns a safe placeholder if the URL cannot be parsed.
func scrubURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[unparseable URL]"
	}

	query := u.Query()
	modified := false
	for key := range query {
		if sensitiveParams[strings.ToLower(key)] {
			query.Set(key, "[REDACTED]")
			modified = true
		}
	}

	if !modified {
		return rawURL
	}

	u.RawQuery = query.Encode()
	return u.String()
}
