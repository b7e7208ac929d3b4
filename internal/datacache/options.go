package datacache

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Defaults for the single global freshness policy.
const (
	DefaultCacheDuration       = 10 * time.Minute
	DefaultStaleGrace          = 5 * time.Minute
	DefaultPrefetchConcurrency = 4
)

// Fetcher retrieves the JSON body for a URL. Implementations own
// timeouts and retries; the cache only decides when to call them.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) (json.RawMessage, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string, header http.Header) (json.RawMessage, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string, header http.Header) (json.RawMessage, error) {
	return f(ctx, url, header)
}

// Options configures a Cache. Zero values fall back to the defaults.
type Options struct {
	CacheDuration       time.Duration
	StaleGrace          time.Duration
	PrefetchConcurrency int
	Logger              zerolog.Logger
	Hooks               Hooks

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.CacheDuration <= 0 {
		o.CacheDuration = DefaultCacheDuration
	}
	if o.StaleGrace < 0 {
		o.StaleGrace = 0
	} else if o.StaleGrace == 0 {
		o.StaleGrace = DefaultStaleGrace
	}
	if o.PrefetchConcurrency <= 0 {
		o.PrefetchConcurrency = DefaultPrefetchConcurrency
	}
	if o.Hooks == nil {
		o.Hooks = NoopHooks{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// EventKind classifies a cache event.
type EventKind int

const (
	EventHit         EventKind = iota // served fresh
	EventStaleHit                     // served stale
	EventMiss                         // no usable entry
	EventEvict                        // dead entry removed on access
	EventRevalidate                   // background refresh started
	EventFetchDone                    // load succeeded
	EventFetchFailed                  // load failed
	EventCleared                      // entries dropped by Clear/Invalidate
)

func (k EventKind) String() string {
	switch k {
	case EventHit:
		return "hit"
	case EventStaleHit:
		return "stale"
	case EventMiss:
		return "miss"
	case EventEvict:
		return "evict"
	case EventRevalidate:
		return "revalidate"
	case EventFetchDone:
		return "fetched"
	case EventFetchFailed:
		return "fetch_failed"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event is reported to Hooks for every cache decision and load outcome.
type Event struct {
	Kind       EventKind
	Key        string
	Background bool
	Duration   time.Duration
	Count      int
	Err        error
}

// Hooks observes cache activity. Implementations must be safe for concurrent use
// and must not call back into the Cache.
type Hooks interface {
	OnCacheEvent(Event)
}

// HooksFunc adapts a function to Hooks.
type HooksFunc func(Event)

// OnCacheEvent calls f.
func (f HooksFunc) OnCacheEvent(e Event) { f(e) }

// NoopHooks discards all events.
type NoopHooks struct{}

// OnCacheEvent does nothing.
func (NoopHooks) OnCacheEvent(Event) {}

// RequestOption customizes a single FetchWithCache call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	header http.Header
}

// WithHeader adds a request header for the upstream fetch. Headers do not
// take part in the cache key; the first caller's headers win for a shared load.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Add(key, value)
	}
}
