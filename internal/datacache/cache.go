// Package datacache is a URL-keyed cache of JSON responses with request
// deduplication, TTL expiry, and stale-while-revalidate refresh.
//
// A Cache is created once per process and injected into its consumers.
// Consumers call FetchWithCache and get bytes back; whether they came from a
// fresh entry, a stale entry being refreshed in the background, or a network
// fetch shared with other callers is invisible to them.
package datacache

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Cache holds entries and in-flight loads for a process lifetime.
type Cache struct {
	fetcher Fetcher
	opts    Options
	log     zerolog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	pending map[string]struct{}

	group singleflight.Group
	bg    sync.WaitGroup
}

// New creates a Cache that loads through fetcher.
func New(fetcher Fetcher, opts Options) *Cache {
	opts = opts.withDefaults()
	return &Cache{
		fetcher: fetcher,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "datacache").Logger(),
		entries: make(map[string]*Entry),
		pending: make(map[string]struct{}),
	}
}

// CacheDuration returns the freshness TTL applied to every entry.
func (c *Cache) CacheDuration() time.Duration { return c.opts.CacheDuration }

// StaleGrace returns the window after expiry during which stale data is served.
func (c *Cache) StaleGrace() time.Duration { return c.opts.StaleGrace }

// FetchWithCache returns the JSON body for url.
//
// A fresh entry is returned without I/O. A stale entry is returned immediately
// and, unless a load is already in flight, refreshed in the background; refresh
// failures are logged and never reach the caller. Otherwise the caller joins the
// in-flight load for url or starts one, so concurrent callers share a single
// upstream fetch. Dead entries are evicted before any of this happens.
//
// The load is detached from ctx: if ctx ends, this call returns ctx.Err() but
// the load still completes for everyone else waiting on it.
func (c *Cache) FetchWithCache(ctx context.Context, url string, opts ...RequestOption) (json.RawMessage, error) {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	now := c.opts.Now()

	c.mu.Lock()
	if e, ok := c.entries[url]; ok {
		switch e.State(now, c.opts.StaleGrace) {
		case StateFresh:
			data := bytes.Clone(e.Data)
			c.mu.Unlock()
			c.emit(Event{Kind: EventHit, Key: url})
			return data, nil

		case StateStale:
			data := bytes.Clone(e.Data)
			_, inflight := c.pending[url]
			c.mu.Unlock()
			c.emit(Event{Kind: EventStaleHit, Key: url})
			if !inflight {
				c.revalidate(ctx, url, ro.header)
			}
			return data, nil

		default:
			delete(c.entries, url)
			c.mu.Unlock()
			c.emit(Event{Kind: EventEvict, Key: url})
		}
	} else {
		c.mu.Unlock()
	}

	c.emit(Event{Kind: EventMiss, Key: url})
	return c.await(ctx, url, ro.header)
}

// await joins or starts the load for url and waits for it or for ctx.
// A caller that stops waiting leaves the load counted by Wait until it
// settles.
func (c *Cache) await(ctx context.Context, url string, header http.Header) (json.RawMessage, error) {
	loadCtx := context.WithoutCancel(ctx)
	c.bg.Add(1)
	ch := c.group.DoChan(url, func() (any, error) {
		return c.load(loadCtx, url, header, false)
	})

	select {
	case res := <-ch:
		c.bg.Done()
		if res.Err != nil {
			return nil, res.Err
		}
		data, _ := res.Val.(json.RawMessage)
		return bytes.Clone(data), nil
	case <-ctx.Done():
		go func() {
			defer c.bg.Done()
			<-ch
		}()
		return nil, ctx.Err()
	}
}

// revalidate refreshes url in a detached goroutine. Errors are logged only.
func (c *Cache) revalidate(ctx context.Context, url string, header http.Header) {
	c.emit(Event{Kind: EventRevalidate, Key: url, Background: true})

	loadCtx := context.WithoutCancel(ctx)
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		_, err, _ := c.group.Do(url, func() (any, error) {
			return c.load(loadCtx, url, header, true)
		})
		if err != nil {
			c.log.Warn().Err(err).Str("url", url).Msg("background revalidation failed, keeping stale entry")
		}
	}()
}

// load performs the upstream fetch. singleflight guarantees at most one load
// per key runs at a time; the pending set mirrors that for Stats.
func (c *Cache) load(ctx context.Context, url string, header http.Header, background bool) (any, error) {
	c.mu.Lock()
	if background {
		// Another refresh may have landed between the stale read and now.
		if e, ok := c.entries[url]; ok && e.IsFresh(c.opts.Now()) {
			c.mu.Unlock()
			return e.Data, nil
		}
	}
	c.pending[url] = struct{}{}
	c.mu.Unlock()

	start := c.opts.Now()
	data, err := c.fetcher.Fetch(ctx, url, header)
	done := c.opts.Now()

	c.mu.Lock()
	delete(c.pending, url)
	if err == nil {
		c.entries[url] = newEntry(url, data, done, c.opts.CacheDuration)
	}
	c.mu.Unlock()

	if err != nil {
		c.emit(Event{Kind: EventFetchFailed, Key: url, Background: background, Duration: done.Sub(start), Err: err})
		return nil, err
	}
	c.emit(Event{Kind: EventFetchDone, Key: url, Background: background, Duration: done.Sub(start), Count: len(data)})
	return data, nil
}

// PrefetchAll warms the cache for every url that has no usable entry and no
// load in flight. It returns immediately; failures are logged at debug level
// and otherwise discarded.
func (c *Cache) PrefetchAll(ctx context.Context, urls []string) {
	now := c.opts.Now()

	c.mu.Lock()
	targets := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		if e, ok := c.entries[u]; ok && e.IsUsable(now, c.opts.StaleGrace) {
			continue
		}
		if _, ok := c.pending[u]; ok {
			continue
		}
		targets = append(targets, u)
	}
	c.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		var g errgroup.Group
		g.SetLimit(c.opts.PrefetchConcurrency)
		for _, u := range targets {
			g.Go(func() error {
				if _, err := c.FetchWithCache(ctx, u); err != nil {
					c.log.Debug().Err(err).Str("url", u).Msg("prefetch failed")
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// Wait blocks until background revalidations, prefetches and loads whose
// callers gave up, all started so far, have finished.
func (c *Cache) Wait() {
	c.bg.Wait()
}

// Clear drops every entry and returns how many were removed. In-flight
// loads are not cancelled; when they succeed they repopulate the cache as
// usual.
func (c *Cache) Clear() int {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()

	c.emit(Event{Kind: EventCleared, Count: n})
	return n
}

// Invalidate drops entries whose key starts with prefix and returns how many
// were removed. An empty prefix behaves like Clear.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	n := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			n++
		}
	}
	c.mu.Unlock()

	c.emit(Event{Kind: EventCleared, Key: prefix, Count: n})
	return n
}

// Stats counts entries by freshness plus in-flight loads.
func (c *Cache) Stats() Stats {
	now := c.opts.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Total: len(c.entries), Pending: len(c.pending)}
	for _, e := range c.entries {
		if e.IsFresh(now) {
			s.Valid++
		}
	}
	s.Expired = s.Total - s.Valid
	return s
}

// Entries lists the current entries sorted by key.
func (c *Cache) Entries() []EntryInfo {
	now := c.opts.Now()

	c.mu.Lock()
	infos := make([]EntryInfo, 0, len(c.entries))
	for _, e := range c.entries {
		infos = append(infos, EntryInfo{
			Key:       e.Key,
			State:     e.State(now, c.opts.StaleGrace),
			FetchedAt: e.FetchedAt,
			ExpiresAt: e.ExpiresAt,
			Age:       now.Sub(e.FetchedAt),
			Size:      len(e.Data),
		})
	}
	c.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

// Lookup reports the state of url without fetching or evicting.
func (c *Cache) Lookup(url string) State {
	now := c.opts.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	if !ok {
		return StateMissing
	}
	return e.State(now, c.opts.StaleGrace)
}

func (c *Cache) emit(e Event) {
	c.opts.Hooks.OnCacheEvent(e)
}
