package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littleredflower/dashcache/internal/api"
	"github.com/littleredflower/dashcache/internal/datacache"
	"github.com/littleredflower/dashcache/internal/endpoints"
	"github.com/littleredflower/dashcache/internal/observability"
	"github.com/littleredflower/dashcache/internal/output"
)

// upstream is a fake dashboard API that counts requests per path.
type upstream struct {
	*httptest.Server

	mu     sync.Mutex
	hits   map[string]int
	status map[string]int
	last   *http.Request
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{hits: make(map[string]int), status: make(map[string]int)}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.hits[r.URL.Path]++
		u.last = r.Clone(context.Background())
		status := u.status[r.URL.Path]
		u.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"detail":"upstream says no"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) hitCount(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[path]
}

func (u *upstream) fail(path string, status int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status[path] = status
}

func (u *upstream) lastRequest() *http.Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.last
}

type fixture struct {
	up       *upstream
	cache    *datacache.Cache
	registry *endpoints.Registry
	srv      *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	up := newUpstream(t)

	collector := observability.NewSessionCollector()
	fetchLog := observability.NewFetchLog()
	hooks := observability.NewHooks(0, collector, fetchLog, nil)

	client := api.NewClient(api.WithMaxRetries(0), api.WithHooks(hooks))
	cache := datacache.New(client, datacache.Options{Hooks: hooks})
	registry := endpoints.New(
		endpoints.Endpoint{Name: "index_overview", Path: "/api/index/overview", Prefetch: true},
		endpoints.Endpoint{Name: "sentiment", Path: "/api/sentiment", Prefetch: true},
		endpoints.Endpoint{Name: "report", Path: "/api/reports/{date}", Params: []string{"date"}},
		endpoints.Endpoint{Name: "watchlist_quotes", Path: "/api/watchlist/quotes", Params: []string{"symbols"}},
	)

	srv := New(cache, registry, Options{
		BaseURL:   up.URL,
		Collector: collector,
		FetchLog:  fetchLog,
	})
	return &fixture{up: up, cache: cache, registry: registry, srv: srv}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) output.ErrorResponse {
	t.Helper()
	var resp output.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestEndpointsLists(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/endpoints", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []endpoints.Endpoint `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 4)
	assert.Equal(t, "index_overview", resp.Data[0].Name)
}

func TestDataServesFromCacheAfterFirstFetch(t *testing.T) {
	f := newFixture(t)

	first := f.do(t, http.MethodGet, "/data/index_overview", "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get(CacheStateHeader))
	assert.JSONEq(t, `{"path":"/api/index/overview"}`, first.Body.String())

	second := f.do(t, http.MethodGet, "/data/index_overview", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(CacheStateHeader))
	assert.Equal(t, first.Body.String(), second.Body.String())

	assert.Equal(t, 1, f.up.hitCount("/api/index/overview"))
}

func TestDataFillsPathParams(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/data/report?date=2026-01-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.up.hitCount("/api/reports/2026-01-02"))
}

func TestDataMissingPathParamIsBadRequest(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/data/report", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, output.CodeUsage, decodeError(t, rec).Code)
}

func TestDataWatchlistNormalizesSymbols(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/data/watchlist_quotes?symbols=msft,+600519,msft", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MSFT,600519", f.up.lastRequest().URL.Query().Get("symbols"))

	bad := f.do(t, http.MethodGet, "/data/watchlist_quotes?symbols=not-a-symbol", "")
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestDataUnknownEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/data/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, output.CodeNotFound, resp.Code)
	assert.False(t, resp.OK)
}

func TestPassThrough(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/watchlist/trend?symbol=MSFT", "")
	require.Equal(t, http.StatusOK, rec.Code)

	last := f.up.lastRequest()
	assert.Equal(t, "/api/watchlist/trend", last.URL.Path)
	assert.Equal(t, "MSFT", last.URL.Query().Get("symbol"))

	f.do(t, http.MethodGet, "/api/watchlist/trend?symbol=MSFT", "")
	assert.Equal(t, 1, f.up.hitCount("/api/watchlist/trend"))
}

func TestUpstreamErrorsMapToStatus(t *testing.T) {
	f := newFixture(t)
	f.up.fail("/api/missing", http.StatusNotFound)
	f.up.fail("/api/broken", http.StatusInternalServerError)

	notFound := f.do(t, http.MethodGet, "/api/missing", "")
	assert.Equal(t, http.StatusNotFound, notFound.Code)
	assert.Equal(t, "HTTP 404", decodeError(t, notFound).Error)

	broken := f.do(t, http.MethodGet, "/api/broken", "")
	assert.Equal(t, http.StatusBadGateway, broken.Code)
	resp := decodeError(t, broken)
	assert.Equal(t, "HTTP 500", resp.Error)
	assert.Equal(t, http.StatusInternalServerError, resp.HTTPStatus)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"usage", output.ErrUsage("bad"), http.StatusBadRequest},
		{"unknown endpoint", output.ErrNotFound("Endpoint", "x"), http.StatusNotFound},
		{"upstream 404", output.ErrHTTP(404, ""), http.StatusNotFound},
		{"upstream 403", output.ErrHTTP(403, ""), http.StatusForbidden},
		{"upstream 422", output.ErrHTTP(422, ""), http.StatusUnprocessableEntity},
		{"upstream 429", output.ErrRateLimit(time.Second), http.StatusTooManyRequests},
		{"upstream 503", output.ErrServer(503, ""), http.StatusBadGateway},
		{"network", output.ErrNetwork(assert.AnError), http.StatusBadGateway},
		{"timeout", output.ErrTimeout(15 * time.Second), http.StatusGatewayTimeout},
		{"circuit open", output.ErrCircuitOpen("h"), http.StatusServiceUnavailable},
		{"plain error", assert.AnError, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestCacheStatsAndEntries(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/data/index_overview", "")
	f.do(t, http.MethodGet, "/data/index_overview", "")

	rec := f.do(t, http.MethodGet, "/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		Data StatsPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, datacache.Stats{Total: 1, Valid: 1}, stats.Data.Cache)
	assert.Equal(t, "10m0s", stats.Data.CacheDuration)
	require.NotNil(t, stats.Data.Session)
	assert.Equal(t, 1, stats.Data.Session.CacheHits)
	assert.Equal(t, 1, stats.Data.Session.CacheMisses)
	assert.InDelta(t, 0.5, stats.Data.HitRate, 0.001)
	require.NotNil(t, stats.Data.Fetches)
	assert.Equal(t, 1, stats.Data.Fetches.Fetches)

	entries := f.do(t, http.MethodGet, "/cache/entries", "")
	require.Equal(t, http.StatusOK, entries.Code)
	assert.Contains(t, entries.Body.String(), `"state":"fresh"`)
}

func TestCacheClear(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/data/index_overview", "")
	f.do(t, http.MethodGet, "/data/sentiment", "")

	rec := f.do(t, http.MethodPost, "/cache/clear?prefix="+f.up.URL+"/api/sentiment", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cleared":1`)
	assert.Equal(t, 1, f.cache.Stats().Total)

	rec = f.do(t, http.MethodPost, "/cache/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cleared":1`)
	assert.Equal(t, 0, f.cache.Stats().Total)
}

func TestCacheClearRequiresPost(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/cache/clear", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCachePrefetch(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/cache/prefetch", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"scheduled":2`)

	f.cache.Wait()
	assert.Equal(t, 2, f.cache.Stats().Total)
	assert.Equal(t, 1, f.up.hitCount("/api/sentiment"))
}

func TestCachePrefetchNamed(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/cache/prefetch", `{"endpoints":["sentiment"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	f.cache.Wait()
	assert.Equal(t, 1, f.cache.Stats().Total)
	assert.Equal(t, 0, f.up.hitCount("/api/index/overview"))
}

func TestCachePrefetchRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	bad := f.do(t, http.MethodPost, "/cache/prefetch", `{"endpoints":`)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	unknown := f.do(t, http.MethodPost, "/cache/prefetch", `{"endpoints":["nope"]}`)
	assert.Equal(t, http.StatusNotFound, unknown.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	f.srv.opts.WarmInterval = time.Hour

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// the warm loop runs once at start
	require.Eventually(t, func() bool {
		f.cache.Wait()
		return f.cache.Stats().Total == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestWarmCountsPrefetchURLs(t *testing.T) {
	f := newFixture(t)

	var calls atomic.Int32
	f.srv.cache = datacache.New(datacache.FetcherFunc(func(ctx context.Context, url string, _ http.Header) (json.RawMessage, error) {
		calls.Add(1)
		return json.RawMessage(`{}`), nil
	}), datacache.Options{})

	assert.Equal(t, 2, f.srv.Warm(context.Background()))
	f.srv.cache.Wait()
	assert.Equal(t, int32(2), calls.Load())
}
