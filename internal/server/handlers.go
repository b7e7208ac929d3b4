package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/littleredflower/dashcache/internal/datacache"
	"github.com/littleredflower/dashcache/internal/observability"
	"github.com/littleredflower/dashcache/internal/output"
	"github.com/littleredflower/dashcache/internal/version"
)

// CacheStateHeader reports how the cache stood before a data request:
// HIT, STALE or MISS.
const CacheStateHeader = "X-Dashcache-State"

// maxPrefetchBody bounds the POST /cache/prefetch request body.
const maxPrefetchBody = 64 << 10

// StatsPayload is the body of GET /cache/stats.
type StatsPayload struct {
	Cache         datacache.Stats               `json:"cache"`
	CacheDuration string                        `json:"cache_duration"`
	StaleGrace    string                        `json:"stale_grace"`
	Session       *observability.SessionMetrics `json:"session,omitempty"`
	HitRate       float64                       `json:"hit_rate"`
	Fetches       *observability.FetchSummary   `json:"fetches,omitempty"`
}

// PrefetchRequest is the optional body of POST /cache/prefetch.
type PrefetchRequest struct {
	Endpoints []string `json:"endpoints"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, output.Response{
		OK:   true,
		Data: map[string]string{"status": "ok", "version": version.Version},
	})
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, output.Response{OK: true, Data: s.registry.All()})
}

// handleData serves a registry endpoint by name. Query parameters fill the
// endpoint's placeholders and query string.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.registry.Lookup(name); !ok {
		writeError(w, output.ErrNotFound("Endpoint", name))
		return
	}

	var (
		target string
		err    error
	)
	query := r.URL.Query()
	if name == "watchlist_quotes" && query.Has("symbols") {
		target, err = s.registry.WatchlistQuotesURL(s.opts.BaseURL, query["symbols"])
	} else {
		target, err = s.registry.URL(s.opts.BaseURL, name, query)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.serveCached(w, r, target)
}

// handlePassThrough serves /api/... from the same path on the upstream.
func (s *Server) handlePassThrough(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimRight(s.opts.BaseURL, "/") + r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.Query().Encode()
	}
	s.serveCached(w, r, target)
}

func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, target string) {
	state := s.cache.Lookup(target)

	data, err := s.cache.FetchWithCache(r.Context(), target, forwardHeaders(r)...)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.log.Warn().Err(err).Str("url", target).Msg("fetch failed")
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(CacheStateHeader, stateLabel(state))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// forwardHeaders passes the client's language preference upstream.
func forwardHeaders(r *http.Request) []datacache.RequestOption {
	if lang := r.Header.Get("Accept-Language"); lang != "" {
		return []datacache.RequestOption{datacache.WithHeader("Accept-Language", lang)}
	}
	return nil
}

func stateLabel(s datacache.State) string {
	switch s {
	case datacache.StateFresh:
		return "HIT"
	case datacache.StateStale:
		return "STALE"
	default:
		return "MISS"
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, output.Response{OK: true, Data: s.Stats()})
}

// Stats collects the cache, session and fetch log summaries.
func (s *Server) Stats() StatsPayload {
	p := StatsPayload{
		Cache:         s.cache.Stats(),
		CacheDuration: s.cache.CacheDuration().String(),
		StaleGrace:    s.cache.StaleGrace().String(),
	}
	if s.opts.Collector != nil {
		summary := s.opts.Collector.Summary()
		p.Session = &summary
		p.HitRate = summary.HitRate()
	}
	if s.opts.FetchLog != nil {
		fetches := s.opts.FetchLog.Summary()
		p.Fetches = &fetches
	}
	return p
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, output.Response{OK: true, Data: s.cache.Entries()})
}

// handleClear drops entries. ?prefix= limits it to keys with that prefix;
// ?reset_gate=true also closes circuits and lifts rate limit blocks.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var cleared int
	if prefix := q.Get("prefix"); prefix != "" {
		cleared = s.cache.Invalidate(prefix)
	} else {
		cleared = s.cache.Clear()
	}

	result := map[string]any{"cleared": cleared}
	if q.Get("reset_gate") == "true" && s.opts.Gate != nil {
		if err := s.opts.Gate.Reset(); err != nil {
			writeError(w, err)
			return
		}
		result["gate_reset"] = true
	}

	s.log.Info().Int("cleared", cleared).Str("prefix", q.Get("prefix")).Msg("cache cleared")
	writeJSON(w, http.StatusOK, output.Response{OK: true, Data: result})
}

// handlePrefetch starts warming and answers 202 without waiting.
// An empty body warms the whole prefetch set.
func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	var req PrefetchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPrefetchBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, output.ErrUsageHint("Invalid prefetch request", err.Error()))
		return
	}

	var urls []string
	if len(req.Endpoints) == 0 {
		urls = s.registry.PrefetchURLs(s.opts.BaseURL)
	} else {
		for _, name := range req.Endpoints {
			if _, ok := s.registry.Lookup(name); !ok {
				writeError(w, output.ErrNotFound("Endpoint", name))
				return
			}
			u, err := s.registry.URL(s.opts.BaseURL, name, nil)
			if err != nil {
				writeError(w, err)
				return
			}
			urls = append(urls, u)
		}
	}

	s.cache.PrefetchAll(context.WithoutCancel(r.Context()), urls)
	writeJSON(w, http.StatusAccepted, output.Response{
		OK:   true,
		Data: map[string]any{"scheduled": len(urls), "urls": urls},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), output.NewErrorResponse(err))
}

// StatusFor maps an error to the status the server answers with. Upstream
// 4xx pass through; upstream failures become gateway errors.
func StatusFor(err error) int {
	e := output.AsError(err)
	switch e.Code {
	case output.CodeUsage:
		return http.StatusBadRequest
	case output.CodeNotFound:
		return http.StatusNotFound
	case output.CodeAuth, output.CodeForbidden, output.CodeClient, output.CodeRateLimit:
		if e.HTTPStatus >= 400 && e.HTTPStatus < 500 {
			return e.HTTPStatus
		}
		return http.StatusBadRequest
	case output.CodeTimeout:
		return http.StatusGatewayTimeout
	case output.CodeCircuitOpen, output.CodeBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
