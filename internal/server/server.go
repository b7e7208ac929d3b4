// Package server exposes a DataCache over HTTP so dashboard frontends read
// through one shared cache instead of hitting the upstream API directly.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/littleredflower/dashcache/internal/datacache"
	"github.com/littleredflower/dashcache/internal/endpoints"
	"github.com/littleredflower/dashcache/internal/observability"
	"github.com/littleredflower/dashcache/internal/resilience"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Options configures a Server. Collector, FetchLog and Gate may be nil.
type Options struct {
	BaseURL      string
	WarmInterval time.Duration
	Collector    *observability.SessionCollector
	FetchLog     *observability.FetchLog
	Gate         *resilience.Gate
	Logger       zerolog.Logger
}

// Server routes HTTP requests to the cache.
type Server struct {
	cache    *datacache.Cache
	registry *endpoints.Registry
	opts     Options
	log      zerolog.Logger
	router   chi.Router
}

// New builds a Server. The registry may be swapped in place with
// Registry.Replace while the server runs.
func New(cache *datacache.Cache, registry *endpoints.Registry, opts Options) *Server {
	s := &Server{
		cache:    cache,
		registry: registry,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "server").Logger(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, accessLog(s.log), middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/endpoints", s.handleEndpoints)
	r.Get("/data/{name}", s.handleData)
	r.Get("/api/*", s.handlePassThrough)

	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/entries", s.handleEntries)
		r.Post("/clear", s.handleClear)
		r.Post("/prefetch", s.handlePrefetch)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
// With a warm interval set, the prefetch set is warmed at start and on
// every tick.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info().Str("addr", ln.Addr().String()).Str("upstream", s.opts.BaseURL).Msg("listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if s.opts.WarmInterval > 0 {
		g.Go(func() error {
			s.warmLoop(gctx)
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) warmLoop(ctx context.Context) {
	s.Warm(ctx)

	ticker := time.NewTicker(s.opts.WarmInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Warm(ctx)
		}
	}
}

// Warm starts prefetching every endpoint in the prefetch set. It returns
// the number of URLs handed to the cache.
func (s *Server) Warm(ctx context.Context) int {
	urls := s.registry.PrefetchURLs(s.opts.BaseURL)
	s.log.Debug().Int("urls", len(urls)).Msg("warming cache")
	s.cache.PrefetchAll(ctx, urls)
	return len(urls)
}

// accessLog logs one line per request with zerolog.
func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
