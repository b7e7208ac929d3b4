package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/littleredflower/dashcache/internal/appctx"
	"github.com/littleredflower/dashcache/internal/endpoints"
	"github.com/littleredflower/dashcache/internal/output"
	"github.com/littleredflower/dashcache/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var (
		addr          string
		warmInterval  time.Duration
		watchRegistry bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cache over HTTP",
		Long: `Run an HTTP server that answers dashboard requests from one shared cache.

  GET  /data/{name}      named endpoint, query parameters fill it in
  GET  /api/...          same path on the upstream, through the cache
  GET  /cache/stats      cache, session and fetch statistics
  GET  /cache/entries    every cached key with its state
  POST /cache/clear      drop entries (?prefix=, ?reset_gate=true)
  POST /cache/prefetch   warm the prefetch set or {"endpoints": [...]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := requireApp(app); err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = app.Config.ListenAddr
			}
			if !cmd.Flags().Changed("warm-interval") {
				warmInterval = app.Config.WarmInterval
			}
			if watchRegistry && app.Config.EndpointsFile == "" {
				return output.ErrUsageHint("--watch-endpoints needs an endpoints file", "Set endpoints_file in config or DASHCACHE_ENDPOINTS_FILE")
			}

			srv := server.New(app.Cache, app.Registry, server.Options{
				BaseURL:      app.Config.BaseURL,
				WarmInterval: warmInterval,
				Collector:    app.Collector,
				FetchLog:     app.FetchLog,
				Gate:         app.Gate,
				Logger:       app.Logger,
			})

			g, ctx := errgroup.WithContext(cmd.Context())
			if watchRegistry {
				g.Go(func() error {
					return endpoints.Watch(ctx, app.Config.EndpointsFile, func(r *endpoints.Registry, err error) {
						if err != nil {
							app.Logger.Warn().Err(err).Str("file", app.Config.EndpointsFile).Msg("endpoints reload failed")
							return
						}
						app.Registry.Replace(r)
						app.Logger.Info().Int("endpoints", len(r.Names())).Msg("endpoints reloaded")
					})
				})
			}
			g.Go(func() error {
				return srv.Run(ctx, addr)
			})

			fmt.Fprintf(app.Stderr(), "dashcache serving on http://%s (upstream %s, ttl %s)\n", addr, app.Config.BaseURL, app.Config.CacheDuration)
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from listen_addr)")
	cmd.Flags().DurationVar(&warmInterval, "warm-interval", 0, "Re-warm the prefetch set this often (0 disables)")
	cmd.Flags().BoolVar(&watchRegistry, "watch-endpoints", false, "Reload the endpoints file when it changes")

	return cmd
}
