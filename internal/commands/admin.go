package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/littleredflower/dashcache/internal/api"
	"github.com/littleredflower/dashcache/internal/appctx"
	"github.com/littleredflower/dashcache/internal/config"
	"github.com/littleredflower/dashcache/internal/datacache"
	"github.com/littleredflower/dashcache/internal/output"
	"github.com/littleredflower/dashcache/internal/server"
	"github.com/littleredflower/dashcache/internal/tui"
)

// ClearResult is the body of a clear call.
type ClearResult struct {
	Cleared   int  `json:"cleared"`
	GateReset bool `json:"gate_reset,omitempty"`
}

// adminClient talks to the admin routes of a running server.
type adminClient struct {
	client *api.Client
	base   string
}

func newAdminClient(app *appctx.App, serverURL string) adminClient {
	if serverURL == "" {
		serverURL = app.Config.ServerURL
	}
	return adminClient{client: app.AdminClient(), base: config.NormalizeBaseURL(serverURL)}
}

func (a adminClient) get(ctx context.Context, path string, v any) error {
	resp, err := a.client.Get(ctx, a.base+path, nil)
	if err != nil {
		return a.wrap(err)
	}
	return decodeEnvelope(resp.Data, v)
}

func (a adminClient) post(ctx context.Context, path string, v any) error {
	resp, err := a.client.Post(ctx, a.base+path)
	if err != nil {
		return a.wrap(err)
	}
	return decodeEnvelope(resp.Data, v)
}

// wrap points connection failures at the server rather than the upstream.
func (a adminClient) wrap(err error) error {
	e := output.AsError(err)
	if e.Code != output.CodeNetwork {
		return err
	}
	wrapped := *e
	wrapped.Hint = fmt.Sprintf("Is dashcache serve running at %s? Pass --server to point elsewhere.", a.base)
	return &wrapped
}

// decodeEnvelope unpacks the data field of a success envelope.
func decodeEnvelope(raw json.RawMessage, v any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return output.ErrAPI(0, fmt.Sprintf("unexpected server response: %v", err))
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return output.ErrAPI(0, fmt.Sprintf("unexpected server response: %v", err))
	}
	return nil
}

func (a adminClient) stats(ctx context.Context) (server.StatsPayload, error) {
	var p server.StatsPayload
	err := a.get(ctx, "/cache/stats", &p)
	return p, err
}

func (a adminClient) entries(ctx context.Context) ([]datacache.EntryInfo, error) {
	var entries []datacache.EntryInfo
	err := a.get(ctx, "/cache/entries", &entries)
	return entries, err
}

func (a adminClient) clear(ctx context.Context, prefix string, resetGate bool) (ClearResult, error) {
	q := url.Values{}
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if resetGate {
		q.Set("reset_gate", "true")
	}
	path := "/cache/clear"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var res ClearResult
	err := a.post(ctx, path, &res)
	return res, err
}

// snapshot reads stats and entries for the monitor.
func (a adminClient) snapshot(ctx context.Context) (tui.Snapshot, error) {
	p, err := a.stats(ctx)
	if err != nil {
		return tui.Snapshot{}, err
	}
	entries, err := a.entries(ctx)
	if err != nil {
		return tui.Snapshot{}, err
	}
	return tui.Snapshot{
		Stats:         p.Cache,
		CacheDuration: p.CacheDuration,
		StaleGrace:    p.StaleGrace,
		HitRate:       p.HitRate,
		Session:       p.Session,
		Fetches:       p.Fetches,
		Entries:       entries,
	}, nil
}

// statsSummary reads like "12 entries: 10 valid, 2 expired, 0 pending".
func statsSummary(st datacache.Stats) string {
	return fmt.Sprintf("%d entries: %d valid, %d expired, %d pending", st.Total, st.Valid, st.Expired, st.Pending)
}

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	var (
		serverURL   string
		withEntries bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics from a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := requireApp(app); err != nil {
				return err
			}
			admin := newAdminClient(app, serverURL)

			p, err := admin.stats(cmd.Context())
			if err != nil {
				return err
			}
			summary := statsSummary(p.Cache)
			if p.Session != nil {
				summary += fmt.Sprintf(" · %.0f%% hit rate", p.HitRate*100)
			}

			if !withEntries {
				return app.OK(p, output.WithSummary(summary))
			}
			entries, err := admin.entries(cmd.Context())
			if err != nil {
				return err
			}
			return app.OK(entries,
				output.WithSummary(summary),
				output.WithMeta("stats", p),
			)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL (default from server_url)")
	cmd.Flags().BoolVar(&withEntries, "entries", false, "List every cached key")
	return cmd
}

// NewClearCmd creates the clear command.
func NewClearCmd() *cobra.Command {
	var (
		serverURL string
		prefix    string
		resetGate bool
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop entries from a running server's cache",
		Long: `Drop cached entries on a running server.

Loads already in flight still complete and repopulate their keys. A prefix
starting with "/" is taken relative to the configured base URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := requireApp(app); err != nil {
				return err
			}
			if len(prefix) > 0 && prefix[0] == '/' {
				prefix = config.NormalizeBaseURL(app.Config.BaseURL) + prefix
			}

			res, err := newAdminClient(app, serverURL).clear(cmd.Context(), prefix, resetGate)
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("Cleared %d entries", res.Cleared)
			if res.GateReset {
				summary += ", gate reset"
			}
			return app.OK(res, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL (default from server_url)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only drop keys starting with this URL prefix")
	cmd.Flags().BoolVar(&resetGate, "reset-gate", false, "Also close circuits and lift rate limit blocks")
	return cmd
}

// NewTopCmd creates the top command.
func NewTopCmd() *cobra.Command {
	var (
		serverURL string
		interval  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live view of a running server's cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := requireApp(app); err != nil {
				return err
			}
			if !app.IsInteractive() {
				return output.ErrUsageHint("top needs a terminal", "Use dashcache stats --entries instead")
			}

			admin := newAdminClient(app, serverURL)
			return tui.RunTop(tui.TopOptions{
				Title:    "dashcache · " + admin.base,
				Server:   admin.base,
				Interval: interval,
				Source:   admin.snapshot,
				Clear: func(ctx context.Context) error {
					_, err := admin.clear(ctx, "", false)
					return err
				},
			})
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL (default from server_url)")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Refresh interval")
	return cmd
}
