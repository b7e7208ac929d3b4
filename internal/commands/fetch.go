package commands

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/littleredflower/dashcache/internal/appctx"
	"github.com/littleredflower/dashcache/internal/completion"
	"github.com/littleredflower/dashcache/internal/dateparse"
	"github.com/littleredflower/dashcache/internal/endpoints"
	"github.com/littleredflower/dashcache/internal/output"
	"github.com/littleredflower/dashcache/internal/tui"
	"github.com/littleredflower/dashcache/internal/tui/format"
	"github.com/littleredflower/dashcache/internal/tui/recents"
)

// FetchResult describes where a fetch was served from.
type FetchResult struct {
	URL    string   `json:"url"`
	States []string `json:"states"`
}

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	var (
		params  []string
		symbols string
		week    string
		jq      string
		repeat  int
	)

	cmd := &cobra.Command{
		Use:   "fetch [endpoint|url]",
		Short: "Fetch an endpoint through the cache",
		Long: `Fetch a dashboard endpoint through the cache.

The target is an endpoint name (see "dashcache endpoints"), a path starting
with "/" on the base URL, or an absolute URL. On a terminal with no target a
picker lists the endpoints.`,
		Example: `  dashcache fetch sentiment
  dashcache fetch economic_calendar --param week_offset=1
  dashcache fetch economic_calendar --week "next friday"
  dashcache fetch watchlist_quotes --symbols 600519,msft
  dashcache fetch index_overview --jq '.indices[0]' --repeat 3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := requireApp(app); err != nil {
				return err
			}
			if repeat < 1 {
				return output.ErrUsage("--repeat must be at least 1")
			}

			target := ""
			if len(args) == 1 {
				target = args[0]
			} else {
				picked, err := pickEndpoint(app)
				if err != nil {
					return err
				}
				target = picked
			}

			values, err := parseParams(params)
			if err != nil {
				return err
			}
			if week != "" {
				if err := applyWeek(values, target, week, time.Now()); err != nil {
					return err
				}
			}
			fetchURL, err := fetchTarget(app, target, values, symbols)
			if err != nil {
				return err
			}

			result := FetchResult{URL: fetchURL}
			var data json.RawMessage
			for range repeat {
				result.States = append(result.States, app.Cache.Lookup(fetchURL).String())
				data, err = app.Cache.FetchWithCache(cmd.Context(), fetchURL)
				if err != nil {
					return err
				}
			}

			rememberFetch(app, target)

			var body any = data
			if jq != "" {
				if body, err = applyJQ(data, jq); err != nil {
					return err
				}
			}

			return app.OK(body,
				output.WithSummary(fetchSummary(target, result.States)),
				output.WithMeta("fetch", result),
				output.WithMeta("cache", app.Cache.Stats()),
				output.WithBreadcrumbs(
					output.Breadcrumb{
						Action:      "prefetch",
						Cmd:         "dashcache prefetch",
						Description: "Warm every prefetch endpoint",
					},
				),
			)
		},
	}

	completer := completion.NewCompleter(nil, nil)
	cmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return completer.EndpointCompletion()(cmd, args, toComplete)
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Endpoint parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&symbols, "symbols", "", "Comma-separated symbols for watchlist_quotes")
	cmd.Flags().StringVar(&week, "week", "", `Week for economic_calendar: "next week", "last friday", "2026-03-02"`)
	cmd.Flags().StringVar(&jq, "jq", "", "jq expression applied to the response")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "Fetch N times to show cache hits")
	_ = cmd.RegisterFlagCompletionFunc("param", completer.ParamCompletion())

	return cmd
}

// fetchTarget resolves the command target into the URL to fetch.
func fetchTarget(app *appctx.App, target string, params url.Values, symbols string) (string, error) {
	if symbols != "" {
		if target != "watchlist_quotes" {
			return "", output.ErrUsageHint("--symbols only applies to watchlist_quotes", "Use --param for other endpoints")
		}
		return app.Registry.WatchlistQuotesURL(app.Config.BaseURL, strings.Split(symbols, ","))
	}
	if target == "watchlist_quotes" && params.Has("symbols") {
		return app.Registry.WatchlistQuotesURL(app.Config.BaseURL, params["symbols"])
	}
	return app.Registry.Resolve(app.Config.BaseURL, target, params)
}

// applyWeek turns a date phrase into the economic calendar's week_offset.
func applyWeek(values url.Values, target, week string, now time.Time) error {
	if target != "economic_calendar" {
		return output.ErrUsageHint("--week only applies to economic_calendar", "Use --param for other endpoints")
	}
	if values.Has("week_offset") {
		return output.ErrUsage("Use either --week or --param week_offset, not both")
	}
	offset, err := dateparse.WeekOffset(week, now)
	if err != nil {
		return output.ErrUsageHint(
			fmt.Sprintf("Invalid --week %q", week),
			`Try "next week", "last monday", "in 2 weeks" or a YYYY-MM-DD date`,
		)
	}
	values.Set("week_offset", strconv.Itoa(offset))
	return nil
}

// pickEndpoint asks for an endpoint on a terminal.
func pickEndpoint(app *appctx.App) (string, error) {
	if !app.IsInteractive() {
		return "", output.ErrUsageHint("Endpoint required", "Run: dashcache endpoints")
	}
	recent := recents.NewStore(app.Config.CacheDir).Get(app.Config.BaseURL)
	return tui.Pick("Fetch which endpoint?", pickerItems(app.Registry.All(), recent, time.Now()))
}

// pickerItems lists recently fetched endpoints first, then the rest in
// registry order.
func pickerItems(eps []endpoints.Endpoint, recent []recents.Item, now time.Time) []tui.PickerItem {
	byName := make(map[string]endpoints.Endpoint, len(eps))
	for _, ep := range eps {
		byName[ep.Name] = ep
	}

	items := make([]tui.PickerItem, 0, len(eps))
	seen := make(map[string]bool, len(recent))
	for _, r := range recent {
		ep, ok := byName[r.Name]
		if !ok || seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		items = append(items, tui.PickerItem{
			Value:       ep.Name,
			Description: fmt.Sprintf("%s · fetched %s", ep.Description, format.RelativeTime(r.UsedAt, now)),
		})
	}
	for _, ep := range eps {
		if !seen[ep.Name] {
			items = append(items, tui.PickerItem{Value: ep.Name, Description: ep.Description})
		}
	}
	return items
}

// rememberFetch records named endpoints for the picker. Failures only log.
func rememberFetch(app *appctx.App, target string) {
	if _, ok := app.Registry.Lookup(target); !ok {
		return
	}
	store := recents.NewStore(app.Config.CacheDir)
	store.Add(target, app.Config.BaseURL)
	if err := store.LastError(); err != nil {
		app.Logger.Debug().Err(err).Msg("recording recent endpoint")
	}
}

// fetchSummary reads like "sentiment: miss, fresh, fresh".
func fetchSummary(target string, states []string) string {
	labels := make([]string, len(states))
	for i, s := range states {
		if s == "missing" {
			s = "miss"
		}
		labels[i] = s
	}
	return fmt.Sprintf("%s: %s", target, strings.Join(labels, ", "))
}
