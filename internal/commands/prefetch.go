package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/littleredflower/dashcache/internal/appctx"
	"github.com/littleredflower/dashcache/internal/completion"
	"github.com/littleredflower/dashcache/internal/datacache"
	"github.com/littleredflower/dashcache/internal/output"
	"github.com/littleredflower/dashcache/internal/resilience"
	"github.com/littleredflower/dashcache/internal/tui"
)

// PrefetchResult reports a completed warm-up.
type PrefetchResult struct {
	URLs  []string        `json:"urls"`
	Cache datacache.Stats `json:"cache"`
}

// NewPrefetchCmd creates the prefetch command.
func NewPrefetchCmd() *cobra.Command {
	completer := completion.NewCompleter(nil, nil)

	return &cobra.Command{
		Use:               "prefetch [endpoint...]",
		ValidArgsFunction: completer.EndpointCompletion(),
		Short:             "Warm the cache",
		Long: `Fetch a set of endpoints concurrently and wait for them to land.

With no arguments every endpoint marked for prefetch is warmed. Failures are
logged and skipped. At most two warm-ups run at once across processes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := requireApp(app); err != nil {
				return err
			}

			urls, err := prefetchURLs(app, args)
			if err != nil {
				return err
			}

			bulkhead := resilience.NewBulkhead(app.Store, resilience.DefaultConfig().Bulkhead)
			release, err := bulkhead.Acquire()
			if err != nil {
				return err
			}
			defer release()

			warm := func() (string, error) {
				app.Cache.PrefetchAll(cmd.Context(), urls)
				app.Cache.Wait()
				cached := 0
				for _, u := range urls {
					if app.Cache.Lookup(u) == datacache.StateFresh {
						cached++
					}
				}
				return fmt.Sprintf("%d of %d endpoints cached", cached, len(urls)), nil
			}

			var summary string
			if app.IsInteractive() && app.Output.Format() == output.FormatAuto {
				summary, err = tui.NewSpinner(fmt.Sprintf("Warming %d endpoints…", len(urls)), app.Stderr()).Run(warm)
			} else {
				summary, err = warm()
			}
			if err != nil {
				return err
			}

			return app.OK(PrefetchResult{URLs: urls, Cache: app.Cache.Stats()},
				output.WithSummary(summary),
				output.WithMeta("state_dir", app.Store.Dir()),
			)
		},
	}
}

// prefetchURLs resolves named endpoints, or the prefetch set when none are named.
func prefetchURLs(app *appctx.App, names []string) ([]string, error) {
	if len(names) == 0 {
		urls := app.Registry.PrefetchURLs(app.Config.BaseURL)
		if len(urls) == 0 {
			return nil, output.ErrUsageHint("No endpoints are marked for prefetch", "Name endpoints explicitly or set prefetch: true in the endpoints file")
		}
		return urls, nil
	}
	urls := make([]string, 0, len(names))
	for _, name := range names {
		u, err := app.Registry.URL(app.Config.BaseURL, name, nil)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}
