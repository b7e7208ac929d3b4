package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/littleredflower/dashcache/internal/appctx"
	"github.com/littleredflower/dashcache/internal/output"
)

// EndpointRow is one registry entry as listed by the endpoints command.
type EndpointRow struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Params      string `json:"params,omitempty"`
	Prefetch    bool   `json:"prefetch"`
	Description string `json:"description,omitempty"`
}

// NewEndpointsCmd creates the endpoints command.
func NewEndpointsCmd() *cobra.Command {
	var prefetchOnly bool

	cmd := &cobra.Command{
		Use:     "endpoints",
		Aliases: []string{"eps"},
		Short:   "List the named endpoints",
		Long:    "List the upstream endpoints known by name, including any loaded from the endpoints file.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := requireApp(app); err != nil {
				return err
			}

			var rows []EndpointRow
			for _, ep := range app.Registry.All() {
				if prefetchOnly && !ep.Prefetch {
					continue
				}
				rows = append(rows, EndpointRow{
					Name:        ep.Name,
					Path:        ep.Path,
					Params:      strings.Join(ep.Params, ", "),
					Prefetch:    ep.Prefetch,
					Description: ep.Description,
				})
			}

			source := "built-in"
			if app.Config.EndpointsFile != "" {
				source = app.Config.EndpointsFile
			}
			return app.OK(rows,
				output.WithSummary(fmt.Sprintf("%d endpoints (%s)", len(rows), source)),
				output.WithBreadcrumbs(
					output.Breadcrumb{
						Action:      "fetch",
						Cmd:         "dashcache fetch <name>",
						Description: "Fetch an endpoint",
					},
				),
			)
		},
	}

	cmd.Flags().BoolVar(&prefetchOnly, "prefetch", false, "Only list endpoints in the prefetch set")
	return cmd
}
