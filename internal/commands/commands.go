package commands

import (
	"github.com/spf13/cobra"

	"github.com/littleredflower/dashcache/internal/appctx"
	"github.com/littleredflower/dashcache/internal/output"
)

// CommandInfo describes a CLI command.
type CommandInfo struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Actions     []string `json:"actions,omitempty"`
}

// CommandCategory groups commands by category.
type CommandCategory struct {
	Name     string        `json:"name"`
	Commands []CommandInfo `json:"commands"`
}

// commandCategories returns all command categories for the catalog.
func commandCategories() []CommandCategory {
	return []CommandCategory{
		{
			Name: "Cache",
			Commands: []CommandInfo{
				{Name: "fetch", Category: "cache", Description: "Fetch an endpoint through the cache"},
				{Name: "prefetch", Category: "cache", Description: "Warm the cache"},
				{Name: "endpoints", Category: "cache", Description: "List dashboard endpoints"},
			},
		},
		{
			Name: "Server",
			Commands: []CommandInfo{
				{Name: "serve", Category: "server", Description: "Run the caching proxy"},
				{Name: "stats", Category: "server", Description: "Show statistics from a running server"},
				{Name: "clear", Category: "server", Description: "Drop entries from a running server's cache"},
				{Name: "top", Category: "server", Description: "Live view of a running server's cache"},
			},
		},
		{
			Name: "Config",
			Commands: []CommandInfo{
				{Name: "config", Category: "config", Description: "Manage configuration", Actions: []string{"show", "init", "set", "unset"}},
			},
		},
		{
			Name: "Additional Commands",
			Commands: []CommandInfo{
				{Name: "commands", Category: "additional", Description: "List all commands"},
				{Name: "completion", Category: "additional", Description: "Generate shell completions", Actions: []string{"bash", "zsh", "fish", "powershell"}},
				{Name: "help", Category: "additional", Description: "Show help"},
				{Name: "version", Category: "additional", Description: "Show version"},
			},
		},
	}
}

// CatalogCommandNames returns all command names from the catalog.
// Used by tests to verify catalog matches registered commands.
func CatalogCommandNames() []string {
	categories := commandCategories()
	total := 0
	for _, cat := range categories {
		total += len(cat.Commands)
	}
	names := make([]string, 0, total)
	for _, cat := range categories {
		for _, cmd := range cat.Commands {
			names = append(names, cmd.Name)
		}
	}
	return names
}

// NewCommandsCmd creates the commands listing command.
func NewCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "commands",
		Aliases: []string{"cmds"},
		Short:   "List all available commands",
		Long:    "List all available dashcache commands organized by category.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := requireApp(app); err != nil {
				return err
			}

			return app.OK(commandCategories(),
				output.WithSummary("All available dashcache commands"),
				output.WithBreadcrumbs(
					output.Breadcrumb{
						Action:      "help",
						Cmd:         "dashcache --help",
						Description: "View help",
					},
				),
			)
		},
	}
}
