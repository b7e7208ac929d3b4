// Package completion provides shell completion for endpoint names and
// endpoint parameters.
package completion

import (
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/littleredflower/dashcache/internal/appctx"
	"github.com/littleredflower/dashcache/internal/config"
	"github.com/littleredflower/dashcache/internal/endpoints"
	"github.com/littleredflower/dashcache/internal/tui/recents"
)

// CacheDirFunc returns the directory holding the recents file.
type CacheDirFunc func(cmd *cobra.Command) string

// DefaultCacheDirFunc returns the cache directory by checking (in order):
// 1. --cache-dir flag on the root command
// 2. App config from context (set by PersistentPreRunE)
// 3. DASHCACHE_CACHE_DIR environment variable
// 4. Default cache directory
//
// During __complete PersistentPreRunE does not run, so cache_dir from config
// files is not honored. Loading them would slow every tab press.
func DefaultCacheDirFunc(cmd *cobra.Command) string {
	if root := cmd.Root(); root != nil {
		if flag := root.PersistentFlags().Lookup("cache-dir"); flag != nil && flag.Changed {
			return flag.Value.String()
		}
	}
	if app := appctx.FromContext(cmd.Context()); app != nil {
		return app.Config.CacheDir
	}
	if v := os.Getenv(config.EnvPrefix + "CACHE_DIR"); v != "" {
		return v
	}
	return config.Default().CacheDir
}

// Completer provides tab completion functions for the dashcache CLI.
// It reads the registry and the recents file and does NOT build the App.
type Completer struct {
	getCacheDir CacheDirFunc
	registry    *endpoints.Registry
}

// NewCompleter creates a new Completer.
// If getCacheDir is nil, DefaultCacheDirFunc is used. If registry is nil,
// the built-in registry is used.
func NewCompleter(getCacheDir CacheDirFunc, registry *endpoints.Registry) *Completer {
	if getCacheDir == nil {
		getCacheDir = DefaultCacheDirFunc
	}
	if registry == nil {
		registry = endpoints.Default()
	}
	return &Completer{getCacheDir: getCacheDir, registry: registry}
}

// registryFor prefers the app's registry, which includes any override file.
func (c *Completer) registryFor(cmd *cobra.Command) *endpoints.Registry {
	if app := appctx.FromContext(cmd.Context()); app != nil && app.Registry != nil {
		return app.Registry
	}
	return c.registry
}

// EndpointCompletion completes endpoint names. Recently fetched endpoints
// come first, then the rest in registry order. Names already given as
// arguments are skipped so variadic commands like prefetch don't repeat them.
func (c *Completer) EndpointCompletion() cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		eps := c.registryFor(cmd).All()
		byName := make(map[string]endpoints.Endpoint, len(eps))
		for _, ep := range eps {
			byName[ep.Name] = ep
		}

		ordered := make([]string, 0, len(eps))
		seen := make(map[string]bool, len(eps))
		for _, name := range recents.NewStore(c.getCacheDir(cmd)).Names("") {
			if _, ok := byName[name]; ok && !seen[name] {
				ordered = append(ordered, name)
				seen[name] = true
			}
		}
		for _, ep := range eps {
			if !seen[ep.Name] {
				ordered = append(ordered, ep.Name)
				seen[ep.Name] = true
			}
		}

		needle := strings.ToLower(toComplete)
		var completions []cobra.Completion
		for _, name := range ordered {
			if slices.Contains(args, name) {
				continue
			}
			if !strings.Contains(strings.ToLower(name), needle) {
				continue
			}
			completions = append(completions, cobra.CompletionWithDesc(name, byName[name].Description))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveKeepOrder
	}
}

// ParamCompletion completes --param keys for the endpoint named by the
// first argument, as "key=" with no trailing space.
func (c *Completer) ParamCompletion() cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		ep, ok := c.registryFor(cmd).Lookup(args[0])
		if !ok {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		keys := append(ep.PathParams(), ep.Params...)
		var completions []cobra.Completion
		seen := make(map[string]bool, len(keys))
		for _, key := range keys {
			if seen[key] || !strings.HasPrefix(key+"=", toComplete) {
				continue
			}
			seen[key] = true
			completions = append(completions, cobra.Completion(key+"="))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
	}
}
