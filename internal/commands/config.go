package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/littleredflower/dashcache/internal/appctx"
	"github.com/littleredflower/dashcache/internal/config"
	"github.com/littleredflower/dashcache/internal/output"
	"github.com/littleredflower/dashcache/internal/tui"
)

// NewConfigCmd creates the config command for managing configuration.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage dashcache configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > env > .env > --config > local > global > system > defaults

Config locations:
  - System: /etc/dashcache/config.json
  - Global: ~/.config/dashcache/config.json
  - Local:  .dashcache/config.json

Every key can also be set with DASHCACHE_<KEY>, e.g. DASHCACHE_CACHE_DURATION=5m.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigInitCmd(),
		newConfigSetCmd(),
		newConfigUnsetCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the current effective configuration with source information.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}
}

func runConfigShow(cmd *cobra.Command) error {
	app := appctx.FromContext(cmd.Context())
	if err := requireApp(app); err != nil {
		return err
	}

	return app.OK(app.Config.Settings(),
		output.WithSummary("Effective configuration"),
		output.WithBreadcrumbs(
			output.Breadcrumb{
				Action:      "set",
				Cmd:         "dashcache config set <key> <value>",
				Description: "Set config value",
			},
			output.Breadcrumb{
				Action:      "init",
				Cmd:         "dashcache config init",
				Description: "Write a config file",
			},
		),
	)
}

func newConfigInitCmd() *cobra.Command {
	var (
		local bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file",
		Long: `Write a config file holding the settings that differ from the defaults.

On a terminal a short wizard asks for the main settings first. Elsewhere the
current effective configuration is written as is.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := requireApp(app); err != nil {
				return err
			}

			var (
				fc   config.FileConfig
				path string
			)
			if app.IsInteractive() {
				answers, err := tui.RunConfigWizard(app.Config)
				if err != nil {
					return err
				}
				if fc, err = answers.FileConfig(); err != nil {
					return output.ErrUsage(err.Error())
				}
				path = answers.Path()
			} else {
				fc = config.FileConfigFrom(app.Config)
				path = config.GlobalConfigPath()
				if local {
					path = config.LocalConfigPath()
				}
			}

			if _, err := os.Stat(path); err == nil && !force {
				overwrite := false
				if app.IsInteractive() {
					overwrite, _ = tui.Confirm(fmt.Sprintf("%s exists. Overwrite?", path), false)
				}
				if !overwrite {
					return app.OK(map[string]any{
						"exists": true,
						"path":   path,
					}, output.WithSummary(fmt.Sprintf("Config file already exists: %s", path)))
				}
			}

			if err := config.Save(path, fc); err != nil {
				return err
			}

			return app.OK(map[string]any{
				"path":   path,
				"config": fc,
				"status": "created",
			},
				output.WithSummary(fmt.Sprintf("Wrote %s", path)),
				output.WithBreadcrumbs(
					output.Breadcrumb{
						Action:      "show",
						Cmd:         "dashcache config show",
						Description: "View config",
					},
				),
			)
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Write .dashcache/config.json in the current directory")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func configScopePath(global bool) (scope, path string) {
	if global {
		return "global", config.GlobalConfigPath()
	}
	return "local", config.LocalConfigPath()
}

// readConfigFile returns the raw keys of a config file, or an empty map.
func readConfigFile(path string) map[string]any {
	configData := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil { //nolint:gosec // G304: Path is from trusted config location
		_ = json.Unmarshal(data, &configData) // Ignore error - start fresh if invalid
	}
	return configData
}

func writeConfigFile(path string, configData map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(configData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := atomicWriteFile(path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func newConfigSetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the local or global config file.

Valid keys: ` + strings.Join(config.Keys(), ", "),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := requireApp(app); err != nil {
				return err
			}

			key, value := args[0], args[1]
			canonical, err := config.Canonical(key, value)
			if err != nil {
				return output.ErrUsageHint(
					fmt.Sprintf("Invalid value for %s: %v", key, err),
					"Valid keys: "+strings.Join(config.Keys(), ", "),
				)
			}

			scope, path := configScopePath(global)
			configData := readConfigFile(path)
			configData[key] = canonical
			if err := writeConfigFile(path, configData); err != nil {
				return err
			}

			return app.OK(map[string]any{
				"key":    key,
				"value":  canonical,
				"scope":  scope,
				"path":   path,
				"status": "set",
			},
				output.WithSummary(fmt.Sprintf("Set %s = %s (%s)", key, canonical, scope)),
				output.WithBreadcrumbs(
					output.Breadcrumb{
						Action:      "show",
						Cmd:         "dashcache config show",
						Description: "View config",
					},
				),
			)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "Set in global config (~/.config/dashcache/)")
	return cmd
}

func newConfigUnsetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := requireApp(app); err != nil {
				return err
			}

			key := args[0]
			scope, path := configScopePath(global)
			configData := readConfigFile(path)
			if _, ok := configData[key]; !ok {
				return app.OK(map[string]any{
					"key":    key,
					"scope":  scope,
					"status": "not_set",
				}, output.WithSummary(fmt.Sprintf("%s is not set in %s config", key, scope)))
			}

			delete(configData, key)
			if err := writeConfigFile(path, configData); err != nil {
				return err
			}

			return app.OK(map[string]any{
				"key":    key,
				"scope":  scope,
				"path":   path,
				"status": "unset",
			}, output.WithSummary(fmt.Sprintf("Unset %s (%s)", key, scope)))
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "Unset in global config (~/.config/dashcache/)")
	return cmd
}

// atomicWriteFile writes data to a file atomically using temp+rename.
// The file is created with 0600 permissions.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0o600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Windows: rename fails when the destination exists; remove and retry.
	if err := os.Rename(tmpPath, path); err != nil {
		if runtime.GOOS != "windows" {
			os.Remove(tmpPath)
			return err
		}
		_ = os.Remove(path)
		return os.Rename(tmpPath, path)
	}
	return nil
}
