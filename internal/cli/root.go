// Package cli wires the root command and process exit codes.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/littleredflower/dashcache/internal/appctx"
	"github.com/littleredflower/dashcache/internal/commands"
	"github.com/littleredflower/dashcache/internal/config"
	"github.com/littleredflower/dashcache/internal/output"
	"github.com/littleredflower/dashcache/internal/tui"
	"github.com/littleredflower/dashcache/internal/version"
)

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"base-url":  "base_url",
	"cache-dir": "cache_dir",
}

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:   "dashcache",
		Short: "Caching client and proxy for the market dashboard API",
		Long: `dashcache fetches dashboard data through a stale-while-revalidate cache.

Responses stay fresh for the cache duration, are served stale for a grace
window while one background request refreshes them, and are refetched after
that. Run "dashcache serve" to share one cache between dashboard clients.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for help and version commands
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(config.LoadOptions{
				ConfigFile: flags.ConfigFile,
				Flags:      cmd.Flags(),
				FlagKeys:   flagKeys,
			})
			if err != nil {
				return output.ErrUsageHint("Invalid configuration", err.Error())
			}
			if flags.NoGate {
				cfg.Gate = false
				cfg.Sources["gate"] = string(config.SourceFlag)
			}

			app, err := appctx.NewApp(cfg, appctx.WithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			app.Flags = flags
			app.ApplyFlags()

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVarP(&flags.MD, "md", "m", false, "Output as Markdown (portable)")
	cmd.PersistentFlags().BoolVar(&flags.Styled, "styled", false, "Force styled output (ANSI colors)")

	// Context flags
	cmd.PersistentFlags().StringVar(&flags.BaseURL, "base-url", "", "Upstream dashboard API base URL")
	cmd.PersistentFlags().StringVar(&flags.CacheDir, "cache-dir", "", "Directory for resilience state")
	cmd.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "Extra config file, applied after the standard locations")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for cache decisions, -vv for requests)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")
	cmd.PersistentFlags().BoolVar(&flags.NoGate, "no-gate", false, "Bypass the circuit breaker and rate limiter")

	return cmd
}

// AddCommands registers every subcommand on root.
func AddCommands(root *cobra.Command) {
	root.AddCommand(
		commands.NewFetchCmd(),
		commands.NewPrefetchCmd(),
		commands.NewEndpointsCmd(),
		commands.NewServeCmd(),
		commands.NewStatsCmd(),
		commands.NewClearCmd(),
		commands.NewTopCmd(),
		commands.NewConfigCmd(),
		commands.NewCommandsCmd(),
		commands.NewVersionCmd(),
	)
}

// Execute runs the CLI and exits with the code for the outcome.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Run executes args and returns the process exit code. Errors are written
// through the output writer so scripts get the same envelope as successes.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	AddCommands(cmd)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	executedCmd, err := cmd.ExecuteContextC(ctx)
	if err == nil {
		return output.ExitOK
	}

	err = transformCobraError(err)
	apiErr := output.AsError(err)

	if executedCmd != nil {
		if app := appctx.FromContext(executedCmd.Context()); app != nil {
			_ = app.Err(err)
			return apiErr.ExitCode()
		}
	}

	// The app never started: pick the format from the raw flags
	pf := cmd.PersistentFlags()
	format := output.FormatAuto
	quiet, _ := pf.GetBool("quiet")
	jsonFlag, _ := pf.GetBool("json")
	styled, _ := pf.GetBool("styled")
	md, _ := pf.GetBool("md")
	switch {
	case quiet:
		format = output.FormatQuiet
	case jsonFlag:
		format = output.FormatJSON
	case styled:
		format = output.FormatStyled
	case md:
		format = output.FormatMarkdown
	}
	_ = output.New(output.Options{Format: format, Writer: stdout}).Err(err)
	return apiErr.ExitCode()
}

var shorthandPattern = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)

// transformCobraError turns cobra's parse errors into usage errors with
// consistent wording.
func transformCobraError(err error) error {
	if errors.Is(err, tui.ErrCanceled) {
		return output.ErrUsage("Canceled")
	}

	msg := err.Error()

	// "flag needs an argument: --FLAG" → "--FLAG requires a value"
	if flag, ok := strings.CutPrefix(msg, "flag needs an argument: "); ok {
		return output.ErrUsage(flag + " requires a value")
	}

	// "unknown flag: --FLAG" → "Unknown option: --FLAG"
	if flag, ok := strings.CutPrefix(msg, "unknown flag: "); ok {
		return output.ErrUsage("Unknown option: " + flag)
	}

	// "unknown shorthand flag: 'X' in -X" → "Unknown option: -X"
	if m := shorthandPattern.FindStringSubmatch(msg); len(m) > 1 {
		return output.ErrUsage("Unknown option: " + m[1])
	}

	if strings.HasPrefix(msg, "unknown command ") {
		return output.ErrUsageHint(msg, "Run: dashcache --help")
	}

	if strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "arg(s), received") ||
		strings.HasPrefix(msg, "required flag(s) ") {
		return output.ErrUsage(msg)
	}

	return err
}
