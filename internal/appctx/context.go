// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/littleredflower/dashcache/internal/api"
	"github.com/littleredflower/dashcache/internal/config"
	"github.com/littleredflower/dashcache/internal/datacache"
	"github.com/littleredflower/dashcache/internal/endpoints"
	"github.com/littleredflower/dashcache/internal/logger"
	"github.com/littleredflower/dashcache/internal/observability"
	"github.com/littleredflower/dashcache/internal/output"
	"github.com/littleredflower/dashcache/internal/resilience"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config   *config.Config
	Output   *output.Writer
	Logger   zerolog.Logger
	Client   *api.Client
	Cache    *datacache.Cache
	Registry *endpoints.Registry

	// Resilience; Gate is nil when the gate is disabled
	Store *resilience.Store
	Gate  *resilience.Gate

	// Observability
	Collector *observability.SessionCollector
	FetchLog  *observability.FetchLog
	Hooks     *observability.Hooks

	// Flags holds the global flag values
	Flags GlobalFlags

	stdout io.Writer
	stderr io.Writer
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON   bool
	Quiet  bool
	MD     bool // Literal Markdown syntax output
	Styled bool // Force ANSI styled output (even when piped)

	// Behavior flags
	Verbose int // 0=off, 1=cache decisions, 2=cache+requests (stacks with -v -v or -vv)
	Stats   bool
	NoGate  bool

	// Layered into config by the root command
	BaseURL    string
	CacheDir   string
	ConfigFile string
}

// Option adjusts NewApp.
type Option func(*App)

// WithWriters redirects stdout and stderr, for tests.
func WithWriters(stdout, stderr io.Writer) Option {
	return func(a *App) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{Config: cfg, stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(a)
	}

	registry := endpoints.Default()
	if cfg.EndpointsFile != "" {
		r, err := endpoints.LoadFile(cfg.EndpointsFile)
		if err != nil {
			return nil, output.ErrUsageHint(fmt.Sprintf("Cannot load endpoints file %s", cfg.EndpointsFile), err.Error())
		}
		registry = r
	}
	a.Registry = registry

	a.Logger = logger.New(a.stderr, logger.ParseLevel(cfg.LogLevel), logger.IsTerminal(a.stderr))

	// Collector always runs to gather stats; hooks control output verbosity.
	// Level starts from config; ApplyFlags raises it from -v flags.
	a.Collector = observability.NewSessionCollector()
	a.FetchLog = observability.NewFetchLog()
	a.Hooks = observability.NewHooks(cfg.Verbose, a.Collector, a.FetchLog, observability.NewTraceWriterTo(a.stderr))

	a.Store = resilience.NewStore(filepath.Join(cfg.CacheDir, resilience.DefaultDirName))

	clientOpts := []api.Option{
		api.WithTimeout(cfg.RequestTimeout),
		api.WithMaxRetries(cfg.MaxRetries),
		api.WithHooks(a.Hooks),
	}
	locale := output.DetectLocale()
	if cfg.Locale != "" {
		locale = output.NewLocale(cfg.Locale)
	}
	clientOpts = append(clientOpts, api.WithAcceptLanguage(locale.AcceptLanguage()))
	if cfg.Gate {
		a.Gate = resilience.NewGateFromConfig(a.Store, resilience.DefaultConfig())
		clientOpts = append(clientOpts, api.WithGate(a.Gate))
	}
	a.Client = api.NewClient(clientOpts...)

	a.Cache = datacache.New(a.Client, cacheOptions(cfg, a.Logger, a.Hooks))

	a.Output = output.New(output.Options{
		Format: output.ParseFormat(cfg.Format),
		Writer: a.stdout,
		Locale: locale,
	})
	return a, nil
}

// cacheOptions maps config onto the cache. A configured grace of zero
// means no grace at all, which the cache spells as a negative value.
func cacheOptions(cfg *config.Config, log zerolog.Logger, hooks datacache.Hooks) datacache.Options {
	grace := cfg.StaleGrace
	if grace == 0 {
		grace = -1
	}
	return datacache.Options{
		CacheDuration:       cfg.CacheDuration,
		StaleGrace:          grace,
		PrefetchConcurrency: cfg.PrefetchConcurrency,
		Logger:              log.With().Str("component", "datacache").Logger(),
		Hooks:               hooks,
	}
}

// AdminClient returns a client for talking to a running dashcache server.
// Admin calls are never retried and bypass the gate.
func (a *App) AdminClient() *api.Client {
	return api.NewClient(
		api.WithTimeout(a.Config.RequestTimeout),
		api.WithMaxRetries(0),
		api.WithHooks(a.Hooks),
	)
}

// ApplyFlags applies global flag values to the app configuration.
func (a *App) ApplyFlags() {
	format := output.ParseFormat(a.Config.Format)
	switch {
	case a.Flags.Quiet:
		format = output.FormatQuiet
	case a.Flags.JSON:
		format = output.FormatJSON
	case a.Flags.Styled:
		format = output.FormatStyled
	case a.Flags.MD:
		format = output.FormatMarkdown
	}
	a.Output = output.New(output.Options{
		Format: format,
		Writer: a.stdout,
		Locale: a.locale(),
	})

	// DASHCACHE_DEBUG can be "1", "2", or "true" (treated as 2)
	level := max(a.Flags.Verbose, a.Config.Verbose)
	if debugEnv := os.Getenv("DASHCACHE_DEBUG"); debugEnv != "" {
		if n, err := strconv.Atoi(debugEnv); err == nil {
			level = max(level, n)
		} else if debugEnv == "true" {
			level = 2
		}
	}

	if a.Hooks != nil {
		a.Hooks.SetLevel(level)
	}
	if level >= 2 && a.Logger.GetLevel() > zerolog.DebugLevel {
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
}

func (a *App) locale() output.Locale {
	if a.Config.Locale != "" {
		return output.NewLocale(a.Config.Locale)
	}
	return output.DetectLocale()
}

// OK outputs a success response, automatically including stats if --stats flag is set.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if a.Flags.Stats && a.Collector != nil {
		opts = append(opts, output.WithMeta("stats", a.Collector.Summary()))
	}
	return a.Output.OK(data, opts...)
}

// Err outputs an error response, printing stats to stderr if --stats flag is set.
func (a *App) Err(err error) error {
	if outputErr := a.Output.Err(err); outputErr != nil {
		return outputErr
	}

	// Quiet output is meant for programs; keep stderr clean there too
	if a.Flags.Stats && a.Collector != nil && !a.isMachineOutput() {
		stats := a.Collector.Summary()
		a.printStatsToStderr(&stats)
	}
	return nil
}

// isMachineOutput returns true if the output mode is intended for programmatic consumption.
func (a *App) isMachineOutput() bool {
	if a.Flags.Quiet {
		return true
	}
	return a.Config != nil && a.Config.Format == "quiet"
}

// printStatsToStderr outputs a compact stats line to stderr.
func (a *App) printStatsToStderr(stats *observability.SessionMetrics) {
	if stats == nil {
		return
	}
	if line := FormatStatsLine(stats); line != "" {
		fmt.Fprintf(a.stderr, "\nStats: %s\n", line)
	}
}

// FormatStatsLine renders a session summary as "120ms | 2 requests | ...".
func FormatStatsLine(stats *observability.SessionMetrics) string {
	var parts []string

	duration := stats.EndTime.Sub(stats.StartTime)
	if duration < time.Second {
		parts = append(parts, fmt.Sprintf("%dms", duration.Milliseconds()))
	} else {
		parts = append(parts, fmt.Sprintf("%.1fs", duration.Seconds()))
	}

	if stats.TotalRequests > 0 {
		parts = append(parts, plural(stats.TotalRequests, "request", "requests"))
	}

	if served := stats.CacheHits + stats.StaleHits; served > 0 {
		parts = append(parts, fmt.Sprintf("%d cached (%.0f%%)", served, stats.HitRate()*100))
	}
	if stats.StaleHits > 0 {
		parts = append(parts, fmt.Sprintf("%d stale", stats.StaleHits))
	}

	if stats.TotalRetries > 0 {
		parts = append(parts, plural(stats.TotalRetries, "retry", "retries"))
	}

	if stats.FailedRequests > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", stats.FailedRequests))
	}

	return strings.Join(parts, " | ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}

// IsInteractive returns true if the terminal supports interactive TUI.
func (a *App) IsInteractive() bool {
	if a.Flags.JSON || a.Flags.Quiet {
		return false
	}
	return logger.IsTerminal(a.stdout)
}

// Stdout returns the writer commands print to.
func (a *App) Stdout() io.Writer { return a.stdout }

// Stderr returns the writer for diagnostics.
func (a *App) Stderr() io.Writer { return a.stderr }

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
