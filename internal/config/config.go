// Package config provides layered configuration loading.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config holds the resolved configuration.
type Config struct {
	// Upstream settings
	BaseURL        string        `json:"base_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxRetries     int           `json:"max_retries"`
	Gate           bool          `json:"gate"`

	// Cache settings
	CacheDuration       time.Duration `json:"cache_duration"`
	StaleGrace          time.Duration `json:"stale_grace"`
	PrefetchConcurrency int           `json:"prefetch_concurrency"`
	CacheDir            string        `json:"cache_dir"`
	EndpointsFile       string        `json:"endpoints_file"`

	// Server settings
	ListenAddr   string        `json:"listen_addr"`
	ServerURL    string        `json:"server_url"`
	WarmInterval time.Duration `json:"warm_interval"`

	// Output settings
	LogLevel string `json:"log_level"`
	Format   string `json:"format"`
	Locale   string `json:"locale"`
	Verbose  int    `json:"verbose"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `json:"-"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceLocal   Source = "local"
	SourceFile    Source = "file"
	SourceDotenv  Source = "dotenv"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "DASHCACHE_"

// DefaultEnvFile is read from the working directory unless overridden.
const DefaultEnvFile = ".env"

// Default returns the default configuration.
func Default() *Config {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}

	cfg := &Config{
		BaseURL:             "http://127.0.0.1:8000",
		RequestTimeout:      15 * time.Second,
		MaxRetries:          2,
		Gate:                true,
		CacheDuration:       10 * time.Minute,
		StaleGrace:          5 * time.Minute,
		PrefetchConcurrency: 4,
		CacheDir:            filepath.Join(cacheDir, "dashcache"),
		ListenAddr:          "127.0.0.1:8787",
		ServerURL:           "http://127.0.0.1:8787",
		LogLevel:            "warn",
		Format:              "auto",
		Sources:             make(map[string]string),
	}
	for _, f := range fields {
		cfg.Sources[f.key] = string(SourceDefault)
	}
	return cfg
}

// LoadOptions selects the optional layers of Load.
type LoadOptions struct {
	// ConfigFile is an explicit config file (--config). It must exist.
	ConfigFile string
	// EnvFile is the dotenv file; empty means DefaultEnvFile.
	EnvFile string
	// Flags holds command-line flags; only flags that were set apply.
	Flags *pflag.FlagSet
	// FlagKeys maps flag names to config keys.
	FlagKeys map[string]string
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > dotenv > --config > local > global > system > defaults
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, systemConfigPath(), SourceSystem)
	loadFromFile(cfg, GlobalConfigPath(), SourceGlobal)
	loadFromFile(cfg, LocalConfigPath(), SourceLocal)

	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		loadFromFile(cfg, opts.ConfigFile, SourceFile)
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	loadFromDotenv(cfg, envFile)
	LoadFromEnv(cfg)

	if opts.Flags != nil {
		if err := ApplyFlags(cfg, opts.Flags, opts.FlagKeys); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string, source Source) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return // File doesn't exist, skip
	}

	var fileCfg map[string]any
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	for _, f := range fields {
		raw, ok := stringValue(fileCfg[f.key])
		if !ok {
			continue
		}
		if err := f.set(cfg, raw); err != nil {
			fmt.Fprintf(os.Stderr, "warning: ignoring %s from %s: %v\n", f.key, path, err)
			continue
		}
		cfg.Sources[f.key] = string(source)
	}
}

// loadFromDotenv applies a .env file. Variables already present in the
// process environment win, as they do for godotenv.Load.
func loadFromDotenv(cfg *Config, path string) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: skipping malformed env file at %s: %v\n", path, err)
		}
		return
	}
	applyEnv(cfg, func(name string) (string, bool) {
		if v, set := os.LookupEnv(name); set && v != "" {
			return "", false
		}
		v, ok := vars[name]
		return v, ok
	}, SourceDotenv)
}

// LoadFromEnv loads configuration from DASHCACHE_* environment variables.
func LoadFromEnv(cfg *Config) {
	applyEnv(cfg, os.LookupEnv, SourceEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool), source Source) {
	for _, f := range fields {
		name := EnvVar(f.key)
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		if err := f.set(cfg, v); err != nil {
			fmt.Fprintf(os.Stderr, "warning: ignoring %s: %v\n", name, err)
			continue
		}
		cfg.Sources[f.key] = string(source)
	}
}

// ApplyFlags applies flags that were set on the command line. keys maps
// flag names to config keys; unmapped flags are ignored.
func ApplyFlags(cfg *Config, flags *pflag.FlagSet, keys map[string]string) error {
	var errs []error
	flags.Visit(func(fl *pflag.Flag) {
		key, ok := keys[fl.Name]
		if !ok {
			return
		}
		f, ok := fieldByKey(key)
		if !ok {
			return
		}
		if err := f.set(cfg, fl.Value.String()); err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", fl.Name, err))
			return
		}
		cfg.Sources[key] = string(SourceFlag)
	})
	return errors.Join(errs...)
}

// Validate checks values that no layer may get wrong.
func (cfg *Config) Validate() error {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an http(s) URL, got %q", cfg.BaseURL)
	}
	if cfg.CacheDuration <= 0 {
		return fmt.Errorf("cache_duration must be positive, got %s", cfg.CacheDuration)
	}
	if cfg.StaleGrace < 0 {
		return fmt.Errorf("stale_grace must not be negative, got %s", cfg.StaleGrace)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", cfg.RequestTimeout)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", cfg.MaxRetries)
	}
	return nil
}

// Setting is one resolved key for display.
type Setting struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"`
	Env    string `json:"env"`
}

// Settings lists every key with its value and source, in declaration order.
func (cfg *Config) Settings() []Setting {
	out := make([]Setting, 0, len(fields))
	for _, f := range fields {
		out = append(out, Setting{
			Key:    f.key,
			Value:  f.get(cfg),
			Source: cfg.Sources[f.key],
			Env:    EnvVar(f.key),
		})
	}
	return out
}

// EnvVar returns the environment variable for a config key.
func EnvVar(key string) string {
	return EnvPrefix + strings.ToUpper(key)
}

// stringValue flattens a decoded JSON scalar to the string form every
// layer shares. Empty strings and non-scalars are skipped.
func stringValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, val != ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

// parseEnvBool parses a boolean strictly.
func parseEnvBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", v)
	}
}

// Path helpers

func systemConfigPath() string {
	return "/etc/dashcache/config.json"
}

// GlobalConfigPath returns the per-user config file path.
func GlobalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.json")
}

// LocalConfigPath returns the project config file in the working directory.
func LocalConfigPath() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, ".dashcache", "config.json")
}

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "dashcache")
}

// NormalizeBaseURL ensures consistent URL format: a scheme and no trailing
// slash. Bare loopback hosts get http://, other bare hosts https://.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		if isLocalhost(raw) {
			raw = "http://" + raw
		} else {
			raw = "https://" + raw
		}
	}
	return strings.TrimRight(raw, "/")
}

// isLocalhost reports whether a bare host (with optional port and path) is
// localhost, a .localhost subdomain, 127.0.0.1 or [::1].
func isLocalhost(host string) bool {
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	hostWithoutPort := host
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		// Check if this is IPv6 bracketed address
		if !strings.HasPrefix(host, "[") || strings.HasPrefix(host, "[::1]:") {
			hostWithoutPort = host[:idx]
		}
	}

	switch {
	case hostWithoutPort == "localhost", strings.HasSuffix(hostWithoutPort, ".localhost"):
		return true
	case hostWithoutPort == "127.0.0.1", hostWithoutPort == "[::1]":
		return true
	}
	return false
}
