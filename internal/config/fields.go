package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field binds a config key to its parser and formatter. Every layer sets
// values through the same table, so files, env and flags agree on syntax.
type field struct {
	key string
	set func(cfg *Config, raw string) error
	get func(cfg *Config) string
}

var fields = []field{
	stringField("base_url", func(c *Config) *string { return &c.BaseURL }, NormalizeBaseURL),
	durationField("cache_duration", func(c *Config) *time.Duration { return &c.CacheDuration }),
	durationField("stale_grace", func(c *Config) *time.Duration { return &c.StaleGrace }),
	durationField("request_timeout", func(c *Config) *time.Duration { return &c.RequestTimeout }),
	intField("max_retries", func(c *Config) *int { return &c.MaxRetries }, 0, 10),
	intField("prefetch_concurrency", func(c *Config) *int { return &c.PrefetchConcurrency }, 1, 64),
	stringField("cache_dir", func(c *Config) *string { return &c.CacheDir }, nil),
	stringField("endpoints_file", func(c *Config) *string { return &c.EndpointsFile }, nil),
	stringField("listen_addr", func(c *Config) *string { return &c.ListenAddr }, nil),
	stringField("server_url", func(c *Config) *string { return &c.ServerURL }, NormalizeBaseURL),
	durationField("warm_interval", func(c *Config) *time.Duration { return &c.WarmInterval }),
	enumField("log_level", func(c *Config) *string { return &c.LogLevel }, "trace", "debug", "info", "warn", "error", "disabled"),
	enumField("format", func(c *Config) *string { return &c.Format }, "auto", "json", "markdown", "styled", "quiet"),
	stringField("locale", func(c *Config) *string { return &c.Locale }, nil),
	boolField("gate", func(c *Config) *bool { return &c.Gate }),
	intField("verbose", func(c *Config) *int { return &c.Verbose }, 0, 2),
}

func fieldByKey(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

// Canonical validates raw for key and returns the value as the config
// would store it, e.g. "90s" becomes "1m30s".
func Canonical(key, raw string) (string, error) {
	f, ok := fieldByKey(key)
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	cfg := Default()
	if err := f.set(cfg, raw); err != nil {
		return "", err
	}
	return f.get(cfg), nil
}

// Keys returns every config key in declaration order.
func Keys() []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key
	}
	return keys
}

func stringField(key string, ptr func(*Config) *string, normalize func(string) string) field {
	return field{
		key: key,
		set: func(c *Config, raw string) error {
			raw = strings.TrimSpace(raw)
			if normalize != nil {
				raw = normalize(raw)
			}
			*ptr(c) = raw
			return nil
		},
		get: func(c *Config) string { return *ptr(c) },
	}
}

func enumField(key string, ptr func(*Config) *string, allowed ...string) field {
	return field{
		key: key,
		set: func(c *Config, raw string) error {
			v := strings.ToLower(strings.TrimSpace(raw))
			for _, a := range allowed {
				if v == a {
					*ptr(c) = v
					return nil
				}
			}
			return fmt.Errorf("must be one of %s, got %q", strings.Join(allowed, ", "), raw)
		},
		get: func(c *Config) string { return *ptr(c) },
	}
}

func durationField(key string, ptr func(*Config) *time.Duration) field {
	return field{
		key: key,
		set: func(c *Config, raw string) error {
			d, err := time.ParseDuration(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("invalid duration %q", raw)
			}
			if d < 0 {
				return fmt.Errorf("duration must not be negative, got %s", d)
			}
			*ptr(c) = d
			return nil
		},
		get: func(c *Config) string { return ptr(c).String() },
	}
}

func intField(key string, ptr func(*Config) *int, lo, hi int) field {
	return field{
		key: key,
		set: func(c *Config, raw string) error {
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("invalid integer %q", raw)
			}
			if n < lo || n > hi {
				return fmt.Errorf("must be between %d and %d, got %d", lo, hi, n)
			}
			*ptr(c) = n
			return nil
		},
		get: func(c *Config) string { return strconv.Itoa(*ptr(c)) },
	}
}

func boolField(key string, ptr func(*Config) *bool) field {
	return field{
		key: key,
		set: func(c *Config, raw string) error {
			b, err := parseEnvBool(raw)
			if err != nil {
				return err
			}
			*ptr(c) = b
			return nil
		},
		get: func(c *Config) string { return strconv.FormatBool(*ptr(c)) },
	}
}
