package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileConfig is the on-disk shape written by `config init`. Durations are
// Go duration strings; unset fields are omitted so lower layers still apply.
type FileConfig struct {
	BaseURL             string `json:"base_url,omitempty"`
	CacheDuration       string `json:"cache_duration,omitempty"`
	StaleGrace          string `json:"stale_grace,omitempty"`
	RequestTimeout      string `json:"request_timeout,omitempty"`
	MaxRetries          *int   `json:"max_retries,omitempty"`
	PrefetchConcurrency *int   `json:"prefetch_concurrency,omitempty"`
	CacheDir            string `json:"cache_dir,omitempty"`
	EndpointsFile       string `json:"endpoints_file,omitempty"`
	ListenAddr          string `json:"listen_addr,omitempty"`
	ServerURL           string `json:"server_url,omitempty"`
	WarmInterval        string `json:"warm_interval,omitempty"`
	LogLevel            string `json:"log_level,omitempty"`
	Format              string `json:"format,omitempty"`
	Locale              string `json:"locale,omitempty"`
	Gate                *bool  `json:"gate,omitempty"`
}

// FileConfigFrom captures the values of cfg that differ from the defaults.
func FileConfigFrom(cfg *Config) FileConfig {
	def := Default()
	var fc FileConfig
	str := func(v, d string) string {
		if v == d {
			return ""
		}
		return v
	}
	fc.BaseURL = str(cfg.BaseURL, def.BaseURL)
	fc.CacheDuration = str(cfg.CacheDuration.String(), def.CacheDuration.String())
	fc.StaleGrace = str(cfg.StaleGrace.String(), def.StaleGrace.String())
	fc.RequestTimeout = str(cfg.RequestTimeout.String(), def.RequestTimeout.String())
	if cfg.MaxRetries != def.MaxRetries {
		n := cfg.MaxRetries
		fc.MaxRetries = &n
	}
	if cfg.PrefetchConcurrency != def.PrefetchConcurrency {
		n := cfg.PrefetchConcurrency
		fc.PrefetchConcurrency = &n
	}
	fc.CacheDir = str(cfg.CacheDir, def.CacheDir)
	fc.EndpointsFile = str(cfg.EndpointsFile, def.EndpointsFile)
	fc.ListenAddr = str(cfg.ListenAddr, def.ListenAddr)
	fc.ServerURL = str(cfg.ServerURL, def.ServerURL)
	if cfg.WarmInterval != def.WarmInterval {
		fc.WarmInterval = cfg.WarmInterval.String()
	}
	fc.LogLevel = str(cfg.LogLevel, def.LogLevel)
	fc.Format = str(cfg.Format, def.Format)
	fc.Locale = str(cfg.Locale, def.Locale)
	if cfg.Gate != def.Gate {
		g := cfg.Gate
		fc.Gate = &g
	}
	return fc
}

// Save writes fc to path, creating parent directories.
func Save(path string, fc FileConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
