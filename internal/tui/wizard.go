package tui

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/littleredflower/dashcache/internal/config"
)

// Config scopes offered by the wizard.
const (
	ScopeGlobal = "global"
	ScopeLocal  = "local"
)

// WizardValues holds the wizard answers as typed.
type WizardValues struct {
	BaseURL        string
	CacheDuration  string
	StaleGrace     string
	RequestTimeout string
	MaxRetries     string
	Scope          string
}

// WizardValuesFrom seeds the answers from the resolved config.
func WizardValuesFrom(cfg *config.Config) WizardValues {
	return WizardValues{
		BaseURL:        cfg.BaseURL,
		CacheDuration:  cfg.CacheDuration.String(),
		StaleGrace:     cfg.StaleGrace.String(),
		RequestTimeout: cfg.RequestTimeout.String(),
		MaxRetries:     strconv.Itoa(cfg.MaxRetries),
		Scope:          ScopeGlobal,
	}
}

// ValidateBaseURL accepts absolute http(s) URLs.
func ValidateBaseURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("enter an http:// or https:// URL")
	}
	return nil
}

// ValidatePositiveDuration accepts Go durations greater than zero.
func ValidatePositiveDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return errors.New("enter a duration like 10m or 30s")
	}
	if d <= 0 {
		return errors.New("must be greater than zero")
	}
	return nil
}

// ValidateGrace accepts zero or a positive duration.
func ValidateGrace(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return errors.New("enter a duration like 5m, or 0 to disable")
	}
	if d < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

// ValidateRetries accepts 0 through 10.
func ValidateRetries(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > 10 {
		return errors.New("enter a number from 0 to 10")
	}
	return nil
}

// FileConfig validates the answers and converts them to the on-disk
// shape, keeping only values that differ from the defaults.
func (v WizardValues) FileConfig() (config.FileConfig, error) {
	checks := []struct {
		name  string
		value string
		check func(string) error
	}{
		{"base URL", v.BaseURL, ValidateBaseURL},
		{"cache duration", v.CacheDuration, ValidatePositiveDuration},
		{"stale grace", v.StaleGrace, ValidateGrace},
		{"request timeout", v.RequestTimeout, ValidatePositiveDuration},
		{"retries", v.MaxRetries, ValidateRetries},
	}
	for _, c := range checks {
		if err := c.check(c.value); err != nil {
			return config.FileConfig{}, fmt.Errorf("%s: %w", c.name, err)
		}
	}

	cfg := config.Default()
	cfg.BaseURL = config.NormalizeBaseURL(strings.TrimSpace(v.BaseURL))
	cfg.CacheDuration, _ = time.ParseDuration(strings.TrimSpace(v.CacheDuration))
	cfg.StaleGrace, _ = time.ParseDuration(strings.TrimSpace(v.StaleGrace))
	cfg.RequestTimeout, _ = time.ParseDuration(strings.TrimSpace(v.RequestTimeout))
	cfg.MaxRetries, _ = strconv.Atoi(strings.TrimSpace(v.MaxRetries))
	return config.FileConfigFrom(cfg), nil
}

// Path returns the config file the chosen scope writes to.
func (v WizardValues) Path() string {
	if v.Scope == ScopeLocal {
		return config.LocalConfigPath()
	}
	return config.GlobalConfigPath()
}

// NewConfigForm builds the wizard form bound to v.
func NewConfigForm(v *WizardValues) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Dashboard API base URL").
				Placeholder("http://127.0.0.1:8000").
				Value(&v.BaseURL).
				Validate(ValidateBaseURL),
		).Title("Upstream"),
		huh.NewGroup(
			huh.NewInput().
				Title("Cache duration").
				Description("How long a response is served without revalidating.").
				Value(&v.CacheDuration).
				Validate(ValidatePositiveDuration),
			huh.NewInput().
				Title("Stale grace").
				Description("How long an expired response may still be served. 0 disables.").
				Value(&v.StaleGrace).
				Validate(ValidateGrace),
		).Title("Cache"),
		huh.NewGroup(
			huh.NewInput().
				Title("Request timeout").
				Value(&v.RequestTimeout).
				Validate(ValidatePositiveDuration),
			huh.NewInput().
				Title("Retries after a failed attempt").
				Value(&v.MaxRetries).
				Validate(ValidateRetries),
		).Title("Requests"),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should this be saved?").
				Options(
					huh.NewOption("Global ("+config.GlobalConfigPath()+")", ScopeGlobal),
					huh.NewOption("Local (.dashcache/config.json)", ScopeLocal),
				).
				Value(&v.Scope),
		),
	)
}

// RunConfigWizard walks the user through the main settings, starting from
// cfg, and returns the answers.
func RunConfigWizard(cfg *config.Config) (WizardValues, error) {
	v := WizardValuesFrom(cfg)
	if err := NewConfigForm(&v).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return v, ErrCanceled
		}
		return v, err
	}
	return v, nil
}

// Confirm shows a yes/no confirmation prompt.
func Confirm(message string, defaultValue bool) (bool, error) {
	result := defaultValue
	err := huh.NewConfirm().
		Title(message).
		Affirmative("Yes").
		Negative("No").
		Value(&result).
		Run()
	if err != nil {
		return defaultValue, err
	}
	return result, nil
}
