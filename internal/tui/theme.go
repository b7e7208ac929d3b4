// Package tui provides the terminal views: the live cache monitor, the
// config wizard and a small endpoint picker.
package tui

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/littleredflower/dashcache/internal/config"
)

// ThemeEnv names a colors.toml file that overrides the user theme.
const ThemeEnv = "DASHCACHE_THEME"

// Theme is the palette shared by every view.
type Theme struct {
	Primary lipgloss.AdaptiveColor
	Muted   lipgloss.AdaptiveColor
	Border  lipgloss.AdaptiveColor
	Text    lipgloss.AdaptiveColor

	// Entry states
	Fresh lipgloss.AdaptiveColor
	Stale lipgloss.AdaptiveColor
	Dead  lipgloss.AdaptiveColor

	Error lipgloss.AdaptiveColor
}

// DefaultTheme returns the built-in palette.
func DefaultTheme() Theme {
	return Theme{
		Primary: lipgloss.AdaptiveColor{Light: "#1a73e8", Dark: "#8ab4f8"},
		Muted:   lipgloss.AdaptiveColor{Light: "#80868b", Dark: "#6e7681"},
		Border:  lipgloss.AdaptiveColor{Light: "#dadce0", Dark: "#3c4043"},
		Text:    lipgloss.AdaptiveColor{Light: "#202124", Dark: "#e8eaed"},
		Fresh:   lipgloss.AdaptiveColor{Light: "#1e8e3e", Dark: "#81c995"},
		Stale:   lipgloss.AdaptiveColor{Light: "#f9ab00", Dark: "#fdd663"},
		Dead:    lipgloss.AdaptiveColor{Light: "#9aa0a6", Dark: "#5f6368"},
		Error:   lipgloss.AdaptiveColor{Light: "#d93025", Dark: "#f28b82"},
	}
}

// NoColorTheme leaves every color empty, which lipgloss renders as plain text.
func NoColorTheme() Theme {
	return Theme{}
}

// ResolveTheme picks the palette: NO_COLOR disables color, then
// $DASHCACHE_THEME, then <config dir>/theme/colors.toml, then the default.
func ResolveTheme() Theme {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return NoColorTheme()
	}
	if path := os.Getenv(ThemeEnv); path != "" {
		if theme, err := LoadThemeFromFile(path); err == nil {
			return theme
		}
	}
	if theme, err := LoadThemeFromFile(UserThemePath()); err == nil {
		return theme
	}
	return DefaultTheme()
}

// UserThemePath is where a user theme is looked up. The theme directory
// may be a symlink into another theme system.
func UserThemePath() string {
	return filepath.Join(config.GlobalConfigDir(), "theme", "colors.toml")
}

// LoadThemeFromFile reads a terminal colors.toml and maps it onto Theme.
func LoadThemeFromFile(path string) (Theme, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from env or config dir
	if err != nil {
		return Theme{}, err
	}
	return themeFromColors(parseColors(data)), nil
}

var colorLine = regexp.MustCompile(`^([A-Za-z0-9_]+)\s*=\s*["']?(#[0-9A-Fa-f]{3}(?:[0-9A-Fa-f]{3})?)["']?\s*(?:#.*)?$`)

// parseColors reads `key = "#rrggbb"` lines. Comments, blank lines and
// anything that is not a hex color are skipped.
func parseColors(data []byte) map[string]string {
	colors := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if m := colorLine.FindStringSubmatch(line); m != nil {
			colors[m[1]] = m[2]
		}
	}
	return colors
}

// themeSlots maps theme fields to colors.toml keys, first match wins.
// Terminal themes are usually dark, so only the Dark variant is replaced.
var themeSlots = []struct {
	keys []string
	slot func(*Theme) *lipgloss.AdaptiveColor
}{
	{[]string{"accent", "color4"}, func(t *Theme) *lipgloss.AdaptiveColor { return &t.Primary }},
	{[]string{"color8", "color0"}, func(t *Theme) *lipgloss.AdaptiveColor { return &t.Muted }},
	{[]string{"color8", "color0"}, func(t *Theme) *lipgloss.AdaptiveColor { return &t.Border }},
	{[]string{"foreground"}, func(t *Theme) *lipgloss.AdaptiveColor { return &t.Text }},
	{[]string{"color2"}, func(t *Theme) *lipgloss.AdaptiveColor { return &t.Fresh }},
	{[]string{"color3"}, func(t *Theme) *lipgloss.AdaptiveColor { return &t.Stale }},
	{[]string{"color7"}, func(t *Theme) *lipgloss.AdaptiveColor { return &t.Dead }},
	{[]string{"color1"}, func(t *Theme) *lipgloss.AdaptiveColor { return &t.Error }},
}

func themeFromColors(colors map[string]string) Theme {
	theme := DefaultTheme()
	for _, s := range themeSlots {
		for _, k := range s.keys {
			if v, ok := colors[k]; ok {
				s.slot(&theme).Dark = v
				break
			}
		}
	}
	return theme
}
