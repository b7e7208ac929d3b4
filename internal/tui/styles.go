package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/littleredflower/dashcache/internal/datacache"
	"github.com/littleredflower/dashcache/internal/tui/empty"
)

// Styles holds the styled components for the TUI.
type Styles struct {
	theme Theme

	Title  lipgloss.Style
	Muted  lipgloss.Style
	Bold   lipgloss.Style
	Error  lipgloss.Style
	Header lipgloss.Style
	Cell   lipgloss.Style
	Box    lipgloss.Style
	Cursor lipgloss.Style
	Help   lipgloss.Style

	Fresh lipgloss.Style
	Stale lipgloss.Style
	Dead  lipgloss.Style
}

// NewStyles creates Styles from the resolved theme.
func NewStyles() *Styles {
	return NewStylesWithTheme(ResolveTheme())
}

// NewStylesWithTheme creates Styles with a custom theme.
func NewStylesWithTheme(theme Theme) *Styles {
	s := &Styles{theme: theme}

	s.Title = lipgloss.NewStyle().Bold(true).Foreground(theme.Primary)
	s.Muted = lipgloss.NewStyle().Foreground(theme.Muted)
	s.Bold = lipgloss.NewStyle().Bold(true).Foreground(theme.Text)
	s.Error = lipgloss.NewStyle().Bold(true).Foreground(theme.Error)
	s.Header = lipgloss.NewStyle().Bold(true).Foreground(theme.Primary).Padding(0, 1)
	s.Cell = lipgloss.NewStyle().Foreground(theme.Text).Padding(0, 1)
	s.Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border).
		Padding(0, 1)
	s.Cursor = lipgloss.NewStyle().Bold(true).Foreground(theme.Primary)
	s.Help = lipgloss.NewStyle().Foreground(theme.Muted).MarginTop(1)

	s.Fresh = lipgloss.NewStyle().Foreground(theme.Fresh).Padding(0, 1)
	s.Stale = lipgloss.NewStyle().Foreground(theme.Stale).Padding(0, 1)
	s.Dead = lipgloss.NewStyle().Foreground(theme.Dead).Padding(0, 1)

	return s
}

// Theme returns the current theme.
func (s *Styles) Theme() Theme {
	return s.theme
}

// State returns the cell style for an entry state.
func (s *Styles) State(st datacache.State) lipgloss.Style {
	switch st {
	case datacache.StateFresh:
		return s.Fresh
	case datacache.StateStale:
		return s.Stale
	default:
		return s.Dead
	}
}

// RenderKeyValue renders "key: value" with a muted key.
func (s *Styles) RenderKeyValue(key, value string) string {
	return s.Muted.Render(key+": ") + value
}

// RenderStatus renders a check or cross with a message.
func (s *Styles) RenderStatus(ok bool, message string) string {
	if ok {
		return s.Fresh.UnsetPadding().Render("✓ " + message)
	}
	return s.Error.Render("✗ " + message)
}

// RenderEmpty renders an empty state: title, body, then hints and command.
func (s *Styles) RenderEmpty(m empty.Message) string {
	var b strings.Builder
	b.WriteString(s.Muted.Bold(true).Render(m.Title))
	if m.Body != "" {
		b.WriteString("\n")
		b.WriteString(s.Muted.Render(m.Body))
	}
	for _, h := range m.Hints {
		b.WriteString("\n")
		b.WriteString(s.Muted.Render("  • " + h))
	}
	if m.Command != "" {
		b.WriteString("\n")
		b.WriteString(s.Muted.Render("  $ ") + m.Command)
	}
	return b.String()
}
