package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/littleredflower/dashcache/internal/tui/empty"
)

// PickerItem is one choice in the picker.
type PickerItem struct {
	Value       string
	Description string
}

const pickerMaxRows = 12

type pickerModel struct {
	title    string
	items    []PickerItem
	filtered []PickerItem
	input    textinput.Model
	cursor   int
	styles   *Styles
	chosen   string
	canceled bool
}

func newPickerModel(title string, items []PickerItem, styles *Styles) pickerModel {
	ti := textinput.New()
	ti.Placeholder = "type to filter"
	ti.Prompt = "› "
	ti.Focus()
	m := pickerModel{title: title, items: items, input: ti, styles: styles}
	m.applyFilter()
	return m
}

func (m *pickerModel) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(m.input.Value()))
	m.filtered = nil
	for _, it := range m.items {
		if q == "" ||
			strings.Contains(strings.ToLower(it.Value), q) ||
			strings.Contains(strings.ToLower(it.Description), q) {
			m.filtered = append(m.filtered, it)
		}
	}
	if m.cursor >= len(m.filtered) {
		m.cursor = max(len(m.filtered)-1, 0)
	}
}

func (m pickerModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.canceled = true
			return m, tea.Quit
		case "enter":
			if len(m.filtered) > 0 {
				m.chosen = m.filtered[m.cursor].Value
				return m, tea.Quit
			}
			return m, nil
		case "up", "ctrl+p":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "ctrl+n":
			if m.cursor < len(m.filtered)-1 {
				m.cursor++
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m pickerModel) View() string {
	if m.chosen != "" || m.canceled {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if len(m.filtered) == 0 {
		b.WriteString(m.styles.RenderEmpty(empty.NoMatches(m.input.Value())))
		b.WriteString("\n")
	}

	// Keep the cursor inside the visible window.
	start := 0
	if m.cursor >= pickerMaxRows {
		start = m.cursor - pickerMaxRows + 1
	}
	end := min(start+pickerMaxRows, len(m.filtered))
	for i := start; i < end; i++ {
		it := m.filtered[i]
		line := "  " + it.Value
		if i == m.cursor {
			line = m.styles.Cursor.Render("› " + it.Value)
		}
		if it.Description != "" {
			line += "  " + m.styles.Muted.Render(it.Description)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(m.styles.Help.Render("↑/↓ move • enter select • esc cancel"))
	return b.String()
}

// Pick shows a filterable list and returns the chosen value.
func Pick(title string, items []PickerItem) (string, error) {
	final, err := tea.NewProgram(newPickerModel(title, items, NewStyles())).Run()
	if err != nil {
		return "", err
	}
	m := final.(pickerModel) //nolint:errcheck // Run returns the model it was given
	if m.canceled || m.chosen == "" {
		return "", ErrCanceled
	}
	return m.chosen, nil
}
