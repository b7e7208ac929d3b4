package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"

	"github.com/littleredflower/dashcache/internal/datacache"
	"github.com/littleredflower/dashcache/internal/observability"
	"github.com/littleredflower/dashcache/internal/tui/empty"
	"github.com/littleredflower/dashcache/internal/tui/format"
)

// Snapshot is one reading of a cache for the monitor.
type Snapshot struct {
	Stats         datacache.Stats
	CacheDuration string
	StaleGrace    string
	HitRate       float64
	Session       *observability.SessionMetrics
	Fetches       *observability.FetchSummary
	Entries       []datacache.EntryInfo
}

// SourceFunc reads the current snapshot.
type SourceFunc func(ctx context.Context) (Snapshot, error)

// ClearFunc drops every cache entry.
type ClearFunc func(ctx context.Context) error

// TopOptions configures the monitor.
type TopOptions struct {
	Title    string
	Interval time.Duration
	Source   SourceFunc
	Clear    ClearFunc
	Styles   *Styles

	// Server is named in the unreachable state when the first read fails.
	Server string
}

const (
	defaultTopInterval = 2 * time.Second
	topFetchTimeout    = 10 * time.Second
	minKeyWidth        = 16
)

type snapshotMsg struct {
	gen  int
	snap Snapshot
	err  error
	at   time.Time
}

type topTickMsg struct{ gen int }

type clearedMsg struct{ err error }

// Top is the live cache monitor model.
type Top struct {
	opts    TopOptions
	styles  *Styles
	spinner spinner.Model

	width   int
	loading bool
	// gen invalidates ticks scheduled before a manual refresh.
	gen int

	snap    Snapshot
	updated time.Time
	err     error
	notice  string
}

// NewTop creates the monitor.
func NewTop(opts TopOptions) Top {
	if opts.Interval <= 0 {
		opts.Interval = defaultTopInterval
	}
	if opts.Title == "" {
		opts.Title = "dashcache"
	}
	styles := opts.Styles
	if styles == nil {
		styles = NewStyles()
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Cursor
	return Top{opts: opts, styles: styles, spinner: s, width: 100, loading: true}
}

func (m Top) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

func (m Top) load() tea.Cmd {
	gen := m.gen
	source := m.opts.Source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), topFetchTimeout)
		defer cancel()
		snap, err := source(ctx)
		return snapshotMsg{gen: gen, snap: snap, err: err, at: time.Now()}
	}
}

func (m Top) schedule() tea.Cmd {
	gen := m.gen
	return tea.Tick(m.opts.Interval, func(time.Time) tea.Msg {
		return topTickMsg{gen: gen}
	})
}

func (m Top) clear() tea.Cmd {
	clearFn := m.opts.Clear
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), topFetchTimeout)
		defer cancel()
		return clearedMsg{err: clearFn(ctx)}
	}
}

func (m Top) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m.refresh("")
		case "c":
			if m.opts.Clear == nil {
				m.notice = "clear is not available"
				return m, nil
			}
			m.notice = "clearing…"
			return m, m.clear()
		}
		return m, nil

	case snapshotMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
			m.updated = msg.at
		}
		return m, m.schedule()

	case topTickMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m, m.load()

	case clearedMsg:
		if msg.err != nil {
			m.notice = "clear failed: " + msg.err.Error()
			return m, nil
		}
		return m.refresh("cache cleared")

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// refresh loads now and drops any tick already in flight.
func (m Top) refresh(notice string) (tea.Model, tea.Cmd) {
	m.gen++
	m.notice = notice
	cmds := []tea.Cmd{m.load()}
	if !m.loading {
		cmds = append(cmds, m.spinner.Tick)
	}
	m.loading = true
	return m, tea.Batch(cmds...)
}

func (m Top) View() string {
	var b strings.Builder

	title := m.styles.Title.Render(m.opts.Title)
	if m.loading {
		title += " " + m.spinner.View()
	}
	b.WriteString(title)
	b.WriteString("\n")

	if m.updated.IsZero() && m.err == nil {
		b.WriteString(m.styles.Muted.Render("loading…"))
		b.WriteString("\n")
		b.WriteString(m.styles.Help.Render(topHelp))
		return b.String()
	}

	if m.updated.IsZero() && m.opts.Server != "" {
		b.WriteString(m.styles.RenderEmpty(empty.ServerUnreachable(m.opts.Server)))
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render("✗ " + m.err.Error()))
		b.WriteString("\n")
		b.WriteString(m.styles.Help.Render(topHelp))
		return b.String()
	}

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(m.styles.Error.Render("✗ " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(m.entriesTable())
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(m.styles.Muted.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Help.Render(topHelp))
	return b.String()
}

const topHelp = "r refresh • c clear • q quit"

func (m Top) statusLine() string {
	st := m.snap.Stats
	parts := []string{
		m.styles.RenderKeyValue("entries", fmt.Sprintf("%d", st.Total)),
		m.styles.Fresh.UnsetPadding().Render(fmt.Sprintf("%d valid", st.Valid)),
		m.styles.Stale.UnsetPadding().Render(fmt.Sprintf("%d expired", st.Expired)),
		m.styles.RenderKeyValue("pending", fmt.Sprintf("%d", st.Pending)),
		m.styles.RenderKeyValue("hit rate", fmt.Sprintf("%.0f%%", m.snap.HitRate*100)),
	}
	if m.snap.CacheDuration != "" {
		parts = append(parts, m.styles.RenderKeyValue("ttl", m.snap.CacheDuration+"+"+m.snap.StaleGrace))
	}
	if f := m.snap.Fetches; f != nil && f.Fetches > 0 {
		parts = append(parts, m.styles.RenderKeyValue("p50", f.P50Latency.Round(time.Millisecond).String()))
	}
	if !m.updated.IsZero() {
		parts = append(parts, m.styles.Muted.Render("updated "+m.updated.Format("15:04:05")))
	}
	return strings.Join(parts, m.styles.Muted.Render(" │ "))
}

// keyWidth is what the key column may use once the fixed columns are laid out.
func (m Top) keyWidth() int {
	const fixed = 7 + 8 + 10 + 10 + 12
	return max(m.width-fixed, minKeyWidth)
}

func (m Top) entriesTable() string {
	if len(m.snap.Entries) == 0 {
		return m.styles.RenderEmpty(empty.NoEntries())
	}

	states := make([]datacache.State, len(m.snap.Entries))
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return m.styles.Header
			}
			if col == 0 && row >= 0 && row < len(states) {
				return m.styles.State(states[row])
			}
			return m.styles.Cell
		}).
		Headers("STATE", "AGE", "EXPIRES", "SIZE", "KEY")

	now := time.Now()
	kw := m.keyWidth()
	for i, e := range m.snap.Entries {
		states[i] = e.State
		t.Row(
			e.State.String(),
			format.Age(e.Age),
			format.Until(e.ExpiresAt, now),
			format.Size(e.Size),
			ansi.Truncate(e.Key, kw, "…"),
		)
	}
	return t.String()
}

// RunTop runs the monitor in the alternate screen until the user quits.
func RunTop(opts TopOptions) error {
	_, err := tea.NewProgram(NewTop(opts), tea.WithAltScreen()).Run()
	return err
}
