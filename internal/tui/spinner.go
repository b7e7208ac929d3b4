package tui

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrCanceled is returned when the user quits a view before it finished.
var ErrCanceled = errors.New("canceled")

type spinnerModel struct {
	spinner  spinner.Model
	message  string
	styles   *Styles
	done     bool
	result   string
	err      error
	quitting bool
}

type spinnerDoneMsg struct {
	result string
	err    error
}

func newSpinnerModel(message string, styles *Styles) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Cursor
	return spinnerModel{spinner: s, message: message, styles: styles}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
	case spinnerDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	switch {
	case m.quitting:
		return ""
	case m.done && m.err != nil:
		return m.styles.RenderStatus(false, m.err.Error()) + "\n"
	case m.done:
		return m.styles.RenderStatus(true, m.result) + "\n"
	default:
		return fmt.Sprintf("%s %s\n", m.spinner.View(), m.message)
	}
}

// Spinner shows an animated message while work runs.
type Spinner struct {
	message string
	out     io.Writer
}

// NewSpinner creates a spinner that draws to out (stderr when nil).
func NewSpinner(message string, out io.Writer) *Spinner {
	return &Spinner{message: message, out: out}
}

// Run executes fn while the spinner is shown and returns its result.
// Quitting the spinner returns ErrCanceled; fn keeps running.
func (s *Spinner) Run(fn func() (string, error)) (string, error) {
	opts := []tea.ProgramOption{tea.WithInput(nil)}
	if s.out != nil {
		opts = append(opts, tea.WithOutput(s.out))
	}
	p := tea.NewProgram(newSpinnerModel(s.message, NewStyles()), opts...)

	go func() {
		result, err := fn()
		p.Send(spinnerDoneMsg{result: result, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return "", err
	}
	m := final.(spinnerModel) //nolint:errcheck // Run returns the model it was given
	if m.quitting {
		return "", ErrCanceled
	}
	return m.result, m.err
}
