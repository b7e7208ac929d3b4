package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpinnerModelDone(t *testing.T) {
	m := newSpinnerModel("Warming cache", NewStylesWithTheme(NoColorTheme()))
	assert.Contains(t, m.View(), "Warming cache")

	next, cmd := m.Update(spinnerDoneMsg{result: "3 endpoints warmed"})
	require.NotNil(t, cmd)
	done := next.(spinnerModel)
	assert.Contains(t, done.View(), "✓ 3 endpoints warmed")
}

func TestSpinnerModelError(t *testing.T) {
	m := newSpinnerModel("Warming cache", NewStylesWithTheme(NoColorTheme()))
	next, _ := m.Update(spinnerDoneMsg{err: errors.New("HTTP 503")})
	assert.Contains(t, next.(spinnerModel).View(), "✗ HTTP 503")
}

func TestSpinnerModelQuit(t *testing.T) {
	m := newSpinnerModel("Warming cache", NewStylesWithTheme(NoColorTheme()))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.True(t, next.(spinnerModel).quitting)
	assert.Empty(t, next.(spinnerModel).View())
}
