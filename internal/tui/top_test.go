package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littleredflower/dashcache/internal/datacache"
	"github.com/littleredflower/dashcache/internal/observability"
)

func testSnapshot() Snapshot {
	now := time.Now()
	return Snapshot{
		Stats:         datacache.Stats{Total: 2, Valid: 1, Expired: 1, Pending: 0},
		CacheDuration: "10m0s",
		StaleGrace:    "5m0s",
		HitRate:       0.75,
		Fetches:       &observability.FetchSummary{Keys: 2, Fetches: 3, P50Latency: 120 * time.Millisecond},
		Entries: []datacache.EntryInfo{
			{
				Key:       "http://127.0.0.1:8000/api/index/overview",
				State:     datacache.StateFresh,
				ExpiresAt: now.Add(5 * time.Minute),
				Age:       5 * time.Minute,
				Size:      2048,
			},
			{
				Key:       "http://127.0.0.1:8000/api/sentiment",
				State:     datacache.StateStale,
				ExpiresAt: now.Add(-time.Minute),
				Age:       11 * time.Minute,
				Size:      300,
			},
		},
	}
}

func newTestTop(source SourceFunc, clear ClearFunc) Top {
	return NewTop(TopOptions{
		Title:    "dashcache top",
		Interval: time.Hour,
		Source:   source,
		Clear:    clear,
		Styles:   NewStylesWithTheme(NoColorTheme()),
	})
}

func step(t *testing.T, m Top, msg tea.Msg) (Top, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	top, ok := next.(Top)
	require.True(t, ok)
	return top, cmd
}

func TestTopLoadsSnapshot(t *testing.T) {
	calls := 0
	m := newTestTop(func(context.Context) (Snapshot, error) {
		calls++
		return testSnapshot(), nil
	}, nil)

	assert.Contains(t, m.View(), "loading")

	msg := m.load()()
	m, cmd := step(t, m, msg)
	assert.Equal(t, 1, calls)
	assert.False(t, m.loading)
	assert.NotNil(t, cmd, "next tick is scheduled")

	view := m.View()
	assert.Contains(t, view, "dashcache top")
	assert.Contains(t, view, "1 valid")
	assert.Contains(t, view, "1 expired")
	assert.Contains(t, view, "75%")
	assert.Contains(t, view, "10m0s+5m0s")
	assert.Contains(t, view, "fresh")
	assert.Contains(t, view, "stale")
	assert.Contains(t, view, "2.0 KiB")
	assert.Contains(t, view, "expired")
}

func TestTopKeepsLastSnapshotOnError(t *testing.T) {
	m := newTestTop(func(context.Context) (Snapshot, error) { return testSnapshot(), nil }, nil)
	m, _ = step(t, m, m.load()())

	m, _ = step(t, m, snapshotMsg{gen: m.gen, err: errors.New("connection refused")})
	view := m.View()
	assert.Contains(t, view, "connection refused")
	assert.Contains(t, view, "2.0 KiB", "previous entries stay on screen")
}

func TestTopIgnoresStaleGenerations(t *testing.T) {
	m := newTestTop(func(context.Context) (Snapshot, error) { return testSnapshot(), nil }, nil)
	m, _ = step(t, m, m.load()())

	m, cmd := step(t, m, runes("r"))
	require.NotNil(t, cmd)
	assert.Equal(t, 1, m.gen)
	assert.True(t, m.loading)

	m, cmd = step(t, m, topTickMsg{gen: 0})
	assert.Nil(t, cmd, "tick from before the refresh is dropped")

	m, _ = step(t, m, snapshotMsg{gen: 0, snap: Snapshot{}})
	assert.True(t, m.loading, "old snapshot is ignored")
}

func TestTopTickLoads(t *testing.T) {
	m := newTestTop(func(context.Context) (Snapshot, error) { return testSnapshot(), nil }, nil)
	_, cmd := step(t, m, topTickMsg{gen: m.gen})
	require.NotNil(t, cmd)
	msg, ok := cmd().(snapshotMsg)
	require.True(t, ok)
	assert.Equal(t, 2, msg.snap.Stats.Total)
}

func TestTopClear(t *testing.T) {
	cleared := false
	m := newTestTop(
		func(context.Context) (Snapshot, error) { return testSnapshot(), nil },
		func(context.Context) error { cleared = true; return nil },
	)

	m, cmd := step(t, m, runes("c"))
	require.NotNil(t, cmd)
	msg := cmd()
	assert.True(t, cleared)

	m, cmd = step(t, m, msg)
	assert.NotNil(t, cmd)
	assert.Equal(t, "cache cleared", m.notice)
	assert.Equal(t, 1, m.gen)
}

func TestTopClearFailure(t *testing.T) {
	m := newTestTop(
		func(context.Context) (Snapshot, error) { return testSnapshot(), nil },
		func(context.Context) error { return errors.New("forbidden") },
	)
	m, cmd := step(t, m, runes("c"))
	m, _ = step(t, m, cmd())
	assert.Equal(t, "clear failed: forbidden", m.notice)
}

func TestTopClearUnavailable(t *testing.T) {
	m := newTestTop(func(context.Context) (Snapshot, error) { return testSnapshot(), nil }, nil)
	m, cmd := step(t, m, runes("c"))
	assert.Nil(t, cmd)
	assert.Equal(t, "clear is not available", m.notice)
}

func TestTopQuit(t *testing.T) {
	m := newTestTop(func(context.Context) (Snapshot, error) { return Snapshot{}, nil }, nil)
	for _, key := range []tea.KeyMsg{runes("q"), {Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
		_, cmd := step(t, m, key)
		require.NotNil(t, cmd)
		assert.Equal(t, tea.Quit(), cmd())
	}
}

func TestTopTruncatesKeysToWidth(t *testing.T) {
	snap := testSnapshot()
	snap.Entries[0].Key = "http://127.0.0.1:8000/api/" + strings.Repeat("x", 200)
	m := newTestTop(func(context.Context) (Snapshot, error) { return snap, nil }, nil)
	m, _ = step(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = step(t, m, m.load()())

	view := m.View()
	assert.Contains(t, view, "…")
	assert.NotContains(t, view, strings.Repeat("x", 100))
}

func TestTopEmptyCache(t *testing.T) {
	m := newTestTop(func(context.Context) (Snapshot, error) { return Snapshot{}, nil }, nil)
	m, _ = step(t, m, m.load()())
	view := m.View()
	assert.Contains(t, view, "Cache is empty")
	assert.Contains(t, view, "dashcache prefetch")
}

func TestTopUnreachableServer(t *testing.T) {
	m := NewTop(TopOptions{
		Server:   "http://127.0.0.1:8787",
		Interval: time.Hour,
		Source:   func(context.Context) (Snapshot, error) { return Snapshot{}, errors.New("connection refused") },
		Styles:   NewStylesWithTheme(NoColorTheme()),
	})
	m, _ = step(t, m, m.load()())

	view := m.View()
	assert.Contains(t, view, "Server unreachable")
	assert.Contains(t, view, "http://127.0.0.1:8787")
	assert.Contains(t, view, "connection refused")
}
