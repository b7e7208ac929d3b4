package recents

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upstream = "http://127.0.0.1:8000"

func TestStore_AddAndGet(t *testing.T) {
	store := NewStore(t.TempDir())

	store.Add("sentiment", upstream)

	items := store.Get("")
	require.Len(t, items, 1)
	assert.Equal(t, "sentiment", items[0].Name)
	assert.Equal(t, upstream, items[0].Upstream)
	assert.Equal(t, 1, items[0].Count)
	assert.False(t, items[0].UsedAt.IsZero())
}

func TestStore_AddCountsRepeats(t *testing.T) {
	store := NewStore(t.TempDir())
	clock := time.Date(2026, 3, 20, 9, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	store.Add("sentiment", upstream)
	clock = clock.Add(time.Minute)
	store.Add("sentiment", upstream)

	items := store.Get("")
	require.Len(t, items, 1, "should deduplicate by name and upstream")
	assert.Equal(t, 2, items[0].Count)
	assert.Equal(t, clock, items[0].UsedAt)
}

func TestStore_MaintainsOrder(t *testing.T) {
	store := NewStore(t.TempDir())

	store.Add("dashboard", upstream)
	store.Add("sentiment", upstream)
	store.Add("risk", upstream)

	assert.Equal(t, []string{"risk", "sentiment", "dashboard"}, store.Names(""))
}

func TestStore_ReaddMovesToFront(t *testing.T) {
	store := NewStore(t.TempDir())

	store.Add("dashboard", upstream)
	store.Add("sentiment", upstream)
	store.Add("dashboard", upstream)

	assert.Equal(t, []string{"dashboard", "sentiment"}, store.Names(""))
}

func TestStore_FilterByUpstream(t *testing.T) {
	store := NewStore(t.TempDir())

	store.Add("sentiment", upstream)
	store.Add("sentiment", "https://quotes.example.com")
	store.Add("risk", upstream)

	assert.Equal(t, []string{"risk", "sentiment"}, store.Names(upstream))
	assert.Equal(t, []string{"sentiment"}, store.Names("https://quotes.example.com"))
	assert.Len(t, store.Get(""), 3)
}

func TestStore_MaxItems(t *testing.T) {
	store := NewStore(t.TempDir())

	for i := range DefaultMaxItems + 5 {
		store.Add(fmt.Sprintf("ep%02d", i), upstream)
	}

	items := store.Get("")
	assert.Len(t, items, DefaultMaxItems, "should cap at maxItems")
	assert.Equal(t, fmt.Sprintf("ep%02d", DefaultMaxItems+4), items[0].Name)
}

func TestStore_Clear(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	store.Add("sentiment", upstream)

	store.Clear()

	assert.Empty(t, store.Get(""))
	assert.Empty(t, NewStore(dir).Get(""), "clear is persisted")
}

func TestStore_Persistence(t *testing.T) {
	dir := t.TempDir()

	store1 := NewStore(dir)
	store1.Add("fund_flow", upstream)
	store1.Add("fund_flow", upstream)

	items := NewStore(dir).Get("")
	require.Len(t, items, 1)
	assert.Equal(t, "fund_flow", items[0].Name)
	assert.Equal(t, 2, items[0].Count)

	_, err := os.Stat(filepath.Join(dir, FileName))
	assert.NoError(t, err, "recents.json should exist")
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := NewStore(t.TempDir())
	store.Add("sentiment", upstream)

	items := store.Get("")
	items[0].Name = "modified"

	assert.Equal(t, "sentiment", store.Get("")[0].Name, "Get should return a copy")
}

func TestStore_LastError(t *testing.T) {
	store := NewStore(t.TempDir())
	assert.Nil(t, store.LastError())

	store.Add("sentiment", upstream)
	assert.Nil(t, store.LastError())
}

func TestStore_LastErrorOnUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	store := NewStore(filepath.Join(blocker, "state"))
	store.Add("sentiment", upstream)

	assert.Error(t, store.LastError())
	assert.Equal(t, []string{"sentiment"}, store.Names(""), "memory state survives a failed save")
}

func TestStore_HandlesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("not valid json"), 0o600))

	store := NewStore(dir)
	assert.Empty(t, store.Get(""), "should start fresh on corrupt file")
}
