package completion

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littleredflower/dashcache/internal/endpoints"
	"github.com/littleredflower/dashcache/internal/tui/recents"
)

// newTestCompleter creates a Completer for testing with a fixed cache directory.
func newTestCompleter(cacheDir string) *Completer {
	return NewCompleter(func(cmd *cobra.Command) string { return cacheDir }, nil)
}

// newTestCmd creates a minimal cobra.Command with a context for testing completion functions.
func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func values(completions []cobra.Completion) []string {
	out := make([]string, len(completions))
	for i, c := range completions {
		name, _, _ := strings.Cut(string(c), "\t")
		out[i] = name
	}
	return out
}

func TestEndpointCompletionRegistryOrder(t *testing.T) {
	c := newTestCompleter(t.TempDir())

	got, directive := c.EndpointCompletion()(newTestCmd(), nil, "")
	assert.Equal(t, len(endpoints.Default().All()), len(got))
	assert.Equal(t, "dashboard", values(got)[0])
	assert.NotZero(t, directive&cobra.ShellCompDirectiveNoFileComp)
	assert.NotZero(t, directive&cobra.ShellCompDirectiveKeepOrder)

	_, desc, ok := strings.Cut(string(got[0]), "\t")
	require.True(t, ok)
	assert.Equal(t, "Aggregate dashboard payload", desc)
}

func TestEndpointCompletionRecentFirst(t *testing.T) {
	dir := t.TempDir()
	store := recents.NewStore(dir)
	store.Add("sentiment", "https://a.example.com")
	store.Add("risk", "https://b.example.com")
	store.Add("gone_endpoint", "https://a.example.com")

	got, _ := newTestCompleter(dir).EndpointCompletion()(newTestCmd(), nil, "")
	names := values(got)
	require.GreaterOrEqual(t, len(names), 3)
	assert.Equal(t, []string{"risk", "sentiment", "dashboard"}, names[:3])
	assert.NotContains(t, names, "gone_endpoint")
}

func TestEndpointCompletionFilters(t *testing.T) {
	c := newTestCompleter(t.TempDir())

	got, _ := c.EndpointCompletion()(newTestCmd(), nil, "WATCH")
	assert.Equal(t, []string{"watchlist_quotes", "watchlist_trend", "watchlist_search"}, values(got))

	got, _ = c.EndpointCompletion()(newTestCmd(), []string{"watchlist_quotes"}, "watch")
	assert.Equal(t, []string{"watchlist_trend", "watchlist_search"}, values(got))

	got, _ = c.EndpointCompletion()(newTestCmd(), nil, "nothing-like-this")
	assert.Empty(t, got)
}

func TestParamCompletion(t *testing.T) {
	c := newTestCompleter(t.TempDir())

	got, directive := c.ParamCompletion()(newTestCmd(), []string{"watchlist_search"}, "")
	assert.Equal(t, []string{"q=", "count="}, values(got))
	assert.NotZero(t, directive&cobra.ShellCompDirectiveNoSpace)

	got, _ = c.ParamCompletion()(newTestCmd(), []string{"watchlist_search"}, "c")
	assert.Equal(t, []string{"count="}, values(got))

	got, _ = c.ParamCompletion()(newTestCmd(), []string{"report"}, "")
	assert.Equal(t, []string{"date="}, values(got), "path and query params are not repeated")

	got, _ = c.ParamCompletion()(newTestCmd(), nil, "")
	assert.Empty(t, got)

	got, _ = c.ParamCompletion()(newTestCmd(), []string{"unknown"}, "")
	assert.Empty(t, got)
}

func TestDefaultCacheDirFunc(t *testing.T) {
	t.Run("env", func(t *testing.T) {
		t.Setenv("DASHCACHE_CACHE_DIR", "/tmp/dashcache-env")
		assert.Equal(t, "/tmp/dashcache-env", DefaultCacheDirFunc(newTestCmd()))
	})

	t.Run("flag wins", func(t *testing.T) {
		t.Setenv("DASHCACHE_CACHE_DIR", "/tmp/dashcache-env")
		root := &cobra.Command{Use: "dashcache"}
		root.PersistentFlags().String("cache-dir", "", "")
		child := &cobra.Command{Use: "fetch"}
		root.AddCommand(child)
		child.SetContext(context.Background())
		require.NoError(t, root.PersistentFlags().Set("cache-dir", "/tmp/dashcache-flag"))
		assert.Equal(t, "/tmp/dashcache-flag", DefaultCacheDirFunc(child))
	})
}
