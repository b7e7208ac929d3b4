// Package empty provides empty state messages for TUI components.
package empty

// Message represents an empty state message with optional hints.
type Message struct {
	Title   string
	Body    string
	Hints   []string
	Command string // suggested command to run
}

// NoEntries is shown when the monitored cache holds nothing.
func NoEntries() Message {
	return Message{
		Title:   "Cache is empty",
		Body:    "Nothing has been fetched through this server yet.",
		Command: "dashcache prefetch",
	}
}

// NoMatches is shown when a picker filter excludes every item.
func NoMatches(query string) Message {
	return Message{
		Title: "No matches",
		Body:  "Nothing matches \"" + query + "\".",
		Hints: []string{"Press esc to cancel", "Run dashcache endpoints for the full list"},
	}
}

// ServerUnreachable is shown when the admin API cannot be reached.
func ServerUnreachable(base string) Message {
	return Message{
		Title:   "Server unreachable",
		Body:    "No dashcache server answered at " + base + ".",
		Hints:   []string{"Start one with dashcache serve", "Point elsewhere with --server"},
		Command: "dashcache serve",
	}
}
