// Package recents remembers which endpoints were fetched lately, so pickers
// can offer them first.
package recents

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the store file inside the state directory.
const FileName = "recents.json"

// DefaultMaxItems caps the list; the oldest items fall off first.
const DefaultMaxItems = 20

// Item is one recently fetched endpoint.
type Item struct {
	Name     string    `json:"name"`
	Upstream string    `json:"upstream,omitempty"`
	Count    int       `json:"count"`
	UsedAt   time.Time `json:"used_at"`
}

// Store manages recently fetched endpoints, most recent first.
type Store struct {
	mu        sync.RWMutex
	items     []Item
	maxItems  int
	path      string
	lastError error // last error from save(), for debugging
	now       func() time.Time
}

// NewStore creates a store backed by <dir>/recents.json.
func NewStore(dir string) *Store {
	s := &Store{
		maxItems: DefaultMaxItems,
		path:     filepath.Join(dir, FileName),
		now:      time.Now,
	}
	s.load()
	return s
}

// Add records a fetch of name against upstream, moving it to the front.
func (s *Store) Add(name, upstream string) {
	var snapshot []Item
	func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		item := Item{Name: name, Upstream: upstream, Count: 1, UsedAt: s.now()}
		filtered := make([]Item, 0, len(s.items)+1)
		for _, existing := range s.items {
			if existing.Name == name && existing.Upstream == upstream {
				item.Count = existing.Count + 1
				continue
			}
			filtered = append(filtered, existing)
		}

		items := append([]Item{item}, filtered...)
		if len(items) > s.maxItems {
			items = items[:s.maxItems]
		}
		s.items = items
		snapshot = s.copyItems()
	}()

	// Save outside the lock to avoid blocking readers during I/O
	s.saveSnapshot(snapshot)
}

// Get returns recent items, optionally only those for upstream.
// The result is a copy.
func (s *Store) Get(upstream string) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if upstream == "" {
		return s.copyItems()
	}
	var filtered []Item
	for _, item := range s.items {
		if item.Upstream == upstream {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// Names returns the recent endpoint names for upstream, most recent first.
func (s *Store) Names(upstream string) []string {
	items := s.Get(upstream)
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	return names
}

// Clear forgets every item.
func (s *Store) Clear() {
	var snapshot []Item
	func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.items = nil
		snapshot = s.copyItems()
	}()
	s.saveSnapshot(snapshot)
}

// copyItems must be called with the lock held.
func (s *Store) copyItems() []Item {
	result := make([]Item, len(s.items))
	copy(result, s.items)
	return result
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path) //nolint:gosec // G304: Path is from trusted config
	if err != nil {
		return
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return
	}
	if len(items) > s.maxItems {
		items = items[:s.maxItems]
	}
	s.items = items
}

// saveSnapshot writes items to disk. Errors are kept in lastError since
// recents are non-critical. Safe to call without holding the lock.
func (s *Store) saveSnapshot(items []Item) {
	setErr := func(err error) {
		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		setErr(err)
		return
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		setErr(err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		setErr(err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		setErr(err)
		return
	}
	setErr(nil)
}

// LastError returns the last error from a save operation, if any.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}
