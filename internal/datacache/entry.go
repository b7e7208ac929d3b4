package datacache

import (
	"encoding/json"
	"fmt"
	"time"
)

// State represents the freshness of a cache entry at a point in time.
type State int

const (
	StateMissing State = iota // no entry for the key
	StateFresh                // now < ExpiresAt
	StateStale                // past ExpiresAt, inside the grace window
	StateDead                 // past ExpiresAt + grace; evicted on next access
)

func (s State) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// MarshalText lets State render by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateMissing, StateFresh, StateStale, StateDead} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown cache state %q", text)
}

// Entry is one cached JSON response, keyed by the full request URL.
type Entry struct {
	Key       string
	Data      json.RawMessage
	FetchedAt time.Time
	ExpiresAt time.Time
}

// newEntry is the only way entries are built, so ExpiresAt is always FetchedAt + ttl.
func newEntry(key string, data json.RawMessage, fetchedAt time.Time, ttl time.Duration) *Entry {
	return &Entry{
		Key:       key,
		Data:      data,
		FetchedAt: fetchedAt,
		ExpiresAt: fetchedAt.Add(ttl),
	}
}

// State classifies the entry relative to now.
func (e *Entry) State(now time.Time, grace time.Duration) State {
	switch {
	case now.Before(e.ExpiresAt):
		return StateFresh
	case now.Before(e.ExpiresAt.Add(grace)):
		return StateStale
	default:
		return StateDead
	}
}

// IsFresh reports whether the entry is within its TTL.
func (e *Entry) IsFresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// IsUsable reports whether the entry can still be served, fresh or stale.
func (e *Entry) IsUsable(now time.Time, grace time.Duration) bool {
	return now.Before(e.ExpiresAt.Add(grace))
}

// EntryInfo describes an entry without exposing its payload.
type EntryInfo struct {
	Key       string        `json:"key"`
	State     State         `json:"state"`
	FetchedAt time.Time     `json:"fetched_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Age       time.Duration `json:"age"`
	Size      int           `json:"size"`
}

// Stats is a point-in-time count of the cache contents.
// Expired counts every entry that is not fresh, including dead ones
// that have not been evicted yet.
type Stats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Expired int `json:"expired"`
	Pending int `json:"pending"`
}
