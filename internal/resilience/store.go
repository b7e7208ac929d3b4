// Package resilience protects the upstream dashboard API from dashcache and
// dashcache from a failing upstream. Circuit breaker and rate limiter state is
// kept per host in a small JSON file guarded by an flock, so every dashcache
// process on the machine shares it.
package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
)

const (
	// StateFileName is the default state file name.
	StateFileName = "state.json"

	// DefaultDirName is the subdirectory within the cache dir.
	DefaultDirName = "resilience"

	// LockTimeout bounds how long an operation waits for the file lock.
	// Past it the operation proceeds unlocked rather than hang the CLI.
	LockTimeout = 100 * time.Millisecond
)

// Store reads and writes State under an exclusive file lock.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, or at DefaultDir() when dir is empty.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{dir: dir}
}

// DefaultDir returns <user cache dir>/dashcache/resilience.
func DefaultDir() string {
	if cacheDir := os.Getenv("XDG_CACHE_HOME"); cacheDir != "" {
		return filepath.Join(cacheDir, "dashcache", DefaultDirName)
	}
	if cacheDir, err := os.UserCacheDir(); err == nil && cacheDir != "" {
		return filepath.Join(cacheDir, "dashcache", DefaultDirName)
	}
	return filepath.Join(os.TempDir(), "dashcache", DefaultDirName)
}

// Dir returns the state directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path to the state file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, StateFileName)
}

func (s *Store) lock() (*flock.Flock, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, err
	}

	fl := flock.New(filepath.Join(s.dir, ".lock"))
	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}
	if !locked {
		return nil, nil
	}
	return fl, nil
}

func unlock(fl *flock.Flock) {
	if fl != nil {
		_ = fl.Unlock()
	}
}

// Load reads the state. A missing or corrupt file yields an empty state.
func (s *Store) Load() (*State, error) {
	fl, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock(fl)

	return s.read()
}

func (s *Store) read() (*State, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewState(), nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil || state.Version != StateVersion {
		return NewState(), nil
	}
	if state.Hosts == nil {
		state.Hosts = make(map[string]*HostState)
	}
	return &state, nil
}

func (s *Store) write(state *State) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}

	state.Version = StateVersion
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Unique temp name: two unlocked writers must not share a temp file.
	tmpPath := fmt.Sprintf("%s.%d.%d.tmp", s.Path(), os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}
	if runtime.GOOS == "windows" {
		_ = os.Remove(s.Path())
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Update runs fn on the current state and saves the result, holding the
// lock across the whole read-modify-write.
func (s *Store) Update(fn func(*State) error) error {
	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock(fl)

	state, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return s.write(state)
}

// Clear removes the state file.
func (s *Store) Clear() error {
	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock(fl)

	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
