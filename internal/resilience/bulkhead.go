package resilience

import (
	"os"
	"time"

	"github.com/littleredflower/dashcache/internal/output"
)

// Bulkhead limits how many dashcache processes warm the cache at once.
// Slots are held by PID so a crashed warmer's slot is reclaimed.
type Bulkhead struct {
	config BulkheadConfig
	store  *Store
	pid    int
	alive  func(pid int) bool
}

// NewBulkhead creates a new bulkhead with the given config.
func NewBulkhead(store *Store, config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultConfig().Bulkhead.MaxConcurrent
	}
	return &Bulkhead{
		config: config,
		store:  store,
		pid:    os.Getpid(),
		alive:  isProcessAlive,
	}
}

func (b *Bulkhead) prune(bh *BulkheadState) {
	alive := make([]int, 0, len(bh.ActivePIDs))
	for _, pid := range bh.ActivePIDs {
		if b.alive(pid) {
			alive = append(alive, pid)
		}
	}
	bh.ActivePIDs = alive
}

// Acquire takes a slot for this process. It returns output.ErrBusy when all
// slots are held by live processes. State errors fail open.
func (b *Bulkhead) Acquire() (release func(), err error) {
	var full bool
	uerr := b.store.Update(func(s *State) error {
		b.prune(&s.Bulkhead)
		if s.Bulkhead.HasPID(b.pid) {
			return nil
		}
		if s.Bulkhead.Count() >= b.config.MaxConcurrent {
			full = true
			return nil
		}
		s.Bulkhead.AddPID(b.pid)
		s.UpdatedAt = time.Now()
		return nil
	})
	if uerr != nil {
		return func() {}, nil //nolint:nilerr // fail open when state is unwritable
	}
	if full {
		return nil, output.ErrBusy(b.config.MaxConcurrent)
	}
	return func() { _ = b.Release() }, nil
}

// Release gives back this process's slot.
func (b *Bulkhead) Release() error {
	return b.store.Update(func(s *State) error {
		s.Bulkhead.RemovePID(b.pid)
		s.UpdatedAt = time.Now()
		return nil
	})
}

// InUse returns the number of live processes holding a slot.
func (b *Bulkhead) InUse() (int, error) {
	state, err := b.store.Load()
	if err != nil {
		return 0, err
	}
	bh := state.Bulkhead
	b.prune(&bh)
	return bh.Count(), nil
}

// Available returns the number of free slots, never below zero.
func (b *Bulkhead) Available() (int, error) {
	n, err := b.InUse()
	if err != nil {
		return b.config.MaxConcurrent, err
	}
	return max(b.config.MaxConcurrent-n, 0), nil
}

// Reset clears all slots.
func (b *Bulkhead) Reset() error {
	return b.store.Update(func(s *State) error {
		s.Bulkhead = BulkheadState{ActivePIDs: []int{}}
		s.UpdatedAt = time.Now()
		return nil
	})
}
