package online

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Monitor is the process-wide online/offline signal. Subscribers are called
// only when the state changes, in the order the changes happened.
type Monitor struct {
	online atomic.Bool
	// mu serializes transitions so subscribers never see them reordered.
	mu     sync.Mutex
	subs   *xsync.MapOf[uint64, func(bool)]
	nextID atomic.Uint64
}

// NewMonitor returns a Monitor in the given initial state.
func NewMonitor(initial bool) *Monitor {
	m := &Monitor{subs: xsync.NewMapOf[uint64, func(bool)]()}
	m.online.Store(initial)
	return m
}

// IsOnline reports the current state.
func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// SetOnline records a new state and notifies subscribers if it changed.
// It reports whether the state changed.
func (m *Monitor) SetOnline(online bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online.Swap(online) == online {
		return false
	}
	m.subs.Range(func(_ uint64, fn func(bool)) bool {
		fn(online)
		return true
	})
	return true
}

// Subscribe registers fn for state changes. The returned func removes it.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	id := m.nextID.Add(1)
	m.subs.Store(id, fn)
	return func() { m.subs.Delete(id) }
}
