package state

import (
	"log/slog"
	"sync"
	"time"
)

// Manager owns the machine state for a process. Every mutation flows through
// it, keeping the playing/current-game invariant in one place, and every
// mutation is followed by a durable write.
type Manager struct {
	mu    sync.Mutex
	state MachineState
	store *Store
	log   *slog.Logger
}

// NewManager loads the last committed state from store. A corrupt state file
// is logged and replaced with the default state on the next save rather than
// stopping startup.
func NewManager(store *Store, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	st, err := store.Load()
	if err != nil {
		log.Warn("state file unreadable, starting from defaults", "path", store.Path(), "error", err)
		st = DefaultState()
	}
	return &Manager{state: st, store: store, log: log}
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() MachineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Apply runs the transition for evt and durably persists the result. The
// transition itself never fails; a returned error means only that the durable
// write did not go through. Recoverable oddities in the event are logged at
// warning level, matching the rule that no event may take the agent down.
func (m *Manager) Apply(evt Event) (ApplyResult, error) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	res := Apply(m.state, evt)
	if res.Note != "" {
		m.log.Warn("event applied with degraded args", "event", evt.Name, "note", res.Note)
	}
	m.state = res.State

	if err := m.store.Save(m.state); err != nil {
		return res, err
	}
	return res, nil
}

// Refresh re-reads the durable state so the in-memory copy picks up writes
// made by other processes (the event hooks run as separate short-lived
// commands against the same file).
func (m *Manager) Refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.store.LoadWithRetry(3, 50*time.Millisecond)
	if err != nil {
		return err
	}
	m.state = st
	return nil
}

// UpdateCollectionStats replaces the collection numbers after a rescan and
// persists the result. The durable copy is re-read first so a concurrent
// game-state write from an event hook is not clobbered.
func (m *Manager) UpdateCollectionStats(stats CollectionStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, err := m.store.LoadWithRetry(3, 50*time.Millisecond); err == nil {
		m.state = st
	}
	m.state.CollectionStats = stats
	m.state.LastUpdatedAt = time.Now()
	return m.store.Save(m.state)
}
