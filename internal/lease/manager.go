// Package lease arbitrates exclusive ownership of the shared capture
// resources (camera, behavior event source) between sessions.
//
// The underlying devices are singletons: two sessions both believing
// they own the camera corrupts one of them. Every acquisition goes
// through a single mutation point, and ownership is handed out as a
// guard object whose Release is safe on every exit path.
package lease

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vigil/backend/internal/core"
)

var (
	// ErrResourceBusy means the resource is held by a different session.
	// Recoverable: stop the holding session first, then retry.
	ErrResourceBusy = errors.New("resource busy: held by another session")

	// ErrNotHolder means a release was attempted without ownership.
	// A caller logic error; surfaced synchronously, logged, never fatal.
	ErrNotHolder = errors.New("release without holding the lease")
)

// Lease is the ownership guard for one resource. Release is once-only:
// calling it on every exit path (defer, error, cancellation) is the
// intended usage and never double-releases.
type Lease struct {
	Resource   core.ResourceID
	SessionID  string
	AcquiredAt time.Time

	manager *Manager
	once    sync.Once
}

// Release returns the resource. The first call releases; later calls
// are no-ops returning nil, so scoped cleanup can never skip or repeat.
func (l *Lease) Release() error {
	var err error
	released := false
	l.once.Do(func() {
		err = l.manager.release(l.Resource, l.SessionID)
		released = true
	})
	if !released {
		return nil
	}
	return err
}

// Record is a read-only view of one lease table entry.
type Record struct {
	Resource   core.ResourceID `json:"resource"`
	Holder     string          `json:"holder"`
	AcquiredAt time.Time       `json:"acquired_at"`
}

// Manager owns the process-wide lease table. All mutation is serialized
// through a single mutex; concurrent acquires for the same resource
// resolve deterministically with exactly one winner.
type Manager struct {
	mu    sync.Mutex
	table map[core.ResourceID]*Lease
}

// NewManager creates an empty lease table.
func NewManager() *Manager {
	return &Manager{table: make(map[core.ResourceID]*Lease)}
}

// Acquire takes exclusive ownership of a resource for a session.
//
// Held by another session → ErrResourceBusy, fail fast; the manager
// never pre-empts a holder, transfer is always release-then-acquire.
// Held by the same session → idempotent, the existing lease is returned
// without re-initializing the underlying device.
func (m *Manager) Acquire(resource core.ResourceID, sessionID string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.table[resource]; ok {
		if held.SessionID == sessionID {
			return held, nil
		}
		slog.Info("lease acquire rejected",
			"resource", resource, "requester", sessionID, "holder", held.SessionID)
		return nil, ErrResourceBusy
	}

	l := &Lease{
		Resource:   resource,
		SessionID:  sessionID,
		AcquiredAt: time.Now(),
		manager:    m,
	}
	m.table[resource] = l
	slog.Info("lease acquired", "resource", resource, "session", sessionID)
	return l, nil
}

// release is only reachable through a Lease guard.
func (m *Manager) release(resource core.ResourceID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.table[resource]
	if !ok || held.SessionID != sessionID {
		slog.Warn("lease release without ownership", "resource", resource, "session", sessionID)
		return ErrNotHolder
	}

	delete(m.table, resource)
	slog.Info("lease released", "resource", resource, "session", sessionID)
	return nil
}

// Holder returns the current holder of a resource, if any.
func (m *Manager) Holder(resource core.ResourceID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.table[resource]
	if !ok {
		return "", false
	}
	return held.SessionID, true
}

// Snapshot returns a copy of the lease table for inspection endpoints.
func (m *Manager) Snapshot() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]Record, 0, len(m.table))
	for _, l := range m.table {
		records = append(records, Record{
			Resource:   l.Resource,
			Holder:     l.SessionID,
			AcquiredAt: l.AcquiredAt,
		})
	}
	return records
}
