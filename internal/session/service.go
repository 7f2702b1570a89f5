// Package session exposes the surface the surrounding application talks
// to: start and stop verification sessions, confirm reauthentication,
// and inspect running sessions.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vigil/backend/internal/config"
	"github.com/vigil/backend/internal/core"
	"github.com/vigil/backend/internal/events"
	"github.com/vigil/backend/internal/lease"
	"github.com/vigil/backend/internal/metrics"
	"github.com/vigil/backend/internal/provider"
	"github.com/vigil/backend/internal/scheduler"
	"github.com/vigil/backend/internal/store"
)

// ErrSessionNotFound is returned for operations on unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Service is the registry of active verification sessions. One scheduler
// per session; sessions serialize on the shared capture devices through
// the lease manager.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*scheduler.Scheduler

	cfg       config.VerificationConfig
	leases    *lease.Manager
	templates store.TemplateStore
	detectors provider.SignalProvider
	bus       *events.Bus
	metrics   *metrics.Metrics
}

// NewService validates the config once; every session reuses it.
func NewService(
	cfg config.VerificationConfig,
	leases *lease.Manager,
	templates store.TemplateStore,
	detectors provider.SignalProvider,
	bus *events.Bus,
	m *metrics.Metrics,
) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		sessions:  make(map[string]*scheduler.Scheduler),
		cfg:       cfg,
		leases:    leases,
		templates: templates,
		detectors: detectors,
		bus:       bus,
		metrics:   m,
	}, nil
}

// Start acquires both capture resources, then launches a verification
// loop for the user. Fails fast with lease.ErrResourceBusy when another
// session (enrollment, another verification) holds a device; the caller
// must stop that session first — ownership is never pre-empted.
func (s *Service) Start(userID string) (string, error) {
	sessionID := uuid.NewString()

	camera, err := s.leases.Acquire(core.ResourceCamera, sessionID)
	if err != nil {
		s.metrics.RecordLeaseBusy(core.ResourceCamera)
		return "", err
	}
	s.metrics.RecordLeaseAcquired(core.ResourceCamera)

	behavior, err := s.leases.Acquire(core.ResourceBehaviorSource, sessionID)
	if err != nil {
		s.metrics.RecordLeaseBusy(core.ResourceBehaviorSource)
		// Give back what we took; the guard makes this safe on any path.
		if rerr := camera.Release(); rerr != nil {
			slog.Warn("camera release after failed start", "session", sessionID, "error", rerr)
		}
		return "", err
	}
	s.metrics.RecordLeaseAcquired(core.ResourceBehaviorSource)

	gated := provider.NewTemplateGated(s.detectors, s.templates, userID)
	sched, err := scheduler.New(sessionID, s.cfg, gated, s.bus, s.metrics,
		[]*lease.Lease{camera, behavior})
	if err != nil {
		camera.Release()
		behavior.Release()
		return "", err
	}

	s.mu.Lock()
	s.sessions[sessionID] = sched
	s.mu.Unlock()

	sched.Start()
	s.bus.Emit(events.TypeStarted, sessionID, map[string]string{"user_id": userID})
	slog.Info("verification session started", "session", sessionID, "user", userID)
	return sessionID, nil
}

// Stop tears a session down: the loop halts, leases are released exactly
// once, and the registry entry is removed. Stopping twice is safe.
func (s *Service) Stop(sessionID string) error {
	s.mu.Lock()
	sched, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	sched.Stop()
	return nil
}

// ConfirmReauthentication forwards the external authentication result to
// the session's state machine.
func (s *Service) ConfirmReauthentication(sessionID string) error {
	s.mu.RLock()
	sched, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return ErrSessionNotFound
	}

	sched.ConfirmReauthentication()
	return nil
}

// Get returns one session's scheduler.
func (s *Service) Get(sessionID string) (*scheduler.Scheduler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.sessions[sessionID]
	return sched, ok
}

// List returns snapshots of all running sessions.
func (s *Service) List() []scheduler.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshots := make([]scheduler.Snapshot, 0, len(s.sessions))
	for _, sched := range s.sessions {
		snapshots = append(snapshots, sched.Snapshot())
	}
	return snapshots
}

// StopAll tears down every session, used during server shutdown.
func (s *Service) StopAll() {
	s.mu.Lock()
	all := make([]*scheduler.Scheduler, 0, len(s.sessions))
	for id, sched := range s.sessions {
		all = append(all, sched)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sched := range all {
		sched.Stop()
	}
}
