// Package scheduler runs the fixed-rate verification loop for one
// session: query providers, feed the aggregator, drive the enforcement
// state machine, emit events.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vigil/backend/internal/aggregator"
	"github.com/vigil/backend/internal/config"
	"github.com/vigil/backend/internal/core"
	"github.com/vigil/backend/internal/enforcement"
	"github.com/vigil/backend/internal/events"
	"github.com/vigil/backend/internal/lease"
	"github.com/vigil/backend/internal/metrics"
	"github.com/vigil/backend/internal/provider"
)

// Scheduler owns one TrustState and one StateMachine, and holds the
// resource leases for the lifetime of the session. Exactly one tick is
// ever in flight; overlapping ticks are skipped, not queued.
type Scheduler struct {
	sessionID string
	cfg       config.VerificationConfig

	provider provider.SignalProvider
	agg      *aggregator.Aggregator
	machine  *enforcement.StateMachine
	bus      *events.Bus
	metrics  *metrics.Metrics
	leases   []*lease.Lease

	mu            sync.Mutex
	trust         core.TrustState
	degradedTicks int

	inFlight atomic.Bool
	tickWG   sync.WaitGroup

	stopCh    chan struct{}
	doneCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
	started   atomic.Bool
}

// Snapshot is a read-only view of the session for the REST API.
type Snapshot struct {
	SessionID     string             `json:"session_id"`
	TrustState    core.TrustState    `json:"trust_state"`
	SecurityState core.SecurityState `json:"security_state"`
	State         string             `json:"state"`
	DegradedTicks int                `json:"degraded_ticks"`
}

// New validates the config and assembles a scheduler. The leases must
// already be held by this session; the scheduler takes over releasing
// them on Stop.
func New(
	sessionID string,
	cfg config.VerificationConfig,
	sp provider.SignalProvider,
	bus *events.Bus,
	m *metrics.Metrics,
	leases []*lease.Lease,
) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Scheduler{
		sessionID: sessionID,
		cfg:       cfg,
		provider:  sp,
		agg:       aggregator.New(cfg),
		machine:   enforcement.New(sessionID, cfg),
		bus:       bus,
		metrics:   m,
		leases:    leases,
		trust:     core.NewTrustState(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}, nil
}

// Start launches the tick loop. Safe to call once; later calls are no-ops.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	slog.Info("verification loop started",
		"session", s.sessionID, "interval", s.cfg.TickInterval)

	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.dispatchTick()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// dispatchTick runs one tick unless the previous one is still in
// flight. Two ticks never run concurrently for the same session.
func (s *Scheduler) dispatchTick() {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.RecordSkippedTick(s.sessionID)
		slog.Debug("tick skipped, previous still in flight", "session", s.sessionID)
		return
	}

	s.tickWG.Add(1)
	go func() {
		defer s.tickWG.Done()
		defer s.inFlight.Store(false)
		s.tick()
	}()
}

// tick performs one full verification pass. Provider failures degrade
// the affected signal for this tick only; nothing propagates out.
func (s *Scheduler) tick() {
	start := time.Now()

	// The provider call may await camera I/O or model inference; bound
	// it to the tick interval so one stall cannot wedge the loop.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TickInterval)
	defer cancel()

	sample := core.ScoreSample{CapturedAt: start}
	sample.Face = s.query(ctx, core.SignalFace)
	sample.Liveness = s.query(ctx, core.SignalLiveness)
	sample.Behavior = s.query(ctx, core.SignalBehavior)

	s.mu.Lock()
	if !sample.Available() {
		s.degradedTicks++
		if s.degradedTicks == s.cfg.DegradedTickLimit {
			warning := core.DegradedSignal{
				SessionID:        s.sessionID,
				ConsecutiveTicks: s.degradedTicks,
				At:               time.Now(),
			}
			s.mu.Unlock()
			slog.Warn("all signals degraded",
				"session", s.sessionID, "consecutive_ticks", warning.ConsecutiveTicks)
			s.bus.Emit(events.TypeDegraded, s.sessionID, warning)
			s.metrics.RecordDegraded(s.sessionID)
			s.mu.Lock()
		}
	} else {
		s.degradedTicks = 0
	}

	s.trust = s.agg.Update(s.trust, sample)
	trust := s.trust
	s.mu.Unlock()

	if transition := s.machine.Evaluate(trust.EMAValue); transition != nil {
		slog.Info("security state transition",
			"session", s.sessionID,
			"from", transition.From.String(),
			"to", transition.To.String(),
			"ema", transition.EMAValue)
		s.bus.Emit(events.TypeTransition, s.sessionID, *transition)
		s.metrics.RecordTransition(*transition)
	}

	s.metrics.RecordTick(s.sessionID, trust, time.Since(start).Seconds())
}

// query asks the provider for one signal, mapping every error to the
// unavailable marker (nil).
func (s *Scheduler) query(ctx context.Context, kind core.SignalKind) *float64 {
	v, err := s.provider.CurrentConfidence(ctx, kind)
	if err != nil {
		return nil
	}
	return core.Float64Ptr(v)
}

// Stop shuts the loop down cooperatively: no new tick fires after Stop
// returns, the in-flight tick (if any) completes its state mutation,
// and every held lease is released exactly once. Idempotent.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.started.Load() {
			<-s.doneCh
		}
		s.tickWG.Wait()

		for _, l := range s.leases {
			if err := l.Release(); err != nil {
				slog.Warn("lease release failed during teardown",
					"session", s.sessionID, "resource", l.Resource, "error", err)
			}
		}

		s.metrics.ForgetSession(s.sessionID)
		s.bus.Emit(events.TypeStopped, s.sessionID, nil)
		slog.Info("verification loop stopped", "session", s.sessionID)
		close(s.stoppedCh)
	})
	<-s.stoppedCh
}

// ConfirmReauthentication exits REAUTH after the external authentication
// flow succeeded, resetting trust to full confidence.
func (s *Scheduler) ConfirmReauthentication() bool {
	transition := s.machine.ConfirmReauthentication()
	if transition == nil {
		return false
	}

	s.mu.Lock()
	s.trust = core.NewTrustState()
	s.mu.Unlock()

	s.bus.Emit(events.TypeTransition, s.sessionID, *transition)
	s.metrics.RecordTransition(*transition)
	slog.Info("reauthentication confirmed", "session", s.sessionID)
	return true
}

// Snapshot returns the current session view.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	trust := s.trust
	degraded := s.degradedTicks
	s.mu.Unlock()

	state := s.machine.State()
	return Snapshot{
		SessionID:     s.sessionID,
		TrustState:    trust,
		SecurityState: state,
		State:         state.String(),
		DegradedTicks: degraded,
	}
}

// History exposes the transition history for the snapshot API.
func (s *Scheduler) History() []core.StateTransition {
	return s.machine.History()
}

// SessionID returns this scheduler's session ID.
func (s *Scheduler) SessionID() string {
	return s.sessionID
}
