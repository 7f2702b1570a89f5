package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vigil/backend/internal/core"
)

// Metrics holds all Prometheus metrics for the verification core.
// All recording methods are nil-safe so library code can run unmetered
// (tests, the evaluation harness).
type Metrics struct {
	// Trust metrics
	TrustScore   *prometheus.GaugeVec
	InstantScore *prometheus.GaugeVec

	// State machine metrics
	SecurityState    *prometheus.GaugeVec
	StateTransitions *prometheus.CounterVec

	// Scheduler metrics
	TickDuration    *prometheus.HistogramVec
	TicksSkipped    *prometheus.CounterVec
	DegradedSignals *prometheus.CounterVec

	// Lease metrics
	LeaseAcquired *prometheus.CounterVec
	LeaseBusy     *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		TrustScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vigil_trust_score",
				Help: "Smoothed EMA trust score per verification session",
			},
			[]string{"session_id"},
		),

		InstantScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vigil_instant_score",
				Help: "Last instantaneous weighted confidence per session",
			},
			[]string{"session_id"},
		),

		SecurityState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vigil_security_state",
				Help: "Current enforcement state ordinal (0=NORMAL .. 3=REAUTH)",
			},
			[]string{"session_id"},
		),

		StateTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vigil_state_transitions_total",
				Help: "Total enforcement state transitions",
			},
			[]string{"from", "to"},
		),

		TickDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vigil_tick_duration_seconds",
				Help:    "Duration of one verification tick including provider queries",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"session_id"},
		),

		TicksSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vigil_ticks_skipped_total",
				Help: "Ticks skipped because the previous tick was still in flight",
			},
			[]string{"session_id"},
		),

		DegradedSignals: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vigil_degraded_signals_total",
				Help: "DegradedSignal warnings emitted",
			},
			[]string{"session_id"},
		),

		LeaseAcquired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vigil_lease_acquired_total",
				Help: "Successful resource lease acquisitions",
			},
			[]string{"resource"},
		),

		LeaseBusy: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vigil_lease_busy_total",
				Help: "Lease acquisitions rejected because another session holds the resource",
			},
			[]string{"resource"},
		),
	}
}

// RecordTick records one completed tick's trust values and duration.
func (m *Metrics) RecordTick(sessionID string, trust core.TrustState, seconds float64) {
	if m == nil {
		return
	}
	m.TrustScore.WithLabelValues(sessionID).Set(trust.EMAValue)
	m.InstantScore.WithLabelValues(sessionID).Set(trust.LastInstant)
	m.TickDuration.WithLabelValues(sessionID).Observe(seconds)
}

// RecordSkippedTick counts a backpressure skip.
func (m *Metrics) RecordSkippedTick(sessionID string) {
	if m == nil {
		return
	}
	m.TicksSkipped.WithLabelValues(sessionID).Inc()
}

// RecordTransition counts a state change and updates the state gauge.
func (m *Metrics) RecordTransition(t core.StateTransition) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(t.From.String(), t.To.String()).Inc()
	m.SecurityState.WithLabelValues(t.SessionID).Set(float64(t.To))
}

// RecordDegraded counts a degraded-signal warning.
func (m *Metrics) RecordDegraded(sessionID string) {
	if m == nil {
		return
	}
	m.DegradedSignals.WithLabelValues(sessionID).Inc()
}

// RecordLeaseAcquired counts a successful acquisition.
func (m *Metrics) RecordLeaseAcquired(resource core.ResourceID) {
	if m == nil {
		return
	}
	m.LeaseAcquired.WithLabelValues(string(resource)).Inc()
}

// RecordLeaseBusy counts a rejected acquisition.
func (m *Metrics) RecordLeaseBusy(resource core.ResourceID) {
	if m == nil {
		return
	}
	m.LeaseBusy.WithLabelValues(string(resource)).Inc()
}

// ForgetSession drops per-session gauges after teardown so stopped
// sessions do not linger on dashboards.
func (m *Metrics) ForgetSession(sessionID string) {
	if m == nil {
		return
	}
	m.TrustScore.DeleteLabelValues(sessionID)
	m.InstantScore.DeleteLabelValues(sessionID)
	m.SecurityState.DeleteLabelValues(sessionID)
}
