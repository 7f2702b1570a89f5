package provider

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/vigil/backend/internal/core"
)

// Simulated produces a smooth synthetic confidence waveform per signal.
// Used by the dev server and the evaluation harness when no real
// detector processes are attached.
type Simulated struct {
	mu       sync.Mutex
	start    time.Time
	baseline map[core.SignalKind]float64
	swing    float64
	period   time.Duration
}

// NewSimulated creates a simulated detector set with per-signal baselines.
func NewSimulated() *Simulated {
	return &Simulated{
		start: time.Now(),
		baseline: map[core.SignalKind]float64{
			core.SignalFace:     0.92,
			core.SignalLiveness: 0.88,
			core.SignalBehavior: 0.85,
		},
		swing:  0.08,
		period: 30 * time.Second,
	}
}

// CurrentConfidence returns baseline + a slow sine swing, phase-shifted
// per signal so the three channels never move in lockstep.
func (p *Simulated) CurrentConfidence(_ context.Context, kind core.SignalKind) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	base, ok := p.baseline[kind]
	if !ok {
		return 0, ErrUnavailable
	}

	elapsed := time.Since(p.start).Seconds()
	phase := float64(indexOf(kind)) * math.Pi / 3
	value := base + p.swing*math.Sin(2*math.Pi*elapsed/p.period.Seconds()+phase)
	return core.Clamp(value), nil
}

// SetBaseline adjusts one signal's baseline, letting dev tooling script
// trust degradation scenarios against a running server.
func (p *Simulated) SetBaseline(kind core.SignalKind, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseline[kind] = core.Clamp(value)
}

func indexOf(kind core.SignalKind) int {
	for i, k := range core.SignalKinds {
		if k == kind {
			return i
		}
	}
	return 0
}
