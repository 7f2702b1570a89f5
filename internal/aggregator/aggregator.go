// Package aggregator fuses the per-tick confidence signals into a single
// smoothed trust value. It is pure computation: no I/O, no locks, no
// blocking, deterministic for a given input sequence.
package aggregator

import (
	"github.com/vigil/backend/internal/config"
	"github.com/vigil/backend/internal/core"
)

// Aggregator computes the weighted instant score and applies EMA smoothing.
type Aggregator struct {
	weights   config.SignalWeights
	fallbacks config.SignalFallbacks
	alpha     float64
}

// New builds an aggregator from an already-validated verification config.
func New(cfg config.VerificationConfig) *Aggregator {
	return &Aggregator{
		weights:   cfg.Weights,
		fallbacks: cfg.Fallbacks,
		alpha:     cfg.Alpha,
	}
}

// Update folds one sample into the trust state and returns the new state.
// Unavailable signals are substituted with their configured fallback so
// the weighted formula keeps the same meaning every tick; out-of-range
// values are clamped, not rejected.
func (a *Aggregator) Update(prev core.TrustState, sample core.ScoreSample) core.TrustState {
	instant := a.weights.Face*component(sample.Face, a.fallbacks.Face) +
		a.weights.Liveness*component(sample.Liveness, a.fallbacks.Liveness) +
		a.weights.Behavior*component(sample.Behavior, a.fallbacks.Behavior)
	instant = core.Clamp(instant)

	return core.TrustState{
		EMAValue:    core.Clamp(a.alpha*instant + (1-a.alpha)*prev.EMAValue),
		LastInstant: instant,
		TickCount:   prev.TickCount + 1,
	}
}

func component(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return core.Clamp(*v)
}
