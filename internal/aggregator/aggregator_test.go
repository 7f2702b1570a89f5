package aggregator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil/backend/internal/config"
	"github.com/vigil/backend/internal/core"
)

func testConfig() config.VerificationConfig {
	cfg := config.DefaultVerification()
	cfg.Weights = config.SignalWeights{Face: 0.4, Liveness: 0.3, Behavior: 0.3}
	cfg.Fallbacks = config.SignalFallbacks{Face: 0.85, Liveness: 0.70, Behavior: 0.80}
	cfg.Alpha = 0.3
	return cfg
}

func sample(face, liveness, behavior float64) core.ScoreSample {
	return core.ScoreSample{
		Face:       core.Float64Ptr(face),
		Liveness:   core.Float64Ptr(liveness),
		Behavior:   core.Float64Ptr(behavior),
		CapturedAt: time.Now(),
	}
}

func TestAllUnavailableUsesFallbacks(t *testing.T) {
	agg := New(testConfig())

	state := agg.Update(core.NewTrustState(), core.ScoreSample{CapturedAt: time.Now()})

	// instant = 0.4*0.85 + 0.3*0.70 + 0.3*0.80 = 0.79
	assert.InDelta(t, 0.79, state.LastInstant, 1e-9)
	// ema = 0.3*0.79 + 0.7*1.0 = 0.937
	assert.InDelta(t, 0.937, state.EMAValue, 1e-9)
	assert.Equal(t, uint64(1), state.TickCount)
}

func TestWeightedInstantScore(t *testing.T) {
	agg := New(testConfig())

	state := agg.Update(core.NewTrustState(), sample(1.0, 0.5, 0.0))

	assert.InDelta(t, 0.4*1.0+0.3*0.5, state.LastInstant, 1e-9)
}

func TestPartialUnavailabilitySubstitutesOnlyMissing(t *testing.T) {
	agg := New(testConfig())
	s := core.ScoreSample{
		Face:       core.Float64Ptr(0.9),
		CapturedAt: time.Now(),
	}

	state := agg.Update(core.NewTrustState(), s)

	// face real, liveness+behavior from fallback
	assert.InDelta(t, 0.4*0.9+0.3*0.70+0.3*0.80, state.LastInstant, 1e-9)
}

func TestOutOfRangeInputsAreClamped(t *testing.T) {
	agg := New(testConfig())

	state := agg.Update(core.NewTrustState(), sample(7.0, -3.0, 0.5))

	assert.InDelta(t, 0.4*1.0+0.3*0.0+0.3*0.5, state.LastInstant, 1e-9)
	assert.GreaterOrEqual(t, state.EMAValue, 0.0)
	assert.LessOrEqual(t, state.EMAValue, 1.0)
}

func TestEMAStaysInUnitInterval(t *testing.T) {
	agg := New(testConfig())
	state := core.NewTrustState()

	inputs := []float64{0, 1, 0.2, 0.99, 0, 0, 1, 1, 0.5, 0.01}
	for _, v := range inputs {
		state = agg.Update(state, sample(v, v, v))
		require.GreaterOrEqual(t, state.EMAValue, 0.0)
		require.LessOrEqual(t, state.EMAValue, 1.0)
	}
}

func TestGeometricConvergence(t *testing.T) {
	cfg := testConfig()
	agg := New(cfg)

	const instant = 0.2
	state := core.NewTrustState()
	start := state.EMAValue

	const n = 12
	for i := 0; i < n; i++ {
		state = agg.Update(state, sample(instant, instant, instant))
	}

	// ema_n = s + (1-alpha)^n * (ema_0 - s)
	want := instant + math.Pow(1-cfg.Alpha, n)*(start-instant)
	assert.InDelta(t, want, state.EMAValue, 1e-12)
}

func TestDeterministicForIdenticalSequence(t *testing.T) {
	agg := New(testConfig())

	run := func() core.TrustState {
		state := core.NewTrustState()
		for _, v := range []float64{0.3, 0.8, 0.1, 0.9, 0.44} {
			state = agg.Update(state, sample(v, v/2, v/3))
		}
		return state
	}

	assert.Equal(t, run(), run())
}
