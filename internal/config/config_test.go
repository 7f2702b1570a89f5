package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultVerificationIsValid(t *testing.T) {
	require.NoError(t, DefaultVerification().Validate())
}

func TestValidateRejectsBadWeightSum(t *testing.T) {
	cfg := DefaultVerification()
	cfg.Weights.Face = 0.9 // sum now 2.0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejectsNonDecreasingThresholds(t *testing.T) {
	cfg := DefaultVerification()
	cfg.Thresholds.WatchMin = cfg.Thresholds.NormalMin // equal, not strictly decreasing

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejectsAlphaOutOfRange(t *testing.T) {
	for _, alpha := range []float64{0, 1, -0.5, 1.5} {
		cfg := DefaultVerification()
		cfg.Alpha = alpha
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "alpha=%v", alpha)
	}
}

func TestValidateRejectsFallbackOutOfRange(t *testing.T) {
	cfg := DefaultVerification()
	cfg.Fallbacks.Liveness = 1.2

	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsNegativeMargin(t *testing.T) {
	cfg := DefaultVerification()
	cfg.HysteresisMargin = -0.01

	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsZeroTickInterval(t *testing.T) {
	cfg := DefaultVerification()
	cfg.TickInterval = 0

	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
