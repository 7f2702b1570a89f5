package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil/backend/internal/core"
	"github.com/vigil/backend/internal/store"
)

type fixedProvider struct{ value float64 }

func (p fixedProvider) CurrentConfidence(_ context.Context, _ core.SignalKind) (float64, error) {
	return p.value, nil
}

func TestTemplateGatedBlocksUnenrolledSignals(t *testing.T) {
	ctx := context.Background()
	templates := store.NewMemoryStore()
	require.NoError(t, templates.PutTemplate(ctx, "user-1", core.SignalFace, []byte("ref")))

	gated := NewTemplateGated(fixedProvider{value: 0.9}, templates, "user-1")

	v, err := gated.CurrentConfidence(ctx, core.SignalFace)
	require.NoError(t, err)
	assert.Equal(t, 0.9, v)

	// No behavior template enrolled: explicit unavailable, never a score.
	_, err = gated.CurrentConfidence(ctx, core.SignalBehavior)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSimulatedStaysInRange(t *testing.T) {
	p := NewSimulated()
	ctx := context.Background()

	for _, kind := range core.SignalKinds {
		v, err := p.CurrentConfidence(ctx, kind)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestSimulatedUnknownKindUnavailable(t *testing.T) {
	p := NewSimulated()
	_, err := p.CurrentConfidence(context.Background(), core.SignalKind("gait"))
	assert.ErrorIs(t, err, ErrUnavailable)
}
