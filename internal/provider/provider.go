// Package provider defines the boundary to the external ML detectors
// (face matcher, liveness detector, behavior analyzer) and the adapters
// that sit between them and the verification loop.
package provider

import (
	"context"
	"errors"

	"github.com/vigil/backend/internal/core"
	"github.com/vigil/backend/internal/store"
)

// ErrUnavailable means the provider has no fresh confidence value this
// tick. Not a failure: the scheduler records the signal as absent and
// the aggregator substitutes the configured fallback.
var ErrUnavailable = errors.New("signal unavailable")

// SignalProvider is a pull-based confidence source. CurrentConfidence
// must not block the tick: a provider without fresh data returns
// ErrUnavailable instead of waiting for the camera or the model.
type SignalProvider interface {
	CurrentConfidence(ctx context.Context, kind core.SignalKind) (float64, error)
}

// TemplateGated wraps a provider and reports unavailable for any signal
// the user has no enrollment template for. The fallback-vs-real policy
// lives here, never in the aggregator.
type TemplateGated struct {
	inner     SignalProvider
	templates store.TemplateStore
	userID    string
}

// NewTemplateGated builds the gating adapter for one user.
func NewTemplateGated(inner SignalProvider, templates store.TemplateStore, userID string) *TemplateGated {
	return &TemplateGated{inner: inner, templates: templates, userID: userID}
}

func (p *TemplateGated) CurrentConfidence(ctx context.Context, kind core.SignalKind) (float64, error) {
	has, err := p.templates.HasTemplate(ctx, p.userID, kind)
	if err != nil {
		// Store trouble degrades the signal for this tick only.
		return 0, ErrUnavailable
	}
	if !has {
		return 0, ErrUnavailable
	}
	return p.inner.CurrentConfidence(ctx, kind)
}
