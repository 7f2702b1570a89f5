// Package enrollment captures biometric templates. An enrollment session
// is an independent caller of the lease manager: it needs the same
// capture devices as verification and must win them through the normal
// release-then-acquire handoff, never by pre-emption.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vigil/backend/internal/core"
	"github.com/vigil/backend/internal/lease"
	"github.com/vigil/backend/internal/provider"
	"github.com/vigil/backend/internal/store"
)

// ErrCaptureFailed means not enough usable samples were captured for a
// signal, so no template was written for it.
var ErrCaptureFailed = errors.New("enrollment capture failed")

// Enroller runs enrollment capture sessions.
type Enroller struct {
	leases    *lease.Manager
	templates store.TemplateStore
	detectors provider.SignalProvider

	// SampleCount samples are captured per signal; at least MinQuality
	// mean confidence is required before a template is accepted.
	SampleCount int
	MinQuality  float64
}

// NewEnroller creates an enroller with stock capture settings.
func NewEnroller(leases *lease.Manager, templates store.TemplateStore, detectors provider.SignalProvider) *Enroller {
	return &Enroller{
		leases:      leases,
		templates:   templates,
		detectors:   detectors,
		SampleCount: 5,
		MinQuality:  0.5,
	}
}

// Enroll captures templates for the given signals. Both capture
// resources are held for the whole session and released on every exit
// path; a concurrent verification session makes this fail fast with
// lease.ErrResourceBusy.
func (e *Enroller) Enroll(ctx context.Context, userID string, kinds []core.SignalKind) error {
	sessionID := "enroll-" + uuid.NewString()

	camera, err := e.leases.Acquire(core.ResourceCamera, sessionID)
	if err != nil {
		return err
	}
	defer camera.Release()

	behavior, err := e.leases.Acquire(core.ResourceBehaviorSource, sessionID)
	if err != nil {
		return err
	}
	defer behavior.Release()

	slog.Info("enrollment started", "session", sessionID, "user", userID, "signals", len(kinds))

	for _, kind := range kinds {
		if err := e.captureOne(ctx, userID, kind); err != nil {
			return fmt.Errorf("signal %s: %w", kind, err)
		}
	}

	slog.Info("enrollment complete", "session", sessionID, "user", userID)
	return nil
}

// captureOne samples the detector and stores a template reference when
// the capture quality is sufficient.
func (e *Enroller) captureOne(ctx context.Context, userID string, kind core.SignalKind) error {
	var sum float64
	usable := 0

	for i := 0; i < e.SampleCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := e.detectors.CurrentConfidence(ctx, kind)
		if err != nil {
			continue // a single unavailable frame is not fatal
		}
		sum += core.Clamp(v)
		usable++
	}

	if usable == 0 {
		return fmt.Errorf("%w: no usable samples", ErrCaptureFailed)
	}
	if mean := sum / float64(usable); mean < e.MinQuality {
		return fmt.Errorf("%w: mean confidence %.2f below %.2f", ErrCaptureFailed, mean, e.MinQuality)
	}

	ref := fmt.Sprintf("tmpl-%s-%s-%d", userID, kind, time.Now().UnixNano())
	return e.templates.PutTemplate(ctx, userID, kind, []byte(ref))
}
