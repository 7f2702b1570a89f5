package sdk

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil/backend/internal/api"
	"github.com/vigil/backend/internal/config"
	"github.com/vigil/backend/internal/core"
	"github.com/vigil/backend/internal/enrollment"
	"github.com/vigil/backend/internal/events"
	"github.com/vigil/backend/internal/lease"
	"github.com/vigil/backend/internal/session"
	"github.com/vigil/backend/internal/store"
)

type steadyProvider struct{ value float64 }

func (p steadyProvider) CurrentConfidence(_ context.Context, _ core.SignalKind) (float64, error) {
	return p.value, nil
}

// Runs the client against the real server handler, not a fake, so the
// two sides cannot drift apart on response shapes.
func TestClientAgainstRealHandler(t *testing.T) {
	cfg := config.DefaultVerification()
	cfg.TickInterval = 10 * time.Millisecond

	leases := lease.NewManager()
	templates := store.NewMemoryStore()
	bus := events.NewBus()
	detectors := steadyProvider{0.9}

	svc, err := session.NewService(cfg, leases, templates, detectors, bus, nil)
	require.NoError(t, err)
	t.Cleanup(svc.StopAll)

	enroller := enrollment.NewEnroller(leases, templates, detectors)
	backend := httptest.NewServer(api.NewServer(svc, enroller, leases, nil, bus).Handler())
	defer backend.Close()

	client := NewClient(Config{BaseURL: backend.URL})
	ctx := context.Background()

	require.NoError(t, client.Health(ctx))
	require.NoError(t, client.Enroll(ctx, "alice", "face"))

	id, err := client.StartSession(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sessions, err := client.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].SessionID)
	assert.NotEmpty(t, sessions[0].State)

	detail, err := client.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, detail.Session.SessionID)

	// Second session conflicts on the capture device.
	_, err = client.StartSession(ctx, "bob")
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	records, err := client.Leases(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	require.NoError(t, client.StopSession(ctx, id))
	err = client.StopSession(ctx, id)
	assert.True(t, IsNotFound(err))
}
