package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil/backend/internal/core"
	"github.com/vigil/backend/internal/events"
)

// memStore collects writes for recorder tests.
type memStore struct {
	mu          sync.Mutex
	transitions []core.StateTransition
	degraded    []core.DegradedSignal
}

func (s *memStore) RecordTransition(_ context.Context, t core.StateTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, t)
	return nil
}

func (s *memStore) RecordDegraded(_ context.Context, d core.DegradedSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = append(s.degraded, d)
	return nil
}

func (s *memStore) RecentTransitions(_ context.Context, sessionID string, limit int) ([]core.StateTransition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.StateTransition
	for _, t := range s.transitions {
		if t.SessionID == sessionID && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

func TestRecorderPersistsBusEvents(t *testing.T) {
	bus := events.NewBus()
	store := &memStore{}
	recorder := NewRecorder(store, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recorder.Run(ctx)

	transition := core.StateTransition{
		SessionID: "s1",
		From:      core.StateNormal,
		To:        core.StateWatch,
		At:        time.Now(),
		EMAValue:  0.6,
	}
	bus.Emit(events.TypeTransition, "s1", transition)
	bus.Emit(events.TypeDegraded, "s1", core.DegradedSignal{SessionID: "s1", ConsecutiveTicks: 3})
	// Events the recorder did not subscribe to are ignored.
	bus.Emit(events.TypeStarted, "s1", nil)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.transitions) == 1 && len(store.degraded) == 1
	}, time.Second, 5*time.Millisecond)

	got, err := store.RecentTransitions(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.StateWatch, got[0].To)
}

func TestParseStateRoundTrip(t *testing.T) {
	for _, s := range []core.SecurityState{
		core.StateNormal, core.StateWatch, core.StateRestrict, core.StateReauth,
	} {
		assert.Equal(t, s, parseState(s.String()))
	}
}
