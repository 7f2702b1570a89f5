package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil/backend/internal/core"
)

func TestTypedSubscription(t *testing.T) {
	bus := NewBus()
	transitions := bus.Subscribe(TypeTransition)

	bus.Emit(TypeDegraded, "s1", core.DegradedSignal{SessionID: "s1"})
	bus.Emit(TypeTransition, "s1", core.StateTransition{SessionID: "s1"})

	ev := <-transitions
	assert.Equal(t, TypeTransition, ev.Type)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Len(t, transitions, 0, "degraded event must not reach a transition subscriber")
}

func TestAllSubscriberReceivesEverything(t *testing.T) {
	bus := NewBus()
	all := bus.Subscribe()

	bus.Emit(TypeTransition, "s1", nil)
	bus.Emit(TypeDegraded, "s1", nil)

	assert.Equal(t, TypeTransition, (<-all).Type)
	assert.Equal(t, TypeDegraded, (<-all).Type)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TypeTransition)
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TypeTransition)

	// Overfill the buffer; Publish must never block the caller.
	for i := 0; i < 250; i++ {
		bus.Emit(TypeTransition, "s1", nil)
	}
	assert.Equal(t, 100, len(ch))
}
