// Package events provides the in-process pub/sub bus carrying session
// events (state transitions, degraded-signal warnings) to the API layer.
package events

import (
	"fmt"
	"sync"
	"time"
)

// Event types published on the bus.
const (
	TypeTransition = "session.transition"
	TypeDegraded   = "session.degraded"
	TypeStarted    = "session.started"
	TypeStopped    = "session.stopped"
)

// Event is the envelope for everything the core reports outward.
type Event struct {
	Type      string      `json:"type"`
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Time      time.Time   `json:"time"`
	Data      interface{} `json:"data"`
}

// NewEvent builds an event envelope with a unique ID.
func NewEvent(eventType, sessionID string, data interface{}) *Event {
	return &Event{
		Type:      eventType,
		ID:        fmt.Sprintf("ev-%d", time.Now().UnixNano()),
		SessionID: sessionID,
		Time:      time.Now(),
		Data:      data,
	}
}

// Bus is an in-process pub/sub event bus. Subscribers receive events in
// real time; a slow subscriber drops events rather than blocking the
// verification tick.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *Event // eventType -> channels
	allSubs     []chan *Event            // subscribers to all events
	bufferSize  int
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan *Event),
		allSubs:     make([]chan *Event, 0),
		bufferSize:  100,
	}
}

// Subscribe creates a channel receiving events of the given types.
// Pass no types to receive ALL events.
func (b *Bus) Subscribe(eventTypes ...string) chan *Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *Event, b.bufferSize)

	if len(eventTypes) == 0 {
		b.allSubs = append(b.allSubs, ch)
	} else {
		for _, et := range eventTypes {
			b.subscribers[et] = append(b.subscribers[et], ch)
		}
	}

	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (b *Bus) Unsubscribe(ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for et, subs := range b.subscribers {
		filtered := make([]chan *Event, 0, len(subs))
		for _, s := range subs {
			if s != ch {
				filtered = append(filtered, s)
			}
		}
		b.subscribers[et] = filtered
	}

	filtered := make([]chan *Event, 0, len(b.allSubs))
	for _, s := range b.allSubs {
		if s != ch {
			filtered = append(filtered, s)
		}
	}
	b.allSubs = filtered

	close(ch)
}

// Publish sends an event to all matching subscribers.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}

	for _, ch := range b.allSubs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Emit is a convenience method to create and publish an event.
func (b *Bus) Emit(eventType, sessionID string, data interface{}) {
	b.Publish(NewEvent(eventType, sessionID, data))
}

// SubscriberCount returns the total number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allSubs)
	for _, subs := range b.subscribers {
		count += len(subs)
	}
	return count
}
