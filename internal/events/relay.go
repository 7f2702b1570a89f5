package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisRelay forwards every bus event onto a Redis pub/sub channel so
// companion processes (the desktop shell, external auditors) can consume
// them without holding an HTTP connection to this backend.
//
// Fan-out strategy:
//   - in-memory Bus: immediate push to WebSocket subscribers
//   - Redis channel: fire-and-forget cross-process delivery
type RedisRelay struct {
	client  *redis.Client
	channel string
	ch      chan *Event
	bus     *Bus
	done    chan struct{}
}

// NewRedisRelay subscribes to all bus events and starts the forwarding
// loop. Call Close when shutting down.
func NewRedisRelay(client *redis.Client, channel string, bus *Bus) *RedisRelay {
	r := &RedisRelay{
		client:  client,
		channel: channel,
		ch:      bus.Subscribe(),
		bus:     bus,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *RedisRelay) run() {
	defer close(r.done)
	for ev := range r.ch {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := r.client.Publish(context.Background(), r.channel, payload).Err(); err != nil {
			slog.Warn("event relay publish failed", "event_id", ev.ID, "error", err)
		}
	}
}

// Close unsubscribes from the bus and waits for the loop to drain.
func (r *RedisRelay) Close() {
	r.bus.Unsubscribe(r.ch)
	<-r.done
}
