package relay

import (
	"encoding/json"
	"log/slog"
)

// Dispatcher fans one published message out to the channel's current
// subscriber set. Delivery is at-most-once: a subscriber whose send buffer is
// full simply misses the message, and dead sockets are reaped by their own
// read pump, never by the publisher.
type Dispatcher struct {
	registry *Registry
	stats    *Stats
}

// NewDispatcher creates a dispatcher over the given registry. stats may be
// nil when no counting is wanted (tests).
func NewDispatcher(registry *Registry, stats *Stats) *Dispatcher {
	return &Dispatcher{registry: registry, stats: stats}
}

// Publish serializes payload once and enqueues it to every current
// subscriber of the channel. Enqueueing is non-blocking per subscriber, so a
// slow or dead client cannot stall the others. Publishing to a channel with
// no subscribers touches no registry state.
func (d *Dispatcher) Publish(channel string, payload any) {
	if d.stats != nil {
		d.stats.Record(channel)
	}

	subs := d.registry.SubscribersOf(channel)
	if len(subs) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal outbound message",
			slog.String("channel", channel), slog.Any("error", err))
		return
	}

	for _, c := range subs {
		if !c.enqueue(data) {
			slog.Debug("Subscriber buffer full, message dropped",
				slog.String("channel", channel))
		}
	}
}
