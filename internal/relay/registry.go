package relay

import (
	"sync"
)

// Registry is the bidirectional channel/subscriber mapping. The forward map
// (channel -> clients) and inverse map (client -> channels) are always
// mutated together under one lock, so they can never disagree. Channel
// entries are deleted as soon as their subscriber set empties.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	clients  map[*Client]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[*Client]struct{}),
		clients:  make(map[*Client]map[string]struct{}),
	}
}

// Subscribe adds the (client, channel) pair. Re-subscribing is a no-op.
func (r *Registry) Subscribe(c *Client, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channels[channel] == nil {
		r.channels[channel] = make(map[*Client]struct{})
	}
	r.channels[channel][c] = struct{}{}

	if r.clients[c] == nil {
		r.clients[c] = make(map[string]struct{})
	}
	r.clients[c][channel] = struct{}{}
}

// Unsubscribe removes the (client, channel) pair. Removing a pair that does
// not exist is a no-op.
func (r *Registry) Unsubscribe(c *Client, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(c, channel)
}

// Drop removes the client from every channel it was on. Called on
// disconnect; afterwards no reference to the client remains in either map.
func (r *Registry) Drop(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for channel := range r.clients[c] {
		r.removeLocked(c, channel)
	}
	delete(r.clients, c)
}

func (r *Registry) removeLocked(c *Client, channel string) {
	if subs, ok := r.channels[channel]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(r.channels, channel)
		}
	}
	if chans, ok := r.clients[c]; ok {
		delete(chans, channel)
		if len(chans) == 0 {
			delete(r.clients, c)
		}
	}
}

// SubscribersOf returns a point-in-time snapshot of the channel's subscriber
// set. Callers iterate the copy, so concurrent subscribe/unsubscribe cannot
// disturb an in-flight fan-out.
func (r *Registry) SubscribersOf(channel string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs, ok := r.channels[channel]
	if !ok {
		return nil
	}
	out := make([]*Client, 0, len(subs))
	for c := range subs {
		out = append(out, c)
	}
	return out
}

// ChannelsOf returns a snapshot of the channels a client is subscribed to.
func (r *Registry) ChannelsOf(c *Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chans, ok := r.clients[c]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(chans))
	for ch := range chans {
		out = append(out, ch)
	}
	return out
}

// Counts reports the number of channels with at least one subscriber and the
// total number of (channel, subscriber) pairs.
func (r *Registry) Counts() (channels, subscriptions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, subs := range r.channels {
		subscriptions += len(subs)
	}
	return len(r.channels), subscriptions
}

// ClientCount reports how many distinct clients hold subscriptions.
func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
