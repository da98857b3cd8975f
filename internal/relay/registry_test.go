package relay

import (
	"testing"
)

func newBareClient() *Client {
	return NewClient(nil, nil, 8)
}

func TestRegistry_SubscribeIdempotent(t *testing.T) {
	r := NewRegistry()
	c := newBareClient()

	r.Subscribe(c, "trade:BTCUSDT")
	r.Subscribe(c, "trade:BTCUSDT")

	subs := r.SubscribersOf("trade:BTCUSDT")
	if len(subs) != 1 {
		t.Errorf("Expected 1 subscriber after double subscribe, got %d", len(subs))
	}
	if chans := r.ChannelsOf(c); len(chans) != 1 {
		t.Errorf("Expected 1 channel in inverse map, got %d", len(chans))
	}
}

func TestRegistry_UnsubscribeRemovesAllTraces(t *testing.T) {
	r := NewRegistry()
	c := newBareClient()

	r.Subscribe(c, "trade:BTCUSDT")
	r.Unsubscribe(c, "trade:BTCUSDT")

	if subs := r.SubscribersOf("trade:BTCUSDT"); len(subs) != 0 {
		t.Error("Forward map should be empty after unsubscribe")
	}
	if chans := r.ChannelsOf(c); len(chans) != 0 {
		t.Error("Inverse map should be empty after unsubscribe")
	}

	channels, subscriptions := r.Counts()
	if channels != 0 || subscriptions != 0 {
		t.Errorf("Expected empty registry, got %d channels %d subscriptions", channels, subscriptions)
	}
	if r.ClientCount() != 0 {
		t.Error("Client entry should be removed once its channel set empties")
	}
}

func TestRegistry_UnsubscribeNonexistentIsNoop(t *testing.T) {
	r := NewRegistry()
	c := newBareClient()

	r.Unsubscribe(c, "trade:BTCUSDT") // never subscribed

	channels, subscriptions := r.Counts()
	if channels != 0 || subscriptions != 0 {
		t.Error("Unsubscribing a nonexistent pair must not create state")
	}
}

func TestRegistry_Drop(t *testing.T) {
	r := NewRegistry()
	c1 := newBareClient()
	c2 := newBareClient()

	r.Subscribe(c1, "trade:BTCUSDT")
	r.Subscribe(c1, "vwap:BTCUSDT")
	r.Subscribe(c2, "trade:BTCUSDT")

	r.Drop(c1)

	if chans := r.ChannelsOf(c1); len(chans) != 0 {
		t.Error("Dropped client should have no channels")
	}
	if subs := r.SubscribersOf("vwap:BTCUSDT"); len(subs) != 0 {
		t.Error("Channel with only the dropped client should be gone")
	}
	subs := r.SubscribersOf("trade:BTCUSDT")
	if len(subs) != 1 || subs[0] != c2 {
		t.Error("Other subscribers must survive a drop")
	}
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	r := NewRegistry()
	c1 := newBareClient()
	c2 := newBareClient()

	r.Subscribe(c1, "trade:BTCUSDT")
	snap := r.SubscribersOf("trade:BTCUSDT")

	r.Subscribe(c2, "trade:BTCUSDT")
	r.Drop(c1)

	// The snapshot taken earlier must not observe later mutations.
	if len(snap) != 1 || snap[0] != c1 {
		t.Error("Snapshot should be unaffected by subsequent registry changes")
	}
}

func TestRegistry_Counts(t *testing.T) {
	r := NewRegistry()
	c1 := newBareClient()
	c2 := newBareClient()

	r.Subscribe(c1, "trade:BTCUSDT")
	r.Subscribe(c2, "trade:BTCUSDT")
	r.Subscribe(c2, "cvd:ETHUSDT")

	channels, subscriptions := r.Counts()
	if channels != 2 {
		t.Errorf("Expected 2 channels, got %d", channels)
	}
	if subscriptions != 3 {
		t.Errorf("Expected 3 subscriptions, got %d", subscriptions)
	}
	if r.ClientCount() != 2 {
		t.Errorf("Expected 2 clients, got %d", r.ClientCount())
	}
}
