package upstream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"market_relay/internal/engine"
	"market_relay/internal/event"
	"market_relay/internal/infra"
	"market_relay/internal/relay"

	"github.com/gorilla/websocket"
)

const handshakeTimeout = 10 * time.Second

// Client holds the single long-lived connection to the upstream feed. It
// decodes inbound frames, folds trades into the aggregation engine and fans
// every event out through the dispatcher. Connection loss of any kind leads
// to a fixed-delay retry, forever; there is no terminal failure state short
// of process shutdown. Aggregation state lives in the engine, so reconnects
// never replay or reset it.
type Client struct {
	url        string
	retryDelay time.Duration
	aggregator *engine.Aggregator
	dispatcher *relay.Dispatcher

	conn   *websocket.Conn
	mu     sync.RWMutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates an upstream client. retryDelay is the fixed wait between
// connection attempts.
func NewClient(url string, retryDelay time.Duration, agg *engine.Aggregator, dispatcher *relay.Dispatcher) *Client {
	return &Client{
		url:        url,
		retryDelay: retryDelay,
		aggregator: agg,
		dispatcher: dispatcher,
	}
}

// Connect starts the connection loop in the background.
func (c *Client) Connect(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.connectionLoop(ctx)
	return nil
}

func (c *Client) connectionLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.connect(ctx); err != nil {
			infra.GlobalMetrics.RecordReconnect()
			slog.Warn("Upstream connection failed",
				slog.String("url", c.url), slog.Any("error", err))
		} else {
			c.readLoop(ctx)
			infra.GlobalMetrics.SetUpstreamConnected(false)
			slog.Warn("Upstream connection closed", slog.String("url", c.url))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	infra.GlobalMetrics.SetUpstreamConnected(true)
	slog.Info("Upstream connected", slog.String("url", c.url))
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.closeConnection()
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.closeConnection()
			return
		}
		c.handleFrame(msg)
	}
}

// handleFrame decodes one inbound frame and processes its events in arrival
// order. A frame that fails to decode is logged and discarded; the read loop
// carries on.
func (c *Client) handleFrame(data []byte) {
	infra.GlobalMetrics.RecordFrame()

	events, err := event.Decode(data)
	if err != nil {
		infra.GlobalMetrics.RecordDecodeError()
		slog.Warn("Discarding malformed upstream frame", slog.Any("error", err))
		return
	}

	for i := range events {
		c.process(&events[i])
	}
}

// process dispatches a single event. Trades update the aggregation engine
// first, then go out as raw passthrough followed by the fresh vwap/cvd
// values on their derived channels.
func (c *Client) process(ev *event.Event) {
	if ev.Trade == nil {
		c.dispatcher.Publish(ev.Channel(), ev.Raw)
		return
	}

	vwap, cvd := c.aggregator.Update(ev.Trade)

	ts := ev.Trade.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	c.dispatcher.Publish(ev.Channel(), ev.Raw)
	c.dispatcher.Publish("vwap:"+ev.Symbol, relay.NewVWAPMessage(ev.Symbol, vwap, ts))
	c.dispatcher.Publish("cvd:"+ev.Symbol, relay.NewCVDMessage(ev.Symbol, cvd, ts))

	event.ReleaseTrade(ev.Trade)
	ev.Trade = nil
}

func (c *Client) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Disconnect stops the connection loop and closes any live connection.
func (c *Client) Disconnect() {
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConnection()
	c.wg.Wait()
}
