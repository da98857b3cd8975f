package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"market_relay/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ConnState tracks the subscriber connection lifecycle.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

// controlMessage is the subscribe/unsubscribe frame a downstream client
// sends. Both fields are mandatory.
type controlMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// Client is one connected downstream subscriber. The relay owns the
// connection for its lifetime; the registry only ever holds a reference.
// Outbound messages flow through a buffered send channel drained by the
// write pump, so publishers never block on a slow socket.
type Client struct {
	conn     *websocket.Conn
	registry *Registry

	send chan []byte
	done chan struct{}

	state     atomic.Int32
	closeOnce sync.Once
}

// NewClient wraps an upgraded websocket connection. Pumps are not running
// until Start is called.
func NewClient(conn *websocket.Conn, registry *Registry, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	c := &Client{
		conn:     conn,
		registry: registry,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// Start transitions the client to Open and launches the read/write pumps.
func (c *Client) Start() {
	c.state.Store(int32(StateOpen))
	infra.GlobalMetrics.IncrementConnections()

	go c.writePump()
	go c.readPump()
}

// enqueue hands a serialized message to the write pump without blocking.
// Returns false when the client is closed or its buffer is full.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close is the single exit path: every way out of the read loop lands here,
// so Drop always runs and both registry maps are left clean.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		c.registry.Drop(c)
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
		infra.GlobalMetrics.DecrementConnections()
		slog.Info("Subscriber disconnected")
	})
}

// readPump consumes control messages until the peer goes away or errors.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info("Subscriber read error", slog.Any("error", err))
			}
			return
		}
		c.handleControl(message)
	}
}

// handleControl applies one subscribe/unsubscribe message and acknowledges
// it on the same connection. A malformed message earns an error ack, never a
// disconnect.
func (c *Client) handleControl(message []byte) {
	var cmd controlMessage
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.sendJSON(ackError{Error: "Invalid JSON"})
		return
	}
	if cmd.Action == "" || cmd.Channel == "" {
		c.sendJSON(ackError{Error: "Invalid message format"})
		return
	}

	switch cmd.Action {
	case "subscribe":
		c.registry.Subscribe(c, cmd.Channel)
		slog.Debug("Subscriber joined channel", slog.String("channel", cmd.Channel))
		c.sendJSON(ackSuccess{Status: "success", Message: "Subscribed to " + cmd.Channel})
	case "unsubscribe":
		c.registry.Unsubscribe(c, cmd.Channel)
		slog.Debug("Subscriber left channel", slog.String("channel", cmd.Channel))
		c.sendJSON(ackSuccess{Status: "success", Message: "Unsubscribed from " + cmd.Channel})
	default:
		c.sendJSON(ackError{Error: "Unknown action: " + cmd.Action})
	}
}

func (c *Client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
