// Package client provides a reusable WebSocket load test client for the
// realtime delivery server. It connects using gobwas/ws (the same library the
// server uses), joins a recipient group, and tracks per-connection
// performance metrics.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ---------------------------------------------------------------------------
// Event names (local equivalents of internal/event constants)
// ---------------------------------------------------------------------------

// Client -> Server event names.
const (
	EventJoin = "join"
	EventPing = "ping"
)

// Delivery event names, usable both for producing and receiving.
const (
	EventChatMessage  = "chatMessage"
	EventMsgSeen      = "changeMsgSeen"
	EventNotification = "notification"
)

// Server -> Client control event names.
const (
	EventError = "error"
	EventPong  = "pong"
)

// envelope mirrors the server's wire format: every frame names its event and
// carries the payload verbatim.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency    time.Duration
	FirstEventLatency time.Duration
	EventsReceived    int
	EventsSent        int
	Errors            int
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client represents a single simulated connection to the delivery server.
// It manages the WebSocket lifecycle and dispatches incoming events to
// registered handlers. The same client type serves both roles of a load
// test: recipients join a group and count deliveries, producers emit
// delivery events targeting those recipients.
type Client struct {
	conn      net.Conn
	mu        sync.Mutex
	metrics   Metrics
	handlers  map[string]func(json.RawMessage)
	done      chan struct{}
	closeOnce sync.Once
	firstEvt  time.Time
	connected time.Time
}

// New creates a new load test client connected to the given WebSocket URL.
// The connection is established immediately and a background goroutine begins
// reading events. The client has no group membership until Join is called.
func New(ctx context.Context, url string) (*Client, error) {
	start := time.Now()
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:      conn,
		handlers:  make(map[string]func(json.RawMessage)),
		done:      make(chan struct{}),
		connected: time.Now(),
	}
	c.metrics.ConnectLatency = time.Since(start)

	// Start reading events in background.
	go c.readLoop()

	return c, nil
}

// Join binds this connection to the recipient's group. The server sends no
// acknowledgement; delivery of a subsequent event is the only confirmation.
func (c *Client) Join(recipientID string) error {
	return c.Emit(EventJoin, recipientID)
}

// Emit sends an event envelope to the server. It is goroutine-safe.
func (c *Client) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.EventsSent++
	return wsutil.WriteClientMessage(c.conn, ws.OpText, frame)
}

// On registers a handler for a specific server event name. The handler
// receives the event payload for flexible decoding. Handlers are invoked from
// the read loop goroutine so they should not block for extended periods. Only
// one handler per event name is supported; registering a second handler for
// the same name replaces the first.
func (c *Client) On(event string, handler func(json.RawMessage)) {
	c.mu.Lock()
	c.handlers[event] = handler
	c.mu.Unlock()
}

// Close closes the connection and stops the read loop. It is safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// readLoop continuously reads WebSocket frames from the server and dispatches
// them to registered handlers. It runs until the connection is closed or an
// unrecoverable error occurs.
func (c *Client) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
				// Connection was intentionally closed; do not count as error.
				return
			default:
			}
			c.mu.Lock()
			c.metrics.Errors++
			c.mu.Unlock()
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		c.mu.Lock()
		if c.firstEvt.IsZero() {
			c.firstEvt = time.Now()
			c.metrics.FirstEventLatency = c.firstEvt.Sub(c.connected)
		}
		c.metrics.EventsReceived++
		handler, ok := c.handlers[env.Event]
		c.mu.Unlock()

		if ok {
			handler(env.Data)
		}
	}
}
