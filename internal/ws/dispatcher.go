package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/socialink/realtime/internal/event"
)

// EventHandler is the callback signature for handling a client event's raw
// payload.
type EventHandler func(conn *Connection, data json.RawMessage)

// EventDispatcher routes incoming frames to registered handlers based on the
// envelope's event name. The join and ping events are handled internally:
// join is the only way a connection acquires group membership, and ping is
// the application-level keepalive.
type EventDispatcher struct {
	handlers map[string]EventHandler
	server   *Server
}

// NewEventDispatcher creates an EventDispatcher bound to the given server.
// The server reference is used for join bookkeeping and to send responses
// back to clients.
func NewEventDispatcher(server *Server) *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[string]EventHandler),
		server:   server,
	}
}

// SetServer assigns the Server reference on the dispatcher. This supports the
// initialization pattern where the dispatcher is created before the server
// (since NewServer requires the Dispatch callback).
func (d *EventDispatcher) SetServer(server *Server) {
	d.server = server
}

// Register associates an EventHandler with an event name. If a handler was
// already registered for the given name, it is silently replaced.
func (d *EventDispatcher) Register(name string, handler EventHandler) {
	d.handlers[name] = handler
}

// Dispatch is the onMessage callback implementation. It parses the raw bytes
// into an envelope, handles join and ping internally, and routes all other
// events to the registered handler. Parse errors and unregistered events
// result in an error envelope sent back to the client.
func (d *EventDispatcher) Dispatch(conn *Connection, data []byte) {
	env, err := event.ParseEnvelope(data)
	if err != nil {
		log.Printf("ws: dispatch parse error conn=%s: %v", conn.ID, err)
		d.sendError(conn, "parse_error", "invalid message format")
		return
	}

	switch env.Event {
	case event.TypeJoin:
		d.handleJoin(conn, env.Data)
		return
	case event.TypePing:
		d.sendPong(conn)
		return
	}

	handler, ok := d.handlers[env.Event]
	if !ok {
		log.Printf("ws: unsupported event=%q conn=%s", env.Event, conn.ID)
		d.sendError(conn, "unsupported_event", "unsupported event name")
		return
	}

	handler(conn, env.Data)
}

// handleJoin decodes the identity string from the join payload and binds the
// connection to that recipient's group. A malformed payload gets an error
// envelope; there is no acknowledgement on success, matching the client's
// fire-and-forget join.
func (d *EventDispatcher) handleJoin(conn *Connection, data json.RawMessage) {
	recipientID, err := event.DecodeJoin(data)
	if err != nil {
		log.Printf("ws: bad join payload conn=%s: %v", conn.ID, err)
		d.sendError(conn, "bad_join", "join payload must be the recipient identity string")
		return
	}
	d.server.Join(conn, recipientID)
}

// sendError sends a structured error envelope back to the client. Errors
// during construction or transmission are logged but not propagated.
func (d *EventDispatcher) sendError(conn *Connection, code string, message string) {
	data, err := event.NewServerEvent(event.TypeError, event.ErrorBody{
		Code:    code,
		Message: message,
	})
	if err != nil {
		log.Printf("ws: failed to build error envelope conn=%s: %v", conn.ID, err)
		return
	}

	if err := conn.WriteMessage(data); err != nil {
		log.Printf("ws: failed to send error envelope conn=%s: %v", conn.ID, err)
	}
}

// sendPong responds to a client ping and updates the connection's LastPing
// timestamp to reflect the most recent keepalive.
func (d *EventDispatcher) sendPong(conn *Connection) {
	conn.LastPing = time.Now()

	data, err := event.NewServerEvent(event.TypePong, struct{}{})
	if err != nil {
		log.Printf("ws: failed to build pong conn=%s: %v", conn.ID, err)
		return
	}

	if err := conn.WriteMessage(data); err != nil {
		log.Printf("ws: failed to send pong conn=%s: %v", conn.ID, err)
	}
}
