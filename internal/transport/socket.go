package transport

import (
	"context"
	"log"

	"github.com/socialink/realtime/internal/event"
	"github.com/socialink/realtime/internal/metrics"
	"github.com/socialink/realtime/internal/registry"
)

// ConnWriter writes a frame to a single connection. Implemented by the socket
// server; defined here so the adapter does not depend on the server package.
type ConnWriter interface {
	SendMessage(connID string, data []byte) error
}

// Socket delivers events through the self-hosted socket server: it resolves
// the recipient's group in the registry and writes the event envelope to
// every member connection.
type Socket struct {
	reg    *registry.Registry
	writer ConnWriter
}

// NewSocket creates the socket-mode transport over the given registry and
// connection writer.
func NewSocket(reg *registry.Registry, writer ConnWriter) *Socket {
	return &Socket{reg: reg, writer: writer}
}

// Name returns the mode name.
func (s *Socket) Name() string { return string(ModeSocket) }

// Publish emits the event to every connection in the recipient's group. A
// zero-member group is a silent no-op. Write failures on individual
// connections are logged and skipped — dead connections are evicted by the
// server's read path and heartbeat, not here.
func (s *Socket) Publish(_ context.Context, kind string, recipientID string, body []byte) error {
	data, err := event.NewServerEvent(kind, body)
	if err != nil {
		return err
	}

	for _, connID := range s.reg.Members(recipientID) {
		if err := s.writer.SendMessage(connID, data); err != nil {
			log.Printf("transport: socket emit %s to conn=%s failed: %v", kind, connID, err)
			continue
		}
		metrics.EventsDelivered.WithLabelValues(kind).Inc()
	}
	return nil
}

// Close is a no-op; the socket server owns the connections.
func (s *Socket) Close() error { return nil }
