package transport

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/socialink/realtime/internal/event"
)

// ChannelName returns the relay channel for a recipient identity. The relay
// naming constraints require a hyphen separator, unlike the socket group
// names. Identities are opaque tokens (typically UUIDs), so the separator
// cannot collide.
func ChannelName(recipientID string) string {
	return "user-" + recipientID
}

// RelayConfig holds relay connection settings.
type RelayConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultRelayConfig returns sensible defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		URL:           "nats://localhost:4222",
		Name:          "realtime",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// Relay publishes events to the hosted relay. There is no server-resident
// delivery state in this mode: the relay service fans out to all current
// subscribers of the recipient's channel.
type Relay struct {
	conn *nats.Conn
}

// NewRelay connects to the relay with the given config and returns a ready
// transport. It returns an error if the initial connection fails; callers
// treat that as fatal at startup.
func NewRelay(config RelayConfig) (*Relay, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[relay] disconnected: %v", err)
			} else {
				log.Printf("[relay] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[relay] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[relay] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: relay connect: %w", err)
	}

	log.Printf("[relay] connected to %s", nc.ConnectedUrl())

	return &Relay{conn: nc}, nil
}

// Name returns the mode name.
func (r *Relay) Name() string { return string(ModeRelay) }

// Publish sends the event envelope to the recipient's relay channel. The
// envelope bytes are identical to what the socket transport writes, so
// subscribers decode events the same way in both modes. Errors surface to
// the caller; there is no retry.
func (r *Relay) Publish(_ context.Context, kind string, recipientID string, body []byte) error {
	data, err := event.NewServerEvent(kind, body)
	if err != nil {
		return err
	}
	if err := r.conn.Publish(ChannelName(recipientID), data); err != nil {
		return fmt.Errorf("transport: relay publish %s to %s: %w", kind, ChannelName(recipientID), err)
	}
	return nil
}

// Close drains and closes the relay connection.
func (r *Relay) Close() error {
	if err := r.conn.Drain(); err != nil {
		return fmt.Errorf("transport: relay drain: %w", err)
	}
	return nil
}
