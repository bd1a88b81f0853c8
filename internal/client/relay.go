package client

import (
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/socialink/realtime/internal/event"
	"github.com/socialink/realtime/internal/transport"
)

// RelaySource subscribes by binding to the recipient's hosted relay channel.
// No join message exists in this mode: the subscription itself establishes
// membership, and the relay service handles fan-out and reconnection.
type RelaySource struct {
	conn *nats.Conn
}

// NewRelaySource connects to the relay and returns a source ready to
// subscribe. The connection is shared by all subscriptions the source
// creates.
func NewRelaySource(config transport.RelayConfig) (*RelaySource, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("client: relay reconnected to %s", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("client: relay connect: %w", err)
	}
	return &RelaySource{conn: nc}, nil
}

// Subscribe binds to the recipient's relay channel.
func (s *RelaySource) Subscribe(recipientID string) (Subscription, error) {
	sub := &relaySubscription{
		handlers: make(map[string]Handler),
	}

	channel := transport.ChannelName(recipientID)
	natsSub, err := s.conn.Subscribe(channel, func(msg *nats.Msg) {
		sub.dispatch(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("client: relay subscribe %s: %w", channel, err)
	}

	sub.sub = natsSub
	return sub, nil
}

// Close closes the shared relay connection. Live subscriptions stop
// receiving events.
func (s *RelaySource) Close() {
	s.conn.Close()
}

// relaySubscription is one live relay-mode subscription.
type relaySubscription struct {
	mu       sync.Mutex
	handlers map[string]Handler
	sub      *nats.Subscription
	torn     bool
}

// dispatch decodes the envelope and routes the payload to the bound handler.
// Envelope bytes are identical to socket-mode frames, so the same handlers
// serve both modes.
func (s *relaySubscription) dispatch(data []byte) {
	env, err := event.ParseEnvelope(data)
	if err != nil {
		log.Printf("client: bad relay message: %v", err)
		return
	}

	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return
	}
	handler, ok := s.handlers[env.Event]
	s.mu.Unlock()
	if ok {
		handler(env.Data)
	}
}

// Bind registers the handler for an event name.
func (s *relaySubscription) Bind(name string, handler Handler) {
	s.mu.Lock()
	s.handlers[name] = handler
	s.mu.Unlock()
}

// Unbind removes the handler for an event name.
func (s *relaySubscription) Unbind(name string) {
	s.mu.Lock()
	delete(s.handlers, name)
	s.mu.Unlock()
}

// Teardown unsubscribes from the relay channel. Safe to call more than once.
func (s *relaySubscription) Teardown() error {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return nil
	}
	s.torn = true
	s.mu.Unlock()

	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("client: relay unsubscribe: %w", err)
	}
	return nil
}
