package client

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/socialink/realtime/internal/event"
)

// SocketSource subscribes by dialing the delivery server over WebSocket and
// issuing the join event for the recipient identity. The connection
// reconnects automatically with a fixed delay; because group membership does
// not survive a reconnect, join is re-issued after every successful dial.
type SocketSource struct {
	URL            string        // ws://host:port/ws
	ReconnectDelay time.Duration // wait between reconnect attempts
	DialTimeout    time.Duration // per-attempt dial timeout
}

// NewSocketSource creates a SocketSource with default reconnect tuning.
func NewSocketSource(url string) *SocketSource {
	return &SocketSource{
		URL:            url,
		ReconnectDelay: 1 * time.Second,
		DialTimeout:    5 * time.Second,
	}
}

// Subscribe dials the server, joins the recipient's group, and starts the
// background read loop. The initial dial failure is returned to the caller;
// later drops are handled by the reconnect loop.
func (s *SocketSource) Subscribe(recipientID string) (Subscription, error) {
	sub := &socketSubscription{
		source:      s,
		recipientID: recipientID,
		handlers:    make(map[string]Handler),
		done:        make(chan struct{}),
	}

	conn, err := sub.dialAndJoin()
	if err != nil {
		return nil, err
	}
	sub.setConn(conn)

	go sub.readLoop()
	return sub, nil
}

// socketSubscription is one live socket-mode subscription.
type socketSubscription struct {
	source      *SocketSource
	recipientID string

	mu       sync.Mutex
	conn     net.Conn
	handlers map[string]Handler

	done      chan struct{}
	closeOnce sync.Once
}

// dialAndJoin establishes the WebSocket connection and sends the join event
// carrying the recipient identity.
func (s *socketSubscription) dialAndJoin() (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.source.DialTimeout)
	defer cancel()

	conn, _, _, err := ws.Dial(ctx, s.source.URL)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", s.source.URL, err)
	}

	join, err := event.NewJoinEvent(s.recipientID)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := wsutil.WriteClientMessage(conn, ws.OpText, join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: send join: %w", err)
	}
	return conn, nil
}

func (s *socketSubscription) setConn(conn net.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// Bind registers the handler for an event name.
func (s *socketSubscription) Bind(name string, handler Handler) {
	s.mu.Lock()
	s.handlers[name] = handler
	s.mu.Unlock()
}

// Unbind removes the handler for an event name.
func (s *socketSubscription) Unbind(name string) {
	s.mu.Lock()
	delete(s.handlers, name)
	s.mu.Unlock()
}

// Teardown closes the connection and stops the read loop. It is safe to call
// multiple times.
func (s *socketSubscription) Teardown() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.conn != nil {
			err = s.conn.Close()
		}
		s.mu.Unlock()
	})
	return err
}

// readLoop reads frames and dispatches payloads to the bound handlers. On a
// read error it reconnects with a fixed delay and re-issues join, because the
// server's group membership was lost with the old connection.
func (s *socketSubscription) readLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.reconnect()
			continue
		}

		env, err := event.ParseEnvelope(data)
		if err != nil {
			log.Printf("client: bad frame for %s: %v", s.recipientID, err)
			continue
		}

		s.mu.Lock()
		handler, ok := s.handlers[env.Event]
		s.mu.Unlock()
		if ok {
			handler(env.Data)
		}
	}
}

// reconnect retries dialAndJoin until it succeeds or the subscription is
// torn down.
func (s *socketSubscription) reconnect() {
	for {
		select {
		case <-s.done:
			return
		case <-time.After(s.source.ReconnectDelay):
		}

		conn, err := s.dialAndJoin()
		if err != nil {
			log.Printf("client: reconnect for %s failed: %v", s.recipientID, err)
			continue
		}

		select {
		case <-s.done:
			conn.Close()
			return
		default:
		}

		log.Printf("client: reconnected and re-joined as %s", s.recipientID)
		s.setConn(conn)
		return
	}
}

// Ping sends an application-level ping to keep intermediaries from idling
// out the connection.
func (s *socketSubscription) Ping() error {
	data, err := event.NewServerEvent(event.TypePing, struct{}{})
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return wsutil.WriteClientMessage(conn, ws.OpText, data)
}
