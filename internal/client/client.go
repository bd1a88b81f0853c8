// Package client implements the subscription manager that Go clients of the
// delivery layer embed: it maintains exactly one live subscription for the
// current recipient identity, binds one handler per event kind, exposes the
// most recent payload of each kind, and invalidates dependent cache keys so
// UI code re-fetches fresh data instead of trusting the push payload alone.
package client

import "encoding/json"

// Handler is the callback signature for one event kind's payload.
type Handler func(data json.RawMessage)

// Subscription is one live binding between a recipient identity and a
// transport's receive mechanism. Implementations deliver each received
// event's payload to the handler bound to its name.
type Subscription interface {
	// Bind registers the handler for an event name, replacing any previous
	// handler for that name.
	Bind(name string, handler Handler)

	// Unbind removes the handler for an event name.
	Unbind(name string)

	// Teardown stops delivery and releases the underlying transport
	// resources. No handler fires after Teardown returns. Safe to call more
	// than once.
	Teardown() error
}

// Source establishes transport-specific subscriptions. The socket source
// dials the delivery server and joins the recipient's group; the relay
// source subscribes to the recipient's relay channel. Which source a process
// uses is decided once at startup.
type Source interface {
	Subscribe(recipientID string) (Subscription, error)
}

// Cache keys invalidated when events arrive. The surrounding application
// maps these to whatever query cache it maintains.
const (
	CacheConversations      = "conversations"
	CacheConversationDetail = "conversation-detail"
	CacheNotifications      = "notifications"
)

// Invalidator receives cache invalidation signals. Implementations must
// tolerate being called from the subscription's receive goroutine.
type Invalidator interface {
	Invalidate(key string)
}

// InvalidatorFunc adapts a function to the Invalidator interface.
type InvalidatorFunc func(key string)

// Invalidate calls f(key).
func (f InvalidatorFunc) Invalidate(key string) { f(key) }
