// Package router accepts producer-supplied events and hands them to the
// active transport for delivery. It is stateless glue: no retry, no
// persistence, no buffering. Producers call Notify after their own domain
// write has committed; a delivery failure never rolls that write back.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/socialink/realtime/internal/event"
	"github.com/socialink/realtime/internal/metrics"
	"github.com/socialink/realtime/internal/transport"
)

// Router forwards events to the transport selected at startup.
type Router struct {
	transport transport.Transport
}

// New creates a Router over the active transport.
func New(t transport.Transport) *Router {
	return &Router{transport: t}
}

// Notify validates the event and makes exactly one delivery attempt through
// the active transport. The body may be any marshalable value or raw JSON
// bytes. The returned error is the transport's own failure, if any; an
// offline recipient is not an error.
func (r *Router) Notify(ctx context.Context, kind string, targetRecipient string, body interface{}) error {
	if targetRecipient == "" {
		return fmt.Errorf("router: target recipient is empty")
	}
	if !event.ValidKind(kind) {
		return fmt.Errorf("router: unknown event kind %q", kind)
	}

	data, err := marshalBody(body)
	if err != nil {
		return fmt.Errorf("router: failed to marshal %q body: %w", kind, err)
	}

	start := time.Now()
	err = r.transport.Publish(ctx, kind, targetRecipient, data)
	metrics.PublishLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.EventsPublished.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("router: publish %s via %s: %w", kind, r.transport.Name(), err)
	}
	metrics.EventsPublished.WithLabelValues(kind, "ok").Inc()
	return nil
}

// Transport returns the active transport, mainly for shutdown wiring.
func (r *Router) Transport() transport.Transport {
	return r.transport
}

func marshalBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	}
	return json.Marshal(body)
}
