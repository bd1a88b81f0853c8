// Package transport defines the delivery transport abstraction and its two
// implementations: the self-hosted socket server (development) and the hosted
// NATS relay (production). The active transport is selected once at startup;
// no call site branches on the mode.
package transport

import (
	"context"
	"fmt"
)

// Mode identifies which transport implementation is active for the process.
type Mode string

const (
	// ModeSocket delivers through the self-hosted socket server's group table.
	ModeSocket Mode = "socket"

	// ModeRelay publishes directly to the hosted relay; the relay fans out to
	// all current subscribers of the recipient's channel.
	ModeRelay Mode = "relay"
)

// ParseMode validates a mode string from configuration. The empty string
// defaults to socket mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSocket, "":
		return ModeSocket, nil
	case ModeRelay:
		return ModeRelay, nil
	}
	return "", fmt.Errorf("transport: unknown delivery mode %q (want %q or %q)", s, ModeSocket, ModeRelay)
}

// Transport is the single capability both delivery backends satisfy: one
// fire-and-forget publish of a named event to a recipient's channel. There is
// no buffering, no retry, and no acknowledgement; an offline recipient is a
// silent drop, not an error.
type Transport interface {
	// Publish attempts exactly one delivery of the event to the recipient's
	// channel. The body is the kind-specific JSON payload produced by the
	// caller; it is forwarded byte-for-byte.
	Publish(ctx context.Context, kind string, recipientID string, body []byte) error

	// Name returns the transport's mode name for logging.
	Name() string

	// Close releases transport resources.
	Close() error
}
