// Package event defines the delivery event kinds, their payload structures,
// and the JSON wire envelope exchanged between producers, the delivery
// server, and subscribed clients. All messages are serialized as JSON with
// an "event" name discriminator and a kind-specific "data" payload.
package event

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Event names
// ---------------------------------------------------------------------------

// Delivery event kinds. These names are identical on both transports so that
// client handler-binding code is transport-agnostic.
const (
	KindChatMessage  = "chatMessage"
	KindMsgSeen      = "changeMsgSeen"
	KindNotification = "notification"
)

// Client -> Server control events (socket mode only).
const (
	TypeJoin = "join"
	TypePing = "ping"
)

// Server -> Client control events (socket mode only).
const (
	TypeError = "error"
	TypePong  = "pong"
)

// Notification sub-kinds carried inside a notification body.
const (
	NotifLike          = "LIKE"
	NotifFriendRequest = "FRIEND-REQUEST"
	NotifComment       = "COMMENTE"
)

// Kinds returns the fixed enumeration of delivery event kinds.
func Kinds() []string {
	return []string{KindChatMessage, KindMsgSeen, KindNotification}
}

// ValidKind reports whether kind is one of the fixed delivery event kinds.
func ValidKind(kind string) bool {
	switch kind {
	case KindChatMessage, KindMsgSeen, KindNotification:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope is the wire frame for every message on both transports. The Data
// field is kept raw so the payload can be decoded later into the concrete
// struct for the event name.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ParseEnvelope decodes raw wire bytes into an Envelope. An error is returned
// when the bytes are not valid JSON or the event name is missing.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("event: failed to parse envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("event: missing or empty \"event\" field")
	}
	return &env, nil
}

// NewServerEvent creates the JSON-encoded envelope for a server-sent event.
// The payload may be any marshalable value; delivery code typically passes
// a json.RawMessage so producer bytes pass through unmodified.
func NewServerEvent(name string, payload interface{}) ([]byte, error) {
	raw, err := rawPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("event: failed to marshal %q payload: %w", name, err)
	}
	out, err := json.Marshal(Envelope{Event: name, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("event: failed to marshal %q envelope: %w", name, err)
	}
	return out, nil
}

// NewJoinEvent creates the client join envelope. The payload is the bare
// recipient identity string, not an object.
func NewJoinEvent(recipientID string) ([]byte, error) {
	return NewServerEvent(TypeJoin, recipientID)
}

// DecodeJoin extracts the recipient identity from a join envelope's data.
// The identity must be a non-empty JSON string.
func DecodeJoin(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return "", fmt.Errorf("event: join payload must be an identity string: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("event: join payload is empty")
	}
	return id, nil
}

// rawPayload marshals payload to a RawMessage. json.RawMessage and []byte
// values pass through untouched so producer bytes are never re-encoded.
func rawPayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// ---------------------------------------------------------------------------
// Delivery payload structs
// ---------------------------------------------------------------------------

// ChatMessageBody is the payload of a chatMessage event: a direct message
// that was just persisted by the message-creation handler.
type ChatMessageBody struct {
	MessageText  string `json:"messageText"`
	SenderID     string `json:"senderId"`
	ConvoID      string `json:"convoId"`
	SenderName   string `json:"senderName"`
	SenderAvatar string `json:"senderAvatar"`
	ToUserID     string `json:"toUserId,omitempty"` // target hint, socket-ingress only
}

// MsgSeenBody is the payload of a changeMsgSeen event: the owner marked the
// sender's outgoing messages in a conversation as seen.
type MsgSeenBody struct {
	OwnerID  string `json:"ownerId"`
	SenderID string `json:"senderId"`
}

// NotificationBody is the payload of a notification event covering the like,
// comment, and friend-request lifecycle sub-kinds.
type NotificationBody struct {
	Type       string `json:"type"` // LIKE | FRIEND-REQUEST | COMMENTE
	Message    string `json:"message"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	ID         string `json:"id"` // notification record identity
	ToUserID   string `json:"toUserId,omitempty"`
}

// TargetRecipient extracts the target identity from a producer-supplied
// payload received over the socket ingress. chatMessage and notification
// payloads address the receiving user directly; changeMsgSeen addresses the
// sender whose outgoing messages were marked seen.
func TargetRecipient(kind string, data json.RawMessage) (string, error) {
	switch kind {
	case KindChatMessage, KindNotification:
		var p struct {
			ToUserID string `json:"toUserId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return "", fmt.Errorf("event: failed to decode %q payload: %w", kind, err)
		}
		if p.ToUserID == "" {
			return "", fmt.Errorf("event: %q payload has no toUserId", kind)
		}
		return p.ToUserID, nil
	case KindMsgSeen:
		var p struct {
			SenderID string `json:"senderId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return "", fmt.Errorf("event: failed to decode %q payload: %w", kind, err)
		}
		if p.SenderID == "" {
			return "", fmt.Errorf("event: %q payload has no senderId", kind)
		}
		return p.SenderID, nil
	}
	return "", fmt.Errorf("event: unknown delivery kind %q", kind)
}

// ErrorBody is the payload of a server error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
