package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/socialink/realtime/internal/event"
	"github.com/socialink/realtime/internal/registry"
)

// recordingWriter captures per-connection writes for assertions.
type recordingWriter struct {
	writes map[string][][]byte
	fail   map[string]bool
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{
		writes: make(map[string][][]byte),
		fail:   make(map[string]bool),
	}
}

func (w *recordingWriter) SendMessage(connID string, data []byte) error {
	if w.fail[connID] {
		return errors.New("write failed")
	}
	w.writes[connID] = append(w.writes[connID], data)
	return nil
}

func TestSocketPublish_JoinThenDeliver(t *testing.T) {
	reg := registry.New()
	writer := newRecordingWriter()
	tr := NewSocket(reg, writer)

	reg.Join("c1", "user-42")

	body := []byte(`{"type":"LIKE","message":"liked your post","senderId":"user-7","id":"notif-1"}`)
	if err := tr.Publish(context.Background(), event.KindNotification, "user-42", body); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	frames := writer.writes["c1"]
	if len(frames) != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", len(frames))
	}

	env, err := event.ParseEnvelope(frames[0])
	if err != nil {
		t.Fatalf("parse delivered frame: %v", err)
	}
	if env.Event != event.KindNotification {
		t.Errorf("unexpected event name: %q", env.Event)
	}
	if string(env.Data) != string(body) {
		t.Errorf("payload altered in transit: %s", env.Data)
	}
}

func TestSocketPublish_NoJoinNoDeliver(t *testing.T) {
	reg := registry.New()
	writer := newRecordingWriter()
	tr := NewSocket(reg, writer)

	// No connection ever joined; every publish is a silent drop.
	for i := 0; i < 3; i++ {
		if err := tr.Publish(context.Background(), event.KindChatMessage, "user-42", []byte(`{}`)); err != nil {
			t.Fatalf("publish to empty group should not error: %v", err)
		}
	}

	if len(writer.writes) != 0 {
		t.Errorf("expected zero deliveries, got writes to %d connections", len(writer.writes))
	}
}

func TestSocketPublish_MultiDeviceFanOut(t *testing.T) {
	reg := registry.New()
	writer := newRecordingWriter()
	tr := NewSocket(reg, writer)

	reg.Join("tab", "user-42")
	reg.Join("phone", "user-42")

	body := []byte(`{"ownerId":"user-42","senderId":"user-7"}`)
	if err := tr.Publish(context.Background(), event.KindMsgSeen, "user-42", body); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	for _, connID := range []string{"tab", "phone"} {
		if got := len(writer.writes[connID]); got != 1 {
			t.Errorf("connection %s: expected 1 delivery, got %d", connID, got)
		}
	}
}

func TestSocketPublish_WriteFailureSkipsConnection(t *testing.T) {
	reg := registry.New()
	writer := newRecordingWriter()
	writer.fail["dead"] = true
	tr := NewSocket(reg, writer)

	reg.Join("dead", "user-42")
	reg.Join("live", "user-42")

	if err := tr.Publish(context.Background(), event.KindChatMessage, "user-42", []byte(`{}`)); err != nil {
		t.Fatalf("publish should not fail when one write fails: %v", err)
	}
	if got := len(writer.writes["live"]); got != 1 {
		t.Errorf("healthy connection should still receive the event, got %d", got)
	}
}

// Both transports wrap the producer's body in the same envelope, so a
// subscriber observes identical (kind, body) pairs in either mode.
func TestEnvelopeIsModeAgnostic(t *testing.T) {
	body := []byte(`{"messageText":"hi","senderId":"u1","convoId":"cv1"}`)

	socketFrame, err := event.NewServerEvent(event.KindChatMessage, body)
	if err != nil {
		t.Fatalf("socket frame: %v", err)
	}

	reg := registry.New()
	reg.Join("c1", "u2")
	writer := newRecordingWriter()
	if err := NewSocket(reg, writer).Publish(context.Background(), event.KindChatMessage, "u2", body); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if !json.Valid(socketFrame) {
		t.Fatal("frame is not valid JSON")
	}
	if string(writer.writes["c1"][0]) != string(socketFrame) {
		t.Errorf("socket adapter wrote a different frame than the shared envelope:\n%s\n%s",
			writer.writes["c1"][0], socketFrame)
	}
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"socket", ModeSocket, false},
		{"relay", ModeRelay, false},
		{"", ModeSocket, false},
		{"pusher", "", true},
		{"Socket", "", true},
	}

	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestChannelName(t *testing.T) {
	if got := ChannelName("42"); got != "user-42" {
		t.Errorf("unexpected channel name: %q", got)
	}
	if got := ChannelName("550e8400-e29b-41d4-a716-446655440000"); got != "user-550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("unexpected channel name: %q", got)
	}
}
