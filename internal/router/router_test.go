package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/socialink/realtime/internal/event"
)

// recordedPublish is one Publish call observed by the fake transport.
type recordedPublish struct {
	kind      string
	recipient string
	body      []byte
}

type fakeTransport struct {
	published []recordedPublish
	err       error
}

func (f *fakeTransport) Publish(_ context.Context, kind, recipientID string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, recordedPublish{kind: kind, recipient: recipientID, body: body})
	return nil
}

func (f *fakeTransport) Name() string { return "fake" }
func (f *fakeTransport) Close() error { return nil }

func TestNotify_SinglePublish(t *testing.T) {
	ft := &fakeTransport{}
	r := New(ft)

	body := event.NotificationBody{
		Type:     event.NotifLike,
		Message:  "liked your post",
		SenderID: "user-7",
		ID:       "notif-1",
	}
	if err := r.Notify(context.Background(), event.KindNotification, "user-42", body); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	if len(ft.published) != 1 {
		t.Fatalf("expected exactly 1 publish, got %d", len(ft.published))
	}

	p := ft.published[0]
	if p.kind != event.KindNotification {
		t.Errorf("unexpected kind: %q", p.kind)
	}
	if p.recipient != "user-42" {
		t.Errorf("unexpected recipient: %q", p.recipient)
	}

	var decoded event.NotificationBody
	if err := json.Unmarshal(p.body, &decoded); err != nil {
		t.Fatalf("decode published body: %v", err)
	}
	if decoded != body {
		t.Errorf("body altered: %+v", decoded)
	}
}

func TestNotify_RawBodyPassthrough(t *testing.T) {
	ft := &fakeTransport{}
	r := New(ft)

	raw := json.RawMessage(`{"ownerId":"u1","senderId":"u2"}`)
	if err := r.Notify(context.Background(), event.KindMsgSeen, "u2", raw); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if string(ft.published[0].body) != string(raw) {
		t.Errorf("raw body was re-encoded: %s", ft.published[0].body)
	}
}

func TestNotify_RejectsEmptyRecipient(t *testing.T) {
	ft := &fakeTransport{}
	r := New(ft)

	if err := r.Notify(context.Background(), event.KindChatMessage, "", nil); err == nil {
		t.Error("expected error for empty recipient")
	}
	if len(ft.published) != 0 {
		t.Errorf("nothing should be published on validation failure, got %d", len(ft.published))
	}
}

func TestNotify_RejectsUnknownKind(t *testing.T) {
	ft := &fakeTransport{}
	r := New(ft)

	for _, kind := range []string{"", "delete-notification", "join"} {
		if err := r.Notify(context.Background(), kind, "user-42", nil); err == nil {
			t.Errorf("expected error for kind %q", kind)
		}
	}
	if len(ft.published) != 0 {
		t.Errorf("nothing should be published for invalid kinds, got %d", len(ft.published))
	}
}

func TestNotify_TransportErrorSurfaces(t *testing.T) {
	ft := &fakeTransport{err: errors.New("relay unreachable")}
	r := New(ft)

	err := r.Notify(context.Background(), event.KindChatMessage, "user-42", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected transport error to surface")
	}
	if !errors.Is(err, ft.err) {
		t.Errorf("error should wrap the transport failure: %v", err)
	}
}

// The router does not queue or retry: a failed publish is one failed attempt
// and the next Notify is independent of it.
func TestNotify_NoRetryAcrossCalls(t *testing.T) {
	ft := &fakeTransport{err: errors.New("down")}
	r := New(ft)

	_ = r.Notify(context.Background(), event.KindChatMessage, "user-42", json.RawMessage(`{"n":1}`))
	ft.err = nil
	if err := r.Notify(context.Background(), event.KindChatMessage, "user-42", json.RawMessage(`{"n":2}`)); err != nil {
		t.Fatalf("second notify failed: %v", err)
	}

	if len(ft.published) != 1 {
		t.Fatalf("expected only the second event, got %d publishes", len(ft.published))
	}
	if string(ft.published[0].body) != `{"n":2}` {
		t.Errorf("lost event must not reappear: %s", ft.published[0].body)
	}
}
