package event

import (
	"encoding/json"
	"testing"
)

func TestValidKind(t *testing.T) {
	for _, kind := range Kinds() {
		if !ValidKind(kind) {
			t.Errorf("kind %q should be valid", kind)
		}
	}

	for _, kind := range []string{"", "join", "ping", "delete-notification", "ChatMessage"} {
		if ValidKind(kind) {
			t.Errorf("kind %q should not be valid", kind)
		}
	}
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"event":"chatMessage","data":{"messageText":"hi"}}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if env.Event != KindChatMessage {
		t.Errorf("unexpected event name: %q", env.Event)
	}

	var body ChatMessageBody
	if err := json.Unmarshal(env.Data, &body); err != nil {
		t.Fatalf("data decode failed: %v", err)
	}
	if body.MessageText != "hi" {
		t.Errorf("unexpected message text: %q", body.MessageText)
	}
}

func TestParseEnvelope_Invalid(t *testing.T) {
	if _, err := ParseEnvelope([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
	if _, err := ParseEnvelope([]byte(`{"data":{}}`)); err == nil {
		t.Error("expected error for missing event name")
	}
}

func TestJoinEvent_PayloadIsBareString(t *testing.T) {
	data, err := NewJoinEvent("user-42")
	if err != nil {
		t.Fatalf("build join failed: %v", err)
	}

	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("parse join failed: %v", err)
	}
	if env.Event != TypeJoin {
		t.Errorf("unexpected event name: %q", env.Event)
	}

	// The wire contract requires the identity as a JSON string, not an object.
	if string(env.Data) != `"user-42"` {
		t.Errorf("join data should be a bare string, got %s", env.Data)
	}

	id, err := DecodeJoin(env.Data)
	if err != nil {
		t.Fatalf("decode join failed: %v", err)
	}
	if id != "user-42" {
		t.Errorf("unexpected identity: %q", id)
	}
}

func TestDecodeJoin_Rejects(t *testing.T) {
	if _, err := DecodeJoin(json.RawMessage(`{"userId":"u1"}`)); err == nil {
		t.Error("expected error for object payload")
	}
	if _, err := DecodeJoin(json.RawMessage(`""`)); err == nil {
		t.Error("expected error for empty identity")
	}
}

func TestNewServerEvent_RawPassthrough(t *testing.T) {
	raw := json.RawMessage(`{"ownerId":"u1","senderId":"u2"}`)
	data, err := NewServerEvent(KindMsgSeen, raw)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if string(env.Data) != string(raw) {
		t.Errorf("payload was re-encoded: %s", env.Data)
	}
}

func TestTargetRecipient(t *testing.T) {
	target, err := TargetRecipient(KindChatMessage, json.RawMessage(`{"toUserId":"u9","messageText":"yo"}`))
	if err != nil {
		t.Fatalf("chatMessage target: %v", err)
	}
	if target != "u9" {
		t.Errorf("unexpected chatMessage target: %q", target)
	}

	target, err = TargetRecipient(KindNotification, json.RawMessage(`{"toUserId":"u3","type":"LIKE"}`))
	if err != nil {
		t.Fatalf("notification target: %v", err)
	}
	if target != "u3" {
		t.Errorf("unexpected notification target: %q", target)
	}

	// changeMsgSeen is delivered to the sender whose messages were seen.
	target, err = TargetRecipient(KindMsgSeen, json.RawMessage(`{"ownerId":"u1","senderId":"u2"}`))
	if err != nil {
		t.Fatalf("changeMsgSeen target: %v", err)
	}
	if target != "u2" {
		t.Errorf("unexpected changeMsgSeen target: %q", target)
	}
}

func TestTargetRecipient_Missing(t *testing.T) {
	if _, err := TargetRecipient(KindChatMessage, json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for missing toUserId")
	}
	if _, err := TargetRecipient(KindMsgSeen, json.RawMessage(`{"ownerId":"u1"}`)); err == nil {
		t.Error("expected error for missing senderId")
	}
	if _, err := TargetRecipient("delete-notification", json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for unknown kind")
	}
}
