package registry

import (
	"sync"
	"testing"
)

func TestJoin_Idempotent(t *testing.T) {
	r := New()
	r.Join("c1", "user-42")
	r.Join("c1", "user-42")
	r.Join("c1", "user-42")

	members := r.Members("user-42")
	if len(members) != 1 {
		t.Fatalf("expected 1 member after repeated joins, got %d", len(members))
	}
	if members[0] != "c1" {
		t.Errorf("unexpected member: %q", members[0])
	}
}

func TestJoin_MultiDevice(t *testing.T) {
	r := New()
	r.Join("c1", "user-42")
	r.Join("c2", "user-42")

	if got := len(r.Members("user-42")); got != 2 {
		t.Errorf("expected 2 members for the same identity, got %d", got)
	}
	if r.GroupCount() != 1 {
		t.Errorf("expected 1 group, got %d", r.GroupCount())
	}
}

func TestJoin_RebindMovesConnection(t *testing.T) {
	r := New()
	r.Join("c1", "user-a")
	r.Join("c1", "user-b")

	if got := len(r.Members("user-a")); got != 0 {
		t.Errorf("old group should be empty after rebind, got %d members", got)
	}
	if got := len(r.Members("user-b")); got != 1 {
		t.Errorf("new group should have 1 member, got %d", got)
	}

	recipientID, ok := r.Recipient("c1")
	if !ok || recipientID != "user-b" {
		t.Errorf("unexpected recipient binding: %q (ok=%v)", recipientID, ok)
	}
}

func TestLeave_RemovesMembership(t *testing.T) {
	r := New()
	r.Join("c1", "user-42")
	r.Leave("c1")

	if got := len(r.Members("user-42")); got != 0 {
		t.Errorf("expected no members after leave, got %d", got)
	}
	if _, ok := r.Recipient("c1"); ok {
		t.Error("connection should be anonymous after leave")
	}
	if r.GroupCount() != 0 {
		t.Errorf("empty group should be dropped, got %d groups", r.GroupCount())
	}
}

func TestLeave_UnknownConnection(t *testing.T) {
	r := New()
	// Must not panic or create state.
	r.Leave("ghost")
	if r.ConnCount() != 0 {
		t.Errorf("unexpected connection count: %d", r.ConnCount())
	}
}

// A connection that disconnects and reconnects gets a fresh connection ID and
// receives nothing until it joins again — group membership does not survive a
// reconnect.
func TestReconnectDropsMembership(t *testing.T) {
	r := New()
	r.Join("c1", "user-42")

	// Disconnect removes the membership synchronously.
	r.Leave("c1")

	// The reconnected client ("c2") has not re-issued join.
	if got := len(r.Members("user-42")); got != 0 {
		t.Errorf("expected no members for user-42 after reconnect without join, got %d", got)
	}
}

func TestMembers_SnapshotIsIndependent(t *testing.T) {
	r := New()
	r.Join("c1", "user-42")

	members := r.Members("user-42")
	r.Leave("c1")

	if len(members) != 1 {
		t.Errorf("snapshot should be unaffected by later writes, got %d members", len(members))
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		connID := string(rune('a' + i%26))
		go func(id string) {
			defer wg.Done()
			r.Join(id, "user-42")
		}(connID)
		go func() {
			defer wg.Done()
			// Concurrent reads must never observe a half-updated set.
			_ = r.Members("user-42")
		}()
	}
	wg.Wait()

	for _, connID := range r.Members("user-42") {
		r.Leave(connID)
	}
	if r.ConnCount() != 0 {
		t.Errorf("expected all connections removed, got %d", r.ConnCount())
	}
}
