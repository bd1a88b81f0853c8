package client

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/socialink/realtime/internal/event"
)

// fakeSubscription records handler bindings and lets tests push events
// through them as the transport would.
type fakeSubscription struct {
	mu       sync.Mutex
	handlers map[string]Handler
	torn     bool
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{handlers: make(map[string]Handler)}
}

func (f *fakeSubscription) Bind(name string, handler Handler) {
	f.mu.Lock()
	f.handlers[name] = handler
	f.mu.Unlock()
}

func (f *fakeSubscription) Unbind(name string) {
	f.mu.Lock()
	delete(f.handlers, name)
	f.mu.Unlock()
}

func (f *fakeSubscription) Teardown() error {
	f.mu.Lock()
	f.torn = true
	f.mu.Unlock()
	return nil
}

// deliver pushes an event through the bound handler, mimicking a transport
// receive. The handler reference is captured before invoking so a concurrent
// unbind does not race the call.
func (f *fakeSubscription) deliver(kind string, data json.RawMessage) {
	f.mu.Lock()
	handler, ok := f.handlers[kind]
	f.mu.Unlock()
	if ok {
		handler(data)
	}
}

// fakeSource hands out fake subscriptions and remembers them per identity.
type fakeSource struct {
	subs map[string]*fakeSubscription
	err  error
}

func newFakeSource() *fakeSource {
	return &fakeSource{subs: make(map[string]*fakeSubscription)}
}

func (f *fakeSource) Subscribe(recipientID string) (Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	sub := newFakeSubscription()
	f.subs[recipientID] = sub
	return sub, nil
}

// recordingCache counts invalidations per key.
type recordingCache struct {
	mu   sync.Mutex
	hits map[string]int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{hits: make(map[string]int)}
}

func (c *recordingCache) Invalidate(key string) {
	c.mu.Lock()
	c.hits[key]++
	c.mu.Unlock()
}

func (c *recordingCache) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[key]
}

func TestSetIdentity_BindsAllKinds(t *testing.T) {
	source := newFakeSource()
	m := NewManager(source, nil)

	if err := m.SetIdentity("user-42"); err != nil {
		t.Fatalf("set identity: %v", err)
	}

	sub := source.subs["user-42"]
	for _, kind := range event.Kinds() {
		if _, ok := sub.handlers[kind]; !ok {
			t.Errorf("no handler bound for kind %q", kind)
		}
	}
}

func TestLatest_NilBeforeFirstEvent(t *testing.T) {
	source := newFakeSource()
	m := NewManager(source, nil)

	if err := m.SetIdentity("user-42"); err != nil {
		t.Fatalf("set identity: %v", err)
	}
	for _, kind := range event.Kinds() {
		if m.Latest(kind) != nil {
			t.Errorf("Latest(%q) should be nil before any event", kind)
		}
	}
}

func TestEventUpdatesLatestAndInvalidatesCache(t *testing.T) {
	source := newFakeSource()
	cache := newRecordingCache()
	m := NewManager(source, cache)

	if err := m.SetIdentity("user-42"); err != nil {
		t.Fatalf("set identity: %v", err)
	}

	payload := json.RawMessage(`{"type":"LIKE","message":"liked your post","senderId":"user-7","id":"notif-1"}`)
	source.subs["user-42"].deliver(event.KindNotification, payload)

	if got := m.Latest(event.KindNotification); string(got) != string(payload) {
		t.Errorf("Latest returned wrong payload: %s", got)
	}
	if got := cache.count(CacheNotifications); got != 1 {
		t.Errorf("notification cache key should be invalidated exactly once, got %d", got)
	}
	if got := cache.count(CacheConversations); got != 0 {
		t.Errorf("conversation cache key should be untouched, got %d", got)
	}
}

func TestCacheKeyPerKind(t *testing.T) {
	source := newFakeSource()
	cache := newRecordingCache()
	m := NewManager(source, cache)

	if err := m.SetIdentity("user-42"); err != nil {
		t.Fatalf("set identity: %v", err)
	}
	sub := source.subs["user-42"]

	sub.deliver(event.KindChatMessage, json.RawMessage(`{"messageText":"hi"}`))
	sub.deliver(event.KindMsgSeen, json.RawMessage(`{"ownerId":"u1","senderId":"u2"}`))
	sub.deliver(event.KindNotification, json.RawMessage(`{"type":"COMMENTE"}`))

	for key, want := range map[string]int{
		CacheConversations:      1,
		CacheConversationDetail: 1,
		CacheNotifications:      1,
	} {
		if got := cache.count(key); got != want {
			t.Errorf("cache key %q: expected %d invalidations, got %d", key, want, got)
		}
	}
}

// Teardown-prevents-duplication: after switching identities, events pushed
// through the old subscription must not be observed, and the old handlers
// must be gone.
func TestIdentitySwitchTearsDownPrevious(t *testing.T) {
	source := newFakeSource()
	cache := newRecordingCache()
	m := NewManager(source, cache)

	if err := m.SetIdentity("user-a"); err != nil {
		t.Fatalf("set identity a: %v", err)
	}
	subA := source.subs["user-a"]

	subA.deliver(event.KindNotification, json.RawMessage(`{"id":"for-a"}`))

	if err := m.SetIdentity("user-b"); err != nil {
		t.Fatalf("set identity b: %v", err)
	}

	if !subA.torn {
		t.Error("previous subscription must be torn down before the new one is established")
	}
	if len(subA.handlers) != 0 {
		t.Errorf("previous subscription should have no handlers left, got %d", len(subA.handlers))
	}

	// Latest state from the old identity must not leak into the new session.
	if m.Latest(event.KindNotification) != nil {
		t.Error("latest state must reset on identity change")
	}

	// A late event racing the teardown is discarded, not applied.
	subA.deliver(event.KindNotification, json.RawMessage(`{"id":"late-for-a"}`))
	if m.Latest(event.KindNotification) != nil {
		t.Error("event for the old identity must not be observed after teardown")
	}
	if got := cache.count(CacheNotifications); got != 1 {
		t.Errorf("late event must not invalidate caches again, got %d", got)
	}
}

func TestSetIdentity_SameIdentityIsNoOp(t *testing.T) {
	source := newFakeSource()
	m := NewManager(source, nil)

	if err := m.SetIdentity("user-42"); err != nil {
		t.Fatalf("set identity: %v", err)
	}
	first := source.subs["user-42"]

	if err := m.SetIdentity("user-42"); err != nil {
		t.Fatalf("re-set identity: %v", err)
	}
	if first.torn {
		t.Error("re-setting the same identity must not tear down the subscription")
	}
}

func TestClearIdentity(t *testing.T) {
	source := newFakeSource()
	m := NewManager(source, nil)

	if err := m.SetIdentity("user-42"); err != nil {
		t.Fatalf("set identity: %v", err)
	}
	sub := source.subs["user-42"]

	m.ClearIdentity()

	if !sub.torn {
		t.Error("clear must tear down the subscription")
	}
	if m.Identity() != "" {
		t.Errorf("identity should be empty after clear, got %q", m.Identity())
	}

	// Clearing again is safe.
	m.ClearIdentity()
}

func TestSetIdentity_SubscribeError(t *testing.T) {
	source := newFakeSource()
	source.err = errors.New("server unreachable")
	m := NewManager(source, nil)

	if err := m.SetIdentity("user-42"); err == nil {
		t.Fatal("expected subscribe error to surface")
	}
	if m.Identity() != "" {
		t.Error("identity must not be set when subscribe fails")
	}
}

func TestSetIdentity_EmptyIdentity(t *testing.T) {
	m := NewManager(newFakeSource(), nil)
	if err := m.SetIdentity(""); err == nil {
		t.Error("expected error for empty identity")
	}
}

// Mode transparency: the manager observes the same (kind, payload) sequence
// regardless of which source produced the subscription, because both
// transports deliver the same envelope payloads to the same handler set.
func TestModeTransparency(t *testing.T) {
	sequence := []struct {
		kind string
		data string
	}{
		{event.KindChatMessage, `{"messageText":"hi","senderId":"u1","convoId":"cv1"}`},
		{event.KindNotification, `{"type":"FRIEND-REQUEST","senderId":"u3","id":"n1"}`},
		{event.KindMsgSeen, `{"ownerId":"u2","senderId":"u1"}`},
	}

	observe := func(source *fakeSource) []string {
		var mu sync.Mutex
		var observed []string
		m := NewManager(source, InvalidatorFunc(func(string) {}))
		if err := m.SetIdentity("user-42"); err != nil {
			t.Fatalf("set identity: %v", err)
		}
		sub := source.subs["user-42"]
		// Wrap delivery through the subscription exactly as a transport would.
		for _, e := range sequence {
			sub.deliver(e.kind, json.RawMessage(e.data))
			mu.Lock()
			observed = append(observed, e.kind+"|"+string(m.Latest(e.kind)))
			mu.Unlock()
		}
		return observed
	}

	socketObserved := observe(newFakeSource())
	relayObserved := observe(newFakeSource())

	if len(socketObserved) != len(relayObserved) {
		t.Fatalf("observation lengths differ: %d vs %d", len(socketObserved), len(relayObserved))
	}
	for i := range socketObserved {
		if socketObserved[i] != relayObserved[i] {
			t.Errorf("observation %d differs: %q vs %q", i, socketObserved[i], relayObserved[i])
		}
	}
}
