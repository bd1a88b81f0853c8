package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/socialink/realtime/internal/event"
)

// Manager owns the client session's single live subscription. Establishing a
// subscription for a new identity always tears down the previous one first;
// skipping that discipline is the classic source of duplicate-event bugs, so
// the manager enforces it rather than trusting callers.
type Manager struct {
	source Source
	cache  Invalidator

	mu       sync.RWMutex
	identity string
	sub      Subscription
	latest   map[string]json.RawMessage
}

// NewManager creates a Manager over the given subscription source. The cache
// invalidator may be nil when the application keeps no query cache.
func NewManager(source Source, cache Invalidator) *Manager {
	return &Manager{
		source: source,
		cache:  cache,
		latest: make(map[string]json.RawMessage),
	}
}

// SetIdentity establishes the subscription for the given recipient identity.
// Any previous subscription is torn down first, and the latest-value state is
// reset: events for the old identity must never surface in the new session.
// Setting the identity already active is a no-op.
func (m *Manager) SetIdentity(recipientID string) error {
	if recipientID == "" {
		return fmt.Errorf("client: recipient identity is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.identity == recipientID && m.sub != nil {
		return nil
	}

	m.teardownLocked()

	sub, err := m.source.Subscribe(recipientID)
	if err != nil {
		return fmt.Errorf("client: subscribe for %s: %w", recipientID, err)
	}

	for _, kind := range event.Kinds() {
		kind := kind
		sub.Bind(kind, func(data json.RawMessage) {
			m.apply(sub, kind, data)
		})
	}

	m.identity = recipientID
	m.sub = sub
	return nil
}

// ClearIdentity tears down the live subscription, if any. Called on logout
// and on the owning scope's exit.
func (m *Manager) ClearIdentity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

// teardownLocked unbinds and tears down the current subscription and resets
// the per-kind state. Caller must hold the write lock.
func (m *Manager) teardownLocked() {
	if m.sub == nil {
		return
	}
	for _, kind := range event.Kinds() {
		m.sub.Unbind(kind)
	}
	// Teardown failures leave nothing for the caller to act on; the
	// subscription is unusable either way.
	_ = m.sub.Teardown()
	m.sub = nil
	m.identity = ""
	m.latest = make(map[string]json.RawMessage)
}

// apply records the latest payload for a kind and invalidates the dependent
// cache key. The owning-subscription check discards events that race with a
// teardown: a payload delivered for a previous identity must not be observed.
func (m *Manager) apply(owner Subscription, kind string, data json.RawMessage) {
	m.mu.Lock()
	if m.sub != owner {
		m.mu.Unlock()
		return
	}
	m.latest[kind] = data
	m.mu.Unlock()

	if m.cache != nil {
		switch kind {
		case event.KindChatMessage:
			m.cache.Invalidate(CacheConversations)
		case event.KindMsgSeen:
			m.cache.Invalidate(CacheConversationDetail)
		case event.KindNotification:
			m.cache.Invalidate(CacheNotifications)
		}
	}
}

// Latest returns the most recent payload received for the kind, or nil if
// none has arrived in the current session.
func (m *Manager) Latest(kind string) json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest[kind]
}

// Identity returns the currently subscribed recipient identity, or an empty
// string when no subscription is live.
func (m *Manager) Identity() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}
