// Package registry tracks which socket connections belong to which recipient
// identity so that delivery can address a recipient's group without knowing
// its connections individually. A recipient may own any number of concurrent
// connections (multiple tabs or devices); a connection belongs to at most one
// group at a time.
package registry

import "sync"

// GroupName returns the logical group name for a recipient identity.
func GroupName(recipientID string) string {
	return "user:" + recipientID
}

// Registry is a thread-safe membership table mapping recipient identities to
// the set of connection IDs bound to them, with a reverse index for O(1)
// removal on disconnect. Writes are atomic with respect to concurrent
// delivery: Members never observes a half-updated set.
type Registry struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // recipientID -> set of connIDs
	byConn  map[string]string              // connID -> recipientID
}

// New creates an empty Registry ready for use.
func New() *Registry {
	return &Registry{
		members: make(map[string]map[string]struct{}),
		byConn:  make(map[string]string),
	}
}

// Join binds a connection to the recipient's group. Joining the same group
// twice is a no-op. If the connection was previously bound to a different
// identity, the old membership is removed first so a connection never belongs
// to two groups.
func (r *Registry) Join(connID, recipientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[connID]; ok {
		if prev == recipientID {
			return
		}
		r.removeLocked(connID, prev)
	}

	set, ok := r.members[recipientID]
	if !ok {
		set = make(map[string]struct{})
		r.members[recipientID] = set
	}
	set[connID] = struct{}{}
	r.byConn[connID] = recipientID
}

// Leave removes the connection from whatever group it belongs to. It is a
// no-op for connections that never joined. Called synchronously with the
// transport-level disconnect so delivery never addresses a dead connection.
func (r *Registry) Leave(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recipientID, ok := r.byConn[connID]
	if !ok {
		return
	}
	r.removeLocked(connID, recipientID)
}

// removeLocked deletes the membership entry and drops the group once empty.
// Caller must hold the write lock.
func (r *Registry) removeLocked(connID, recipientID string) {
	delete(r.byConn, connID)
	if set, ok := r.members[recipientID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.members, recipientID)
		}
	}
}

// Members returns a snapshot of the connection IDs currently bound to the
// recipient. The slice is safe to iterate without holding the lock. An empty
// result is not an error: delivery to a zero-member group is a silent drop.
func (r *Registry) Members(recipientID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.members[recipientID]
	if !ok {
		return nil
	}
	conns := make([]string, 0, len(set))
	for connID := range set {
		conns = append(conns, connID)
	}
	return conns
}

// Recipient returns the identity a connection is bound to, or false if the
// connection is anonymous (connected but never joined).
func (r *Registry) Recipient(connID string) (string, bool) {
	r.mu.RLock()
	recipientID, ok := r.byConn[connID]
	r.mu.RUnlock()
	return recipientID, ok
}

// GroupCount returns the number of groups with at least one member.
func (r *Registry) GroupCount() int {
	r.mu.RLock()
	n := len(r.members)
	r.mu.RUnlock()
	return n
}

// ConnCount returns the number of connections currently bound to any group.
func (r *Registry) ConnCount() int {
	r.mu.RLock()
	n := len(r.byConn)
	r.mu.RUnlock()
	return n
}
