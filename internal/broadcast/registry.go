// ABOUTME: Concurrency-safe set of connected client handles
// ABOUTME: Snapshot-before-iterate keeps fan-out independent of registry mutation
package broadcast

import "sync"

// Registry holds the currently connected clients. The acceptor mutates it
// while the engine iterates snapshots; all methods are safe concurrently.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Add registers a client. Re-adding the same handle is a no-op. A client
// added after CloseAll is closed immediately so shutdown never leaves a
// connection dangling.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		c.Close()
		return
	}
	r.clients[c.ID] = c
	r.mu.Unlock()
}

// Remove unregisters a client. Removing an absent handle is a no-op.
func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	delete(r.clients, c.ID)
	r.mu.Unlock()
}

// Snapshot returns the membership at this instant. The returned slice is
// a copy; later mutation affects only later snapshots. No ordering is
// guaranteed.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Len returns the current client count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes every registered client and empties the registry. Used
// at shutdown so no connection is left dangling.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.closed = true
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
