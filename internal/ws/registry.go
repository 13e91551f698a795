package ws

import (
	"sync"

	"github.com/rchat/internal/event"
	"github.com/rchat/internal/logger"
)

// Registry maps an authenticated user id to their one live connection.
// Policy is last-bind-wins: a user has at most one binding, and a newer
// handshake supersedes (and closes) the previous connection. Pure in-memory
// state, rebuilt from zero on restart.
//
// The registry is shared by every connection's handler task; all access
// goes through the mutex and no I/O happens under it.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Bind records that the user is now reachable at c. Any prior binding for
// the same user is superseded and the stale connection closed.
func (r *Registry) Bind(userID string, c *Client) {
	r.mu.Lock()
	prev := r.clients[userID]
	r.clients[userID] = c
	r.mu.Unlock()

	if prev != nil && prev != c {
		// Network I/O outside the lock.
		logger.Debugf("registry: superseding connection user=%s", userID)
		prev.Close()
	}
}

// Unbind removes the binding owned by c, but only if c is still the
// connection on record — a stale disconnect must not clobber a newer
// binding.
func (r *Registry) Unbind(c *Client) {
	r.mu.Lock()
	if cur, ok := r.clients[c.userID]; ok && cur == c {
		delete(r.clients, c.userID)
	}
	r.mu.Unlock()
}

// Lookup returns the user's live connection, if any. Absence means the
// recipient gets the message later via pull, not push.
func (r *Registry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	c, ok := r.clients[userID]
	r.mu.RUnlock()
	return c, ok
}

// IsOnline reports whether the user currently holds a live connection.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Push delivers an event to the user's live connection, if any. Best
// effort and at-most-once: a full send buffer closes the slow client and
// the event is dropped for them. Reports whether the event was handed to a
// live connection.
func (r *Registry) Push(userID string, ev event.Event) bool {
	c, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	select {
	case c.send <- ev:
		return true
	case <-c.done:
		return false
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
		return false
	}
}

// drain removes and returns every binding. Used on shutdown; callers close
// the connections outside the lock.
func (r *Registry) drain() []*Client {
	r.mu.Lock()
	all := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		all = append(all, c)
	}
	r.clients = make(map[string]*Client)
	r.mu.Unlock()
	return all
}

// Len returns the number of live bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
