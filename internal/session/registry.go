package session

import (
	"sync"
	"time"

	"pairpad/internal/metrics"
	"pairpad/internal/models"
)

type connSet struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	evict   *time.Timer
}

// Registry tracks live connections per session and fans frames out to them.
// It performs no session-existence checks; callers validate against the
// session store first.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*connSet
	grace    time.Duration
	onEvict  func(sessionID string)
}

// NewRegistry builds a registry. onEvict fires after a session's connection
// set has stayed empty for the grace window (or on forced teardown), letting
// the owner drop the session's cached state.
func NewRegistry(grace time.Duration, onEvict func(sessionID string)) *Registry {
	if onEvict == nil {
		onEvict = func(string) {}
	}
	return &Registry{
		sessions: make(map[string]*connSet),
		grace:    grace,
		onEvict:  onEvict,
	}
}

// Register adds the connection to the session's live set, cancelling any
// pending eviction so a quick reconnect keeps the cached state. The insert
// happens under r.mu end to end: a grace-window eviction firing concurrently
// either completes before the lookup or observes the new connection, so a
// client can never be added to a set already dropped from the map.
func (r *Registry) Register(sessionID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[sessionID]
	if !ok {
		set = &connSet{clients: make(map[*Client]struct{})}
		r.sessions[sessionID] = set
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	if set.evict != nil {
		// A Stop that loses the race is harmless: the timer callback blocks
		// on r.mu and then finds the set non-empty.
		set.evict.Stop()
		set.evict = nil
	}
	set.clients[c] = struct{}{}
}

// Unregister removes the connection; removing one that is not registered is a
// no-op. When the set becomes empty the eviction timer starts.
func (r *Registry) Unregister(sessionID string, c *Client) int {
	r.mu.RLock()
	set, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	delete(set.clients, c)
	remaining := len(set.clients)
	if remaining == 0 && set.evict == nil {
		set.evict = time.AfterFunc(r.grace, func() { r.evictIfEmpty(sessionID) })
	}
	return remaining
}

func (r *Registry) evictIfEmpty(sessionID string) {
	r.mu.Lock()
	set, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	set.mu.Lock()
	empty := len(set.clients) == 0
	set.mu.Unlock()
	if empty {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if empty {
		r.onEvict(sessionID)
	}
}

// Broadcast delivers the frame to every registered connection of the session
// except exclude, returning the delivered count. Each delivery is independent:
// a dead connection is closed asynchronously and never fails the others.
func (r *Registry) Broadcast(sessionID string, frame models.Frame, exclude *Client) int {
	r.mu.RLock()
	set, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	set.mu.Lock()
	clients := make([]*Client, 0, len(set.clients))
	for c := range set.clients {
		if c == exclude {
			continue
		}
		clients = append(clients, c)
	}
	set.mu.Unlock()

	delivered := 0
	for _, c := range clients {
		if err := c.Send(frame); err != nil {
			// Dead recipient: force the transport closed so its read loop
			// runs the normal disconnect sequence.
			go c.Close()
			continue
		}
		delivered++
	}
	metrics.FramesBroadcast.Add(float64(delivered))
	return delivered
}

// Count returns the number of live connections for the session.
func (r *Registry) Count(sessionID string) int {
	r.mu.RLock()
	set, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.clients)
}

// CloseSession force-closes every connection and drops the set immediately.
// Used when a session is deleted or expires.
func (r *Registry) CloseSession(sessionID string) {
	r.mu.Lock()
	set, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	set.mu.Lock()
	if set.evict != nil {
		set.evict.Stop()
		set.evict = nil
	}
	clients := make([]*Client, 0, len(set.clients))
	for c := range set.clients {
		clients = append(clients, c)
	}
	set.clients = make(map[*Client]struct{})
	set.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	r.onEvict(sessionID)
}

// stale returns connections whose last ping is older than the timeout,
// grouped with their session ids.
func (r *Registry) stale(timeout time.Duration, now time.Time) map[string][]*Client {
	r.mu.RLock()
	sets := make(map[string]*connSet, len(r.sessions))
	for id, set := range r.sessions {
		sets[id] = set
	}
	r.mu.RUnlock()

	out := make(map[string][]*Client)
	for id, set := range sets {
		set.mu.Lock()
		for c := range set.clients {
			if now.Sub(c.LastPing()) > timeout {
				out[id] = append(out[id], c)
			}
		}
		set.mu.Unlock()
	}
	return out
}
