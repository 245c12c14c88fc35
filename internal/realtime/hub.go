// Package realtime fans mutation events out to connected stream consumers
// over Server-Sent Events. A connection is authenticated once, bound to the
// scopes its user belonged to at connect time, and isolated from its
// siblings: one slow or broken connection never affects delivery to the
// others.
package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/harborview/pulse/internal/catalog"
	"github.com/harborview/pulse/internal/idgen"
)

// connBufferSize is the per-connection delivery buffer. A consumer that
// falls this far behind starts losing events and must rely on catch-up
// replay after reconnecting.
const connBufferSize = 64

// Conn is one registered stream consumer.
type Conn struct {
	ID     string
	UserID string
	Scopes []string

	ch      chan *catalog.Envelope
	dropped atomic.Uint64

	closeOnce sync.Once
}

// Events is the connection's delivery channel. The stream handler drains it
// until the hub closes it or the consumer disconnects.
func (c *Conn) Events() <-chan *catalog.Envelope {
	return c.ch
}

// Dropped reports how many events were discarded because the consumer was
// too slow to drain its buffer.
func (c *Conn) Dropped() uint64 {
	return c.dropped.Load()
}

// Hub tracks live connections grouped by scope and broadcasts envelopes to
// every connection bound to the event's scope.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Conn]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[string]map[*Conn]struct{}),
		logger: logger,
	}
}

// Register creates a connection bound to the given scopes and adds it to
// the matching rooms. Events broadcast to any of those scopes from this
// point on are delivered to the connection.
func (h *Hub) Register(userID string, scopes []string) *Conn {
	id, err := idgen.GenerateWithPrefix(idgen.ConnectionPrefix)
	if err != nil {
		// nanoid only fails when the system entropy source does; fall back
		// to an empty ID rather than refusing the connection.
		h.logger.Warn("failed to generate connection id", "err", err)
	}
	c := &Conn{
		ID:     id,
		UserID: userID,
		Scopes: scopes,
		ch:     make(chan *catalog.Envelope, connBufferSize),
	}

	h.mu.Lock()
	for _, scope := range scopes {
		room, ok := h.rooms[scope]
		if !ok {
			room = make(map[*Conn]struct{})
			h.rooms[scope] = room
		}
		room[c] = struct{}{}
	}
	h.mu.Unlock()
	return c
}

// Unregister removes the connection from all its rooms and closes its
// channel. Safe to call more than once.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	for _, scope := range c.Scopes {
		if room, ok := h.rooms[scope]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, scope)
			}
		}
	}
	h.mu.Unlock()

	c.closeOnce.Do(func() { close(c.ch) })
}

// Broadcast delivers the envelope to every connection in the event's scope.
// Delivery to each connection is non-blocking: a full buffer counts a drop
// instead of stalling the publisher or the other connections.
func (h *Hub) Broadcast(env *catalog.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[env.ScopeID] {
		select {
		case c.ch <- env:
		default:
			if c.dropped.Add(1) == 1 {
				h.logger.Warn("stream consumer too slow, dropping events",
					"conn_id", c.ID, "user_id", c.UserID, "scope_id", env.ScopeID)
			}
		}
	}
}

// ConnCount reports how many connections are bound to the scope.
func (h *Hub) ConnCount(scopeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[scopeID])
}
