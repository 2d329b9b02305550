// Package hub defines the connection record shared between the registry and
// the transport layer.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/relaycore/internal/auth"
)

// Conn is one live transport-level connection. The transport creates it,
// registers it with the Hub, and drains Outbox from its write pump. The id
// and principal are immutable; every other field is guarded by the Hub's
// lock.
type Conn struct {
	id        string
	principal *auth.Principal

	send      chan []byte
	closeOnce sync.Once

	rooms        map[string]struct{}
	createdAt    time.Time
	lastActivity time.Time
}

// NewConn builds a connection record with the given outbox capacity. An
// empty id is replaced with a fresh UUID; principal may be nil for anonymous
// connections.
func NewConn(id string, principal *auth.Principal, buffer int) *Conn {
	if id == "" {
		id = uuid.NewString()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Conn{
		id:        id,
		principal: principal,
		send:      make(chan []byte, buffer),
		rooms:     make(map[string]struct{}),
	}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Principal returns the authenticated identity, if any.
func (c *Conn) Principal() (auth.Principal, bool) {
	if c.principal == nil {
		return auth.Principal{}, false
	}
	return *c.principal, true
}

// UserID returns the principal's user id, or "" for anonymous connections.
func (c *Conn) UserID() string {
	if c.principal == nil {
		return ""
	}
	return c.principal.UserID
}

// Outbox is the channel the transport's write pump drains. It is closed when
// the connection is unregistered.
func (c *Conn) Outbox() <-chan []byte { return c.send }

// TrySend enqueues a message without blocking. It reports false when the
// outbox is full or already closed; a send race with Close is absorbed by
// the recover.
func (c *Conn) TrySend(message []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// Close closes the outbox exactly once. The Hub calls it during unregister;
// transports must not call it directly.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// ConnInfo is a read-only projection of one registered connection.
type ConnInfo struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId,omitempty"`
	Role           string    `json:"role,omitempty"`
	Name           string    `json:"name,omitempty"`
	Rooms          []string  `json:"rooms"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}
