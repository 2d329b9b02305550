// Package hub tracks every live connection, the user index, and room
// membership, and fans events out to rooms, users, or the whole process.
// One lock guards all three maps so connection state and room membership
// can never disagree.
package hub

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/relaycore/relaycore/internal/auth"
	"github.com/relaycore/relaycore/internal/protocol"
)

// Hub owns the connection registry, the user index, and the room directory.
// All mutating operations take the write lock; projections take the read
// lock and never hold it across delivery.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	users  map[string]map[string]*Conn
	rooms  map[string]*room
	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:  make(map[string]*Conn),
		users:  make(map[string]map[string]*Conn),
		rooms:  make(map[string]*room),
		logger: logger,
		now:    time.Now,
	}
}

// Register adds the connection and indexes its principal. A user's first
// connection announces presence to everyone; every registration refreshes
// the connection count broadcast. Registering an id twice is a no-op.
func (h *Hub) Register(conn *Conn) {
	if conn == nil {
		return
	}

	h.mu.Lock()
	if _, exists := h.conns[conn.id]; exists {
		h.mu.Unlock()
		return
	}
	now := h.now()
	conn.createdAt = now
	conn.lastActivity = now
	h.conns[conn.id] = conn

	first := false
	var p auth.Principal
	if conn.principal != nil {
		p = *conn.principal
		userConns := h.users[p.UserID]
		if userConns == nil {
			userConns = make(map[string]*Conn)
			h.users[p.UserID] = userConns
		}
		userConns[conn.id] = conn
		first = len(userConns) == 1
	}
	count := len(h.conns)
	h.mu.Unlock()

	h.logger.Info("connection registered", "conn_id", conn.id, "user_id", p.UserID, "total", count)

	if first {
		h.BroadcastToAll(protocol.EventUserJoined, protocol.UserJoinedPayload{UserID: p.UserID, Name: p.Name})
	}
	h.BroadcastToAll(protocol.EventConnectionCount, protocol.ConnectionCountPayload{Count: count})
}

// Unregister removes the connection from every joined room, the user index,
// and the registry, then closes its outbox. Removing a user's last
// connection announces departure exactly once. Unknown ids are a no-op so
// disconnect races stay harmless.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	for roomID := range conn.rooms {
		if rm, exists := h.rooms[roomID]; exists {
			delete(rm.conns, connID)
		}
	}
	conn.rooms = make(map[string]struct{})
	delete(h.conns, connID)

	last := false
	var p auth.Principal
	if conn.principal != nil {
		p = *conn.principal
		if userConns, exists := h.users[p.UserID]; exists {
			delete(userConns, connID)
			if len(userConns) == 0 {
				delete(h.users, p.UserID)
				last = true
			}
		}
	}
	count := len(h.conns)
	h.mu.Unlock()

	conn.Close()
	h.logger.Info("connection unregistered", "conn_id", connID, "user_id", p.UserID, "total", count)

	if last {
		h.BroadcastToAll(protocol.EventUserLeft, protocol.UserLeftPayload{UserID: p.UserID})
	}
	h.BroadcastToAll(protocol.EventConnectionCount, protocol.ConnectionCountPayload{Count: count})
}

// Touch refreshes the connection's last-activity timestamp. Unknown ids are
// a no-op.
func (h *Hub) Touch(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn, ok := h.conns[connID]; ok {
		conn.lastActivity = h.now()
	}
}

// CountConnections returns the number of live connections.
func (h *Hub) CountConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ConnectionsForUser returns the ids of the user's live connections,
// sorted. A user with no connections yields an empty slice.
func (h *Hub) ConnectionsForUser(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userConns := h.users[userID]
	ids := make([]string, 0, len(userConns))
	for id := range userConns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a projection of every live connection, sorted by id.
func (h *Hub) Snapshot() []ConnInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]ConnInfo, 0, len(h.conns))
	for _, conn := range h.conns {
		info := ConnInfo{
			ID:             conn.id,
			Rooms:          make([]string, 0, len(conn.rooms)),
			CreatedAt:      conn.createdAt,
			LastActivityAt: conn.lastActivity,
		}
		if conn.principal != nil {
			info.UserID = conn.principal.UserID
			info.Role = conn.principal.Role
			info.Name = conn.principal.Name
		}
		for roomID := range conn.rooms {
			info.Rooms = append(info.Rooms, roomID)
		}
		sort.Strings(info.Rooms)
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// CloseAll unregisters every connection, closing each outbox so the write
// pumps drain and exit. Used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Unregister(id)
	}
}
