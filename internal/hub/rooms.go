// Package hub maintains the room directory: membership, room metadata, and
// the id convention that assigns each room a kind.
package hub

import (
	"sort"
	"strings"
	"time"
)

// RoomKind classifies a room by its id convention.
type RoomKind string

// Room kinds inferred once, at creation, from the room id.
const (
	KindGeneral     RoomKind = "general"
	KindTopic       RoomKind = "topic"
	KindUserScoped  RoomKind = "userScoped"
	KindAdminScoped RoomKind = "adminScoped"
)

// DefaultRoom is the room every connection joins right after registration.
const DefaultRoom = "general"

type room struct {
	id        string
	kind      RoomKind
	createdAt time.Time
	conns     map[string]*Conn
}

// RoomInfo is a read-only projection of one room. MemberUserIDs is
// recomputed from live connections at call time, never cached.
type RoomInfo struct {
	ID            string    `json:"id"`
	Kind          RoomKind  `json:"kind"`
	CreatedAt     time.Time `json:"createdAt"`
	MemberUserIDs []string  `json:"memberUserIds"`
	Connections   int       `json:"connections"`
}

// KindForRoom infers the room kind from the id convention: "general",
// "user:<id>", "admin:<id>", and everything else is a topic room.
func KindForRoom(roomID string) RoomKind {
	switch {
	case roomID == DefaultRoom:
		return KindGeneral
	case strings.HasPrefix(roomID, "user:"):
		return KindUserScoped
	case strings.HasPrefix(roomID, "admin:"):
		return KindAdminScoped
	default:
		return KindTopic
	}
}

// Join adds the connection to the room, creating the room on first join.
// Both sides of the membership are updated in the same critical section.
// Joining twice, or with an unregistered connection, is a no-op.
func (h *Hub) Join(conn *Conn, roomID string) {
	if conn == nil || roomID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, registered := h.conns[conn.id]; !registered {
		return
	}
	rm, ok := h.rooms[roomID]
	if !ok {
		rm = &room{
			id:        roomID,
			kind:      KindForRoom(roomID),
			createdAt: h.now(),
			conns:     make(map[string]*Conn),
		}
		h.rooms[roomID] = rm
	}
	rm.conns[conn.id] = conn
	conn.rooms[roomID] = struct{}{}
}

// Leave removes the connection from the room. Unknown rooms and non-members
// are a no-op. The room record itself is never deleted; rooms are cheap and
// their ids are bounded by application semantics.
func (h *Hub) Leave(conn *Conn, roomID string) {
	if conn == nil || roomID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if rm, ok := h.rooms[roomID]; ok {
		delete(rm.conns, conn.id)
	}
	delete(conn.rooms, roomID)
}

// RoomInfo returns a projection of the room, or nil when it was never
// created. Anonymous connections count toward Connections but contribute no
// user id.
func (h *Hub) RoomInfo(roomID string) *RoomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rm, ok := h.rooms[roomID]
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	userIDs := make([]string, 0, len(rm.conns))
	for _, conn := range rm.conns {
		uid := conn.UserID()
		if uid == "" {
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		userIDs = append(userIDs, uid)
	}
	sort.Strings(userIDs)

	return &RoomInfo{
		ID:            rm.id,
		Kind:          rm.kind,
		CreatedAt:     rm.createdAt,
		MemberUserIDs: userIDs,
		Connections:   len(rm.conns),
	}
}

// Rooms returns the ids of every room created so far, sorted.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
