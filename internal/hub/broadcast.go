// Package hub implements the broadcast engine: envelope fan-out to a room,
// a user's connections, one connection, or everyone. The recipient set is
// computed under the read lock and delivery happens after release, so a
// slow connection can never stall the registry.
package hub

import "github.com/relaycore/relaycore/internal/protocol"

// BroadcastToRoom delivers the event to every connection currently in the
// room. Unknown rooms are a silent no-op.
func (h *Hub) BroadcastToRoom(roomID string, event string, payload any) {
	message, err := protocol.Encode(event, payload)
	if err != nil {
		h.logger.Error("encode broadcast", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	var targets []*Conn
	if rm, ok := h.rooms[roomID]; ok {
		targets = make([]*Conn, 0, len(rm.conns))
		for _, conn := range rm.conns {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	h.deliver(targets, event, message)
}

// BroadcastToUser delivers the event to every connection of the user. A
// user with no live connection is a silent no-op; callers must not treat
// that as failure.
func (h *Hub) BroadcastToUser(userID string, event string, payload any) {
	message, err := protocol.Encode(event, payload)
	if err != nil {
		h.logger.Error("encode broadcast", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	userConns := h.users[userID]
	targets := make([]*Conn, 0, len(userConns))
	for _, conn := range userConns {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	h.deliver(targets, event, message)
}

// BroadcastToAll delivers the event to every live connection.
func (h *Hub) BroadcastToAll(event string, payload any) {
	message, err := protocol.Encode(event, payload)
	if err != nil {
		h.logger.Error("encode broadcast", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	h.deliver(targets, event, message)
}

// SendToConn delivers the event to a single connection. It reports false
// when the connection is unknown or its outbox could not take the message,
// which callers treat as "this one action had no effect".
func (h *Hub) SendToConn(connID string, event string, payload any) bool {
	message, err := protocol.Encode(event, payload)
	if err != nil {
		h.logger.Error("encode event", "event", event, "error", err)
		return false
	}

	h.mu.RLock()
	conn, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	if !conn.TrySend(message) {
		h.logger.Warn("event dropped, outbox unavailable", "event", event, "conn_id", connID)
		return false
	}
	return true
}

// deliver enqueues a pre-encoded message to each target. The message was
// marshaled once by the caller; enqueueing is non-blocking, so a full or
// closing outbox drops the event for that recipient only.
func (h *Hub) deliver(targets []*Conn, event string, message []byte) {
	dropped := 0
	for _, conn := range targets {
		if !conn.TrySend(message) {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("broadcast dropped for slow connections", "event", event, "dropped", dropped, "targets", len(targets))
	}
}
