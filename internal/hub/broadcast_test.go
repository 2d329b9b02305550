package hub

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/relaycore/internal/protocol"
)

func notice(msg string) protocol.NotificationPayload {
	return protocol.NotificationPayload{Message: msg, Type: protocol.NoticeInfo}
}

// TestBroadcastToRoomExactMembership verifies that a room broadcast reaches
// every member connection and nobody else.
func TestBroadcastToRoomExactMembership(t *testing.T) {
	h := newTestHub()
	c1 := NewConn("c1", principal("u1"), 64)
	c2 := NewConn("c2", principal("u2"), 64)
	bystander := NewConn("c3", principal("u3"), 64)
	for _, c := range []*Conn{c1, c2, bystander} {
		h.Register(c)
	}
	h.Join(c1, "post:1")
	h.Join(c2, "post:1")
	for _, c := range []*Conn{c1, c2, bystander} {
		drainEvents(t, c)
	}

	h.BroadcastToRoom("post:1", protocol.EventNotification, notice("hello"))

	for _, c := range []*Conn{c1, c2} {
		events := drainEvents(t, c)
		require.Equal(t, 1, countEvent(events, protocol.EventNotification), "conn %s", c.ID())
	}
	assert.Empty(t, drainEvents(t, bystander))
}

// TestBroadcastToUserReachesAllUserConnections verifies user fan-out across
// multiple connections of the same principal.
func TestBroadcastToUserReachesAllUserConnections(t *testing.T) {
	h := newTestHub()
	a1 := NewConn("a1", principal("alice"), 64)
	a2 := NewConn("a2", principal("alice"), 64)
	b1 := NewConn("b1", principal("bob"), 64)
	for _, c := range []*Conn{a1, a2, b1} {
		h.Register(c)
		drainEvents(t, c)
	}
	drainEvents(t, a1)
	drainEvents(t, a2)

	h.BroadcastToUser("alice", protocol.EventNotification, notice("direct"))

	assert.Equal(t, 1, countEvent(drainEvents(t, a1), protocol.EventNotification))
	assert.Equal(t, 1, countEvent(drainEvents(t, a2), protocol.EventNotification))
	assert.Empty(t, drainEvents(t, b1))
}

// TestBroadcastToUnknownTargetsIsSilent verifies that broadcasts to rooms or
// users that do not exist do nothing.
func TestBroadcastToUnknownTargetsIsSilent(t *testing.T) {
	h := newTestHub()
	c := NewConn("c1", principal("u1"), 64)
	h.Register(c)
	drainEvents(t, c)

	h.BroadcastToRoom("no-such-room", protocol.EventNotification, notice("x"))
	h.BroadcastToUser("no-such-user", protocol.EventNotification, notice("x"))

	assert.Empty(t, drainEvents(t, c))
}

// TestBroadcastToAll verifies the global fan-out.
func TestBroadcastToAll(t *testing.T) {
	h := newTestHub()
	conns := []*Conn{
		NewConn("c1", principal("u1"), 64),
		NewConn("c2", nil, 64),
		NewConn("c3", principal("u3"), 64),
	}
	for _, c := range conns {
		h.Register(c)
	}
	for _, c := range conns {
		drainEvents(t, c)
	}

	h.BroadcastToAll(protocol.EventNotification, notice("everyone"))

	for _, c := range conns {
		assert.Equal(t, 1, countEvent(drainEvents(t, c), protocol.EventNotification), "conn %s", c.ID())
	}
}

// TestSendToConn verifies targeted delivery and the false return for unknown
// connections.
func TestSendToConn(t *testing.T) {
	h := newTestHub()
	c1 := NewConn("c1", principal("u1"), 64)
	c2 := NewConn("c2", principal("u2"), 64)
	h.Register(c1)
	h.Register(c2)
	drainEvents(t, c1)
	drainEvents(t, c2)

	assert.True(t, h.SendToConn("c1", protocol.EventNotification, notice("just you")))
	assert.False(t, h.SendToConn("ghost", protocol.EventNotification, notice("nobody")))

	assert.Equal(t, 1, countEvent(drainEvents(t, c1), protocol.EventNotification))
	assert.Empty(t, drainEvents(t, c2))

	h.Unregister("c1")
	assert.False(t, h.SendToConn("c1", protocol.EventNotification, notice("gone")))
}

// TestBroadcastPreservesPerRecipientOrder verifies that a single broadcaster
// observes its messages in order on each recipient.
func TestBroadcastPreservesPerRecipientOrder(t *testing.T) {
	h := newTestHub()
	c := NewConn("c1", principal("u1"), 64)
	h.Register(c)
	h.Join(c, "post:1")
	drainEvents(t, c)

	for i := 0; i < 10; i++ {
		h.BroadcastToRoom("post:1", protocol.EventNotification, notice(fmt.Sprintf("m%d", i)))
	}

	events := drainEvents(t, c)
	require.Len(t, events, 10)
	for i, env := range events {
		var p protocol.NotificationPayload
		require.NoError(t, json.Unmarshal(env.Data, &p))
		assert.Equal(t, fmt.Sprintf("m%d", i), p.Message)
	}
}

// TestSlowRecipientDropsWithoutBlockingOthers verifies that a full outbox
// loses the message while other recipients still receive it.
func TestSlowRecipientDropsWithoutBlockingOthers(t *testing.T) {
	h := newTestHub()
	slow := NewConn("slow", principal("u1"), 1)
	fast := NewConn("fast", principal("u2"), 64)
	h.Register(slow)
	h.Register(fast)
	h.Join(slow, "post:1")
	h.Join(fast, "post:1")
	drainEvents(t, slow)
	drainEvents(t, fast)

	h.BroadcastToRoom("post:1", protocol.EventNotification, notice("first"))
	h.BroadcastToRoom("post:1", protocol.EventNotification, notice("second"))

	assert.Len(t, drainEvents(t, slow), 1, "second message should be dropped")
	assert.Len(t, drainEvents(t, fast), 2)
}

// TestBroadcastToClosedConnectionDoesNotPanic verifies the send path
// tolerates a connection whose outbox was closed out from under it.
func TestBroadcastToClosedConnectionDoesNotPanic(t *testing.T) {
	h := newTestHub()
	c := NewConn("c1", principal("u1"), 64)
	h.Register(c)
	h.Join(c, "post:1")
	c.Close()

	assert.NotPanics(t, func() {
		h.BroadcastToRoom("post:1", protocol.EventNotification, notice("late"))
		h.BroadcastToAll(protocol.EventNotification, notice("late"))
	})
}
