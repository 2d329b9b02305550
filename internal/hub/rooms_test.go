package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestKindForRoom verifies the naming convention that classifies rooms.
func TestKindForRoom(t *testing.T) {
	cases := []struct {
		roomID string
		want   RoomKind
	}{
		{"general", KindGeneral},
		{"user:42", KindUserScoped},
		{"user:", KindUserScoped},
		{"admin:7", KindAdminScoped},
		{"post:123", KindTopic},
		{"lobby", KindTopic},
		{"generally", KindTopic},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindForRoom(tc.roomID), "room %q", tc.roomID)
	}
}

// TestJoinCreatesRoomLazily verifies that the first join materializes the
// room with the kind implied by its name.
func TestJoinCreatesRoomLazily(t *testing.T) {
	h := newTestHub()
	c := NewConn("c1", principal("u1"), 8)
	h.Register(c)

	require.Nil(t, h.RoomInfo("post:1"))
	h.Join(c, "post:1")

	info := h.RoomInfo("post:1")
	require.NotNil(t, info)
	assert.Equal(t, "post:1", info.ID)
	assert.Equal(t, KindTopic, info.Kind)
	assert.Equal(t, []string{"u1"}, info.MemberUserIDs)
	assert.Equal(t, 1, info.Connections)
	assert.False(t, info.CreatedAt.IsZero())

	snap := h.Snapshot()
	require.Len(t, snap, 1)
	assert.Contains(t, snap[0].Rooms, "post:1")
}

// TestJoinIsIdempotent verifies that joining the same room twice counts the
// connection once.
func TestJoinIsIdempotent(t *testing.T) {
	h := newTestHub()
	c := NewConn("c1", principal("u1"), 8)
	h.Register(c)

	h.Join(c, "post:1")
	h.Join(c, "post:1")

	info := h.RoomInfo("post:1")
	require.NotNil(t, info)
	assert.Equal(t, 1, info.Connections)
}

// TestJoinIgnoresUnregisteredConnection verifies that a join from a
// connection the registry does not know leaves no trace.
func TestJoinIgnoresUnregisteredConnection(t *testing.T) {
	h := newTestHub()
	stray := NewConn("stray", principal("u1"), 8)

	h.Join(stray, "post:1")

	assert.Nil(t, h.RoomInfo("post:1"))
}

// TestLeaveRestoresPriorMembership verifies the join/leave round trip: after
// leaving, the room no longer lists the connection, but the room record
// itself survives.
func TestLeaveRestoresPriorMembership(t *testing.T) {
	h := newTestHub()
	c1 := NewConn("c1", principal("u1"), 8)
	c2 := NewConn("c2", principal("u2"), 8)
	h.Register(c1)
	h.Register(c2)
	h.Join(c1, "post:9")
	h.Join(c2, "post:9")

	h.Leave(c2, "post:9")

	info := h.RoomInfo("post:9")
	require.NotNil(t, info)
	assert.Equal(t, []string{"u1"}, info.MemberUserIDs)
	assert.Equal(t, 1, info.Connections)

	h.Leave(c1, "post:9")
	h.Leave(c1, "post:9")
	h.Leave(c1, "never-joined")

	info = h.RoomInfo("post:9")
	require.NotNil(t, info, "rooms persist after the last member leaves")
	assert.Empty(t, info.MemberUserIDs)
	assert.Equal(t, 0, info.Connections)
}

// TestUnregisterRemovesConnectionFromAllRooms verifies that tearing down a
// connection scrubs its room memberships.
func TestUnregisterRemovesConnectionFromAllRooms(t *testing.T) {
	h := newTestHub()
	c := NewConn("c1", principal("u1"), 64)
	other := NewConn("c2", principal("u2"), 64)
	h.Register(c)
	h.Register(other)
	h.Join(c, "post:1")
	h.Join(c, "post:2")
	h.Join(other, "post:1")

	h.Unregister("c1")

	info := h.RoomInfo("post:1")
	require.NotNil(t, info)
	assert.Equal(t, []string{"u2"}, info.MemberUserIDs)
	assert.Equal(t, 1, info.Connections)

	info = h.RoomInfo("post:2")
	require.NotNil(t, info)
	assert.Empty(t, info.MemberUserIDs)
	assert.Equal(t, 0, info.Connections)
}

// TestRoomInfoRecomputesMembersFromLiveConnections verifies that member user
// ids are derived from current connections: duplicates collapse and
// anonymous connections count toward connections only.
func TestRoomInfoRecomputesMembersFromLiveConnections(t *testing.T) {
	h := newTestHub()
	a1 := NewConn("a1", principal("alice"), 64)
	a2 := NewConn("a2", principal("alice"), 64)
	anon := NewConn("anon", nil, 64)
	h.Register(a1)
	h.Register(a2)
	h.Register(anon)
	h.Join(a1, "general")
	h.Join(a2, "general")
	h.Join(anon, "general")

	info := h.RoomInfo("general")
	require.NotNil(t, info)
	assert.Equal(t, []string{"alice"}, info.MemberUserIDs)
	assert.Equal(t, 3, info.Connections)

	h.Unregister("a1")
	info = h.RoomInfo("general")
	assert.Equal(t, []string{"alice"}, info.MemberUserIDs)
	assert.Equal(t, 2, info.Connections)

	h.Unregister("a2")
	info = h.RoomInfo("general")
	assert.Empty(t, info.MemberUserIDs)
	assert.Equal(t, 1, info.Connections)
}

// TestRoomsListsSortedIDs verifies the directory projection.
func TestRoomsListsSortedIDs(t *testing.T) {
	h := newTestHub()
	c := NewConn("c1", principal("u1"), 64)
	h.Register(c)
	h.Join(c, "beta")
	h.Join(c, "alpha")
	h.Join(c, "user:42")

	assert.Equal(t, []string{"alpha", "beta", "user:42"}, h.Rooms())
	assert.Nil(t, h.RoomInfo("unknown"))
}
