package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/relaycore/internal/plugin/posts"
	"github.com/relaycore/relaycore/internal/protocol"
	"github.com/relaycore/relaycore/internal/terminal"
)

func adminToken(t *testing.T) string {
	t.Helper()
	return signTestToken(t, map[string]any{"sub": "ops-1", "role": "admin"})
}

// adminRequest performs one HTTP call against the admin surface and decodes
// the JSON response into out when it is non-nil.
func adminRequest(t *testing.T, env *testEnv, method, path, token string, body, out any) *http.Response {
	t.Helper()

	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, env.ts.URL+path, buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// TestAdminAuthGate covers the three refusal tiers: no token, bad token,
// and a valid token without the admin role.
func TestAdminAuthGate(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := adminRequest(t, env, http.MethodGet, "/admin/connections", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = adminRequest(t, env, http.MethodGet, "/admin/connections", "garbage", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	member := signTestToken(t, map[string]any{"sub": "user-1", "role": "member"})
	resp = adminRequest(t, env, http.MethodGet, "/admin/connections", member, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// TestAdminConnections verifies the registry snapshot projection.
func TestAdminConnections(t *testing.T) {
	env := newTestEnv(t, nil)

	conn := dialWS(t, env, signTestToken(t, map[string]any{"sub": "user-1", "name": "Ana"}))
	readEvent(t, conn, protocol.EventConnectionCount)

	var body struct {
		Count       int `json:"count"`
		Connections []struct {
			UserID string   `json:"userId"`
			Rooms  []string `json:"rooms"`
		} `json:"connections"`
	}
	resp := adminRequest(t, env, http.MethodGet, "/admin/connections", adminToken(t), nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "user-1", body.Connections[0].UserID)
	assert.Contains(t, body.Connections[0].Rooms, "general")
}

// TestAdminRoomLookup verifies the room projection and its 404 contract.
func TestAdminRoomLookup(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := adminRequest(t, env, http.MethodGet, "/admin/rooms/nowhere", adminToken(t), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn := dialWS(t, env, signTestToken(t, map[string]any{"sub": "user-1"}))
	readEvent(t, conn, protocol.EventConnectionCount)

	var info struct {
		ID            string   `json:"id"`
		Kind          string   `json:"kind"`
		MemberUserIDs []string `json:"memberUserIds"`
		Connections   int      `json:"connections"`
	}
	resp = adminRequest(t, env, http.MethodGet, "/admin/rooms/general", adminToken(t), nil, &info)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "general", info.ID)
	assert.Equal(t, []string{"user-1"}, info.MemberUserIDs)
	assert.Equal(t, 1, info.Connections)
}

// TestAdminTerminals verifies the session listing.
func TestAdminTerminals(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.terminals.Create(terminal.CreateOptions{OwnerUserID: "user-1"})
	require.NoError(t, err)

	var body struct {
		Count    int             `json:"count"`
		Sessions []terminal.Info `json:"sessions"`
	}
	resp := adminRequest(t, env, http.MethodGet, "/admin/terminals", adminToken(t), nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "user-1", body.Sessions[0].OwnerUserID)
	assert.Equal(t, terminal.ModeSimulated, body.Sessions[0].Mode)
}

// TestAdminPlugins verifies the manifest listing and composed vocabulary.
func TestAdminPlugins(t *testing.T) {
	env := newTestEnv(t, nil)

	var body struct {
		Plugins []struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"plugins"`
		Vocabulary map[string][]string `json:"vocabulary"`
	}
	resp := adminRequest(t, env, http.MethodGet, "/admin/plugins", adminToken(t), nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Plugins, 1)
	assert.Equal(t, "posts", body.Plugins[0].Name)
	assert.Contains(t, body.Vocabulary["inbound"], posts.EventSubscribe)
	assert.Contains(t, body.Vocabulary["outbound"], posts.EventUserTyping)
}

// TestAdminNotifyValidation covers the 400 responses: missing message, bad
// scope, and targeted scopes without a target.
func TestAdminNotifyValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	token := adminToken(t)

	resp := adminRequest(t, env, http.MethodPost, "/admin/notify", token,
		map[string]any{"scope": "all"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = adminRequest(t, env, http.MethodPost, "/admin/notify", token,
		map[string]any{"scope": "everyone", "message": "hi"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = adminRequest(t, env, http.MethodPost, "/admin/notify", token,
		map[string]any{"scope": "user", "message": "hi"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = adminRequest(t, env, http.MethodPost, "/admin/notify", token,
		map[string]any{"scope": "room", "message": "hi"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestAdminNotifyUser verifies that a user-scoped notification reaches every
// connection of that user and no one else.
func TestAdminNotifyUser(t *testing.T) {
	env := newTestEnv(t, nil)

	target := dialWS(t, env, signTestToken(t, map[string]any{"sub": "user-9"}))
	bystander := dialWS(t, env, signTestToken(t, map[string]any{"sub": "user-2"}))
	readEvent(t, target, protocol.EventConnectionCount)
	readEvent(t, bystander, protocol.EventConnectionCount)

	resp := adminRequest(t, env, http.MethodPost, "/admin/notify", adminToken(t), map[string]any{
		"scope":   "user",
		"target":  "user-9",
		"message": "maintenance in five minutes",
		"type":    "warning",
	}, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var note protocol.NotificationPayload
	require.NoError(t, json.Unmarshal(readEvent(t, target, protocol.EventNotification), &note))
	assert.Equal(t, "maintenance in five minutes", note.Message)
	assert.Equal(t, protocol.NoticeWarning, note.Type)
}

// TestAdminNotifyAllDefaultsToInfo verifies the broadcast scope and that the
// type field defaults to info.
func TestAdminNotifyAllDefaultsToInfo(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env, "")
	readEvent(t, conn, protocol.EventConnectionCount)

	resp := adminRequest(t, env, http.MethodPost, "/admin/notify", adminToken(t), map[string]any{
		"scope":   "all",
		"message": "deploy finished",
	}, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var note protocol.NotificationPayload
	require.NoError(t, json.Unmarshal(readEvent(t, conn, protocol.EventNotification), &note))
	assert.Equal(t, "deploy finished", note.Message)
	assert.Equal(t, protocol.NoticeInfo, note.Type)
}

// TestAdminEventsDispatch verifies the REST entry point for business events:
// a post.created event fans out to connected clients via the posts plugin.
func TestAdminEventsDispatch(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env, "")
	readEvent(t, conn, protocol.EventConnectionCount)

	resp := adminRequest(t, env, http.MethodPost, "/admin/events", adminToken(t), map[string]any{
		"type":         posts.BusinessPostCreated,
		"payload":      map[string]any{"postId": "42", "title": "hello"},
		"sourceModule": "posts-api",
	}, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(readEvent(t, conn, posts.EventPostCreated), &payload))
	assert.Equal(t, "42", payload["postId"])
	assert.Equal(t, "hello", payload["title"])
}

// TestAdminEventsRequireType verifies the 400 for an event without a type.
func TestAdminEventsRequireType(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := adminRequest(t, env, http.MethodPost, "/admin/events", adminToken(t),
		map[string]any{"payload": map[string]any{"postId": "42"}}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
