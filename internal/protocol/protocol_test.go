package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodeProducesEnvelope verifies the wire shape of an encoded event.
func TestEncodeProducesEnvelope(t *testing.T) {
	raw, err := Encode(EventNotification, NotificationPayload{Message: "pong", Type: NoticeInfo})
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.JSONEq(t, `"notification"`, string(decoded["event"]))
	assert.JSONEq(t, `{"message":"pong","type":"info"}`, string(decoded["data"]))
}

// TestEncodeNilPayloadOmitsData verifies that payload-free events carry no
// data field on the wire.
func TestEncodeNilPayloadOmitsData(t *testing.T) {
	raw, err := Encode(EventPing, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ping"}`, string(raw))
}

// TestEncodeRejectsEmptyEvent verifies that an event name is mandatory.
func TestEncodeRejectsEmptyEvent(t *testing.T) {
	_, err := Encode("", nil)
	assert.ErrorIs(t, err, ErrEmptyEvent)
}

// TestDecodeRoundTrip verifies that a decoded envelope preserves the event
// name and raw payload.
func TestDecodeRoundTrip(t *testing.T) {
	env, err := Decode([]byte(`{"event":"joinRoom","data":{"roomId":"post:7"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventJoinRoom, env.Event)

	var room RoomPayload
	require.NoError(t, json.Unmarshal(env.Data, &room))
	assert.Equal(t, "post:7", room.RoomID)
}

// TestDecodeKeepsUnknownEventNames verifies that decoding never validates the
// event name against a vocabulary.
func TestDecodeKeepsUnknownEventNames(t *testing.T) {
	env, err := Decode([]byte(`{"event":"somePluginEvent","data":{"x":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "somePluginEvent", env.Event)
}

// TestDecodeRejectsMalformedInput covers invalid JSON and nameless
// envelopes.
func TestDecodeRejectsMalformedInput(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"data":{"roomId":"general"}}`))
	assert.ErrorIs(t, err, ErrEmptyEvent)
}
