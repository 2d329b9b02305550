// Package protocol defines the JSON event envelope and the typed payloads
// exchanged over relaycore WebSocket connections.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event names handled by the core on every connection. Plugins
// contribute additional names through their manifests.
const (
	EventJoinRoom        = "joinRoom"
	EventLeaveRoom       = "leaveRoom"
	EventPing            = "ping"
	EventTerminalCreate  = "terminalCreate"
	EventTerminalAttach  = "terminalAttach"
	EventTerminalInput   = "terminalInput"
	EventTerminalResize  = "terminalResize"
	EventTerminalDestroy = "terminalDestroy"
)

// Outbound event names produced by the core.
const (
	EventNotification      = "notification"
	EventConnectionCount   = "connectionCount"
	EventUserJoined        = "userJoined"
	EventUserLeft          = "userLeft"
	EventTerminalCreated   = "terminalCreated"
	EventTerminalAttached  = "terminalAttached"
	EventTerminalData      = "terminalData"
	EventTerminalDestroyed = "terminalDestroyed"
	EventTerminalError     = "terminalError"
)

// Notification severity levels.
const (
	NoticeInfo    = "info"
	NoticeWarning = "warning"
	NoticeError   = "error"
)

// ErrEmptyEvent reports an envelope whose event name is missing.
var ErrEmptyEvent = errors.New("protocol: envelope has no event name")

// Envelope is the wire format: one JSON object per WebSocket text message.
// Data holds the event-specific payload and may be absent.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an event name and payload into a wire-ready envelope.
// A nil payload produces an envelope without a data field.
func Encode(event string, payload any) ([]byte, error) {
	if event == "" {
		return nil, ErrEmptyEvent
	}

	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s payload: %w", event, err)
		}
		env.Data = data
	}

	return json.Marshal(env)
}

// Decode parses a raw WebSocket message into an envelope. The event name is
// not validated against any vocabulary; unknown names are the caller's
// concern.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrEmptyEvent
	}
	return env, nil
}

// NotificationPayload carries a human-readable server notice.
type NotificationPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ConnectionCountPayload reports the number of live connections.
type ConnectionCountPayload struct {
	Count int `json:"count"`
}

// UserJoinedPayload announces a user's first live connection.
type UserJoinedPayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

// UserLeftPayload announces that a user's last connection closed.
type UserLeftPayload struct {
	UserID string `json:"userId"`
}

// RoomPayload names a room for joinRoom and leaveRoom.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// TerminalCreatePayload requests a new terminal session. Zero values fall
// back to server defaults.
type TerminalCreatePayload struct {
	Cols  int    `json:"cols,omitempty"`
	Rows  int    `json:"rows,omitempty"`
	Shell string `json:"shell,omitempty"`
}

// TerminalCreatedPayload confirms a new session and reports its geometry and
// backing mode. terminalAttached carries the same shape.
type TerminalCreatedPayload struct {
	TerminalID string `json:"terminalId"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
	Shell      string `json:"shell"`
	Mode       string `json:"mode"`
}

// TerminalAttachPayload asks to rebind an existing session's output to the
// calling connection.
type TerminalAttachPayload struct {
	TerminalID string `json:"terminalId"`
}

// TerminalInputPayload forwards keystrokes to a session.
type TerminalInputPayload struct {
	TerminalID string `json:"terminalId"`
	Input      string `json:"input"`
}

// TerminalResizePayload updates a session's geometry.
type TerminalResizePayload struct {
	TerminalID string `json:"terminalId"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
}

// TerminalDestroyPayload terminates a session.
type TerminalDestroyPayload struct {
	TerminalID string `json:"terminalId"`
}

// TerminalDataPayload streams session output to the owning connection.
type TerminalDataPayload struct {
	TerminalID string `json:"terminalId"`
	Data       string `json:"data"`
}

// TerminalDestroyedPayload reports that a session ended and why.
type TerminalDestroyedPayload struct {
	TerminalID string `json:"terminalId"`
	Reason     string `json:"reason,omitempty"`
}

// TerminalErrorPayload reports a failed terminal operation. TerminalID is
// empty when the failure predates a session.
type TerminalErrorPayload struct {
	TerminalID string `json:"terminalId,omitempty"`
	Message    string `json:"message"`
}
