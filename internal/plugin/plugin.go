// Package plugin defines the extension contracts for relaycore and the
// registry that validates, attaches, and dispatches installed plugins.
//
// A plugin declares its event vocabulary up front in a Manifest and provides
// one handler per inbound event. Optional capabilities (business event
// handling, teardown) are discovered through interface assertions so that a
// minimal plugin stays minimal.
package plugin

import (
	"encoding/json"
	"time"

	"github.com/relaycore/relaycore/internal/auth"
)

// Socket is the per-connection surface handed to inbound handlers. It lets a
// plugin identify the caller, answer it directly, and manage its room
// memberships without reaching into transport internals.
type Socket interface {
	// ID returns the connection id.
	ID() string

	// Principal returns the authenticated identity behind the connection,
	// or false for anonymous connections.
	Principal() (auth.Principal, bool)

	// Emit sends one event to this connection. It reports false when the
	// message could not be queued.
	Emit(event string, payload any) bool

	// Join adds the connection to a room, creating the room if needed.
	Join(roomID string)

	// Leave removes the connection from a room.
	Leave(roomID string)
}

// Broadcaster fans events out beyond a single connection.
type Broadcaster interface {
	BroadcastToRoom(roomID, event string, payload any)
	BroadcastToUser(userID, event string, payload any)
	BroadcastToAll(event string, payload any)
}

// InboundHandler consumes one socket event addressed to its plugin. The raw
// payload is handed over undecoded; handlers own their payload schema.
type InboundHandler func(sock Socket, data json.RawMessage)

// Dispatcher accepts handler bindings for a single connection.
type Dispatcher interface {
	On(event string, handler InboundHandler)
}

// Manifest describes a plugin and the event names it speaks. Inbound events
// arrive from client sockets, outbound events are what the plugin may send.
type Manifest struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	InboundEvents  []string `json:"inboundEvents,omitempty"`
	OutboundEvents []string `json:"outboundEvents,omitempty"`
}

// Plugin is the contract every extension implements.
type Plugin interface {
	// Manifest returns the plugin's static description. It must not change
	// between calls.
	Manifest() Manifest

	// Handlers returns one handler per declared inbound event.
	Handlers() map[string]InboundHandler
}

// BusinessEvent is a server-side occurrence (a post was created, a user was
// promoted) routed to plugins that opt in via BusinessEventHandler.
type BusinessEvent struct {
	Type         string         `json:"type"`
	Payload      map[string]any `json:"payload,omitempty"`
	SourceModule string         `json:"sourceModule,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// BusinessEventHandler is implemented by plugins that react to server-side
// events in addition to socket traffic.
type BusinessEventHandler interface {
	HandleBusinessEvent(ev BusinessEvent) error
}

// Teardowner is implemented by plugins that hold resources needing release
// when the registry shuts down.
type Teardowner interface {
	Teardown() error
}
