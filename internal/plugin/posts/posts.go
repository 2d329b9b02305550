// Package posts is the built-in content plugin. It lets clients subscribe
// to individual posts, relays post lifecycle events from the application to
// the right audience, and carries typing indicators between viewers of the
// same post.
package posts

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/relaycore/relaycore/internal/plugin"
)

const (
	pluginName    = "posts"
	pluginVersion = "1.0.0"
)

// Inbound socket events.
const (
	EventSubscribe   = "subscribeToPost"
	EventUnsubscribe = "unsubscribeFromPost"
	EventTyping      = "typing"
)

// Outbound socket events.
const (
	EventPostCreated = "postCreated"
	EventPostUpdated = "postUpdated"
	EventPostDeleted = "postDeleted"
	EventUserTyping  = "userTyping"
)

// Business event types the plugin reacts to.
const (
	BusinessPostCreated = "post.created"
	BusinessPostUpdated = "post.updated"
	BusinessPostDeleted = "post.deleted"
)

// RoomForPost names the room carrying updates for a single post.
func RoomForPost(postID string) string {
	return "post:" + postID
}

// SubscribePayload is the body of subscribeToPost and unsubscribeFromPost.
type SubscribePayload struct {
	PostID string `json:"postId"`
}

// TypingPayload is the body of the inbound typing event. IsTyping false
// means the viewer stopped.
type TypingPayload struct {
	PostID   string `json:"postId"`
	IsTyping bool   `json:"isTyping"`
}

// UserTypingPayload is broadcast to a post's room when a viewer starts or
// stops typing.
type UserTypingPayload struct {
	PostID   string `json:"postId"`
	UserID   string `json:"userId"`
	Name     string `json:"name,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// Plugin implements the posts extension.
type Plugin struct {
	broadcaster plugin.Broadcaster
	logger      *slog.Logger
}

// New returns the posts plugin wired to a broadcaster.
func New(b plugin.Broadcaster, logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Plugin{
		broadcaster: b,
		logger:      logger.With("plugin", pluginName),
	}
}

// Manifest declares the plugin's event vocabulary.
func (p *Plugin) Manifest() plugin.Manifest {
	return plugin.Manifest{
		Name:           pluginName,
		Version:        pluginVersion,
		InboundEvents:  []string{EventSubscribe, EventUnsubscribe, EventTyping},
		OutboundEvents: []string{EventPostCreated, EventPostUpdated, EventPostDeleted, EventUserTyping},
	}
}

// Handlers returns the inbound event handlers.
func (p *Plugin) Handlers() map[string]plugin.InboundHandler {
	return map[string]plugin.InboundHandler{
		EventSubscribe:   p.handleSubscribe,
		EventUnsubscribe: p.handleUnsubscribe,
		EventTyping:      p.handleTyping,
	}
}

func (p *Plugin) handleSubscribe(sock plugin.Socket, data json.RawMessage) {
	postID, ok := p.decodePostID(sock, data)
	if !ok {
		return
	}
	sock.Join(RoomForPost(postID))
}

func (p *Plugin) handleUnsubscribe(sock plugin.Socket, data json.RawMessage) {
	postID, ok := p.decodePostID(sock, data)
	if !ok {
		return
	}
	sock.Leave(RoomForPost(postID))
}

// handleTyping relays a typing indicator to everyone watching the same
// post. Anonymous connections have no identity to show, so they are
// silently ignored.
func (p *Plugin) handleTyping(sock plugin.Socket, data json.RawMessage) {
	principal, ok := sock.Principal()
	if !ok {
		return
	}
	var req TypingPayload
	if err := json.Unmarshal(data, &req); err != nil || req.PostID == "" {
		p.logger.Debug("ignoring typing event without a usable postId", "conn", sock.ID())
		return
	}
	p.broadcaster.BroadcastToRoom(RoomForPost(req.PostID), EventUserTyping, UserTypingPayload{
		PostID:   req.PostID,
		UserID:   principal.UserID,
		Name:     principal.Name,
		IsTyping: req.IsTyping,
	})
}

func (p *Plugin) decodePostID(sock plugin.Socket, data json.RawMessage) (string, bool) {
	var req SubscribePayload
	if err := json.Unmarshal(data, &req); err != nil || req.PostID == "" {
		p.logger.Debug("ignoring event without a usable postId", "conn", sock.ID())
		return "", false
	}
	return req.PostID, true
}

// HandleBusinessEvent fans post lifecycle changes out to clients. Creation
// goes to everyone so clients can surface new content; updates and
// deletions only concern subscribers of that post.
func (p *Plugin) HandleBusinessEvent(ev plugin.BusinessEvent) error {
	switch ev.Type {
	case BusinessPostCreated:
		p.broadcaster.BroadcastToAll(EventPostCreated, ev.Payload)
		return nil
	case BusinessPostUpdated:
		return p.relayToPostRoom(EventPostUpdated, ev)
	case BusinessPostDeleted:
		return p.relayToPostRoom(EventPostDeleted, ev)
	default:
		return nil
	}
}

func (p *Plugin) relayToPostRoom(event string, ev plugin.BusinessEvent) error {
	postID, _ := ev.Payload["postId"].(string)
	if postID == "" {
		return fmt.Errorf("%s event without postId", ev.Type)
	}
	p.broadcaster.BroadcastToRoom(RoomForPost(postID), event, ev.Payload)
	return nil
}
