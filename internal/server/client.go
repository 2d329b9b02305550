// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and event dispatch for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaycore/relaycore/internal/auth"
	"github.com/relaycore/relaycore/internal/hub"
	"github.com/relaycore/relaycore/internal/plugin"
	"github.com/relaycore/relaycore/internal/protocol"
)

const (
	// pongWait is how long the connection may stay silent before the read
	// side gives up. Pings go out every pingPeriod to keep it alive.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// client couples one WebSocket connection to its hub registration. It
// implements plugin.Socket for handlers and plugin.Dispatcher during
// handler attachment.
type client struct {
	srv      *Server
	ws       *websocket.Conn
	conn     *hub.Conn
	addr     string
	limiter  *rateLimiter
	handlers map[string][]plugin.InboundHandler
	logger   *slog.Logger
}

func newClient(srv *Server, ws *websocket.Conn, conn *hub.Conn, addr string) *client {
	ws.SetReadLimit(srv.cfg.MaxMessageSize)
	return &client{
		srv:      srv,
		ws:       ws,
		conn:     conn,
		addr:     addr,
		limiter:  newRateLimiter(srv.cfg.RateLimit.Burst, srv.cfg.RateLimit.RefillInterval),
		handlers: make(map[string][]plugin.InboundHandler),
		logger:   srv.logger.With("conn", conn.ID(), "addr", addr),
	}
}

// ID returns the connection id.
func (c *client) ID() string { return c.conn.ID() }

// Principal returns the identity behind the connection, if any.
func (c *client) Principal() (auth.Principal, bool) { return c.conn.Principal() }

// Emit queues one event for this connection.
func (c *client) Emit(event string, payload any) bool {
	return c.srv.hub.SendToConn(c.conn.ID(), event, payload)
}

// Join adds the connection to a room.
func (c *client) Join(roomID string) { c.srv.hub.Join(c.conn, roomID) }

// Leave removes the connection from a room.
func (c *client) Leave(roomID string) { c.srv.hub.Leave(c.conn, roomID) }

// On registers a handler for an inbound event. Handlers for the same event
// run in registration order.
func (c *client) On(event string, handler plugin.InboundHandler) {
	c.handlers[event] = append(c.handlers[event], handler)
}

func (c *client) readPump() {
	defer func() {
		c.srv.hub.Unregister(c.conn.ID())
		if err := c.ws.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug("error closing connection in readPump", "error", err)
		}
		c.srv.wg.Done()
	}()

	c.setupReadDeadlines()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.allowMessage() {
			continue
		}
		c.dispatch(raw)
	}
}

// setupReadDeadlines configures read deadlines and the pong handler for the
// WebSocket connection.
func (c *client) setupReadDeadlines() {
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Debug("error setting initial read deadline", "error", err)
	}
	c.ws.SetPongHandler(func(string) error {
		if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Debug("error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// logReadError logs an appropriate message based on the error type.
func (c *client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("message exceeded maximum size", "limit", c.srv.cfg.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Info("client disconnected", "error", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Info("connection closed", "error", err)
	default:
		c.logger.Warn("websocket read error", "error", err)
	}
}

// allowMessage enforces the per-connection rate limit. Offenders get a
// warning notification and the message is discarded.
func (c *client) allowMessage() bool {
	if c.limiter.allow() {
		return true
	}
	c.logger.Warn("rate limit exceeded, discarding message",
		"burst", c.srv.cfg.RateLimit.Burst,
		"interval", c.srv.cfg.RateLimit.RefillInterval)
	c.Emit(protocol.EventNotification, protocol.NotificationPayload{
		Message: "rate limit exceeded, message discarded",
		Type:    protocol.NoticeWarning,
	})
	return false
}

// dispatch decodes an envelope and runs every handler bound to its event.
// Unknown events and malformed frames are dropped quietly, matching the
// silent-failure contract of the wire protocol.
func (c *client) dispatch(raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		c.logger.Debug("discarding malformed message", "error", err)
		return
	}
	c.srv.hub.Touch(c.conn.ID())

	handlers := c.handlers[env.Event]
	if len(handlers) == 0 {
		c.logger.Debug("no handler for event", "event", env.Event)
		return
	}
	for _, handler := range handlers {
		c.invoke(env.Event, handler, env.Data)
	}
}

// invoke shields the read pump from a panicking handler.
func (c *client) invoke(event string, handler plugin.InboundHandler, data json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("handler panicked", "event", event, "panic", rec)
		}
	}()
	handler(c, data)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
		c.srv.wg.Done()
	}()

	for {
		select {
		case message, ok := <-c.conn.Outbox():
			if !c.writeMessage(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeMessage sends one event per WebSocket frame so clients can rely on
// one JSON document per message.
func (c *client) writeMessage(message []byte, ok bool) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("error setting write deadline", "error", err)
		return false
	}
	if !ok {
		// The hub closed the outbox; say goodbye properly.
		if err := c.ws.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug("error writing close message", "error", err)
		}
		return false
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Debug("error writing message", "error", err)
		}
		return false
	}
	return true
}

// writePing keeps the connection alive across proxies and NATs.
func (c *client) writePing() bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Debug("error writing ping", "error", err)
		}
		return false
	}
	return true
}

// closeConnection closes the WebSocket connection, ignoring the errors that
// normally accompany an already-gone peer.
func (c *client) closeConnection() {
	if err := c.ws.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("error closing connection in writePump", "error", err)
	}
}

// isExpectedCloseError reports whether err is part of a normal connection
// teardown rather than something worth surfacing.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
