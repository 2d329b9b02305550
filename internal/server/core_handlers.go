// Package server wires the built-in event handlers every connection gets:
// room membership, liveness, and terminal control.
package server

import (
	"encoding/json"

	"github.com/relaycore/relaycore/internal/plugin"
	"github.com/relaycore/relaycore/internal/protocol"
	"github.com/relaycore/relaycore/internal/terminal"
)

// registerCoreHandlers binds the events relaycore itself answers, before
// plugins attach theirs.
func (c *client) registerCoreHandlers() {
	c.On(protocol.EventJoinRoom, c.handleJoinRoom)
	c.On(protocol.EventLeaveRoom, c.handleLeaveRoom)
	c.On(protocol.EventPing, c.handlePingEvent)
	c.On(protocol.EventTerminalCreate, c.handleTerminalCreate)
	c.On(protocol.EventTerminalAttach, c.handleTerminalAttach)
	c.On(protocol.EventTerminalInput, c.handleTerminalInput)
	c.On(protocol.EventTerminalResize, c.handleTerminalResize)
	c.On(protocol.EventTerminalDestroy, c.handleTerminalDestroy)
}

func (c *client) handleJoinRoom(_ plugin.Socket, data json.RawMessage) {
	var req protocol.RoomPayload
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" {
		c.logger.Debug("ignoring joinRoom without a room id")
		return
	}
	c.Join(req.RoomID)
}

func (c *client) handleLeaveRoom(_ plugin.Socket, data json.RawMessage) {
	var req protocol.RoomPayload
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" {
		c.logger.Debug("ignoring leaveRoom without a room id")
		return
	}
	c.Leave(req.RoomID)
}

func (c *client) handlePingEvent(_ plugin.Socket, _ json.RawMessage) {
	c.Emit(protocol.EventNotification, protocol.NotificationPayload{
		Message: "pong",
		Type:    protocol.NoticeInfo,
	})
}

// handleTerminalCreate spawns a terminal owned by the caller's user. The
// confirmation goes out before the first output byte, and session output and
// teardown notifications are addressed to this connection until the owner
// reattaches from another one.
func (c *client) handleTerminalCreate(_ plugin.Socket, data json.RawMessage) {
	var req protocol.TerminalCreatePayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			c.terminalError("", "invalid terminalCreate payload")
			return
		}
	}

	_, err := c.srv.terminals.Create(terminal.CreateOptions{
		OwnerUserID: c.conn.UserID(),
		Shell:       req.Shell,
		Cols:        req.Cols,
		Rows:        req.Rows,
		OnCreated: func(info terminal.Info) {
			c.Emit(protocol.EventTerminalCreated, terminalCreatedPayload(info))
		},
		OnData: c.terminalDataSink(),
		OnExit: c.terminalExitSink(),
	})
	if err != nil {
		c.logger.Warn("terminal creation failed", "error", err)
		c.terminalError("", "terminal creation failed")
	}
}

// handleTerminalAttach rebinds a surviving session's output to this
// connection. Only the owning user may attach.
func (c *client) handleTerminalAttach(_ plugin.Socket, data json.RawMessage) {
	var req protocol.TerminalAttachPayload
	if err := json.Unmarshal(data, &req); err != nil || req.TerminalID == "" {
		c.terminalError("", "invalid terminalAttach payload")
		return
	}
	if !c.ownsTerminal(req.TerminalID) {
		c.terminalError(req.TerminalID, "unknown terminal")
		return
	}
	info, ok := c.srv.terminals.Rebind(req.TerminalID, c.terminalDataSink(), c.terminalExitSink())
	if !ok {
		c.terminalError(req.TerminalID, "unknown terminal")
		return
	}
	c.Emit(protocol.EventTerminalAttached, terminalCreatedPayload(info))
}

func (c *client) handleTerminalInput(_ plugin.Socket, data json.RawMessage) {
	var req protocol.TerminalInputPayload
	if err := json.Unmarshal(data, &req); err != nil || req.TerminalID == "" {
		return
	}
	if !c.ownsTerminal(req.TerminalID) || !c.srv.terminals.Write(req.TerminalID, []byte(req.Input)) {
		c.terminalError(req.TerminalID, "unknown terminal")
	}
}

func (c *client) handleTerminalResize(_ plugin.Socket, data json.RawMessage) {
	var req protocol.TerminalResizePayload
	if err := json.Unmarshal(data, &req); err != nil || req.TerminalID == "" {
		return
	}
	if !c.ownsTerminal(req.TerminalID) || !c.srv.terminals.Resize(req.TerminalID, req.Cols, req.Rows) {
		c.terminalError(req.TerminalID, "unknown terminal")
	}
}

func (c *client) handleTerminalDestroy(_ plugin.Socket, data json.RawMessage) {
	var req protocol.TerminalDestroyPayload
	if err := json.Unmarshal(data, &req); err != nil || req.TerminalID == "" {
		return
	}
	if !c.ownsTerminal(req.TerminalID) || !c.srv.terminals.Destroy(req.TerminalID) {
		c.terminalError(req.TerminalID, "unknown terminal")
	}
}

// ownsTerminal reports whether the caller may act on a session. Sessions
// with an owner answer only to that user; ownerless sessions, created by
// anonymous connections, are open. Foreign sessions look exactly like
// missing ones so ids cannot be probed.
func (c *client) ownsTerminal(id string) bool {
	info, ok := c.srv.terminals.Get(id)
	if !ok {
		return false
	}
	return info.OwnerUserID == "" || info.OwnerUserID == c.conn.UserID()
}

// terminalDataSink routes session output to this connection.
func (c *client) terminalDataSink() func(sessionID string, output []byte) {
	connID := c.conn.ID()
	h := c.srv.hub
	return func(sessionID string, output []byte) {
		h.SendToConn(connID, protocol.EventTerminalData, protocol.TerminalDataPayload{
			TerminalID: sessionID,
			Data:       string(output),
		})
	}
}

// terminalExitSink routes the teardown notification to this connection.
func (c *client) terminalExitSink() func(sessionID, reason string) {
	connID := c.conn.ID()
	h := c.srv.hub
	return func(sessionID, reason string) {
		h.SendToConn(connID, protocol.EventTerminalDestroyed, protocol.TerminalDestroyedPayload{
			TerminalID: sessionID,
			Reason:     reason,
		})
	}
}

func (c *client) terminalError(terminalID, message string) {
	c.Emit(protocol.EventTerminalError, protocol.TerminalErrorPayload{
		TerminalID: terminalID,
		Message:    message,
	})
}

func terminalCreatedPayload(info terminal.Info) protocol.TerminalCreatedPayload {
	return protocol.TerminalCreatedPayload{
		TerminalID: info.ID,
		Cols:       info.Cols,
		Rows:       info.Rows,
		Shell:      info.Shell,
		Mode:       info.Mode,
	}
}
