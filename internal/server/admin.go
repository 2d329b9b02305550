// Package server guards and serves the admin surface: registry and room
// projections, terminal listings, plugin manifests, and operator actions.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/relaycore/relaycore/internal/auth"
	"github.com/relaycore/relaycore/internal/plugin"
	"github.com/relaycore/relaycore/internal/protocol"
)

// requireAdmin guards an admin handler: 401 without a resolvable token, 403
// for principals without the admin role.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		p, err := s.resolver.Resolve(token)
		if err != nil {
			s.logger.Debug("admin token rejected", "remote", r.RemoteAddr, "error", err)
			s.writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if p.Role != auth.RoleAdmin {
			s.logger.Warn("admin access denied", "remote", r.RemoteAddr, "user_id", p.UserID, "role", p.Role)
			s.writeJSONError(w, http.StatusForbidden, "admin role required")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleAdminConnections(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.hub.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(snapshot),
		"connections": snapshot,
	})
}

func (s *Server) handleAdminRoom(w http.ResponseWriter, r *http.Request) {
	info := s.hub.RoomInfo(r.PathValue("id"))
	if info == nil {
		s.writeJSONError(w, http.StatusNotFound, "unknown room")
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAdminTerminals(w http.ResponseWriter, _ *http.Request) {
	sessions := s.terminals.All()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) handleAdminPlugins(w http.ResponseWriter, _ *http.Request) {
	inbound, outbound := s.plugins.Vocabulary()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"plugins": s.plugins.Manifests(),
		"vocabulary": map[string][]string{
			"inbound":  inbound,
			"outbound": outbound,
		},
	})
}

// notifyRequest is the body of POST /admin/notify.
type notifyRequest struct {
	Scope   string `json:"scope"`
	Target  string `json:"target,omitempty"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// handleAdminNotify originates an operator notification to all connections,
// one user, or one room. Delivery is best-effort broadcast: a target with no
// live connections is accepted, not an error.
func (s *Server) handleAdminNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Message == "" {
		s.writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.Type == "" {
		req.Type = protocol.NoticeInfo
	}
	payload := protocol.NotificationPayload{Message: req.Message, Type: req.Type}

	switch req.Scope {
	case "all":
		s.hub.BroadcastToAll(protocol.EventNotification, payload)
	case "user":
		if req.Target == "" {
			s.writeJSONError(w, http.StatusBadRequest, "user scope requires a target")
			return
		}
		s.hub.BroadcastToUser(req.Target, protocol.EventNotification, payload)
	case "room":
		if req.Target == "" {
			s.writeJSONError(w, http.StatusBadRequest, "room scope requires a target")
			return
		}
		s.hub.BroadcastToRoom(req.Target, protocol.EventNotification, payload)
	default:
		s.writeJSONError(w, http.StatusBadRequest, "scope must be all, user, or room")
		return
	}

	s.logger.Info("operator notification sent", "scope", req.Scope, "target", req.Target)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// eventRequest is the body of POST /admin/events.
type eventRequest struct {
	Type         string         `json:"type"`
	Payload      map[string]any `json:"payload,omitempty"`
	SourceModule string         `json:"sourceModule,omitempty"`
}

// handleAdminEvents is how the application layer raises business events
// into the plugin registry.
func (s *Server) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Type == "" {
		s.writeJSONError(w, http.StatusBadRequest, "type is required")
		return
	}

	s.plugins.DispatchBusinessEvent(plugin.BusinessEvent{
		Type:         req.Type,
		Payload:      req.Payload,
		SourceModule: req.SourceModule,
		Timestamp:    time.Now(),
	})
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
}
