// Package server exposes the public HTTP handlers: WebSocket upgrades, the
// health check, and the landing page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/relaycore/relaycore/internal/auth"
	"github.com/relaycore/relaycore/internal/hub"
)

// handleWebSocket upgrades the request, resolves the caller's identity, and
// hands the connection over: registry first, the default room, the core
// event handlers, then every plugin's handlers, and finally the pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request; rejected origins land
		// here as well.
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	principal := s.resolvePrincipal(r)
	conn := hub.NewConn("", principal, s.cfg.SendBuffer)
	c := newClient(s, ws, conn, r.RemoteAddr)

	s.hub.Register(conn)
	s.hub.Join(conn, hub.DefaultRoom)

	c.registerCoreHandlers()
	s.plugins.AttachToConnection(c)

	s.wg.Add(2)
	go c.writePump()
	go c.readPump()
}

// resolvePrincipal turns the handshake credential into an identity. Any
// failure degrades the connection to anonymous; auth is never fatal to the
// handshake itself.
func (s *Server) resolvePrincipal(r *http.Request) *auth.Principal {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	p, err := s.resolver.Resolve(token)
	if err != nil {
		s.logger.Debug("token rejected, continuing anonymous", "remote", r.RemoteAddr, "error", err)
		return nil
	}
	return &p
}

// bearerToken extracts the credential from the token query parameter or the
// Authorization header. Browser WebSocket clients cannot set headers, so
// the query parameter is the primary path.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if rest, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return rest
	}
	return ""
}

// handleHealth reports process liveness and the current load.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.hub.CountConnections(),
		"terminals":   s.terminals.Count(),
	})
}

// handleHome serves a minimal landing page naming the endpoints.
func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!DOCTYPE html>
<html>
<head><title>relaycore</title></head>
<body>
    <h1>relaycore</h1>
    <p>Real-time communication core.</p>
    <ul>
        <li><code>GET /ws</code> &mdash; WebSocket endpoint (optional <code>?token=</code>)</li>
        <li><code>GET /health</code> &mdash; health check</li>
        <li><code>/admin/*</code> &mdash; operator surface (admin token required)</li>
    </ul>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		s.logger.Debug("error writing landing page", "error", err)
	}
}

// writeJSON answers with a JSON body. Encode failures after the header went
// out can only be logged.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeJSONError answers with the conventional {"error": ...} body.
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
