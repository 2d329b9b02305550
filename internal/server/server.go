// Package server constructs the relaycore HTTP service: the WebSocket
// endpoint, the public health and landing pages, and the admin surface.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaycore/relaycore/internal/auth"
	"github.com/relaycore/relaycore/internal/config"
	"github.com/relaycore/relaycore/internal/hub"
	"github.com/relaycore/relaycore/internal/plugin"
	"github.com/relaycore/relaycore/internal/terminal"
)

// Server binds the hub, the plugin registry, and the terminal manager to
// HTTP. Every collaborator is constructed by the caller and passed in, so
// tests can assemble isolated instances instead of sharing globals.
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	hub       *hub.Hub
	plugins   *plugin.Registry
	terminals *terminal.Manager
	resolver  auth.Resolver

	origin   *originPolicy
	upgrader websocket.Upgrader
	httpSrv  *http.Server
	wg       sync.WaitGroup
}

// New wires a server around its collaborators.
func New(cfg *config.Config, logger *slog.Logger, h *hub.Hub, plugins *plugin.Registry, terminals *terminal.Manager, resolver auth.Resolver) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		hub:       h,
		plugins:   plugins,
		terminals: terminals,
		resolver:  resolver,
		origin:    newOriginPolicy(cfg.AllowedOrigins, logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.origin.check,
	}
	return s
}

// Routes returns the HTTP mux with every endpoint registered. The admin
// surface requires a bearer token resolving to an admin principal.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("GET /admin/connections", s.requireAdmin(s.handleAdminConnections))
	mux.HandleFunc("GET /admin/rooms/{id}", s.requireAdmin(s.handleAdminRoom))
	mux.HandleFunc("GET /admin/terminals", s.requireAdmin(s.handleAdminTerminals))
	mux.HandleFunc("GET /admin/plugins", s.requireAdmin(s.handleAdminPlugins))
	mux.HandleFunc("POST /admin/notify", s.requireAdmin(s.handleAdminNotify))
	mux.HandleFunc("POST /admin/events", s.requireAdmin(s.handleAdminEvents))
	return mux
}

// Start listens on the configured port and blocks until the listener fails
// or Shutdown is called. The timeouts cover the HTTP surface only; upgraded
// WebSocket connections manage their own deadlines in the pumps.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.cfg.Port,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info("server listening", "addr", s.cfg.Port)
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains the HTTP listener, unregisters every live connection so
// the pumps wind down, then stops the terminal manager and runs plugin
// teardown. The context bounds the HTTP drain and the wait for the pumps;
// terminal and plugin teardown still run when it expires.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}

	s.hub.CloseAll()

	pumps := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(pumps)
	}()
	select {
	case <-pumps:
	case <-ctx.Done():
		s.logger.Warn("shutdown deadline reached with connection pumps still running")
		if err == nil {
			err = ctx.Err()
		}
	}

	s.terminals.Shutdown()
	s.plugins.Cleanup()
	s.logger.Info("server shutdown complete")
	return err
}
