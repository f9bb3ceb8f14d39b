// Package server implements the Warden HTTP server, REST API, auth, and SSE
// real-time events.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/warden/agent"
	"github.com/GoCodeAlone/warden/comms"
	"github.com/GoCodeAlone/warden/config"
	"github.com/GoCodeAlone/warden/resilience"
	"github.com/GoCodeAlone/warden/server/api"
	"github.com/GoCodeAlone/warden/server/ws"
	"github.com/GoCodeAlone/warden/tool"
	"github.com/GoCodeAlone/warden/world"
)

// Server is the Warden HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	state      *world.State
	controller *world.Controller
	registry   *tool.Registry
	loops      *agent.Manager
	bus        comms.Bus
	breaker    *resilience.Breaker
	hub        *ws.Hub
	handlers   *api.Handlers

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	startTime time.Time
	version   string
}

// Deps holds the world components the server exposes.
type Deps struct {
	State      *world.State
	Controller *world.Controller
	Registry   *tool.Registry
	Loops      *agent.Manager
	Bus        comms.Bus
	Breaker    *resilience.Breaker
}

// New creates a new Server with the given config, dependencies, and logger.
func New(cfg config.Config, deps Deps, ver string, logger *slog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		mux:        http.NewServeMux(),
		logger:     logger,
		state:      deps.State,
		controller: deps.Controller,
		registry:   deps.Registry,
		loops:      deps.Loops,
		bus:        deps.Bus,
		breaker:    deps.Breaker,
		hub:        ws.NewHub(logger),
		startTime:  time.Now(),
		version:    ver,
	}
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	s.registerRoutes()

	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":9090"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// BroadcastEvent pushes a real-time event to all connected SSE clients.
func (s *Server) BroadcastEvent(eventType string, payload any) {
	s.hub.Broadcast(ws.Event{Type: eventType, Payload: payload})
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		State:          s.state,
		Controller:     s.controller,
		Registry:       s.registry,
		Loops:          s.loops,
		Bus:            s.bus,
		Breaker:        s.breaker,
		Logger:         s.logger,
		Version:        s.version,
		Started:        s.startTime,
		ExecuteCeiling: s.cfg.Loop.ExecuteCeiling.Std(),
	}
	s.handlers = h

	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", h.Status())

	// SSE needs inline auth because EventSource can't set headers
	s.mux.HandleFunc("GET /events", s.handleSSE)

	// Protected API
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// handleSSE verifies the query token, then hands the connection to the hub.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token != "" {
		if _, err := verifyToken(s.jwtSecret(), token); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	s.hub.ServeSSE(w, r)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
