// Package gateway exposes the orchestration engine over HTTP: query
// submission, health, agent definition CRUD and a websocket event stream.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/calloway/backlot/internal/observability"
	"github.com/calloway/backlot/pkg/orchestrator"
	"github.com/calloway/backlot/pkg/session"
	"github.com/calloway/backlot/pkg/store"
	"github.com/calloway/backlot/pkg/tools"
	"github.com/rs/zerolog"
)

// Server is the gateway HTTP server
type Server struct {
	host         string
	port         int
	sharedSecret string
	engine       *orchestrator.Engine
	agents       *store.AgentStore
	registry     *tools.Registry
	sessions     *session.Manager
	broadcaster  *Broadcaster
	server       *http.Server
	logger       zerolog.Logger
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	SharedSecret string
	Engine       *orchestrator.Engine
	AgentStore   *store.AgentStore
	Registry     *tools.Registry
	Sessions     *session.Manager
	Broadcaster  *Broadcaster
	Logger       zerolog.Logger
}

// NewServer creates a gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.AgentStore == nil {
		return nil, fmt.Errorf("agent store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	s := &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		sharedSecret: cfg.SharedSecret,
		engine:       cfg.Engine,
		agents:       cfg.AgentStore,
		registry:     cfg.Registry,
		sessions:     cfg.Sessions,
		broadcaster:  cfg.Broadcaster,
		logger:       cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())

	mux.Handle("POST /api/query", s.requireAuth(http.HandlerFunc(s.handleQuery)))
	mux.Handle("GET /api/agents", s.requireAuth(http.HandlerFunc(s.handleListAgents)))
	mux.Handle("POST /api/agents", s.requireAuth(http.HandlerFunc(s.handleCreateAgent)))
	mux.Handle("GET /api/agents/{id}", s.requireAuth(http.HandlerFunc(s.handleGetAgent)))
	mux.Handle("PUT /api/agents/{id}", s.requireAuth(http.HandlerFunc(s.handleUpdateAgent)))
	mux.Handle("DELETE /api/agents/{id}", s.requireAuth(http.HandlerFunc(s.handleDeleteAgent)))
	mux.Handle("DELETE /api/sessions/{id}/history", s.requireAuth(http.HandlerFunc(s.handleClearSession)))

	if s.broadcaster != nil {
		mux.Handle("GET /api/events", s.requireAuth(http.HandlerFunc(s.broadcaster.HandleWebSocket)))
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.withRequestLogging(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Start serves HTTP until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Gateway listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Gateway shutting down")
	if s.broadcaster != nil {
		s.broadcaster.Close()
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
