package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/calloway/backlot/pkg/agents"
	"github.com/calloway/backlot/pkg/orchestrator"
	"github.com/calloway/backlot/pkg/session"
	"github.com/calloway/backlot/pkg/store"
)

// handleQuery runs one query through the orchestration engine
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The opaque header wins over any body-supplied user context
	if uc, ok := userContextFrom(r.Context()); ok {
		req.UserContext = uc
	}
	if req.UserContext.UserID == "" {
		writeError(w, http.StatusBadRequest, "user context is required")
		return
	}

	response, err := s.engine.Process(r.Context(), req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Str("conversation_id", req.ConversationID).Msg("Query failed")
		writeError(w, http.StatusBadGateway, "query processing failed")
		return
	}

	writeJSON(w, http.StatusOK, response)
}

type agentPayload struct {
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	SystemPrompt    string   `json:"system_prompt,omitempty"`
	Tools           []string `json:"tools,omitempty"`
	ModelPreference string   `json:"model_preference,omitempty"`
	Active          *bool    `json:"active,omitempty"`
}

// validateAgentPayload checks the category and that every referenced tool
// exists in the registry inventory. The type is immutable after creation,
// so updates may omit it.
func (s *Server) validateAgentPayload(p agentPayload, requireType bool) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if requireType || p.Type != "" {
		if _, ok := agents.ParseCategory(p.Type); !ok {
			return fmt.Errorf("type must be one of sales, talent, bidding, custom")
		}
	}

	known := map[string]bool{}
	for _, name := range s.registry.ListNames() {
		known[name] = true
	}
	var unknown []string
	for _, name := range p.Tools {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown tools: %s", strings.Join(unknown, ", "))
	}
	return nil
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	uc, ok := userContextFrom(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "user context is required")
		return
	}

	defs, err := s.agents.ListAgents(r.Context(), uc.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": defs})
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	uc, ok := userContextFrom(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "user context is required")
		return
	}

	var payload agentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validateAgentPayload(payload, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	def, err := s.agents.CreateAgent(r.Context(), store.AgentDefinition{
		UserID:          uc.UserID,
		Name:            payload.Name,
		Type:            payload.Type,
		SystemPrompt:    payload.SystemPrompt,
		Tools:           payload.Tools,
		ModelPreference: payload.ModelPreference,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create agent")
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	def, err := s.agents.GetAgent(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrAgentNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch agent")
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	uc, ok := userContextFrom(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "user context is required")
		return
	}

	var payload agentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validateAgentPayload(payload, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	active := true
	if payload.Active != nil {
		active = *payload.Active
	}

	err := s.agents.UpdateAgent(r.Context(), store.AgentDefinition{
		ID:              r.PathValue("id"),
		UserID:          uc.UserID,
		Name:            payload.Name,
		SystemPrompt:    payload.SystemPrompt,
		Tools:           payload.Tools,
		ModelPreference: payload.ModelPreference,
		Active:          active,
	})
	if errors.Is(err, store.ErrAgentNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update agent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	uc, ok := userContextFrom(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "user context is required")
		return
	}

	err := s.agents.DeleteAgent(r.Context(), r.PathValue("id"), uc.UserID)
	if errors.Is(err, store.ErrAgentNotFound) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete agent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleClearSession resets a session's history without deleting the session
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotFound, "sessions unavailable")
		return
	}

	handle := &session.Handle{ID: r.PathValue("id")}
	if err := s.sessions.Clear(r.Context(), handle); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
