package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/calloway/backlot/pkg/llm"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sentinel errors for agent definition lookups
var (
	ErrAgentNotFound = errors.New("agent definition not found")
	ErrAgentInactive = errors.New("agent definition is inactive")
)

// AgentDefinition is a stored, user-owned agent configuration
type AgentDefinition struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"` // sales, talent, bidding, custom
	SystemPrompt    string    `json:"system_prompt,omitempty"`
	Tools           []string  `json:"tools,omitempty"`
	ModelPreference string    `json:"model_preference,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SessionRecord is a stored conversation session, keyed by the
// (user, agent, conversation) triple
type SessionRecord struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	AgentID        string        `json:"agent_id"`
	ConversationID string        `json:"conversation_id"`
	History        []llm.Message `json:"history"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActiveAt   time.Time     `json:"last_active_at"`
}

// AgentReader is the read-only slice of the definition store the
// configuration resolver depends on
type AgentReader interface {
	GetAgent(ctx context.Context, id string) (*AgentDefinition, error)
}

// SessionStore is the slice of the store the session manager depends on
type SessionStore interface {
	GetOrCreateSession(ctx context.Context, userID, agentID, conversationID string) (*SessionRecord, error)
	SaveSessionHistory(ctx context.Context, sessionID string, history []llm.Message) error
	ClearSessionHistory(ctx context.Context, sessionID string) error
}

// AgentStore handles agent definition and session CRUD over the graph store
type AgentStore struct {
	graph  GraphStore
	logger zerolog.Logger
}

// NewAgentStore creates an agent store over a graph store
func NewAgentStore(graph GraphStore, logger zerolog.Logger) *AgentStore {
	return &AgentStore{graph: graph, logger: logger}
}

// GetAgent fetches one agent definition by id
func (s *AgentStore) GetAgent(ctx context.Context, id string) (*AgentDefinition, error) {
	records, err := s.graph.Read(ctx, `
		MATCH (a:Agent {id: $id})
		RETURN a.id AS id, a.user_id AS user_id, a.name AS name, a.type AS type,
		       a.system_prompt AS system_prompt, a.tools AS tools,
		       a.model_preference AS model_preference, a.active AS active,
		       a.created_at AS created_at, a.updated_at AS updated_at`,
		map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrAgentNotFound
	}

	return agentFromRecord(records[0]), nil
}

// ListAgents returns all agent definitions owned by a user
func (s *AgentStore) ListAgents(ctx context.Context, userID string) ([]*AgentDefinition, error) {
	records, err := s.graph.Read(ctx, `
		MATCH (a:Agent {user_id: $user_id})
		RETURN a.id AS id, a.user_id AS user_id, a.name AS name, a.type AS type,
		       a.system_prompt AS system_prompt, a.tools AS tools,
		       a.model_preference AS model_preference, a.active AS active,
		       a.created_at AS created_at, a.updated_at AS updated_at
		ORDER BY a.created_at`,
		map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}

	agents := make([]*AgentDefinition, 0, len(records))
	for _, record := range records {
		agents = append(agents, agentFromRecord(record))
	}
	return agents, nil
}

// CreateAgent stores a new agent definition and returns it with its id
func (s *AgentStore) CreateAgent(ctx context.Context, def AgentDefinition) (*AgentDefinition, error) {
	if def.UserID == "" {
		return nil, fmt.Errorf("agent user_id is required")
	}
	if def.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}

	def.ID = uuid.NewString()
	now := time.Now()
	def.CreatedAt = now
	def.UpdatedAt = now
	def.Active = true

	_, err := s.graph.Write(ctx, `
		CREATE (a:Agent {
			id: $id, user_id: $user_id, name: $name, type: $type,
			system_prompt: $system_prompt, tools: $tools,
			model_preference: $model_preference, active: true,
			created_at: $now, updated_at: $now
		})`,
		map[string]any{
			"id":               def.ID,
			"user_id":          def.UserID,
			"name":             def.Name,
			"type":             def.Type,
			"system_prompt":    def.SystemPrompt,
			"tools":            def.Tools,
			"model_preference": def.ModelPreference,
			"now":              now.UnixMilli(),
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("agent_id", def.ID).Str("user_id", def.UserID).Msg("Agent definition created")
	return &def, nil
}

// UpdateAgent updates the mutable fields of a stored definition. Ownership
// is enforced by matching on both id and user_id.
func (s *AgentStore) UpdateAgent(ctx context.Context, def AgentDefinition) error {
	records, err := s.graph.Write(ctx, `
		MATCH (a:Agent {id: $id, user_id: $user_id})
		SET a.name = $name, a.system_prompt = $system_prompt, a.tools = $tools,
		    a.model_preference = $model_preference, a.active = $active,
		    a.updated_at = $now
		RETURN a.id AS id`,
		map[string]any{
			"id":               def.ID,
			"user_id":          def.UserID,
			"name":             def.Name,
			"system_prompt":    def.SystemPrompt,
			"tools":            def.Tools,
			"model_preference": def.ModelPreference,
			"active":           def.Active,
			"now":              time.Now().UnixMilli(),
		})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// DeleteAgent deactivates a stored definition
func (s *AgentStore) DeleteAgent(ctx context.Context, id, userID string) error {
	records, err := s.graph.Write(ctx, `
		MATCH (a:Agent {id: $id, user_id: $user_id})
		SET a.active = false, a.updated_at = $now
		RETURN a.id AS id`,
		map[string]any{"id": id, "user_id": userID, "now": time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return ErrAgentNotFound
	}

	s.logger.Info().Str("agent_id", id).Msg("Agent definition deactivated")
	return nil
}

// GetOrCreateSession loads the session for the triple, creating it with
// empty history on first use and refreshing its last-active marker otherwise
func (s *AgentStore) GetOrCreateSession(ctx context.Context, userID, agentID, conversationID string) (*SessionRecord, error) {
	records, err := s.graph.Write(ctx, `
		MERGE (sess:Session {user_id: $user_id, agent_id: $agent_id, conversation_id: $conversation_id})
		ON CREATE SET sess.id = $new_id, sess.history = '[]',
		              sess.created_at = $now, sess.last_active_at = $now
		ON MATCH SET sess.last_active_at = $now
		RETURN sess.id AS id, sess.user_id AS user_id, sess.agent_id AS agent_id,
		       sess.conversation_id AS conversation_id, sess.history AS history,
		       sess.created_at AS created_at, sess.last_active_at AS last_active_at`,
		map[string]any{
			"user_id":         userID,
			"agent_id":        agentID,
			"conversation_id": conversationID,
			"new_id":          uuid.NewString(),
			"now":             time.Now().UnixMilli(),
		})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("session merge returned no record")
	}

	return sessionFromRecord(records[0])
}

// SaveSessionHistory replaces the stored history window
func (s *AgentStore) SaveSessionHistory(ctx context.Context, sessionID string, history []llm.Message) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal session history: %w", err)
	}

	_, err = s.graph.Write(ctx, `
		MATCH (sess:Session {id: $id})
		SET sess.history = $history, sess.last_active_at = $now`,
		map[string]any{"id": sessionID, "history": string(data), "now": time.Now().UnixMilli()})
	return err
}

// ClearSessionHistory empties the stored history without deleting the session
func (s *AgentStore) ClearSessionHistory(ctx context.Context, sessionID string) error {
	_, err := s.graph.Write(ctx, `
		MATCH (sess:Session {id: $id})
		SET sess.history = '[]', sess.last_active_at = $now`,
		map[string]any{"id": sessionID, "now": time.Now().UnixMilli()})
	return err
}

// CountSessions returns the number of stored sessions
func (s *AgentStore) CountSessions(ctx context.Context) (int, error) {
	records, err := s.graph.Read(ctx, `MATCH (sess:Session) RETURN count(sess) AS n`, nil)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return int(recInt64(records[0], "n")), nil
}

// DeleteIdleSessions removes sessions idle since before the cutoff and
// returns how many were deleted
func (s *AgentStore) DeleteIdleSessions(ctx context.Context, cutoff time.Time) (int, error) {
	records, err := s.graph.Write(ctx, `
		MATCH (sess:Session)
		WHERE sess.last_active_at < $cutoff
		WITH collect(sess) AS victims
		FOREACH (v IN victims | DETACH DELETE v)
		RETURN size(victims) AS n`,
		map[string]any{"cutoff": cutoff.UnixMilli()})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return int(recInt64(records[0], "n")), nil
}

func agentFromRecord(record map[string]any) *AgentDefinition {
	return &AgentDefinition{
		ID:              recString(record, "id"),
		UserID:          recString(record, "user_id"),
		Name:            recString(record, "name"),
		Type:            recString(record, "type"),
		SystemPrompt:    recString(record, "system_prompt"),
		Tools:           recStringSlice(record, "tools"),
		ModelPreference: recString(record, "model_preference"),
		Active:          recBool(record, "active"),
		CreatedAt:       time.UnixMilli(recInt64(record, "created_at")),
		UpdatedAt:       time.UnixMilli(recInt64(record, "updated_at")),
	}
}

func sessionFromRecord(record map[string]any) (*SessionRecord, error) {
	history := []llm.Message{}
	if raw := recString(record, "history"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			return nil, fmt.Errorf("failed to parse session history: %w", err)
		}
	}

	return &SessionRecord{
		ID:             recString(record, "id"),
		UserID:         recString(record, "user_id"),
		AgentID:        recString(record, "agent_id"),
		ConversationID: recString(record, "conversation_id"),
		History:        history,
		CreatedAt:      time.UnixMilli(recInt64(record, "created_at")),
		LastActiveAt:   time.UnixMilli(recInt64(record, "last_active_at")),
	}, nil
}

func recString(record map[string]any, key string) string {
	if v, ok := record[key].(string); ok {
		return v
	}
	return ""
}

func recBool(record map[string]any, key string) bool {
	if v, ok := record[key].(bool); ok {
		return v
	}
	return false
}

func recInt64(record map[string]any, key string) int64 {
	switch v := record[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

func recStringSlice(record map[string]any, key string) []string {
	raw, ok := record[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
