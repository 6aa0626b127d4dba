// Package session manages the windowed conversation history that gives a
// stateless request access to short-term conversational memory.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/calloway/backlot/internal/observability"
	"github.com/calloway/backlot/pkg/llm"
	"github.com/calloway/backlot/pkg/store"
	"github.com/rs/zerolog"
)

// WindowSize caps how many messages a session retains; oldest entries are
// evicted first.
const WindowSize = 20

// Handle identifies one loaded session
type Handle struct {
	ID             string
	UserID         string
	AgentID        string
	ConversationID string
}

// Manager loads and persists session windows. It is the only component that
// mutates persisted session state.
type Manager struct {
	store  store.SessionStore
	logger zerolog.Logger
}

// NewManager creates a session manager over a session store
func NewManager(st store.SessionStore, logger zerolog.Logger) *Manager {
	observability.EnsureRegistered()
	return &Manager{store: st, logger: logger}
}

// Load fetches the session for the (user, agent, conversation) triple with
// get-or-create semantics, refreshing the last-active marker, and returns
// the prior message window.
func (m *Manager) Load(ctx context.Context, userID, agentID, conversationID string) (*Handle, []llm.Message, error) {
	if userID == "" || agentID == "" || conversationID == "" {
		return nil, nil, fmt.Errorf("session triple (user, agent, conversation) must be complete")
	}

	start := time.Now()
	record, err := m.store.GetOrCreateSession(ctx, userID, agentID, conversationID)
	observability.RecordSessionLoad(time.Since(start))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}

	handle := &Handle{
		ID:             record.ID,
		UserID:         record.UserID,
		AgentID:        record.AgentID,
		ConversationID: record.ConversationID,
	}

	m.logger.Debug().
		Str("session_id", handle.ID).
		Str("conversation_id", conversationID).
		Int("messages", len(record.History)).
		Msg("Session loaded")

	return handle, record.History, nil
}

// Save concatenates the prior window with the new turns, stamps every entry
// lacking a capture time, truncates to the most recent WindowSize entries
// and persists the result.
func (m *Manager) Save(ctx context.Context, handle *Handle, prior, added []llm.Message) error {
	if handle == nil {
		return fmt.Errorf("session handle is required")
	}

	window := make([]llm.Message, 0, len(prior)+len(added))
	window = append(window, prior...)
	window = append(window, added...)

	now := time.Now()
	for i := range window {
		if window[i].Timestamp.IsZero() {
			window[i].Timestamp = now
		}
	}

	if len(window) > WindowSize {
		window = window[len(window)-WindowSize:]
	}

	start := time.Now()
	err := m.store.SaveSessionHistory(ctx, handle.ID, window)
	observability.RecordSessionSave(time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	m.logger.Debug().
		Str("session_id", handle.ID).
		Int("messages", len(window)).
		Msg("Session saved")

	return nil
}

// Clear resets the session history to empty without deleting the session
func (m *Manager) Clear(ctx context.Context, handle *Handle) error {
	if handle == nil {
		return fmt.Errorf("session handle is required")
	}

	if err := m.store.ClearSessionHistory(ctx, handle.ID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	m.logger.Info().Str("session_id", handle.ID).Msg("Session history cleared")
	return nil
}
