package orchestrator

import "time"

// UserContext is the caller-provided identity and sensitivity signal.
// DataSensitivity is precomputed upstream; this core only consumes it.
type UserContext struct {
	UserID          string `json:"user_id"`
	Role            string `json:"role"`
	DataSensitivity int    `json:"data_sensitivity"`
	Department      string `json:"department,omitempty"`
}

// Request is one inbound query
type Request struct {
	Message        string      `json:"message"`
	UserContext    UserContext `json:"user_context"`
	ConversationID string      `json:"conversation_id"`
	AgentID        string      `json:"agent_id,omitempty"`
	AgentType      string      `json:"agent_type,omitempty"`
}

// AgentInfo reports how the request was routed.
// AgentsUsed must not carry omitempty: session-backed responses set it to an
// empty slice and that empty array has to survive onto the wire, while the
// nil of classified paths marshals as null.
type AgentInfo struct {
	Type            string   `json:"type"`
	PrimaryAgent    string   `json:"primary_agent"`
	RoutingStrategy string   `json:"routing_strategy"`
	AgentsUsed      []string `json:"agents_used"`
}

// Response is the synthesized answer for one query
type Response struct {
	Content        string    `json:"content"`
	AgentInfo      AgentInfo `json:"agent_info"`
	ConversationID string    `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// Notifier receives routing and tool events for streaming surfaces.
// Implementations must not block.
type Notifier interface {
	QueryRouted(conversationID, category, strategy string)
	ToolInvoked(conversationID, tool string)
}
