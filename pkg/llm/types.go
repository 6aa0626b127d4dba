package llm

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// StopReason is the canonical reason a completion ended
type StopReason string

const (
	// StopNormal means the model finished its answer
	StopNormal StopReason = "stop"
	// StopToolCalls means the model requested tool execution
	StopToolCalls StopReason = "tool_calls"
	// StopLength means the completion was truncated by the token limit
	StopLength StopReason = "length"
	// StopUnknown covers backend-specific reasons with no canonical mapping
	StopUnknown StopReason = "unknown"
)

// Message is one conversation turn in canonical form
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp,omitempty"`
}

// ToolCall is a model-issued request to execute a named tool
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolSchema advertises one tool to the model
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Usage tracks token consumption
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Request contains the parameters for one completion call
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolSchema
	Temperature  float64
	MaxTokens    int
}

// Response is the canonical completion result
type Response struct {
	Content    string
	StopReason StopReason
	ToolCalls  []ToolCall
	Model      string
	Usage      *Usage
}
