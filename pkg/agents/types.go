// Package agents decides which agent configuration governs a request:
// keyword classification, builtin desk configurations and the resolution
// precedence over stored user-defined agents.
package agents

import (
	"github.com/calloway/backlot/pkg/llm"
	"github.com/calloway/backlot/pkg/session"
	"github.com/calloway/backlot/pkg/tools"
)

// Category is one of the fixed agent categories
type Category string

const (
	CategorySales   Category = "sales"
	CategoryTalent  Category = "talent"
	CategoryBidding Category = "bidding"
	CategoryCustom  Category = "custom"
)

// ParseCategory parses a category string
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategorySales, CategoryTalent, CategoryBidding, CategoryCustom:
		return Category(s), true
	}
	return "", false
}

// Config is the agent configuration governing one request. Configurations
// are built fresh per request and never cached, so definition edits take
// effect immediately.
type Config struct {
	Category     Category
	SystemPrompt string
	Tools        []tools.Tool
	// Model is the preferred model identifier, namespace prefix already
	// stripped. Empty means the backend default.
	Model string
}

// Strategy labels how the acting configuration was chosen
type Strategy string

const (
	// StrategyUserAgent means a stored agent definition was used
	StrategyUserAgent Strategy = "user_agent"
	// StrategyFallback means the stored agent was unavailable and the
	// request fell back to classification or explicit type
	StrategyFallback Strategy = "fallback_classified"
	// StrategyDirect means the caller named an agent type explicitly
	StrategyDirect Strategy = "direct"
	// StrategyAuto means the message was classified
	StrategyAuto Strategy = "auto_classified"
)

// Request carries the routing-relevant slice of a query request
type Request struct {
	Message        string
	UserID         string
	ConversationID string
	AgentID        string // optional explicit stored-agent id
	AgentType      string // optional explicit category
}

// Resolution is the outcome of configuration resolution
type Resolution struct {
	Config       Config
	Category     Category
	Strategy     Strategy
	PrimaryAgent string
	// Session and History are attached only on the stored-agent path and
	// only when the session store was reachable
	Session *session.Handle
	History []llm.Message
}
