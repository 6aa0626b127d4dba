package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/calloway/backlot/pkg/session"
	"github.com/calloway/backlot/pkg/store"
	"github.com/calloway/backlot/pkg/tools"
	"github.com/rs/zerolog"
)

// Resolver decides which agent configuration governs a request.
//
// Precedence, each step falling back to the next:
//  1. explicit agent id -> stored definition ("user_agent")
//  2. stored definition missing/inactive/unreachable -> classification or
//     explicit type ("fallback_classified")
//  3. no agent id -> explicit type ("direct") or classification
//     ("auto_classified")
type Resolver struct {
	store    store.AgentReader
	registry *tools.Registry
	sessions *session.Manager
	logger   zerolog.Logger
}

// NewResolver creates a configuration resolver
func NewResolver(agentStore store.AgentReader, registry *tools.Registry, sessions *session.Manager, logger zerolog.Logger) (*Resolver, error) {
	if agentStore == nil {
		return nil, fmt.Errorf("agent store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	return &Resolver{
		store:    agentStore,
		registry: registry,
		sessions: sessions,
		logger:   logger,
	}, nil
}

// Resolve produces the configuration, category, routing strategy and
// primary-agent label for a request
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	if req.AgentID != "" {
		resolution, err := r.resolveStored(ctx, req)
		if err == nil {
			return resolution, nil
		}

		r.logger.Warn().
			Str("agent_id", req.AgentID).
			Err(err).
			Msg("Stored agent unavailable, falling back to classification")

		fallback := r.resolveClassified(req)
		fallback.Strategy = StrategyFallback
		return fallback, nil
	}

	return r.resolveClassified(req), nil
}

// resolveStored builds a configuration from a stored agent definition and
// attaches session history. Session attach failure is non-fatal.
func (r *Resolver) resolveStored(ctx context.Context, req Request) (*Resolution, error) {
	def, err := r.store.GetAgent(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	if !def.Active {
		return nil, store.ErrAgentInactive
	}

	category, ok := ParseCategory(def.Type)
	if !ok {
		category = CategoryCustom
	}

	var cfg Config
	if category == CategoryCustom {
		cfg = Config{
			Category:     CategoryCustom,
			SystemPrompt: def.SystemPrompt,
		}
		if cfg.SystemPrompt == "" {
			cfg.SystemPrompt = builtinPrompts[CategoryCustom]
		}
		// A custom definition naming no tools gets the full registry
		if len(def.Tools) == 0 {
			cfg.Tools = r.registry.All()
		} else {
			cfg.Tools = r.registry.ResolveByNames(def.Tools)
		}
	} else {
		// Standard categories start from the builtin configuration; the
		// stored definition overrides prompt and tool subset only where set
		cfg = BuiltinConfig(category, r.registry)
		if def.SystemPrompt != "" {
			cfg.SystemPrompt = def.SystemPrompt
		}
		if len(def.Tools) > 0 {
			cfg.Tools = r.registry.ResolveByNames(def.Tools)
		}
	}

	cfg.Model = StripModelNamespace(def.ModelPreference)

	resolution := &Resolution{
		Config:       cfg,
		Category:     category,
		Strategy:     StrategyUserAgent,
		PrimaryAgent: def.Name,
	}

	handle, history, err := r.sessions.Load(ctx, req.UserID, def.ID, req.ConversationID)
	if err != nil {
		r.logger.Warn().
			Str("agent_id", def.ID).
			Str("conversation_id", req.ConversationID).
			Err(err).
			Msg("Session load failed, proceeding without history")
	} else {
		resolution.Session = handle
		resolution.History = history
	}

	return resolution, nil
}

// resolveClassified routes by explicit type when given, else by keyword
// classification
func (r *Resolver) resolveClassified(req Request) *Resolution {
	var (
		category Category
		strategy Strategy
	)

	if typed, ok := ParseCategory(req.AgentType); req.AgentType != "" && ok {
		category = typed
		strategy = StrategyDirect
	} else {
		category = Classify(req.Message)
		strategy = StrategyAuto
	}

	return &Resolution{
		Config:       BuiltinConfig(category, r.registry),
		Category:     category,
		Strategy:     strategy,
		PrimaryAgent: string(category) + "_agent",
	}
}

// StripModelNamespace removes a provider-namespace prefix from a model
// preference ("anthropic/claude-x" -> "claude-x"). Provider selection is
// governed solely by the sensitivity policy, never by this prefix.
func StripModelNamespace(model string) string {
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}
