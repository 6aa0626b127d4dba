// Package orchestrator runs the bounded reasoning loop that ties routing,
// model completion, tool execution and session persistence together.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/calloway/backlot/internal/observability"
	"github.com/calloway/backlot/pkg/agents"
	"github.com/calloway/backlot/pkg/llm"
	"github.com/calloway/backlot/pkg/session"
	"github.com/calloway/backlot/pkg/tools"
	"github.com/rs/zerolog"
)

const (
	// MaxIterations bounds how many model calls one request may issue
	MaxIterations = 5

	toolCallTimeout = 30 * time.Second

	// exhaustedNotice is returned when the bound is hit with no assistant
	// text to fall back on
	exhaustedNotice = "Maximum reasoning iterations reached without a final answer. Please refine your question."
)

// ErrInvalidRequest marks request validation failures so transport layers
// can surface them as client errors rather than upstream failures.
var ErrInvalidRequest = errors.New("invalid request")

// Engine is the reasoning orchestrator
type Engine struct {
	router   *llm.Router
	resolver *agents.Resolver
	sessions *session.Manager
	notifier Notifier
	logger   zerolog.Logger
}

// Config holds engine dependencies
type Config struct {
	Router   *llm.Router
	Resolver *agents.Resolver
	Sessions *session.Manager
	Notifier Notifier // optional
	Logger   zerolog.Logger
}

// New creates a reasoning engine
func New(cfg Config) (*Engine, error) {
	observability.EnsureRegistered()

	if cfg.Router == nil {
		return nil, fmt.Errorf("provider router is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("configuration resolver is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}

	return &Engine{
		router:   cfg.Router,
		resolver: cfg.Resolver,
		sessions: cfg.Sessions,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
	}, nil
}

// Process handles one query end to end: resolve the acting configuration,
// run the bounded model/tool loop, persist new turns and report routing.
func (e *Engine) Process(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if req.Message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	if req.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation_id is required", ErrInvalidRequest)
	}
	if _, err := llm.BackendForSensitivity(req.UserContext.DataSensitivity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	resolution, err := e.resolver.Resolve(ctx, agents.Request{
		Message:        req.Message,
		UserID:         req.UserContext.UserID,
		ConversationID: req.ConversationID,
		AgentID:        req.AgentID,
		AgentType:      req.AgentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve agent configuration: %w", err)
	}

	logger := e.logger.With().
		Str("conversation_id", req.ConversationID).
		Str("category", string(resolution.Category)).
		Str("strategy", string(resolution.Strategy)).
		Logger()
	logger.Info().Str("primary_agent", resolution.PrimaryAgent).Msg("Query routed")

	if e.notifier != nil {
		e.notifier.QueryRouted(req.ConversationID, string(resolution.Category), string(resolution.Strategy))
	}

	content, invoked, err := e.runLoop(ctx, logger, req, resolution)
	if err != nil {
		return nil, err
	}

	observability.RecordQuery(string(resolution.Category), string(resolution.Strategy), time.Since(start))

	agentsUsed := invoked
	if resolution.Strategy == agents.StrategyUserAgent && agentsUsed == nil {
		// Session-backed responses always carry the field, even when empty
		agentsUsed = []string{}
	}

	return &Response{
		Content: content,
		AgentInfo: AgentInfo{
			Type:            string(resolution.Category),
			PrimaryAgent:    resolution.PrimaryAgent,
			RoutingStrategy: string(resolution.Strategy),
			AgentsUsed:      agentsUsed,
		},
		ConversationID: req.ConversationID,
		Timestamp:      time.Now(),
	}, nil
}

// runLoop executes the bounded model-call/tool-phase cycle and persists new
// turns on termination. It returns the final answer text and the names of
// the tools actually invoked, in first-invocation order.
func (e *Engine) runLoop(ctx context.Context, logger zerolog.Logger, req Request, resolution *agents.Resolution) (string, []string, error) {
	userMsg := llm.Message{Role: llm.RoleUser, Content: req.Message}

	messages := make([]llm.Message, 0, len(resolution.History)+1)
	messages = append(messages, resolution.History...)
	messages = append(messages, userMsg)

	// Turns added by this request; persisted after termination
	newMessages := []llm.Message{userMsg}

	toolIndex := make(map[string]tools.Tool, len(resolution.Config.Tools))
	for _, tool := range resolution.Config.Tools {
		toolIndex[tool.Name()] = tool
	}
	schemas := tools.Schemas(resolution.Config.Tools)

	var (
		invoked       []string
		invokedSeen   = map[string]bool{}
		lastAssistant string
		final         string
		done          bool
	)

	for iteration := 0; iteration < MaxIterations && !done; iteration++ {
		response, err := e.router.Complete(ctx, resolution.Config.SystemPrompt, messages, schemas,
			req.UserContext.DataSensitivity, resolution.Config.Model)
		if err != nil {
			// Provider failures are request-level failures
			return "", nil, err
		}

		if response.StopReason == llm.StopNormal || len(response.ToolCalls) == 0 {
			final = response.Content
			done = true
			newMessages = append(newMessages, llm.Message{Role: llm.RoleAssistant, Content: final})
			break
		}

		lastAssistant = response.Content

		assistantMsg := llm.Message{
			Role:      llm.RoleAssistant,
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		}
		messages = append(messages, assistantMsg)
		newMessages = append(newMessages, assistantMsg)

		logger.Debug().
			Int("iteration", iteration+1).
			Int("tool_calls", len(response.ToolCalls)).
			Msg("Executing tool batch")

		results := e.executeBatch(ctx, logger, req.ConversationID, toolIndex, response.ToolCalls)
		messages = append(messages, results...)
		newMessages = append(newMessages, results...)

		for _, call := range response.ToolCalls {
			if _, known := toolIndex[call.Name]; known && !invokedSeen[call.Name] {
				invokedSeen[call.Name] = true
				invoked = append(invoked, call.Name)
			}
		}
	}

	if !done {
		final = lastAssistant
		if final == "" {
			final = exhaustedNotice
		}
		logger.Warn().Int("max_iterations", MaxIterations).Msg("Reasoning loop exhausted")
		newMessages = append(newMessages, llm.Message{Role: llm.RoleAssistant, Content: final})
	}

	// Persistence is best effort: a failing session store never fails a
	// request that already has an answer
	if resolution.Session != nil {
		if err := e.sessions.Save(ctx, resolution.Session, resolution.History, newMessages); err != nil {
			logger.Warn().Err(err).Msg("Session save failed, response returned without persistence")
		}
	}

	return final, invoked, nil
}

// executeBatch runs one batch of tool calls. Calls in a batch are
// independent and run concurrently, but result messages are returned in the
// original call order. A failing call never affects its siblings.
func (e *Engine) executeBatch(ctx context.Context, logger zerolog.Logger, conversationID string, toolIndex map[string]tools.Tool, calls []llm.ToolCall) []llm.Message {
	results := make([]llm.Message, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			results[i] = llm.Message{
				Role:       llm.RoleTool,
				Content:    e.executeOne(ctx, logger, conversationID, toolIndex, call),
				ToolCallID: call.ID,
			}
		}(i, call)
	}
	wg.Wait()

	return results
}

// executeOne runs a single tool call and always produces result text:
// unknown tools, argument violations and execution failures all become
// structured error payloads fed back to the model.
func (e *Engine) executeOne(ctx context.Context, logger zerolog.Logger, conversationID string, toolIndex map[string]tools.Tool, call llm.ToolCall) string {
	tool, ok := toolIndex[call.Name]
	if !ok {
		logger.Warn().Str("tool", call.Name).Msg("Unknown tool requested")
		return errorPayload(call.Name, "unknown tool")
	}

	if err := tools.ValidateArgs(tool, call.Arguments); err != nil {
		logger.Warn().Str("tool", call.Name).Err(err).Msg("Tool arguments rejected")
		return errorPayload(call.Name, err.Error())
	}

	if e.notifier != nil {
		e.notifier.ToolInvoked(conversationID, call.Name)
	}

	execCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	start := time.Now()
	result, err := tool.Execute(execCtx, call.ID, call.Arguments)
	observability.RecordToolExecution(call.Name, time.Since(start), err == nil)

	if err != nil {
		logger.Warn().Str("tool", call.Name).Err(err).Msg("Tool execution failed")
		return errorPayload(call.Name, err.Error())
	}

	return result.Text()
}

// errorPayload renders a tool failure as structured JSON for the model
func errorPayload(tool, message string) string {
	payload, err := json.Marshal(map[string]any{
		"error":   true,
		"tool":    tool,
		"message": message,
	})
	if err != nil {
		return fmt.Sprintf(`{"error":true,"tool":%q,"message":"internal error"}`, tool)
	}
	return string(payload)
}
