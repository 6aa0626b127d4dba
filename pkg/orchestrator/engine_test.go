package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calloway/backlot/pkg/agents"
	"github.com/calloway/backlot/pkg/llm"
	"github.com/calloway/backlot/pkg/session"
	"github.com/calloway/backlot/pkg/store"
	"github.com/calloway/backlot/pkg/tools"
)

// scriptedProvider returns queued responses in order; the last entry repeats
// once the queue is drained
type scriptedProvider struct {
	name     string
	script   []*llm.Response
	err      error
	mu       sync.Mutex
	requests []llm.Request
}

func (p *scriptedProvider) Complete(ctx context.Context, request llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, request)
	if p.err != nil {
		return nil, p.err
	}
	idx := len(p.requests) - 1
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	return p.script[idx], nil
}

func (p *scriptedProvider) Name() string         { return p.name }
func (p *scriptedProvider) DefaultModel() string { return p.name + "-default" }

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedProvider) request(i int) llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

type scriptTool struct {
	name   string
	result string
	err    error
	delay  time.Duration

	mu    sync.Mutex
	calls int
}

func (t *scriptTool) Name() string        { return t.name }
func (t *scriptTool) Label() string       { return t.name }
func (t *scriptTool) Description() string { return "scripted " + t.name }
func (t *scriptTool) InputSchema() map[string]any {
	return tools.ObjectSchema(map[string]any{
		"query": map[string]any{"type": "string"},
	})
}
func (t *scriptTool) Execute(ctx context.Context, callID string, args map[string]any) (tools.Result, error) {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if t.err != nil {
		return tools.Result{}, t.err
	}
	return tools.TextResult(t.result), nil
}

type staticAgentReader struct {
	agents map[string]*store.AgentDefinition
}

func (r *staticAgentReader) GetAgent(ctx context.Context, id string) (*store.AgentDefinition, error) {
	if def, ok := r.agents[id]; ok {
		return def, nil
	}
	return nil, store.ErrAgentNotFound
}

type recordingSessionStore struct {
	mu      sync.Mutex
	saved   map[string][]llm.Message
	failGet bool
	failSet bool
}

func newRecordingSessionStore() *recordingSessionStore {
	return &recordingSessionStore{saved: make(map[string][]llm.Message)}
}

func (s *recordingSessionStore) GetOrCreateSession(ctx context.Context, userID, agentID, conversationID string) (*store.SessionRecord, error) {
	if s.failGet {
		return nil, fmt.Errorf("store unreachable")
	}
	return &store.SessionRecord{
		ID:             "sess-" + conversationID,
		UserID:         userID,
		AgentID:        agentID,
		ConversationID: conversationID,
		History:        []llm.Message{},
	}, nil
}

func (s *recordingSessionStore) SaveSessionHistory(ctx context.Context, sessionID string, history []llm.Message) error {
	if s.failSet {
		return fmt.Errorf("store unreachable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[sessionID] = history
	return nil
}

func (s *recordingSessionStore) ClearSessionHistory(ctx context.Context, sessionID string) error {
	return nil
}

type capturedEvents struct {
	mu      sync.Mutex
	routed  []string
	invoked []string
}

func (c *capturedEvents) QueryRouted(conversationID, category, strategy string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routed = append(c.routed, category+"/"+strategy)
}

func (c *capturedEvents) ToolInvoked(conversationID, tool string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invoked = append(c.invoked, tool)
}

type engineFixture struct {
	engine   *Engine
	fast     *scriptedProvider
	secure   *scriptedProvider
	sessions *recordingSessionStore
	events   *capturedEvents
}

func newEngineFixture(t *testing.T, fastScript, secureScript []*llm.Response, reader store.AgentReader, toolSet ...tools.Tool) *engineFixture {
	t.Helper()

	if len(toolSet) == 0 {
		toolSet = []tools.Tool{
			&scriptTool{name: "get_bid_financials", result: "total: 120000"},
			&scriptTool{name: "search_projects", result: "2 projects found"},
			&scriptTool{name: "search_contacts", result: "1 contact found"},
		}
	}
	registry, err := tools.NewRegistry(toolSet...)
	require.NoError(t, err)

	if len(fastScript) == 0 {
		fastScript = []*llm.Response{{Content: "fast answer", StopReason: llm.StopNormal}}
	}
	if len(secureScript) == 0 {
		secureScript = []*llm.Response{{Content: "secure answer", StopReason: llm.StopNormal}}
	}
	fast := &scriptedProvider{name: "openai", script: fastScript}
	secure := &scriptedProvider{name: "anthropic", script: secureScript}
	router, err := llm.NewRouter(fast, secure, zerolog.Nop())
	require.NoError(t, err)

	if reader == nil {
		reader = &staticAgentReader{}
	}
	sessionStore := newRecordingSessionStore()
	sessions := session.NewManager(sessionStore, zerolog.Nop())
	resolver, err := agents.NewResolver(reader, registry, sessions, zerolog.Nop())
	require.NoError(t, err)

	events := &capturedEvents{}
	engine, err := New(Config{
		Router:   router,
		Resolver: resolver,
		Sessions: sessions,
		Notifier: events,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	return &engineFixture{
		engine:   engine,
		fast:     fast,
		secure:   secure,
		sessions: sessionStore,
		events:   events,
	}
}

func baseRequest() Request {
	return Request{
		Message:        "what is the budget on the meridian bid",
		UserContext:    UserContext{UserID: "user-1", DataSensitivity: 2},
		ConversationID: "conv-1",
	}
}

func toolCallResponse(content string, calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{Content: content, StopReason: llm.StopToolCalls, ToolCalls: calls}
}

func TestEngine_Process_SimpleAnswer(t *testing.T) {
	fx := newEngineFixture(t, []*llm.Response{
		{Content: "The budget is 120k.", StopReason: llm.StopNormal},
	}, nil, nil)

	response, err := fx.engine.Process(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, "The budget is 120k.", response.Content)
	assert.Equal(t, "bidding", response.AgentInfo.Type)
	assert.Equal(t, "auto_classified", response.AgentInfo.RoutingStrategy)
	assert.Equal(t, "bidding_agent", response.AgentInfo.PrimaryAgent)
	assert.Nil(t, response.AgentInfo.AgentsUsed)
	assert.Equal(t, "conv-1", response.ConversationID)
	assert.False(t, response.Timestamp.IsZero())
	assert.Equal(t, 1, fx.fast.calls())
	assert.Equal(t, []string{"bidding/auto_classified"}, fx.events.routed)
}

func TestEngine_Process_Validation(t *testing.T) {
	fx := newEngineFixture(t, nil, nil, nil)

	t.Run("should reject empty message", func(t *testing.T) {
		req := baseRequest()
		req.Message = ""
		_, err := fx.engine.Process(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("should reject empty conversation id", func(t *testing.T) {
		req := baseRequest()
		req.ConversationID = ""
		_, err := fx.engine.Process(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("should reject out-of-range sensitivity before any model call", func(t *testing.T) {
		req := baseRequest()
		req.UserContext.DataSensitivity = 9
		_, err := fx.engine.Process(context.Background(), req)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidRequest)
		assert.Contains(t, err.Error(), "out of range")
		assert.Equal(t, 0, fx.fast.calls())
		assert.Equal(t, 0, fx.secure.calls())
	})
}

func TestEngine_Process_SensitivityRouting(t *testing.T) {
	fx := newEngineFixture(t, nil, nil, nil)

	req := baseRequest()
	req.UserContext.DataSensitivity = 5
	response, err := fx.engine.Process(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "secure answer", response.Content)
	assert.Equal(t, 0, fx.fast.calls())
	assert.Equal(t, 1, fx.secure.calls())
}

func TestEngine_Process_ToolLoop(t *testing.T) {
	fx := newEngineFixture(t, []*llm.Response{
		toolCallResponse("pulling numbers",
			llm.ToolCall{ID: "call-1", Name: "get_bid_financials", Arguments: map[string]any{"query": "meridian"}},
			llm.ToolCall{ID: "call-2", Name: "search_projects", Arguments: map[string]any{"query": "meridian"}},
		),
		{Content: "Budget is 120k across 2 projects.", StopReason: llm.StopNormal},
	}, nil, nil)

	response, err := fx.engine.Process(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, "Budget is 120k across 2 projects.", response.Content)
	assert.Equal(t, []string{"get_bid_financials", "search_projects"}, response.AgentInfo.AgentsUsed)
	require.Equal(t, 2, fx.fast.calls())

	// Second model call sees the assistant tool request followed by one
	// tool-role result per call id, in call order
	second := fx.fast.request(1)
	require.Len(t, second.Messages, 4)
	assert.Equal(t, llm.RoleUser, second.Messages[0].Role)
	assert.Equal(t, llm.RoleAssistant, second.Messages[1].Role)
	require.Len(t, second.Messages[1].ToolCalls, 2)
	assert.Equal(t, llm.RoleTool, second.Messages[2].Role)
	assert.Equal(t, "call-1", second.Messages[2].ToolCallID)
	assert.Equal(t, "total: 120000", second.Messages[2].Content)
	assert.Equal(t, llm.RoleTool, second.Messages[3].Role)
	assert.Equal(t, "call-2", second.Messages[3].ToolCallID)
	assert.Equal(t, "2 projects found", second.Messages[3].Content)

	assert.ElementsMatch(t, []string{"get_bid_financials", "search_projects"}, fx.events.invoked)
}

func TestEngine_Process_BatchOrderWithSlowTool(t *testing.T) {
	slow := &scriptTool{name: "get_bid_financials", result: "slow result", delay: 50 * time.Millisecond}
	quick := &scriptTool{name: "search_projects", result: "quick result"}

	fx := newEngineFixture(t, []*llm.Response{
		toolCallResponse("",
			llm.ToolCall{ID: "call-1", Name: "get_bid_financials", Arguments: map[string]any{}},
			llm.ToolCall{ID: "call-2", Name: "search_projects", Arguments: map[string]any{}},
		),
		{Content: "done", StopReason: llm.StopNormal},
	}, nil, nil, slow, quick, &scriptTool{name: "search_contacts", result: "x"})

	_, err := fx.engine.Process(context.Background(), baseRequest())
	require.NoError(t, err)

	second := fx.fast.request(1)
	require.Len(t, second.Messages, 4)
	// The slow call still comes first because results keep call order
	assert.Equal(t, "call-1", second.Messages[2].ToolCallID)
	assert.Equal(t, "slow result", second.Messages[2].Content)
	assert.Equal(t, "call-2", second.Messages[3].ToolCallID)
	assert.Equal(t, "quick result", second.Messages[3].Content)
}

func TestEngine_Process_MixedBatchFailure(t *testing.T) {
	failing := &scriptTool{name: "get_bid_financials", err: fmt.Errorf("graph timeout")}
	working := &scriptTool{name: "search_projects", result: "2 projects found"}

	fx := newEngineFixture(t, []*llm.Response{
		toolCallResponse("",
			llm.ToolCall{ID: "call-1", Name: "get_bid_financials", Arguments: map[string]any{}},
			llm.ToolCall{ID: "call-2", Name: "search_projects", Arguments: map[string]any{}},
		),
		{Content: "partial answer", StopReason: llm.StopNormal},
	}, nil, nil, failing, working, &scriptTool{name: "search_contacts", result: "x"})

	response, err := fx.engine.Process(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "partial answer", response.Content)

	second := fx.fast.request(1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(second.Messages[2].Content), &payload))
	assert.Equal(t, true, payload["error"])
	assert.Equal(t, "get_bid_financials", payload["tool"])
	assert.Contains(t, payload["message"], "graph timeout")

	assert.Equal(t, "2 projects found", second.Messages[3].Content)
	// Both tools were attempted despite the failure
	assert.Equal(t, []string{"get_bid_financials", "search_projects"}, response.AgentInfo.AgentsUsed)
}

func TestEngine_Process_UnknownTool(t *testing.T) {
	fx := newEngineFixture(t, []*llm.Response{
		toolCallResponse("",
			llm.ToolCall{ID: "call-1", Name: "delete_everything", Arguments: map[string]any{}},
		),
		{Content: "recovered", StopReason: llm.StopNormal},
	}, nil, nil)

	response, err := fx.engine.Process(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", response.Content)
	// Unknown tools never count as used
	assert.Nil(t, response.AgentInfo.AgentsUsed)

	second := fx.fast.request(1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(second.Messages[2].Content), &payload))
	assert.Equal(t, "delete_everything", payload["tool"])
	assert.Equal(t, "unknown tool", payload["message"])
}

func TestEngine_Process_ToolOutsideResolvedSubset(t *testing.T) {
	// search_talent exists in the registry but not in the bidding desk subset
	fx := newEngineFixture(t, []*llm.Response{
		toolCallResponse("",
			llm.ToolCall{ID: "call-1", Name: "search_talent", Arguments: map[string]any{}},
		),
		{Content: "recovered", StopReason: llm.StopNormal},
	}, nil, nil,
		&scriptTool{name: "get_bid_financials", result: "x"},
		&scriptTool{name: "search_projects", result: "x"},
		&scriptTool{name: "search_contacts", result: "x"},
		&scriptTool{name: "search_talent", result: "roster hit"},
	)

	response, err := fx.engine.Process(context.Background(), baseRequest())
	require.NoError(t, err)

	second := fx.fast.request(1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(second.Messages[2].Content), &payload))
	assert.Equal(t, "unknown tool", payload["message"])
	assert.Nil(t, response.AgentInfo.AgentsUsed)
}

func TestEngine_Process_InvalidArguments(t *testing.T) {
	fx := newEngineFixture(t, []*llm.Response{
		toolCallResponse("",
			llm.ToolCall{ID: "call-1", Name: "get_bid_financials", Arguments: map[string]any{"query": 42}},
		),
		{Content: "recovered", StopReason: llm.StopNormal},
	}, nil, nil)

	_, err := fx.engine.Process(context.Background(), baseRequest())
	require.NoError(t, err)

	second := fx.fast.request(1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(second.Messages[2].Content), &payload))
	assert.Equal(t, true, payload["error"])
	assert.Contains(t, payload["message"], "invalid arguments")
}

func TestEngine_Process_ExhaustedIterations(t *testing.T) {
	keepCalling := toolCallResponse("still working on it",
		llm.ToolCall{ID: "call-1", Name: "search_projects", Arguments: map[string]any{}},
	)

	t.Run("should fall back to the last assistant text", func(t *testing.T) {
		fx := newEngineFixture(t, []*llm.Response{keepCalling}, nil, nil)

		response, err := fx.engine.Process(context.Background(), baseRequest())
		require.NoError(t, err)
		assert.Equal(t, MaxIterations, fx.fast.calls())
		assert.Equal(t, "still working on it", response.Content)
	})

	t.Run("should use the placeholder when no text accumulated", func(t *testing.T) {
		silent := toolCallResponse("",
			llm.ToolCall{ID: "call-1", Name: "search_projects", Arguments: map[string]any{}},
		)
		fx := newEngineFixture(t, []*llm.Response{silent}, nil, nil)

		response, err := fx.engine.Process(context.Background(), baseRequest())
		require.NoError(t, err)
		assert.Equal(t, MaxIterations, fx.fast.calls())
		assert.Contains(t, response.Content, "Maximum reasoning iterations reached")
	})
}

func TestEngine_Process_ProviderFailure(t *testing.T) {
	fx := newEngineFixture(t, nil, nil, nil)
	fx.fast.err = fmt.Errorf("connection refused")

	_, err := fx.engine.Process(context.Background(), baseRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func storedBiddingAgent() *staticAgentReader {
	return &staticAgentReader{agents: map[string]*store.AgentDefinition{
		"agent-1": {
			ID:              "agent-1",
			UserID:          "user-1",
			Name:            "Bid Desk Pro",
			Type:            "bidding",
			ModelPreference: "openai/gpt-4o-mini",
			Active:          true,
		},
	}}
}

func TestEngine_Process_StoredAgentPersistsSession(t *testing.T) {
	fx := newEngineFixture(t, []*llm.Response{
		{Content: "stored agent answer", StopReason: llm.StopNormal},
	}, nil, storedBiddingAgent())

	req := baseRequest()
	req.AgentID = "agent-1"
	response, err := fx.engine.Process(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "user_agent", response.AgentInfo.RoutingStrategy)
	assert.Equal(t, "Bid Desk Pro", response.AgentInfo.PrimaryAgent)
	// Session-backed responses always carry the field, even when no tools ran
	assert.NotNil(t, response.AgentInfo.AgentsUsed)
	assert.Empty(t, response.AgentInfo.AgentsUsed)

	// The empty array must survive encoding to the wire
	wire, err := json.Marshal(response)
	require.NoError(t, err)
	assert.Contains(t, string(wire), `"agents_used":[]`)

	// The model preference reached the provider with its namespace stripped
	assert.Equal(t, "gpt-4o-mini", fx.fast.request(0).Model)

	saved := fx.sessions.saved["sess-conv-1"]
	require.Len(t, saved, 2)
	assert.Equal(t, llm.RoleUser, saved[0].Role)
	assert.Equal(t, req.Message, saved[0].Content)
	assert.Equal(t, llm.RoleAssistant, saved[1].Role)
	assert.Equal(t, "stored agent answer", saved[1].Content)
	for _, msg := range saved {
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestEngine_Process_SessionSaveFailureIsNonFatal(t *testing.T) {
	fx := newEngineFixture(t, []*llm.Response{
		{Content: "answer survives", StopReason: llm.StopNormal},
	}, nil, storedBiddingAgent())
	fx.sessions.failSet = true

	req := baseRequest()
	req.AgentID = "agent-1"
	response, err := fx.engine.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "answer survives", response.Content)
}

func TestEngine_Process_ClassifiedPathSkipsPersistence(t *testing.T) {
	fx := newEngineFixture(t, nil, nil, nil)

	_, err := fx.engine.Process(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Empty(t, fx.sessions.saved)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
