package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider over the Anthropic messages API.
// It serves as the high-assurance backend.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

const anthropicMaxTokens = 4096

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey, defaultModel string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}, nil
}

// Name returns the backend name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// DefaultModel returns the model used when no override is given
func (p *AnthropicProvider) DefaultModel() string {
	return p.defaultModel
}

// Complete makes one messages API call
func (p *AnthropicProvider) Complete(ctx context.Context, request Request) (*Response, error) {
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}

	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Model),
		Messages:  buildAnthropicMessages(request.Messages),
		MaxTokens: int64(maxTokens),
	}

	if request.SystemPrompt != "" {
		reqParams.System = []anthropic.TextBlockParam{
			{Text: request.SystemPrompt},
		}
	}
	if request.Temperature > 0 {
		reqParams.Temperature = anthropic.Float(request.Temperature)
	}

	if len(request.Tools) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, tool := range request.Tools {
			tools = append(tools, anthropic.ToolUnionParam{OfTool: buildAnthropicTool(tool)})
		}
		reqParams.Tools = tools
	}

	response, err := p.client.Messages.New(ctx, reqParams)
	if err != nil {
		return nil, err
	}

	content := ""
	toolCalls := []ToolCall{}

	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool input: %w", err)
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}

	return &Response{
		Content:    content,
		StopReason: mapAnthropicStopReason(string(response.StopReason)),
		ToolCalls:  toolCalls,
		Model:      string(response.Model),
		Usage: &Usage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}

// buildAnthropicMessages maps canonical messages into the Anthropic wire
// shape. Tool invocation and tool results both ride as typed content blocks
// on assistant/user turns.
func buildAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	anthropicMessages := []anthropic.MessageParam{}

	for _, msg := range msgs {
		switch {
		case msg.Role == RoleTool:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		case msg.Role == RoleAssistant && len(msg.ToolCalls) > 0:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case msg.Role == RoleAssistant:
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})
		case msg.Role == RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	return anthropicMessages
}

// buildAnthropicTool maps a canonical tool schema into the Anthropic format
func buildAnthropicTool(tool ToolSchema) *anthropic.ToolParam {
	toolParam := &anthropic.ToolParam{
		Name:        tool.Name,
		Description: anthropic.String(tool.Description),
	}

	if properties, ok := tool.InputSchema["properties"]; ok {
		toolParam.InputSchema = anthropic.ToolInputSchemaParam{
			Properties: properties,
		}
	}
	if required, ok := tool.InputSchema["required"].([]string); ok {
		toolParam.InputSchema.Required = required
	} else if required, ok := tool.InputSchema["required"].([]any); ok {
		strs := make([]string, 0, len(required))
		for _, v := range required {
			if s, ok := v.(string); ok {
				strs = append(strs, s)
			}
		}
		toolParam.InputSchema.Required = strs
	}

	return toolParam
}

// mapAnthropicStopReason maps the backend stop reason into the canonical enum
func mapAnthropicStopReason(reason string) StopReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return StopNormal
	case "tool_use":
		return StopToolCalls
	case "max_tokens":
		return StopLength
	default:
		return StopUnknown
	}
}
