package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/calloway/backlot/pkg/llm"
)

// Result is the output of one tool execution, as text segments
type Result struct {
	Segments []string `json:"segments"`
}

// Text joins the result segments into one string
func (r Result) Text() string {
	return strings.Join(r.Segments, "\n")
}

// TextResult builds a single-segment result
func TextResult(text string) Result {
	return Result{Segments: []string{text}}
}

// Tool is one executable capability exposed to the model
type Tool interface {
	// Name returns the wire name the model calls the tool by
	Name() string

	// Label returns the human-readable tool label
	Label() string

	// Description returns the description advertised to the model
	Description() string

	// InputSchema returns the JSON schema for the tool's arguments
	InputSchema() map[string]any

	// Execute runs the tool for one correlated call
	Execute(ctx context.Context, callID string, args map[string]any) (Result, error)
}

// Registry is a name-keyed set of tools. It is built once per process and
// immutable afterwards, so concurrent reads need no locking.
type Registry struct {
	tools map[string]Tool
	names []string
}

// NewRegistry builds a registry from all known tools
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]Tool, len(tools)),
		names: make([]string, 0, len(tools)),
	}

	for _, tool := range tools {
		name := tool.Name()
		if name == "" {
			return nil, fmt.Errorf("tool name cannot be empty")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", name)
		}
		r.tools[name] = tool
		r.names = append(r.names, name)
	}

	return r, nil
}

// Get returns the tool with the given name
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// ResolveByNames returns the subset of named tools present in the registry,
// in the order given. Unknown names are dropped silently so stored agent
// definitions may reference tools that no longer exist.
func (r *Registry) ResolveByNames(names []string) []Tool {
	resolved := make([]Tool, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			resolved = append(resolved, tool)
		}
	}
	return resolved
}

// ListNames returns the full tool inventory in registration order
func (r *Registry) ListNames() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// All returns every registered tool in registration order
func (r *Registry) All() []Tool {
	all := make([]Tool, 0, len(r.names))
	for _, name := range r.names {
		all = append(all, r.tools[name])
	}
	return all
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	return len(r.names)
}

// Schemas converts a tool set into the canonical schema list advertised to
// the model providers
func Schemas(tools []Tool) []llm.ToolSchema {
	schemas := make([]llm.ToolSchema, 0, len(tools))
	for _, tool := range tools {
		schemas = append(schemas, llm.ToolSchema{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}
	return schemas
}
