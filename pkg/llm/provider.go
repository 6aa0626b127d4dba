package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/calloway/backlot/internal/observability"
	"github.com/rs/zerolog"
)

// Provider is an interface for model completion backends
type Provider interface {
	// Complete makes one completion call
	Complete(ctx context.Context, request Request) (*Response, error)

	// Name returns the backend name
	Name() string

	// DefaultModel returns the model used when no override is given
	DefaultModel() string
}

// Backend identifies which of the two backends handles a call
type Backend string

const (
	// BackendFast is the default-cost backend for sensitivity levels 1-4
	BackendFast Backend = "fast"
	// BackendSecure is the high-assurance backend for sensitivity levels 5-6
	BackendSecure Backend = "secure"
)

// Sensitivity level bounds
const (
	MinSensitivity = 1
	MaxSensitivity = 6

	// secureThreshold is the lowest level routed to the secure backend
	secureThreshold = 5

	providerCallTimeout = 60 * time.Second
)

// BackendForSensitivity maps a data-sensitivity level to a backend.
// This is the single policy decision point; nothing else may pick a backend.
func BackendForSensitivity(level int) (Backend, error) {
	if level < MinSensitivity || level > MaxSensitivity {
		return "", fmt.Errorf("data sensitivity level %d out of range [%d,%d]", level, MinSensitivity, MaxSensitivity)
	}
	if level >= secureThreshold {
		return BackendSecure, nil
	}
	return BackendFast, nil
}

// Router selects a backend per call by data-sensitivity level and
// normalizes both backends into the canonical request/response shape.
type Router struct {
	fast   Provider
	secure Provider
	logger zerolog.Logger
}

// NewRouter creates a provider router over the two backends
func NewRouter(fast, secure Provider, logger zerolog.Logger) (*Router, error) {
	observability.EnsureRegistered()

	if fast == nil {
		return nil, fmt.Errorf("fast provider is required")
	}
	if secure == nil {
		return nil, fmt.Errorf("secure provider is required")
	}
	return &Router{
		fast:   fast,
		secure: secure,
		logger: logger,
	}, nil
}

// Complete routes one completion call to the backend selected by the
// sensitivity level. A model override changes the model identifier only,
// never the backend. Backend failures are returned to the caller untouched.
func (r *Router) Complete(ctx context.Context, systemPrompt string, messages []Message, tools []ToolSchema, sensitivityLevel int, modelOverride string) (*Response, error) {
	backend, err := BackendForSensitivity(sensitivityLevel)
	if err != nil {
		return nil, err
	}

	provider := r.fast
	if backend == BackendSecure {
		provider = r.secure
	}

	model := modelOverride
	if model == "" {
		model = provider.DefaultModel()
	}

	r.logger.Debug().
		Str("backend", string(backend)).
		Str("provider", provider.Name()).
		Str("model", model).
		Int("sensitivity", sensitivityLevel).
		Int("messages", len(messages)).
		Int("tools", len(tools)).
		Msg("Routing completion")

	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()

	start := time.Now()
	response, err := provider.Complete(callCtx, Request{
		Model:        model,
		SystemPrompt: systemPrompt,
		Messages:     messages,
		Tools:        tools,
	})
	observability.RecordProviderCall(provider.Name(), time.Since(start), err == nil)

	if err != nil {
		return nil, fmt.Errorf("%s completion failed: %w", provider.Name(), err)
	}

	return response, nil
}
