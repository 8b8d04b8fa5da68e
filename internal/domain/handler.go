package domain

import (
	"context"
	"encoding/json"
)

// HandlerFunc executes one task and returns its result payload.
// The context is passed through for cooperative use; the orchestrator
// itself never cancels a running handler.
type HandlerFunc func(ctx context.Context, task Task) (json.RawMessage, error)

// HandlerResolver routes an (agent type, task type) pair to the handler
// that executes it. Resolve returns ErrUnknownHandler when no handler
// covers the pair.
type HandlerResolver interface {
	Resolve(agentType AgentType, taskType string) (HandlerFunc, error)
}
