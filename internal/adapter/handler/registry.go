package handler

import (
	"sync"

	"terraswarm/internal/domain"
)

type key struct {
	agentType domain.AgentType
	taskType  string
}

// Registry routes an (agent type, task type) pair to the handler that
// executes it. A registry replaces the central type switch the
// orchestrator would otherwise need: adding a pair is one Register
// call, not an edit to shared dispatch code.
type Registry struct {
	mu       sync.RWMutex
	handlers map[key]domain.HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[key]domain.HandlerFunc)}
}

// Register binds a handler to an (agent type, task type) pair. A later
// registration for the same pair wins; handlers are wired once at
// startup, so this is a setup convenience, not a runtime surface.
func (r *Registry) Register(agentType domain.AgentType, taskType string, fn domain.HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key{agentType, taskType}] = fn
}

// Resolve returns the handler for the pair, or ErrUnknownHandler. An
// unknown pair fails only the task that carried it, never the loop.
func (r *Registry) Resolve(agentType domain.AgentType, taskType string) (domain.HandlerFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.handlers[key{agentType, taskType}]
	if !ok {
		return nil, domain.NewDomainError("Registry.Resolve", domain.ErrUnknownHandler,
			string(agentType)+"/"+taskType)
	}
	return fn, nil
}

// Len reports how many pairs are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

var _ domain.HandlerResolver = (*Registry)(nil)
