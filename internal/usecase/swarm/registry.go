package swarm

import (
	"log/slog"
	"sync"

	"terraswarm/internal/domain"
)

// Registry holds all registered agents and their static metadata.
// Agents are immutable once registered; duplicate ids are rejected.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]domain.Agent
	order  []string // ids in registration order
	logger *slog.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		agents: make(map[string]domain.Agent),
		logger: logger,
	}
}

// Register adds an agent. Returns ErrDuplicate if the id is already
// registered and ErrInvalidInput if the descriptor is malformed.
// Dependencies on agents not yet registered are logged, not enforced.
func (r *Registry) Register(agent domain.Agent) error {
	if err := agent.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agent.ID]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, "agent '"+agent.ID+"'")
	}

	for _, dep := range agent.Dependencies {
		if _, ok := r.agents[dep]; !ok {
			r.logger.Warn("agent dependency not registered yet",
				"agent_id", agent.ID, "dependency", dep)
		}
	}

	r.agents[agent.ID] = agent
	r.order = append(r.order, agent.ID)
	r.logger.Info("agent registered",
		"agent_id", agent.ID,
		"name", agent.Name,
		"type", string(agent.Type),
		"capabilities", agent.Capabilities,
		"priority", agent.Priority,
	)
	return nil
}

// Find returns the agent for the given id, or ErrNotFound.
func (r *Registry) Find(agentID string) (domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return domain.Agent{}, domain.NewDomainError("Registry.Find", domain.ErrNotFound, "agent '"+agentID+"'")
	}
	return agent, nil
}

// All returns every registered agent in registration order.
func (r *Registry) All() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]domain.Agent, 0, len(r.order))
	for _, id := range r.order {
		agents = append(agents, r.agents[id])
	}
	return agents
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Reset removes every agent. Used on shutdown.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]domain.Agent)
	r.order = nil
}
