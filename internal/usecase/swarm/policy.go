package swarm

import (
	"strings"

	"terraswarm/internal/domain"
)

// Policy matches a task to the agent that should run it. Selection is
// synchronous and side-effect-free; the caller commits an accepted
// choice via Store.MarkAssigned plus WorkloadTracker.Increment.
type Policy struct {
	registry *Registry
	workload *WorkloadTracker
}

// NewPolicy creates a policy over the given registry and tracker.
func NewPolicy(registry *Registry, workload *WorkloadTracker) *Policy {
	return &Policy{registry: registry, workload: workload}
}

// Select returns the agent for the task: among agents whose capability
// set covers task.RequiredCapabilities, the one with the lowest current
// workload, ties broken by higher static priority and then registration
// order. A greedy O(agents) fold; no optimization across pending tasks.
//
// ErrNoEligibleAgent means no registered agent covers the requirement.
// Capability sets are static, so the task will keep failing selection
// on every tick until the registry changes; that never blocks other
// tasks or the scheduler itself.
func (p *Policy) Select(task domain.Task) (domain.Agent, error) {
	var best domain.Agent
	bestLoad := 0
	found := false

	for _, agent := range p.registry.All() {
		if !agent.HasCapabilities(task.RequiredCapabilities) {
			continue
		}
		load := p.workload.Load(agent.ID)
		if !found || load < bestLoad || (load == bestLoad && agent.Priority > best.Priority) {
			best = agent
			bestLoad = load
			found = true
		}
	}

	if !found {
		return domain.Agent{}, domain.NewDomainError("Policy.Select", domain.ErrNoEligibleAgent,
			"task '"+task.ID+"' requires ["+strings.Join(task.RequiredCapabilities, " ")+"]")
	}
	return best, nil
}
