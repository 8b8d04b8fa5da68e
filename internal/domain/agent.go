package domain

// AgentType selects the handler family that executes an agent's tasks.
type AgentType string

const (
	AgentDevelopment  AgentType = "development"
	AgentDesign       AgentType = "design"
	AgentDataAnalysis AgentType = "data-analysis"
	AgentCostAnalysis AgentType = "cost-analysis"
	AgentSecurity     AgentType = "security"
	AgentDeployment   AgentType = "deployment"
)

// agentTypes is the closed set of valid agent types.
var agentTypes = map[AgentType]bool{
	AgentDevelopment:  true,
	AgentDesign:       true,
	AgentDataAnalysis: true,
	AgentCostAnalysis: true,
	AgentSecurity:     true,
	AgentDeployment:   true,
}

// Valid reports whether t is a known agent type.
func (t AgentType) Valid() bool { return agentTypes[t] }

// ResourceBudget is an agent's declared CPU/memory/storage quota.
// It is informational only: the scheduler never enforces it as a
// concurrency or admission limit.
type ResourceBudget struct {
	CPU       float64 `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	MemoryMB  int     `json:"memory_mb,omitempty" yaml:"memory_mb,omitempty"`
	StorageMB int     `json:"storage_mb,omitempty" yaml:"storage_mb,omitempty"`
}

// Agent is a registered worker. All fields are immutable after
// registration; changing capabilities or priority requires registering
// a new agent under a new id.
type Agent struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         AgentType      `json:"type"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Priority     int            `json:"priority"`
	Budget       ResourceBudget `json:"budget,omitempty"`

	// Dependencies lists agent ids expected to be registered first.
	// Registration-time bookkeeping only, never a live dependency graph.
	Dependencies []string `json:"dependencies,omitempty"`
}

// Validate checks the fields required for registration.
func (a Agent) Validate() error {
	if a.ID == "" {
		return NewDomainError("Agent.Validate", ErrInvalidInput, "empty agent id")
	}
	if a.Name == "" {
		return NewDomainError("Agent.Validate", ErrInvalidInput, "empty agent name")
	}
	if !a.Type.Valid() {
		return NewDomainError("Agent.Validate", ErrInvalidInput, "unknown agent type "+string(a.Type))
	}
	return nil
}

// HasCapabilities reports whether the agent's capability set is a
// superset of required. An empty requirement matches every agent.
func (a Agent) HasCapabilities(required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range a.Capabilities {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AgentStatus is the query-surface snapshot of one agent.
type AgentStatus struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Type     AgentType `json:"type"`
	Workload int       `json:"workload"`
	Status   string    `json:"status"` // "busy" | "idle"
}
