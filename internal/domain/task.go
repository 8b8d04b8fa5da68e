package domain

import (
	"encoding/json"
	"time"
)

// TaskPriority orders pending tasks within a scheduler pass.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// priorityWeights fixes the scheduling order: critical > high > medium > low.
var priorityWeights = map[TaskPriority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

// Weight returns the numeric scheduling weight of p. Higher runs first.
func (p TaskPriority) Weight() int { return priorityWeights[p] }

// Valid reports whether p is a known priority.
func (p TaskPriority) Valid() bool {
	_, ok := priorityWeights[p]
	return ok
}

// TaskStatus is the lifecycle state of a task:
// pending → assigned → executing → {completed | failed}.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskAssigned  TaskStatus = "assigned"
	TaskExecuting TaskStatus = "executing"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transition can occur from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is one unit of work moving through the orchestrator. Terminal
// tasks are retained for querying, never deleted or requeued.
type Task struct {
	ID                   string          `json:"id"`
	Type                 string          `json:"type"`
	Priority             TaskPriority    `json:"priority"`
	Payload              json.RawMessage `json:"payload,omitempty"`
	RequiredCapabilities []string        `json:"required_capabilities,omitempty"`

	// Deadline is carried for consumers but never enforced: the
	// orchestrator does not cancel or time out in-flight tasks.
	Deadline *time.Time `json:"deadline,omitempty"`

	Status TaskStatus `json:"status"`

	// AssignedAgent is set at most once, when the selection policy
	// commits an assignment. Re-assignment is forbidden.
	AssignedAgent string `json:"assigned_agent,omitempty"`

	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Validate checks the fields required for submission. Priority may be
// empty; the store defaults it to medium.
func (t Task) Validate() error {
	if t.Type == "" {
		return NewDomainError("Task.Validate", ErrInvalidInput, "empty task type")
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return NewDomainError("Task.Validate", ErrInvalidInput, "unknown priority "+string(t.Priority))
	}
	return nil
}
