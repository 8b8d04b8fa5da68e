package domain

import "time"

// Metrics is a derived snapshot recomputed by the scheduler on every
// tick. It is never mutated independently of the state it summarizes.
type Metrics struct {
	TotalAgents     int   `json:"total_agents"`
	ActiveAgents    int   `json:"active_agents"`
	TasksCompleted  int64 `json:"tasks_completed"`
	TasksFailed     int64 `json:"tasks_failed"`
	TasksInProgress int   `json:"tasks_in_progress"`

	// AvgResponseMs is a running incremental mean of handler execution
	// time in milliseconds, over completed tasks only.
	AvgResponseMs float64 `json:"avg_response_ms"`

	// SystemLoad is the mean per-agent workload.
	SystemLoad float64 `json:"system_load"`

	UpdatedAt time.Time `json:"updated_at"`
}
