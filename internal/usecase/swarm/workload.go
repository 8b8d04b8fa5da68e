package swarm

import "sync"

// WorkloadTracker counts tasks currently assigned-but-not-terminal per
// agent. The scheduler increments on assignment commit and the
// dispatcher decrements on terminal transition, so every method is
// mutex-guarded; counters never go below zero.
type WorkloadTracker struct {
	mu    sync.RWMutex
	loads map[string]int
}

// NewWorkloadTracker creates an empty tracker.
func NewWorkloadTracker() *WorkloadTracker {
	return &WorkloadTracker{loads: make(map[string]int)}
}

// Increment adds one in-flight task to the agent's load.
func (w *WorkloadTracker) Increment(agentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loads[agentID]++
}

// Decrement releases one in-flight task. It floors at zero to tolerate
// duplicate completion notifications rather than corrupting the count.
func (w *WorkloadTracker) Decrement(agentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loads[agentID] > 0 {
		w.loads[agentID]--
	}
}

// Load returns the agent's current in-flight count.
func (w *WorkloadTracker) Load(agentID string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.loads[agentID]
}

// ActiveAgents counts agents with load > 0.
func (w *WorkloadTracker) ActiveAgents() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	active := 0
	for _, load := range w.loads {
		if load > 0 {
			active++
		}
	}
	return active
}

// TotalInFlight sums all per-agent loads, i.e. tasks in progress.
func (w *WorkloadTracker) TotalInFlight() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	total := 0
	for _, load := range w.loads {
		total += load
	}
	return total
}

// Reset clears every counter. Used on shutdown.
func (w *WorkloadTracker) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loads = make(map[string]int)
}
