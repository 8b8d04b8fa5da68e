package swarm

import (
	"sync"
	"time"

	"terraswarm/internal/domain"
)

// Stats accumulates terminal-task counters and the running average
// handler time. The dispatcher records outcomes from many goroutines,
// so everything is mutex-guarded.
type Stats struct {
	mu        sync.Mutex
	completed int64
	failed    int64
	avgMs     float64 // incremental mean over completed tasks
}

// NewStats creates a zeroed collector.
func NewStats() *Stats {
	return &Stats{}
}

// RecordCompletion counts one completed task and folds its elapsed
// handler time into the running mean (Welford update: the mean moves
// by the scaled delta, so no sum that can overflow is kept).
func (s *Stats) RecordCompletion(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	ms := float64(elapsed) / float64(time.Millisecond)
	s.avgMs += (ms - s.avgMs) / float64(s.completed)
}

// RecordFailure counts one failed task. Failures do not touch the
// response-time mean; only completed work is timed.
func (s *Stats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
}

// Totals returns the completed count, failed count, and mean handler
// time in milliseconds.
func (s *Stats) Totals() (completed, failed int64, avgMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, s.failed, s.avgMs
}

// Reset clears all counters. Used on shutdown.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = 0
	s.failed = 0
	s.avgMs = 0
}

// snapshotMetrics derives the full metrics view from the live registry,
// tracker, and stats state. Called by the scheduler on every tick and
// by the coordinator's Metrics query; it never caches.
func snapshotMetrics(registry *Registry, workload *WorkloadTracker, stats *Stats) domain.Metrics {
	completed, failed, avgMs := stats.Totals()
	total := registry.Len()
	inProgress := workload.TotalInFlight()

	m := domain.Metrics{
		TotalAgents:     total,
		ActiveAgents:    workload.ActiveAgents(),
		TasksCompleted:  completed,
		TasksFailed:     failed,
		TasksInProgress: inProgress,
		AvgResponseMs:   avgMs,
		UpdatedAt:       time.Now(),
	}
	if total > 0 {
		m.SystemLoad = float64(inProgress) / float64(total)
	}
	return m
}
