package swarm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"terraswarm/internal/domain"
	"terraswarm/internal/usecase/eventbus"
)

func newCoordinatorFixture(t *testing.T, resolver domain.HandlerResolver) (*Coordinator, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(testLogger())
	// A long interval keeps the timer out of the way; tests drive
	// ticks by hand for determinism.
	c := NewCoordinator(Options{TickInterval: time.Hour}, resolver, bus, testLogger())
	return c, bus
}

func okResolver() resolverFunc {
	return staticResolver(func(_ context.Context, _ domain.Task) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})
}

func waitTerminal(t *testing.T, c *Coordinator, taskID string) domain.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := c.Task(taskID)
		if err != nil {
			t.Fatalf("Task: %v", err)
		}
		if got.Status.Terminal() {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", taskID)
	return domain.Task{}
}

func TestCoordinatorLifecycle(t *testing.T) {
	c, _ := newCoordinatorFixture(t, okResolver())
	ctx := context.Background()

	agent := testAgent("a1", "x", "y")
	agent.Priority = 5
	if err := c.RegisterAgent(ctx, agent); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	taskID, err := c.SubmitTask(ctx, testTask("job", "x"))
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if taskID == "" {
		t.Fatal("empty task id")
	}

	c.Tick(ctx)

	got := waitTerminal(t, c, taskID)
	if got.Status != domain.TaskCompleted {
		t.Fatalf("Status = %s, want completed", got.Status)
	}
	if got.AssignedAgent != "a1" {
		t.Errorf("AssignedAgent = %q, want a1", got.AssignedAgent)
	}

	// Workload back to zero once terminal.
	statuses := c.AgentStatuses()
	if len(statuses) != 1 || statuses[0].Workload != 0 || statuses[0].Status != "idle" {
		t.Errorf("statuses = %+v", statuses)
	}

	metrics := c.Metrics()
	if metrics.TasksCompleted != 1 || metrics.TasksInProgress != 0 {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestCoordinatorDuplicateAgent(t *testing.T) {
	c, _ := newCoordinatorFixture(t, okResolver())
	ctx := context.Background()

	if err := c.RegisterAgent(ctx, testAgent("a1")); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if err := c.RegisterAgent(ctx, testAgent("a1")); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestCoordinatorAgentStatusesBusy(t *testing.T) {
	release := make(chan struct{})
	c, _ := newCoordinatorFixture(t, blockingResolver(release))
	ctx := context.Background()

	if err := c.RegisterAgent(ctx, testAgent("a1", "x")); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if _, err := c.SubmitTask(ctx, testTask("job", "x")); err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	c.Tick(ctx)

	statuses := c.AgentStatuses()
	if len(statuses) != 1 || statuses[0].Status != "busy" || statuses[0].Workload != 1 {
		t.Errorf("statuses = %+v, want one busy agent with workload 1", statuses)
	}
	if m := c.Metrics(); m.ActiveAgents != 1 || m.TasksInProgress != 1 {
		t.Errorf("metrics = %+v", m)
	}

	close(release)
}

func TestCoordinatorEmitsLifecycleEvents(t *testing.T) {
	c, bus := newCoordinatorFixture(t, okResolver())
	ctx := context.Background()

	var seen eventSet
	bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		seen.add(e.Type)
	})

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.RegisterAgent(ctx, testAgent("a1", "x")); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	taskID, err := c.SubmitTask(ctx, testTask("job", "x"))
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	c.Tick(ctx)
	waitTerminal(t, c, taskID)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	for _, want := range []domain.EventType{
		domain.EventSwarmInitialized,
		domain.EventAgentRegistered,
		domain.EventTaskSubmitted,
		domain.EventTaskAssigned,
		domain.EventTaskCompleted,
		domain.EventMetricsUpdated,
		domain.EventSwarmShutdown,
	} {
		if !seen.has(want) {
			t.Errorf("event %s never published", want)
		}
	}
}

func TestCoordinatorShutdownClearsState(t *testing.T) {
	c, _ := newCoordinatorFixture(t, okResolver())
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.RegisterAgent(ctx, testAgent("a1", "x")); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	taskID, _ := c.SubmitTask(ctx, testTask("job", "x"))
	c.Tick(ctx)
	waitTerminal(t, c, taskID)

	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if statuses := c.AgentStatuses(); len(statuses) != 0 {
		t.Errorf("agents survive shutdown: %+v", statuses)
	}
	if _, err := c.Task(taskID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("task survives shutdown: err = %v", err)
	}
	if m := c.Metrics(); m.TasksCompleted != 0 || m.TotalAgents != 0 {
		t.Errorf("metrics survive shutdown: %+v", m)
	}

	// Shutdown is idempotent.
	if err := c.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestCoordinatorCapabilityInvariant(t *testing.T) {
	c, _ := newCoordinatorFixture(t, okResolver())
	ctx := context.Background()

	agents := []domain.Agent{
		testAgent("narrow", "x"),
		testAgent("wide", "x", "y", "z"),
	}
	for _, agent := range agents {
		if err := c.RegisterAgent(ctx, agent); err != nil {
			t.Fatalf("RegisterAgent: %v", err)
		}
	}

	var taskIDs []string
	for _, caps := range [][]string{{"x"}, {"x", "y"}, {"z"}, {"y", "z"}} {
		id, err := c.SubmitTask(ctx, testTask("job", caps...))
		if err != nil {
			t.Fatalf("SubmitTask: %v", err)
		}
		taskIDs = append(taskIDs, id)
	}

	c.Tick(ctx)
	for _, id := range taskIDs {
		got := waitTerminal(t, c, id)
		agent := agents[0]
		if got.AssignedAgent == "wide" {
			agent = agents[1]
		}
		if !agent.HasCapabilities(got.RequiredCapabilities) {
			t.Errorf("task %s assigned to %s without required capabilities %v",
				id, got.AssignedAgent, got.RequiredCapabilities)
		}
	}
}

// eventSet is a concurrent set of observed event types.
type eventSet struct {
	mu   sync.Mutex
	seen map[domain.EventType]bool
}

func (s *eventSet) add(t domain.EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[domain.EventType]bool)
	}
	s.seen[t] = true
}

func (s *eventSet) has(t domain.EventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[t]
}
