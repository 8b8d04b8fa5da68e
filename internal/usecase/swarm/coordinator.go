package swarm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"terraswarm/internal/domain"
	"terraswarm/internal/infra/tracer"
)

// Coordinator is the public face of the orchestrator. It wires the
// registry, store, policy, scheduler, and dispatcher together and is
// the only type callers need to hold.
type Coordinator struct {
	registry   *Registry
	store      *Store
	workload   *WorkloadTracker
	stats      *Stats
	policy     *Policy
	dispatcher *Dispatcher
	scheduler  *Scheduler
	bus        domain.EventBus
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
}

// Options tune the coordinator. Zero values fall back to defaults.
type Options struct {
	// TickInterval is the scheduler period.
	TickInterval time.Duration
	// BatchSize bounds assignment attempts per tick.
	BatchSize int
}

// NewCoordinator builds a stopped coordinator. Call Start to begin
// scheduling.
func NewCoordinator(opts Options, resolver domain.HandlerResolver, bus domain.EventBus, logger *slog.Logger) *Coordinator {
	registry := NewRegistry(logger.With("component", "registry"))
	store := NewStore(logger.With("component", "store"))
	workload := NewWorkloadTracker()
	stats := NewStats()
	policy := NewPolicy(registry, workload)
	dispatcher := NewDispatcher(store, workload, stats, resolver, bus,
		logger.With("component", "dispatcher"))
	scheduler := NewScheduler(opts.TickInterval, opts.BatchSize,
		registry, store, policy, workload, stats, dispatcher, bus,
		logger.With("component", "scheduler"))

	return &Coordinator{
		registry:   registry,
		store:      store,
		workload:   workload,
		stats:      stats,
		policy:     policy,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		bus:        bus,
		logger:     logger,
	}
}

// Start begins the scheduling loop and announces the swarm. Idempotent.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	c.scheduler.Start(ctx)
	c.running = true
	c.bus.Publish(ctx, domain.Event{
		Type: domain.EventSwarmInitialized,
		Payload: marshalPayload(map[string]any{
			"agents": c.registry.Len(),
		}),
	})
	return nil
}

// RegisterAgent adds an agent to the roster. Duplicate ids are rejected
// with ErrDuplicate; agents are immutable once registered.
func (c *Coordinator) RegisterAgent(ctx context.Context, agent domain.Agent) error {
	if err := c.registry.Register(agent); err != nil {
		return err
	}
	c.bus.Publish(ctx, domain.Event{
		Type:    domain.EventAgentRegistered,
		AgentID: agent.ID,
		Payload: marshalPayload(map[string]any{
			"name": agent.Name,
			"type": string(agent.Type),
		}),
	})
	return nil
}

// SubmitTask queues a task for assignment on a future tick and returns
// its id (generated when the caller supplies none). Submission never
// waits for assignment or execution.
func (c *Coordinator) SubmitTask(ctx context.Context, task domain.Task) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "swarm.submit")
	defer span.End()

	stored, err := c.store.Submit(task)
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}

	span.SetAttributes(
		tracer.StringAttr("task.id", stored.ID),
		tracer.StringAttr("task.type", stored.Type),
		tracer.StringAttr("task.priority", string(stored.Priority)),
	)
	tracer.SetOK(span)

	c.bus.Publish(ctx, domain.Event{
		Type:   domain.EventTaskSubmitted,
		TaskID: stored.ID,
		Payload: marshalPayload(map[string]any{
			"type":     stored.Type,
			"priority": string(stored.Priority),
		}),
	})
	return stored.ID, nil
}

// Task returns a snapshot of one task, terminal or not.
func (c *Coordinator) Task(taskID string) (domain.Task, error) {
	return c.store.Get(taskID)
}

// AgentStatuses reports every agent with its current workload, in
// registration order.
func (c *Coordinator) AgentStatuses() []domain.AgentStatus {
	agents := c.registry.All()
	statuses := make([]domain.AgentStatus, 0, len(agents))
	for _, agent := range agents {
		load := c.workload.Load(agent.ID)
		status := "idle"
		if load > 0 {
			status = "busy"
		}
		statuses = append(statuses, domain.AgentStatus{
			ID:       agent.ID,
			Name:     agent.Name,
			Type:     agent.Type,
			Workload: load,
			Status:   status,
		})
	}
	return statuses
}

// Metrics derives the current metrics snapshot on demand. The scheduler
// publishes the same snapshot on every tick via metrics:updated.
func (c *Coordinator) Metrics() domain.Metrics {
	return snapshotMetrics(c.registry, c.workload, c.stats)
}

// Tick runs one scheduling pass immediately. Intended for tests and
// tooling that drive the loop by hand instead of the timer.
func (c *Coordinator) Tick(ctx context.Context) {
	c.scheduler.Tick(ctx)
}

// Shutdown stops the loop, drains in-flight executions until ctx
// expires, announces the shutdown, and clears all state. Tasks still
// executing when ctx expires are abandoned; their terminal transitions
// will find an empty store and be dropped.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false

	c.scheduler.Stop()
	drainErr := c.dispatcher.Drain(ctx)
	if drainErr != nil {
		c.logger.Warn("shutdown drain incomplete", "error", drainErr)
	}

	c.bus.Publish(ctx, domain.Event{
		Type: domain.EventSwarmShutdown,
		Payload: marshalPayload(map[string]any{
			"tasks_total": c.store.Len(),
		}),
	})
	c.bus.Close()

	c.registry.Reset()
	c.store.Reset()
	c.workload.Reset()
	c.stats.Reset()
	c.logger.Info("swarm shut down")
	return drainErr
}
