package swarm

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"terraswarm/internal/domain"
	"terraswarm/internal/infra/tracer"
)

const (
	// DefaultTickInterval is the period of the assignment-and-metrics pass.
	DefaultTickInterval = time.Second

	// DefaultBatchSize bounds how many pending tasks a single tick may
	// attempt to assign, so a deep queue cannot monopolize one pass.
	// Under sustained load low-priority tasks can wait indefinitely
	// behind this bound; raising it trades tick latency for throughput.
	DefaultBatchSize = 10
)

// Scheduler drives the periodic pass that drains the pending queue in
// priority order, commits assignments through the policy, and publishes
// a metrics snapshot. A skip-if-still-running chain prevents ticks from
// overlapping when a pass outlives the interval.
type Scheduler struct {
	cron      *cron.Cron
	interval  time.Duration
	batchSize int

	registry   *Registry
	store      *Store
	policy     *Policy
	workload   *WorkloadTracker
	stats      *Stats
	dispatcher *Dispatcher
	bus        domain.EventBus
	logger     *slog.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler ticking every interval, assigning at
// most batchSize tasks per tick. Non-positive arguments fall back to the
// defaults.
func NewScheduler(interval time.Duration, batchSize int,
	registry *Registry, store *Store, policy *Policy, workload *WorkloadTracker,
	stats *Stats, dispatcher *Dispatcher, bus domain.EventBus, logger *slog.Logger) *Scheduler {

	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger{logger: logger}),
		)),
		interval:   interval,
		batchSize:  batchSize,
		registry:   registry,
		store:      store,
		policy:     policy,
		workload:   workload,
		stats:      stats,
		dispatcher: dispatcher,
		bus:        bus,
		logger:     logger,
	}
	s.cron.Schedule(constantDelay{delay: interval}, cron.FuncJob(s.run))
	return s
}

// Start begins ticking. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
	s.logger.Info("scheduler started", "interval", s.interval, "batch_size", s.batchSize)
}

// Stop halts ticking and waits for a tick in progress to finish.
// In-flight task executions are not touched; the dispatcher drains them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.started = false
	s.logger.Info("scheduler stopped")
}

// run is the cron job body. It drops the tick when the scheduler's
// context is gone, which closes the race between Stop and a queued job.
func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.Tick(ctx)
}

// Tick runs a single assignment-and-metrics pass: snapshot the pending
// queue, stable-sort by priority weight (equal priorities keep
// submission order), attempt assignment for at most batchSize tasks,
// and publish a metrics snapshot whether or not anything was assigned.
// Exported so tests can drive the loop deterministically.
func (s *Scheduler) Tick(ctx context.Context) {
	ctx, span := tracer.StartSpan(ctx, "swarm.tick")
	defer span.End()

	pending := s.store.PendingUnassigned()
	assigned := 0
	if len(pending) > 0 {
		sort.SliceStable(pending, func(i, j int) bool {
			return pending[i].Priority.Weight() > pending[j].Priority.Weight()
		})

		batch := pending
		if len(batch) > s.batchSize {
			batch = batch[:s.batchSize]
		}
		for _, task := range batch {
			if s.assign(ctx, task) {
				assigned++
			}
		}
		s.logger.Debug("tick pass",
			"pending", len(pending),
			"attempted", len(batch),
			"assigned", assigned,
		)
	}

	// Metrics go out on every tick, assignments or not.
	metrics := snapshotMetrics(s.registry, s.workload, s.stats)
	s.bus.Publish(ctx, domain.Event{
		Type:    domain.EventMetricsUpdated,
		Payload: marshalPayload(metrics),
	})

	span.SetAttributes(
		tracer.IntAttr("tick.pending", len(pending)),
		tracer.IntAttr("tick.assigned", assigned),
	)
	tracer.SetOK(span)
}

// assign matches one task against the policy and, on success, commits
// the assignment and hands it to the dispatcher. Per-task problems are
// reported and isolated; they never abort the pass.
func (s *Scheduler) assign(ctx context.Context, task domain.Task) bool {
	agent, err := s.policy.Select(task)
	if err != nil {
		// The task stays pending and is reconsidered next tick. With a
		// static registry this never resolves; reported, not fatal.
		s.logger.Debug("no eligible agent",
			"task_id", task.ID,
			"required_capabilities", task.RequiredCapabilities,
		)
		s.bus.Publish(ctx, domain.Event{
			Type:   domain.EventTaskNoAgents,
			TaskID: task.ID,
			Payload: marshalPayload(map[string]any{
				"required_capabilities": task.RequiredCapabilities,
			}),
		})
		return false
	}

	committed, err := s.store.MarkAssigned(task.ID, agent.ID)
	if err != nil {
		s.logger.Warn("assignment commit rejected",
			"task_id", task.ID, "agent_id", agent.ID, "error", err)
		return false
	}
	s.workload.Increment(agent.ID)
	s.logger.Info("task assigned",
		"task_id", task.ID,
		"agent_id", agent.ID,
		"priority", string(committed.Priority),
	)
	s.bus.Publish(ctx, domain.Event{
		Type:    domain.EventTaskAssigned,
		TaskID:  task.ID,
		AgentID: agent.ID,
	})
	s.dispatcher.Dispatch(ctx, agent, committed)
	return true
}

// constantDelay implements cron.Schedule for a fixed interval. Unlike
// cron.Every(), it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}

// cronLogger adapts slog to cron's logging interface. Routine cron
// chatter lands at debug level.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
