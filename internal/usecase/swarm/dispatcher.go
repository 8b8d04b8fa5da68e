package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"terraswarm/internal/domain"
	"terraswarm/internal/infra/tracer"
)

// Dispatcher runs committed assignments against their handlers. Each
// task executes on its own goroutine; the scheduler never waits on a
// handler. Every execution releases its agent's workload exactly once,
// whether it completes, fails, or the handler panics.
type Dispatcher struct {
	store    *Store
	workload *WorkloadTracker
	stats    *Stats
	resolver domain.HandlerResolver
	bus      domain.EventBus
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store *Store, workload *WorkloadTracker, stats *Stats,
	resolver domain.HandlerResolver, bus domain.EventBus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		workload: workload,
		stats:    stats,
		resolver: resolver,
		bus:      bus,
		logger:   logger,
	}
}

// Dispatch launches execution of an assigned task and returns
// immediately. The handler context is detached from the tick that
// launched it: stopping the scheduler never cancels in-flight work,
// shutdown drains it instead. Deadlines on the task are likewise not
// enforced here.
func (d *Dispatcher) Dispatch(ctx context.Context, agent domain.Agent, task domain.Task) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.execute(ctx, agent, task)
	}()
}

// Drain blocks until every in-flight execution finishes or ctx expires.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return domain.WrapOp("Dispatcher.Drain", ctx.Err())
	}
}

func (d *Dispatcher) execute(ctx context.Context, agent domain.Agent, task domain.Task) {
	// Exactly one release per execution, on every exit path.
	defer d.workload.Decrement(agent.ID)

	ctx, span := tracer.StartSpan(ctx, "swarm.execute",
		trace.WithAttributes(
			tracer.StringAttr("task.id", task.ID),
			tracer.StringAttr("agent.id", agent.ID),
			tracer.StringAttr("task.type", task.Type),
		))
	defer span.End()

	started, err := d.store.MarkExecuting(task.ID)
	if err != nil {
		// Store was cleared under the task, e.g. shutdown mid-flight.
		d.logger.Warn("task gone before execution", "task_id", task.ID, "error", err)
		tracer.RecordError(span, err)
		return
	}

	handler, err := d.resolver.Resolve(agent.Type, started.Type)
	if err != nil {
		d.fail(ctx, span, agent, started, err)
		return
	}

	begin := time.Now()
	result, err := d.invoke(ctx, handler, started)
	elapsed := time.Since(begin)
	if err != nil {
		d.fail(ctx, span, agent, started, err)
		return
	}

	if _, err := d.store.MarkCompleted(started.ID, result); err != nil {
		d.logger.Warn("completion transition rejected", "task_id", started.ID, "error", err)
		tracer.RecordError(span, err)
		return
	}
	d.stats.RecordCompletion(elapsed)
	d.logger.Info("task completed",
		"task_id", started.ID,
		"agent_id", agent.ID,
		"type", started.Type,
		"elapsed", elapsed,
	)
	d.bus.Publish(ctx, domain.Event{
		Type:    domain.EventTaskCompleted,
		TaskID:  started.ID,
		AgentID: agent.ID,
		Payload: marshalPayload(map[string]any{"elapsed_ms": elapsed.Milliseconds()}),
	})
	tracer.SetOK(span)
}

// invoke calls the handler with panic recovery so one bad handler can
// only fail its own task.
func (d *Dispatcher) invoke(ctx context.Context, handler domain.HandlerFunc, task domain.Task) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, task)
}

// fail moves the task to its failed terminal state and reports the
// cause. Failures are terminal; the task is never requeued.
func (d *Dispatcher) fail(ctx context.Context, span trace.Span, agent domain.Agent, task domain.Task, cause error) {
	tracer.RecordError(span, cause)

	if _, err := d.store.MarkFailed(task.ID, cause.Error()); err != nil {
		d.logger.Warn("failure transition rejected", "task_id", task.ID, "error", err)
		return
	}
	d.stats.RecordFailure()
	d.logger.Warn("task failed",
		"task_id", task.ID,
		"agent_id", agent.ID,
		"type", task.Type,
		"error", cause,
		"code", string(domain.ErrorCodeOf(cause)),
	)
	d.bus.Publish(ctx, domain.Event{
		Type:    domain.EventTaskFailed,
		TaskID:  task.ID,
		AgentID: agent.ID,
		Payload: marshalPayload(map[string]any{"error": cause.Error()}),
	})
}

// marshalPayload builds an event payload, dropping it on marshal
// failure rather than blocking a notification.
func marshalPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
