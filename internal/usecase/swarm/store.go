package swarm

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"terraswarm/internal/domain"
)

// Store holds every submitted task by id plus the pending queue in
// submission order. It owns all task state transitions; callers only
// ever see copies, so a returned task can never be mutated behind the
// store's back.
type Store struct {
	mu      sync.RWMutex
	tasks   map[string]domain.Task
	pending []string // pending task ids in submission order
	entropy *ulid.MonotonicEntropy
	logger  *slog.Logger
}

// NewStore creates an empty task store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		tasks:   make(map[string]domain.Task),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		logger:  logger,
	}
}

// Submit validates and records a task as pending. A missing id is
// generated (ULID); a caller-supplied duplicate id is rejected with
// ErrDuplicate. A missing priority defaults to medium. Returns the
// stored copy.
func (s *Store) Submit(task domain.Task) (domain.Task, error) {
	if err := task.Validate(); err != nil {
		return domain.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if task.ID == "" {
		task.ID = ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
	} else if _, exists := s.tasks[task.ID]; exists {
		return domain.Task{}, domain.NewDomainError("Store.Submit", domain.ErrDuplicate, "task '"+task.ID+"'")
	}
	if task.Priority == "" {
		task.Priority = domain.PriorityMedium
	}
	task.Status = domain.TaskPending
	task.AssignedAgent = ""
	task.SubmittedAt = now

	s.tasks[task.ID] = task
	s.pending = append(s.pending, task.ID)
	s.logger.Debug("task submitted",
		"task_id", task.ID,
		"type", task.Type,
		"priority", string(task.Priority),
		"required_capabilities", task.RequiredCapabilities,
	)
	return task, nil
}

// Get returns the task for the given id, or ErrNotFound.
func (s *Store) Get(taskID string) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, domain.NewDomainError("Store.Get", domain.ErrNotFound, "task '"+taskID+"'")
	}
	return task, nil
}

// PendingUnassigned returns every task still waiting for an agent, in
// submission order.
func (s *Store) PendingUnassigned() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Task, 0, len(s.pending))
	for _, id := range s.pending {
		if task, ok := s.tasks[id]; ok && task.Status == domain.TaskPending {
			out = append(out, task)
		}
	}
	return out
}

// MarkAssigned commits an assignment: pending → assigned. The agent id
// is set exactly once; a second commit fails with ErrAlreadyAssigned
// and a transition from any other state fails with ErrInvalidTransition.
func (s *Store) MarkAssigned(taskID, agentID string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, domain.NewDomainError("Store.MarkAssigned", domain.ErrNotFound, "task '"+taskID+"'")
	}
	if task.AssignedAgent != "" {
		return domain.Task{}, domain.NewDomainError("Store.MarkAssigned", domain.ErrAlreadyAssigned,
			"task '"+taskID+"' already on agent '"+task.AssignedAgent+"'")
	}
	if task.Status != domain.TaskPending {
		return domain.Task{}, domain.NewDomainError("Store.MarkAssigned", domain.ErrInvalidTransition,
			string(task.Status)+" → assigned")
	}

	task.Status = domain.TaskAssigned
	task.AssignedAgent = agentID
	s.tasks[taskID] = task
	s.dropPending(taskID)
	return task, nil
}

// MarkExecuting transitions assigned → executing and stamps StartedAt.
func (s *Store) MarkExecuting(taskID string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, domain.NewDomainError("Store.MarkExecuting", domain.ErrNotFound, "task '"+taskID+"'")
	}
	if task.Status != domain.TaskAssigned {
		return domain.Task{}, domain.NewDomainError("Store.MarkExecuting", domain.ErrInvalidTransition,
			string(task.Status)+" → executing")
	}

	task.Status = domain.TaskExecuting
	task.StartedAt = time.Now()
	s.tasks[taskID] = task
	return task, nil
}

// MarkCompleted transitions executing → completed with the handler's
// result. Terminal: no further transition is accepted.
func (s *Store) MarkCompleted(taskID string, result []byte) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, domain.NewDomainError("Store.MarkCompleted", domain.ErrNotFound, "task '"+taskID+"'")
	}
	if task.Status != domain.TaskExecuting {
		return domain.Task{}, domain.NewDomainError("Store.MarkCompleted", domain.ErrInvalidTransition,
			string(task.Status)+" → completed")
	}

	task.Status = domain.TaskCompleted
	task.Result = result
	task.CompletedAt = time.Now()
	s.tasks[taskID] = task
	return task, nil
}

// MarkFailed transitions a non-terminal task to failed with the error
// message. Failed tasks are never requeued; resubmission under a new id
// is the only recovery path.
func (s *Store) MarkFailed(taskID, errMsg string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, domain.NewDomainError("Store.MarkFailed", domain.ErrNotFound, "task '"+taskID+"'")
	}
	if task.Status.Terminal() {
		return domain.Task{}, domain.NewDomainError("Store.MarkFailed", domain.ErrInvalidTransition,
			string(task.Status)+" → failed")
	}

	task.Status = domain.TaskFailed
	task.Error = errMsg
	task.CompletedAt = time.Now()
	s.tasks[taskID] = task
	s.dropPending(taskID)
	return task, nil
}

// Len returns the number of stored tasks, terminal ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Reset removes every task. Used on shutdown.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]domain.Task)
	s.pending = nil
}

// dropPending removes one id from the pending order. Caller holds mu.
func (s *Store) dropPending(taskID string) {
	for i, id := range s.pending {
		if id == taskID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}
