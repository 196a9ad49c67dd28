// Package queue implements the authoritative task queue. Every task
// record lives in the state store; all status writes are funneled through
// UpdateStatus so observers always see internally-consistent records.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexflow/lexflow/internal/state"
	"github.com/lexflow/lexflow/pkg/models"
)

// ErrInvalidTransition indicates a status change that the task state
// machine does not allow.
var ErrInvalidTransition = errors.New("invalid task status transition")

// ErrWaitTimeout indicates a wait on a task expired before the task
// reached a terminal state.
var ErrWaitTimeout = errors.New("timed out waiting for task")

// subscriberBuffer is the per-subscriber channel capacity. When a slow
// subscriber falls behind, the oldest snapshot is dropped; readers are
// tolerant of transient staleness and only the latest state matters.
const subscriberBuffer = 64

// Queue is the single write path for task records. It enforces the task
// state machine and notifies subscribers on every write, so waiters are
// woken on state change instead of sampling.
type Queue struct {
	store state.TaskStore

	mu       sync.Mutex
	subs     map[string][]chan models.Task
	planSubs map[string][]chan models.Task
}

// New creates a queue backed by the given task store.
func New(store state.TaskStore) *Queue {
	return &Queue{
		store:    store,
		subs:     make(map[string][]chan models.Task),
		planSubs: make(map[string][]chan models.Task),
	}
}

// Create inserts a new pending task and returns it. The caller provides
// plan/matter identity, agent type, and input; the queue assigns the ID
// and timestamps.
func (q *Queue) Create(planID, matterID string, agentType models.AgentType, input json.RawMessage) (*models.Task, error) {
	if !agentType.Valid() {
		return nil, fmt.Errorf("create task: unknown agent type %q", agentType)
	}

	task := &models.Task{
		ID:        uuid.New().String(),
		PlanID:    planID,
		MatterID:  matterID,
		AgentType: agentType,
		Status:    models.TaskStatusPending,
		Input:     input,
		CreatedAt: time.Now(),
	}
	if err := q.store.CreateTask(task); err != nil {
		return nil, err
	}

	q.publish(*task)
	return task, nil
}

// Get returns the current task record.
func (q *Queue) Get(id string) (*models.Task, error) {
	return q.store.GetTask(id)
}

// ListByPlan returns every task belonging to a plan, oldest first.
func (q *Queue) ListByPlan(planID string) ([]models.Task, error) {
	return q.store.ListTasksByPlan(planID)
}

// ListByMatter returns every task in a matter, newest first.
func (q *Queue) ListByMatter(matterID string) ([]models.Task, error) {
	return q.store.ListTasksByMatter(matterID)
}

// StatusUpdate carries the terminal fields for a status transition.
type StatusUpdate struct {
	// Output is the capability result; required for completed.
	Output json.RawMessage
	// Error is the failure message; required for failed.
	Error string
}

// UpdateStatus transitions a task to the next status, persisting the
// associated fields atomically with the status so observers never see a
// completed task without output or output without a terminal status.
func (q *Queue) UpdateStatus(id string, next models.TaskStatus, upd StatusUpdate) (*models.Task, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("update task %s: unknown status %q", id, next)
	}

	task, err := q.store.GetTask(id)
	if err != nil {
		return nil, err
	}

	if !task.Status.CanTransition(next) {
		return nil, fmt.Errorf("update task %s: %s -> %s: %w", id, task.Status, next, ErrInvalidTransition)
	}

	now := time.Now()
	switch next {
	case models.TaskStatusRunning:
		task.StartedAt = &now
	case models.TaskStatusCompleted:
		if len(upd.Output) == 0 {
			return nil, fmt.Errorf("update task %s: completed requires an output payload", id)
		}
		task.Output = upd.Output
		task.Progress = 100
		task.CompletedAt = &now
	case models.TaskStatusFailed:
		if upd.Error == "" {
			return nil, fmt.Errorf("update task %s: failed requires an error message", id)
		}
		// Progress stays at whatever was reached.
		task.Error = upd.Error
		task.CompletedAt = &now
	case models.TaskStatusCancelled:
		task.CompletedAt = &now
	}
	task.Status = next

	if err := q.store.UpdateTask(task); err != nil {
		return nil, err
	}

	q.publish(*task)
	return task, nil
}

// UpdateProgress records progress and the current step label for a
// running task. Progress may be written multiple times and is clamped to
// [0,100]; regressions are tolerated rather than rejected.
func (q *Queue) UpdateProgress(id string, progress int, step string) (*models.Task, error) {
	task, err := q.store.GetTask(id)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		// Late progress callbacks after completion are ignored.
		return task, nil
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	task.Progress = progress
	task.CurrentStep = step

	if err := q.store.UpdateTask(task); err != nil {
		return nil, err
	}

	q.publish(*task)
	return task, nil
}

// Subscribe returns a channel of task snapshots for the given task and a
// cancel function. The current snapshot (if the task exists) is delivered
// immediately; the channel is closed after a terminal snapshot.
func (q *Queue) Subscribe(taskID string) (<-chan models.Task, func()) {
	ch := make(chan models.Task, subscriberBuffer)

	q.mu.Lock()
	q.subs[taskID] = append(q.subs[taskID], ch)
	q.mu.Unlock()

	cancel := func() { q.unsubscribe(taskID, ch) }

	// Seed with the current state so a subscriber arriving after the
	// last write still observes it.
	if task, err := q.store.GetTask(taskID); err == nil {
		q.mu.Lock()
		if q.isSubscribed(taskID, ch) {
			sendSnapshot(ch, *task)
			if task.Status.Terminal() {
				q.removeLocked(taskID, ch)
				close(ch)
			}
		}
		q.mu.Unlock()
	}

	return ch, cancel
}

// SubscribePlan returns a channel receiving every snapshot of every
// task in a plan, and a cancel function. Unlike a task subscription the
// channel is never closed by the queue, since a plan grows new tasks
// over time; the caller decides when it has seen enough.
func (q *Queue) SubscribePlan(planID string) (<-chan models.Task, func()) {
	ch := make(chan models.Task, subscriberBuffer)

	q.mu.Lock()
	q.planSubs[planID] = append(q.planSubs[planID], ch)
	q.mu.Unlock()

	cancel := func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		subs := q.planSubs[planID]
		for i, c := range subs {
			if c == ch {
				q.planSubs[planID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(q.planSubs[planID]) == 0 {
			delete(q.planSubs, planID)
		}
	}
	return ch, cancel
}

// AwaitTerminal blocks until the task reaches a terminal state, the
// context is cancelled, or the timeout expires. A timeout of zero means
// wait indefinitely.
func (q *Queue) AwaitTerminal(ctx context.Context, taskID string, timeout time.Duration) (*models.Task, error) {
	ch, cancel := q.Subscribe(taskID)
	defer cancel()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeoutCh:
			return nil, fmt.Errorf("task %s after %s: %w", taskID, timeout, ErrWaitTimeout)
		case task, ok := <-ch:
			if !ok {
				// Channel closed after a terminal snapshot; re-read
				// the authoritative record.
				return q.store.GetTask(taskID)
			}
			if task.Status.Terminal() {
				return &task, nil
			}
		}
	}
}

// publish fans a snapshot out to subscribers and closes channels once a
// terminal snapshot has been delivered.
func (q *Queue) publish(task models.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, ch := range q.planSubs[task.PlanID] {
		sendSnapshot(ch, task)
	}

	subs := q.subs[task.ID]
	if len(subs) == 0 {
		return
	}

	for _, ch := range subs {
		sendSnapshot(ch, task)
	}

	if task.Status.Terminal() {
		for _, ch := range subs {
			close(ch)
		}
		delete(q.subs, task.ID)
	}
}

// sendSnapshot delivers a snapshot without blocking. If the subscriber's
// buffer is full the oldest snapshot is evicted first, so the latest
// state (including the terminal one) always lands.
func sendSnapshot(ch chan models.Task, task models.Task) {
	for {
		select {
		case ch <- task:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func (q *Queue) unsubscribe(taskID string, ch chan models.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(taskID, ch)
}

func (q *Queue) isSubscribed(taskID string, ch chan models.Task) bool {
	for _, c := range q.subs[taskID] {
		if c == ch {
			return true
		}
	}
	return false
}

// removeLocked detaches a subscriber channel. Caller must hold q.mu.
func (q *Queue) removeLocked(taskID string, ch chan models.Task) {
	subs := q.subs[taskID]
	for i, c := range subs {
		if c == ch {
			q.subs[taskID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(q.subs[taskID]) == 0 {
		delete(q.subs, taskID)
	}
}
