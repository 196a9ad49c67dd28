package models

import (
	"encoding/json"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been created but not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task's capability is executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the owning plan was cancelled before
	// or while the task ran.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no transition may leave this status.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a task may move from s to next.
// The allowed edges are pending→running, running→completed|failed,
// and pending|running→cancelled. Terminal states absorb.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case TaskStatusPending:
		return next == TaskStatusRunning || next == TaskStatusCancelled
	case TaskStatusRunning:
		return next == TaskStatusCompleted || next == TaskStatusFailed ||
			next == TaskStatusCancelled
	default:
		return false
	}
}

// Task is the persisted execution record for one plan node.
// It is the single source of truth for "is this job done yet."
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// PlanID is the ID of the plan this task belongs to.
	PlanID string `json:"plan_id,omitempty"`
	// MatterID is the owning matter, empty for the general scope.
	MatterID string `json:"matter_id,omitempty"`
	// AgentType is the capability this task invokes.
	AgentType AgentType `json:"agent_type"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Input is the opaque input payload handed to the capability.
	Input json.RawMessage `json:"input,omitempty"`
	// Output is the capability result, nil until the task is terminal.
	Output json.RawMessage `json:"output,omitempty"`
	// Progress is the completion percentage in [0,100].
	Progress int `json:"progress"`
	// CurrentStep is a human-readable label for the step in flight.
	CurrentStep string `json:"current_step,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task record was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the task transitioned to running.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
