// Package stream implements the caller-facing progress protocol: a
// sequence of newline-delimited typed records written to an io.Writer.
// The vocabulary is fixed; transport is the caller's concern.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/lexflow/lexflow/internal/capability"
	"github.com/lexflow/lexflow/internal/queue"
	"github.com/lexflow/lexflow/pkg/models"
)

// EventType enumerates the record types of the streaming protocol.
type EventType string

const (
	// EventTaskID announces a newly created task.
	EventTaskID EventType = "taskId"
	// EventProgress carries the current progress and step label.
	EventProgress EventType = "progress"
	// EventSources carries citation records once available.
	EventSources EventType = "sources"
	// EventMessage carries an incremental response chunk.
	EventMessage EventType = "message"
	// EventMessageEnd terminates the stream.
	EventMessageEnd EventType = "messageEnd"
)

// Event is one record on the wire.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data,omitempty"`
	MessageID string    `json:"messageId"`
}

// ProgressData is the payload of a progress event.
type ProgressData struct {
	TaskID    string            `json:"taskId"`
	AgentType models.AgentType  `json:"agentType"`
	Status    models.TaskStatus `json:"status"`
	Progress  int               `json:"progress"`
	Step      string            `json:"step,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Streamer writes protocol records to a writer. It is safe for
// concurrent use; records are written whole, one per line.
type Streamer struct {
	mu        sync.Mutex
	enc       *json.Encoder
	messageID string
	ended     bool
}

// New creates a streamer with a fresh message ID.
func New(w io.Writer) *Streamer {
	return &Streamer{
		enc:       json.NewEncoder(w),
		messageID: uuid.NewString(),
	}
}

// MessageID returns the stream's message identifier.
func (s *Streamer) MessageID() string {
	return s.messageID
}

// emit writes one record. Encoder.Encode appends the newline.
func (s *Streamer) emit(t EventType, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return fmt.Errorf("stream %s already ended", s.messageID)
	}
	if t == EventMessageEnd {
		s.ended = true
	}
	return s.enc.Encode(Event{Type: t, Data: data, MessageID: s.messageID})
}

// TaskID announces a task the caller can follow.
func (s *Streamer) TaskID(taskID string) error {
	return s.emit(EventTaskID, taskID)
}

// Progress emits a progress snapshot for a task.
func (s *Streamer) Progress(data ProgressData) error {
	return s.emit(EventProgress, data)
}

// Sources emits citation records.
func (s *Streamer) Sources(citations []capability.Citation) error {
	return s.emit(EventSources, citations)
}

// Message emits an incremental response chunk.
func (s *Streamer) Message(chunk string) error {
	return s.emit(EventMessage, chunk)
}

// End terminates the stream. Further emits fail.
func (s *Streamer) End() error {
	return s.emit(EventMessageEnd, nil)
}

// FollowPlan relays snapshots of every task in a plan. Each task is
// announced with a taskId record the first time it is seen. When
// expected is positive, FollowPlan returns once that many tasks have
// reached a terminal state; on context cancellation it drains whatever
// snapshots are already buffered before returning.
func (s *Streamer) FollowPlan(ctx context.Context, q *queue.Queue, planID string, expected int) error {
	ch, cancel := q.SubscribePlan(planID)
	defer cancel()

	f := &planFollower{s: s, seen: make(map[string]ProgressData)}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case task := <-ch:
					if err := f.handle(task); err != nil {
						return err
					}
				default:
					return ctx.Err()
				}
			}
		case task := <-ch:
			if err := f.handle(task); err != nil {
				return err
			}
			if expected > 0 && f.terminal >= expected {
				return nil
			}
		}
	}
}

// planFollower tracks per-task state while relaying plan snapshots.
type planFollower struct {
	s        *Streamer
	seen     map[string]ProgressData
	terminal int
}

func (f *planFollower) handle(task models.Task) error {
	data := ProgressData{
		TaskID:    task.ID,
		AgentType: task.AgentType,
		Status:    task.Status,
		Progress:  task.Progress,
		Step:      task.CurrentStep,
		Error:     task.Error,
	}

	prev, announced := f.seen[task.ID]
	if !announced {
		if err := f.s.TaskID(task.ID); err != nil {
			return err
		}
	} else if prev == data {
		return nil
	}
	if announced && prev.Status.Terminal() {
		// Duplicate terminal snapshots are possible on reconnect.
		return nil
	}
	f.seen[task.ID] = data

	if err := f.s.Progress(data); err != nil {
		return err
	}

	if task.Status == models.TaskStatusCompleted && len(task.Output) > 0 {
		var out capability.Output
		if err := json.Unmarshal(task.Output, &out); err == nil && len(out.Citations) > 0 {
			if err := f.s.Sources(out.Citations); err != nil {
				return err
			}
		}
	}
	if task.Status.Terminal() {
		f.terminal++
	}
	return nil
}

// Follow announces a task, then relays its queue snapshots as progress
// events until the task is terminal or the context is cancelled.
// Consecutive identical snapshots are collapsed. On completion any
// citations in the task output are emitted as a sources event.
func (s *Streamer) Follow(ctx context.Context, q *queue.Queue, taskID string) error {
	if err := s.TaskID(taskID); err != nil {
		return err
	}

	ch, cancel := q.Subscribe(taskID)
	defer cancel()

	lastProgress, lastStep, lastStatus := -1, "", models.TaskStatus("")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task, ok := <-ch:
			if !ok {
				return nil
			}
			if task.Progress == lastProgress && task.CurrentStep == lastStep && task.Status == lastStatus {
				continue
			}
			lastProgress, lastStep, lastStatus = task.Progress, task.CurrentStep, task.Status

			if err := s.Progress(ProgressData{
				TaskID:    task.ID,
				AgentType: task.AgentType,
				Status:    task.Status,
				Progress:  task.Progress,
				Step:      task.CurrentStep,
				Error:     task.Error,
			}); err != nil {
				return err
			}

			if task.Status == models.TaskStatusCompleted && len(task.Output) > 0 {
				var out capability.Output
				if err := json.Unmarshal(task.Output, &out); err == nil && len(out.Citations) > 0 {
					if err := s.Sources(out.Citations); err != nil {
						return err
					}
				}
			}
			if task.Status.Terminal() {
				return nil
			}
		}
	}
}
