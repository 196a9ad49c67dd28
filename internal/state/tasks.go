package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lexflow/lexflow/pkg/models"
)

// ErrTaskNotFound indicates the requested task does not exist.
var ErrTaskNotFound = errors.New("task not found")

// CreateTask inserts a new task record.
func (db *DB) CreateTask(t *models.Task) error {
	_, err := db.Exec(`
		INSERT INTO tasks (id, plan_id, matter_id, agent_type, status, input,
			output, progress, current_step, error, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		nullableString(t.PlanID),
		nullableString(t.MatterID),
		string(t.AgentType),
		string(t.Status),
		nullableRaw(t.Input),
		nullableRaw(t.Output),
		t.Progress,
		nullableString(t.CurrentStep),
		nullableString(t.Error),
		formatTime(t.CreatedAt),
		nullableTimeArg(t.StartedAt),
		nullableTimeArg(t.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns ErrTaskNotFound if absent.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, plan_id, matter_id, agent_type, status, input, output,
			progress, current_step, error, created_at, started_at, completed_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// UpdateTask persists every mutable field of a task record.
func (db *DB) UpdateTask(t *models.Task) error {
	result, err := db.Exec(`
		UPDATE tasks
		SET status = ?, output = ?, progress = ?, current_step = ?, error = ?,
			started_at = ?, completed_at = ?
		WHERE id = ?
	`,
		string(t.Status),
		nullableRaw(t.Output),
		t.Progress,
		nullableString(t.CurrentStep),
		nullableString(t.Error),
		nullableTimeArg(t.StartedAt),
		nullableTimeArg(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ListTasksByPlan returns every task belonging to a plan, oldest first.
func (db *DB) ListTasksByPlan(planID string) ([]models.Task, error) {
	return db.listTasks(`
		SELECT id, plan_id, matter_id, agent_type, status, input, output,
			progress, current_step, error, created_at, started_at, completed_at
		FROM tasks WHERE plan_id = ? ORDER BY created_at ASC
	`, planID)
}

// ListTasksByMatter returns every task in a matter, newest first.
// An empty matter ID selects tasks in the general scope.
func (db *DB) ListTasksByMatter(matterID string) ([]models.Task, error) {
	if matterID == "" {
		return db.listTasks(`
			SELECT id, plan_id, matter_id, agent_type, status, input, output,
				progress, current_step, error, created_at, started_at, completed_at
			FROM tasks WHERE matter_id IS NULL ORDER BY created_at DESC
		`)
	}
	return db.listTasks(`
		SELECT id, plan_id, matter_id, agent_type, status, input, output,
			progress, current_step, error, created_at, started_at, completed_at
		FROM tasks WHERE matter_id = ? ORDER BY created_at DESC
	`, matterID)
}

func (db *DB) listTasks(query string, args ...any) ([]models.Task, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var planID, matterID, input, output, step, errMsg sql.NullString
	var createdAt string
	var startedAt, completedAt sql.NullString
	var agentType, status string

	err := row.Scan(&t.ID, &planID, &matterID, &agentType, &status, &input,
		&output, &t.Progress, &step, &errMsg, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.PlanID = planID.String
	t.MatterID = matterID.String
	t.AgentType = models.AgentType(agentType)
	t.Status = models.TaskStatus(status)
	if input.Valid {
		t.Input = json.RawMessage(input.String)
	}
	if output.Valid {
		t.Output = json.RawMessage(output.String)
	}
	t.CurrentStep = step.String
	t.Error = errMsg.String

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	t.CreatedAt = created
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)

	return &t, nil
}

// nullableString converts an empty string to NULL for storage.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableRaw converts an empty JSON payload to NULL for storage.
func nullableRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
