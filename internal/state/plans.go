package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lexflow/lexflow/pkg/models"
)

// ErrPlanNotFound indicates the requested plan does not exist.
var ErrPlanNotFound = errors.New("plan not found")

// CreatePlan inserts a new plan record. Nodes are stored as JSON.
func (db *DB) CreatePlan(p *models.Plan) error {
	nodes, err := json.Marshal(p.Nodes)
	if err != nil {
		return fmt.Errorf("marshal plan nodes: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO plans (id, matter_id, request, nodes, estimated_seconds, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		nullableString(p.MatterID),
		p.Request,
		string(nodes),
		p.EstimatedSeconds,
		string(p.Status),
		formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a plan by ID. Returns ErrPlanNotFound if absent.
func (db *DB) GetPlan(id string) (*models.Plan, error) {
	row := db.QueryRow(`
		SELECT id, matter_id, request, nodes, estimated_seconds, status, created_at
		FROM plans WHERE id = ?
	`, id)

	var p models.Plan
	var matterID sql.NullString
	var nodes, status, createdAt string

	err := row.Scan(&p.ID, &matterID, &p.Request, &nodes, &p.EstimatedSeconds, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", id, err)
	}

	p.MatterID = matterID.String
	p.Status = models.PlanStatus(status)
	if err := json.Unmarshal([]byte(nodes), &p.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal plan nodes: %w", err)
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	p.CreatedAt = created

	return &p, nil
}

// UpdatePlanStatus persists a plan status change. Status is the only
// field that mutates after creation.
func (db *DB) UpdatePlanStatus(id string, status models.PlanStatus) error {
	result, err := db.Exec(`UPDATE plans SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update plan %s status: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// ListPlansByMatter returns plans for a matter, newest first.
// An empty matter ID selects plans in the general scope.
func (db *DB) ListPlansByMatter(matterID string) ([]models.Plan, error) {
	var rows *sql.Rows
	var err error
	if matterID == "" {
		rows, err = db.Query(`
			SELECT id, matter_id, request, nodes, estimated_seconds, status, created_at
			FROM plans WHERE matter_id IS NULL ORDER BY created_at DESC
		`)
	} else {
		rows, err = db.Query(`
			SELECT id, matter_id, request, nodes, estimated_seconds, status, created_at
			FROM plans WHERE matter_id = ? ORDER BY created_at DESC
		`, matterID)
	}
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var p models.Plan
		var matter sql.NullString
		var nodes, status, createdAt string

		if err := rows.Scan(&p.ID, &matter, &p.Request, &nodes, &p.EstimatedSeconds, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}

		p.MatterID = matter.String
		p.Status = models.PlanStatus(status)
		if err := json.Unmarshal([]byte(nodes), &p.Nodes); err != nil {
			return nil, fmt.Errorf("unmarshal plan nodes: %w", err)
		}
		created, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		p.CreatedAt = created

		plans = append(plans, p)
	}
	return plans, rows.Err()
}
