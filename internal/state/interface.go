// Package state provides SQLite-based persistence for lexflow.
package state

import (
	"io"
	"time"

	"github.com/lexflow/lexflow/pkg/models"
)

// PlanStore handles plan persistence operations.
type PlanStore interface {
	CreatePlan(p *models.Plan) error
	GetPlan(id string) (*models.Plan, error)
	UpdatePlanStatus(id string, status models.PlanStatus) error
	ListPlansByMatter(matterID string) ([]models.Plan, error)
}

// TaskStore handles task persistence operations.
type TaskStore interface {
	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	UpdateTask(t *models.Task) error
	ListTasksByPlan(planID string) ([]models.Task, error)
	ListTasksByMatter(matterID string) ([]models.Task, error)
}

// CacheStore handles cache entry persistence operations.
type CacheStore interface {
	InsertCacheEntry(e *models.CacheEntry) error
	FindCacheEntry(contentHash, matterID string, now time.Time) (*models.CacheEntry, error)
	TouchCacheEntry(id string, now time.Time) error
	ListCacheCandidates(matterID string, now time.Time) ([]models.CacheEntry, error)
	DeleteExpiredCacheEntries(matterID string, now time.Time) (int64, error)
	CountCacheEntries(now time.Time) (total, expired int64, err error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the full persistence interface. It composes focused
// sub-interfaces so components can depend on just the slice they use.
type Store interface {
	io.Closer
	Migrator
	PlanStore
	TaskStore
	CacheStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store      = (*DB)(nil)
	_ Migrator   = (*DB)(nil)
	_ PlanStore  = (*DB)(nil)
	_ TaskStore  = (*DB)(nil)
	_ CacheStore = (*DB)(nil)
)
