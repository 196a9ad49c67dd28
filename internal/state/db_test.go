package state

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lexflow/lexflow/pkg/models"
)

// testDB opens a migrated database in a temp directory.
func testDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "lexflow.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// Running migrations again must be a no-op.
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestTaskCRUD(t *testing.T) {
	db := testDB(t)

	task := &models.Task{
		ID:        "task-1",
		PlanID:    "plan-1",
		MatterID:  "matter-1",
		AgentType: models.AgentResearch,
		Status:    models.TaskStatusPending,
		Input:     json.RawMessage(`{"request":"statute of limitations"}`),
		CreatedAt: time.Now(),
	}

	if err := db.CreateTask(task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	got, err := db.GetTask("task-1")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if got.Status != models.TaskStatusPending {
		t.Errorf("expected status pending, got %s", got.Status)
	}
	if got.AgentType != models.AgentResearch {
		t.Errorf("expected agent type research, got %s", got.AgentType)
	}
	if got.Output != nil {
		t.Errorf("expected nil output on a fresh task, got %s", got.Output)
	}

	started := time.Now()
	got.Status = models.TaskStatusRunning
	got.StartedAt = &started
	got.Progress = 40
	got.CurrentStep = "searching case law"
	if err := db.UpdateTask(got); err != nil {
		t.Fatalf("failed to update task: %v", err)
	}

	got, err = db.GetTask("task-1")
	if err != nil {
		t.Fatalf("failed to re-get task: %v", err)
	}
	if got.Status != models.TaskStatusRunning {
		t.Errorf("expected status running, got %s", got.Status)
	}
	if got.Progress != 40 {
		t.Errorf("expected progress 40, got %d", got.Progress)
	}
	if got.StartedAt == nil {
		t.Error("expected started_at to be set")
	}
	if got.CurrentStep != "searching case law" {
		t.Errorf("unexpected current step %q", got.CurrentStep)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	db := testDB(t)

	_, err := db.GetTask("missing")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}

	err = db.UpdateTask(&models.Task{ID: "missing", Status: models.TaskStatusRunning})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound on update, got %v", err)
	}
}

func TestListTasksByPlan(t *testing.T) {
	db := testDB(t)

	for i, at := range []models.AgentType{models.AgentResearch, models.AgentBriefWriting} {
		task := &models.Task{
			ID:        "task-" + string(at),
			PlanID:    "plan-1",
			AgentType: at,
			Status:    models.TaskStatusPending,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := db.CreateTask(task); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}
	}

	tasks, err := db.ListTasksByPlan("plan-1")
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].AgentType != models.AgentResearch {
		t.Errorf("expected oldest task first, got %s", tasks[0].AgentType)
	}
}

func TestListTasksByMatterGeneralScope(t *testing.T) {
	db := testDB(t)

	scoped := &models.Task{
		ID: "scoped", MatterID: "matter-1",
		AgentType: models.AgentResearch,
		Status:    models.TaskStatusPending, CreatedAt: time.Now(),
	}
	general := &models.Task{
		ID:        "general",
		AgentType: models.AgentResearch,
		Status:    models.TaskStatusPending, CreatedAt: time.Now(),
	}
	for _, task := range []*models.Task{scoped, general} {
		if err := db.CreateTask(task); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}
	}

	tasks, err := db.ListTasksByMatter("")
	if err != nil {
		t.Fatalf("failed to list general tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "general" {
		t.Errorf("expected only the general-scope task, got %v", tasks)
	}
}

func TestPlanCRUD(t *testing.T) {
	db := testDB(t)

	plan := &models.Plan{
		ID:       "plan-1",
		MatterID: "matter-1",
		Request:  "draft a memo about indemnification",
		Nodes: []models.PlanNode{
			{AgentType: models.AgentResearch, EstimatedSeconds: 30},
			{AgentType: models.AgentBriefWriting, DependsOn: []models.AgentType{models.AgentResearch}, EstimatedSeconds: 60},
		},
		EstimatedSeconds: 90,
		Status:           models.PlanStatusPlanned,
		CreatedAt:        time.Now(),
	}

	if err := db.CreatePlan(plan); err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}

	got, err := db.GetPlan("plan-1")
	if err != nil {
		t.Fatalf("failed to get plan: %v", err)
	}
	if len(got.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(got.Nodes))
	}
	if got.Nodes[1].DependsOn[0] != models.AgentResearch {
		t.Errorf("expected brief_writing to depend on research")
	}

	if err := db.UpdatePlanStatus("plan-1", models.PlanStatusExecuting); err != nil {
		t.Fatalf("failed to update plan status: %v", err)
	}
	got, _ = db.GetPlan("plan-1")
	if got.Status != models.PlanStatusExecuting {
		t.Errorf("expected status executing, got %s", got.Status)
	}

	if err := db.UpdatePlanStatus("missing", models.PlanStatusFailed); !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestCacheEntryRoundTrip(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	entry := &models.CacheEntry{
		ID:          "entry-1",
		MatterID:    "matter-1",
		AgentType:   models.AgentResearch,
		ResultType:  "research",
		ContentHash: "abc123",
		Result:      json.RawMessage(`{"answer":"four years"}`),
		Confidence:  0.9,
		Query:       "statute of limitations breach of contract",
		CreatedAt:   now,
		ExpiresAt:   now.Add(24 * time.Hour),
	}
	if err := db.InsertCacheEntry(entry); err != nil {
		t.Fatalf("failed to insert cache entry: %v", err)
	}

	got, err := db.FindCacheEntry("abc123", "matter-1", now)
	if err != nil {
		t.Fatalf("failed to find cache entry: %v", err)
	}
	if got.Query != entry.Query {
		t.Errorf("unexpected query %q", got.Query)
	}

	// Global lookup from another matter still sees nothing (entry is scoped).
	if _, err := db.FindCacheEntry("abc123", "matter-2", now); !errors.Is(err, ErrCacheEntryNotFound) {
		t.Errorf("expected not found for other matter, got %v", err)
	}

	// Expired entries are not served even before a sweep runs.
	if _, err := db.FindCacheEntry("abc123", "matter-1", now.Add(25*time.Hour)); !errors.Is(err, ErrCacheEntryNotFound) {
		t.Errorf("expected not found after expiry, got %v", err)
	}
}

func TestCacheGlobalScopeVisibleToMatters(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	entry := &models.CacheEntry{
		ID:          "entry-global",
		AgentType:   models.AgentResearch,
		ResultType:  "research",
		ContentHash: "hash-g",
		Result:      json.RawMessage(`{}`),
		Query:       "general question",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
	if err := db.InsertCacheEntry(entry); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	got, err := db.FindCacheEntry("hash-g", "matter-1", now)
	if err != nil {
		t.Fatalf("expected global entry visible to matter lookup: %v", err)
	}
	if got.ID != "entry-global" {
		t.Errorf("unexpected entry %s", got.ID)
	}
}

func TestCacheNewestEntryWins(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	for i, id := range []string{"old", "new"} {
		entry := &models.CacheEntry{
			ID:          id,
			AgentType:   models.AgentResearch,
			ResultType:  "research",
			ContentHash: "same-hash",
			Result:      json.RawMessage(`{}`),
			Query:       "q",
			CreatedAt:   now.Add(time.Duration(i) * time.Minute),
			ExpiresAt:   now.Add(time.Hour),
		}
		if err := db.InsertCacheEntry(entry); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
	}

	got, err := db.FindCacheEntry("same-hash", "", now)
	if err != nil {
		t.Fatalf("failed to find: %v", err)
	}
	if got.ID != "new" {
		t.Errorf("expected newest entry, got %s", got.ID)
	}
}

func TestTouchCacheEntry(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	entry := &models.CacheEntry{
		ID: "entry-1", AgentType: models.AgentResearch, ResultType: "research",
		ContentHash: "h", Result: json.RawMessage(`{}`), Query: "q",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if err := db.InsertCacheEntry(entry); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	if err := db.TouchCacheEntry("entry-1", now); err != nil {
		t.Fatalf("failed to touch: %v", err)
	}
	got, err := db.FindCacheEntry("h", "", now)
	if err != nil {
		t.Fatalf("failed to find: %v", err)
	}
	if got.UsageCount != 1 {
		t.Errorf("expected usage count 1, got %d", got.UsageCount)
	}
	if got.LastUsedAt == nil {
		t.Error("expected last_used_at to be set")
	}
}

func TestDeleteExpiredCacheEntries(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	entries := []*models.CacheEntry{
		{ID: "live", ContentHash: "a", ExpiresAt: now.Add(time.Hour)},
		{ID: "expired-1", ContentHash: "b", ExpiresAt: now.Add(-time.Hour)},
		{ID: "expired-2", MatterID: "matter-1", ContentHash: "c", ExpiresAt: now.Add(-time.Minute)},
	}
	for _, e := range entries {
		e.AgentType = models.AgentResearch
		e.ResultType = "research"
		e.Result = json.RawMessage(`{}`)
		e.Query = "q"
		e.CreatedAt = now.Add(-2 * time.Hour)
		if err := db.InsertCacheEntry(e); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
	}

	// Scoped sweep only removes the matter's expired entries.
	count, err := db.DeleteExpiredCacheEntries("matter-1", now)
	if err != nil {
		t.Fatalf("scoped sweep failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 deleted, got %d", count)
	}

	// Global sweep removes the rest.
	count, err = db.DeleteExpiredCacheEntries("", now)
	if err != nil {
		t.Fatalf("global sweep failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 deleted, got %d", count)
	}

	total, expired, err := db.CountCacheEntries(now)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if total != 1 || expired != 0 {
		t.Errorf("expected 1 live entry, got total=%d expired=%d", total, expired)
	}
}
