package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lexflow/lexflow/internal/cache"
	"github.com/lexflow/lexflow/internal/capability"
	"github.com/lexflow/lexflow/internal/queue"
	"github.com/lexflow/lexflow/internal/state"
	"github.com/lexflow/lexflow/pkg/models"
)

// fakeCap is a scriptable capability for engine tests.
type fakeCap struct {
	agentType models.AgentType
	execute   func(ctx context.Context, in capability.Input, progress capability.ProgressFunc) (capability.Output, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeCap) Type() models.AgentType { return f.agentType }

func (f *fakeCap) Meta() capability.Metadata { return capability.Metadata{BaseSeconds: 1} }

func (f *fakeCap) EstimateDuration(capability.Input) time.Duration { return time.Second }

func (f *fakeCap) Execute(ctx context.Context, in capability.Input, progress capability.ProgressFunc) (capability.Output, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.execute != nil {
		return f.execute(ctx, in, progress)
	}
	return capability.Output{Success: true, Result: "done: " + in.Request}, nil
}

func (f *fakeCap) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeResolver maps agent types to fake capabilities.
type fakeResolver map[models.AgentType]capability.Capability

func (r fakeResolver) ForType(t models.AgentType) (capability.Capability, error) {
	cap, ok := r[t]
	if !ok {
		return nil, fmt.Errorf("unknown agent type %q", t)
	}
	return cap, nil
}

type harness struct {
	db    *state.DB
	queue *queue.Queue
	cache *cache.Cache
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return &harness{db: db, queue: queue.New(db), cache: cache.New(db)}
}

func (h *harness) engine(t *testing.T, caps fakeResolver, opts ...Option) *Engine {
	t.Helper()
	return New(h.queue, h.db, h.cache, caps, NewArena(), opts...)
}

func (h *harness) createPlan(t *testing.T, matterID, request string, nodes []models.PlanNode) *models.Plan {
	t.Helper()
	plan := &models.Plan{
		ID:        uuid.NewString(),
		MatterID:  matterID,
		Request:   request,
		Nodes:     nodes,
		Status:    models.PlanStatusPlanned,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.db.CreatePlan(plan); err != nil {
		t.Fatalf("failed to persist plan: %v", err)
	}
	return plan
}

func TestRunSingleNode(t *testing.T) {
	h := newHarness(t)
	research := &fakeCap{agentType: models.AgentResearch}
	eng := h.engine(t, fakeResolver{models.AgentResearch: research})

	plan := h.createPlan(t, "matter-1", "research the statute of limitations", []models.PlanNode{
		{AgentType: models.AgentResearch},
	})

	outputs, err := eng.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	out, ok := outputs[models.AgentResearch]
	if !ok {
		t.Fatal("expected a research output")
	}
	if !out.Success || out.Result == "" {
		t.Errorf("unexpected output %+v", out)
	}
	if out.Cached {
		t.Error("first run should not be served from cache")
	}

	stored, err := h.db.GetPlan(plan.ID)
	if err != nil {
		t.Fatalf("failed to reload plan: %v", err)
	}
	if stored.Status != models.PlanStatusCompleted {
		t.Errorf("plan status %s, want completed", stored.Status)
	}

	tasks, err := h.queue.ListByPlan(plan.ID)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Status != models.TaskStatusCompleted {
		t.Errorf("task status %s, want completed", tasks[0].Status)
	}
	if len(tasks[0].Output) == 0 {
		t.Error("completed task should carry an output payload")
	}
	if tasks[0].Progress != 100 {
		t.Errorf("completed task progress %d, want 100", tasks[0].Progress)
	}
}

func TestRunDependentWaitsForDependency(t *testing.T) {
	h := newHarness(t)

	var (
		mu    sync.Mutex
		order []models.AgentType
	)
	record := func(t models.AgentType) {
		mu.Lock()
		order = append(order, t)
		mu.Unlock()
	}

	research := &fakeCap{agentType: models.AgentResearch, execute: func(ctx context.Context, in capability.Input, _ capability.ProgressFunc) (capability.Output, error) {
		time.Sleep(20 * time.Millisecond)
		record(models.AgentResearch)
		return capability.Output{Success: true, Result: "the law says X"}, nil
	}}

	var writingInput capability.Input
	writing := &fakeCap{agentType: models.AgentBriefWriting, execute: func(ctx context.Context, in capability.Input, _ capability.ProgressFunc) (capability.Output, error) {
		record(models.AgentBriefWriting)
		writingInput = in
		return capability.Output{Success: true, Result: "MEMORANDUM"}, nil
	}}

	eng := h.engine(t, fakeResolver{
		models.AgentResearch:     research,
		models.AgentBriefWriting: writing,
	})

	plan := h.createPlan(t, "matter-1", "draft a memo about X", []models.PlanNode{
		{AgentType: models.AgentResearch},
		{AgentType: models.AgentBriefWriting, DependsOn: []models.AgentType{models.AgentResearch}},
	})

	outputs, err := eng.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}

	if len(order) != 2 || order[0] != models.AgentResearch || order[1] != models.AgentBriefWriting {
		t.Errorf("expected research before brief_writing, got %v", order)
	}

	payload, ok := writingInput.Context[string(models.AgentResearch)]
	if !ok {
		t.Fatal("brief_writing input should carry the research output")
	}
	var researchOut capability.Output
	if err := json.Unmarshal(payload, &researchOut); err != nil {
		t.Fatalf("failed to decode dependency payload: %v", err)
	}
	if researchOut.Result != "the law says X" {
		t.Errorf("unexpected dependency result %q", researchOut.Result)
	}

	// The drafting task must not have started before research completed.
	tasks, _ := h.queue.ListByPlan(plan.ID)
	var researchTask, writingTask *models.Task
	for i := range tasks {
		switch tasks[i].AgentType {
		case models.AgentResearch:
			researchTask = &tasks[i]
		case models.AgentBriefWriting:
			writingTask = &tasks[i]
		}
	}
	if researchTask == nil || writingTask == nil {
		t.Fatalf("expected both tasks, got %+v", tasks)
	}
	if writingTask.StartedAt.Before(*researchTask.CompletedAt) {
		t.Errorf("brief_writing started %s before research completed %s",
			writingTask.StartedAt, researchTask.CompletedAt)
	}
}

func TestRunServesRepeatFromCache(t *testing.T) {
	h := newHarness(t)
	research := &fakeCap{agentType: models.AgentResearch}
	eng := h.engine(t, fakeResolver{models.AgentResearch: research})

	nodes := []models.PlanNode{{AgentType: models.AgentResearch}}
	first := h.createPlan(t, "matter-1", "research adverse possession", nodes)
	if _, err := eng.Run(context.Background(), first); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if research.callCount() != 1 {
		t.Fatalf("expected 1 capability call, got %d", research.callCount())
	}

	second := h.createPlan(t, "matter-1", "research adverse possession", nodes)
	outputs, err := eng.Run(context.Background(), second)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if research.callCount() != 1 {
		t.Errorf("repeat request should not invoke the capability, got %d calls", research.callCount())
	}
	out := outputs[models.AgentResearch]
	if !out.Cached {
		t.Error("repeat output should be flagged as cached")
	}
	if !out.Success || out.Result == "" {
		t.Errorf("cached output should carry the original result, got %+v", out)
	}

	// The repeat still gets its own completed task record.
	tasks, _ := h.queue.ListByPlan(second.ID)
	if len(tasks) != 1 || tasks[0].Status != models.TaskStatusCompleted {
		t.Errorf("expected one completed task for the cached run, got %+v", tasks)
	}
}

func TestRunCacheScopedByMatter(t *testing.T) {
	h := newHarness(t)
	research := &fakeCap{agentType: models.AgentResearch}
	eng := h.engine(t, fakeResolver{models.AgentResearch: research})

	nodes := []models.PlanNode{{AgentType: models.AgentResearch}}
	first := h.createPlan(t, "matter-1", "research spoliation sanctions", nodes)
	if _, err := eng.Run(context.Background(), first); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	other := h.createPlan(t, "matter-2", "research spoliation sanctions", nodes)
	if _, err := eng.Run(context.Background(), other); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if research.callCount() != 2 {
		t.Errorf("a different matter must not see another matter's cache, got %d calls", research.callCount())
	}
}

func TestRunNodeFailureAbortsPlan(t *testing.T) {
	h := newHarness(t)
	research := &fakeCap{agentType: models.AgentResearch, execute: func(context.Context, capability.Input, capability.ProgressFunc) (capability.Output, error) {
		return capability.Output{}, errors.New("westlaw is down")
	}}
	writing := &fakeCap{agentType: models.AgentBriefWriting}
	eng := h.engine(t, fakeResolver{
		models.AgentResearch:     research,
		models.AgentBriefWriting: writing,
	})

	plan := h.createPlan(t, "matter-1", "draft a memo about X", []models.PlanNode{
		{AgentType: models.AgentResearch},
		{AgentType: models.AgentBriefWriting, DependsOn: []models.AgentType{models.AgentResearch}},
	})

	_, err := eng.Run(context.Background(), plan)
	if !errors.Is(err, ErrNodeFailed) {
		t.Fatalf("expected ErrNodeFailed, got %v", err)
	}

	stored, _ := h.db.GetPlan(plan.ID)
	if stored.Status != models.PlanStatusFailed {
		t.Errorf("plan status %s, want failed", stored.Status)
	}

	tasks, _ := h.queue.ListByPlan(plan.ID)
	if len(tasks) != 1 {
		t.Fatalf("downstream task must never be created, got %d tasks", len(tasks))
	}
	if tasks[0].Status != models.TaskStatusFailed {
		t.Errorf("task status %s, want failed", tasks[0].Status)
	}
	if !strings.Contains(tasks[0].Error, "westlaw is down") {
		t.Errorf("task error %q should carry the capability's message", tasks[0].Error)
	}
	if writing.callCount() != 0 {
		t.Error("dependent capability must not be invoked after a dependency failure")
	}
}

func TestRunFailureIsNotCached(t *testing.T) {
	h := newHarness(t)
	calls := 0
	research := &fakeCap{agentType: models.AgentResearch, execute: func(context.Context, capability.Input, capability.ProgressFunc) (capability.Output, error) {
		calls++
		if calls == 1 {
			return capability.Output{}, errors.New("transient failure")
		}
		return capability.Output{Success: true, Result: "recovered"}, nil
	}}
	eng := h.engine(t, fakeResolver{models.AgentResearch: research})

	nodes := []models.PlanNode{{AgentType: models.AgentResearch}}
	first := h.createPlan(t, "m", "research indemnification", nodes)
	if _, err := eng.Run(context.Background(), first); err == nil {
		t.Fatal("expected first run to fail")
	}

	second := h.createPlan(t, "m", "research indemnification", nodes)
	outputs, err := eng.Run(context.Background(), second)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if outputs[models.AgentResearch].Cached {
		t.Error("a failed run must not populate the cache")
	}
	if calls != 2 {
		t.Errorf("expected the capability to run again after a failure, got %d calls", calls)
	}
}

func TestRunCancellation(t *testing.T) {
	h := newHarness(t)

	started := make(chan struct{})
	research := &fakeCap{agentType: models.AgentResearch, execute: func(ctx context.Context, _ capability.Input, _ capability.ProgressFunc) (capability.Output, error) {
		close(started)
		<-ctx.Done()
		return capability.Output{}, ctx.Err()
	}}
	eng := h.engine(t, fakeResolver{models.AgentResearch: research})

	plan := h.createPlan(t, "matter-1", "research something slow", []models.PlanNode{
		{AgentType: models.AgentResearch},
	})

	done := make(chan error, 1)
	go func() {
		_, err := eng.Run(context.Background(), plan)
		done <- err
	}()

	<-started
	if !eng.Arena().Cancel(plan.ID) {
		t.Fatal("expected the plan to be cancellable while running")
	}

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	tasks, _ := h.queue.ListByPlan(plan.ID)
	if len(tasks) != 1 || tasks[0].Status != models.TaskStatusCancelled {
		t.Errorf("expected one cancelled task, got %+v", tasks)
	}

	stored, _ := h.db.GetPlan(plan.ID)
	if stored.Status != models.PlanStatusFailed {
		t.Errorf("cancelled plan status %s, want failed", stored.Status)
	}
}

func TestRunIndependentNodesConcurrently(t *testing.T) {
	h := newHarness(t)

	gate := make(chan struct{})
	blocking := func(ctx context.Context, _ capability.Input, _ capability.ProgressFunc) (capability.Output, error) {
		// Both nodes must be in flight at once for the gate to open.
		select {
		case gate <- struct{}{}:
		case <-gate:
		case <-time.After(2 * time.Second):
			return capability.Output{}, errors.New("peer node never started")
		}
		return capability.Output{Success: true, Result: "ok"}, nil
	}

	eng := h.engine(t, fakeResolver{
		models.AgentDiscovery: &fakeCap{agentType: models.AgentDiscovery, execute: blocking},
		models.AgentTimeline:  &fakeCap{agentType: models.AgentTimeline, execute: blocking},
	})

	plan := h.createPlan(t, "matter-1", "review the production and build a chronology", []models.PlanNode{
		{AgentType: models.AgentDiscovery},
		{AgentType: models.AgentTimeline},
	})

	if _, err := eng.Run(context.Background(), plan); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func TestRunRejectsDuplicateRun(t *testing.T) {
	h := newHarness(t)

	started := make(chan struct{})
	release := make(chan struct{})
	research := &fakeCap{agentType: models.AgentResearch, execute: func(ctx context.Context, _ capability.Input, _ capability.ProgressFunc) (capability.Output, error) {
		close(started)
		<-release
		return capability.Output{Success: true, Result: "ok"}, nil
	}}
	eng := h.engine(t, fakeResolver{models.AgentResearch: research})

	plan := h.createPlan(t, "", "research preemption", []models.PlanNode{
		{AgentType: models.AgentResearch},
	})

	done := make(chan error, 1)
	go func() {
		_, err := eng.Run(context.Background(), plan)
		done <- err
	}()
	<-started

	if _, err := eng.Run(context.Background(), plan); err == nil {
		t.Error("expected a second concurrent run of the same plan to be rejected")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
}

func TestArena(t *testing.T) {
	a := NewArena()

	if a.Cancel("missing") {
		t.Error("cancelling an unknown plan should report false")
	}

	cancelled := false
	if err := a.add("p1", func() { cancelled = true }); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := a.add("p1", func() {}); err == nil {
		t.Error("expected duplicate add to fail")
	}
	if got := a.Running(); len(got) != 1 || got[0] != "p1" {
		t.Errorf("unexpected running set %v", got)
	}

	if !a.Cancel("p1") {
		t.Error("expected cancel to find the plan")
	}
	if !cancelled {
		t.Error("cancel should invoke the handle")
	}

	a.remove("p1")
	if got := a.Running(); len(got) != 0 {
		t.Errorf("expected empty running set, got %v", got)
	}
}
