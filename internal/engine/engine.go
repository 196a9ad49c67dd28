// Package engine executes orchestration plans: it walks nodes in
// dependency order, blocks dependents until their dependencies complete,
// consults the result cache before invoking a capability, and records
// every outcome through the task queue. A single node failure aborts the
// whole plan; partial-plan success is deliberately not attempted.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lexflow/lexflow/internal/cache"
	"github.com/lexflow/lexflow/internal/capability"
	"github.com/lexflow/lexflow/internal/queue"
	"github.com/lexflow/lexflow/internal/state"
	"github.com/lexflow/lexflow/pkg/models"
)

// ErrNodeFailed indicates a plan node whose capability failed; the plan
// is aborted and downstream nodes are never created.
var ErrNodeFailed = errors.New("plan node failed")

// ErrDependencyFailed indicates a node whose dependency did not reach
// completed, so the node itself was never started.
var ErrDependencyFailed = errors.New("dependency did not complete")

// CapabilityResolver resolves an agent type to its capability.
// *capability.Registry satisfies it.
type CapabilityResolver interface {
	ForType(t models.AgentType) (capability.Capability, error)
}

// Engine runs plans against the task queue, cache, and capability set.
type Engine struct {
	queue *queue.Queue
	plans state.PlanStore
	cache *cache.Cache
	caps  CapabilityResolver
	arena *Arena

	// depTimeout bounds how long a node waits for one dependency. Zero
	// means wait indefinitely, matching the historical behavior.
	depTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithDependencyTimeout bounds the per-dependency wait. Zero (the
// default) waits forever.
func WithDependencyTimeout(d time.Duration) Option {
	return func(e *Engine) { e.depTimeout = d }
}

// New creates an engine. The arena is shared with whoever needs to
// cancel plans; pass the same instance to the orchestrator.
func New(q *queue.Queue, plans state.PlanStore, c *cache.Cache, caps CapabilityResolver, arena *Arena, opts ...Option) *Engine {
	e := &Engine{
		queue: q,
		plans: plans,
		cache: c,
		caps:  caps,
		arena: arena,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Arena returns the engine's plan arena.
func (e *Engine) Arena() *Arena { return e.arena }

// nodeResult is the per-node outcome collected during a run.
type nodeResult struct {
	taskID string
	output capability.Output
}

// Run executes a plan to completion and returns the outputs keyed by
// agent type. Independent nodes run concurrently; dependent nodes wait
// for their dependencies to complete first. The first failure aborts
// the run: the plan is marked failed, in-flight tasks are marked
// cancelled, and tasks for unreached nodes are never created.
func (e *Engine) Run(ctx context.Context, plan *models.Plan) (map[models.AgentType]capability.Output, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := e.arena.add(plan.ID, cancel); err != nil {
		return nil, err
	}
	defer e.arena.remove(plan.ID)

	if err := e.plans.UpdatePlanStatus(plan.ID, models.PlanStatusExecuting); err != nil {
		return nil, fmt.Errorf("plan %s: mark executing: %w", plan.ID, err)
	}

	results := make(map[models.AgentType]nodeResult, len(plan.Nodes))

	runErr := e.runNodes(ctx, plan, results)

	final := models.PlanStatusCompleted
	if runErr != nil {
		final = models.PlanStatusFailed
	}
	if err := e.plans.UpdatePlanStatus(plan.ID, final); err != nil {
		log.Printf("[engine] plan %s: recording final status %s failed: %v", plan.ID, final, err)
	}

	outputs := make(map[models.AgentType]capability.Output, len(results))
	for t, r := range results {
		outputs[t] = r.output
	}
	if runErr != nil {
		return outputs, runErr
	}
	return outputs, nil
}

// runNodes executes independent nodes concurrently, then dependent
// nodes in plan order. The node list is already sorted so independent
// nodes come first.
func (e *Engine) runNodes(ctx context.Context, plan *models.Plan, results map[models.AgentType]nodeResult) error {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	recordErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	var dependents []models.PlanNode
	for _, node := range plan.Nodes {
		if !node.Independent() {
			dependents = append(dependents, node)
			continue
		}
		node := node
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.runNode(ctx, plan, node, nil)
			if err != nil {
				recordErr(err)
				return
			}
			mu.Lock()
			results[node.AgentType] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	if firstErr != nil {
		// Fail fast: dependents are never created.
		return firstErr
	}

	for _, node := range dependents {
		if err := ctx.Err(); err != nil {
			return err
		}
		depContext, err := e.awaitDependencies(ctx, node, results)
		if err != nil {
			return err
		}
		res, err := e.runNode(ctx, plan, node, depContext)
		if err != nil {
			return err
		}
		results[node.AgentType] = res
	}
	return nil
}

// awaitDependencies blocks until every dependency's task is terminal
// and returns their outputs keyed by agent type. A dependency that ends
// anywhere but completed fails the node.
func (e *Engine) awaitDependencies(ctx context.Context, node models.PlanNode, results map[models.AgentType]nodeResult) (map[string]json.RawMessage, error) {
	depContext := make(map[string]json.RawMessage, len(node.DependsOn))
	for _, dep := range node.DependsOn {
		res, ok := results[dep]
		if !ok {
			return nil, fmt.Errorf("node %s: %w: no task for %s", node.AgentType, ErrDependencyFailed, dep)
		}

		task, err := e.queue.AwaitTerminal(ctx, res.taskID, e.depTimeout)
		if err != nil {
			return nil, fmt.Errorf("node %s: waiting on %s: %w", node.AgentType, dep, err)
		}
		if task.Status != models.TaskStatusCompleted {
			return nil, fmt.Errorf("node %s: %w: %s is %s", node.AgentType, ErrDependencyFailed, dep, task.Status)
		}

		payload, err := json.Marshal(res.output)
		if err != nil {
			return nil, fmt.Errorf("node %s: encoding %s output: %w", node.AgentType, dep, err)
		}
		depContext[string(dep)] = payload
	}
	return depContext, nil
}

// runNode executes one plan node: cache first, capability on a miss.
// The returned error is non-nil exactly when the node did not complete.
func (e *Engine) runNode(ctx context.Context, plan *models.Plan, node models.PlanNode, depContext map[string]json.RawMessage) (nodeResult, error) {
	params := map[string]any{"agent": string(node.AgentType)}

	if entry, ok := e.cache.Lookup(plan.MatterID, plan.Request, params); ok {
		return e.completeFromCache(plan, node, entry)
	}

	in := capability.Input{
		MatterID: plan.MatterID,
		Request:  plan.Request,
		Context:  depContext,
		Params:   params,
	}
	inputPayload, err := json.Marshal(in)
	if err != nil {
		return nodeResult{}, fmt.Errorf("node %s: encoding input: %w", node.AgentType, err)
	}

	task, err := e.queue.Create(plan.ID, plan.MatterID, node.AgentType, inputPayload)
	if err != nil {
		return nodeResult{}, fmt.Errorf("node %s: creating task: %w", node.AgentType, err)
	}

	if err := ctx.Err(); err != nil {
		e.markCancelled(task.ID)
		return nodeResult{}, err
	}

	agent, err := e.caps.ForType(node.AgentType)
	if err != nil {
		e.markFailed(task.ID, err)
		return nodeResult{}, fmt.Errorf("node %s: %w: %v", node.AgentType, ErrNodeFailed, err)
	}

	if _, err := e.queue.UpdateStatus(task.ID, models.TaskStatusRunning, queue.StatusUpdate{}); err != nil {
		return nodeResult{}, fmt.Errorf("node %s: marking running: %w", node.AgentType, err)
	}

	progress := func(pct int, step string) {
		if _, err := e.queue.UpdateProgress(task.ID, pct, step); err != nil {
			log.Printf("[engine] task %s: progress update failed: %v", task.ID, err)
		}
	}

	out, err := agent.Execute(ctx, in, progress)
	if err != nil {
		if ctx.Err() != nil {
			e.markCancelled(task.ID)
			return nodeResult{}, ctx.Err()
		}
		e.markFailed(task.ID, err)
		return nodeResult{}, fmt.Errorf("node %s: %w: %v", node.AgentType, ErrNodeFailed, err)
	}

	outputPayload, err := json.Marshal(out)
	if err != nil {
		e.markFailed(task.ID, err)
		return nodeResult{}, fmt.Errorf("node %s: encoding output: %w", node.AgentType, err)
	}
	if _, err := e.queue.UpdateStatus(task.ID, models.TaskStatusCompleted, queue.StatusUpdate{Output: outputPayload}); err != nil {
		return nodeResult{}, fmt.Errorf("node %s: marking completed: %w", node.AgentType, err)
	}

	// Best effort; a cache problem never fails the node.
	e.cache.Store(plan.MatterID, plan.Request, outputPayload, params, cache.StoreOptions{
		AgentType:   node.AgentType,
		ResultType:  "agent_output",
		Title:       string(node.AgentType) + " result",
		Summary:     out.Result,
		SourceCount: len(out.Citations),
	})

	return nodeResult{taskID: task.ID, output: out}, nil
}

// completeFromCache records a task for the node and completes it with
// the cached payload, without invoking the capability.
func (e *Engine) completeFromCache(plan *models.Plan, node models.PlanNode, entry *models.CacheEntry) (nodeResult, error) {
	var out capability.Output
	if err := json.Unmarshal(entry.Result, &out); err != nil {
		return nodeResult{}, fmt.Errorf("node %s: decoding cached result %s: %w", node.AgentType, entry.ID, err)
	}
	out.Cached = true

	outputPayload, err := json.Marshal(out)
	if err != nil {
		return nodeResult{}, fmt.Errorf("node %s: encoding cached output: %w", node.AgentType, err)
	}

	task, err := e.queue.Create(plan.ID, plan.MatterID, node.AgentType, nil)
	if err != nil {
		return nodeResult{}, fmt.Errorf("node %s: creating task: %w", node.AgentType, err)
	}
	if _, err := e.queue.UpdateStatus(task.ID, models.TaskStatusRunning, queue.StatusUpdate{}); err != nil {
		return nodeResult{}, fmt.Errorf("node %s: marking running: %w", node.AgentType, err)
	}
	if _, err := e.queue.UpdateStatus(task.ID, models.TaskStatusCompleted, queue.StatusUpdate{Output: outputPayload}); err != nil {
		return nodeResult{}, fmt.Errorf("node %s: marking completed: %w", node.AgentType, err)
	}

	return nodeResult{taskID: task.ID, output: out}, nil
}

func (e *Engine) markFailed(taskID string, cause error) {
	if _, err := e.queue.UpdateStatus(taskID, models.TaskStatusFailed, queue.StatusUpdate{Error: cause.Error()}); err != nil {
		log.Printf("[engine] task %s: marking failed: %v", taskID, err)
	}
}

func (e *Engine) markCancelled(taskID string) {
	if _, err := e.queue.UpdateStatus(taskID, models.TaskStatusCancelled, queue.StatusUpdate{}); err != nil {
		log.Printf("[engine] task %s: marking cancelled: %v", taskID, err)
	}
}
