package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Arena tracks running plans and their cancellation handles. It is an
// explicit, owned value passed to whoever needs cancellation, not a
// process-global registry.
type Arena struct {
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{running: make(map[string]context.CancelFunc)}
}

// add registers a plan's cancellation handle. A plan may only run once
// at a time.
func (a *Arena) add(planID string, cancel context.CancelFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.running[planID]; ok {
		return fmt.Errorf("plan %s is already running", planID)
	}
	a.running[planID] = cancel
	return nil
}

// remove drops a plan's entry once its run finishes.
func (a *Arena) remove(planID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.running, planID)
}

// Cancel requests cooperative cancellation of a running plan. It
// returns false if the plan is not running.
func (a *Arena) Cancel(planID string) bool {
	a.mu.Lock()
	cancel, ok := a.running[planID]
	a.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running lists the IDs of plans currently executing, sorted.
func (a *Arena) Running() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.running))
	for id := range a.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
