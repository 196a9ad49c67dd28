package models

import "time"

// PlanStatus represents the lifecycle state of an orchestration plan.
type PlanStatus string

const (
	// PlanStatusPlanned indicates the plan has been built but not started.
	PlanStatusPlanned PlanStatus = "planned"
	// PlanStatusExecuting indicates the execution engine owns the plan.
	PlanStatusExecuting PlanStatus = "executing"
	// PlanStatusCompleted indicates every node finished successfully.
	PlanStatusCompleted PlanStatus = "completed"
	// PlanStatusFailed indicates the plan was aborted or a node failed.
	PlanStatusFailed PlanStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusPlanned, PlanStatusExecuting, PlanStatusCompleted, PlanStatusFailed:
		return true
	default:
		return false
	}
}

// PlanNode is one agent invocation within a plan.
type PlanNode struct {
	// AgentType is the capability this node invokes.
	AgentType AgentType `json:"agent_type"`
	// DependsOn lists agent types that must complete before this node.
	DependsOn []AgentType `json:"depends_on,omitempty"`
	// Priority orders nodes with equal dependency counts (lower runs first).
	Priority int `json:"priority"`
	// EstimatedSeconds is the rough duration estimate for this node.
	EstimatedSeconds int `json:"estimated_seconds"`
}

// Independent returns true if the node has no dependencies.
func (n PlanNode) Independent() bool {
	return len(n.DependsOn) == 0
}

// Plan is the ordered, dependency-annotated set of agent invocations
// derived from one request. Status is the only field mutated after
// creation; the execution engine owns the plan for the duration of a run.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`
	// MatterID is the owning matter, empty for the general scope.
	MatterID string `json:"matter_id,omitempty"`
	// Request is the original free-text request.
	Request string `json:"request"`
	// Nodes is the ordered node list; zero-dependency nodes come first.
	Nodes []PlanNode `json:"nodes"`
	// EstimatedSeconds is the total plan estimate. Independent nodes do
	// not serialize, so they contribute only their maximum.
	EstimatedSeconds int `json:"estimated_seconds"`
	// Status is the current lifecycle state.
	Status PlanStatus `json:"status"`
	// CreatedAt is when the plan was built.
	CreatedAt time.Time `json:"created_at"`
}

// Node returns the node for the given agent type, or nil if absent.
func (p *Plan) Node(t AgentType) *PlanNode {
	for i := range p.Nodes {
		if p.Nodes[i].AgentType == t {
			return &p.Nodes[i]
		}
	}
	return nil
}
