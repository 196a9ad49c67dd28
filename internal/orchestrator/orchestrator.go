package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lexflow/lexflow/internal/capability"
	"github.com/lexflow/lexflow/internal/engine"
	"github.com/lexflow/lexflow/internal/intent"
	"github.com/lexflow/lexflow/internal/planner"
	"github.com/lexflow/lexflow/internal/queue"
	"github.com/lexflow/lexflow/internal/state"
	"github.com/lexflow/lexflow/internal/stream"
	"github.com/lexflow/lexflow/pkg/models"
)

// ErrEmptyRequest indicates a request with no usable text.
var ErrEmptyRequest = errors.New("empty request")

// Orchestrator handles a request end to end. It owns nothing the
// components don't already own; it sequences them.
type Orchestrator struct {
	analyzer *intent.Analyzer
	builder  *planner.Builder
	engine   *engine.Engine
	plans    state.PlanStore
	queue    *queue.Queue
	logger   *DebugLogger
}

// New creates an orchestrator over the given components. A nil logger
// disables debug logging.
func New(analyzer *intent.Analyzer, builder *planner.Builder, eng *engine.Engine, plans state.PlanStore, q *queue.Queue, logger *DebugLogger) *Orchestrator {
	if logger == nil {
		logger = NopLogger()
	}
	setPackageLogger(logger)
	return &Orchestrator{
		analyzer: analyzer,
		builder:  builder,
		engine:   eng,
		plans:    plans,
		queue:    q,
		logger:   logger,
	}
}

// Result is the aggregate outcome of one handled request.
type Result struct {
	// PlanID identifies the executed plan.
	PlanID string
	// Intent is the classified intent the plan was built from.
	Intent models.Intent
	// Outputs holds the per-agent outputs, keyed by agent type.
	Outputs map[models.AgentType]capability.Output
	// Summary is the formatted final answer.
	Summary string
}

// HandleRequest classifies the request, builds and persists a plan,
// executes it, and streams progress records to sink as newline-delimited
// JSON. A nil sink discards the stream. On failure the partial outputs
// gathered so far are returned along with the error.
func (o *Orchestrator) HandleRequest(ctx context.Context, matterID, text string, sink io.Writer) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyRequest
	}
	if sink == nil {
		sink = io.Discard
	}

	debugLog("request received: matter=%q len=%d", matterID, len(text))

	in := o.analyzer.Analyze(ctx, text)
	debugLog("intent: action=%s depth=%s urgency=%s complexity=%d", in.PrimaryAction, in.Depth, in.Urgency, in.Complexity)

	plan := o.builder.Build(matterID, text, in)
	if err := o.plans.CreatePlan(&plan); err != nil {
		return nil, fmt.Errorf("persisting plan: %w", err)
	}
	debugLog("plan %s: %d nodes, ~%ds", plan.ID, len(plan.Nodes), plan.EstimatedSeconds)

	s := stream.New(sink)

	followCtx, stopFollow := context.WithCancel(context.Background())
	followDone := make(chan struct{})
	go func() {
		defer close(followDone)
		if err := s.FollowPlan(followCtx, o.queue, plan.ID, len(plan.Nodes)); err != nil && !errors.Is(err, context.Canceled) {
			debugLog("plan %s: stream follow ended: %v", plan.ID, err)
		}
	}()

	outputs, runErr := o.engine.Run(ctx, &plan)

	stopFollow()
	<-followDone

	result := &Result{
		PlanID:  plan.ID,
		Intent:  in,
		Outputs: outputs,
	}

	if runErr != nil {
		debugLog("plan %s: failed: %v", plan.ID, runErr)
		s.Message(fmt.Sprintf("Request failed: %v", runErr))
		s.End()
		return result, runErr
	}

	result.Summary = formatSummary(&plan, outputs)
	s.Message(result.Summary)
	s.End()
	debugLog("plan %s: completed", plan.ID)

	return result, nil
}

// Cancel requests cooperative cancellation of a running plan.
func (o *Orchestrator) Cancel(planID string) bool {
	debugLog("plan %s: cancellation requested", planID)
	return o.engine.Arena().Cancel(planID)
}

// Running lists the plans currently executing.
func (o *Orchestrator) Running() []string {
	return o.engine.Arena().Running()
}

// formatSummary assembles the final answer from the per-agent outputs
// in plan node order, dependents last.
func formatSummary(plan *models.Plan, outputs map[models.AgentType]capability.Output) string {
	var sb strings.Builder
	for _, node := range plan.Nodes {
		out, ok := outputs[node.AgentType]
		if !ok {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		if len(plan.Nodes) > 1 {
			sb.WriteString("## ")
			sb.WriteString(agentHeading(node.AgentType))
			if out.Cached {
				sb.WriteString(" (cached)")
			}
			sb.WriteString("\n\n")
		} else if out.Cached {
			sb.WriteString("(cached)\n\n")
		}
		sb.WriteString(out.Result)
	}
	return sb.String()
}

// agentHeading returns a display heading for an agent type.
func agentHeading(t models.AgentType) string {
	switch t {
	case models.AgentResearch:
		return "Research"
	case models.AgentDeepResearch:
		return "Research (comprehensive)"
	case models.AgentBriefWriting:
		return "Draft"
	case models.AgentDiscovery:
		return "Discovery Review"
	case models.AgentContractReview:
		return "Contract Review"
	case models.AgentTimeline:
		return "Timeline"
	default:
		return string(t)
	}
}
