// Package planner turns a classified intent into an orchestration plan:
// the set of agent nodes to run, their dependency edges, and duration
// estimates. Building a plan is pure; persisting and executing it are
// separate steps owned by other packages.
package planner

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lexflow/lexflow/pkg/models"
)

// defaultDurations is the fallback base-duration table, matching the
// embedded capability metadata. A Builder constructed from the registry
// uses the registry's table instead.
var defaultDurations = map[models.AgentType]int{
	models.AgentResearch:       30,
	models.AgentDeepResearch:   90,
	models.AgentBriefWriting:   60,
	models.AgentDiscovery:      45,
	models.AgentContractReview: 40,
	models.AgentTimeline:       35,
}

// Builder builds plans from intents using a per-agent-type base
// duration table.
type Builder struct {
	durations map[models.AgentType]int
}

// NewBuilder returns a Builder using the given base-duration table,
// normally Registry.BaseDurations(). A nil table falls back to the
// built-in defaults.
func NewBuilder(durations map[models.AgentType]int) *Builder {
	if durations == nil {
		durations = defaultDurations
	}
	return &Builder{durations: durations}
}

// Build maps the intent to the minimal set of agents, attaches the
// static dependency table, estimates durations, and orders nodes so
// zero-dependency nodes come first. It never returns an empty plan; an
// unclassifiable intent falls back to a single research node.
func (b *Builder) Build(matterID, request string, intent models.Intent) models.Plan {
	selected := b.selectAgents(intent)
	if len(selected) == 0 {
		selected[researchVariant(intent.Depth)] = true
	}

	nodes := make([]models.PlanNode, 0, len(selected))
	for priority, t := range models.AllAgentTypes {
		if !selected[t] {
			continue
		}
		nodes = append(nodes, models.PlanNode{
			AgentType:        t,
			DependsOn:        dependenciesFor(t, selected),
			Priority:         priority,
			EstimatedSeconds: b.estimate(t, intent),
		})
	}

	// Dependencies are at most one level deep, so a stable sort by
	// dependency count is a sufficient topological order.
	sort.SliceStable(nodes, func(i, j int) bool {
		if len(nodes[i].DependsOn) != len(nodes[j].DependsOn) {
			return len(nodes[i].DependsOn) < len(nodes[j].DependsOn)
		}
		return nodes[i].Priority < nodes[j].Priority
	})

	return models.Plan{
		ID:               uuid.NewString(),
		MatterID:         matterID,
		Request:          request,
		Nodes:            nodes,
		EstimatedSeconds: totalEstimate(nodes),
		Status:           models.PlanStatusPlanned,
		CreatedAt:        time.Now().UTC(),
	}
}

// selectAgents picks the minimal agent set: the primary action's agent,
// plus auxiliary agents from document types for analysis and discovery
// requests. Secondary actions stay advisory; a research request that
// merely mentions a contract stays a single research node.
func (b *Builder) selectAgents(intent models.Intent) map[models.AgentType]bool {
	selected := make(map[models.AgentType]bool)

	switch intent.PrimaryAction {
	case models.ActionResearch, models.ActionAnalysis, models.ActionUnknown:
		selected[researchVariant(intent.Depth)] = true
	case models.ActionWriting:
		selected[models.AgentBriefWriting] = true
		selected[researchVariant(intent.Depth)] = true
	case models.ActionDiscovery:
		selected[models.AgentDiscovery] = true
	case models.ActionContractAnalysis:
		selected[models.AgentContractReview] = true
	case models.ActionTimelineGeneration:
		selected[models.AgentTimeline] = true
	}

	if intent.PrimaryAction == models.ActionAnalysis || intent.PrimaryAction == models.ActionDiscovery {
		for _, doc := range intent.DocumentTypes {
			switch doc {
			case "contract":
				selected[models.AgentContractReview] = true
			case "filing", "pleading", "correspondence":
				selected[models.AgentTimeline] = true
			}
		}
	}

	return selected
}

// researchVariant returns the research agent for the requested depth.
func researchVariant(depth models.AnalysisDepth) models.AgentType {
	if depth == models.DepthComprehensive {
		return models.AgentDeepResearch
	}
	return models.AgentResearch
}

// dependenciesFor applies the static dependency table: drafting waits
// for whichever research variant the plan contains, everything else is
// independent.
func dependenciesFor(t models.AgentType, selected map[models.AgentType]bool) []models.AgentType {
	if t != models.AgentBriefWriting {
		return nil
	}
	if selected[models.AgentDeepResearch] {
		return []models.AgentType{models.AgentDeepResearch}
	}
	if selected[models.AgentResearch] {
		return []models.AgentType{models.AgentResearch}
	}
	return nil
}

// estimate scales the base duration by depth and urgency multipliers.
func (b *Builder) estimate(t models.AgentType, intent models.Intent) int {
	base := float64(b.durations[t])
	if base == 0 {
		base = float64(defaultDurations[t])
	}

	switch intent.Depth {
	case models.DepthSummary:
		base *= 0.6
	case models.DepthComprehensive:
		base *= 1.5
	}

	switch intent.Urgency {
	case models.UrgencyHigh:
		base *= 0.8
	case models.UrgencyLow:
		base *= 1.2
	}

	return int(math.Round(base))
}

// totalEstimate sums dependent-chain nodes and adds only the longest
// independent node, since independent nodes run without serializing.
func totalEstimate(nodes []models.PlanNode) int {
	total := 0
	maxIndependent := 0
	for _, n := range nodes {
		if n.Independent() {
			if n.EstimatedSeconds > maxIndependent {
				maxIndependent = n.EstimatedSeconds
			}
		} else {
			total += n.EstimatedSeconds
		}
	}
	return total + maxIndependent
}
