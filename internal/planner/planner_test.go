package planner

import (
	"testing"

	"github.com/lexflow/lexflow/pkg/models"
)

func TestBuildResearchOnly(t *testing.T) {
	b := NewBuilder(nil)
	plan := b.Build("", "research the statute of limitations for breach of contract", models.Intent{
		PrimaryAction: models.ActionResearch,
		Depth:         models.DepthStandard,
		Urgency:       models.UrgencyNormal,
	})

	if len(plan.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d: %+v", len(plan.Nodes), plan.Nodes)
	}
	node := plan.Nodes[0]
	if node.AgentType != models.AgentResearch {
		t.Errorf("expected research node, got %s", node.AgentType)
	}
	if !node.Independent() {
		t.Errorf("research node should have no dependencies, got %v", node.DependsOn)
	}
	if plan.Status != models.PlanStatusPlanned {
		t.Errorf("new plan should be planned, got %s", plan.Status)
	}
	if plan.ID == "" {
		t.Error("plan should have an id")
	}
	if plan.EstimatedSeconds != 30 {
		t.Errorf("expected 30s estimate, got %d", plan.EstimatedSeconds)
	}
}

func TestBuildWritingDependsOnResearch(t *testing.T) {
	b := NewBuilder(nil)
	plan := b.Build("matter-1", "draft a memo about successor liability", models.Intent{
		PrimaryAction: models.ActionWriting,
		Depth:         models.DepthComprehensive,
		Urgency:       models.UrgencyNormal,
	})

	if len(plan.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d: %+v", len(plan.Nodes), plan.Nodes)
	}
	// Comprehensive depth routes research to the deeper variant.
	if plan.Nodes[0].AgentType != models.AgentDeepResearch {
		t.Errorf("expected deep_research first, got %s", plan.Nodes[0].AgentType)
	}
	writing := plan.Node(models.AgentBriefWriting)
	if writing == nil {
		t.Fatal("expected a brief_writing node")
	}
	if len(writing.DependsOn) != 1 || writing.DependsOn[0] != models.AgentDeepResearch {
		t.Errorf("brief_writing should depend on deep_research, got %v", writing.DependsOn)
	}
}

func TestBuildNeverEmpty(t *testing.T) {
	b := NewBuilder(nil)
	intents := []models.Intent{
		{},
		{PrimaryAction: models.ActionUnknown},
		{PrimaryAction: models.PrimaryAction("nonsense")},
	}
	for _, intent := range intents {
		plan := b.Build("", "do something", intent)
		if len(plan.Nodes) == 0 {
			t.Errorf("plan for intent %+v has no nodes", intent)
		}
	}
}

func TestBuildIndependentNodesFirst(t *testing.T) {
	b := NewBuilder(nil)
	plan := b.Build("m", "analyze the contracts and related correspondence", models.Intent{
		PrimaryAction: models.ActionAnalysis,
		DocumentTypes: []string{"contract", "correspondence"},
		Depth:         models.DepthStandard,
		Urgency:       models.UrgencyNormal,
	})

	seenDependent := false
	for _, n := range plan.Nodes {
		if n.Independent() {
			if seenDependent {
				t.Fatalf("independent node %s after a dependent node: %+v", n.AgentType, plan.Nodes)
			}
		} else {
			seenDependent = true
		}
	}
	if plan.Node(models.AgentContractReview) == nil {
		t.Error("contract document type should add a contract_review node for analysis requests")
	}
	if plan.Node(models.AgentTimeline) == nil {
		t.Error("correspondence document type should add a timeline node for analysis requests")
	}
}

func TestBuildDocumentTypesIgnoredForResearch(t *testing.T) {
	b := NewBuilder(nil)
	plan := b.Build("", "research contract interpretation rules", models.Intent{
		PrimaryAction: models.ActionResearch,
		DocumentTypes: []string{"contract"},
		Depth:         models.DepthStandard,
		Urgency:       models.UrgencyNormal,
	})

	if len(plan.Nodes) != 1 || plan.Nodes[0].AgentType != models.AgentResearch {
		t.Errorf("research request should stay a single research node, got %+v", plan.Nodes)
	}
}

func TestEstimateMultipliers(t *testing.T) {
	b := NewBuilder(map[models.AgentType]int{models.AgentDiscovery: 100})

	cases := []struct {
		depth   models.AnalysisDepth
		urgency models.Urgency
		want    int
	}{
		{models.DepthStandard, models.UrgencyNormal, 100},
		{models.DepthSummary, models.UrgencyNormal, 60},
		{models.DepthComprehensive, models.UrgencyNormal, 150},
		{models.DepthStandard, models.UrgencyHigh, 80},
		{models.DepthStandard, models.UrgencyLow, 120},
		{models.DepthComprehensive, models.UrgencyHigh, 120},
	}
	for _, tc := range cases {
		plan := b.Build("", "review production set", models.Intent{
			PrimaryAction: models.ActionDiscovery,
			Depth:         tc.depth,
			Urgency:       tc.urgency,
		})
		if got := plan.Nodes[0].EstimatedSeconds; got != tc.want {
			t.Errorf("depth=%s urgency=%s: estimate %d, want %d", tc.depth, tc.urgency, got, tc.want)
		}
	}
}

func TestTotalEstimateParallelNodes(t *testing.T) {
	b := NewBuilder(nil)
	// Discovery (45) and timeline (35) run in parallel; only the longer
	// one contributes to the total.
	plan := b.Build("m", "review the produced correspondence", models.Intent{
		PrimaryAction: models.ActionDiscovery,
		DocumentTypes: []string{"correspondence"},
		Depth:         models.DepthStandard,
		Urgency:       models.UrgencyNormal,
	})

	if len(plan.Nodes) != 2 {
		t.Fatalf("expected discovery and timeline nodes, got %+v", plan.Nodes)
	}
	if plan.EstimatedSeconds != 45 {
		t.Errorf("expected 45s total (max of parallel nodes), got %d", plan.EstimatedSeconds)
	}
}

func TestTotalEstimateSerializesDependents(t *testing.T) {
	b := NewBuilder(nil)
	plan := b.Build("", "draft a brief", models.Intent{
		PrimaryAction: models.ActionWriting,
		Depth:         models.DepthStandard,
		Urgency:       models.UrgencyNormal,
	})

	// research 30 + brief_writing 60
	if plan.EstimatedSeconds != 90 {
		t.Errorf("expected 90s total, got %d", plan.EstimatedSeconds)
	}
}
