package models

// PrimaryAction is the main action classified from a request.
type PrimaryAction string

const (
	// ActionResearch indicates a legal research request.
	ActionResearch PrimaryAction = "research"
	// ActionWriting indicates a drafting request (memo, brief, letter).
	ActionWriting PrimaryAction = "writing"
	// ActionAnalysis indicates a general document analysis request.
	ActionAnalysis PrimaryAction = "analysis"
	// ActionDiscovery indicates a discovery review request.
	ActionDiscovery PrimaryAction = "discovery"
	// ActionContractAnalysis indicates a contract review request.
	ActionContractAnalysis PrimaryAction = "contract_analysis"
	// ActionTimelineGeneration indicates a timeline request.
	ActionTimelineGeneration PrimaryAction = "timeline_generation"
	// ActionUnknown indicates the request could not be classified.
	ActionUnknown PrimaryAction = "unknown"
)

// Valid returns true if the action is a known value.
func (a PrimaryAction) Valid() bool {
	switch a {
	case ActionResearch, ActionWriting, ActionAnalysis, ActionDiscovery,
		ActionContractAnalysis, ActionTimelineGeneration, ActionUnknown:
		return true
	default:
		return false
	}
}

// AnalysisDepth is how thorough the work should be.
type AnalysisDepth string

const (
	// DepthSummary requests a quick summary-level pass.
	DepthSummary AnalysisDepth = "summary"
	// DepthStandard is the default depth.
	DepthStandard AnalysisDepth = "standard"
	// DepthComprehensive requests exhaustive treatment.
	DepthComprehensive AnalysisDepth = "comprehensive"
)

// Urgency is how quickly the caller needs the result.
type Urgency string

const (
	// UrgencyLow indicates no time pressure.
	UrgencyLow Urgency = "low"
	// UrgencyNormal is the default urgency.
	UrgencyNormal Urgency = "normal"
	// UrgencyHigh indicates a rush request.
	UrgencyHigh Urgency = "high"
)

// Intent is the structured classification of a free-text request.
type Intent struct {
	// PrimaryAction is the main classified action.
	PrimaryAction PrimaryAction `json:"primary_action"`
	// SecondaryActions lists additional actions detected in the request.
	SecondaryActions []PrimaryAction `json:"secondary_actions,omitempty"`
	// DocumentTypes lists document kinds mentioned in the request
	// (contract, filing, pleading, correspondence, ...).
	DocumentTypes []string `json:"document_types,omitempty"`
	// Depth is the requested analysis depth.
	Depth AnalysisDepth `json:"depth"`
	// Urgency is the requested urgency.
	Urgency Urgency `json:"urgency"`
	// Complexity is a rough 1-5 complexity estimate.
	Complexity int `json:"complexity"`
	// KeyRequirements are free-text requirements extracted from the request.
	KeyRequirements []string `json:"key_requirements,omitempty"`
}
