package models

// AgentType identifies a specialized agent capability.
// The set is closed: dispatch over agent types is done with exhaustive
// switches rather than string-keyed lookups that can silently miss.
type AgentType string

const (
	// AgentResearch performs standard legal research.
	AgentResearch AgentType = "research"
	// AgentDeepResearch is the comprehensive research variant.
	AgentDeepResearch AgentType = "deep_research"
	// AgentBriefWriting drafts memos and briefs from research output.
	AgentBriefWriting AgentType = "brief_writing"
	// AgentDiscovery analyzes discovery documents.
	AgentDiscovery AgentType = "discovery"
	// AgentContractReview reviews contracts for risks and obligations.
	AgentContractReview AgentType = "contract_review"
	// AgentTimeline builds case timelines from matter documents.
	AgentTimeline AgentType = "timeline"
)

// AllAgentTypes lists every known agent type in a stable order.
var AllAgentTypes = []AgentType{
	AgentResearch,
	AgentDeepResearch,
	AgentBriefWriting,
	AgentDiscovery,
	AgentContractReview,
	AgentTimeline,
}

// Valid returns true if the agent type is a known value.
func (t AgentType) Valid() bool {
	switch t {
	case AgentResearch, AgentDeepResearch, AgentBriefWriting,
		AgentDiscovery, AgentContractReview, AgentTimeline:
		return true
	default:
		return false
	}
}

// IsResearch returns true for both research variants.
func (t AgentType) IsResearch() bool {
	return t == AgentResearch || t == AgentDeepResearch
}
