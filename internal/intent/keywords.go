// Package intent classifies free-text requests into structured intents.
package intent

import (
	"strings"

	"github.com/lexflow/lexflow/pkg/models"
)

// ActionKeywords is the single source of truth for the deterministic
// keyword fallback. When the completion capability is unavailable or
// returns malformed output, classification degrades to substring checks
// against these fixed vocabularies so the pipeline never blocks.
type ActionKeywords struct {
	// Writing keywords indicate drafting requests.
	Writing []string
	// ContractAnalysis keywords indicate contract review requests.
	ContractAnalysis []string
	// Discovery keywords indicate discovery review requests.
	Discovery []string
	// Timeline keywords indicate timeline generation requests.
	Timeline []string
	// Analysis keywords indicate general analysis requests.
	Analysis []string
	// Research keywords indicate legal research requests.
	// Research is also the default when nothing matches.
	Research []string
}

// DefaultActionKeywords returns the authoritative keyword mappings.
var DefaultActionKeywords = ActionKeywords{
	Writing: []string{
		"draft",
		"write",
		"prepare a memo",
		"memo",
		"brief",
		"letter",
		"motion",
		"compose",
	},
	ContractAnalysis: []string{
		"contract",
		"agreement",
		"clause",
		"indemnif",
		"warranty",
		"termination provision",
		"nda",
	},
	Discovery: []string{
		"discovery",
		"deposition",
		"interrogator",
		"produce documents",
		"document production",
		"privilege log",
	},
	Timeline: []string{
		"timeline",
		"chronology",
		"sequence of events",
		"when did",
	},
	Analysis: []string{
		"analyze",
		"analysis",
		"review",
		"assess",
		"evaluate",
		"summarize",
	},
	Research: []string{
		"research",
		"statute",
		"case law",
		"precedent",
		"authority",
		"what is the law",
	},
}

// Depth, urgency, and document-type vocabularies are checked in a fixed
// order so the fallback stays deterministic. Comprehensive beats summary
// when both appear; high urgency beats low.
var (
	comprehensiveKeywords = []string{"comprehensive", "thorough", "in depth", "in-depth", "exhaustive", "detailed"}
	summaryKeywords       = []string{"summary", "brief overview", "quick", "high level", "high-level"}

	highUrgencyKeywords = []string{"urgent", "asap", "immediately", "today", "right away", "rush"}
	lowUrgencyKeywords  = []string{"no rush", "whenever", "low priority", "eventually"}
)

// documentTypeKeywords maps phrasing to document type tags, checked in
// declaration order.
var documentTypeKeywords = []struct {
	docType  string
	keywords []string
}{
	{"contract", []string{"contract", "agreement", "nda", "lease"}},
	{"filing", []string{"filing", "complaint", "motion", "petition"}},
	{"pleading", []string{"pleading", "counterclaim"}},
	{"correspondence", []string{"email", "correspondence"}},
}

// ClassifyKeywords is the deterministic fallback classifier. It is a pure
// function of the request text: substring checks against the fixed
// vocabularies, priority-ordered so the more specific actions win.
func ClassifyKeywords(requestText string) models.Intent {
	lower := strings.ToLower(requestText)

	intent := models.Intent{
		PrimaryAction: models.ActionResearch,
		Depth:         models.DepthStandard,
		Urgency:       models.UrgencyNormal,
		Complexity:    2,
	}

	// Priority order matters: writing wins over contract analysis
	// because "draft an agreement" is a drafting request about a
	// contract, not a review of one, and research wins over contract
	// analysis because "research breach of contract" is a research
	// request that merely mentions contracts.
	ordered := []struct {
		action   models.PrimaryAction
		keywords []string
	}{
		{models.ActionWriting, DefaultActionKeywords.Writing},
		{models.ActionResearch, DefaultActionKeywords.Research},
		{models.ActionContractAnalysis, DefaultActionKeywords.ContractAnalysis},
		{models.ActionDiscovery, DefaultActionKeywords.Discovery},
		{models.ActionTimelineGeneration, DefaultActionKeywords.Timeline},
		{models.ActionAnalysis, DefaultActionKeywords.Analysis},
	}

	matched := false
	for _, entry := range ordered {
		if containsAny(lower, entry.keywords) {
			if !matched {
				intent.PrimaryAction = entry.action
				matched = true
				continue
			}
			intent.SecondaryActions = append(intent.SecondaryActions, entry.action)
		}
	}

	if containsAny(lower, comprehensiveKeywords) {
		intent.Depth = models.DepthComprehensive
	} else if containsAny(lower, summaryKeywords) {
		intent.Depth = models.DepthSummary
	}

	if containsAny(lower, highUrgencyKeywords) {
		intent.Urgency = models.UrgencyHigh
	} else if containsAny(lower, lowUrgencyKeywords) {
		intent.Urgency = models.UrgencyLow
	}

	for _, entry := range documentTypeKeywords {
		if containsAny(lower, entry.keywords) {
			intent.DocumentTypes = append(intent.DocumentTypes, entry.docType)
		}
	}

	if intent.Depth == models.DepthComprehensive || len(intent.SecondaryActions) > 0 {
		intent.Complexity = 4
	}

	return intent
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
