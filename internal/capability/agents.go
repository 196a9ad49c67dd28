package capability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lexflow/lexflow/internal/llm"
	"github.com/lexflow/lexflow/pkg/models"
)

// agentPrompts holds the per-type prompt preambles. Each prompt asks the
// model to end with a "Sources:" section so citations can be extracted.
var agentPrompts = map[models.AgentType]string{
	models.AgentResearch: `You are a legal research assistant. Research the question below and
summarize the controlling law. End with a "Sources:" section listing authorities, one per line.`,
	models.AgentDeepResearch: `You are a senior legal research attorney. Research the question below
exhaustively: majority and minority positions, circuit splits, and recent developments.
End with a "Sources:" section listing authorities, one per line.`,
	models.AgentBriefWriting: `You are a legal writing specialist. Draft the requested document using
the research provided in the context. Follow standard memo structure. End with a
"Sources:" section listing authorities relied on, one per line.`,
	models.AgentDiscovery: `You are a discovery review specialist. Review the described documents for
responsiveness, privilege concerns, and notable admissions. End with a "Sources:" section
listing the documents referenced, one per line.`,
	models.AgentContractReview: `You are a contract review attorney. Identify risks, unusual terms,
missing protections, and obligations in the described agreement. End with a "Sources:"
section listing the provisions cited, one per line.`,
	models.AgentTimeline: `You are a case chronology specialist. Build a dated timeline of the events
described, noting gaps and conflicts. End with a "Sources:" section listing the documents
referenced, one per line.`,
}

// llmAgent implements Capability for every agent type, parameterized by
// the type's prompt and metadata. The domain logic is deliberately thin;
// the scheduler only depends on the contract.
type llmAgent struct {
	agentType models.AgentType
	meta      Metadata
	completer llm.Completer
}

// Compile-time verification that llmAgent implements Capability.
var _ Capability = (*llmAgent)(nil)

func (a *llmAgent) Type() models.AgentType { return a.agentType }

func (a *llmAgent) Meta() Metadata { return a.meta }

// EstimateDuration scales the base estimate by requested depth.
func (a *llmAgent) EstimateDuration(in Input) time.Duration {
	base := time.Duration(a.meta.BaseSeconds) * time.Second
	if depth, ok := in.Params["depth"].(string); ok {
		switch models.AnalysisDepth(depth) {
		case models.DepthSummary:
			return base * 6 / 10
		case models.DepthComprehensive:
			return base * 15 / 10
		}
	}
	return base
}

// Execute validates the input, assembles the prompt from the request and
// any dependency outputs, and invokes the completion capability.
func (a *llmAgent) Execute(ctx context.Context, in Input, progress ProgressFunc) (Output, error) {
	start := time.Now()
	if progress == nil {
		progress = func(int, string) {}
	}

	if err := ValidateInput(in); err != nil {
		return Output{}, err
	}
	if a.completer == nil {
		return Output{}, fmt.Errorf("agent %s: no completion capability configured", a.agentType)
	}

	progress(10, "preparing "+string(a.agentType))

	prompt := a.buildPrompt(in)

	progress(30, "consulting counsel model")
	response, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return Output{}, fmt.Errorf("agent %s: %w", a.agentType, err)
	}

	progress(90, "assembling result")
	result, citations := splitSources(response)

	out := Output{
		Success:       true,
		Result:        result,
		Citations:     citations,
		ExecutionTime: time.Since(start),
	}
	if err := ValidateOutput(out); err != nil {
		return Output{}, err
	}
	return out, nil
}

// buildPrompt merges the request, document references, and dependency
// outputs into one prompt.
func (a *llmAgent) buildPrompt(in Input) string {
	var sb strings.Builder
	sb.WriteString(agentPrompts[a.agentType])
	sb.WriteString("\n\nRequest:\n")
	sb.WriteString(in.Request)

	if len(in.DocumentIDs) > 0 {
		sb.WriteString("\n\nDocuments under consideration: ")
		sb.WriteString(strings.Join(in.DocumentIDs, ", "))
	}

	if len(in.Context) > 0 {
		sb.WriteString("\n\nContext from earlier agents:")
		// Stable order keeps prompts reproducible.
		for _, t := range models.AllAgentTypes {
			if payload, ok := in.Context[string(t)]; ok {
				sb.WriteString("\n--- ")
				sb.WriteString(string(t))
				sb.WriteString(" ---\n")
				sb.Write(payload)
			}
		}
	}

	return sb.String()
}

// splitSources separates the body of a response from its trailing
// "Sources:" section and turns each listed line into a citation.
func splitSources(response string) (string, []Citation) {
	idx := strings.LastIndex(response, "Sources:")
	if idx == -1 {
		return strings.TrimSpace(response), nil
	}

	body := strings.TrimSpace(response[:idx])
	var citations []Citation
	for _, line := range strings.Split(response[idx+len("Sources:"):], "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• \t"))
		if line == "" {
			continue
		}
		citations = append(citations, Citation{Title: line, Source: "counsel model"})
	}

	if body == "" {
		// A response that is nothing but sources still counts as a body.
		body = strings.TrimSpace(response)
	}
	return body, citations
}
