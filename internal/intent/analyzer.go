package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/lexflow/lexflow/internal/llm"
	"github.com/lexflow/lexflow/pkg/models"
)

// classificationPrompt asks the model for strict JSON and nothing else.
const classificationPrompt = `You are a legal request classifier. Classify the request below into JSON.

Respond with ONLY a JSON object, no prose, matching exactly this shape:
{
  "primary_action": "research|writing|analysis|discovery|contract_analysis|timeline_generation|unknown",
  "secondary_actions": ["..."],
  "document_types": ["contract|filing|pleading|correspondence"],
  "depth": "summary|standard|comprehensive",
  "urgency": "low|normal|high",
  "complexity": 1,
  "key_requirements": ["..."]
}

Request:
%s`

// Analyzer classifies free-text requests. The primary path delegates to
// the completion capability; any failure or malformed output falls back
// to the deterministic keyword classifier so the rest of the pipeline
// never blocks on model failure.
type Analyzer struct {
	completer llm.Completer
}

// NewAnalyzer creates an analyzer. A nil completer is allowed and means
// keyword-only classification.
func NewAnalyzer(completer llm.Completer) *Analyzer {
	return &Analyzer{completer: completer}
}

// Analyze classifies a request. It never returns an error: the keyword
// fallback can always produce an intent.
func (a *Analyzer) Analyze(ctx context.Context, requestText string) models.Intent {
	if a.completer == nil {
		return ClassifyKeywords(requestText)
	}

	response, err := a.completer.Complete(ctx, fmt.Sprintf(classificationPrompt, requestText))
	if err != nil {
		log.Printf("[intent] completion unavailable, using keyword fallback: %v", err)
		return ClassifyKeywords(requestText)
	}

	intent, err := parseResponse(response)
	if err != nil {
		log.Printf("[intent] malformed classification, using keyword fallback: %v", err)
		return ClassifyKeywords(requestText)
	}
	return intent
}

// parseResponse extracts and validates the JSON object from the model's
// response. Models occasionally wrap JSON in prose or code fences, so the
// object boundaries are located explicitly.
func parseResponse(response string) (models.Intent, error) {
	jsonStart := strings.Index(response, "{")
	jsonEnd := strings.LastIndex(response, "}")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd < jsonStart {
		return models.Intent{}, fmt.Errorf("no JSON object in response")
	}

	var intent models.Intent
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &intent); err != nil {
		return models.Intent{}, fmt.Errorf("unmarshal intent: %w", err)
	}

	if !intent.PrimaryAction.Valid() {
		return models.Intent{}, fmt.Errorf("unknown primary action %q", intent.PrimaryAction)
	}
	for _, action := range intent.SecondaryActions {
		if !action.Valid() {
			return models.Intent{}, fmt.Errorf("unknown secondary action %q", action)
		}
	}

	switch intent.Depth {
	case models.DepthSummary, models.DepthStandard, models.DepthComprehensive:
	case "":
		intent.Depth = models.DepthStandard
	default:
		return models.Intent{}, fmt.Errorf("unknown depth %q", intent.Depth)
	}

	switch intent.Urgency {
	case models.UrgencyLow, models.UrgencyNormal, models.UrgencyHigh:
	case "":
		intent.Urgency = models.UrgencyNormal
	default:
		return models.Intent{}, fmt.Errorf("unknown urgency %q", intent.Urgency)
	}

	if intent.Complexity < 1 {
		intent.Complexity = 1
	}
	if intent.Complexity > 5 {
		intent.Complexity = 5
	}

	return intent, nil
}
