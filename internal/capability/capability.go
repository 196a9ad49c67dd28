// Package capability defines the agent capability contract and the
// closed registry over the known agent types. Dispatch is an exhaustive
// switch over the enumeration, checked at compile time, rather than a
// runtime map lookup that can silently return "not found".
package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lexflow/lexflow/pkg/models"
)

// ErrInvalidInput indicates an agent input that fails validation.
// Input validation failures abort the task before execution.
var ErrInvalidInput = errors.New("invalid capability input")

// ErrInvalidOutput indicates a nominally successful execution whose
// output fails validation; the task is recorded as failed rather than
// persisting malformed data.
var ErrInvalidOutput = errors.New("invalid capability output")

// ProgressFunc receives step/percentage updates while a capability runs.
type ProgressFunc func(percent int, step string)

// Input is the structured input handed to a capability. The scheduler
// treats the payload as opaque beyond assembling it.
type Input struct {
	// MatterID is the owning matter, empty for the general scope.
	MatterID string `json:"matter_id,omitempty"`
	// Request is the original free-text request.
	Request string `json:"request"`
	// Context carries the outputs of dependency nodes keyed by their
	// agent type name, plus any matter metadata.
	Context map[string]json.RawMessage `json:"context,omitempty"`
	// DocumentIDs optionally names documents the agent should consider.
	DocumentIDs []string `json:"document_ids,omitempty"`
	// Params are free-form parameters (depth, urgency, ...).
	Params map[string]any `json:"params,omitempty"`
}

// Citation is a citation-like record attached to an agent result.
type Citation struct {
	// Title is the cited authority or document name.
	Title string `json:"title"`
	// Source is where the citation came from.
	Source string `json:"source,omitempty"`
}

// Output is the structured result of a capability invocation.
type Output struct {
	// Success reports whether the agent considers the run successful.
	Success bool `json:"success"`
	// Result is the agent's result text, opaque to the scheduler.
	Result string `json:"result,omitempty"`
	// Citations lists supporting citations, if any.
	Citations []Citation `json:"citations,omitempty"`
	// Error is the failure message when Success is false.
	Error string `json:"error,omitempty"`
	// Cached reports whether the result was served from the cache.
	Cached bool `json:"cached"`
	// ExecutionTime is how long the invocation took.
	ExecutionTime time.Duration `json:"execution_time"`
}

// Capability is a pluggable unit of domain logic invoked with structured
// input. The scheduler only depends on this contract.
type Capability interface {
	// Type returns the agent type this capability implements.
	Type() models.AgentType
	// Execute runs the capability. Progress may be nil.
	Execute(ctx context.Context, in Input, progress ProgressFunc) (Output, error)
	// EstimateDuration returns a rough duration estimate for the input.
	EstimateDuration(in Input) time.Duration
	// Meta returns the capability's declared metadata.
	Meta() Metadata
}

// ValidateInput rejects inputs the scheduler must not execute.
func ValidateInput(in Input) error {
	if in.Request == "" {
		return fmt.Errorf("%w: empty request", ErrInvalidInput)
	}
	return nil
}

// ValidateOutput rejects outputs that must not be persisted as success.
func ValidateOutput(out Output) error {
	if out.Success && out.Result == "" {
		return fmt.Errorf("%w: success with empty result", ErrInvalidOutput)
	}
	return nil
}
