package capability

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lexflow/lexflow/internal/llm"
	"github.com/lexflow/lexflow/pkg/models"
)

//go:embed metadata.yaml
var metadataYAML []byte

// Metadata is the static declaration for one capability, loaded at
// process start and immutable afterwards.
type Metadata struct {
	// Description is a one-line description of the capability.
	Description string `yaml:"description"`
	// Inputs lists the declared input categories.
	Inputs []string `yaml:"inputs"`
	// Outputs lists the declared output categories.
	Outputs []string `yaml:"outputs"`
	// BaseSeconds is the unadjusted duration estimate.
	BaseSeconds int `yaml:"base_seconds"`
}

type metadataFile struct {
	Capabilities map[models.AgentType]Metadata `yaml:"capabilities"`
}

// Registry maps the closed set of agent types to capabilities. Every
// known agent type must have metadata; construction fails otherwise, so
// a missing registry entry is impossible at runtime.
type Registry struct {
	completer llm.Completer
	meta      map[models.AgentType]Metadata
}

// NewRegistry loads the embedded capability metadata and binds the
// completion capability the agents will use.
func NewRegistry(completer llm.Completer) (*Registry, error) {
	var file metadataFile
	if err := yaml.Unmarshal(metadataYAML, &file); err != nil {
		return nil, fmt.Errorf("parse capability metadata: %w", err)
	}

	for _, t := range models.AllAgentTypes {
		if _, ok := file.Capabilities[t]; !ok {
			return nil, fmt.Errorf("capability metadata missing agent type %q", t)
		}
	}
	for t := range file.Capabilities {
		if !t.Valid() {
			return nil, fmt.Errorf("capability metadata declares unknown agent type %q", t)
		}
	}

	return &Registry{completer: completer, meta: file.Capabilities}, nil
}

// Meta returns the metadata for an agent type.
func (r *Registry) Meta(t models.AgentType) (Metadata, error) {
	meta, ok := r.meta[t]
	if !ok {
		return Metadata{}, fmt.Errorf("no metadata for agent type %q", t)
	}
	return meta, nil
}

// BaseDurations returns the per-agent-type base duration table used by
// the plan builder.
func (r *Registry) BaseDurations() map[models.AgentType]int {
	table := make(map[models.AgentType]int, len(r.meta))
	for t, meta := range r.meta {
		table[t] = meta.BaseSeconds
	}
	return table
}

// ForType returns the capability for an agent type. The switch is
// exhaustive over the enumeration; an invalid type is the only error.
func (r *Registry) ForType(t models.AgentType) (Capability, error) {
	switch t {
	case models.AgentResearch, models.AgentDeepResearch, models.AgentBriefWriting,
		models.AgentDiscovery, models.AgentContractReview, models.AgentTimeline:
		return &llmAgent{
			agentType: t,
			meta:      r.meta[t],
			completer: r.completer,
		}, nil
	default:
		return nil, fmt.Errorf("unknown agent type %q", t)
	}
}

// EstimateDuration returns the base estimate for an agent type without
// constructing the capability.
func (r *Registry) EstimateDuration(t models.AgentType) time.Duration {
	return time.Duration(r.meta[t].BaseSeconds) * time.Second
}
