package models

import (
	"encoding/json"
	"time"
)

// CacheEntry is a stored, time-bounded agent result reusable across
// requests within or across matters. Entries are only removed by an
// explicit sweep, so readers must check expiry defensively.
type CacheEntry struct {
	// ID is the unique identifier for this entry.
	ID string `json:"id"`
	// MatterID is the owning matter, empty for the global scope.
	MatterID string `json:"matter_id,omitempty"`
	// AgentType is the capability that produced the result.
	AgentType AgentType `json:"agent_type"`
	// ResultType tags the kind of result (research, draft, review, ...).
	ResultType string `json:"result_type"`
	// Title is a short label for the cached result.
	Title string `json:"title,omitempty"`
	// Summary is a one-paragraph summary of the cached result.
	Summary string `json:"summary,omitempty"`
	// ContentHash is the normalized hash of the originating query plus
	// any extra parameters.
	ContentHash string `json:"content_hash"`
	// Result is the cached result payload.
	Result json.RawMessage `json:"result"`
	// Confidence is the producing agent's confidence in [0,1];
	// zero is treated as 1.0 by relevance ranking.
	Confidence float64 `json:"confidence,omitempty"`
	// SourceCount is the number of sources behind the result.
	SourceCount int `json:"source_count,omitempty"`
	// Query is the original query text.
	Query string `json:"query"`
	// CreatedAt is when the entry was written.
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is when the entry stops being served.
	ExpiresAt time.Time `json:"expires_at"`
	// UsageCount is the number of exact-match hits served.
	UsageCount int `json:"usage_count"`
	// LastUsedAt is the time of the most recent hit.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Expired returns true if the entry is past its expiry at the given time.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// EffectiveConfidence returns the stored confidence, defaulting to 1.0.
func (e *CacheEntry) EffectiveConfidence() float64 {
	if e.Confidence <= 0 {
		return 1.0
	}
	return e.Confidence
}
