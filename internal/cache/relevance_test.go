package cache

import (
	"testing"
	"time"

	"github.com/lexflow/lexflow/pkg/models"
)

func entryWith(query string, confidence float64, age time.Duration, now time.Time) models.CacheEntry {
	return models.CacheEntry{
		ID:         "entry-" + query,
		Query:      query,
		Confidence: confidence,
		CreatedAt:  now.Add(-age),
		ExpiresAt:  now.Add(time.Hour),
	}
}

func TestRankExactMatch(t *testing.T) {
	now := time.Now()
	candidates := []models.CacheEntry{
		entryWith("Statute of Limitations for breach of contract", 1.0, 0, now),
	}

	scored := Rank(candidates, "statute of limitations for BREACH of contract", now)
	if len(scored) != 1 {
		t.Fatalf("expected 1 scored entry, got %d", len(scored))
	}
	if scored[0].Relevance != 1.0 {
		t.Errorf("expected exact normalized match to score 1.0, got %f", scored[0].Relevance)
	}
}

func TestRankTokenOverlap(t *testing.T) {
	now := time.Now()
	candidates := []models.CacheEntry{
		entryWith("statute limitations breach contract", 1.0, 0, now),
		entryWith("trademark infringement damages", 1.0, 0, now),
	}

	scored := Rank(candidates, "breach of contract limitations period", now)
	if scored[0].Entry.Query != "statute limitations breach contract" {
		t.Errorf("expected overlapping entry ranked first, got %q", scored[0].Entry.Query)
	}
	if scored[0].Relevance <= scored[1].Relevance {
		t.Error("expected strictly higher score for the overlapping entry")
	}
	if scored[1].Relevance != 0 {
		t.Errorf("expected zero score with no shared tokens, got %f", scored[1].Relevance)
	}
}

func TestRankShortTokensIgnored(t *testing.T) {
	now := time.Now()
	// Every shared token is <= 3 chars, so overlap is zero.
	candidates := []models.CacheEntry{entryWith("the of an is", 1.0, 0, now)}

	scored := Rank(candidates, "THE  of an is", now)
	// Identical after normalization, so this is an exact match despite
	// having no significant tokens.
	if scored[0].Relevance != 1.0 {
		t.Errorf("expected exact match score, got %f", scored[0].Relevance)
	}

	scored = Rank(candidates, "of the is", now)
	if scored[0].Relevance != 0 {
		t.Errorf("expected zero score without significant tokens, got %f", scored[0].Relevance)
	}
}

// Relevance must be monotonically non-increasing in age for otherwise
// identical entries, bounded below by 0.5 x confidence at one week.
func TestRankAgeDecayMonotone(t *testing.T) {
	now := time.Now()
	query := "statute of limitations for breach of contract"
	confidence := 0.8

	ages := []time.Duration{
		0,
		time.Hour,
		24 * time.Hour,
		72 * time.Hour,
		168 * time.Hour,
		400 * time.Hour,
	}

	var prev = 2.0
	for _, age := range ages {
		scored := Rank([]models.CacheEntry{entryWith(query, confidence, age, now)}, query, now)
		got := scored[0].Relevance
		if got > prev {
			t.Errorf("score increased with age %s: %f > %f", age, got, prev)
		}
		floor := minAgeFactor * confidence
		if got < floor-1e-9 {
			t.Errorf("score %f below floor %f at age %s", got, floor, age)
		}
		prev = got
	}

	// At and beyond one week the floor is exact.
	weekOld := Rank([]models.CacheEntry{entryWith(query, confidence, 168 * time.Hour, now)}, query, now)
	ancient := Rank([]models.CacheEntry{entryWith(query, confidence, 10000 * time.Hour, now)}, query, now)
	if weekOld[0].Relevance != ancient[0].Relevance {
		t.Errorf("expected decay floor to hold: week=%f ancient=%f",
			weekOld[0].Relevance, ancient[0].Relevance)
	}
	if want := minAgeFactor * confidence; ancient[0].Relevance != want {
		t.Errorf("expected floored score %f, got %f", want, ancient[0].Relevance)
	}
}

func TestRankConfidenceMultiplier(t *testing.T) {
	now := time.Now()
	query := "breach of contract damages"

	high := entryWith(query, 1.0, 0, now)
	low := entryWith(query, 0.4, 0, now)
	zero := entryWith(query, 0, 0, now) // unset confidence defaults to 1.0

	scored := Rank([]models.CacheEntry{low, high, zero}, query, now)
	if scored[0].Relevance != 1.0 {
		t.Errorf("expected top score 1.0, got %f", scored[0].Relevance)
	}
	if scored[2].Relevance != 0.4 {
		t.Errorf("expected low-confidence score 0.4, got %f", scored[2].Relevance)
	}
}

func TestRankThresholdOrdering(t *testing.T) {
	now := time.Now()
	candidates := []models.CacheEntry{
		entryWith("completely unrelated topic here", 1.0, 0, now),
		entryWith("statute of limitations contract", 1.0, 0, now),
	}

	scored := Rank(candidates, "statute of limitations for breach of contract", now)
	if scored[0].Relevance < DefaultRelevanceThreshold {
		t.Errorf("expected relevant entry above threshold, got %f", scored[0].Relevance)
	}
	if scored[1].Relevance >= DefaultRelevanceThreshold {
		t.Errorf("expected unrelated entry below threshold, got %f", scored[1].Relevance)
	}
}
