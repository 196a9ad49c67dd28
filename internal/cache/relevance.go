package cache

import (
	"sort"
	"strings"
	"time"

	"github.com/lexflow/lexflow/pkg/models"
)

// DefaultRelevanceThreshold is the score below which callers normally
// decide not to reuse a cached result.
const DefaultRelevanceThreshold = 0.3

// ageDecayWindow is the age at which the decay factor bottoms out.
const ageDecayWindow = 168 * time.Hour // one week

// minAgeFactor is the decay floor: cached results never fully lose
// relevance by age alone.
const minAgeFactor = 0.5

// Scored pairs a cache entry with its relevance against a query.
type Scored struct {
	Entry     models.CacheEntry
	Relevance float64
}

// Rank scores candidates against the current query and returns them
// sorted by descending relevance. An exact normalized-query match scores
// 1.0; otherwise the score is the shared-token overlap ratio. Both are
// then discounted by the entry's confidence and an age-decay factor.
func Rank(candidates []models.CacheEntry, query string, now time.Time) []Scored {
	normalized := NormalizeQuery(query)
	queryTokens := significantTokens(normalized)

	scored := make([]Scored, 0, len(candidates))
	for _, entry := range candidates {
		base := similarity(normalized, queryTokens, entry.Query)
		score := base * entry.EffectiveConfidence() * ageFactor(entry.CreatedAt, now)
		scored = append(scored, Scored{Entry: entry, Relevance: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Relevance > scored[j].Relevance
	})
	return scored
}

// similarity returns 1.0 for an exact normalized match, otherwise the
// count of shared significant tokens over the larger token count.
func similarity(normalizedQuery string, queryTokens []string, cachedQuery string) float64 {
	normalizedCached := NormalizeQuery(cachedQuery)
	if normalizedCached == normalizedQuery {
		return 1.0
	}

	cachedTokens := significantTokens(normalizedCached)
	if len(queryTokens) == 0 || len(cachedTokens) == 0 {
		return 0
	}

	cachedSet := make(map[string]bool, len(cachedTokens))
	for _, tok := range cachedTokens {
		cachedSet[tok] = true
	}

	shared := 0
	seen := make(map[string]bool, len(queryTokens))
	for _, tok := range queryTokens {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		if cachedSet[tok] {
			shared++
		}
	}

	larger := len(queryTokens)
	if len(cachedTokens) > larger {
		larger = len(cachedTokens)
	}
	return float64(shared) / float64(larger)
}

// significantTokens returns tokens longer than three characters.
func significantTokens(normalized string) []string {
	var tokens []string
	for _, tok := range strings.Fields(normalized) {
		if len(tok) > 3 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// ageFactor discounts older entries linearly toward a floor of 0.5 at
// one week and beyond.
func ageFactor(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1.0
	}
	factor := 1.0 - age.Hours()/ageDecayWindow.Hours()
	if factor < minAgeFactor {
		return minAgeFactor
	}
	return factor
}
