// Package cache implements the request-level result cache. Results are
// persisted in the state store with a time-to-live and fronted by an
// in-memory LRU; writes are best-effort and never fail the caller.
package cache

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lexflow/lexflow/internal/state"
	"github.com/lexflow/lexflow/pkg/models"
)

// DefaultTTL is how long a stored result stays valid unless the result
// specifies an override.
const DefaultTTL = 24 * time.Hour

// defaultLRUSize bounds the in-memory front. Entries evicted here are
// still served from the store.
const defaultLRUSize = 512

// Cache is the result cache over a persistent store with an LRU front.
type Cache struct {
	store state.CacheStore
	hot   *lru.Cache[string, models.CacheEntry]
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default entry time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a result cache backed by the given store.
func New(store state.CacheStore, opts ...Option) *Cache {
	hot, _ := lru.New[string, models.CacheEntry](defaultLRUSize)
	c := &Cache{
		store: store,
		hot:   hot,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// hotKey scopes the LRU key by matter so a matter-scoped entry is never
// served to another matter from the front.
func hotKey(contentHash, matterID string) string {
	return matterID + "|" + contentHash
}

// Lookup returns the newest non-expired cached result for the exact
// query/params pair, visible to the given matter (its own scope or the
// global one). A hit increments the entry's usage counter. Store errors
// are logged and reported as a miss; the cache never fails its caller.
func (c *Cache) Lookup(matterID, query string, params map[string]any) (*models.CacheEntry, bool) {
	now := c.now()
	hash := ContentHash(query, params)

	if entry, ok := c.hot.Get(hotKey(hash, matterID)); ok {
		// Expiry must be re-checked: the LRU does not sweep.
		if !entry.Expired(now) {
			c.touch(&entry, now)
			c.hot.Add(hotKey(hash, matterID), entry)
			return &entry, true
		}
		c.hot.Remove(hotKey(hash, matterID))
	}

	entry, err := c.store.FindCacheEntry(hash, matterID, now)
	if err != nil {
		if err != state.ErrCacheEntryNotFound {
			log.Printf("[cache] lookup failed, treating as miss: %v", err)
		}
		return nil, false
	}

	c.touch(entry, now)
	c.hot.Add(hotKey(hash, matterID), *entry)
	return entry, true
}

// touch updates usage bookkeeping. Read-then-write; duplicate increments
// under concurrent readers are acceptable.
func (c *Cache) touch(entry *models.CacheEntry, now time.Time) {
	entry.UsageCount++
	entry.LastUsedAt = &now
	if err := c.store.TouchCacheEntry(entry.ID, now); err != nil {
		log.Printf("[cache] usage bookkeeping failed for %s: %v", entry.ID, err)
	}
}

// Rank scores every cache entry visible to the matter against the query,
// sorted by descending relevance. Callers apply their own threshold
// (DefaultRelevanceThreshold unless configured otherwise).
func (c *Cache) Rank(matterID, query string) []Scored {
	now := c.now()
	candidates, err := c.store.ListCacheCandidates(matterID, now)
	if err != nil {
		log.Printf("[cache] candidate listing failed, treating as empty: %v", err)
		return nil
	}
	return Rank(candidates, query, now)
}

// Similar is the fuzzy lookup mode: it returns the cached results
// scoring at or above the threshold against the query, most relevant
// first. A threshold of zero or below falls back to
// DefaultRelevanceThreshold.
func (c *Cache) Similar(matterID, query string, threshold float64) []Scored {
	if threshold <= 0 {
		threshold = DefaultRelevanceThreshold
	}

	var hits []Scored
	for _, s := range c.Rank(matterID, query) {
		if s.Relevance < threshold {
			// Ranked output is sorted, so everything after is below too.
			break
		}
		hits = append(hits, s)
	}
	return hits
}

// StoreOptions carries optional metadata for a cache write.
type StoreOptions struct {
	// AgentType records which capability produced the result.
	AgentType models.AgentType
	// ResultType tags the kind of result; defaults to "result".
	ResultType string
	// Title is a short label for the result.
	Title string
	// Summary is a one-paragraph summary.
	Summary string
	// Confidence is the producing agent's confidence; defaults to 1.0.
	Confidence float64
	// SourceCount is the number of sources behind the result.
	SourceCount int
	// TTL overrides the cache's default time-to-live.
	TTL time.Duration
}

// Store writes a result to the cache. Writes are fire-and-forget: any
// failure is logged and swallowed so a cache problem never fails the
// originating agent call.
func (c *Cache) Store(matterID, query string, result json.RawMessage, params map[string]any, opts StoreOptions) {
	now := c.now()

	ttl := c.ttl
	if opts.TTL > 0 {
		ttl = opts.TTL
	}
	resultType := opts.ResultType
	if resultType == "" {
		resultType = "result"
	}
	confidence := opts.Confidence
	if confidence <= 0 {
		confidence = 1.0
	}

	hash := ContentHash(query, params)
	entry := models.CacheEntry{
		ID:          uuid.New().String(),
		MatterID:    matterID,
		AgentType:   opts.AgentType,
		ResultType:  resultType,
		Title:       opts.Title,
		Summary:     opts.Summary,
		ContentHash: hash,
		Result:      result,
		Confidence:  confidence,
		SourceCount: opts.SourceCount,
		Query:       query,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	if err := c.store.InsertCacheEntry(&entry); err != nil {
		log.Printf("[cache] store failed for query %q: %v", query, err)
		return
	}
	c.hot.Add(hotKey(hash, matterID), entry)
}

// Evict deletes every expired entry for a matter, or globally when the
// matter ID is empty. This sweep is the only path that removes entries.
func (c *Cache) Evict(matterID string) (int64, error) {
	count, err := c.store.DeleteExpiredCacheEntries(matterID, c.now())
	if err != nil {
		return 0, err
	}
	// The front may still hold swept entries; expiry is re-checked on
	// every read, so a full purge is just hygiene.
	c.hot.Purge()
	return count, nil
}

// Stats reports total and expired entry counts.
func (c *Cache) Stats() (total, expired int64, err error) {
	return c.store.CountCacheEntries(c.now())
}
