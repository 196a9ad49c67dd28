package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// NormalizeQuery canonicalizes a query for hashing and comparison:
// lowercased, trimmed, inner whitespace collapsed.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(query))), " ")
}

// ContentHash computes the cache key for a query plus extra parameters.
// Params are serialized through encoding/json, which emits map keys in
// sorted order, so equal parameter sets hash equally.
func ContentHash(query string, params map[string]any) string {
	h := sha256.New()
	h.Write([]byte(NormalizeQuery(query)))
	if len(params) > 0 {
		h.Write([]byte{'|'})
		serialized, err := json.Marshal(params)
		if err != nil {
			// Unserializable params degrade to the query-only hash.
			serialized = nil
		}
		h.Write(serialized)
	}
	return hex.EncodeToString(h.Sum(nil))
}
