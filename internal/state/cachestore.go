package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lexflow/lexflow/pkg/models"
)

// ErrCacheEntryNotFound indicates no matching cache entry exists.
var ErrCacheEntryNotFound = errors.New("cache entry not found")

const cacheEntryColumns = `id, matter_id, agent_type, result_type, title, summary,
	content_hash, result, confidence, source_count, query, created_at,
	expires_at, usage_count, last_used_at`

// InsertCacheEntry stores a new cache entry. Multiple entries may exist
// for the same (content hash, matter) pair over time; lookup selects the
// most recent non-expired one.
func (db *DB) InsertCacheEntry(e *models.CacheEntry) error {
	_, err := db.Exec(`
		INSERT INTO cache_entries (`+cacheEntryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		nullableString(e.MatterID),
		string(e.AgentType),
		e.ResultType,
		nullableString(e.Title),
		nullableString(e.Summary),
		e.ContentHash,
		string(e.Result),
		e.Confidence,
		e.SourceCount,
		e.Query,
		formatTime(e.CreatedAt),
		formatTime(e.ExpiresAt),
		e.UsageCount,
		nullableTimeArg(e.LastUsedAt),
	)
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

// FindCacheEntry returns the newest non-expired entry matching the content
// hash in either the given matter or the global scope.
// Returns ErrCacheEntryNotFound when nothing matches.
func (db *DB) FindCacheEntry(contentHash, matterID string, now time.Time) (*models.CacheEntry, error) {
	var row *sql.Row
	if matterID == "" {
		row = db.QueryRow(`
			SELECT `+cacheEntryColumns+`
			FROM cache_entries
			WHERE content_hash = ? AND matter_id IS NULL AND expires_at > ?
			ORDER BY created_at DESC LIMIT 1
		`, contentHash, formatTime(now))
	} else {
		row = db.QueryRow(`
			SELECT `+cacheEntryColumns+`
			FROM cache_entries
			WHERE content_hash = ? AND (matter_id = ? OR matter_id IS NULL) AND expires_at > ?
			ORDER BY created_at DESC LIMIT 1
		`, contentHash, matterID, formatTime(now))
	}

	e, err := scanCacheEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find cache entry: %w", err)
	}
	return e, nil
}

// TouchCacheEntry increments an entry's usage counter and bumps its
// last-used timestamp. Duplicate increments under concurrent readers are
// acceptable; this is bookkeeping, not a correctness property.
func (db *DB) TouchCacheEntry(id string, now time.Time) error {
	_, err := db.Exec(`
		UPDATE cache_entries
		SET usage_count = usage_count + 1, last_used_at = ?
		WHERE id = ?
	`, formatTime(now), id)
	if err != nil {
		return fmt.Errorf("touch cache entry %s: %w", id, err)
	}
	return nil
}

// ListCacheCandidates returns every non-expired entry visible to a matter
// (its own entries plus global ones), newest first. Used for relevance
// ranking against a new query.
func (db *DB) ListCacheCandidates(matterID string, now time.Time) ([]models.CacheEntry, error) {
	var rows *sql.Rows
	var err error
	if matterID == "" {
		rows, err = db.Query(`
			SELECT `+cacheEntryColumns+`
			FROM cache_entries
			WHERE matter_id IS NULL AND expires_at > ?
			ORDER BY created_at DESC
		`, formatTime(now))
	} else {
		rows, err = db.Query(`
			SELECT `+cacheEntryColumns+`
			FROM cache_entries
			WHERE (matter_id = ? OR matter_id IS NULL) AND expires_at > ?
			ORDER BY created_at DESC
		`, matterID, formatTime(now))
	}
	if err != nil {
		return nil, fmt.Errorf("list cache candidates: %w", err)
	}
	defer rows.Close()

	var entries []models.CacheEntry
	for rows.Next() {
		e, err := scanCacheEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// DeleteExpiredCacheEntries removes every entry past expiry. When matterID
// is non-empty only that matter is swept; otherwise the sweep is global.
// This is the only path that removes cache entries.
func (db *DB) DeleteExpiredCacheEntries(matterID string, now time.Time) (int64, error) {
	var result sql.Result
	var err error
	if matterID == "" {
		result, err = db.Exec(`DELETE FROM cache_entries WHERE expires_at <= ?`, formatTime(now))
	} else {
		result, err = db.Exec(`DELETE FROM cache_entries WHERE matter_id = ? AND expires_at <= ?`,
			matterID, formatTime(now))
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

// CountCacheEntries returns total and expired entry counts.
func (db *DB) CountCacheEntries(now time.Time) (total, expired int64, err error) {
	row := db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)
		FROM cache_entries
	`, formatTime(now))
	if err := row.Scan(&total, &expired); err != nil {
		return 0, 0, fmt.Errorf("count cache entries: %w", err)
	}
	return total, expired, nil
}

func scanCacheEntry(row rowScanner) (*models.CacheEntry, error) {
	var e models.CacheEntry
	var matterID, title, summary sql.NullString
	var agentType, result, createdAt, expiresAt string
	var lastUsed sql.NullString

	err := row.Scan(&e.ID, &matterID, &agentType, &e.ResultType, &title, &summary,
		&e.ContentHash, &result, &e.Confidence, &e.SourceCount, &e.Query,
		&createdAt, &expiresAt, &e.UsageCount, &lastUsed)
	if err != nil {
		return nil, err
	}

	e.MatterID = matterID.String
	e.AgentType = models.AgentType(agentType)
	e.Title = title.String
	e.Summary = summary.String
	e.Result = json.RawMessage(result)

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	e.CreatedAt = created

	expires, err := parseTime(expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	e.ExpiresAt = expires
	e.LastUsedAt = parseNullableTime(lastUsed)

	return &e, nil
}
