package jsbridge

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/glebarez/sqlite"
)

// ScriptCache is an optional SQLite-backed store for downloaded remote
// scripts, keyed by URL. Entries older than the TTL are evicted on read.
// It caches downloads only; execution state is never persisted.
type ScriptCache struct {
	db  *sql.DB
	ttl time.Duration
}

// OpenScriptCache opens (creating if needed) the cache database at path.
// A ttl of zero disables expiry.
func OpenScriptCache(path string, ttl time.Duration) (*ScriptCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening script cache: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS remote_scripts (
		url TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		fetched_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating script cache schema: %w", err)
	}
	return &ScriptCache{db: db, ttl: ttl}, nil
}

// Get returns the cached body for url, or nil on a miss or an expired
// entry.
func (c *ScriptCache) Get(url string) *string {
	var body string
	var fetchedAt int64
	err := c.db.QueryRow(
		"SELECT body, fetched_at FROM remote_scripts WHERE url = ?", url,
	).Scan(&body, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		log.Printf("jsbridge: reading script cache: %v", err)
		return nil
	}
	if c.ttl > 0 && time.Since(time.Unix(fetchedAt, 0)) > c.ttl {
		if _, err := c.db.Exec("DELETE FROM remote_scripts WHERE url = ?", url); err != nil {
			log.Printf("jsbridge: evicting expired script: %v", err)
		}
		return nil
	}
	return &body
}

// Put stores body under url, replacing any previous entry.
func (c *ScriptCache) Put(url, body string) error {
	_, err := c.db.Exec(
		`INSERT INTO remote_scripts (url, body, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET body = excluded.body, fetched_at = excluded.fetched_at`,
		url, body, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("storing script in cache: %w", err)
	}
	return nil
}

// Purge removes every cached entry.
func (c *ScriptCache) Purge() error {
	if _, err := c.db.Exec("DELETE FROM remote_scripts"); err != nil {
		return fmt.Errorf("purging script cache: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (c *ScriptCache) Close() error {
	return c.db.Close()
}
