// Package cache implements the Investigation Cache: a fingerprint
// keyed, TTL-expiring store of prior investigation analyses, so
// semantically-equivalent anomalies don't trigger repeated LLM calls.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fractalops/uatu/internal/model"
)

// ttl is the hard cache-entry lifetime; there is no refresh-on-hit
// (spec.md §9 resolves this ambiguity explicitly).
const ttl = time.Hour

// Cache is a fingerprint -> InvestigationCacheEntry store, persisted as
// a single JSON document and guarded by a mutex, grounded byte-for-byte
// in semantics on original_source/uatu/watcher/investigator.py's
// InvestigationCache (MD5(type:message)[:16] key, 1-hour hard TTL,
// count++ on every Set of an existing key and on every Touch'd hit) and
// on melisai's
// output.WriteJSON whole-file-rewrite-under-lock persistence style for
// the on-disk form.
type Cache struct {
	log  *zap.SugaredLogger
	path string

	mu      sync.Mutex
	entries map[string]model.InvestigationCacheEntry
}

// New constructs a Cache persisted at path, loading any existing
// document. A missing or unreadable file yields an empty cache rather
// than an error, per spec.md §4.8.
func New(log *zap.SugaredLogger, path string) *Cache {
	c := &Cache{log: log, path: path, entries: make(map[string]model.InvestigationCacheEntry)}
	c.load()
	return c
}

// Fingerprint computes the stable cache key for an event: the first 16
// hex characters of MD5("{type}:{message}").
func Fingerprint(eventType, message string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s", eventType, message)))
	return hex.EncodeToString(sum[:])[:16]
}

// Get returns the cached entry for event if present and younger than
// the 1-hour TTL, else (zero value, false). A hit does not refresh the
// entry's timestamp.
func (c *Cache) Get(eventType, message string) (model.InvestigationCacheEntry, bool) {
	key := Fingerprint(eventType, message)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return model.InvestigationCacheEntry{}, false
	}
	if time.Since(entry.Timestamp) >= ttl {
		return model.InvestigationCacheEntry{}, false
	}
	return entry, true
}

// Touch records a cache hit for event: Count is incremented and the
// bumped entry is persisted, but Timestamp is left untouched — a hit
// does not refresh the TTL, matching Get's own no-refresh-on-hit
// contract. Returns (zero value, false) if there is no live entry,
// mirroring Get's miss/expired result.
func (c *Cache) Touch(eventType, message string) (model.InvestigationCacheEntry, bool) {
	key := Fingerprint(eventType, message)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok || time.Since(entry.Timestamp) >= ttl {
		c.mu.Unlock()
		return model.InvestigationCacheEntry{}, false
	}
	entry.Count++
	c.entries[key] = entry
	c.mu.Unlock()

	if err := c.save(); err != nil && c.log != nil {
		c.log.Warnw("investigation cache: failed to persist", "error", err)
	}
	return entry, true
}

// Set upserts the analysis for event. On an existing key, Count is
// incremented and Timestamp is refreshed to now (a fresh investigation
// just ran); on a new key, Count starts at 1. The write to disk is
// best-effort: a failure is logged, never returned, per spec.md §4.8.
func (c *Cache) Set(eventType, message, analysis string) model.InvestigationCacheEntry {
	key := Fingerprint(eventType, message)

	c.mu.Lock()
	prior, existed := c.entries[key]
	count := 1
	if existed {
		count = prior.Count + 1
	}
	entry := model.InvestigationCacheEntry{
		Key:          key,
		Timestamp:    time.Now(),
		EventType:    eventType,
		EventMessage: message,
		Analysis:     analysis,
		Count:        count,
	}
	c.entries[key] = entry
	c.mu.Unlock()

	if err := c.save(); err != nil && c.log != nil {
		c.log.Warnw("investigation cache: failed to persist", "error", err)
	}
	return entry
}

func (c *Cache) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	var onDisk map[string]model.InvestigationCacheEntry
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return
	}
	for k, v := range onDisk {
		v.Key = k
		onDisk[k] = v
	}

	c.mu.Lock()
	c.entries = onDisk
	c.mu.Unlock()
}

func (c *Cache) save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("investigation cache: mkdir: %w", err)
	}

	c.mu.Lock()
	snapshot := make(map[string]model.InvestigationCacheEntry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("investigation cache: marshal: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("investigation cache: write: %w", err)
	}
	return os.Rename(tmp, c.path)
}
