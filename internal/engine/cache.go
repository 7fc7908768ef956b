package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/runger/capmatch/internal/store"
)

// SessionEntry is one cached run of recommendations for a session.
type SessionEntry struct {
	Recommendations []store.Recommendation
	Timestamp       time.Time
	PromptHash      string
}

// sessionCache keeps the last issued recommendations per session. Entries
// older than the TTL passed to get are treated as absent and lazily
// evicted. Safe for concurrent use.
type sessionCache struct {
	mu      sync.Mutex
	entries map[string]SessionEntry
	nowFunc func() time.Time
}

func newSessionCache() *sessionCache {
	return &sessionCache{
		entries: make(map[string]SessionEntry),
		nowFunc: time.Now,
	}
}

func (c *sessionCache) get(sessionID string, ttl time.Duration) (SessionEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[sessionID]
	if !ok {
		return SessionEntry{}, false
	}
	if c.nowFunc().Sub(entry.Timestamp) >= ttl {
		delete(c.entries, sessionID)
		return SessionEntry{}, false
	}
	return entry, true
}

func (c *sessionCache) set(sessionID string, recs []store.Recommendation, promptHash string) {
	c.mu.Lock()
	c.entries[sessionID] = SessionEntry{
		Recommendations: recs,
		Timestamp:       c.nowFunc(),
		PromptHash:      promptHash,
	}
	c.mu.Unlock()
}

func (c *sessionCache) invalidate(sessionID string) {
	c.mu.Lock()
	delete(c.entries, sessionID)
	c.mu.Unlock()
}

func (c *sessionCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]SessionEntry)
	c.mu.Unlock()
}

func (c *sessionCache) cleanup(ttl time.Duration) int {
	now := c.nowFunc()
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for id, entry := range c.entries {
		if now.Sub(entry.Timestamp) >= ttl {
			delete(c.entries, id)
			dropped++
		}
	}
	return dropped
}

func (c *sessionCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// hashPrompt fingerprints a prompt for cache entries without storing the
// raw text.
func hashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:8])
}
