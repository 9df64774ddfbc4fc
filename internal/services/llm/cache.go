package llm

import (
	"context"
	"log"
	"sync"
	"time"
)

// CacheManager tracks episode-scoped provider cache entries with TTLs. When
// an entry expires the next request transparently recreates it.
type CacheManager struct {
	client  Client
	ttl     time.Duration
	minSize int
	usage   UsageRecorder

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	id        string
	expiresAt time.Time
}

// NewCacheManager creates a cache manager over a client. The usage recorder
// is optional.
func NewCacheManager(client Client, ttl time.Duration, minSize int, usage UsageRecorder) *CacheManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CacheManager{
		client:  client,
		ttl:     ttl,
		minSize: minSize,
		usage:   usage,
		entries: make(map[string]cacheEntry),
	}
}

// CachedContentID returns the provider cache ID for an episode transcript,
// creating it when the transcript is large enough to benefit. An empty
// return means the caller should send the transcript inline.
func (c *CacheManager) CachedContentID(ctx context.Context, podcastID, episodeID, model, transcript string) string {
	if len(transcript) < c.minSize {
		return ""
	}

	c.mu.Lock()
	entry, ok := c.entries[episodeID]
	hit := ok && time.Now().Before(entry.expiresAt)
	c.mu.Unlock()
	if c.usage != nil {
		c.usage.RecordCacheAttempt(podcastID, hit)
	}
	if hit {
		return entry.id
	}

	id, err := c.client.CreateCache(ctx, model, transcript, c.ttl)
	if err != nil {
		log.Printf("[DEBUG] Prompt cache creation failed, sending inline: %v", err)
		return ""
	}

	c.mu.Lock()
	c.entries[episodeID] = cacheEntry{id: id, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	log.Printf("[DEBUG] Created prompt cache %s for episode %s (%d bytes)", id, episodeID, len(transcript))
	return id
}

// Forget drops the entry for an episode
func (c *CacheManager) Forget(episodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, episodeID)
}
