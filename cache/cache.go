package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/webshot/models"
)

// entry holds a successful capture with its creation timestamp.
type entry struct {
	result    models.CaptureResult
	createdAt time.Time
}

// Cache is an in-memory index of recent successful captures, so that a
// client asking for the same page again within max_age gets the existing
// file instead of a new browser run. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time
}

// New creates a Cache holding at most maxEntries results. A background
// goroutine evicts entries older than one hour every five minutes.
func New(maxEntries int) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}

	go c.cleanupLoop()
	return c
}

// Key identifies captures that would produce the same picture.
func Key(req *models.CaptureRequest) string {
	h := sha256.New()
	h.Write([]byte(models.NormalizeURL(req.URL)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(req.IsFullPage())))
	h.Write([]byte("|"))
	h.Write([]byte(req.WindowSize.String()))
	h.Write([]byte("|"))
	h.Write([]byte(req.OutputFolder))
	h.Write([]byte("|"))
	h.Write([]byte(req.FilePrefix))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached result for key if it is younger than
// maxAgeMs milliseconds and its file is still on disk. A vanished file drops
// the entry.
func (c *Cache) Get(key string, maxAgeMs int) (*models.CaptureResult, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}

	if e.result.File != nil {
		if _, err := os.Stat(e.result.File.Path); err != nil {
			c.mu.Lock()
			delete(c.store, key)
			c.mu.Unlock()
			return nil, false
		}
	}

	res := e.result
	return &res, true
}

// Set stores a successful result. Failures are ignored. If the cache is at
// capacity, an arbitrary entry is evicted to make room.
func (c *Cache) Set(key string, res *models.CaptureResult) {
	if res == nil || !res.Success {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		result:    *res,
		createdAt: c.now(),
	}
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// cleanupLoop evicts entries older than 1 hour every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := c.now().Add(-1 * time.Hour)
		c.mu.Lock()
		for k, e := range c.store {
			if e.createdAt.Before(cutoff) {
				delete(c.store, k)
			}
		}
		c.mu.Unlock()
	}
}
