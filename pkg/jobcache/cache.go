// Package jobcache holds the last-fetched recent-jobs list so a fresh mount
// of the recent-jobs view can paint stale-but-instant data before its first
// fetch resolves.
package jobcache

import (
	"sync"

	"github.com/pixeljobs/pixeljobs/pkg/models"
)

// Cache is a process-wide, last-writer-wins holder of the most recent job
// list. It is owned explicitly: the recent poller writes it, initial paints
// read it. There is no invalidation; a newer Put simply replaces the old list.
type Cache struct {
	mu     sync.RWMutex
	jobs   []models.Job
	filled bool
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{}
}

// Shared is the default process-wide instance, mirroring the single
// module-level cache of the web client. Callers that want isolation
// (tests, multiple API origins) construct their own.
var Shared = New()

// Get returns a copy of the cached list and whether anything was ever stored.
func (c *Cache) Get() ([]models.Job, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.filled {
		return nil, false
	}
	out := make([]models.Job, len(c.jobs))
	copy(out, c.jobs)
	return out, true
}

// Put replaces the cached list. Last writer wins.
func (c *Cache) Put(jobs []models.Job) {
	stored := make([]models.Job, len(jobs))
	copy(stored, jobs)

	c.mu.Lock()
	c.jobs = stored
	c.filled = true
	c.mu.Unlock()
}
