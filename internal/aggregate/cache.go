package aggregate

import (
	"sync"

	"github.com/xbeat/certicredia-sub001/internal/domain"
)

// Cache keeps the last computed projections per organization. Entries are
// dropped whenever any assessment record of the organization changes.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	// generation guards against storing a projection computed before an
	// invalidation that raced with it. Entries are never dropped: a reader may
	// still hold an older token. Invalidate only follows a persisted version,
	// so the map is bounded by the organizations that have history.
	generation map[string]uint64
}

type Entry struct {
	Aggregate domain.OrganizationAggregate
	Maturity  domain.MaturityModel
}

func NewCache() *Cache {
	return &Cache{entries: map[string]Entry{}, generation: map[string]uint64{}}
}

func (c *Cache) Get(orgID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[orgID]
	return e, ok
}

// Generation returns a token to pass to Store.
func (c *Cache) Generation(orgID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation[orgID]
}

// Store saves e unless the organization was invalidated after gen was taken.
func (c *Cache) Store(orgID string, gen uint64, e Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation[orgID] != gen {
		return false
	}
	c.entries[orgID] = e
	return true
}

func (c *Cache) Invalidate(orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, orgID)
	c.generation[orgID]++
}
