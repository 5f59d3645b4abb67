package tenancy

import (
	"container/list"
	"sync"
	"time"

	"github.com/hamzazeryouh/RealEstate/internal/model"
)

// recordCache is the directory's in-process cache: identifier-keyed,
// TTL-bounded, LRU-evicted. The per-tenant index makes invalidation
// O(aliases) instead of a full scan. All methods are cheap and never
// perform I/O, so the lock is held only for map and list updates.
type recordCache struct {
	mu       sync.Mutex
	maxSize  int
	ll       *list.List
	items    map[string]*list.Element
	byTenant map[string]map[string]struct{}
}

type cacheEntry struct {
	identifier string
	tenantID   string
	record     *model.Tenant
	expiresAt  time.Time
}

func newRecordCache(maxSize int) *recordCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &recordCache{
		maxSize:  maxSize,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		byTenant: make(map[string]map[string]struct{}),
	}
}

// Get returns a copy of the cached record, expiring stale entries
func (c *recordCache) Get(identifier string) (*model.Tenant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, exists := c.items[identifier]
	if !exists {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeElement(el)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.record.Clone(), true
}

// Set stores a copy of the record under the identifier
func (c *recordCache) Set(identifier string, record *model.Tenant, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, exists := c.items[identifier]; exists {
		c.removeElement(el)
	}

	entry := &cacheEntry{
		identifier: identifier,
		tenantID:   record.ID,
		record:     record.Clone(),
		expiresAt:  time.Now().Add(ttl),
	}
	c.items[identifier] = c.ll.PushFront(entry)

	aliases, exists := c.byTenant[record.ID]
	if !exists {
		aliases = make(map[string]struct{})
		c.byTenant[record.ID] = aliases
	}
	aliases[identifier] = struct{}{}

	for c.ll.Len() > c.maxSize {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}
}

// Remove drops a single identifier
func (c *recordCache) Remove(identifier string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, exists := c.items[identifier]; exists {
		c.removeElement(el)
	}
}

// RemoveTenant drops every identifier cached for the tenant and
// returns how many entries were removed
func (c *recordCache) RemoveTenant(tenantID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	aliases, exists := c.byTenant[tenantID]
	if !exists {
		return 0
	}
	removed := 0
	for identifier := range aliases {
		if el, ok := c.items[identifier]; ok {
			c.removeElement(el)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries
func (c *recordCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// removeElement must be called with the lock held
func (c *recordCache) removeElement(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	c.ll.Remove(el)
	delete(c.items, entry.identifier)

	if aliases, exists := c.byTenant[entry.tenantID]; exists {
		delete(aliases, entry.identifier)
		if len(aliases) == 0 {
			delete(c.byTenant, entry.tenantID)
		}
	}
}
