package chschema

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Resolver fetches a table's column list, typically by issuing DESCRIBE
// TABLE through the HTTP Request Engine. The cache has no transport
// dependency of its own; the caller supplies this function.
type Resolver func(ctx context.Context, endpoint, table string) (*TableSchema, error)

// key is the (endpoint, table) pair used for cache indexing. Both strings
// are used exactly as given; the table name is not normalized, so "events"
// and "default.events" are distinct keys.
type key struct {
	endpoint string
	table    string
}

// Cache maps (endpoint, table) to a resolved TableSchema, with at most one
// in-flight resolution per key: concurrent callers for the same key await
// the first resolution rather than issuing redundant DESCRIBE TABLE calls.
// A failed resolution is never cached. The cache is size-unbounded, indexed
// by the (endpoint, table) strings as the caller passes them.
type Cache struct {
	resolve Resolver

	mu      sync.RWMutex
	entries map[key]*TableSchema

	group singleflight.Group
}

// NewCache builds a Cache that resolves misses via fn.
func NewCache(fn Resolver) *Cache {
	return &Cache{resolve: fn, entries: make(map[key]*TableSchema)}
}

// Resolve returns the cached schema for (endpoint, table), resolving it on
// first reference.
func (c *Cache) Resolve(ctx context.Context, endpoint, table string) (*TableSchema, error) {
	k := key{endpoint: endpoint, table: table}

	c.mu.RLock()
	if s, ok := c.entries[k]; ok {
		c.mu.RUnlock()
		return s, nil
	}
	c.mu.RUnlock()

	sfKey := endpoint + "\x00" + table
	v, err, _ := c.group.Do(sfKey, func() (interface{}, error) {
		// Re-check under the singleflight key: another caller may have
		// populated the entry while we were queued behind the RLock above.
		c.mu.RLock()
		if s, ok := c.entries[k]; ok {
			c.mu.RUnlock()
			return s, nil
		}
		c.mu.RUnlock()

		s, err := c.resolve(ctx, endpoint, table)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[k] = s
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TableSchema), nil
}

// Invalidate evicts the cached schema for (endpoint, table), if present.
// Called explicitly by a caller, or internally on a server error signaling
// schema drift (e.g. UNKNOWN_IDENTIFIER).
func (c *Cache) Invalidate(endpoint, table string) {
	c.mu.Lock()
	delete(c.entries, key{endpoint: endpoint, table: table})
	c.mu.Unlock()
}

// Clear evicts every cached schema.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[key]*TableSchema)
	c.mu.Unlock()
}
