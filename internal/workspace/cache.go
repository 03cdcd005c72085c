package workspace

import "sync"

// Cache is the in-memory registry of live workspaces, keyed by session id.
// It is owned by whoever constructs it, never package-global, and is safe
// for concurrent use. Entries are added when a session is created or its
// workspace is rebuilt on demand, and removed on session cleanup.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Workspace
}

// NewCache returns an empty registry.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Workspace)}
}

// Get returns the cached workspace for id, if any.
func (c *Cache) Get(id string) (*Workspace, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ws, ok := c.entries[id]
	return ws, ok
}

// Put registers ws under id, replacing any previous entry.
func (c *Cache) Put(id string, ws *Workspace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = ws
}

// Remove drops the entry for id and returns it, if present. The caller owns
// any cleanup of the returned workspace.
func (c *Cache) Remove(id string) (*Workspace, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ws, ok := c.entries[id]
	if ok {
		delete(c.entries, id)
	}
	return ws, ok
}

// Len returns the number of cached workspaces.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Drain removes and returns every cached workspace. Used at shutdown so the
// manager can clean the survivors in one pass.
func (c *Cache) Drain() []*Workspace {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := make([]*Workspace, 0, len(c.entries))
	for id, ws := range c.entries {
		all = append(all, ws)
		delete(c.entries, id)
	}
	return all
}
