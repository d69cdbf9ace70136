package entities

import (
	"fmt"
	"sync"
)

// LoaderFunc materializes one catalog revision, typically from the store.
type LoaderFunc func(revision int) (*Entities, error)

// RevisionCache keeps a bounded number of catalog revisions in memory.
// Construct one per process and pass it by reference; there is no package
// level instance.
type RevisionCache struct {
	mu      sync.Mutex
	max     int
	load    LoaderFunc
	entries map[int]*Entities
	order   []int // insertion order, oldest first
}

func NewRevisionCache(max int, load LoaderFunc) *RevisionCache {
	if max <= 0 {
		max = 4
	}
	return &RevisionCache{
		max:     max,
		load:    load,
		entries: map[int]*Entities{},
	}
}

// Get returns the catalog for revision, loading it on a miss.
func (c *RevisionCache) Get(revision int) (*Entities, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[revision]; ok {
		return e, nil
	}
	if c.load == nil {
		return nil, fmt.Errorf("revision %d not cached and no loader configured", revision)
	}
	e, err := c.load(revision)
	if err != nil {
		return nil, fmt.Errorf("load entities revision %d: %w", revision, err)
	}
	c.put(revision, e)
	return e, nil
}

// Put inserts a freshly imported revision, evicting the oldest entry when full.
func (c *RevisionCache) Put(revision int, e *Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(revision, e)
}

func (c *RevisionCache) put(revision int, e *Entities) {
	if _, ok := c.entries[revision]; ok {
		c.entries[revision] = e
		return
	}
	for len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[revision] = e
	c.order = append(c.order, revision)
}

// Len reports how many revisions are currently cached.
func (c *RevisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
