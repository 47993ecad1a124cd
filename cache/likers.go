package cache

import (
	"sync"

	"platefull.com/project-platefull/models"
)

// LikersCache holds the cached likers list per item. It is a separate
// store rather than a Partition because its rows are users, not items,
// but it participates in the same fan-out: a like add/remove rewrites the
// cached list if one exists.
type LikersCache struct {
	mu    sync.Mutex
	lists map[int][]models.LikerEntry
}

// NewLikersCache returns an empty likers cache.
func NewLikersCache() *LikersCache {
	return &LikersCache{lists: make(map[int][]models.LikerEntry)}
}

// Put replaces the cached likers list for itemID.
func (c *LikersCache) Put(itemID int, entries []models.LikerEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[itemID] = append([]models.LikerEntry(nil), entries...)
}

// Get returns a copy of the cached likers list for itemID.
func (c *LikersCache) Get(itemID int) ([]models.LikerEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.lists[itemID]
	if !ok {
		return nil, false
	}
	return append([]models.LikerEntry(nil), list...), true
}

// Drop removes the cached list for itemID.
func (c *LikersCache) Drop(itemID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lists, itemID)
}

// apply adds or removes liker on itemID's cached list, if one is cached,
// and returns a restore function for the previous list. Newest likers go
// first, matching the remote ordering.
func (c *LikersCache) apply(itemID int, add bool, liker models.LikerEntry) []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.lists[itemID]
	if !ok {
		return nil
	}
	snapshot := append([]models.LikerEntry(nil), prev...)

	if add {
		c.lists[itemID] = append([]models.LikerEntry{liker}, prev...)
	} else {
		kept := make([]models.LikerEntry, 0, len(prev))
		for _, e := range prev {
			if e.UserID != liker.UserID {
				kept = append(kept, e)
			}
		}
		c.lists[itemID] = kept
	}

	return []func(){func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, still := c.lists[itemID]; still {
			c.lists[itemID] = snapshot
		}
	}}
}
