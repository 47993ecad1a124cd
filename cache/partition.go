// Package cache holds the in-memory copies of items that back each UI
// surface, and the manager that fans optimistic updates out across them.
//
// Every surface (home feed, profile items, recipe book, item detail,
// likers list) caches its own redundant copy of the items it shows. The
// partitions share no storage; consistency between them is whatever the
// fan-out writes in manager.go maintain.
package cache

import (
	"sync"

	"platefull.com/project-platefull/models"
)

// Kind names a cache partition. Each surface registers exactly one
// partition per kind.
type Kind string

const (
	KindHomeFeed     Kind = "home_feed"
	KindProfileItems Kind = "profile_items"
	KindRecipeBook   Kind = "recipe_book"
	KindItemDetail   Kind = "item_detail"
)

// location addresses one cached copy of an item: the page holding it and
// its position within that page. Positions only change when the whole
// page is replaced via Put, so stored locations stay valid.
type location struct {
	pageKey string
	pos     int
}

// Partition is one independently keyed store of cached items. Pages are
// whole result sets (a feed page, a profile's items, a single-item detail
// "page" of length one). The partition keeps per-item and per-author
// indexes so fan-out writes are direct lookups, not scans.
//
// Pages are shared process-wide but each belongs to the viewer whose
// session filled it; the owner is recorded so viewer-relative fields
// (is_liked, is_following_author) are only ever rewritten on the acting
// viewer's own pages, while counts fan out to every copy.
type Partition struct {
	kind     Kind
	mu       sync.RWMutex
	pages    map[string][]models.Item
	owners   map[string]int
	byItem   map[int][]location
	byAuthor map[int][]location
}

// NewPartition returns an empty partition for the given kind.
func NewPartition(kind Kind) *Partition {
	return &Partition{
		kind:     kind,
		pages:    make(map[string][]models.Item),
		owners:   make(map[string]int),
		byItem:   make(map[int][]location),
		byAuthor: make(map[int][]location),
	}
}

// Kind returns the partition's kind.
func (p *Partition) Kind() Kind { return p.kind }

// Put replaces the page under pageKey with a copy of items, owned by
// viewerID, and reindexes.
func (p *Partition) Put(viewerID int, pageKey string, items []models.Item) {
	copied := make([]models.Item, len(items))
	for i, it := range items {
		copied[i] = it.Clone()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropLocked(pageKey)
	p.pages[pageKey] = copied
	p.owners[pageKey] = viewerID
	for i, it := range copied {
		loc := location{pageKey: pageKey, pos: i}
		p.byItem[it.ID] = append(p.byItem[it.ID], loc)
		p.byAuthor[it.AuthorID] = append(p.byAuthor[it.AuthorID], loc)
	}
}

// Get returns a copy of the page under pageKey.
func (p *Partition) Get(pageKey string) ([]models.Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	page, ok := p.pages[pageKey]
	if !ok {
		return nil, false
	}
	out := make([]models.Item, len(page))
	for i, it := range page {
		out[i] = it.Clone()
	}
	return out, true
}

// Drop removes the page under pageKey.
func (p *Partition) Drop(pageKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropLocked(pageKey)
}

func (p *Partition) dropLocked(pageKey string) {
	page, ok := p.pages[pageKey]
	if !ok {
		return
	}
	for _, it := range page {
		p.byItem[it.ID] = withoutPage(p.byItem[it.ID], pageKey)
		if len(p.byItem[it.ID]) == 0 {
			delete(p.byItem, it.ID)
		}
		p.byAuthor[it.AuthorID] = withoutPage(p.byAuthor[it.AuthorID], pageKey)
		if len(p.byAuthor[it.AuthorID]) == 0 {
			delete(p.byAuthor, it.AuthorID)
		}
	}
	delete(p.pages, pageKey)
	delete(p.owners, pageKey)
}

// Remove deletes every cached copy of itemID by rebuilding the pages that
// contain it. Used when an item is deleted remotely.
func (p *Partition) Remove(itemID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	locs := p.byItem[itemID]
	touched := make(map[string]struct{}, len(locs))
	for _, loc := range locs {
		touched[loc.pageKey] = struct{}{}
	}
	for pageKey := range touched {
		old := p.pages[pageKey]
		owner := p.owners[pageKey]
		kept := make([]models.Item, 0, len(old))
		for _, it := range old {
			if it.ID != itemID {
				kept = append(kept, it)
			}
		}
		p.dropLocked(pageKey)
		p.pages[pageKey] = kept
		p.owners[pageKey] = owner
		for i, it := range kept {
			loc := location{pageKey: pageKey, pos: i}
			p.byItem[it.ID] = append(p.byItem[it.ID], loc)
			p.byAuthor[it.AuthorID] = append(p.byAuthor[it.AuthorID], loc)
		}
	}
}

// Clear drops every page. Coarse invalidation after writes that change
// page membership (item created or deleted).
func (p *Partition) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages = make(map[string][]models.Item)
	p.owners = make(map[string]int)
	p.byItem = make(map[int][]location)
	p.byAuthor = make(map[int][]location)
}

// Item returns a copy of any cached copy of itemID. Viewer-relative
// fields on the result belong to whichever viewer's page it came from;
// callers needing those use ItemFor.
func (p *Partition) Item(itemID int) (models.Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	locs := p.byItem[itemID]
	if len(locs) == 0 {
		return models.Item{}, false
	}
	return p.pages[locs[0].pageKey][locs[0].pos].Clone(), true
}

// ItemFor returns a copy of itemID from one of viewerID's own pages.
func (p *Partition) ItemFor(viewerID, itemID int) (models.Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, loc := range p.byItem[itemID] {
		if p.owners[loc.pageKey] == viewerID {
			return p.pages[loc.pageKey][loc.pos].Clone(), true
		}
	}
	return models.Item{}, false
}

// Pages returns the number of cached pages.
func (p *Partition) Pages() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pages)
}

// mutateItem applies fn to every cached copy of itemID, whoever owns it,
// and returns one restore function per touched copy. Each restore writes
// back the exact pre-mutation value. For viewer-neutral fields only
// (counts, thumbnail index).
func (p *Partition) mutateItem(itemID int, fn func(*models.Item)) []func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mutateLocked(p.byItem[itemID], fn)
}

// mutateItemFor applies fn only to viewerID's own copies of itemID. For
// viewer-relative fields (is_liked).
func (p *Partition) mutateItemFor(viewerID, itemID int, fn func(*models.Item)) []func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mutateLocked(p.ownedLocked(viewerID, p.byItem[itemID]), fn)
}

// mutateAuthorFor applies fn only to viewerID's own copies of items
// authored by authorID. For viewer-relative fields
// (is_following_author).
func (p *Partition) mutateAuthorFor(viewerID, authorID int, fn func(*models.Item)) []func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mutateLocked(p.ownedLocked(viewerID, p.byAuthor[authorID]), fn)
}

func (p *Partition) ownedLocked(viewerID int, locs []location) []location {
	owned := make([]location, 0, len(locs))
	for _, loc := range locs {
		if p.owners[loc.pageKey] == viewerID {
			owned = append(owned, loc)
		}
	}
	return owned
}

func (p *Partition) mutateLocked(locs []location, fn func(*models.Item)) []func() {
	restores := make([]func(), 0, len(locs))
	for _, loc := range locs {
		page := p.pages[loc.pageKey]
		prev := page[loc.pos].Clone()
		fn(&page[loc.pos])
		l := loc
		restores = append(restores, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if page, ok := p.pages[l.pageKey]; ok && l.pos < len(page) && page[l.pos].ID == prev.ID {
				page[l.pos] = prev.Clone()
			}
		})
	}
	return restores
}

func withoutPage(locs []location, pageKey string) []location {
	kept := locs[:0]
	for _, loc := range locs {
		if loc.pageKey != pageKey {
			kept = append(kept, loc)
		}
	}
	return kept
}
