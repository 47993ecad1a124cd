package cache

import (
	"errors"
	"fmt"

	"platefull.com/project-platefull/broadcast"
	"platefull.com/project-platefull/models"
)

// ErrInvalidThumbnail is returned for a thumbnail index outside the
// item's image list.
var ErrInvalidThumbnail = errors.New("cache: thumbnail index out of range")

// Rollback undoes a fan-out write, restoring the exact pre-mutation value
// of every cached copy the write touched. Calling it more than once is
// harmless; restores are idempotent writes of captured snapshots.
type Rollback func()

// Manager applies a semantic action (like, follow, thumbnail change,
// comment) to every registered cache partition that holds a copy of the
// affected item or author, and hands back the rollback that restores them
// all. It is the only code path that writes item deltas into partitions;
// surfaces fill their own pages but never edit items in place.
//
// Counts and the thumbnail index are viewer-neutral and fan out to every
// cached copy. is_liked and is_following_author are viewer-relative and
// are only rewritten on pages owned by the acting viewer; other viewers'
// copies keep their own flags.
type Manager struct {
	reg *Registry
	bc  *broadcast.Broadcaster
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithBroadcaster makes the manager publish item snapshots under
// "item|<id>" after every fan-out and rollback.
func WithBroadcaster(bc *broadcast.Broadcaster) ManagerOption {
	return func(m *Manager) { m.bc = bc }
}

// NewManager returns a manager over reg.
func NewManager(reg *Registry, opts ...ManagerOption) *Manager {
	m := &Manager{reg: reg}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the manager's partition registry.
func (m *Manager) Registry() *Registry { return m.reg }

// Snapshot returns a cached copy of itemID from any partition, preferring
// the detail partition's copy when present. Only the viewer-neutral
// fields of the result are meaningful; use SnapshotFor when a
// viewer-relative flag is read.
func (m *Manager) Snapshot(itemID int) (models.Item, bool) {
	if p, ok := m.reg.Partition(KindItemDetail); ok {
		if it, ok := p.Item(itemID); ok {
			return it, true
		}
	}
	for _, p := range m.reg.Partitions() {
		if it, ok := p.Item(itemID); ok {
			return it, true
		}
	}
	return models.Item{}, false
}

// SnapshotFor returns a cached copy of itemID from one of viewerID's own
// pages, so its viewer-relative flags are the viewer's.
func (m *Manager) SnapshotFor(viewerID, itemID int) (models.Item, bool) {
	if p, ok := m.reg.Partition(KindItemDetail); ok {
		if it, ok := p.ItemFor(viewerID, itemID); ok {
			return it, true
		}
	}
	for _, p := range m.reg.Partitions() {
		if it, ok := p.ItemFor(viewerID, itemID); ok {
			return it, true
		}
	}
	return models.Item{}, false
}

// ApplyLikeDelta rewrites likes_count on every cached copy of itemID,
// is_liked on viewerID's copies only, and the likers list if one is
// cached and liker is non-nil. delta is +1 or -1; liked is the acting
// viewer's new flag.
func (m *Manager) ApplyLikeDelta(viewerID, itemID, delta int, liked bool, liker *models.LikerEntry) Rollback {
	restores := m.fanOutItem(itemID, func(it *models.Item) {
		it.LikesCount += delta
		if it.LikesCount < 0 {
			it.LikesCount = 0
		}
	})
	for _, p := range m.reg.Partitions() {
		restores = append(restores, p.mutateItemFor(viewerID, itemID, func(it *models.Item) {
			it.IsLiked = liked
		})...)
	}
	if liker != nil {
		restores = append(restores, m.reg.Likers().apply(itemID, delta > 0, *liker)...)
	}
	m.publishItem(itemID)
	return m.rollbackFunc(itemID, restores)
}

// ApplyCommentDelta rewrites comments_count on every cached copy.
func (m *Manager) ApplyCommentDelta(itemID, delta int) Rollback {
	restores := m.fanOutItem(itemID, func(it *models.Item) {
		it.CommentsCount += delta
		if it.CommentsCount < 0 {
			it.CommentsCount = 0
		}
	})
	m.publishItem(itemID)
	return m.rollbackFunc(itemID, restores)
}

// ApplyFollowChange rewrites is_following_author on viewerID's cached
// copies of items authored by authorID. The flag is viewer-relative, so
// other viewers' pages are untouched.
func (m *Manager) ApplyFollowChange(viewerID, authorID int, following bool) Rollback {
	var restores []func()
	for _, p := range m.reg.Partitions() {
		restores = append(restores, p.mutateAuthorFor(viewerID, authorID, func(it *models.Item) {
			it.IsFollowingAuthor = following
		})...)
	}
	m.publishAuthor(authorID, following)
	return func() {
		runRestores(restores)
		m.publishAuthor(authorID, !following)
	}
}

// ApplyThumbnailChange sets thumbnail_index to index on every cached copy
// of itemID. The index is validated against the cached image list before
// any partition is touched; out-of-range indexes are rejected and nothing
// changes. Display order is derived via Item.OrderedImages, so every
// partition keeps the same index.
func (m *Manager) ApplyThumbnailChange(itemID, index int) (Rollback, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThumbnail, index)
	}
	if snap, ok := m.Snapshot(itemID); ok && index >= len(snap.ImageURLs) {
		return nil, fmt.Errorf("%w: %d of %d images", ErrInvalidThumbnail, index, len(snap.ImageURLs))
	}
	restores := m.fanOutItem(itemID, func(it *models.Item) {
		it.ThumbnailIndex = index
	})
	m.publishItem(itemID)
	return m.rollbackFunc(itemID, restores), nil
}

// RemoveItem drops every cached copy of itemID, including its likers
// list. Not optimistic; used after a confirmed delete.
func (m *Manager) RemoveItem(itemID int) {
	for _, p := range m.reg.Partitions() {
		p.Remove(itemID)
	}
	m.reg.Likers().Drop(itemID)
	if m.bc != nil {
		m.bc.Forget(itemKey(itemID))
	}
}

func (m *Manager) fanOutItem(itemID int, fn func(*models.Item)) []func() {
	var restores []func()
	for _, p := range m.reg.Partitions() {
		restores = append(restores, p.mutateItem(itemID, fn)...)
	}
	return restores
}

func (m *Manager) rollbackFunc(itemID int, restores []func()) Rollback {
	return func() {
		runRestores(restores)
		m.publishItem(itemID)
	}
}

func (m *Manager) publishItem(itemID int) {
	if m.bc == nil {
		return
	}
	if snap, ok := m.Snapshot(itemID); ok {
		m.bc.Notify(itemKey(itemID), snap)
	}
}

func (m *Manager) publishAuthor(authorID int, following bool) {
	if m.bc == nil {
		return
	}
	m.bc.Notify(fmt.Sprintf("author|%d|following", authorID), following)
}

func itemKey(itemID int) string {
	return fmt.Sprintf("item|%d", itemID)
}

// runRestores applies restores in reverse so overlapping captures unwind
// in LIFO order.
func runRestores(restores []func()) {
	for i := len(restores) - 1; i >= 0; i-- {
		restores[i]()
	}
}
