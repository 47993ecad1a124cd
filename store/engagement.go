package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"platefull.com/project-platefull/cache"
	"platefull.com/project-platefull/models"
	"platefull.com/project-platefull/optimistic"
	"platefull.com/project-platefull/syncutil"
)

// commentKeyPrefixLen is how much of the comment text goes into the
// dedup key; identical rapid submissions collapse to one remote call.
const commentKeyPrefixLen = 32

// EngagementBackend is the slice of the remote client the engagement
// store needs.
type EngagementBackend interface {
	InsertLike(ctx context.Context, viewerID, itemID int) error
	DeleteLike(ctx context.Context, viewerID, itemID int) error
	InsertComment(ctx context.Context, viewerID, itemID int, text string) (models.Comment, error)
	DeleteComment(ctx context.Context, viewerID, commentID int) (int, error)
}

// EngagementStore runs the optimistic like and comment flows. Like
// toggles for the same (viewer, item) pair are serialized through a keyed
// mutex so a rapid double tap resolves in submission order; comment
// submissions with the same content collapse through the deduplicator.
type EngagementStore struct {
	backend EngagementBackend
	manager *cache.Manager
	ledger  *optimistic.Ledger
	locks   *syncutil.KeyedMutex
	dedup   *syncutil.Deduplicator
}

// NewEngagementStore wires the engagement flows.
func NewEngagementStore(backend EngagementBackend, manager *cache.Manager, ledger *optimistic.Ledger) *EngagementStore {
	return &EngagementStore{
		backend: backend,
		manager: manager,
		ledger:  ledger,
		locks:   syncutil.NewKeyedMutex(),
		dedup:   syncutil.NewDeduplicator(),
	}
}

// SetLike sets the viewer's like state for itemID to liked. The flip is
// applied to every cache partition immediately; the remote call follows,
// and a failure reverts all of it. Returns the resulting like state.
func (s *EngagementStore) SetLike(ctx context.Context, viewer models.LikerEntry, itemID int, liked bool) (bool, error) {
	result := liked
	key := fmt.Sprintf("like|%d|%d", itemID, viewer.UserID)
	err := s.locks.WithLock(ctx, key, func() error {
		// The skip must read the acting viewer's own copy; another
		// viewer's is_liked flag says nothing about this one.
		if current, ok := s.manager.SnapshotFor(viewer.UserID, itemID); ok && current.IsLiked == liked {
			result = liked
			return nil
		}

		delta := 1
		if !liked {
			delta = -1
		}
		undo := s.manager.ApplyLikeDelta(viewer.UserID, itemID, delta, liked, &viewer)
		handle, err := s.ledger.Register(uuid.NewString(), likePayload{ItemID: itemID, Liked: liked}, undo)
		if err != nil {
			undo()
			return err
		}

		if liked {
			err = s.backend.InsertLike(ctx, viewer.UserID, itemID)
		} else {
			err = s.backend.DeleteLike(ctx, viewer.UserID, itemID)
		}
		if err != nil {
			s.ledger.Rollback(handle.ID())
			result = !liked
			return err
		}
		if handle.Cancelled() {
			// The window elapsed before the remote answered; the
			// optimistic flip was already undone and stays undone.
			result = !liked
			return nil
		}
		s.ledger.Confirm(handle.ID())
		return nil
	})
	return result, err
}

// AddComment submits a comment with an optimistic comments_count bump.
// Concurrent submissions sharing (item, viewer, text prefix) are folded
// into one remote call and all receive the same created comment.
func (s *EngagementStore) AddComment(ctx context.Context, viewerID, itemID int, text string) (models.Comment, error) {
	prefix := text
	if len(prefix) > commentKeyPrefixLen {
		prefix = prefix[:commentKeyPrefixLen]
	}
	key := fmt.Sprintf("comment|%d|%d|%s", itemID, viewerID, prefix)

	v, err := s.dedup.Deduplicate(ctx, key, func() (any, error) {
		undo := s.manager.ApplyCommentDelta(itemID, 1)
		handle, err := s.ledger.Register(uuid.NewString(), commentPayload{ItemID: itemID}, undo)
		if err != nil {
			undo()
			return models.Comment{}, err
		}

		comment, err := s.backend.InsertComment(ctx, viewerID, itemID, text)
		if err != nil {
			s.ledger.Rollback(handle.ID())
			return models.Comment{}, err
		}
		if handle.Cancelled() {
			return comment, nil
		}
		s.ledger.Confirm(handle.ID())
		return comment, nil
	})
	if err != nil {
		return models.Comment{}, err
	}
	return v.(models.Comment), nil
}

// DeleteComment removes the viewer's comment with an optimistic
// comments_count drop on the item it belongs to.
func (s *EngagementStore) DeleteComment(ctx context.Context, viewerID, commentID, itemID int) error {
	undo := s.manager.ApplyCommentDelta(itemID, -1)
	handle, err := s.ledger.Register(uuid.NewString(), commentPayload{ItemID: itemID}, undo)
	if err != nil {
		undo()
		return err
	}

	if _, err := s.backend.DeleteComment(ctx, viewerID, commentID); err != nil {
		s.ledger.Rollback(handle.ID())
		return err
	}
	if handle.Cancelled() {
		return nil
	}
	s.ledger.Confirm(handle.ID())
	return nil
}

type likePayload struct {
	ItemID int
	Liked  bool
}

type commentPayload struct {
	ItemID int
}
