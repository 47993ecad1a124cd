// Package store holds the application-level state containers that sit
// between the HTTP handlers and the remote service: the per-viewer follow
// set, the per-item engagement flow, and session handling. The stores
// flip local state optimistically, fan the change out through the cache
// manager, issue the remote mutation, and revert everything on failure.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"platefull.com/project-platefull/cache"
	"platefull.com/project-platefull/models"
	"platefull.com/project-platefull/optimistic"
)

// DefaultDebounce is the window within which repeated follow/unfollow
// actions on the same target are dropped.
const DefaultDebounce = time.Second

// ErrDebounced is returned when an action repeats inside the debounce
// window. The first action's outcome stands; the caller shows no error.
var ErrDebounced = errors.New("store: action debounced")

// FollowBackend is the slice of the remote client the follow store needs.
type FollowBackend interface {
	InsertFollow(ctx context.Context, viewerID, targetID int) (string, error)
	DeleteFollow(ctx context.Context, viewerID, targetID int) error
	FollowedIDs(ctx context.Context, viewerID int) ([]int, error)
}

// FollowStore keeps the viewer's followed-user ids in memory as the fast
// path for is_following checks, loaded once per session and mutated
// optimistically. The set should match the remote followers table for
// this viewer, eventually; a failed mutation reverts the local flip and
// the cache fan-out together.
type FollowStore struct {
	viewerID int
	backend  FollowBackend
	manager  *cache.Manager
	ledger   *optimistic.Ledger

	mu         sync.Mutex
	set        map[int]struct{}
	loaded     bool
	lastAction map[int]time.Time
	debounce   time.Duration
}

// FollowOption configures a FollowStore.
type FollowOption func(*FollowStore)

// WithDebounce overrides the repeat-action window.
func WithDebounce(d time.Duration) FollowOption {
	return func(s *FollowStore) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// NewFollowStore returns an unloaded follow store for viewerID.
func NewFollowStore(viewerID int, backend FollowBackend, manager *cache.Manager, ledger *optimistic.Ledger, opts ...FollowOption) *FollowStore {
	s := &FollowStore{
		viewerID:   viewerID,
		backend:    backend,
		manager:    manager,
		ledger:     ledger,
		set:        make(map[int]struct{}),
		lastAction: make(map[int]time.Time),
		debounce:   DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh loads the follow set from the remote, replacing local state.
func (s *FollowStore) Refresh(ctx context.Context) error {
	ids, err := s.backend.FollowedIDs(ctx, s.viewerID)
	if err != nil {
		return fmt.Errorf("loading follow set: %w", err)
	}
	s.mu.Lock()
	s.set = make(map[int]struct{}, len(ids))
	for _, id := range ids {
		s.set[id] = struct{}{}
	}
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// EnsureLoaded refreshes the set if it has not been loaded this session.
func (s *FollowStore) EnsureLoaded(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return nil
	}
	return s.Refresh(ctx)
}

// IsFollowing reports whether the viewer follows targetID, from the
// in-memory set.
func (s *FollowStore) IsFollowing(targetID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[targetID]
	return ok
}

// FollowedIDs returns a copy of the in-memory set.
func (s *FollowStore) FollowedIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.set))
	for id := range s.set {
		ids = append(ids, id)
	}
	return ids
}

// Follow optimistically follows targetID and returns the relationship
// status reported by the remote: accepted, or pending for a private
// account. A pending result reverts the optimistic flip (the viewer is
// not following yet) without reporting an error.
func (s *FollowStore) Follow(ctx context.Context, targetID int) (string, error) {
	if err := s.debounceCheck(targetID); err != nil {
		return "", err
	}
	s.mu.Lock()
	if _, already := s.set[targetID]; already {
		s.mu.Unlock()
		return models.FollowStatusAccepted, nil
	}
	s.set[targetID] = struct{}{}
	s.mu.Unlock()

	undoCache := s.manager.ApplyFollowChange(s.viewerID, targetID, true)
	handle, err := s.ledger.Register(uuid.NewString(), followPayload{Target: targetID, Follow: true}, func() {
		s.drop(targetID)
		undoCache()
	})
	if err != nil {
		s.drop(targetID)
		undoCache()
		return "", err
	}

	status, err := s.backend.InsertFollow(ctx, s.viewerID, targetID)
	if err != nil {
		s.ledger.Rollback(handle.ID())
		return "", err
	}
	if handle.Cancelled() {
		// Auto-reverted before the remote answered. The remote write
		// stood, so the set stays reverted until the next refresh;
		// re-applying here would resurrect state the user saw undone.
		return status, nil
	}
	if status != models.FollowStatusAccepted {
		s.ledger.Rollback(handle.ID())
		return status, nil
	}
	s.ledger.Confirm(handle.ID())
	return status, nil
}

// Unfollow optimistically unfollows targetID.
func (s *FollowStore) Unfollow(ctx context.Context, targetID int) error {
	if err := s.debounceCheck(targetID); err != nil {
		return err
	}
	s.mu.Lock()
	if _, following := s.set[targetID]; !following {
		s.mu.Unlock()
		return nil
	}
	delete(s.set, targetID)
	s.mu.Unlock()

	undoCache := s.manager.ApplyFollowChange(s.viewerID, targetID, false)
	handle, err := s.ledger.Register(uuid.NewString(), followPayload{Target: targetID, Follow: false}, func() {
		s.add(targetID)
		undoCache()
	})
	if err != nil {
		s.add(targetID)
		undoCache()
		return err
	}

	if err := s.backend.DeleteFollow(ctx, s.viewerID, targetID); err != nil {
		s.ledger.Rollback(handle.ID())
		return err
	}
	if handle.Cancelled() {
		return nil
	}
	s.ledger.Confirm(handle.ID())
	return nil
}

func (s *FollowStore) debounceCheck(targetID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if last, ok := s.lastAction[targetID]; ok && s.debounce > 0 && now.Sub(last) < s.debounce {
		return ErrDebounced
	}
	s.lastAction[targetID] = now
	return nil
}

func (s *FollowStore) add(targetID int) {
	s.mu.Lock()
	s.set[targetID] = struct{}{}
	s.mu.Unlock()
}

func (s *FollowStore) drop(targetID int) {
	s.mu.Lock()
	delete(s.set, targetID)
	s.mu.Unlock()
}

type followPayload struct {
	Target int
	Follow bool
}
