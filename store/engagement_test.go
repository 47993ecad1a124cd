package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platefull.com/project-platefull/cache"
	"platefull.com/project-platefull/models"
	"platefull.com/project-platefull/optimistic"
)

type fakeEngagementBackend struct {
	mu             sync.Mutex
	likeErr        error
	commentErr     error
	delay          time.Duration
	insertLikes    int
	deleteLikes    int
	insertComments int
	deleteComments int
	nextCommentID  int
}

func (f *fakeEngagementBackend) InsertLike(ctx context.Context, viewerID, itemID int) error {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertLikes++
	return f.likeErr
}

func (f *fakeEngagementBackend) DeleteLike(ctx context.Context, viewerID, itemID int) error {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteLikes++
	return f.likeErr
}

func (f *fakeEngagementBackend) InsertComment(ctx context.Context, viewerID, itemID int, text string) (models.Comment, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentErr != nil {
		return models.Comment{}, f.commentErr
	}
	f.insertComments++
	f.nextCommentID++
	return models.Comment{ID: f.nextCommentID, ItemID: itemID, UserID: viewerID, Text: text}, nil
}

func (f *fakeEngagementBackend) DeleteComment(ctx context.Context, viewerID, commentID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentErr != nil {
		return 0, f.commentErr
	}
	f.deleteComments++
	return 1, nil
}

// newEngagementFixture wires a manager over a registry whose detail
// partition holds item 1 with two likes, as a session would after viewing
// the item.
func newEngagementFixture(t *testing.T, backend *fakeEngagementBackend, opts ...optimistic.Option) (*EngagementStore, *cache.Manager) {
	t.Helper()
	reg := cache.NewRegistry()
	for _, kind := range []cache.Kind{cache.KindHomeFeed, cache.KindItemDetail} {
		require.NoError(t, reg.Register(cache.NewPartition(kind)))
	}
	it := models.Item{ID: 1, AuthorID: 10, Type: models.ItemTypeRecipe, LikesCount: 2}
	detail, _ := reg.Partition(cache.KindItemDetail)
	detail.Put(5, "viewer-5|item-1", []models.Item{it})
	feed, _ := reg.Partition(cache.KindHomeFeed)
	feed.Put(5, "viewer-5|page-1", []models.Item{it})

	manager := cache.NewManager(reg)
	ledger := optimistic.NewLedger(opts...)
	return NewEngagementStore(backend, manager, ledger), manager
}

func viewer5() models.LikerEntry {
	return models.LikerEntry{UserID: 5, Username: "sam", DisplayName: "Sam"}
}

func TestSetLikeSuccess(t *testing.T) {
	backend := &fakeEngagementBackend{}
	store, manager := newEngagementFixture(t, backend)

	liked, err := store.SetLike(context.Background(), viewer5(), 1, true)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 1, backend.insertLikes)

	snap, ok := manager.Snapshot(1)
	require.True(t, ok)
	assert.Equal(t, 3, snap.LikesCount)
	assert.True(t, snap.IsLiked)
}

func TestSetLikeFailureRevertsCache(t *testing.T) {
	backend := &fakeEngagementBackend{likeErr: errors.New("remote down")}
	store, manager := newEngagementFixture(t, backend)

	liked, err := store.SetLike(context.Background(), viewer5(), 1, true)
	require.Error(t, err)
	assert.False(t, liked, "failed like reported as applied")

	snap, _ := manager.Snapshot(1)
	assert.Equal(t, 2, snap.LikesCount)
	assert.False(t, snap.IsLiked)
}

func TestSetLikeSkipsWhenStateMatches(t *testing.T) {
	backend := &fakeEngagementBackend{}
	store, _ := newEngagementFixture(t, backend)

	liked, err := store.SetLike(context.Background(), viewer5(), 1, false)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Zero(t, backend.insertLikes)
	assert.Zero(t, backend.deleteLikes, "redundant unlike reached the remote")
}

func TestSetLikeAutoRevertBeforeRemoteAnswers(t *testing.T) {
	backend := &fakeEngagementBackend{delay: 80 * time.Millisecond}
	store, manager := newEngagementFixture(t, backend,
		optimistic.WithAutoRevertAfter(15*time.Millisecond))

	liked, err := store.SetLike(context.Background(), viewer5(), 1, true)
	require.NoError(t, err)
	assert.False(t, liked, "auto-reverted like reported as applied")

	// The flip stays reverted; the late success must not resurrect it.
	snap, _ := manager.Snapshot(1)
	assert.Equal(t, 2, snap.LikesCount)
	assert.False(t, snap.IsLiked)
}

func TestSetLikeRapidToggleResolvesInOrder(t *testing.T) {
	backend := &fakeEngagementBackend{delay: 5 * time.Millisecond}
	store, manager := newEngagementFixture(t, backend)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		store.SetLike(context.Background(), viewer5(), 1, true)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(time.Millisecond)
		store.SetLike(context.Background(), viewer5(), 1, false)
	}()
	wg.Wait()

	// Whatever interleaving happened, the cached count is consistent
	// with the cached flag.
	snap, _ := manager.Snapshot(1)
	if snap.IsLiked {
		assert.Equal(t, 3, snap.LikesCount)
	} else {
		assert.Equal(t, 2, snap.LikesCount)
	}
}

func TestSetLikeSkipReadsActingViewersOwnCopy(t *testing.T) {
	backend := &fakeEngagementBackend{}
	reg := cache.NewRegistry()
	require.NoError(t, reg.Register(cache.NewPartition(cache.KindItemDetail)))
	detail, _ := reg.Partition(cache.KindItemDetail)

	// Viewer 5 already likes the item; viewer 7 does not.
	mine := models.Item{ID: 1, AuthorID: 10, Type: models.ItemTypeRecipe, LikesCount: 2, IsLiked: true}
	detail.Put(5, "viewer-5|item-1", []models.Item{mine})
	detail.Put(7, "viewer-7|item-1", []models.Item{
		{ID: 1, AuthorID: 10, Type: models.ItemTypeRecipe, LikesCount: 2},
	})

	manager := cache.NewManager(reg)
	store := NewEngagementStore(backend, manager, optimistic.NewLedger())

	viewer7 := models.LikerEntry{UserID: 7, Username: "kim", DisplayName: "Kim"}
	liked, err := store.SetLike(context.Background(), viewer7, 1, true)
	require.NoError(t, err)
	assert.True(t, liked, "first like dropped because another viewer's copy was already liked")
	assert.Equal(t, 1, backend.insertLikes)

	snap, ok := manager.SnapshotFor(7, 1)
	require.True(t, ok)
	assert.Equal(t, 3, snap.LikesCount)
	assert.True(t, snap.IsLiked)

	// Viewer 5's copy picks up the count but keeps its own flag.
	other, ok := manager.SnapshotFor(5, 1)
	require.True(t, ok)
	assert.Equal(t, 3, other.LikesCount)
	assert.True(t, other.IsLiked)
}

func TestAddCommentSuccess(t *testing.T) {
	backend := &fakeEngagementBackend{}
	store, manager := newEngagementFixture(t, backend)

	comment, err := store.AddComment(context.Background(), 5, 1, "looks great")
	require.NoError(t, err)
	assert.Equal(t, "looks great", comment.Text)

	snap, _ := manager.Snapshot(1)
	assert.Equal(t, 1, snap.CommentsCount)
}

func TestAddCommentFailureRevertsCount(t *testing.T) {
	backend := &fakeEngagementBackend{commentErr: errors.New("remote down")}
	store, manager := newEngagementFixture(t, backend)

	_, err := store.AddComment(context.Background(), 5, 1, "looks great")
	require.Error(t, err)

	snap, _ := manager.Snapshot(1)
	assert.Equal(t, 0, snap.CommentsCount)
}

func TestAddCommentDeduplicatesConcurrentSubmissions(t *testing.T) {
	backend := &fakeEngagementBackend{delay: 30 * time.Millisecond}
	store, manager := newEngagementFixture(t, backend)

	var wg sync.WaitGroup
	comments := make([]models.Comment, 3)
	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := store.AddComment(context.Background(), 5, 1, "double tap")
			assert.NoError(t, err)
			comments[i] = c
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, backend.insertComments, "duplicate submissions reached the remote")
	assert.Equal(t, comments[0].ID, comments[1].ID)
	assert.Equal(t, comments[0].ID, comments[2].ID)

	snap, _ := manager.Snapshot(1)
	assert.Equal(t, 1, snap.CommentsCount, "count bumped once per duplicate")
}

func TestAddCommentDifferentTextsRunSeparately(t *testing.T) {
	backend := &fakeEngagementBackend{delay: 20 * time.Millisecond}
	store, _ := newEngagementFixture(t, backend)

	var wg sync.WaitGroup
	for _, text := range []string{"first comment", "second comment"} {
		text := text
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AddComment(context.Background(), 5, 1, text)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, backend.insertComments)
}

func TestDeleteCommentSuccess(t *testing.T) {
	backend := &fakeEngagementBackend{}
	store, manager := newEngagementFixture(t, backend)

	_, err := store.AddComment(context.Background(), 5, 1, "to be removed")
	require.NoError(t, err)

	require.NoError(t, store.DeleteComment(context.Background(), 5, 1, 1))

	snap, _ := manager.Snapshot(1)
	assert.Equal(t, 0, snap.CommentsCount)
	assert.Equal(t, 1, backend.deleteComments)
}

func TestDeleteCommentFailureRevertsCount(t *testing.T) {
	backend := &fakeEngagementBackend{}
	store, manager := newEngagementFixture(t, backend)

	_, err := store.AddComment(context.Background(), 5, 1, "stays")
	require.NoError(t, err)

	backend.commentErr = errors.New("remote down")
	require.Error(t, store.DeleteComment(context.Background(), 5, 2, 1))

	snap, _ := manager.Snapshot(1)
	assert.Equal(t, 1, snap.CommentsCount)
}
