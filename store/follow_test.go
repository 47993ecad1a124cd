package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platefull.com/project-platefull/cache"
	"platefull.com/project-platefull/models"
	"platefull.com/project-platefull/optimistic"
)

type fakeFollowBackend struct {
	status    string
	insertErr error
	deleteErr error
	delay     time.Duration
	followed  []int
	inserts   int
	deletes   int
	loads     int
}

func (f *fakeFollowBackend) InsertFollow(ctx context.Context, viewerID, targetID int) (string, error) {
	time.Sleep(f.delay)
	f.inserts++
	if f.insertErr != nil {
		return "", f.insertErr
	}
	if f.status == "" {
		return models.FollowStatusAccepted, nil
	}
	return f.status, nil
}

func (f *fakeFollowBackend) DeleteFollow(ctx context.Context, viewerID, targetID int) error {
	time.Sleep(f.delay)
	f.deletes++
	return f.deleteErr
}

func (f *fakeFollowBackend) FollowedIDs(ctx context.Context, viewerID int) ([]int, error) {
	f.loads++
	return f.followed, nil
}

// newFollowFixture caches an item authored by user 10 so follow fan-out
// has a copy to rewrite.
func newFollowFixture(t *testing.T, backend *fakeFollowBackend, opts ...optimistic.Option) (*FollowStore, *cache.Manager) {
	t.Helper()
	reg := cache.NewRegistry()
	require.NoError(t, reg.Register(cache.NewPartition(cache.KindHomeFeed)))
	feed, _ := reg.Partition(cache.KindHomeFeed)
	feed.Put(5, "viewer-5|page-1", []models.Item{
		{ID: 1, AuthorID: 10, Type: models.ItemTypePost},
	})

	manager := cache.NewManager(reg)
	ledger := optimistic.NewLedger(opts...)
	fs := NewFollowStore(5, backend, manager, ledger, WithDebounce(0))
	require.NoError(t, fs.Refresh(context.Background()))
	return fs, manager
}

func authorFollowed(t *testing.T, manager *cache.Manager) bool {
	t.Helper()
	snap, ok := manager.Snapshot(1)
	require.True(t, ok)
	return snap.IsFollowingAuthor
}

func TestFollowAccepted(t *testing.T) {
	backend := &fakeFollowBackend{}
	fs, manager := newFollowFixture(t, backend)

	status, err := fs.Follow(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusAccepted, status)
	assert.True(t, fs.IsFollowing(10))
	assert.True(t, authorFollowed(t, manager))
}

func TestFollowPendingRevertsWithoutError(t *testing.T) {
	backend := &fakeFollowBackend{status: models.FollowStatusPending}
	fs, manager := newFollowFixture(t, backend)

	status, err := fs.Follow(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusPending, status)

	// A pending request is not a follow yet.
	assert.False(t, fs.IsFollowing(10))
	assert.False(t, authorFollowed(t, manager))
}

func TestFollowFailureReverts(t *testing.T) {
	backend := &fakeFollowBackend{insertErr: errors.New("remote down")}
	fs, manager := newFollowFixture(t, backend)

	_, err := fs.Follow(context.Background(), 10)
	require.Error(t, err)
	assert.False(t, fs.IsFollowing(10))
	assert.False(t, authorFollowed(t, manager))
}

func TestFollowAlreadyFollowingIsNoop(t *testing.T) {
	backend := &fakeFollowBackend{followed: []int{10}}
	fs, _ := newFollowFixture(t, backend)

	status, err := fs.Follow(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusAccepted, status)
	assert.Zero(t, backend.inserts, "redundant follow reached the remote")
}

func TestFollowAutoRevertBeforeRemoteAnswers(t *testing.T) {
	backend := &fakeFollowBackend{delay: 80 * time.Millisecond}
	fs, manager := newFollowFixture(t, backend,
		optimistic.WithAutoRevertAfter(15*time.Millisecond))

	status, err := fs.Follow(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusAccepted, status)

	// The window expired first; the reverted state stands until the next
	// refresh even though the remote write succeeded.
	assert.False(t, fs.IsFollowing(10))
	assert.False(t, authorFollowed(t, manager))
}

func TestUnfollowSuccess(t *testing.T) {
	backend := &fakeFollowBackend{followed: []int{10}}
	fs, manager := newFollowFixture(t, backend)

	require.NoError(t, fs.Unfollow(context.Background(), 10))
	assert.False(t, fs.IsFollowing(10))
	assert.False(t, authorFollowed(t, manager))
	assert.Equal(t, 1, backend.deletes)
}

func TestUnfollowNotFollowingIsNoop(t *testing.T) {
	backend := &fakeFollowBackend{}
	fs, _ := newFollowFixture(t, backend)

	require.NoError(t, fs.Unfollow(context.Background(), 10))
	assert.Zero(t, backend.deletes)
}

func TestUnfollowFailureReverts(t *testing.T) {
	backend := &fakeFollowBackend{followed: []int{10}, deleteErr: errors.New("remote down")}
	fs, _ := newFollowFixture(t, backend)

	require.Error(t, fs.Unfollow(context.Background(), 10))
	assert.True(t, fs.IsFollowing(10), "failed unfollow left the set reverted")
}

func TestDebounceDropsRapidRepeat(t *testing.T) {
	backend := &fakeFollowBackend{}
	reg := cache.NewRegistry()
	require.NoError(t, reg.Register(cache.NewPartition(cache.KindHomeFeed)))
	manager := cache.NewManager(reg)
	fs := NewFollowStore(5, backend, manager, optimistic.NewLedger(),
		WithDebounce(100*time.Millisecond))
	require.NoError(t, fs.Refresh(context.Background()))

	_, err := fs.Follow(context.Background(), 10)
	require.NoError(t, err)

	err = fs.Unfollow(context.Background(), 10)
	assert.ErrorIs(t, err, ErrDebounced)
	assert.True(t, fs.IsFollowing(10), "debounced action changed state")

	// Another target is unaffected.
	_, err = fs.Follow(context.Background(), 11)
	require.NoError(t, err)

	// After the window the repeat goes through.
	time.Sleep(120 * time.Millisecond)
	require.NoError(t, fs.Unfollow(context.Background(), 10))
	assert.False(t, fs.IsFollowing(10))
}

func TestRefreshReplacesLocalState(t *testing.T) {
	backend := &fakeFollowBackend{followed: []int{10, 11}}
	fs, _ := newFollowFixture(t, backend)

	assert.ElementsMatch(t, []int{10, 11}, fs.FollowedIDs())

	backend.followed = []int{11}
	require.NoError(t, fs.Refresh(context.Background()))
	assert.Equal(t, []int{11}, fs.FollowedIDs())
}

func TestEnsureLoadedLoadsOnce(t *testing.T) {
	backend := &fakeFollowBackend{}
	reg := cache.NewRegistry()
	manager := cache.NewManager(reg)
	fs := NewFollowStore(5, backend, manager, optimistic.NewLedger())

	require.NoError(t, fs.EnsureLoaded(context.Background()))
	require.NoError(t, fs.EnsureLoaded(context.Background()))
	assert.Equal(t, 1, backend.loads)
}
