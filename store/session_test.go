package store

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platefull.com/project-platefull/cache"
	"platefull.com/project-platefull/optimistic"
)

func newSessionFixture(t *testing.T, backend *fakeFollowBackend, opts ...SessionOption) *SessionStore {
	t.Helper()
	reg := cache.NewRegistry()
	manager := cache.NewManager(reg)
	return NewSessionStore([]byte("test-secret"), backend, manager, optimistic.NewLedger(), opts...)
}

func TestTokenRoundTrip(t *testing.T) {
	s := newSessionFixture(t, &fakeFollowBackend{})

	token, err := s.IssueToken(42)
	require.NoError(t, err)

	userID, err := s.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, 42, userID)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	s := newSessionFixture(t, &fakeFollowBackend{})
	other := newSessionFixture(t, &fakeFollowBackend{})
	other.secret = []byte("different-secret")

	token, err := s.IssueToken(42)
	require.NoError(t, err)

	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	s := newSessionFixture(t, &fakeFollowBackend{})
	_, err := s.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	s := newSessionFixture(t, &fakeFollowBackend{}, WithSessionTTL(time.Millisecond))

	token, err := s.IssueToken(42)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	_, err = s.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateFromHeader(t *testing.T) {
	s := newSessionFixture(t, &fakeFollowBackend{})
	token, err := s.IssueToken(7)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/feed", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	userID, err := s.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, 7, userID)
}

func TestAuthenticateFromQueryToken(t *testing.T) {
	s := newSessionFixture(t, &fakeFollowBackend{})
	token, err := s.IssueToken(7)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/ws/notifications?token="+token, nil)

	userID, err := s.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, 7, userID)
}

func TestAuthenticateMissingToken(t *testing.T) {
	s := newSessionFixture(t, &fakeFollowBackend{})
	r := httptest.NewRequest("GET", "/feed", nil)

	_, err := s.Authenticate(r)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestFollowStoreForIsPerViewerAndLoadedOnce(t *testing.T) {
	backend := &fakeFollowBackend{followed: []int{10}}
	s := newSessionFixture(t, backend)
	ctx := context.Background()

	fs1, err := s.FollowStoreFor(ctx, 7)
	require.NoError(t, err)
	fs2, err := s.FollowStoreFor(ctx, 7)
	require.NoError(t, err)
	assert.Same(t, fs1, fs2)
	assert.Equal(t, 1, backend.loads, "follow set reloaded within one session")

	assert.True(t, fs1.IsFollowing(10))

	other, err := s.FollowStoreFor(ctx, 8)
	require.NoError(t, err)
	assert.NotSame(t, fs1, other)
}

func TestEndSessionDiscardsFollowStore(t *testing.T) {
	backend := &fakeFollowBackend{}
	s := newSessionFixture(t, backend)
	ctx := context.Background()

	fs1, err := s.FollowStoreFor(ctx, 7)
	require.NoError(t, err)

	s.EndSession(7)

	fs2, err := s.FollowStoreFor(ctx, 7)
	require.NoError(t, err)
	assert.NotSame(t, fs1, fs2)
	assert.Equal(t, 2, backend.loads)
}
