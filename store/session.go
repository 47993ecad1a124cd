package store

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"platefull.com/project-platefull/cache"
	"platefull.com/project-platefull/optimistic"
)

// DefaultSessionTTL is how long an issued token stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	// ErrNoToken is returned when a request carries no bearer token.
	ErrNoToken = errors.New("store: missing bearer token")

	// ErrInvalidToken is returned for an expired or malformed token.
	ErrInvalidToken = errors.New("store: invalid token")
)

// SessionStore issues and validates session tokens and owns one
// FollowStore per signed-in viewer, created lazily and loaded once per
// session. Explicitly constructed and torn down by the composition root.
type SessionStore struct {
	secret  []byte
	ttl     time.Duration
	backend FollowBackend
	manager *cache.Manager
	ledger  *optimistic.Ledger

	mu      sync.Mutex
	follows map[int]*FollowStore
	opts    []FollowOption
}

// SessionOption configures a SessionStore.
type SessionOption func(*SessionStore)

// WithSessionTTL overrides the token lifetime.
func WithSessionTTL(d time.Duration) SessionOption {
	return func(s *SessionStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithFollowOptions forwards options to every per-viewer FollowStore.
func WithFollowOptions(opts ...FollowOption) SessionOption {
	return func(s *SessionStore) { s.opts = opts }
}

// NewSessionStore wires session handling over the given secret.
func NewSessionStore(secret []byte, backend FollowBackend, manager *cache.Manager, ledger *optimistic.Ledger, opts ...SessionOption) *SessionStore {
	s := &SessionStore{
		secret:  secret,
		ttl:     DefaultSessionTTL,
		backend: backend,
		manager: manager,
		ledger:  ledger,
		follows: make(map[int]*FollowStore),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sessionClaims struct {
	UserID int `json:"user_id"`
	jwt.RegisteredClaims
}

// IssueToken signs a session token for userID.
func (s *SessionStore) IssueToken(userID int) (string, error) {
	claims := sessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Authenticate extracts and validates the bearer token on r, returning
// the viewer id.
func (s *SessionStore) Authenticate(r *http.Request) (int, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		// Websocket clients can't set headers; accept a query token.
		if t := r.URL.Query().Get("token"); t != "" {
			header = "Bearer " + t
		}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return 0, ErrNoToken
	}
	return s.ParseToken(strings.TrimPrefix(header, "Bearer "))
}

// ParseToken validates a raw token string and returns the viewer id.
func (s *SessionStore) ParseToken(raw string) (int, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid || claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

// FollowStoreFor returns the viewer's follow store, creating and loading
// it on first use this session.
func (s *SessionStore) FollowStoreFor(ctx context.Context, viewerID int) (*FollowStore, error) {
	s.mu.Lock()
	fs, ok := s.follows[viewerID]
	if !ok {
		fs = NewFollowStore(viewerID, s.backend, s.manager, s.ledger, s.opts...)
		s.follows[viewerID] = fs
	}
	s.mu.Unlock()

	if err := fs.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	return fs, nil
}

// EndSession discards the viewer's in-memory session state.
func (s *SessionStore) EndSession(viewerID int) {
	s.mu.Lock()
	delete(s.follows, viewerID)
	s.mu.Unlock()
}

// Close discards all session state.
func (s *SessionStore) Close() {
	s.mu.Lock()
	s.follows = make(map[int]*FollowStore)
	s.mu.Unlock()
}
