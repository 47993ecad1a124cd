package handlers

import (
	"context"
	"net/http"
	"strconv"

	"platefull.com/project-platefull/broadcast"
	"platefull.com/project-platefull/cache"
	"platefull.com/project-platefull/models"
	"platefull.com/project-platefull/optimistic"
	"platefull.com/project-platefull/remote"
	"platefull.com/project-platefull/services"
	"platefull.com/project-platefull/store"
)

// Env carries the handler dependencies, constructed once in the
// composition root. Push may be nil when no FCM credentials are
// configured; notification sends are then skipped.
type Env struct {
	Remote     *remote.Client
	Cache      *cache.Manager
	Ledger     *optimistic.Ledger
	Sessions   *store.SessionStore
	Engagement *store.EngagementStore
	Broadcast  *broadcast.Broadcaster
	Push       *services.Push
}

// viewer resolves the requesting user from the bearer token.
func (e *Env) viewer(r *http.Request) (int, error) {
	return e.Sessions.Authenticate(r)
}

// likerEntry loads the display fields for the viewer, for the likers
// list fan-out.
func (e *Env) likerEntry(ctx context.Context, viewerID int) (models.LikerEntry, error) {
	var entry models.LikerEntry
	entry.UserID = viewerID
	err := e.Remote.QueryRow(ctx,
		`SELECT username, display_name FROM users WHERE id = $1`, viewerID,
	).Scan(&entry.Username, &entry.DisplayName)
	return entry, err
}

// partition returns the registered partition of the given kind; every
// kind is registered at startup, so a miss is a wiring bug.
func (e *Env) partition(kind cache.Kind) (*cache.Partition, bool) {
	return e.Cache.Registry().Partition(kind)
}

func pathInt(vars map[string]string, name string) (int, bool) {
	raw, ok := vars[name]
	if !ok || raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
