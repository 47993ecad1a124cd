package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"
)

// GetItemStats is the batch refresh read: like counts, the viewer's like
// flags, and follow flags for the authors of the requested items, in one
// round trip. Clients call it after a reconnect to re-sync counts that
// may have drifted while offline; the fresh values are written back into
// the cache partitions so later reads agree.
func GetItemStats(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		var itemIDs []int
		for _, raw := range strings.Split(r.URL.Query().Get("ids"), ",") {
			if raw = strings.TrimSpace(raw); raw == "" {
				continue
			}
			id, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "ids must be integers", http.StatusBadRequest)
				return
			}
			itemIDs = append(itemIDs, id)
		}
		if len(itemIDs) == 0 {
			http.Error(w, "ids is required", http.StatusBadRequest)
			return
		}
		if len(itemIDs) > 100 {
			http.Error(w, "at most 100 ids per request", http.StatusBadRequest)
			return
		}

		likes, err := env.Remote.LikesForItems(r.Context(), viewerID, itemIDs)
		if err != nil {
			http.Error(w, "Failed to fetch item stats", http.StatusInternalServerError)
			log.Println("GetItemStats likes error:", err)
			return
		}

		authorSet := make(map[int]struct{})
		for _, id := range itemIDs {
			if snap, ok := env.Cache.SnapshotFor(viewerID, id); ok {
				authorSet[snap.AuthorID] = struct{}{}
			}
		}
		authorIDs := make([]int, 0, len(authorSet))
		for id := range authorSet {
			authorIDs = append(authorIDs, id)
		}

		follows, err := env.Remote.FollowsForAuthors(r.Context(), viewerID, authorIDs)
		if err != nil {
			http.Error(w, "Failed to fetch item stats", http.StatusInternalServerError)
			log.Println("GetItemStats follows error:", err)
			return
		}

		type itemStat struct {
			ItemID            int  `json:"item_id"`
			LikesCount        int  `json:"likes_count"`
			IsLiked           bool `json:"is_liked"`
			IsFollowingAuthor bool `json:"is_following_author"`
		}
		stats := make([]itemStat, 0, len(itemIDs))
		for _, id := range itemIDs {
			stat, ok := likes[id]
			if !ok {
				continue
			}
			s := itemStat{ItemID: id, LikesCount: stat.Count, IsLiked: stat.Liked}
			if snap, cached := env.Cache.SnapshotFor(viewerID, id); cached {
				s.IsFollowingAuthor = follows[snap.AuthorID]
				// Write the authoritative values back so the cached
				// copies stop disagreeing with the remote. The count
				// fans out everywhere; the like flag only lands on the
				// viewer's own pages.
				if snap.LikesCount != stat.Count || snap.IsLiked != stat.Liked {
					env.Cache.ApplyLikeDelta(viewerID, id, stat.Count-snap.LikesCount, stat.Liked, nil)
				}
			}
			stats = append(stats, s)
		}

		writeJSON(w, stats)
	}
}
