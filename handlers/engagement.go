package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"platefull.com/project-platefull/models"
	"platefull.com/project-platefull/remote"
)

const maxCommentLength = 500

// SetLike sets the viewer's like state for an item. The body carries the
// desired state; sending the current state is a no-op.
func SetLike(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		itemID, ok := pathInt(mux.Vars(r), "itemId")
		if !ok {
			http.Error(w, "Invalid itemId", http.StatusBadRequest)
			return
		}

		var req struct {
			Liked bool `json:"liked"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		viewer, err := env.likerEntry(r.Context(), viewerID)
		if err != nil {
			http.Error(w, "Failed to update like", http.StatusInternalServerError)
			log.Println("SetLike viewer lookup error:", err)
			return
		}

		liked, err := env.Engagement.SetLike(r.Context(), viewer, itemID, req.Liked)
		if err != nil {
			http.Error(w, "Failed to update like", http.StatusInternalServerError)
			log.Println("SetLike error:", err)
			return
		}

		if liked && req.Liked {
			go notifyItemOwner(env, itemID, viewerID,
				fmt.Sprintf("%s liked your post", displayName(viewer)),
				"like")
		}

		writeJSON(w, map[string]any{"item_id": itemID, "liked": liked})
	}
}

// GetLikers serves the list of users who liked an item, cache-aside
// against the likers cache.
func GetLikers(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := env.viewer(r); err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		itemID, ok := pathInt(mux.Vars(r), "itemId")
		if !ok {
			http.Error(w, "Invalid itemId", http.StatusBadRequest)
			return
		}

		likers := env.Cache.Registry().Likers()
		if list, hit := likers.Get(itemID); hit {
			writeJSON(w, list)
			return
		}

		list, err := env.Remote.Likers(r.Context(), itemID)
		if err != nil {
			http.Error(w, "Failed to fetch likers", http.StatusInternalServerError)
			log.Printf("GetLikers query error: %v", err)
			return
		}
		likers.Put(itemID, list)
		writeJSON(w, list)
	}
}

// CreateComment adds a comment to an item.
func CreateComment(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		itemID, ok := pathInt(mux.Vars(r), "itemId")
		if !ok {
			http.Error(w, "Invalid itemId", http.StatusBadRequest)
			return
		}

		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		req.Text = strings.TrimSpace(req.Text)
		if req.Text == "" {
			http.Error(w, "Comment text is required", http.StatusBadRequest)
			return
		}
		if len(req.Text) > maxCommentLength {
			http.Error(w, fmt.Sprintf("Comment must be at most %d characters", maxCommentLength), http.StatusBadRequest)
			return
		}

		comment, err := env.Engagement.AddComment(r.Context(), viewerID, itemID, req.Text)
		if err != nil {
			http.Error(w, "Failed to create comment", http.StatusInternalServerError)
			log.Println("CreateComment error:", err)
			return
		}

		go func() {
			viewer, err := env.likerEntry(context.Background(), viewerID)
			if err != nil {
				return
			}
			notifyItemOwner(env, itemID, viewerID,
				fmt.Sprintf("%s commented on your post", displayName(viewer)),
				"comment")
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(comment)
	}
}

// GetComments serves an item's comments, oldest first.
func GetComments(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := env.viewer(r); err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		itemID, ok := pathInt(mux.Vars(r), "itemId")
		if !ok {
			http.Error(w, "Invalid itemId", http.StatusBadRequest)
			return
		}

		comments, err := env.Remote.Comments(r.Context(), itemID)
		if err != nil {
			http.Error(w, "Failed to fetch comments", http.StatusInternalServerError)
			log.Printf("GetComments query error: %v", err)
			return
		}
		if comments == nil {
			comments = []models.CommentWithUser{}
		}
		writeJSON(w, comments)
	}
}

// DeleteComment removes the viewer's comment. The comment's item is
// looked up first so the cached comments_count can be dropped.
func DeleteComment(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		commentID, ok := pathInt(mux.Vars(r), "commentId")
		if !ok {
			http.Error(w, "Invalid commentId", http.StatusBadRequest)
			return
		}

		var itemID, ownerID int
		err = env.Remote.QueryRow(r.Context(),
			`SELECT item_id, user_id FROM comments WHERE id = $1`, commentID,
		).Scan(&itemID, &ownerID)
		if err != nil {
			http.Error(w, "Comment not found", http.StatusNotFound)
			return
		}
		if ownerID != viewerID {
			http.Error(w, "Unauthorized", http.StatusForbidden)
			return
		}

		err = env.Engagement.DeleteComment(r.Context(), viewerID, commentID, itemID)
		switch {
		case errors.Is(err, remote.ErrNotFound):
			http.Error(w, "Comment not found", http.StatusNotFound)
			return
		case errors.Is(err, remote.ErrForbidden):
			http.Error(w, "Unauthorized", http.StatusForbidden)
			return
		case err != nil:
			http.Error(w, "Failed to delete comment", http.StatusInternalServerError)
			log.Println("DeleteComment error:", err)
			return
		}

		writeJSON(w, map[string]string{"message": "Comment deleted successfully"})
	}
}

// notifyItemOwner pushes an engagement notification to the item's owner
// and publishes it on their realtime channel. Self-engagement is quiet.
func notifyItemOwner(env *Env, itemID, actorID int, message, kind string) {
	ctx := context.Background()

	var ownerID int
	var title string
	err := env.Remote.QueryRow(ctx,
		`SELECT author_id, title FROM items WHERE id = $1`, itemID,
	).Scan(&ownerID, &title)
	if err != nil {
		log.Printf("Error looking up item owner: %v", err)
		return
	}
	if ownerID == actorID {
		return
	}

	payload := map[string]string{
		"type":    kind,
		"item_id": strconv.Itoa(itemID),
		"message": message,
		"url":     fmt.Sprintf("/items/%d", itemID),
	}
	env.Broadcast.Notify(fmt.Sprintf("notifications|%d", ownerID), payload)

	if env.Push != nil {
		if err := env.Push.NotifyUser(ctx, ownerID, message, title, payload); err != nil {
			log.Printf("Error sending %s notification: %v", kind, err)
		}
	}
}

func displayName(e models.LikerEntry) string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.Username
}
