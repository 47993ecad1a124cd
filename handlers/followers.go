package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"platefull.com/project-platefull/models"
	"platefull.com/project-platefull/remote"
	"platefull.com/project-platefull/store"
)

// FollowUser follows the target user. For a private target the request
// goes pending and the response says so.
func FollowUser(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		targetID, ok := pathInt(mux.Vars(r), "userId")
		if !ok {
			http.Error(w, "Invalid userId", http.StatusBadRequest)
			return
		}

		fs, err := env.Sessions.FollowStoreFor(r.Context(), viewerID)
		if err != nil {
			http.Error(w, "Failed to follow user", http.StatusInternalServerError)
			log.Println("FollowUser session error:", err)
			return
		}

		status, err := fs.Follow(r.Context(), targetID)
		switch {
		case errors.Is(err, store.ErrDebounced):
			writeJSON(w, map[string]string{"message": "Request already in progress"})
			return
		case errors.Is(err, remote.ErrForbidden):
			http.Error(w, "You cannot follow yourself", http.StatusBadRequest)
			return
		case errors.Is(err, remote.ErrNotFound):
			http.Error(w, "User not found", http.StatusNotFound)
			return
		case err != nil:
			http.Error(w, "Failed to follow user", http.StatusInternalServerError)
			log.Println("FollowUser error:", err)
			return
		}

		if status == models.FollowStatusPending {
			go notifyFollowEvent(env, targetID, viewerID, "%s requested to follow you", "follow_request")
			writeJSON(w, map[string]string{
				"message": "Follow request sent",
				"status":  status,
			})
			return
		}

		go notifyFollowEvent(env, targetID, viewerID, "%s started following you", "new_follower")
		writeJSON(w, map[string]string{
			"message": "Followed successfully",
			"status":  status,
		})
	}
}

// UnfollowUser unfollows the target user. Also cancels a pending request
// the viewer sent, since deletion ignores status.
func UnfollowUser(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		targetID, ok := pathInt(mux.Vars(r), "userId")
		if !ok {
			http.Error(w, "Invalid userId", http.StatusBadRequest)
			return
		}

		fs, err := env.Sessions.FollowStoreFor(r.Context(), viewerID)
		if err != nil {
			http.Error(w, "Failed to unfollow user", http.StatusInternalServerError)
			log.Println("UnfollowUser session error:", err)
			return
		}

		err = fs.Unfollow(r.Context(), targetID)
		switch {
		case errors.Is(err, store.ErrDebounced):
			writeJSON(w, map[string]string{"message": "Request already in progress"})
			return
		case err != nil:
			http.Error(w, "Failed to unfollow user", http.StatusInternalServerError)
			log.Println("UnfollowUser error:", err)
			return
		}

		writeJSON(w, map[string]string{"message": "Unfollowed successfully"})
	}
}

// AcceptFollowRequest accepts a pending request from followerId to the
// viewer.
func AcceptFollowRequest(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		followerID, ok := pathInt(mux.Vars(r), "followerId")
		if !ok {
			http.Error(w, "Invalid followerId", http.StatusBadRequest)
			return
		}

		err = env.Remote.SetFollowStatus(r.Context(), followerID, viewerID, models.FollowStatusAccepted)
		if errors.Is(err, remote.ErrNotFound) {
			http.Error(w, "Follow request not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "Failed to accept follow request", http.StatusInternalServerError)
			log.Println("AcceptFollowRequest error:", err)
			return
		}

		go notifyFollowEvent(env, followerID, viewerID, "%s accepted your follow request", "follow_accepted")

		writeJSON(w, map[string]string{"message": "Follow request accepted"})
	}
}

// RejectFollowRequest rejects a pending request from followerId.
func RejectFollowRequest(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		followerID, ok := pathInt(mux.Vars(r), "followerId")
		if !ok {
			http.Error(w, "Invalid followerId", http.StatusBadRequest)
			return
		}

		err = env.Remote.SetFollowStatus(r.Context(), followerID, viewerID, models.FollowStatusRejected)
		if errors.Is(err, remote.ErrNotFound) {
			http.Error(w, "Follow request not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "Failed to reject follow request", http.StatusInternalServerError)
			log.Println("RejectFollowRequest error:", err)
			return
		}

		writeJSON(w, map[string]string{"message": "Follow request rejected"})
	}
}

// RemoveFollower removes one of the viewer's accepted followers.
func RemoveFollower(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		followerID, ok := pathInt(mux.Vars(r), "followerId")
		if !ok {
			http.Error(w, "Invalid followerId", http.StatusBadRequest)
			return
		}

		err = env.Remote.RemoveFollower(r.Context(), viewerID, followerID)
		if errors.Is(err, remote.ErrNotFound) {
			http.Error(w, "Follower not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "Failed to remove follower", http.StatusInternalServerError)
			log.Println("RemoveFollower error:", err)
			return
		}

		writeJSON(w, map[string]string{"message": "Follower removed"})
	}
}

// GetFollowers lists a user's accepted followers.
func GetFollowers(env *Env) http.HandlerFunc {
	return followerListHandler(env, env.Remote.Followers, "Failed to fetch followers")
}

// GetFollowing lists who a user follows.
func GetFollowing(env *Env) http.HandlerFunc {
	return followerListHandler(env, env.Remote.Following, "Failed to fetch following")
}

// GetPendingRequests lists follow requests awaiting the viewer's
// decision. Unlike the other list reads, this is viewer-only.
func GetPendingRequests(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		list, err := env.Remote.PendingRequests(r.Context(), viewerID)
		if err != nil {
			http.Error(w, "Failed to fetch follow requests", http.StatusInternalServerError)
			log.Println("GetPendingRequests error:", err)
			return
		}
		if list == nil {
			list = []models.FollowerInfo{}
		}
		writeJSON(w, list)
	}
}

// GetSentRequests lists the viewer's outstanding follow requests.
func GetSentRequests(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		list, err := env.Remote.SentRequests(r.Context(), viewerID)
		if err != nil {
			http.Error(w, "Failed to fetch sent requests", http.StatusInternalServerError)
			log.Println("GetSentRequests error:", err)
			return
		}
		if list == nil {
			list = []models.FollowerInfo{}
		}
		writeJSON(w, list)
	}
}

// GetFollowStats returns follower/following/pending counts for a user.
func GetFollowStats(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := env.viewer(r); err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		userID, ok := pathInt(mux.Vars(r), "userId")
		if !ok {
			http.Error(w, "Invalid userId", http.StatusBadRequest)
			return
		}

		stats, err := env.Remote.FollowStats(r.Context(), userID)
		if err != nil {
			http.Error(w, "Failed to fetch follow stats", http.StatusInternalServerError)
			log.Println("GetFollowStats error:", err)
			return
		}
		writeJSON(w, stats)
	}
}

// CheckFollowStatus reports whether the viewer follows the target, from
// the in-memory follow set.
func CheckFollowStatus(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		targetID, ok := pathInt(mux.Vars(r), "userId")
		if !ok {
			http.Error(w, "Invalid userId", http.StatusBadRequest)
			return
		}

		fs, err := env.Sessions.FollowStoreFor(r.Context(), viewerID)
		if err != nil {
			http.Error(w, "Failed to check follow status", http.StatusInternalServerError)
			log.Println("CheckFollowStatus session error:", err)
			return
		}

		writeJSON(w, map[string]bool{"is_following": fs.IsFollowing(targetID)})
	}
}

func followerListHandler(env *Env, load func(context.Context, int) ([]models.FollowerInfo, error), errMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := env.viewer(r); err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		userID, ok := pathInt(mux.Vars(r), "userId")
		if !ok {
			http.Error(w, "Invalid userId", http.StatusBadRequest)
			return
		}

		list, err := load(r.Context(), userID)
		if err != nil {
			http.Error(w, errMsg, http.StatusInternalServerError)
			log.Printf("%s: %v", errMsg, err)
			return
		}
		if list == nil {
			list = []models.FollowerInfo{}
		}
		writeJSON(w, list)
	}
}

// notifyFollowEvent pushes a follow-related notification to targetID,
// naming the actor, and publishes it on the target's realtime channel.
func notifyFollowEvent(env *Env, targetID, actorID int, format, kind string) {
	ctx := context.Background()

	actor, err := env.likerEntry(ctx, actorID)
	if err != nil {
		log.Printf("Error looking up actor for %s notification: %v", kind, err)
		return
	}
	message := fmt.Sprintf(format, displayName(actor))

	payload := map[string]string{
		"type":    kind,
		"user_id": strconv.Itoa(actorID),
		"message": message,
		"url":     fmt.Sprintf("/users/%d", actorID),
	}
	env.Broadcast.Notify(fmt.Sprintf("notifications|%d", targetID), payload)

	if env.Push != nil {
		if err := env.Push.NotifyUser(ctx, targetID, message, "", payload); err != nil {
			log.Printf("Error sending %s notification: %v", kind, err)
		}
	}
}
