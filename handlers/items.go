package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"platefull.com/project-platefull/cache"
	"platefull.com/project-platefull/models"
	"platefull.com/project-platefull/remote"
)

const defaultFeedPageSize = 20

// GetFeed serves one page of the viewer's home feed, cache-aside against
// the home feed partition.
func GetFeed(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}

		pageKey := fmt.Sprintf("viewer-%d|page-%d", viewerID, page)
		part, ok := env.partition(cache.KindHomeFeed)
		if ok {
			if items, hit := part.Get(pageKey); hit {
				writeJSON(w, items)
				return
			}
		}

		items, err := env.Remote.FeedPage(r.Context(), viewerID, page, defaultFeedPageSize)
		if err != nil {
			http.Error(w, "Failed to fetch feed", http.StatusInternalServerError)
			log.Printf("GetFeed query error: %v", err)
			return
		}
		if ok {
			part.Put(viewerID, pageKey, items)
		}
		writeJSON(w, items)
	}
}

// GetProfileItems serves a user's items, cache-aside against the profile
// partition.
func GetProfileItems(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		userID, ok := pathInt(mux.Vars(r), "userId")
		if !ok {
			http.Error(w, "Invalid userId", http.StatusBadRequest)
			return
		}

		pageKey := fmt.Sprintf("viewer-%d|user-%d", viewerID, userID)
		part, registered := env.partition(cache.KindProfileItems)
		if registered {
			if items, hit := part.Get(pageKey); hit {
				writeJSON(w, items)
				return
			}
		}

		items, err := env.Remote.ItemsByAuthor(r.Context(), viewerID, userID)
		if err != nil {
			http.Error(w, "Failed to fetch items", http.StatusInternalServerError)
			log.Printf("GetProfileItems query error: %v", err)
			return
		}
		if registered {
			part.Put(viewerID, pageKey, items)
		}
		writeJSON(w, items)
	}
}

// GetRecipeBook serves a user's recipes, cache-aside against the recipe
// book partition.
func GetRecipeBook(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		userID, ok := pathInt(mux.Vars(r), "userId")
		if !ok {
			http.Error(w, "Invalid userId", http.StatusBadRequest)
			return
		}

		pageKey := fmt.Sprintf("viewer-%d|user-%d", viewerID, userID)
		part, registered := env.partition(cache.KindRecipeBook)
		if registered {
			if items, hit := part.Get(pageKey); hit {
				writeJSON(w, items)
				return
			}
		}

		items, err := env.Remote.RecipeBook(r.Context(), viewerID, userID)
		if err != nil {
			http.Error(w, "Failed to fetch recipe book", http.StatusInternalServerError)
			log.Printf("GetRecipeBook query error: %v", err)
			return
		}
		if registered {
			part.Put(viewerID, pageKey, items)
		}
		writeJSON(w, items)
	}
}

// GetItem serves one item's detail view, cache-aside against the detail
// partition. The response carries the display-ordered image list
// alongside the stored one.
func GetItem(env *Env) http.HandlerFunc {
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

		pageKey := fmt.Sprintf("viewer-%d|item-%d", viewerID, itemID)
		part, registered := env.partition(cache.KindItemDetail)

		var item models.Item
		found := false
		if registered {
			if page, hit := part.Get(pageKey); hit && len(page) == 1 {
				item = page[0]
				found = true
			}
		}
		if !found {
			item, err = env.Remote.ItemByID(r.Context(), viewerID, itemID)
			if errors.Is(err, remote.ErrNotFound) {
				http.Error(w, "Item not found", http.StatusNotFound)
				return
			}
			if err != nil {
				http.Error(w, "Failed to fetch item", http.StatusInternalServerError)
				log.Printf("GetItem query error: %v", err)
				return
			}
			if registered {
				part.Put(viewerID, pageKey, []models.Item{item})
			}
		}

		writeJSON(w, struct {
			models.Item
			DisplayImages []string `json:"display_images"`
		}{Item: item, DisplayImages: item.OrderedImages()})
	}
}

// CreateItem creates a recipe or post.
func CreateItem(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		var it models.Item
		if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		it.AuthorID = viewerID

		if it.Type != models.ItemTypeRecipe && it.Type != models.ItemTypePost {
			http.Error(w, "type must be 'recipe' or 'post'", http.StatusBadRequest)
			return
		}
		if it.Title == "" {
			http.Error(w, "title is required", http.StatusBadRequest)
			return
		}
		if len(it.Body) > 5000 {
			http.Error(w, "body must be at most 5000 characters", http.StatusBadRequest)
			return
		}
		if it.ThumbnailIndex < 0 || (len(it.ImageURLs) > 0 && it.ThumbnailIndex >= len(it.ImageURLs)) {
			http.Error(w, "thumbnail_index out of range", http.StatusBadRequest)
			return
		}

		created, err := env.Remote.InsertItem(r.Context(), it)
		if err != nil {
			http.Error(w, "Failed to create item", http.StatusInternalServerError)
			log.Println("CreateItem error:", err)
			return
		}

		invalidateListings(env)
		go notifyFollowersOfNewItem(env, created)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(created)
	}
}

// DeleteItem deletes the viewer's item and purges it from every cache
// partition.
func DeleteItem(env *Env) http.HandlerFunc {
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

		err = env.Remote.DeleteItem(r.Context(), itemID, viewerID)
		switch {
		case errors.Is(err, remote.ErrNotFound):
			http.Error(w, "Item not found", http.StatusNotFound)
			return
		case errors.Is(err, remote.ErrForbidden):
			http.Error(w, "Unauthorized", http.StatusForbidden)
			return
		case err != nil:
			http.Error(w, "Failed to delete item", http.StatusInternalServerError)
			log.Println("DeleteItem error:", err)
			return
		}

		env.Cache.RemoveItem(itemID)
		invalidateListings(env)

		writeJSON(w, map[string]string{"message": "Item deleted successfully"})
	}
}

// ChangeThumbnail sets the item's thumbnail index. The change is applied
// optimistically to every cached copy, then persisted; failure reverts
// the fan-out.
func ChangeThumbnail(env *Env) http.HandlerFunc {
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
			ThumbnailIndex int `json:"thumbnail_index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		undo, err := env.Cache.ApplyThumbnailChange(itemID, req.ThumbnailIndex)
		if errors.Is(err, cache.ErrInvalidThumbnail) {
			http.Error(w, "thumbnail_index out of range", http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, "Failed to update thumbnail", http.StatusInternalServerError)
			return
		}

		handle, err := env.Ledger.Register(uuid.NewString(),
			map[string]int{"item_id": itemID, "thumbnail_index": req.ThumbnailIndex}, undo)
		if err != nil {
			undo()
			http.Error(w, "Failed to update thumbnail", http.StatusInternalServerError)
			return
		}

		err = env.Remote.UpdateThumbnail(r.Context(), itemID, viewerID, req.ThumbnailIndex)
		if err != nil {
			env.Ledger.Rollback(handle.ID())
			if errors.Is(err, remote.ErrNotFound) {
				http.Error(w, "Item not found or index out of range", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to update thumbnail", http.StatusInternalServerError)
			log.Println("ChangeThumbnail error:", err)
			return
		}
		if !handle.Cancelled() {
			env.Ledger.Confirm(handle.ID())
		}

		writeJSON(w, map[string]any{
			"message":         "Thumbnail updated",
			"thumbnail_index": req.ThumbnailIndex,
		})
	}
}

// invalidateListings clears the partitions whose page membership a
// create or delete changes. Per-item partitions are untouched.
func invalidateListings(env *Env) {
	for _, kind := range []cache.Kind{cache.KindHomeFeed, cache.KindProfileItems, cache.KindRecipeBook} {
		if part, ok := env.partition(kind); ok {
			part.Clear()
		}
	}
}

func notifyFollowersOfNewItem(env *Env, it models.Item) {
	if env.Push == nil {
		return
	}
	ctx := context.Background()

	rows, err := env.Remote.Query(ctx, `
		SELECT DISTINCT ft.token
		FROM followers f
		JOIN fcm_tokens ft ON f.follower_id = ft.user_id
		WHERE f.following_id = $1 AND f.status = 'accepted'
		  AND ft.token IS NOT NULL AND ft.token != ''`,
		it.AuthorID)
	if err != nil {
		log.Printf("Error fetching follower FCM tokens: %v", err)
		return
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			continue
		}
		tokens = append(tokens, token)
	}
	if len(tokens) == 0 {
		return
	}

	title := fmt.Sprintf("%s shared a new %s", it.AuthorDisplayName, it.Type)
	if it.AuthorDisplayName == "" {
		title = fmt.Sprintf("New %s from someone you follow", it.Type)
	}
	data := map[string]string{
		"type":    "new_item",
		"item_id": strconv.Itoa(it.ID),
		"url":     fmt.Sprintf("/items/%d", it.ID),
	}
	if _, _, err := env.Push.SendMulticast(ctx, tokens, title, it.Title, data); err != nil {
		log.Printf("Error sending new item notifications: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
