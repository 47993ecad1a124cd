package models

import "time"

// Item types. A recipe carries a structured image gallery with a chosen
// thumbnail; a post is a plain text update with optional images.
const (
	ItemTypeRecipe = "recipe"
	ItemTypePost   = "post"
)

// Item is the view model for a recipe or post as it appears in every
// cached surface (feed, recipe book, profile, detail view).
//
// LikesCount and CommentsCount are aggregates computed by the remote
// service. IsLiked and IsFollowingAuthor are viewer-relative projections
// recomputed per session; they are never stored remotely.
type Item struct {
	ID                int       `json:"id"`
	AuthorID          int       `json:"author_id"`
	AuthorUsername    string    `json:"author_username"`
	AuthorDisplayName string    `json:"author_display_name"`
	Type              string    `json:"type"`
	Title             string    `json:"title"`
	Body              string    `json:"body"`
	ImageURLs         []string  `json:"image_urls"`
	ThumbnailIndex    int       `json:"thumbnail_index"`
	LikesCount        int       `json:"likes_count"`
	CommentsCount     int       `json:"comments_count"`
	IsLiked           bool      `json:"is_liked"`
	IsFollowingAuthor bool      `json:"is_following_author"`
	CreatedAt         time.Time `json:"created_at"`
}

// OrderedImages returns the image list with the thumbnail first. The
// stored list is never reordered; display order is a pure projection so
// that every cache partition can agree on the same ThumbnailIndex.
func (i Item) OrderedImages() []string {
	if i.ThumbnailIndex <= 0 || i.ThumbnailIndex >= len(i.ImageURLs) {
		return i.ImageURLs
	}
	ordered := make([]string, 0, len(i.ImageURLs))
	ordered = append(ordered, i.ImageURLs[i.ThumbnailIndex])
	ordered = append(ordered, i.ImageURLs[:i.ThumbnailIndex]...)
	ordered = append(ordered, i.ImageURLs[i.ThumbnailIndex+1:]...)
	return ordered
}

// Clone returns a deep copy. Cache partitions hand out and capture copies
// so a rollback can restore the exact pre-mutation value.
func (i Item) Clone() Item {
	c := i
	if i.ImageURLs != nil {
		c.ImageURLs = append([]string(nil), i.ImageURLs...)
	}
	return c
}
