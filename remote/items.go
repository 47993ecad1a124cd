package remote

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"platefull.com/project-platefull/models"
)

// itemColumns is the shared projection for item reads. $1 is always the
// viewer id; is_liked and is_following_author are viewer-relative and
// computed fresh on every read.
const itemColumns = `
	i.id, i.author_id, u.username, u.display_name, i.type, i.title, i.body,
	COALESCE(i.image_urls, '{}') AS image_urls, i.thumbnail_index,
	COALESCE((SELECT COUNT(*) FROM likes WHERE item_id = i.id), 0) AS likes_count,
	COALESCE((SELECT COUNT(*) FROM comments WHERE item_id = i.id), 0) AS comments_count,
	EXISTS(SELECT 1 FROM likes WHERE item_id = i.id AND user_id = $1) AS is_liked,
	EXISTS(SELECT 1 FROM followers
	       WHERE follower_id = $1 AND following_id = i.author_id AND status = 'accepted') AS is_following_author,
	i.created_at`

func scanItem(s interface{ Scan(...any) error }) (models.Item, error) {
	var it models.Item
	err := s.Scan(
		&it.ID, &it.AuthorID, &it.AuthorUsername, &it.AuthorDisplayName,
		&it.Type, &it.Title, &it.Body,
		pq.Array(&it.ImageURLs), &it.ThumbnailIndex,
		&it.LikesCount, &it.CommentsCount,
		&it.IsLiked, &it.IsFollowingAuthor,
		&it.CreatedAt,
	)
	return it, err
}

func (c *Client) collectItems(rows *sql.Rows) ([]models.Item, error) {
	defer rows.Close()
	var items []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// FeedPage returns one page of the viewer's home feed: their own items
// plus items from accepted follows, newest first.
func (c *Client) FeedPage(ctx context.Context, viewerID, page, pageSize int) ([]models.Item, error) {
	if page < 1 {
		page = 1
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		JOIN users u ON i.author_id = u.id
		WHERE i.author_id = $1
		   OR i.author_id IN (
		       SELECT following_id FROM followers
		       WHERE follower_id = $1 AND status = 'accepted')
		ORDER BY i.created_at DESC
		LIMIT $2 OFFSET $3`,
		viewerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	return c.collectItems(rows)
}

// ItemsByAuthor returns an author's items as seen by the viewer.
func (c *Client) ItemsByAuthor(ctx context.Context, viewerID, authorID int) ([]models.Item, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		JOIN users u ON i.author_id = u.id
		WHERE i.author_id = $2
		ORDER BY i.created_at DESC`,
		viewerID, authorID)
	if err != nil {
		return nil, err
	}
	return c.collectItems(rows)
}

// RecipeBook returns an author's recipes only.
func (c *Client) RecipeBook(ctx context.Context, viewerID, ownerID int) ([]models.Item, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		JOIN users u ON i.author_id = u.id
		WHERE i.author_id = $2 AND i.type = 'recipe'
		ORDER BY i.created_at DESC`,
		viewerID, ownerID)
	if err != nil {
		return nil, err
	}
	return c.collectItems(rows)
}

// ItemByID returns one item as seen by the viewer.
func (c *Client) ItemByID(ctx context.Context, viewerID, itemID int) (models.Item, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		JOIN users u ON i.author_id = u.id
		WHERE i.id = $2`,
		viewerID, itemID)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return models.Item{}, ErrNotFound
	}
	return it, err
}

// InsertItem creates an item and returns it with server-assigned fields.
func (c *Client) InsertItem(ctx context.Context, it models.Item) (models.Item, error) {
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO items (author_id, type, title, body, image_urls, thumbnail_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`,
		it.AuthorID, it.Type, it.Title, it.Body, pq.Array(it.ImageURLs), it.ThumbnailIndex,
	).Scan(&it.ID, &it.CreatedAt)
	return it, err
}

// DeleteItem deletes an item owned by authorID.
func (c *Client) DeleteItem(ctx context.Context, itemID, authorID int) error {
	var ownerID int
	err := c.db.QueryRowContext(ctx,
		`SELECT author_id FROM items WHERE id = $1`, itemID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if ownerID != authorID {
		return ErrForbidden
	}
	_, err = c.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, itemID)
	return err
}

// UpdateThumbnail persists a thumbnail index change for an item owned by
// authorID. The index is range-checked against the stored image list.
func (c *Client) UpdateThumbnail(ctx context.Context, itemID, authorID, index int) error {
	result, err := c.db.ExecContext(ctx, `
		UPDATE items
		SET thumbnail_index = $1
		WHERE id = $2 AND author_id = $3
		  AND $1 >= 0 AND $1 < COALESCE(array_length(image_urls, 1), 0)`,
		index, itemID, authorID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
