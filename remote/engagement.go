package remote

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"platefull.com/project-platefull/models"
)

// InsertLike records a like. A duplicate like is a no-op, not an error,
// so a retried call stays idempotent.
func (c *Client) InsertLike(ctx context.Context, viewerID, itemID int) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO likes (user_id, item_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, item_id) DO NOTHING`,
		viewerID, itemID)
	return err
}

// DeleteLike removes a like. Removing an absent like is a no-op.
func (c *Client) DeleteLike(ctx context.Context, viewerID, itemID int) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM likes WHERE user_id = $1 AND item_id = $2`,
		viewerID, itemID)
	return err
}

// Likers returns the users who liked an item, newest first.
func (c *Client) Likers(ctx context.Context, itemID int) ([]models.LikerEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT l.user_id, u.username, u.display_name, l.created_at
		FROM likes l
		JOIN users u ON l.user_id = u.id
		WHERE l.item_id = $1
		ORDER BY l.created_at DESC`,
		itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var likers []models.LikerEntry
	for rows.Next() {
		var e models.LikerEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.DisplayName, &e.LikedAt); err != nil {
			return nil, fmt.Errorf("scanning liker: %w", err)
		}
		likers = append(likers, e)
	}
	return likers, rows.Err()
}

// InsertComment creates a comment and returns it with server-assigned
// fields.
func (c *Client) InsertComment(ctx context.Context, viewerID, itemID int, text string) (models.Comment, error) {
	var comment models.Comment
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO comments (item_id, user_id, text, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, item_id, user_id, text, created_at`,
		itemID, viewerID, text,
	).Scan(&comment.ID, &comment.ItemID, &comment.UserID, &comment.Text, &comment.CreatedAt)
	return comment, err
}

// DeleteComment removes a comment owned by viewerID and returns the item
// it belonged to.
func (c *Client) DeleteComment(ctx context.Context, viewerID, commentID int) (int, error) {
	var itemID, ownerID int
	err := c.db.QueryRowContext(ctx,
		`SELECT item_id, user_id FROM comments WHERE id = $1`, commentID,
	).Scan(&itemID, &ownerID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if ownerID != viewerID {
		return 0, ErrForbidden
	}
	_, err = c.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, commentID)
	return itemID, err
}

// Comments returns an item's comments with author info, oldest first.
func (c *Client) Comments(ctx context.Context, itemID int) ([]models.CommentWithUser, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT c.id, c.item_id, c.user_id, c.text, c.created_at,
		       u.username, u.display_name
		FROM comments c
		JOIN users u ON c.user_id = u.id
		WHERE c.item_id = $1
		ORDER BY c.created_at ASC`,
		itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []models.CommentWithUser
	for rows.Next() {
		var cm models.CommentWithUser
		if err := rows.Scan(&cm.ID, &cm.ItemID, &cm.UserID, &cm.Text,
			&cm.CreatedAt, &cm.Username, &cm.DisplayName); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		comments = append(comments, cm)
	}
	return comments, rows.Err()
}

// LikeStat is one item's aggregate in a batch likes read.
type LikeStat struct {
	Count int
	Liked bool
}

// LikesForItems is the batch "get likes for items" read: one round trip
// for the like count and viewer flag of many items.
func (c *Client) LikesForItems(ctx context.Context, viewerID int, itemIDs []int) (map[int]LikeStat, error) {
	stats := make(map[int]LikeStat, len(itemIDs))
	if len(itemIDs) == 0 {
		return stats, nil
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT i.id,
		       COALESCE((SELECT COUNT(*) FROM likes WHERE item_id = i.id), 0),
		       EXISTS(SELECT 1 FROM likes WHERE item_id = i.id AND user_id = $1)
		FROM items i
		WHERE i.id = ANY($2)`,
		viewerID, pq.Array(itemIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int
		var s LikeStat
		if err := rows.Scan(&id, &s.Count, &s.Liked); err != nil {
			return nil, fmt.Errorf("scanning like stat: %w", err)
		}
		stats[id] = s
	}
	return stats, rows.Err()
}

// FollowsForAuthors is the batch "get follows for authors" read: which of
// the given authors the viewer follows.
func (c *Client) FollowsForAuthors(ctx context.Context, viewerID int, authorIDs []int) (map[int]bool, error) {
	follows := make(map[int]bool, len(authorIDs))
	if len(authorIDs) == 0 {
		return follows, nil
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT following_id FROM followers
		WHERE follower_id = $1 AND status = 'accepted' AND following_id = ANY($2)`,
		viewerID, pq.Array(authorIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for _, id := range authorIDs {
		follows[id] = false
	}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning follow: %w", err)
		}
		follows[id] = true
	}
	return follows, rows.Err()
}
