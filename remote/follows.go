package remote

import (
	"context"
	"database/sql"
	"fmt"

	"platefull.com/project-platefull/models"
)

// InsertFollow creates or revives a follow relationship and returns its
// status: accepted for public targets, pending for private ones. An
// existing accepted or pending relationship is returned as-is; a
// rejected one is revived to pending.
func (c *Client) InsertFollow(ctx context.Context, viewerID, targetID int) (string, error) {
	if viewerID == targetID {
		return "", ErrForbidden
	}

	var targetExists, isPrivate bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = $1),
		       COALESCE((SELECT is_private FROM users WHERE id = $1), false)`,
		targetID).Scan(&targetExists, &isPrivate)
	if err != nil {
		return "", err
	}
	if !targetExists {
		return "", ErrNotFound
	}

	var existing string
	err = c.db.QueryRowContext(ctx, `
		SELECT status FROM followers
		WHERE follower_id = $1 AND following_id = $2`,
		viewerID, targetID).Scan(&existing)
	switch {
	case err == nil && existing == models.FollowStatusRejected:
		_, err = c.db.ExecContext(ctx, `
			UPDATE followers SET status = 'pending', updated_at = NOW()
			WHERE follower_id = $1 AND following_id = $2`,
			viewerID, targetID)
		return models.FollowStatusPending, err
	case err == nil:
		return existing, nil
	case err != sql.ErrNoRows:
		return "", err
	}

	status := models.FollowStatusAccepted
	if isPrivate {
		status = models.FollowStatusPending
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO followers (follower_id, following_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())`,
		viewerID, targetID, status)
	return status, err
}

// DeleteFollow removes a follow relationship regardless of status.
// Removing an absent relationship is a no-op.
func (c *Client) DeleteFollow(ctx context.Context, viewerID, targetID int) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM followers
		WHERE follower_id = $1 AND following_id = $2`,
		viewerID, targetID)
	return err
}

// SetFollowStatus transitions a pending request to accepted or rejected.
func (c *Client) SetFollowStatus(ctx context.Context, followerID, followingID int, status string) error {
	result, err := c.db.ExecContext(ctx, `
		UPDATE followers SET status = $1, updated_at = NOW()
		WHERE follower_id = $2 AND following_id = $3 AND status = 'pending'`,
		status, followerID, followingID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveFollower removes an accepted follower of userID.
func (c *Client) RemoveFollower(ctx context.Context, userID, followerID int) error {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM followers
		WHERE follower_id = $1 AND following_id = $2 AND status = 'accepted'`,
		followerID, userID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FollowedIDs returns the ids of everyone viewerID follows (accepted
// only). This is the session load for the in-memory follow set.
func (c *Client) FollowedIDs(ctx context.Context, viewerID int) ([]int, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT following_id FROM followers
		WHERE follower_id = $1 AND status = 'accepted'`,
		viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning followed id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// followerList is shared by the follower/following/pending list reads.
func (c *Client) followerList(ctx context.Context, query string, userID int) ([]models.FollowerInfo, error) {
	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.FollowerInfo
	for rows.Next() {
		var f models.FollowerInfo
		if err := rows.Scan(&f.ID, &f.Username, &f.DisplayName, &f.FollowedAt); err != nil {
			return nil, fmt.Errorf("scanning follower row: %w", err)
		}
		list = append(list, f)
	}
	return list, rows.Err()
}

// Followers returns userID's accepted followers.
func (c *Client) Followers(ctx context.Context, userID int) ([]models.FollowerInfo, error) {
	return c.followerList(ctx, `
		SELECT u.id, u.username, u.display_name, f.created_at
		FROM followers f
		JOIN users u ON f.follower_id = u.id
		WHERE f.following_id = $1 AND f.status = 'accepted'
		ORDER BY f.created_at DESC`, userID)
}

// Following returns who userID follows (accepted).
func (c *Client) Following(ctx context.Context, userID int) ([]models.FollowerInfo, error) {
	return c.followerList(ctx, `
		SELECT u.id, u.username, u.display_name, f.created_at
		FROM followers f
		JOIN users u ON f.following_id = u.id
		WHERE f.follower_id = $1 AND f.status = 'accepted'
		ORDER BY f.created_at DESC`, userID)
}

// PendingRequests returns follow requests awaiting userID's decision.
func (c *Client) PendingRequests(ctx context.Context, userID int) ([]models.FollowerInfo, error) {
	return c.followerList(ctx, `
		SELECT u.id, u.username, u.display_name, f.created_at
		FROM followers f
		JOIN users u ON f.follower_id = u.id
		WHERE f.following_id = $1 AND f.status = 'pending'
		ORDER BY f.created_at DESC`, userID)
}

// SentRequests returns userID's outstanding follow requests.
func (c *Client) SentRequests(ctx context.Context, userID int) ([]models.FollowerInfo, error) {
	return c.followerList(ctx, `
		SELECT u.id, u.username, u.display_name, f.created_at
		FROM followers f
		JOIN users u ON f.following_id = u.id
		WHERE f.follower_id = $1 AND f.status = 'pending'
		ORDER BY f.created_at DESC`, userID)
}

// FollowStats returns follower, following, and pending-request counts.
func (c *Client) FollowStats(ctx context.Context, userID int) (models.FollowStats, error) {
	var stats models.FollowStats
	err := c.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM followers WHERE following_id = $1 AND status = 'accepted'),
			(SELECT COUNT(*) FROM followers WHERE follower_id = $1 AND status = 'accepted'),
			(SELECT COUNT(*) FROM followers WHERE following_id = $1 AND status = 'pending')`,
		userID).Scan(&stats.FollowersCount, &stats.FollowingCount, &stats.PendingRequestsCount)
	return stats, err
}
