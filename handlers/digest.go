package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"platefull.com/project-platefull/services"
)

// SendWeeklyDigest pushes each active user a summary of what the people
// they follow shared this week. Users whose followed set posted nothing
// are skipped. Run from the digest binary on a weekly schedule.
func SendWeeklyDigest(ctx context.Context, db *sql.DB, push *services.Push) error {
	rows, err := db.QueryContext(ctx, `
		SELECT f.follower_id,
		       COUNT(*) FILTER (WHERE i.type = 'recipe'),
		       COUNT(*) FILTER (WHERE i.type = 'post')
		FROM followers f
		JOIN items i ON i.author_id = f.following_id
		WHERE f.status = 'accepted'
		  AND i.created_at >= NOW() - INTERVAL '7 days'
		GROUP BY f.follower_id`)
	if err != nil {
		return fmt.Errorf("querying digest recipients: %w", err)
	}
	defer rows.Close()

	sent, failed := 0, 0
	for rows.Next() {
		var userID, recipes, posts int
		if err := rows.Scan(&userID, &recipes, &posts); err != nil {
			log.Printf("Error scanning digest row: %v", err)
			continue
		}

		body := digestBody(recipes, posts)
		data := map[string]string{
			"type": "weekly_digest",
			"url":  "/feed",
		}
		if err := push.NotifyUser(ctx, userID, "Your week on Platefull", body, data); err != nil {
			log.Printf("Error sending digest to user %d: %v", userID, err)
			failed++
			continue
		}
		sent++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	log.Printf("Weekly digest complete | sent=%d failed=%d", sent, failed)
	return nil
}

func digestBody(recipes, posts int) string {
	switch {
	case recipes > 0 && posts > 0:
		return fmt.Sprintf("People you follow shared %d new recipes and %d posts this week", recipes, posts)
	case recipes > 0:
		return fmt.Sprintf("People you follow shared %d new recipes this week", recipes)
	default:
		return fmt.Sprintf("People you follow shared %d new posts this week", posts)
	}
}
