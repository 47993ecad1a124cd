package models

import "time"

// Follow relationship statuses, as stored in the followers table.
const (
	FollowStatusPending  = "pending"
	FollowStatusAccepted = "accepted"
	FollowStatusRejected = "rejected"
)

type FollowerInfo struct {
	ID          int       `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	FollowedAt  time.Time `json:"followed_at"`
}

type FollowStats struct {
	FollowersCount       int `json:"followers_count"`
	FollowingCount       int `json:"following_count"`
	PendingRequestsCount int `json:"pending_requests_count"`
}
