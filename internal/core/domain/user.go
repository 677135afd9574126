package domain

import "time"

// User is an authenticated account. The identity itself is established by the
// external OAuth collaborator; only the resolved claims are persisted here.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
