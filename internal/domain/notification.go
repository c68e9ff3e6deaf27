package domain

import "time"

// Notification is the durable record of an event for a user who may
// be offline when the live push happens.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
