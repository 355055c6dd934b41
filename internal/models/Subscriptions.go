package models

import (
	"time"

	"github.com/google/uuid"
)

// PushSubscription is one Web Push endpoint registered by a user.
// A user may hold several (one per browser/device).
type PushSubscription struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}
