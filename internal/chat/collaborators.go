package chat

import (
	"context"
	"time"

	"chatrelay/internal/models"
)

// Collaborator interfaces consumed by the relay core. Concrete
// implementations live in repository, storage, notify and mailer;
// tests substitute fakes.

// MessageStore is the durable message log. Insert fills in the
// database-assigned id and timestamp.
type MessageStore interface {
	Insert(ctx context.Context, m *models.Message) error
	ListOrdered(ctx context.Context, room string) ([]*models.Message, error)
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	DeleteByID(ctx context.Context, id int64) error
	DeleteOlderThan(ctx context.Context, room string, cutoff time.Time) error
}

// FlagSource answers moderation flag lookups. Results are never cached
// by the core; every privileged action asks again.
type FlagSource interface {
	Flags(ctx context.Context, userID string) (isAdmin, isSubscribed bool)
}

// ObjectStore holds uploaded media blobs.
type ObjectStore interface {
	Store(data []byte, mimeType, suggestedName string) (string, error)
	Delete(ref string) error
}

// Notifier pushes a best-effort notification to subscribed endpoints.
// The exclude list names users who need no push: the sender and
// anyone actively viewing the room.
type Notifier interface {
	NotifyRoom(room, title, body string, exclude []string)
}

// Mailer receives the transcript summary of a room that just emptied.
type Mailer interface {
	SendSummary(text string)
}
