package models

import "time"

type MessageKind string

const (
	KindMessage MessageKind = "message"
	KindImage   MessageKind = "image"
	KindVideo   MessageKind = "video"
	KindAudio   MessageKind = "audio"
	KindFile    MessageKind = "file"
	KindSystem  MessageKind = "system"
)

// Message is one persisted chat row. ID and CreatedAt are assigned by
// the database on insert, never by the sender.
type Message struct {
	ID        int64       `json:"id"`
	Room      string      `json:"room"`
	Sender    string      `json:"user"`
	Kind      MessageKind `json:"type"`
	Content   string      `json:"text,omitempty"`
	MediaURL  string      `json:"url,omitempty"`
	FileName  string      `json:"filename,omitempty"`
	CreatedAt time.Time   `json:"timestamp"`
}

// HasContent reports whether the row carries anything worth replaying.
func (m *Message) HasContent() bool {
	return m.Content != "" || m.MediaURL != ""
}
