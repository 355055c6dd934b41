package chat

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

type EventType string

// Inbound event types.
const (
	EvtJoin            EventType = "join"
	EvtMessage         EventType = "message"
	EvtImage           EventType = "image"
	EvtVideo           EventType = "video"
	EvtAudio           EventType = "audio"
	EvtFile            EventType = "file"
	EvtDelete          EventType = "delete"
	EvtRequestUserList EventType = "request_userlist"
	EvtActiveRoom      EventType = "active_room"
)

// Outbound-only event types.
const (
	EvtSystem       EventType = "system"
	EvtLeave        EventType = "leave"
	EvtUserList     EventType = "userlist"
	EvtDeleteOK     EventType = "delete_ok"
	EvtDeleteError  EventType = "delete_error"
	EvtError        EventType = "error"
	EvtHistoryStart EventType = "history_start"
	EvtHistoryEnd   EventType = "history_end"
	EvtKick         EventType = "kick"
	EvtBan          EventType = "ban"
	EvtLogout       EventType = "logout"
)

// InboundEvent is one client-to-server frame. The id field is a string
// user id on join and a numeric message id on delete, so it stays raw
// until the handler knows which one it wants.
type InboundEvent struct {
	Type     EventType       `json:"type"`
	ID       json.RawMessage `json:"id,omitempty"`
	Room     string          `json:"room,omitempty"`
	User     string          `json:"user,omitempty"`
	Text     string          `json:"text,omitempty"`
	Image    string          `json:"image,omitempty"`
	Images   []string        `json:"images,omitempty"`
	FileName string          `json:"filename,omitempty"`
}

// StringID interprets the raw id as a string user id.
func (e *InboundEvent) StringID() string {
	raw := bytes.TrimSpace(e.ID)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Int64ID interprets the raw id as a numeric message id.
func (e *InboundEvent) Int64ID() (int64, bool) {
	raw := bytes.TrimSpace(e.ID)
	if len(raw) == 0 {
		return 0, false
	}
	if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Event is one server-to-client frame.
type Event struct {
	Type      EventType `json:"type"`
	ID        int64     `json:"id,omitempty"`
	Room      string    `json:"room,omitempty"`
	User      string    `json:"user,omitempty"`
	Text      string    `json:"text,omitempty"`
	URL       string    `json:"url,omitempty"`
	FileName  string    `json:"filename,omitempty"`
	Users     []string  `json:"users,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	IsHistory bool      `json:"isHistory,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func systemEvent(text string) *Event {
	return &Event{Type: EvtSystem, User: "SYSTEM", Text: text, Timestamp: time.Now()}
}
