package chat

import (
	"context"
	"encoding/base64"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"chatrelay/internal/models"

	"github.com/google/uuid"
)

// Tiered size ceilings for inline media payloads, applied to the
// decoded bytes.
const (
	maxImageBytes           = 2 << 20
	maxImageBytesPrivileged = 7 << 20
	maxOtherMediaBytes      = 30 << 20
)

type inlinePayload struct {
	data []byte
	mime string
}

// handleMedia accepts an already-hosted reference or inline encoded
// bytes. Inline bytes are decoded, size-checked against the tier for
// the sender, and stored durably before anything is broadcast. An
// oversize payload rejects the whole event with nothing stored.
func (c *Client) handleMedia(ev *InboundEvent) error {
	room := c.Room()
	if room == "" {
		return rejectf(RejectValidation, "join a room first")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	isAdmin, isSubscribed := c.Hub.deps.Flags.Flags(ctx, c.userID)
	privileged := isAdmin || isSubscribed

	caption := strings.TrimSpace(ev.Text)
	if caption != "" && !privileged && utf8.RuneCountInString(caption) > maxTextRunes {
		return rejectf(RejectValidation, "caption exceeds %d characters", maxTextRunes)
	}

	payloads := ev.Images
	if len(payloads) == 0 && ev.Image != "" {
		payloads = []string{ev.Image}
	}
	if len(payloads) == 0 {
		return rejectf(RejectValidation, "media event carries no payload")
	}

	limit := int64(maxOtherMediaBytes)
	if ev.Type == EvtImage {
		limit = maxImageBytes
		if privileged {
			limit = maxImageBytesPrivileged
		}
	}

	// Decode and size-check everything up front so an oversize item in
	// the middle never leaves earlier items stored.
	var refs []string
	var inline []inlinePayload
	for _, p := range payloads {
		if isHostedRef(p) {
			refs = append(refs, p)
			continue
		}
		decoded, ok := decodeInline(p, ev.Type)
		if !ok {
			return rejectf(RejectValidation, "malformed media payload")
		}
		if int64(len(decoded.data)) > limit {
			return rejectf(RejectValidation, "media exceeds the %d MB limit", limit>>20)
		}
		inline = append(inline, decoded)
	}

	var stored []string
	for _, p := range inline {
		ref, err := c.Hub.deps.Objects.Store(p.data, p.mime, ev.FileName)
		if err != nil {
			for _, r := range stored {
				if derr := c.Hub.deps.Objects.Delete(r); derr != nil {
					log.Printf("[CLIENT] Rollback delete failed for %s: %v", r, derr)
				}
			}
			return rejectf(RejectStorage, "failed to store media")
		}
		stored = append(stored, ref)
	}
	refs = append(refs, stored...)

	// Persist the whole batch before broadcasting any of it. A failed
	// insert mid-batch unwinds the earlier rows and blobs so the room
	// never sees a partial event.
	nick := c.Nick()
	msgs := make([]*models.Message, 0, len(refs))
	for i, ref := range refs {
		m := &models.Message{
			Room:     room,
			Sender:   nick,
			Kind:     models.MessageKind(ev.Type),
			MediaURL: ref,
			FileName: ev.FileName,
		}
		if i == 0 {
			m.Content = caption
		}
		if err := c.Hub.deps.Store.Insert(ctx, m); err != nil {
			for _, prev := range msgs {
				if derr := c.Hub.deps.Store.DeleteByID(ctx, prev.ID); derr != nil {
					log.Printf("[CLIENT] Rollback delete failed for message %d: %v", prev.ID, derr)
				}
			}
			for _, r := range stored {
				if derr := c.Hub.deps.Objects.Delete(r); derr != nil {
					log.Printf("[CLIENT] Rollback delete failed for %s: %v", r, derr)
				}
			}
			return rejectf(RejectStorage, "failed to persist media message")
		}
		msgs = append(msgs, m)
	}

	for _, m := range msgs {
		c.Hub.publish(room, &Event{
			Type:      ev.Type,
			ID:        m.ID,
			Room:      room,
			User:      nick,
			Text:      m.Content,
			URL:       m.MediaURL,
			FileName:  m.FileName,
			Timestamp: m.CreatedAt,
		}, uuid.Nil)
	}

	if c.Hub.deps.Notifier != nil {
		body := caption
		if body == "" {
			body = "sent " + string(ev.Type)
		}
		exclude := append(c.Hub.ActiveViewerIDs(room), c.userID)
		go c.Hub.deps.Notifier.NotifyRoom(room, nick, preview(body), exclude)
	}
	return nil
}

func isHostedRef(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// decodeInline handles both data URLs and bare base64 bodies.
func decodeInline(p string, kind EventType) (inlinePayload, bool) {
	mimeType := defaultMime(kind)
	body := p

	if strings.HasPrefix(p, "data:") {
		meta, rest, ok := strings.Cut(p[len("data:"):], ",")
		if !ok {
			return inlinePayload{}, false
		}
		if m, _, _ := strings.Cut(meta, ";"); m != "" {
			mimeType = m
		}
		body = rest
	}

	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return inlinePayload{}, false
	}
	return inlinePayload{data: data, mime: mimeType}, true
}

func defaultMime(kind EventType) string {
	switch kind {
	case EvtImage:
		return "image/png"
	case EvtVideo:
		return "video/mp4"
	case EvtAudio:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
