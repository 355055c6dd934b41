package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"chatrelay/internal/models"
)

const replayFrameTimeout = 1 * time.Second

var errReplayAbandoned = errors.New("history replay abandoned: transport failed")

// replayHistory streams the persisted backlog for a room to this
// connection, bracketed by explicit start/end markers. It runs before
// the connection is registered in the room, so no live broadcast can
// interleave with the replay.
func (c *Client) replayHistory(room string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -c.Hub.opts.RetentionDays)
	if err := c.Hub.deps.Store.DeleteOlderThan(ctx, room, cutoff); err != nil {
		// Stale rows are an annoyance, not a reason to fail the join.
		log.Printf("[HISTORY] Retention eviction failed for room %q: %v", room, err)
	}

	backlog, err := c.Hub.deps.Store.ListOrdered(ctx, room)
	if err != nil {
		return rejectf(RejectStorage, "failed to load room history")
	}

	if err := c.replaySend(&Event{Type: EvtHistoryStart, Room: room}); err != nil {
		return err
	}

	replayed := 0
	for _, m := range backlog {
		if !m.HasContent() {
			continue
		}
		if err := c.replaySend(historyEvent(m)); err != nil {
			return err
		}
		replayed++
	}

	if err := c.replaySend(&Event{Type: EvtHistoryEnd, Room: room}); err != nil {
		return err
	}

	log.Printf("[HISTORY] Replayed %d message(s) of room %q to %s", replayed, room, c.ID)
	return nil
}

// replaySend queues one replay frame, waiting briefly for the write
// pump to drain. A peer that cannot keep up with its own backlog gets
// the replay abandoned rather than the hub goroutines wedged.
func (c *Client) replaySend(ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errReplayAbandoned
		}
	}()

	payload, merr := json.Marshal(ev)
	if merr != nil {
		return merr
	}

	select {
	case c.Send <- payload:
		return nil
	case <-time.After(replayFrameTimeout):
		return errReplayAbandoned
	}
}

func historyEvent(m *models.Message) *Event {
	kind := EventType(m.Kind)
	if m.Kind == models.KindSystem {
		kind = EvtSystem
	}
	return &Event{
		Type:      kind,
		ID:        m.ID,
		Room:      m.Room,
		User:      m.Sender,
		Text:      m.Content,
		URL:       m.MediaURL,
		FileName:  m.FileName,
		Timestamp: m.CreatedAt,
		IsHistory: true,
	}
}
