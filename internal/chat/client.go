package chat

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"chatrelay/internal/middleware"
	"chatrelay/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxTextRunes = 444

	pongWait     = 75 * time.Second
	maxFrameSize = 40 << 20 // inline media plus JSON overhead
)

// Client is one live duplex session with a remote peer. A connection
// belongs to at most one room; switching rooms is a leave-then-join.
type Client struct {
	ID      uuid.UUID
	Conn    *websocket.Conn
	Hub     *Hub
	Send    chan []byte
	Limiter *middleware.RateLimiter

	// Identity and room state, populated by the first join event.
	// Mutated only under the hub's lock.
	nick   string
	userID string
	room   string
	closed bool

	// Room the peer currently has on screen, reported via active_room.
	activeRoom atomic.Value

	alive       atomic.Bool
	closeOnce   sync.Once
	lastWarning time.Time
}

func NewClient(h *Hub, conn *websocket.Conn, limiter *middleware.RateLimiter) *Client {
	c := &Client{
		ID:      uuid.New(),
		Conn:    conn,
		Hub:     h,
		Send:    make(chan []byte, 256),
		Limiter: limiter,
	}
	c.alive.Store(true)
	return c
}

// Nick returns the display name under the hub's snapshot lock.
func (c *Client) Nick() string {
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	return c.nick
}

// Room returns the joined room under the hub's snapshot lock.
func (c *Client) Room() string {
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	return c.room
}

// ActiveRoom returns the room the peer last reported viewing.
func (c *Client) ActiveRoom() string {
	if v, ok := c.activeRoom.Load().(string); ok {
		return v
	}
	return ""
}

func (c *Client) WritePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		c.Conn.SetWriteDeadline(time.Now().Add(writeWait))

		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)

		n := len(c.Send)
		for i := 0; i < n; i++ {
			msg, ok := <-c.Send
			if !ok {
				break
			}
			w.Write([]byte{'\n'})
			w.Write(msg)
		}

		if err := w.Close(); err != nil {
			return
		}
	}

	// Send channel closed by the hub: flush a close frame.
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxFrameSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[CLIENT] Unexpected close for %s: %v", c.ID, err)
			}
			break
		}

		c.alive.Store(true)

		if c.Limiter != nil && !c.Limiter.Allow() {
			if time.Since(c.lastWarning) > 3*time.Second {
				c.sendEvent(systemEvent("⚠️ Rate limit exceeded."))
				c.lastWarning = time.Now()
			}
			continue
		}

		ev := &InboundEvent{}
		if err := json.Unmarshal(raw, ev); err != nil {
			c.reject(rejectf(RejectValidation, "malformed payload"))
			continue
		}

		c.handleEvent(ev)
	}
}

// handleEvent dispatches one inbound event. Events of a single
// connection run serially in arrival order; this method never blocks
// on another connection's progress.
func (c *Client) handleEvent(ev *InboundEvent) {
	var err error

	switch ev.Type {
	case EvtJoin:
		err = c.handleJoin(ev)
	case EvtMessage:
		err = c.handleMessage(ev)
	case EvtImage, EvtVideo, EvtAudio, EvtFile:
		err = c.handleMedia(ev)
	case EvtDelete:
		c.handleDelete(ev)
	case EvtRequestUserList:
		err = c.handleUserListRequest()
	case EvtActiveRoom:
		c.activeRoom.Store(ev.Room)
	default:
		err = rejectf(RejectValidation, "unknown event type %q", ev.Type)
	}

	if err != nil {
		c.reject(err)
	}
}

func (c *Client) handleJoin(ev *InboundEvent) error {
	if c.Room() != "" {
		return rejectf(RejectValidation, "already joined a room")
	}

	room := strings.TrimSpace(ev.Room)
	nick := strings.TrimSpace(ev.User)
	if room == "" || nick == "" {
		return rejectf(RejectValidation, "join requires a room and a nick")
	}

	userID := ev.StringID()
	if userID == "" {
		userID = "guest_" + uuid.New().String()[:8]
	}

	// Backlog replay must finish queueing before the connection turns
	// live; registration below is what makes broadcasts reach it.
	if err := c.replayHistory(room); err != nil {
		return err
	}

	if !c.Hub.JoinRoom(c, room, nick, userID) {
		return rejectf(RejectValidation, "connection is closed")
	}

	if c.Hub.opts.JoinLeaveNotices {
		notice := nick + " joined the chat"
		c.Hub.publish(room, &Event{Type: EvtJoin, User: nick, Text: notice, Timestamp: time.Now()}, uuid.Nil)
		go c.Hub.persistNotice(room, notice)
	}

	c.Hub.BroadcastUserList(room)
	return nil
}

func (c *Client) handleMessage(ev *InboundEvent) error {
	room := c.Room()
	if room == "" {
		return rejectf(RejectValidation, "join a room first")
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return rejectf(RejectValidation, "message is empty")
	}

	cmd := ParseCommand(text)
	switch cmd.Kind {
	case CmdKick, CmdBan:
		return c.handleModeration(cmd)
	case CmdListUsers:
		return c.handleUserListRequest()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	isAdmin, isSubscribed := c.Hub.deps.Flags.Flags(ctx, c.userID)
	if !isAdmin && !isSubscribed && utf8.RuneCountInString(text) > maxTextRunes {
		return rejectf(RejectValidation, "message exceeds %d characters", maxTextRunes)
	}

	m := &models.Message{
		Room:    room,
		Sender:  c.Nick(),
		Kind:    models.KindMessage,
		Content: text,
	}
	if err := c.Hub.deps.Store.Insert(ctx, m); err != nil {
		return rejectf(RejectStorage, "failed to persist message")
	}

	c.Hub.publish(room, &Event{
		Type:      EvtMessage,
		ID:        m.ID,
		Room:      room,
		User:      m.Sender,
		Text:      m.Content,
		Timestamp: m.CreatedAt,
	}, uuid.Nil)

	if c.Hub.deps.Notifier != nil {
		exclude := append(c.Hub.ActiveViewerIDs(room), c.userID)
		go c.Hub.deps.Notifier.NotifyRoom(room, m.Sender, preview(text), exclude)
	}
	return nil
}

func (c *Client) handleModeration(cmd Command) error {
	nick := c.Nick()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	isAdmin, _ := c.Hub.deps.Flags.Flags(ctx, c.userID)
	if !isAdmin && !c.Hub.IsAuthorizedAdmin(nick) {
		return rejectf(RejectAuthorization, "moderation requires admin rights")
	}
	if cmd.Target == "" {
		return rejectf(RejectValidation, "moderation requires a target nick")
	}

	c.Hub.Moderate(nick, cmd.Target, cmd.Kind == CmdBan)
	return nil
}

func (c *Client) handleDelete(ev *InboundEvent) {
	room := c.Room()
	if room == "" {
		c.sendEvent(&Event{Type: EvtDeleteError, Reason: "join a room first"})
		return
	}

	id, ok := ev.Int64ID()
	if !ok {
		c.sendEvent(&Event{Type: EvtDeleteError, Reason: "delete requires a message id"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m, err := c.Hub.deps.Store.GetByID(ctx, id)
	if err != nil {
		c.sendEvent(&Event{Type: EvtDeleteError, ID: id, Reason: "message not found"})
		return
	}

	isAdmin, _ := c.Hub.deps.Flags.Flags(ctx, c.userID)
	if m.Sender != c.Nick() && !isAdmin {
		c.sendEvent(&Event{Type: EvtDeleteError, ID: id, Reason: "only the author or an admin may delete"})
		return
	}

	if err := c.Hub.deps.Store.DeleteByID(ctx, id); err != nil {
		c.sendEvent(&Event{Type: EvtDeleteError, ID: id, Reason: "failed to delete message"})
		return
	}

	if m.MediaURL != "" && c.Hub.deps.Objects != nil {
		// Best effort: an orphaned blob is not worth failing the delete.
		go func(ref string) {
			if err := c.Hub.deps.Objects.Delete(ref); err != nil {
				log.Printf("[CLIENT] Media cleanup failed for message %d: %v", id, err)
			}
		}(m.MediaURL)
	}

	c.sendEvent(&Event{Type: EvtDeleteOK, ID: id})
	c.Hub.publish(m.Room, &Event{Type: EvtDelete, ID: id, Room: m.Room}, uuid.Nil)
}

func (c *Client) handleUserListRequest() error {
	room := c.Room()
	if room == "" {
		return rejectf(RejectValidation, "join a room first")
	}

	c.sendEvent(&Event{
		Type:      EvtUserList,
		Room:      room,
		Users:     c.Hub.Nicks(room),
		Timestamp: time.Now(),
	})
	return nil
}

// sendEvent queues a frame for this connection only.
func (c *Client) sendEvent(ev *Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[CLIENT] Marshal error for %s event: %v", ev.Type, err)
		return
	}
	if !c.Hub.safeSend(c, payload) {
		log.Printf("[CLIENT] Dropped %s event for %s (closed or saturated)", ev.Type, c.ID)
	}
}

// reject reports an operation failure to this connection only.
func (c *Client) reject(err error) {
	if rej, ok := err.(*Reject); ok {
		c.sendEvent(&Event{Type: EvtError, Reason: rej.Reason})
		return
	}
	log.Printf("[CLIENT] Internal error for %s: %v", c.ID, err)
	c.sendEvent(&Event{Type: EvtError, Reason: "internal error"})
}

func preview(text string) string {
	const max = 80
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max]) + "…"
}
