// Package chat holds the connection registry and room broadcast engine:
// it tracks live websocket connections, maps them to identity and room
// state, fans messages out to the right subset, replays backlog on join
// and enforces moderation and liveness.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"chatrelay/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait        = 5 * time.Second
	defaultProbeGap  = 30 * time.Second
	defaultRetention = 15
)

type Options struct {
	// Broadcast (and persist) join/leave system notices.
	JoinLeaveNotices bool

	// Messages older than this many days are evicted before replay.
	RetentionDays int

	// Interval between liveness probes. A connection that misses two
	// consecutive probes is reclaimed.
	ProbeInterval time.Duration

	// Nicks allowed to kick/ban regardless of persisted flags.
	AdminNicks []string
}

type Deps struct {
	Store    MessageStore
	Flags    FlagSource
	Objects  ObjectStore
	Notifier Notifier
	Mailer   Mailer
}

// RoomCast is one queued fan-out: an event for every live member of a
// room, minus an optional excluded connection.
type RoomCast struct {
	Room    string
	Exclude uuid.UUID
	Event   *Event
}

type Hub struct {
	mu          sync.RWMutex
	clients     map[uuid.UUID]*Client
	rooms       map[string]map[uuid.UUID]*Client
	transcripts map[string][]string

	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan RoomCast
	Quit       chan struct{}

	opts       Options
	deps       Deps
	adminNicks map[string]bool
}

func NewHub(opts Options, deps Deps) *Hub {
	log.Println("[HUB] Initializing new Hub instance...")

	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = defaultProbeGap
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = defaultRetention
	}

	admins := make(map[string]bool, len(opts.AdminNicks))
	for _, nick := range opts.AdminNicks {
		admins[nick] = true
	}

	return &Hub{
		clients:     make(map[uuid.UUID]*Client),
		rooms:       make(map[string]map[uuid.UUID]*Client),
		transcripts: make(map[string][]string),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		Broadcast:   make(chan RoomCast, 256),
		Quit:        make(chan struct{}),
		opts:        opts,
		deps:        deps,
		adminNicks:  admins,
	}
}

// Run is the hub's single event loop. All index mutations and all
// broadcast fan-outs pass through here, so successive broadcasts for a
// room are never reordered relative to each other.
func (h *Hub) Run() {
	log.Println("[HUB] Main loop started. Listening for events...")

	ticker := time.NewTicker(h.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.Quit:
			log.Println("[HUB] Quit signal received. Shutting down all client connections...")
			h.mu.RLock()
			all := make([]*Client, 0, len(h.clients))
			for _, c := range h.clients {
				all = append(all, c)
			}
			h.mu.RUnlock()
			for _, c := range all {
				h.removeClient(c)
			}
			return

		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client.ID] = client
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[HUB] Connection %s accepted. Total active: %d", client.ID, total)

		case client := <-h.Unregister:
			h.removeClient(client)

		case cast := <-h.Broadcast:
			h.deliver(cast)

		case <-ticker.C:
			h.sweepLiveness()
		}
	}
}

// JoinRoom moves an accepted connection into a room. Identity fields
// and the membership maps mutate under one lock so a concurrent
// broadcast snapshot never sees a half-joined connection. A
// connection that closed while its join was in flight is refused;
// its cleanup already ran and would never run again.
func (h *Hub) JoinRoom(c *Client, room, nick, userID string) bool {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		log.Printf("[HUB] Refusing join for closed connection %s", c.ID)
		return false
	}
	c.nick = nick
	c.userID = userID
	c.room = room
	set, ok := h.rooms[room]
	if !ok {
		set = make(map[uuid.UUID]*Client)
		h.rooms[room] = set
	}
	set[c.ID] = c
	members := len(set)
	h.mu.Unlock()

	log.Printf("[HUB] %s joined room %q (%d member(s))", nick, room, members)
	return true
}

// removeClient runs the ordinary close path. It is idempotent: a
// second close of the same connection is a no-op.
func (h *Hub) removeClient(c *Client) {
	c.closeOnce.Do(func() {
		var (
			room, nick string
			wasJoined  bool
			emptied    bool
			transcript []string
		)

		h.mu.Lock()
		delete(h.clients, c.ID)
		room, nick = c.room, c.nick
		if room != "" {
			wasJoined = true
			if set, ok := h.rooms[room]; ok {
				delete(set, c.ID)
				if len(set) == 0 {
					delete(h.rooms, room)
					emptied = true
					transcript = h.transcripts[room]
					delete(h.transcripts, room)
				}
			}
		}
		c.closed = true
		remaining := len(h.clients)
		h.mu.Unlock()

		close(c.Send)
		log.Printf("[HUB] Session closed for %s. Active clients remaining: %d", c.ID, remaining)

		if wasJoined {
			if h.opts.JoinLeaveNotices {
				notice := fmt.Sprintf("%s left the chat", nick)
				h.publish(room, &Event{Type: EvtLeave, User: nick, Text: notice, Timestamp: time.Now()}, uuid.Nil)
				go h.persistNotice(room, notice)
			}
			h.BroadcastUserList(room)
		}

		if emptied && len(transcript) > 0 && h.deps.Mailer != nil {
			summary := buildSummary(room, transcript)
			go h.deps.Mailer.SendSummary(summary)
		}
	})
}

// deliver fans one event out to every live member of the room. A
// failed or saturated recipient is evicted and never blocks the rest.
func (h *Hub) deliver(cast RoomCast) {
	payload, err := json.Marshal(cast.Event)
	if err != nil {
		log.Printf("[HUB] Marshal error for %s event: %v", cast.Event.Type, err)
		return
	}

	for _, member := range h.MembersOf(cast.Room) {
		if member.ID == cast.Exclude {
			continue
		}
		if !h.safeSend(member, payload) {
			log.Printf("[HUB] WARNING: Client %s buffer full or closed. Evicting slow consumer.", member.ID)
			go func(c *Client) { h.Unregister <- c }(member)
		}
	}

	switch cast.Event.Type {
	case EvtMessage, EvtImage, EvtVideo, EvtAudio, EvtFile:
		h.appendTranscript(cast.Room, cast.Event)
	}
}

// safeSend enqueues a payload for one connection, refusing closed or
// saturated ones. The recover guards the race between a send and the
// channel closing on the cleanup path.
func (h *Hub) safeSend(c *Client, payload []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, exists := h.clients[c.ID]; !exists || c.closed {
		return false
	}

	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// publish queues a fan-out without blocking the caller.
func (h *Hub) publish(room string, ev *Event, exclude uuid.UUID) {
	select {
	case h.Broadcast <- RoomCast{Room: room, Exclude: exclude, Event: ev}:
	default:
		log.Printf("[HUB] CRITICAL: Broadcast channel full, dropping %s event for room %q", ev.Type, room)
	}
}

// MembersOf returns a point-in-time snapshot of a room's membership.
func (h *Hub) MembersOf(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.rooms[room]
	members := make([]*Client, 0, len(set))
	for _, c := range set {
		members = append(members, c)
	}
	return members
}

// FindByNick locates a live connection by nick across all rooms, using
// the same consistent snapshot as broadcast reads. Moderation targets
// are not room-scoped.
func (h *Hub) FindByNick(nick string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if c.nick == nick && c.room != "" {
			return c
		}
	}
	return nil
}

// Nicks returns the sorted display names of a room's members.
func (h *Hub) Nicks(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.rooms[room]
	nicks := make([]string, 0, len(set))
	for _, c := range set {
		nicks = append(nicks, c.nick)
	}
	sort.Strings(nicks)
	return nicks
}

// BroadcastUserList pushes a fresh member-nick list to the room.
func (h *Hub) BroadcastUserList(room string) {
	h.publish(room, &Event{
		Type:      EvtUserList,
		Room:      room,
		Users:     h.Nicks(room),
		Timestamp: time.Now(),
	}, uuid.Nil)
}

// ActiveViewerIDs returns the user ids of connections currently
// viewing a room, per their active_room reports. They see the message
// on screen, so push notifications skip them.
func (h *Hub) ActiveViewerIDs(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ids []string
	for _, c := range h.clients {
		if c.userID != "" && c.ActiveRoom() == room {
			ids = append(ids, c.userID)
		}
	}
	return ids
}

// IsAuthorizedAdmin reports whether a nick is on the moderation
// allow-list.
func (h *Hub) IsAuthorizedAdmin(nick string) bool {
	return h.adminNicks[nick]
}

// Moderate force-closes the target's connection with a terminal notice
// and announces the action to the target's room. A missing target is a
// silent no-op. Authorization is the caller's job.
func (h *Hub) Moderate(actorNick, targetNick string, ban bool) {
	target := h.FindByNick(targetNick)
	if target == nil {
		log.Printf("[HUB] Moderation target %q not connected, ignoring", targetNick)
		return
	}

	h.mu.RLock()
	room := target.room
	h.mu.RUnlock()

	verb := "kicked"
	terminal := &Event{Type: EvtKick, User: targetNick, Reason: fmt.Sprintf("You were kicked by %s", actorNick)}
	if ban {
		verb = "banned"
		terminal = &Event{Type: EvtBan, User: targetNick, Reason: fmt.Sprintf("You were banned by %s", actorNick)}
	}

	if payload, err := json.Marshal(terminal); err == nil {
		h.safeSend(target, payload)
	}
	if ban {
		if payload, err := json.Marshal(&Event{Type: EvtLogout, User: targetNick}); err == nil {
			h.safeSend(target, payload)
		}
	}

	log.Printf("[HUB] %s %s %s", actorNick, verb, targetNick)
	h.removeClient(target)
	h.publish(room, systemEvent(fmt.Sprintf("%s was %s by %s", targetNick, verb, actorNick)), uuid.Nil)
}

// sweepLiveness is the periodic probe: connections that never
// acknowledged the previous probe are reclaimed through the ordinary
// close path, everyone else gets a fresh ping.
func (h *Hub) sweepLiveness() {
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		if !c.alive.Load() {
			log.Printf("[HUB] Client %s missed its liveness probe. Terminating.", c.ID)
			c.Conn.Close()
			h.removeClient(c)
			continue
		}

		c.alive.Store(false)
		deadline := time.Now().Add(writeWait)
		if err := c.Conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			log.Printf("[HUB] Ping failed for %s: %v. Terminating.", c.ID, err)
			c.Conn.Close()
			h.removeClient(c)
		}
	}
}

// appendTranscript keeps the in-memory room log handed to the mailer
// when the room empties.
func (h *Hub) appendTranscript(room string, ev *Event) {
	line := ev.Text
	if line == "" {
		line = ev.URL
	}
	entry := fmt.Sprintf("[%s] %s: %s", ev.Timestamp.Format("15:04:05"), ev.User, line)

	h.mu.Lock()
	h.transcripts[room] = append(h.transcripts[room], entry)
	h.mu.Unlock()
}

func (h *Hub) persistNotice(room, text string) {
	if h.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m := &models.Message{Room: room, Sender: "SYSTEM", Kind: models.KindSystem, Content: text}
	if err := h.deps.Store.Insert(ctx, m); err != nil {
		log.Printf("[HUB] Failed to persist system notice for room %q: %v", room, err)
	}
}

func buildSummary(room string, transcript []string) string {
	header := fmt.Sprintf("Room %q emptied after %d message(s):\n\n", room, len(transcript))
	body := ""
	for _, line := range transcript {
		body += line + "\n"
	}
	return header + body
}
