package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestJoinTracksRoomMembership(t *testing.T) {
	rig := newTestRig(t, Options{})

	a := rig.join(t, "general", "A", "user-a")
	b := rig.join(t, "general", "B", "user-b")
	rig.join(t, "other", "C", "user-c")

	members := rig.hub.MembersOf("general")
	if len(members) != 2 {
		t.Fatalf("expected 2 members in general, got %d", len(members))
	}
	ids := map[uuid.UUID]bool{a.ID: false, b.ID: false}
	for _, m := range members {
		if _, ok := ids[m.ID]; !ok {
			t.Fatalf("unexpected member %s", m.ID)
		}
		ids[m.ID] = true
	}
	for id, seen := range ids {
		if !seen {
			t.Errorf("member %s missing from snapshot", id)
		}
	}

	if n := len(rig.hub.MembersOf("other")); n != 1 {
		t.Fatalf("expected 1 member in other, got %d", n)
	}
}

func TestCloseRemovesFromRoomIndex(t *testing.T) {
	rig := newTestRig(t, Options{})

	a := rig.join(t, "general", "A", "user-a")
	rig.join(t, "general", "B", "user-b")

	rig.hub.Unregister <- a
	waitFor(t, func() bool { return len(rig.hub.MembersOf("general")) == 1 })

	// Closing again must be a no-op.
	rig.hub.removeClient(a)
	if n := len(rig.hub.MembersOf("general")); n != 1 {
		t.Fatalf("idempotent close violated, got %d members", n)
	}
}

func TestClosedConnectionCannotJoin(t *testing.T) {
	rig := newTestRig(t, Options{})

	c := rig.connect(t)
	rig.hub.removeClient(c)

	// The close landed between replay and registration; the join must
	// not bring the connection back.
	if rig.hub.JoinRoom(c, "general", "ghost", "user-g") {
		t.Fatal("closed connection accepted into a room")
	}
	if n := len(rig.hub.MembersOf("general")); n != 0 {
		t.Fatalf("closed connection resurrected: %d member(s)", n)
	}
	if nicks := rig.hub.Nicks("general"); len(nicks) != 0 {
		t.Fatalf("ghost nick lingers: %v", nicks)
	}
}

func TestSecondJoinRejected(t *testing.T) {
	rig := newTestRig(t, Options{})

	a := rig.join(t, "general", "A", "user-a")
	a.handleEvent(&InboundEvent{Type: EvtJoin, Room: "other", User: "A"})

	ev := recvEventOfType(t, a, EvtError)
	if !strings.Contains(ev.Reason, "already joined") {
		t.Fatalf("unexpected reason %q", ev.Reason)
	}
	if a.Room() != "general" {
		t.Fatalf("room changed to %q", a.Room())
	}
}

func TestBroadcastReachesRoomOnly(t *testing.T) {
	rig := newTestRig(t, Options{})

	a := rig.join(t, "general", "A", "user-a")
	b := rig.join(t, "general", "B", "user-b")
	c := rig.join(t, "other", "C", "user-c")

	a.handleEvent(&InboundEvent{Type: EvtMessage, Text: "hi"})

	for _, recipient := range []*Client{a, b} {
		ev := recvEventOfType(t, recipient, EvtMessage)
		if ev.User != "A" || ev.Text != "hi" {
			t.Fatalf("got user=%q text=%q", ev.User, ev.Text)
		}
		if ev.ID == 0 {
			t.Fatal("broadcast lacks the persisted id")
		}
		if ev.IsHistory {
			t.Fatal("live message tagged as history")
		}
	}

	expectNoEvent(t, c)
}

func TestBroadcastExcludesConnection(t *testing.T) {
	rig := newTestRig(t, Options{})

	a := rig.join(t, "general", "A", "user-a")
	b := rig.join(t, "general", "B", "user-b")
	drain(t, a) // flush the userlist broadcast from B's join

	rig.hub.publish("general", systemEvent("psst"), a.ID)

	ev := recvEventOfType(t, b, EvtSystem)
	if ev.Text != "psst" {
		t.Fatalf("unexpected text %q", ev.Text)
	}
	expectNoEvent(t, a)
}

func TestBroadcastOrderPreserved(t *testing.T) {
	rig := newTestRig(t, Options{})

	a := rig.join(t, "general", "A", "user-a")
	b := rig.join(t, "general", "B", "user-b")

	for _, text := range []string{"one", "two", "three"} {
		a.handleEvent(&InboundEvent{Type: EvtMessage, Text: text})
	}

	var got []string
	var ids []int64
	for len(got) < 3 {
		ev := recvEvent(t, b)
		if ev.Type != EvtMessage {
			continue
		}
		got = append(got, ev.Text)
		ids = append(ids, ev.ID)
	}
	if got[0] != "one" || got[1] != "two" || got[2] != "three" {
		t.Fatalf("messages reordered: %v", got)
	}
	if !(ids[0] < ids[1] && ids[1] < ids[2]) {
		t.Fatalf("ids not monotonic: %v", ids)
	}
}

func TestUserListSortedAndRoomScoped(t *testing.T) {
	rig := newTestRig(t, Options{})

	rig.join(t, "general", "zoe", "user-z")
	b := rig.join(t, "general", "amy", "user-a")
	rig.join(t, "other", "bob", "user-b")

	b.handleEvent(&InboundEvent{Type: EvtRequestUserList})

	ev := recvEventOfType(t, b, EvtUserList)
	if len(ev.Users) != 2 || ev.Users[0] != "amy" || ev.Users[1] != "zoe" {
		t.Fatalf("unexpected user list %v", ev.Users)
	}
}

func TestKickByNonAdminHasNoEffect(t *testing.T) {
	rig := newTestRig(t, Options{})

	mallory := rig.join(t, "general", "mallory", "user-m")
	alice := rig.join(t, "general", "alice", "user-al")

	mallory.handleEvent(&InboundEvent{Type: EvtMessage, Text: "/kick alice"})

	ev := recvEventOfType(t, mallory, EvtError)
	if !strings.Contains(ev.Reason, "admin") {
		t.Fatalf("unexpected reason %q", ev.Reason)
	}

	// Target stays connected, nothing is broadcast.
	if len(rig.hub.MembersOf("general")) != 2 {
		t.Fatal("membership changed")
	}
	expectNoEvent(t, alice)
}

func TestKickByAllowListedAdmin(t *testing.T) {
	rig := newTestRig(t, Options{AdminNicks: []string{"root"}})

	root := rig.join(t, "general", "root", "user-r")
	alice := rig.join(t, "general", "alice", "user-al")

	root.handleEvent(&InboundEvent{Type: EvtMessage, Text: "/kick alice"})

	ev := recvEventOfType(t, alice, EvtKick)
	if !strings.Contains(ev.Reason, "root") {
		t.Fatalf("terminal notice lacks actor: %q", ev.Reason)
	}

	waitFor(t, func() bool { return len(rig.hub.MembersOf("general")) == 1 })

	notice := recvEventOfType(t, root, EvtSystem)
	if !strings.Contains(notice.Text, "alice") || !strings.Contains(notice.Text, "kicked") {
		t.Fatalf("unexpected notice %q", notice.Text)
	}
}

func TestBanSendsLogout(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.flags.admin["user-r"] = true

	root := rig.join(t, "general", "root", "user-r")
	alice := rig.join(t, "general", "alice", "user-al")

	root.handleEvent(&InboundEvent{Type: EvtMessage, Text: "/ban alice"})

	if ev := recvEventOfType(t, alice, EvtBan); !strings.Contains(ev.Reason, "banned") {
		t.Fatalf("unexpected reason %q", ev.Reason)
	}
	recvEventOfType(t, alice, EvtLogout)

	waitFor(t, func() bool { return rig.hub.FindByNick("alice") == nil })
}

func TestKickAbsentTargetIsSilent(t *testing.T) {
	rig := newTestRig(t, Options{AdminNicks: []string{"root"}})

	root := rig.join(t, "general", "root", "user-r")
	root.handleEvent(&InboundEvent{Type: EvtMessage, Text: "/kick ghost"})

	expectNoEvent(t, root)
}

func TestEmptyRoomTriggersSummaryMail(t *testing.T) {
	rig := newTestRig(t, Options{})

	a := rig.join(t, "general", "A", "user-a")
	a.handleEvent(&InboundEvent{Type: EvtMessage, Text: "remember this"})
	drain(t, a)

	rig.hub.Unregister <- a

	select {
	case summary := <-rig.mail.summaries:
		if !strings.Contains(summary, "remember this") || !strings.Contains(summary, "general") {
			t.Fatalf("summary misses content: %q", summary)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no summary dispatched for emptied room")
	}
}

func TestJoinLeaveNoticesToggle(t *testing.T) {
	rig := newTestRig(t, Options{JoinLeaveNotices: true})

	a := rig.join(t, "general", "A", "user-a")
	drain(t, a)

	b := rig.connect(t)
	b.handleEvent(&InboundEvent{Type: EvtJoin, Room: "general", User: "B"})

	ev := recvEventOfType(t, a, EvtJoin)
	if ev.User != "B" {
		t.Fatalf("unexpected join notice user %q", ev.User)
	}

	rig.hub.Unregister <- b
	leave := recvEventOfType(t, a, EvtLeave)
	if leave.User != "B" {
		t.Fatalf("unexpected leave notice user %q", leave.User)
	}
}

func TestGuestGetsGeneratedIdentity(t *testing.T) {
	rig := newTestRig(t, Options{})

	c := rig.connect(t)
	c.handleEvent(&InboundEvent{Type: EvtJoin, Room: "general", User: "drifter"})
	waitFor(t, func() bool { return c.Room() == "general" })

	if !strings.HasPrefix(c.userID, "guest_") {
		t.Fatalf("guest id not generated: %q", c.userID)
	}
}
