package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"chatrelay/internal/models"

	"github.com/gorilla/websocket"
)

// --- collaborator fakes ---

var errTest = fmt.Errorf("injected failure")

type fakeStore struct {
	mu        sync.Mutex
	nextID       int64
	inserts      int
	rows         map[int64]*models.Message
	backlog      []*models.Message
	evictions    []time.Time
	insertErr    error
	insertFailAt int // fail the nth Insert call (1-based), 0 = never
	listErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[int64]*models.Message)}
}

func (s *fakeStore) Insert(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.insertFailAt > 0 && s.inserts == s.insertFailAt {
		return errTest
	}
	s.nextID++
	m.ID = s.nextID
	m.CreatedAt = time.Now()
	dup := *m
	s.rows[m.ID] = &dup
	return nil
}

func (s *fakeStore) ListOrdered(_ context.Context, room string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*models.Message
	for _, m := range s.backlog {
		if m.Room == room {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("no rows")
	}
	dup := *m
	return &dup, nil
}

func (s *fakeStore) DeleteByID(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return fmt.Errorf("no rows")
	}
	delete(s.rows, id)
	return nil
}

func (s *fakeStore) DeleteOlderThan(_ context.Context, room string, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictions = append(s.evictions, cutoff)
	return nil
}

func (s *fakeStore) has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[id]
	return ok
}

func (s *fakeStore) insertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type fakeFlags struct {
	mu    sync.Mutex
	admin map[string]bool
	subs  map[string]bool
}

func newFakeFlags() *fakeFlags {
	return &fakeFlags{admin: make(map[string]bool), subs: make(map[string]bool)}
}

func (f *fakeFlags) Flags(_ context.Context, userID string) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admin[userID], f.subs[userID]
}

type fakeObjects struct {
	mu       sync.Mutex
	seq      int
	stored   map[string][]byte
	deleted  []string
	storeErr error
	failAt   int // fail the nth Store call (1-based), 0 = never
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{stored: make(map[string][]byte)}
}

func (o *fakeObjects) Store(data []byte, mimeType, name string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	if o.storeErr != nil || (o.failAt > 0 && o.seq == o.failAt) {
		if o.storeErr != nil {
			return "", o.storeErr
		}
		return "", fmt.Errorf("store blew up")
	}
	ref := fmt.Sprintf("http://example.test/media/obj-%d", o.seq)
	o.stored[ref] = data
	return ref, nil
}

func (o *fakeObjects) Delete(ref string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.stored, ref)
	o.deleted = append(o.deleted, ref)
	return nil
}

func (o *fakeObjects) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.stored)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) NotifyRoom(room, title, body string, exclude []string) {
	sorted := append([]string(nil), exclude...)
	sort.Strings(sorted)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, room+"|"+title+"|"+body+"|"+strings.Join(sorted, ","))
}

type fakeMailer struct {
	summaries chan string
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{summaries: make(chan string, 4)}
}

func (m *fakeMailer) SendSummary(text string) {
	select {
	case m.summaries <- text:
	default:
	}
}

// --- test rig ---

type testRig struct {
	hub     *Hub
	store   *fakeStore
	flags   *fakeFlags
	objects *fakeObjects
	pusher  *fakeNotifier
	mail    *fakeMailer
}

func newTestRig(t *testing.T, opts Options) *testRig {
	t.Helper()

	if opts.ProbeInterval == 0 {
		opts.ProbeInterval = time.Hour // keep the sweeper out of logic tests
	}

	rig := &testRig{
		store:   newFakeStore(),
		flags:   newFakeFlags(),
		objects: newFakeObjects(),
		pusher:  &fakeNotifier{},
		mail:    newFakeMailer(),
	}
	rig.hub = NewHub(opts, Deps{
		Store:    rig.store,
		Flags:    rig.flags,
		Objects:  rig.objects,
		Notifier: rig.pusher,
		Mailer:   rig.mail,
	})

	go rig.hub.Run()
	t.Cleanup(func() { close(rig.hub.Quit) })

	return rig
}

// connect registers a bare connection, as the HTTP handler would.
func (r *testRig) connect(t *testing.T) *Client {
	t.Helper()
	c := NewClient(r.hub, nil, nil)
	r.hub.Register <- c
	waitFor(t, func() bool {
		r.hub.mu.RLock()
		defer r.hub.mu.RUnlock()
		_, ok := r.hub.clients[c.ID]
		return ok
	})
	return c
}

// join connects and joins a room in one step, draining the replay and
// join-time frames so tests start from a quiet channel.
func (r *testRig) join(t *testing.T, room, nick, userID string) *Client {
	t.Helper()
	c := r.connect(t)
	c.handleEvent(&InboundEvent{Type: EvtJoin, Room: room, User: nick, ID: json.RawMessage(`"` + userID + `"`)})
	waitFor(t, func() bool { return c.Room() == room })
	drain(t, c)
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

// recvEvent pops the next frame off a client's send queue.
func recvEvent(t *testing.T, c *Client) *Event {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		if !ok {
			t.Fatal("send channel closed")
		}
		ev := &Event{}
		if err := json.Unmarshal(raw, ev); err != nil {
			t.Fatalf("bad frame %q: %v", raw, err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// recvEventOfType skips frames until one of the wanted type arrives.
func recvEventOfType(t *testing.T, c *Client, want EventType) *Event {
	t.Helper()
	for i := 0; i < 20; i++ {
		ev := recvEvent(t, c)
		if ev.Type == want {
			return ev
		}
	}
	t.Fatalf("never received %s event", want)
	return nil
}

// expectNoEvent asserts the client's queue stays silent briefly.
func expectNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected frame: %s", raw)
	case <-time.After(100 * time.Millisecond):
	}
}

// drain empties whatever is currently queued for a client.
func drain(t *testing.T, c *Client) {
	t.Helper()
	// Give the hub loop a beat to flush pending fan-outs.
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}

// newWSPair upgrades a real websocket connection over httptest and
// hands back the server side plus the raw client side.
func newWSPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverSide := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { clientConn.Close() })

	select {
	case conn := <-serverSide:
		t.Cleanup(func() { conn.Close() })
		return conn, clientConn
	case <-time.After(2 * time.Second):
		t.Fatal("server side never arrived")
		return nil, nil
	}
}
