package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/watchparty/coordinator/pkg/api"
	"github.com/watchparty/coordinator/pkg/identity"
	"github.com/watchparty/coordinator/pkg/logger"
	"golang.org/x/time/rate"
)

type msg map[string]any

func (m msg) event() string       { s, _ := m["event"].(string); return s }
func (m msg) str(k string) string { s, _ := m[k].(string); return s }

type fakeSocket struct {
	mu     sync.Mutex
	out    []msg
	code   int
	reason string
	closed bool
}

func (s *fakeSocket) Write(data []byte) bool {
	var m msg
	if err := json.Unmarshal(data, &m); err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.code != 0 {
		return false
	}
	s.out = append(s.out, m)
	return true
}

func (s *fakeSocket) Shutdown(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.code == 0 {
		s.code, s.reason = code, reason
	}
}

func (s *fakeSocket) Close() { s.mu.Lock(); s.closed = true; s.mu.Unlock() }

func (s *fakeSocket) all() []msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]msg(nil), s.out...)
}

func (s *fakeSocket) of(event api.Event) (out []msg) {
	for _, m := range s.all() {
		if m.event() == event.String() {
			out = append(out, m)
		}
	}
	return
}

func (s *fakeSocket) last(event api.Event) msg {
	list := s.of(event)
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (s *fakeSocket) reset() { s.mu.Lock(); s.out = nil; s.mu.Unlock() }

func (s *fakeSocket) shut() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.reason
}

type call struct {
	name string
	args string
}

type fakeBridge struct {
	mu       sync.Mutex
	calls    []call
	startErr error
}

func (b *fakeBridge) record(name, args string) {
	b.mu.Lock()
	b.calls = append(b.calls, call{name: name, args: args})
	b.mu.Unlock()
}

func (b *fakeBridge) Start(room string) error {
	b.record("start", room)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startErr
}
func (b *fakeBridge) Stop(room string) error { b.record("stop", room); return nil }
func (b *fakeBridge) Navigate(room, url string) error {
	b.record("navigate", url)
	return nil
}
func (b *fakeBridge) Click(room string, x, y int) error {
	b.record("click", fmt.Sprintf("%d,%d", x, y))
	return nil
}
func (b *fakeBridge) Type(room, text string) error    { b.record("type", text); return nil }
func (b *fakeBridge) Keypress(room, key string) error { b.record("keypress", key); return nil }
func (b *fakeBridge) Scroll(room string, dx, dy int) error {
	b.record("scroll", fmt.Sprintf("%d,%d", dx, dy))
	return nil
}

func (b *fakeBridge) count(name string) (n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if c.name == name {
			n++
		}
	}
	return
}

func (b *fakeBridge) lastArgs(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.calls) - 1; i >= 0; i-- {
		if b.calls[i].name == name {
			return b.calls[i].args
		}
	}
	return ""
}

func (b *fakeBridge) failStart(err error) { b.mu.Lock(); b.startErr = err; b.mu.Unlock() }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time      { c.mu.Lock(); defer c.mu.Unlock(); return c.t }
func (c *clock) Add(d time.Duration) { c.mu.Lock(); c.t = c.t.Add(d); c.mu.Unlock() }

// env is a directory with a fake browser bridge and a fake clock.
type env struct {
	t      *testing.T
	dir    *Directory
	bridge *fakeBridge
	clock  *clock
}

func newEnv(t *testing.T, opts ...func(*DirectoryOptions)) *env {
	t.Helper()
	e := &env{t: t, bridge: &fakeBridge{}, clock: newClock()}
	o := DirectoryOptions{Bridge: e.bridge, Now: e.clock.Now}
	for _, opt := range opts {
		opt(&o)
	}
	e.dir = NewDirectory(o, logger.Nop())
	return e
}

func (e *env) room(host string) *Room {
	e.t.Helper()
	r, err := e.dir.CreateRoom(host, "test")
	if err != nil {
		e.t.Fatal(err)
	}
	return r
}

type peer struct {
	*Conn
	sock *fakeSocket
}

func newPeer(id string) peer {
	sock := &fakeSocket{}
	return peer{Conn: NewConn(sock, identity.Identity{UserId: id, Name: "name-" + id}, rate.Inf, 0, logger.Nop()), sock: sock}
}

func (e *env) join(r *Room, id string) peer {
	e.t.Helper()
	p := newPeer(id)
	if err := r.Join(p.Conn); err != nil {
		e.t.Fatalf("join %v: %v", id, err)
	}
	return p
}

func send(r *Room, p peer, data string) error {
	in, err := api.Decode([]byte(data))
	if err != nil {
		return err
	}
	return r.Handle(p.Conn, in)
}

func mustSend(t *testing.T, r *Room, p peer, data string) {
	t.Helper()
	if err := send(r, p, data); err != nil {
		t.Fatalf("%s: %v", data, err)
	}
}

func expectErr(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}
