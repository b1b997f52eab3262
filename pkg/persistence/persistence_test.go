package persistence

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func ids(messages []Message) []string {
	out := []string{}
	for _, m := range messages {
		out = append(out, m.Id)
	}
	return out
}

func fill(t *testing.T, s Store, room string) {
	t.Helper()
	ctx := context.Background()
	// out of order on purpose
	for _, m := range []Message{
		{Id: "c", Room: room, Timestamp: 30},
		{Id: "a", Room: room, Timestamp: 10},
		{Id: "b", Room: room, Timestamp: 20},
		{Id: "b2", Room: room, Timestamp: 20},
		{Id: "d", Room: room, Timestamp: 40},
		{Id: "x", Room: room + "-other", Timestamp: 15},
	} {
		if err := s.AddMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
}

func testStore(t *testing.T, s Store) {
	fill(t, s, "R1")
	tests := []struct {
		name   string
		limit  int
		before string
		want   []string
	}{
		{name: "all", want: []string{"a", "b", "b2", "c", "d"}},
		{name: "latest page", limit: 2, want: []string{"c", "d"}},
		{name: "before", limit: 2, before: "c", want: []string{"b", "b2"}},
		{name: "before, no limit", before: "d", want: []string{"a", "b", "b2", "c"}},
		{name: "same millisecond", limit: 1, before: "b2", want: []string{"b"}},
		{name: "unknown id", limit: 2, before: "bz", want: []string{"b", "b2"}},
		{name: "nothing before", before: "a", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Messages(context.Background(), "R1", tt.limit, tt.before)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(ids(got), tt.want) {
				t.Errorf("got %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory(time.Hour)
	testStore(t, m)

	room := Room{Code: "R1", HostId: "h", CreatedAt: time.Now()}
	if err := m.SaveRoom(context.Background(), room); err != nil {
		t.Fatal(err)
	}
	if r, ok := m.Room("R1"); !ok || r.HostId != "h" {
		t.Errorf("room is not saved: %+v", r)
	}

	_ = m.Close()
	if err := m.AddMessage(context.Background(), Message{Room: "R1"}); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(time.Hour)
	m.now = func() time.Time { return now }

	fill(t, m, "R1")
	if err := m.SaveRoom(ctx, Room{Code: "R1", HostId: "h", ClosedAt: now, CloseReason: "host_left"}); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveRoom(ctx, Room{Code: "R2", HostId: "h"}); err != nil {
		t.Fatal(err)
	}
	if err := m.AddMessage(ctx, Message{Id: "z", Room: "R2"}); err != nil {
		t.Fatal(err)
	}

	now = now.Add(59 * time.Minute)
	if err := m.AddMessage(ctx, Message{Id: "z2", Room: "R2"}); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Messages(ctx, "R1", 0, ""); len(got) != 5 {
		t.Errorf("history is dropped before its time, %v", ids(got))
	}

	now = now.Add(time.Minute)
	if err := m.AddMessage(ctx, Message{Id: "z3", Room: "R2"}); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Messages(ctx, "R1", 0, ""); len(got) != 0 {
		t.Errorf("expired history is kept, %v", ids(got))
	}
	if _, ok := m.Room("R1"); ok {
		t.Errorf("expired room is kept")
	}
	if got, _ := m.Messages(ctx, "R2", 0, ""); len(got) != 3 {
		t.Errorf("open room lost messages, %v", ids(got))
	}
}

func TestRedis(t *testing.T) {
	url := os.Getenv("WATCHPARTY_TEST_REDIS")
	if url == "" {
		t.Skip("redis is not configured")
	}
	s, err := NewRedis(context.Background(), url, time.Minute)
	if err != nil {
		t.Skipf("redis is not available: %v", err)
	}
	defer func() { _ = s.Close() }()
	prefix := time.Now().Format("150405.000")
	fill(t, s, prefix)

	got, err := s.Messages(context.Background(), prefix, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids(got), []string{"c", "d"}) {
		t.Errorf("got %v", ids(got))
	}
	got, err = s.Messages(context.Background(), prefix, 1, "b2")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids(got), []string{"b"}) {
		t.Errorf("got %v", ids(got))
	}
}

type fakeCloud struct {
	saved map[string][]byte
	tags  map[string]string
}

func (f *fakeCloud) Save(name string, data []byte, tags map[string]string) error {
	f.saved[name] = data
	f.tags = tags
	return nil
}
func (f *fakeCloud) Load(name string) ([]byte, error) { return f.saved[name], nil }

func TestArchive(t *testing.T) {
	m := NewMemory(time.Hour)
	fill(t, m, "R1")
	cloud := &fakeCloud{saved: map[string][]byte{}}

	room := Room{Code: "R1", HostId: "h", CloseReason: "host_left"}
	if err := NewArchive(m, cloud).Save(context.Background(), room); err != nil {
		t.Fatal(err)
	}

	data, ok := cloud.saved[TranscriptName("R1")]
	if !ok {
		t.Fatalf("no transcript in %v", cloud.saved)
	}
	var tr transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		t.Fatal(err)
	}
	if tr.Room.Code != "R1" || !reflect.DeepEqual(ids(tr.Messages), []string{"a", "b", "b2", "c", "d"}) {
		t.Errorf("unexpected transcript %+v", tr)
	}
	if cloud.tags["reason"] != "host_left" {
		t.Errorf("unexpected tags %v", cloud.tags)
	}
}
