package coordinator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/watchparty/coordinator/pkg/api"
	"github.com/watchparty/coordinator/pkg/config"
	"github.com/watchparty/coordinator/pkg/identity"
	"github.com/watchparty/coordinator/pkg/logger"
	"github.com/watchparty/coordinator/pkg/network/httpx"
	"github.com/watchparty/coordinator/pkg/persistence"
)

type testHub struct {
	*Hub
	srv    *httptest.Server
	bridge *fakeBridge
	store  *persistence.Memory
}

func newTestHub(t *testing.T, conf config.Coordinator) *testHub {
	t.Helper()
	log := logger.Nop()
	store := persistence.NewMemory(time.Hour)
	persister := NewPersister(store, nil, 1, 64, log)
	persister.Run()
	bridge := &fakeBridge{}
	dir := NewDirectory(DirectoryOptions{Bridge: bridge, Persister: persister}, log)

	if conf.Chat.HistoryPage == 0 {
		conf.Chat.HistoryPage = 50
	}
	hub := NewHub(conf, dir, NewGuild(log), store, identity.Insecure{}, log)
	mux := httpx.NewServeMux("")
	hub.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		dir.CloseAll(ClosedShutdown)
		srv.Close()
		_ = persister.Shutdown(context.Background())
	})
	return &testHub{Hub: hub, srv: srv, bridge: bridge, store: store}
}

func (h *testHub) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(data) > 0 {
		_ = json.Unmarshal(data, &out)
	}
	return resp.StatusCode, out
}

func (h *testHub) create(t *testing.T, token string) string {
	t.Helper()
	status, out := h.do(t, http.MethodPost, "/api/rooms", token, `{"title":"movie night"}`)
	if status != http.StatusCreated {
		t.Fatalf("create room: %v %v", status, out)
	}
	return out["room_code"].(string)
}

func (h *testHub) dial(t *testing.T, code, token string) *websocket.Conn {
	t.Helper()
	addr := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws/" + code + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// next reads messages until one of the event arrives.
func next(t *testing.T, conn *websocket.Conn, event api.Event) msg {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %v: %v", event, err)
		}
		var m msg
		if err = json.Unmarshal(data, &m); err != nil {
			t.Fatal(err)
		}
		if m.event() == event.String() {
			return m
		}
	}
}

func closeCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return ce.Code
			}
			t.Fatalf("no close frame: %v", err)
		}
	}
}

func TestHttpRooms(t *testing.T) {
	h := newTestHub(t, config.Coordinator{})

	if status, _ := h.do(t, http.MethodPost, "/api/rooms", "", ""); status != http.StatusUnauthorized {
		t.Errorf("create without token: %v", status)
	}
	if status, _ := h.do(t, http.MethodPost, "/api/rooms", "h", "{"); status != http.StatusBadRequest {
		t.Errorf("create with a broken body: %v", status)
	}
	code := h.create(t, "h:Host")

	if status, _ := h.do(t, http.MethodGet, "/api/rooms/"+code, "", ""); status != http.StatusUnauthorized {
		t.Errorf("get room without token: %v", status)
	}
	status, room := h.do(t, http.MethodGet, "/api/rooms/"+strings.ToLower(code), "g", "")
	if status != http.StatusOK || room["host_id"] != "h" || room["title"] != "movie night" || room["state"] != "open" {
		t.Errorf("get room: %v %v", status, room)
	}

	history := "/api/rooms/" + code + "/messages"
	for _, test := range []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{name: "no token", path: history, want: http.StatusUnauthorized},
		{name: "stranger", path: history, token: "s", want: http.StatusForbidden},
		{name: "host", path: history, token: "h", want: http.StatusOK},
		{name: "bad cursor", path: history + "?before_id=42", token: "h", want: http.StatusBadRequest},
		{name: "unknown room", path: "/api/rooms/nope00/messages", token: "h", want: http.StatusNotFound},
	} {
		if status, body := h.do(t, http.MethodGet, test.path, test.token, ""); status != test.want {
			t.Errorf("history, %v: %v %v", test.name, status, body)
		}
	}

	if status, _ := h.do(t, http.MethodGet, "/api/rooms", "", ""); status != http.StatusUnauthorized {
		t.Errorf("list without token: %v", status)
	}
	if _, body := h.do(t, http.MethodGet, "/api/rooms", "h", ""); len(body["rooms"].([]any)) != 1 {
		t.Errorf("host rooms: %v", body)
	}
	if _, body := h.do(t, http.MethodGet, "/api/rooms", "s", ""); len(body["rooms"].([]any)) != 0 {
		t.Errorf("stranger rooms: %v", body)
	}

	if status, _ = h.do(t, http.MethodDelete, "/api/rooms/"+code, "g", ""); status != http.StatusForbidden {
		t.Errorf("delete by a guest: %v", status)
	}
	if status, _ = h.do(t, http.MethodDelete, "/api/rooms/"+code, "h", ""); status != http.StatusNoContent {
		t.Errorf("delete by the host: %v", status)
	}
	if status, body := h.do(t, http.MethodGet, "/api/rooms/"+code, "h", ""); status != http.StatusNotFound || body["code"] != "not_found" {
		t.Errorf("get closed room: %v %v", status, body)
	}
	if _, body := h.do(t, http.MethodGet, "/api/rooms", "h", ""); len(body["rooms"].([]any)) != 0 {
		t.Errorf("closed room is listed: %v", body)
	}
	if status, body := h.do(t, http.MethodGet, "/healthz", "", ""); status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health: %v %v", status, body)
	}
}

func TestWebsocketSession(t *testing.T) {
	h := newTestHub(t, config.Coordinator{})
	code := h.create(t, "h")

	host := h.dial(t, code, "h:Host")
	if m := next(t, host, api.RoomState); m.str("room_code") != code || m.str("host_id") != "h" {
		t.Errorf("room_state %v", m)
	}
	if m := next(t, host, api.ControlChanged); m.str("holder_id") != "h" {
		t.Errorf("control %v", m)
	}

	guest := h.dial(t, strings.ToUpper(code), "g:Guest")
	next(t, guest, api.RoomState)
	if m := next(t, host, api.UserJoined); m.str("user_id") != "g" || m.str("username") != "Guest" {
		t.Errorf("user_joined %v", m)
	}

	if err := guest.WriteMessage(websocket.TextMessage, []byte(`{"event":"browser_click","x":1,"y":1}`)); err != nil {
		t.Fatal(err)
	}
	if m := next(t, guest, api.Error); m.str("code") != "authorization" || m.str("request") != "browser_click" {
		t.Errorf("error %v", m)
	}
	if err := guest.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	if m := next(t, guest, api.Error); m.str("code") != "protocol" {
		t.Errorf("error %v", m)
	}

	if err := guest.WriteMessage(websocket.TextMessage, []byte(`{"event":"chat_message","content":"hello"}`)); err != nil {
		t.Fatal(err)
	}
	if m := next(t, host, api.ChatMessage); m.str("content") != "hello" || m.str("user_id") != "g" {
		t.Errorf("chat %v", m)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, body := h.do(t, http.MethodGet, "/api/rooms/"+code+"/messages?limit=10", "g", "")
		if list, _ := body["messages"].([]any); len(list) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("chat was not persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status, _ := h.do(t, http.MethodGet, "/api/rooms/"+code+"/messages?limit=x", "g", ""); status != http.StatusBadRequest {
		t.Errorf("bad limit: %v", status)
	}

	_ = host.Close()
	if m := next(t, guest, api.RoomClosed); m.str("reason") != ClosedHostLeft {
		t.Errorf("room_closed %v", m)
	}
	if c := closeCode(t, guest); c != CloseNormal {
		t.Errorf("close code %v", c)
	}
}

func TestLeave(t *testing.T) {
	h := newTestHub(t, config.Coordinator{})
	code := h.create(t, "h")

	host := h.dial(t, code, "h")
	next(t, host, api.RoomState)
	g1 := h.dial(t, code, "g1")
	next(t, g1, api.RoomState)
	g2 := h.dial(t, code, "g2")
	next(t, g2, api.RoomState)

	if status, _ := h.do(t, http.MethodPost, "/api/rooms/"+code+"/leave", "", ""); status != http.StatusUnauthorized {
		t.Errorf("leave without token: %v", status)
	}
	if status, _ := h.do(t, http.MethodPost, "/api/rooms/"+code+"/leave", "s", ""); status != http.StatusNotFound {
		t.Errorf("leave by a stranger: %v", status)
	}
	if status, _ := h.do(t, http.MethodPost, "/api/rooms/"+code+"/leave", "g2", ""); status != http.StatusNoContent {
		t.Errorf("leave: %v", status)
	}
	if c := closeCode(t, g2); c != CloseNormal {
		t.Errorf("close code %v", c)
	}
	for {
		if m := next(t, host, api.UserLeft); m.str("user_id") == "g2" {
			break
		}
	}

	if err := host.WriteMessage(websocket.TextMessage, []byte(`{"event":"leave_room"}`)); err != nil {
		t.Fatal(err)
	}
	if m := next(t, g1, api.RoomClosed); m.str("reason") != ClosedHostLeft {
		t.Errorf("room_closed %v", m)
	}
	for name, conn := range map[string]*websocket.Conn{"host": host, "guest": g1} {
		if c := closeCode(t, conn); c != CloseNormal {
			t.Errorf("%v close code %v", name, c)
		}
	}
	if status, _ := h.do(t, http.MethodGet, "/api/rooms/"+code, "h", ""); status != http.StatusNotFound {
		t.Errorf("room is still open: %v", status)
	}
}

func TestHubShutdown(t *testing.T) {
	h := newTestHub(t, config.Coordinator{})
	code := h.create(t, "h")
	host := h.dial(t, code, "h")
	next(t, host, api.RoomState)

	if err := h.Hub.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m := next(t, host, api.RoomClosed); m.str("reason") != ClosedShutdown {
		t.Errorf("room_closed %v", m)
	}
	if c := closeCode(t, host); c != CloseNormal {
		t.Errorf("close code %v", c)
	}
	if status, body := h.do(t, http.MethodPost, "/api/rooms", "h", ""); status != http.StatusTooManyRequests {
		t.Errorf("create after shutdown: %v %v", status, body)
	}
	if c := closeCode(t, h.dial(t, code, "g")); c != CloseNotFound {
		t.Errorf("join after shutdown: %v", c)
	}
}

func TestCloseReason(t *testing.T) {
	tests := []struct {
		name string
		err  string
		want string
	}{
		{name: "short", err: "room is full", want: "room is full"},
		{name: "ascii cut", err: strings.Repeat("a", 200), want: strings.Repeat("a", maxCloseReason)},
		{name: "rune cut", err: strings.Repeat("é", 100), want: strings.Repeat("é", maxCloseReason/2)},
		{name: "rune across the limit", err: "a" + strings.Repeat("é", 100), want: "a" + strings.Repeat("é", (maxCloseReason-1)/2)},
		{name: "invalid bytes", err: "bad \xff name", want: "bad  name"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := reason(errors.New(test.err))
			if got != test.want {
				t.Errorf("got %q, want %q", got, test.want)
			}
			if !utf8.ValidString(got) || len(got) > maxCloseReason {
				t.Errorf("%q is not a valid close reason", got)
			}
		})
	}
}

func TestWebsocketRejected(t *testing.T) {
	h := newTestHub(t, config.Coordinator{})
	code := h.create(t, "h")
	next(t, h.dial(t, code, "h"), api.RoomState)

	tests := []struct {
		name  string
		code  string
		token string
		want  int
	}{
		{name: "no token", code: code, token: "", want: CloseInvalidToken},
		{name: "unknown room", code: "nope00", token: "g", want: CloseNotFound},
		{name: "duplicate", code: code, token: "h", want: CloseRejected},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if c := closeCode(t, h.dial(t, test.code, test.token)); c != test.want {
				t.Errorf("close code %v, want %v", c, test.want)
			}
		})
	}
}

func TestWebsocketRateLimit(t *testing.T) {
	conf := config.Coordinator{}
	conf.Input.Rate = 0.001
	conf.Input.Burst = 1
	h := newTestHub(t, conf)
	code := h.create(t, "h")
	host := h.dial(t, code, "h")

	for i := 0; i < 2; i++ {
		if err := host.WriteMessage(websocket.TextMessage, []byte(`{"event":"chat_message","content":"spam"}`)); err != nil {
			t.Fatal(err)
		}
	}
	next(t, host, api.ChatMessage)
	if m := next(t, host, api.Error); m.str("code") != "capacity" {
		t.Errorf("error %v", m)
	}
	if err := host.WriteMessage(websocket.TextMessage, []byte(`{"event":"take_control"}`)); err != nil {
		t.Fatal(err)
	}
	if m := next(t, host, api.ControlChanged); m.str("reason") != "host_override" {
		t.Errorf("control %v", m)
	}
}
