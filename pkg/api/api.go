// Package api defines the wire format of the coordinator.
//
// Every message in both directions is a single JSON object with the mandatory
// "event" field naming its type; the rest of the fields depend on the event:
//
//	{"event":"pass_control","target_user_id":"42"}
//	{"event":"control_changed","holder_id":"42","reason":"pass","version":3,"timestamp":"..."}
//
// Decoding is done in two passes: first only the event name is read,
// then the same bytes are unwrapped into the event's payload structure.
package api

import (
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

type Event string

// Participant channel events.
const (
	UserJoined  Event = "user_joined"
	UserLeft    Event = "user_left"
	LeaveRoom   Event = "leave_room"
	RoomState   Event = "room_state"
	RoomClosed  Event = "room_closed"
	ChatMessage Event = "chat_message"
	Error       Event = "error"

	RequestControl   Event = "request_control"
	PassControl      Event = "pass_control"
	TakeControl      Event = "take_control"
	ControlChanged   Event = "control_changed"
	ControlRequested Event = "control_requested"

	VoiceJoin         Event = "voice_join"
	VoiceLeave        Event = "voice_leave"
	VoiceOffer        Event = "voice_offer"
	VoiceAnswer       Event = "voice_answer"
	VoiceIceCandidate Event = "voice_ice_candidate"

	BrowserNavigate   Event = "browser_navigate"
	BrowserClick      Event = "browser_click"
	BrowserType       Event = "browser_type"
	BrowserKeypress   Event = "browser_keypress"
	BrowserScroll     Event = "browser_scroll"
	BrowserStart      Event = "browser_start"
	BrowserStop       Event = "browser_stop"
	BrowserState      Event = "browser_state"
	BrowserFrame      Event = "browser_frame"
	BrowserUrlChanged Event = "browser_url_changed"
)

// Automation worker channel events.
const (
	WorkerHello    Event = "worker_hello"
	BrowserCrashed Event = "browser_crashed"
)

func (e Event) String() string { return string(e) }

// IsBrowser tells if the event belongs to the shared browser family.
func (e Event) IsBrowser() bool { return strings.HasPrefix(string(e), "browser_") }

var (
	ErrMalformed = errors.New("malformed envelope")
	ErrNoEvent   = errors.New("missing event")
)

// In is an inbound message with its payload left undecoded.
type In struct {
	Event Event
	Raw   []byte
}

// Header is embedded into every outbound message.
type Header struct {
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

func Head(e Event, t time.Time) Header { return Header{Event: e, Timestamp: t.UTC()} }

// Decode reads only the event name of a message.
func Decode(data []byte) (In, error) {
	var env struct {
		Event Event `json:"event"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return In{}, ErrMalformed
	}
	if env.Event == "" {
		return In{}, ErrNoEvent
	}
	return In{Event: env.Event, Raw: data}, nil
}

// Encode marshals any outbound structure.
func Encode(v any) ([]byte, error) { return json.Marshal(v) }

func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}

// UnwrapIn decodes the payload of an inbound message.
func UnwrapIn[T any](in In) (*T, error) {
	v := Unwrap[T](in.Raw)
	if v == nil {
		return nil, ErrMalformed
	}
	return v, nil
}
