package api

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v3"
)

// Inbound participant requests.
type (
	ChatMessageRequest struct {
		Content string `json:"content"`
	}
	PassControlRequest struct {
		Target  string  `json:"target_user_id"`
		Version *uint64 `json:"version,omitempty"`
	}
	// SignalRequest covers offer, answer and candidate messages.
	// The sender id is never read from the client.
	SignalRequest struct {
		To        string          `json:"to_user_id"`
		Sdp       json.RawMessage `json:"sdp,omitempty"`
		Candidate json.RawMessage `json:"candidate,omitempty"`
	}
	NavigateRequest struct {
		Url string `json:"url"`
	}
	ClickRequest struct {
		X *int `json:"x"`
		Y *int `json:"y"`
	}
	TypeRequest struct {
		Text string `json:"text"`
	}
	KeypressRequest struct {
		Key string `json:"key"`
	}
	ScrollRequest struct {
		DeltaX int `json:"delta_x"`
		DeltaY int `json:"delta_y"`
	}
)

// Outbound participant notifications.
type (
	Member struct {
		Id          string    `json:"user_id"`
		Name        string    `json:"username"`
		Role        string    `json:"role"`
		JoinedAt    time.Time `json:"joined_at"`
		VoiceJoined bool      `json:"voice_joined"`
	}
	RoomStateNotify struct {
		Header
		Code           string             `json:"room_code"`
		HostId         string             `json:"host_id"`
		Participants   []Member           `json:"participants"`
		HolderId       string             `json:"holder_id,omitempty"`
		Version        uint64             `json:"version"`
		BrowserRunning bool               `json:"browser_running"`
		IceServers     []webrtc.ICEServer `json:"ice_servers,omitempty"`
	}
	UserNotify struct {
		Header
		UserId   string `json:"user_id"`
		Username string `json:"username"`
	}
	RoomClosedNotify struct {
		Header
		Reason string `json:"reason"`
	}
	ControlChangedNotify struct {
		Header
		HolderId   string `json:"holder_id,omitempty"`
		HolderName string `json:"holder_username,omitempty"`
		Reason     string `json:"reason"`
		Version    uint64 `json:"version"`
	}
	ChatMessageNotify struct {
		Header
		MessageId string `json:"message_id"`
		UserId    string `json:"user_id"`
		Username  string `json:"username"`
		Content   string `json:"content"`
	}
	SignalNotify struct {
		Header
		From      string          `json:"from_user_id"`
		To        string          `json:"to_user_id"`
		Sdp       json.RawMessage `json:"sdp,omitempty"`
		Candidate json.RawMessage `json:"candidate,omitempty"`
	}
	BrowserStateNotify struct {
		Header
		Running bool   `json:"running"`
		Reason  string `json:"reason,omitempty"`
	}
	BrowserFrameNotify struct {
		Header
		Frame string `json:"frame"`
		Url   string `json:"url,omitempty"`
	}
	BrowserUrlNotify struct {
		Header
		Url string `json:"url"`
	}
	ErrorNotify struct {
		Header
		Code    string `json:"code"`
		Message string `json:"message"`
		Request Event  `json:"request,omitempty"`
	}
)
