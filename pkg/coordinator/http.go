package coordinator

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
	"github.com/watchparty/coordinator/pkg/identity"
	"github.com/watchparty/coordinator/pkg/network/httpx"
)

const (
	maxTitleLength  = 100
	maxHistoryLimit = 500
)

func (h *Hub) Routes(mux *httpx.Mux) {
	mux.HandleFunc("POST /api/rooms", h.createRoom).
		HandleFunc("GET /api/rooms", h.listRooms).
		HandleFunc("GET /api/rooms/{code}", h.getRoom).
		HandleFunc("DELETE /api/rooms/{code}", h.deleteRoom).
		HandleFunc("POST /api/rooms/{code}/leave", h.leaveRoom).
		HandleFunc("GET /api/rooms/{code}/messages", h.roomMessages).
		HandleFunc("GET /ws/{code}", h.handleUserConnection).
		HandleFunc("GET /wso", h.handleWorkerConnection).
		HandleW("GET /healthz", func(w http.ResponseWriter) {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":      "ok",
				"rooms":       h.dir.OpenCount(),
				"connections": h.registry.Len(),
			})
		})
}

type createRoomRequest struct {
	Title string `json:"title"`
}

type createRoomResponse struct {
	Code      string    `json:"room_code"`
	HostId    string    `json:"host_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errUnauthenticated = errors.New("invalid or missing token")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUnauthenticated) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthenticated", Message: err.Error()})
		return
	}
	writeJSON(w, HttpStatus(err), errorResponse{Code: Code(err), Message: err.Error()})
}

func (h *Hub) caller(r *http.Request) (identity.Identity, error) {
	id, err := h.identity.Identify(identity.Token(r))
	if err != nil {
		return identity.Identity{}, errUnauthenticated
	}
	return id, nil
}

func (h *Hub) createRoom(w http.ResponseWriter, r *http.Request) {
	id, err := h.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createRoomRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			writeError(w, protocolError("bad request body"))
			return
		}
	}
	req.Title = strings.TrimSpace(req.Title)
	if len([]rune(req.Title)) > maxTitleLength {
		writeError(w, protocolError("title too long"))
		return
	}
	room, err := h.dir.CreateRoom(id.UserId, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createRoomResponse{
		Code:      room.Code(),
		HostId:    room.HostId(),
		Title:     room.Title(),
		CreatedAt: room.CreatedAt(),
	})
}

// listRooms lists the open rooms the caller hosts or is in.
func (h *Hub) listRooms(w http.ResponseWriter, r *http.Request) {
	id, err := h.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rooms := []Snapshot{}
	for _, room := range h.dir.Rooms() {
		if !room.Has(id.UserId) {
			continue
		}
		if s := room.Snapshot(); s.State == Open.String() {
			rooms = append(rooms, s)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (h *Hub) getRoom(w http.ResponseWriter, r *http.Request) {
	if _, err := h.caller(r); err != nil {
		writeError(w, err)
		return
	}
	room, err := h.dir.Get(r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room.Snapshot())
}

func (h *Hub) deleteRoom(w http.ResponseWriter, r *http.Request) {
	id, err := h.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	room, err := h.dir.Get(r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	if room.HostId() != id.UserId {
		writeError(w, authorizationError("only the host can close the room"))
		return
	}
	if !room.Close(ClosedHostClosed) {
		writeError(w, notFoundError("room %v not found", room.Code()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Hub) leaveRoom(w http.ResponseWriter, r *http.Request) {
	id, err := h.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.dir.LeaveRoom(r.PathValue("code"), id.UserId); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// roomMessages pages through the chat history of a room,
// only its host and present participants may read it.
func (h *Hub) roomMessages(w http.ResponseWriter, r *http.Request) {
	id, err := h.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	room, err := h.dir.Get(r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !room.Has(id.UserId) {
		writeError(w, authorizationError("you are not in room %v", room.Code()))
		return
	}
	q := r.URL.Query()
	limit := h.conf.Chat.HistoryPage
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, protocolError("bad limit"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	before := q.Get("before_id")
	if before != "" {
		if _, err := ulid.ParseStrict(before); err != nil {
			writeError(w, protocolError("bad before_id"))
			return
		}
	}
	messages, err := h.store.Messages(r.Context(), room.Code(), limit, before)
	if err != nil {
		h.log.Error().Err(err).Msg("history")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_code": room.Code(), "messages": messages})
}
