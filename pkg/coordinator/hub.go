package coordinator

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/watchparty/coordinator/pkg/api"
	"github.com/watchparty/coordinator/pkg/config"
	"github.com/watchparty/coordinator/pkg/identity"
	"github.com/watchparty/coordinator/pkg/logger"
	"github.com/watchparty/coordinator/pkg/network/websocket"
	"github.com/watchparty/coordinator/pkg/persistence"
	"golang.org/x/time/rate"
)

// Websocket close codes.
const (
	CloseNormal       = websocket.CloseNormal
	CloseInvalidToken = 4001
	CloseRejected     = 4003
	CloseNotFound     = 4004
)

const maxCloseReason = 120

// inbound lists the events participants may send.
var inbound = map[api.Event]bool{
	api.LeaveRoom:         true,
	api.ChatMessage:       true,
	api.RequestControl:    true,
	api.PassControl:       true,
	api.TakeControl:       true,
	api.VoiceJoin:         true,
	api.VoiceLeave:        true,
	api.VoiceOffer:        true,
	api.VoiceAnswer:       true,
	api.VoiceIceCandidate: true,
	api.BrowserNavigate:   true,
	api.BrowserClick:      true,
	api.BrowserType:       true,
	api.BrowserKeypress:   true,
	api.BrowserScroll:     true,
	api.BrowserStart:      true,
	api.BrowserStop:       true,
}

// limited tells if the event counts against the sender's input rate.
func limited(e api.Event) bool {
	return e == api.ChatMessage || e == api.RequestControl || e.IsBrowser()
}

type Hub struct {
	conf     config.Coordinator
	dir      *Directory
	guild    *Guild
	registry *Registry
	store    persistence.Store
	identity identity.Provider
	log      *logger.Logger
}

func NewHub(conf config.Coordinator, dir *Directory, guild *Guild, store persistence.Store, provider identity.Provider, log *logger.Logger) *Hub {
	return &Hub{
		conf:     conf,
		dir:      dir,
		guild:    guild,
		registry: NewRegistry(),
		store:    store,
		identity: provider,
		log:      log,
	}
}

func (h *Hub) String() string { return "hub" }

// Run is a no-op, connections are driven by the HTTP server.
func (h *Hub) Run() {}

// Shutdown closes every room and then any connection that is still
// registered, for example one caught between the upgrade and the join.
// The HTTP server must be stopped first so nothing new comes in.
func (h *Hub) Shutdown(context.Context) error {
	h.dir.CloseAll(ClosedShutdown)
	if n := h.registry.Shutdown(CloseNormal, ClosedShutdown); n > 0 {
		h.log.Info().Int("connections", n).Msg("closed stray connections")
	}
	return nil
}

func (h *Hub) userSocketOptions() websocket.Options {
	c := h.conf.Connection
	return websocket.Options{
		QueueSize:      c.QueueSize,
		MaxDrops:       c.MaxDrops,
		MaxMessageSize: c.MaxMessageSize,
		PongTimeout:    c.PongTimeout,
	}
}

func (h *Hub) workerSocketOptions() websocket.Options {
	return websocket.Options{
		QueueSize:      h.conf.Browser.CommandQueue,
		MaxDrops:       h.conf.Connection.MaxDrops,
		MaxMessageSize: h.conf.Browser.MaxFrameSize,
		PongTimeout:    h.conf.Connection.PongTimeout,
	}
}

// handleUserConnection serves the participant channel of a room.
func (h *Hub) handleUserConnection(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	sock, err := websocket.NewServer(w, r, h.userSocketOptions(), h.log)
	if err != nil {
		h.log.Warn().Err(err).Msg("user socket upgrade")
		return
	}

	id, err := h.identity.Identify(identity.Token(r))
	if err != nil {
		sock.CloseWith(CloseInvalidToken, "invalid token")
		return
	}

	in := h.conf.Input
	conn := NewConn(sock, id, rate.Limit(in.Rate), in.Burst, h.log)
	h.registry.Add(conn)
	defer h.registry.Remove(conn)

	room, err := h.dir.JoinRoom(code, conn)
	if err != nil {
		c := CloseRejected
		if errors.Is(err, ErrNotFound) {
			c = CloseNotFound
		}
		conn.log.Info().Err(err).Str(logger.RoomField, code).Msg("join rejected")
		sock.CloseWith(c, reason(err))
		return
	}

	sock.Serve(func(data []byte) { h.dispatch(room, conn, data) })
	<-sock.Done()
	room.Disconnect(conn)
}

func (h *Hub) dispatch(room *Room, c *Conn, data []byte) {
	in, err := api.Decode(data)
	if err != nil {
		c.Fail("", protocolError("%v", err), time.Now())
		return
	}
	if !inbound[in.Event] {
		eventsIn.WithLabelValues("unknown").Inc()
		c.Fail(in.Event, protocolError("unknown event %v", in.Event), time.Now())
		return
	}
	eventsIn.WithLabelValues(in.Event.String()).Inc()
	if limited(in.Event) && !c.Allow() {
		c.Fail(in.Event, capacityError("rate limit exceeded"), time.Now())
		return
	}
	if err = room.Handle(c, in); err != nil {
		c.Fail(in.Event, err, time.Now())
	}
}

// handleWorkerConnection serves the link of a browser automation worker.
func (h *Hub) handleWorkerConnection(w http.ResponseWriter, r *http.Request) {
	if key := h.conf.Auth.WorkerKey; key != "" &&
		subtle.ConstantTimeCompare([]byte(r.URL.Query().Get("key")), []byte(key)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sock, err := websocket.NewServer(w, r, h.workerSocketOptions(), h.log)
	if err != nil {
		h.log.Warn().Err(err).Msg("worker socket upgrade")
		return
	}
	wk := NewWorker(sock, h.log)
	h.guild.Add(wk)

	sock.Serve(func(data []byte) {
		in, err := api.Decode(data)
		if err != nil {
			wk.log.Warn().Err(err).Msg("worker message")
			return
		}
		h.guild.Handle(wk, in)
	})
	<-sock.Done()
	h.guild.Remove(wk)
}

// reason makes a close frame reason of the error, it must be valid
// UTF-8 and fit into a control frame.
func reason(err error) string {
	s := strings.ToValidUTF8(err.Error(), "")
	if len(s) <= maxCloseReason {
		return s
	}
	i := maxCloseReason
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
