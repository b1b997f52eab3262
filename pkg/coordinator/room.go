package coordinator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/watchparty/coordinator/pkg/api"
	"github.com/watchparty/coordinator/pkg/logger"
)

const DefaultCapacity = 6

type State int32

const (
	Open State = iota
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

type Role string

const (
	Host  Role = "host"
	Guest Role = "guest"
)

// Reasons of a room close.
const (
	ClosedHostLeft       = "host_left"
	ClosedHostClosed     = "host_closed"
	ClosedTimeout        = "timeout"
	ClosedBrowserFailure = "browser_failure"
	ClosedShutdown       = "shutdown"
)

type Participant struct {
	Id       string
	Name     string
	Role     Role
	JoinedAt time.Time
	Voice    bool

	conn *Conn
}

func (p *Participant) member() api.Member {
	return api.Member{Id: p.Id, Name: p.Name, Role: string(p.Role), JoinedAt: p.JoinedAt, VoiceJoined: p.Voice}
}

// roomDeps are the collaborators every room of a directory shares.
type roomDeps struct {
	capacity      int
	chatMaxLength int
	restartWindow time.Duration
	bridge        Bridge
	persist       *Persister
	ice           func() []webrtc.ICEServer
	now           func() time.Time
	onClosed      func(*Room)
}

// Room is the authoritative state of one shared browsing session.
// Every mutation and every broadcast happens under mu, so all
// participants observe the room's events in the same order.
type Room struct {
	code      string
	title     string
	hostId    string
	createdAt time.Time

	state        atomic.Int32
	lastActivity atomic.Int64

	mu           sync.Mutex
	participants []*Participant
	control      Arbiter
	edges        map[edge]EdgeState
	browser      browserState
	closeReason  string

	deps *roomDeps
	log  *logger.Logger
}

func newRoom(code, hostId, title string, deps *roomDeps, log *logger.Logger) *Room {
	now := deps.now()
	r := &Room{
		code:      code,
		title:     title,
		hostId:    hostId,
		createdAt: now,
		edges:     map[edge]EdgeState{},
		deps:      deps,
		log:       log.Extend(log.With().Str(logger.RoomField, code)),
	}
	r.lastActivity.Store(now.UnixNano())
	return r
}

func (r *Room) Code() string         { return r.code }
func (r *Room) HostId() string       { return r.hostId }
func (r *Room) Title() string        { return r.title }
func (r *Room) CreatedAt() time.Time { return r.createdAt }
func (r *Room) State() State         { return State(r.state.Load()) }
func (r *Room) LastActivity() time.Time {
	return time.Unix(0, r.lastActivity.Load())
}

func (r *Room) setState(s State)            { r.state.Store(int32(s)) }
func (r *Room) touch()                      { r.lastActivity.Store(r.deps.now().UnixNano()) }
func (r *Room) head(e api.Event) api.Header { return api.Head(e, r.deps.now()) }

func (r *Room) find(id string) *Participant {
	for _, p := range r.participants {
		if p.Id == id {
			return p
		}
	}
	return nil
}

func (r *Room) present(id string) bool { return r.find(id) != nil }

// participant returns the participant bound to the connection.
func (r *Room) participant(c *Conn) (*Participant, error) {
	p := r.find(c.UserId)
	if p == nil || p.conn != c {
		return nil, notFoundError("you are not in room %v", r.code)
	}
	return p, nil
}

// Join adds the connection's user to the room.
func (r *Room) Join(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State() != Open {
		return notFoundError("room %v is closed", r.code)
	}
	if r.present(c.UserId) {
		return conflictError("%v is already connected to room %v", c.UserId, r.code)
	}
	if len(r.participants) >= r.deps.capacity {
		return capacityError("room %v is full", r.code)
	}

	role := Guest
	if c.UserId == r.hostId {
		role = Host
	}
	p := &Participant{Id: c.UserId, Name: c.Name, Role: role, JoinedAt: r.deps.now(), conn: c}
	r.participants = append(r.participants, p)
	c.bind(r.code)
	r.touch()
	r.log.Info().Str(logger.UserField, p.Id).Str("role", string(role)).
		Int("size", len(r.participants)).Msg("joined")

	c.Send(r.roomState())
	r.broadcast(api.UserNotify{Header: r.head(api.UserJoined), UserId: p.Id, Username: p.Name}, "")

	if role == Host {
		if t, ok := r.control.Open(p.Id); ok {
			r.controlChanged(t)
		}
	}
	return nil
}

// Leave removes a participant by explicit request and closes its connection.
func (r *Room) Leave(userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != Open {
		return notFoundError("room %v is closed", r.code)
	}
	p := r.find(userId)
	if p == nil {
		return notFoundError("participant %v is not in room %v", userId, r.code)
	}
	r.depart(p)
	return nil
}

// Has tells if the user is the host or a present participant of the open room.
func (r *Room) Has(userId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.State() == Open && (userId == r.hostId || r.present(userId))
}

// Disconnect is the implicit leave of a closed transport.
// Connections replaced or already removed are ignored.
func (r *Room) Disconnect(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != Open {
		return
	}
	p := r.find(c.UserId)
	if p == nil || p.conn != c {
		return
	}
	r.leave(p)
}

// depart is an explicit leave, the participant's connection is closed after it.
func (r *Room) depart(p *Participant) {
	r.leave(p)
	p.conn.Shutdown(CloseNormal, "left")
}

func (r *Room) leave(p *Participant) {
	for i, q := range r.participants {
		if q == p {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			break
		}
	}
	p.conn.bind("")
	r.log.Info().Str(logger.UserField, p.Id).Int("size", len(r.participants)).Msg("left")

	if p.Voice {
		r.voiceDrop(p)
	}
	if p.Id == r.hostId {
		r.close(ClosedHostLeft)
		return
	}
	r.touch()
	r.broadcast(api.UserNotify{Header: r.head(api.UserLeft), UserId: p.Id, Username: p.Name}, "")
	if t, ok := r.control.Departed(p.Id, r.hostId, r.present(r.hostId)); ok {
		r.controlChanged(t)
	}
}

// Close closes an open room with the reason.
func (r *Room) Close(reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.close(reason)
}

// CloseIfIdle closes the room when nothing happened in it for longer than limit.
func (r *Room) CloseIfIdle(now time.Time, limit time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.LastActivity()) <= limit {
		return false
	}
	return r.close(ClosedTimeout)
}

func (r *Room) close(reason string) bool {
	if r.State() != Open {
		return false
	}
	r.setState(Closing)
	r.closeReason = reason
	r.log.Info().Str("reason", reason).Msg("closing")

	r.broadcast(api.RoomClosedNotify{Header: r.head(api.RoomClosed), Reason: reason}, "")
	r.stopBrowser()
	for _, p := range r.participants {
		p.conn.bind("")
		p.conn.Shutdown(CloseNormal, reason)
	}
	r.participants = nil
	r.edges = map[edge]EdgeState{}
	r.control.Reset()

	r.setState(Closed)
	roomsClosed.WithLabelValues(reason).Inc()
	if r.deps.onClosed != nil {
		r.deps.onClosed(r)
	}
	return true
}

func (r *Room) CloseReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeReason
}

func (r *Room) controlChanged(t Transition) {
	n := api.ControlChangedNotify{
		Header:   r.head(api.ControlChanged),
		HolderId: t.Holder,
		Reason:   string(t.Reason),
		Version:  t.Version,
	}
	if p := r.find(t.Holder); p != nil {
		n.HolderName = p.Name
	}
	r.log.Info().Str("holder", t.Holder).Str("reason", string(t.Reason)).Uint64("v", t.Version).Msg("control")
	r.broadcast(n, "")
}

func (r *Room) members() []api.Member {
	out := make([]api.Member, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p.member())
	}
	return out
}

func (r *Room) roomState() api.RoomStateNotify {
	s := api.RoomStateNotify{
		Header:         r.head(api.RoomState),
		Code:           r.code,
		HostId:         r.hostId,
		Participants:   r.members(),
		HolderId:       r.control.Holder(),
		Version:        r.control.Version(),
		BrowserRunning: r.browser.running,
	}
	if r.deps.ice != nil {
		s.IceServers = r.deps.ice()
	}
	return s
}

// Snapshot is a consistent view of the room.
type Snapshot struct {
	Code           string       `json:"room_code"`
	Title          string       `json:"title,omitempty"`
	HostId         string       `json:"host_id"`
	State          string       `json:"state"`
	Participants   []api.Member `json:"participants"`
	HolderId       string       `json:"holder_id,omitempty"`
	Version        uint64       `json:"version"`
	BrowserRunning bool         `json:"browser_running"`
	CreatedAt      time.Time    `json:"created_at"`
	LastActivity   time.Time    `json:"last_activity"`
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Code:           r.code,
		Title:          r.title,
		HostId:         r.hostId,
		State:          r.State().String(),
		Participants:   r.members(),
		HolderId:       r.control.Holder(),
		Version:        r.control.Version(),
		BrowserRunning: r.browser.running,
		CreatedAt:      r.createdAt,
		LastActivity:   r.LastActivity(),
	}
}
