package coordinator

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/watchparty/coordinator/pkg/logger"
	"github.com/watchparty/coordinator/pkg/persistence"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	DefaultMaxOpenRooms = 100
)

// Directory is the table of live rooms.
// Lock order: a room lock may be held while taking the directory lock,
// never the other way around.
type Directory struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	maxOpen int
	// done is set by CloseAll, no room opens or admits anyone after it.
	done bool

	deps roomDeps
	log  *logger.Logger
}

type DirectoryOptions struct {
	MaxOpen       int
	Capacity      int
	ChatMaxLength int
	RestartWindow time.Duration
	Bridge        Bridge
	Persister     *Persister
	Ice           func() []webrtc.ICEServer
	Now           func() time.Time
}

func NewDirectory(opts DirectoryOptions, log *logger.Logger) *Directory {
	if opts.MaxOpen <= 0 {
		opts.MaxOpen = DefaultMaxOpenRooms
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.ChatMaxLength <= 0 {
		opts.ChatMaxLength = DefaultChatMaxLength
	}
	if opts.RestartWindow <= 0 {
		opts.RestartWindow = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	d := &Directory{
		rooms:   map[string]*Room{},
		maxOpen: opts.MaxOpen,
		log:     log,
	}
	d.deps = roomDeps{
		capacity:      opts.Capacity,
		chatMaxLength: opts.ChatMaxLength,
		restartWindow: opts.RestartWindow,
		bridge:        opts.Bridge,
		persist:       opts.Persister,
		ice:           opts.Ice,
		now:           opts.Now,
		onClosed:      d.closed,
	}
	return d
}

func key(code string) string { return strings.ToLower(code) }

// CreateRoom opens a new room owned by the host.
func (d *Directory) CreateRoom(hostId, title string) (*Room, error) {
	if hostId == "" {
		return nil, protocolError("host id is required")
	}
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return nil, capacityError("coordinator is shutting down")
	}
	if d.openCount() >= d.maxOpen {
		d.mu.Unlock()
		return nil, capacityError("too many open rooms")
	}
	var code string
	for {
		c, err := newCode()
		if err != nil {
			d.mu.Unlock()
			return nil, err
		}
		if _, ok := d.rooms[key(c)]; !ok {
			code = c
			break
		}
	}
	r := newRoom(code, hostId, title, &d.deps, d.log)
	d.rooms[key(code)] = r
	open := d.openCount()
	d.mu.Unlock()

	openRooms.Set(float64(open))
	r.log.Info().Str("host", hostId).Msg("room created")
	d.deps.persist.Room(record(r, ""))
	return r, nil
}

func newCode() (string, error) {
	b := make([]byte, codeLength)
	size := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

func (d *Directory) openCount() (n int) {
	for _, r := range d.rooms {
		if r.State() == Open {
			n++
		}
	}
	return
}

func (d *Directory) OpenCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.openCount()
}

// Get finds an open room, codes are case-insensitive.
func (d *Directory) Get(code string) (*Room, error) {
	d.mu.RLock()
	r, ok := d.rooms[key(code)]
	done := d.done
	d.mu.RUnlock()
	if done || !ok || r.State() != Open {
		return nil, notFoundError("room %v not found", code)
	}
	return r, nil
}

func (d *Directory) Rooms() []*Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, r)
	}
	return out
}

func (d *Directory) CloseRoom(code, reason string) error {
	r, err := d.Get(code)
	if err != nil {
		return err
	}
	if !r.Close(reason) {
		return notFoundError("room %v not found", code)
	}
	return nil
}

func (d *Directory) JoinRoom(code string, c *Conn) (*Room, error) {
	r, err := d.Get(code)
	if err != nil {
		return nil, err
	}
	if err = r.Join(c); err != nil {
		return nil, err
	}
	return r, nil
}

func (d *Directory) LeaveRoom(code, userId string) error {
	r, err := d.Get(code)
	if err != nil {
		return err
	}
	return r.Leave(userId)
}

// CloseAll closes every open room for good, used on shutdown.
func (d *Directory) CloseAll(reason string) {
	d.mu.Lock()
	d.done = true
	d.mu.Unlock()
	for _, r := range d.Rooms() {
		r.Close(reason)
	}
}

// closed is called by a room, under its lock, once it reached Closed.
func (d *Directory) closed(r *Room) {
	d.remove(r)
	d.deps.persist.Closed(record(r, r.closeReason))
}

func (d *Directory) remove(r *Room) {
	d.mu.Lock()
	if cur, ok := d.rooms[key(r.code)]; ok && cur == r {
		delete(d.rooms, key(r.code))
	}
	open := d.openCount()
	d.mu.Unlock()
	openRooms.Set(float64(open))
}

func record(r *Room, reason string) persistence.Room {
	room := persistence.Room{
		Code:      r.code,
		HostId:    r.hostId,
		Title:     r.title,
		CreatedAt: r.createdAt,
	}
	if reason != "" {
		room.ClosedAt = r.deps.now()
		room.CloseReason = reason
	}
	return room
}

func (d *Directory) OnBrowserFrame(room, frame, url string) {
	if r, err := d.Get(room); err == nil {
		r.OnFrame(frame, url)
	}
}

func (d *Directory) OnBrowserUrl(room, url string) {
	if r, err := d.Get(room); err == nil {
		r.OnUrlChanged(url)
	}
}

func (d *Directory) OnBrowserCrash(room string, err error) {
	if r, e := d.Get(room); e == nil {
		r.OnCrash(err)
	}
}
