package coordinator

import (
	"errors"
	"sync"

	"github.com/watchparty/coordinator/pkg/api"
	"github.com/watchparty/coordinator/pkg/com"
	"github.com/watchparty/coordinator/pkg/logger"
)

var errWorkerGone = errors.New("browser worker disconnected")

// Guild is the list of browser workers and the rooms they serve.
// It implements Bridge by placing every room's browser on a worker.
type Guild struct {
	mu      sync.Mutex
	workers map[com.Uid]*Worker
	rooms   map[string]*Worker
	events  BrowserEvents

	log *logger.Logger
}

func NewGuild(log *logger.Logger) *Guild {
	return &Guild{workers: map[com.Uid]*Worker{}, rooms: map[string]*Worker{}, log: log}
}

func (g *Guild) SetEvents(e BrowserEvents) {
	g.mu.Lock()
	g.events = e
	g.mu.Unlock()
}

func (g *Guild) Add(w *Worker) {
	g.mu.Lock()
	g.workers[w.Id] = w
	n := len(g.workers)
	g.mu.Unlock()
	connectedWorkers.Set(float64(n))
	w.log.Info().Msg("worker connected")
}

// Remove forgets the worker and crashes every browser it was running.
func (g *Guild) Remove(w *Worker) {
	g.mu.Lock()
	delete(g.workers, w.Id)
	var lost []string
	for room, rw := range g.rooms {
		if rw == w {
			lost = append(lost, room)
			delete(g.rooms, room)
		}
	}
	n, events := len(g.workers), g.events
	g.mu.Unlock()

	connectedWorkers.Set(float64(n))
	w.log.Info().Int("rooms", len(lost)).Msg("worker disconnected")
	if events == nil {
		return
	}
	for _, room := range lost {
		events.OnBrowserCrash(room, errWorkerGone)
	}
}

func (g *Guild) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.workers)
}

func (g *Guild) load(w *Worker) (n int) {
	for _, rw := range g.rooms {
		if rw == w {
			n++
		}
	}
	return
}

// pick returns the least loaded worker with a free slot.
func (g *Guild) pick() *Worker {
	var best *Worker
	bestLoad := 0
	for _, w := range g.workers {
		load := g.load(w)
		if load >= w.capacity {
			continue
		}
		if best == nil || load < bestLoad {
			best, bestLoad = w, load
		}
	}
	return best
}

func (g *Guild) Start(room string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	w := g.rooms[room]
	if w == nil {
		if w = g.pick(); w == nil {
			return capacityError("no free browser worker")
		}
		g.rooms[room] = w
	}
	if err := w.send(api.BrowserCommand{Event: api.BrowserStart, Room: api.Room{Code: room}}); err != nil {
		delete(g.rooms, room)
		return err
	}
	w.log.Info().Str(logger.RoomField, room).Msg("browser placed")
	return nil
}

func (g *Guild) Stop(room string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	w := g.rooms[room]
	if w == nil {
		return notFoundError("no browser for room %v", room)
	}
	delete(g.rooms, room)
	return w.send(api.BrowserCommand{Event: api.BrowserStop, Room: api.Room{Code: room}})
}

func (g *Guild) command(cmd api.BrowserCommand) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	w := g.rooms[cmd.Code]
	if w == nil {
		return notFoundError("no browser for room %v", cmd.Code)
	}
	return w.send(cmd)
}

func (g *Guild) Navigate(room, url string) error {
	return g.command(api.BrowserCommand{Event: api.BrowserNavigate, Room: api.Room{Code: room}, Url: url})
}

func (g *Guild) Click(room string, x, y int) error {
	return g.command(api.BrowserCommand{Event: api.BrowserClick, Room: api.Room{Code: room}, X: x, Y: y})
}

func (g *Guild) Type(room, text string) error {
	return g.command(api.BrowserCommand{Event: api.BrowserType, Room: api.Room{Code: room}, Text: text})
}

func (g *Guild) Keypress(room, key string) error {
	return g.command(api.BrowserCommand{Event: api.BrowserKeypress, Room: api.Room{Code: room}, Key: key})
}

func (g *Guild) Scroll(room string, dx, dy int) error {
	return g.command(api.BrowserCommand{Event: api.BrowserScroll, Room: api.Room{Code: room}, DeltaX: dx, DeltaY: dy})
}

// owns tells if the worker runs the room's browser.
func (g *Guild) owns(w *Worker, room string) (BrowserEvents, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.events, g.rooms[room] == w && g.events != nil
}

// Handle processes a message from a worker.
func (g *Guild) Handle(w *Worker, in api.In) {
	switch in.Event {
	case api.WorkerHello:
		req, err := api.UnwrapIn[api.WorkerHelloRequest](in)
		if err != nil {
			w.log.Warn().Err(err).Msg("bad hello")
			return
		}
		g.mu.Lock()
		if req.Capacity > 0 {
			w.capacity = req.Capacity
		}
		w.Name = req.Name
		g.mu.Unlock()
		w.log.Info().Int("capacity", req.Capacity).Str("name", req.Name).Msg("hello")
	case api.BrowserFrame:
		req, err := api.UnwrapIn[api.BrowserFrameReport](in)
		if err != nil {
			return
		}
		if events, ok := g.owns(w, req.Code); ok {
			events.OnBrowserFrame(req.Code, req.Frame, req.Url)
		}
	case api.BrowserUrlChanged:
		req, err := api.UnwrapIn[api.BrowserUrlReport](in)
		if err != nil {
			return
		}
		if events, ok := g.owns(w, req.Code); ok {
			events.OnBrowserUrl(req.Code, req.Url)
		}
	case api.BrowserCrashed:
		req, err := api.UnwrapIn[api.BrowserCrashReport](in)
		if err != nil {
			return
		}
		g.mu.Lock()
		events, ok := g.events, g.rooms[req.Code] == w
		if ok {
			delete(g.rooms, req.Code)
		}
		g.mu.Unlock()
		if ok && events != nil {
			events.OnBrowserCrash(req.Code, errors.New(req.Error))
		}
	default:
		w.log.Debug().Str("event", in.Event.String()).Msg("unknown worker event")
	}
}
