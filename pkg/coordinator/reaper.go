package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/watchparty/coordinator/pkg/logger"
)

const DefaultInactivityLimit = 4 * time.Hour

// Reaper periodically closes rooms nobody used for too long.
type Reaper struct {
	dir      *Directory
	limit    time.Duration
	interval time.Duration
	now      func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
	log  *logger.Logger
}

func NewReaper(dir *Directory, limit, interval time.Duration, log *logger.Logger) *Reaper {
	if limit <= 0 {
		limit = DefaultInactivityLimit
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		dir:      dir,
		limit:    limit,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
		log:      log,
	}
}

func (r *Reaper) Run() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Sweep(r.now())
			case <-r.stop:
				return
			}
		}
	}()
}

// Sweep closes idle rooms and drops closed ones left in the directory.
// Returns the number of rooms closed for inactivity.
func (r *Reaper) Sweep(now time.Time) (n int) {
	for _, room := range r.dir.Rooms() {
		switch room.State() {
		case Closed:
			r.dir.remove(room)
		case Open:
			if room.CloseIfIdle(now, r.limit) {
				n++
			}
		}
	}
	if n > 0 {
		r.log.Info().Int("rooms", n).Msg("idle rooms closed")
	}
	return
}

func (r *Reaper) Shutdown(context.Context) error {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
	return nil
}

func (r *Reaper) String() string { return "reaper" }
