package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/watchparty/coordinator/pkg/logger"
	"github.com/watchparty/coordinator/pkg/persistence"
)

const persistTimeout = 10 * time.Second

// Persister hands chat messages and room records to the store from
// a small worker pool, so rooms never wait on storage.
// A nil Persister discards everything.
type Persister struct {
	store   persistence.Store
	archive *persistence.Archive
	jobs    chan func(context.Context) error
	workers int

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	log    *logger.Logger
}

func NewPersister(store persistence.Store, archive *persistence.Archive, workers, queue int, log *logger.Logger) *Persister {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 256
	}
	return &Persister{
		store:   store,
		archive: archive,
		jobs:    make(chan func(context.Context) error, queue),
		workers: workers,
		log:     log,
	}
}

func (p *Persister) Store() persistence.Store { return p.store }

func (p *Persister) Run() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
				if err := job(ctx); err != nil {
					p.log.Error().Err(err).Msg("persist")
				}
				cancel()
			}
		}()
	}
}

// Shutdown drains the queue.
func (p *Persister) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	done := make(chan struct{})
	go func() { p.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Persister) String() string { return "persister" }

func (p *Persister) enqueue(job func(context.Context) error) {
	if p == nil {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		persistDrops.Inc()
		return
	}
	select {
	case p.jobs <- job:
	default:
		persistDrops.Inc()
		p.log.Warn().Msg("persist queue is full, dropped")
	}
}

func (p *Persister) Message(m persistence.Message) {
	if p == nil {
		return
	}
	p.enqueue(func(ctx context.Context) error { return p.store.AddMessage(ctx, m) })
}

func (p *Persister) Room(room persistence.Room) {
	if p == nil {
		return
	}
	p.enqueue(func(ctx context.Context) error { return p.store.SaveRoom(ctx, room) })
}

// Closed records the room close and archives its transcript.
func (p *Persister) Closed(room persistence.Room) {
	if p == nil {
		return
	}
	p.enqueue(func(ctx context.Context) error {
		if err := p.store.SaveRoom(ctx, room); err != nil {
			return err
		}
		if p.archive == nil {
			return nil
		}
		return p.archive.Save(ctx, room)
	})
}
