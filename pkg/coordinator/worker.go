package coordinator

import (
	"fmt"

	"github.com/watchparty/coordinator/pkg/api"
	"github.com/watchparty/coordinator/pkg/com"
	"github.com/watchparty/coordinator/pkg/logger"
)

const defaultWorkerCapacity = 1

// Worker is a connected browser automation worker.
type Worker struct {
	Id   com.Uid
	Name string

	sock     Socket
	capacity int
	log      *logger.Logger
}

func NewWorker(sock Socket, log *logger.Logger) *Worker {
	id := com.NewUid()
	return &Worker{
		Id:       id,
		sock:     sock,
		capacity: defaultWorkerCapacity,
		log:      log.Extend(log.With().Str(logger.ConnectionField, id.Short()).Str("s", "w")),
	}
}

func (w *Worker) send(cmd api.BrowserCommand) error {
	data, err := api.Encode(cmd)
	if err != nil {
		return err
	}
	if !w.sock.Write(data) {
		return fmt.Errorf("worker %v is not responding", w.Id.Short())
	}
	return nil
}

func (w *Worker) String() string { return fmt.Sprintf("%v(%v)", w.Id.Short(), w.Name) }
