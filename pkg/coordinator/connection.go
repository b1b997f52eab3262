package coordinator

import (
	"sync"
	"time"

	"github.com/watchparty/coordinator/pkg/api"
	"github.com/watchparty/coordinator/pkg/com"
	"github.com/watchparty/coordinator/pkg/identity"
	"github.com/watchparty/coordinator/pkg/logger"
	"golang.org/x/time/rate"
)

// Socket is the outbound side of a transport connection.
// Write must never block.
type Socket interface {
	Write(data []byte) bool
	Shutdown(code int, reason string)
	Close()
}

// Conn is a participant connection.
type Conn struct {
	Id com.Uid
	identity.Identity

	sock    Socket
	limiter *rate.Limiter
	log     *logger.Logger

	mu   sync.Mutex
	room string
}

func NewConn(sock Socket, id identity.Identity, limit rate.Limit, burst int, log *logger.Logger) *Conn {
	uid := com.NewUid()
	if limit <= 0 {
		limit = rate.Inf
	}
	return &Conn{
		Id:       uid,
		Identity: id,
		sock:     sock,
		limiter:  rate.NewLimiter(limit, burst),
		log: log.Extend(log.With().
			Str(logger.ConnectionField, uid.Short()).
			Str(logger.UserField, id.UserId)),
	}
}

func (c *Conn) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Conn) bind(room string) {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
}

// Allow tells if the rate limit allows one more event.
func (c *Conn) Allow() bool { return c.limiter.Allow() }

func (c *Conn) write(data []byte) {
	if c.sock.Write(data) {
		deliveries.Inc()
		return
	}
	outboundDrops.Inc()
	c.log.Debug().Msg("outbound message dropped")
}

// Send encodes and enqueues a single message.
func (c *Conn) Send(v any) {
	data, err := api.Encode(v)
	if err != nil {
		c.log.Error().Err(err).Msg("encode")
		return
	}
	c.write(data)
}

// Fail reports an error to this connection only.
func (c *Conn) Fail(req api.Event, err error, t time.Time) {
	code := Code(err)
	rejected.WithLabelValues(code).Inc()
	c.log.Debug().Err(err).Str("event", req.String()).Msg("rejected")
	c.Send(api.ErrorNotify{Header: api.Head(api.Error, t), Code: code, Message: err.Error(), Request: req})
}

func (c *Conn) Shutdown(code int, reason string) { c.sock.Shutdown(code, reason) }
