package websocket

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/watchparty/coordinator/pkg/com"
	"github.com/watchparty/coordinator/pkg/logger"
)

const (
	writeWait = 10 * time.Second

	CloseNormal = websocket.CloseNormalClosure
)

var ErrClosed = errors.New("websocket is closed")

type Options struct {
	// QueueSize is the capacity of the outbound queue.
	QueueSize int
	// MaxDrops is the number of consecutive messages that may be dropped
	// on a full queue before the connection is closed.
	MaxDrops       int
	MaxMessageSize int64
	PongTimeout    time.Duration
	PingPong       bool
	// OnDrop is called for every dropped outbound message.
	OnDrop func()
}

func (o *Options) defaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.MaxDrops <= 0 {
		o.MaxDrops = 16
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
}

type closeFrame struct {
	code   int
	reason string
}

// WS is a websocket connection with a bounded outbound queue.
// Writes never block the caller: when the peer is too slow to drain
// the queue messages are dropped, and after too many drops in a row
// the connection is closed.
type WS struct {
	id   com.Uid
	conn deadlinedConn
	opts Options

	send    chan []byte
	closing chan closeFrame
	quit    chan struct{}
	done    chan struct{}

	drops atomic.Int32

	closeOnce    sync.Once
	shutdownOnce sync.Once
	quitOnce     sync.Once
	startOnce    sync.Once

	log *logger.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	WriteBufferPool: &sync.Pool{},
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewServer upgrades an HTTP request into a websocket connection.
// The connection is idle until Serve is called.
func NewServer(w http.ResponseWriter, r *http.Request, opts Options, log *logger.Logger) (*WS, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	opts.PingPong = true
	return newSocket(conn, opts, log), nil
}

func newSocket(conn *websocket.Conn, opts Options, log *logger.Logger) *WS {
	opts.defaults()
	if log == nil {
		log = logger.Default()
	}
	id := com.NewUid()
	return &WS{
		id:      id,
		conn:    deadlinedConn{sock: conn, wt: writeWait},
		opts:    opts,
		send:    make(chan []byte, opts.QueueSize),
		closing: make(chan closeFrame, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		log:     log.Extend(log.With().Str(logger.ConnectionField, id.Short())),
	}
}

func (ws *WS) Id() com.Uid { return ws.id }

// Serve starts the reader and writer pumps.
// Every received message is passed to onMessage from a single goroutine.
func (ws *WS) Serve(onMessage func([]byte)) {
	ws.startOnce.Do(func() {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); ws.reader(onMessage) }()
		go func() { defer wg.Done(); ws.writer() }()
		go func() {
			wg.Wait()
			_ = ws.conn.close()
			close(ws.done)
			ws.log.Debug().Msg("ws closed")
		}()
	})
}

// Done is closed when the connection is fully torn down.
func (ws *WS) Done() <-chan struct{} { return ws.done }

// Write enqueues a message without blocking.
// Returns false when the message was dropped.
func (ws *WS) Write(data []byte) bool {
	select {
	case <-ws.quit:
		return false
	default:
	}
	select {
	case ws.send <- data:
		ws.drops.Store(0)
		return true
	default:
	}
	if ws.opts.OnDrop != nil {
		ws.opts.OnDrop()
	}
	if n := ws.drops.Add(1); int(n) >= ws.opts.MaxDrops {
		ws.log.Warn().Int32("drops", n).Msg("ws is too slow, closing")
		ws.Close()
	}
	return false
}

// Shutdown delivers everything already queued, then sends
// a close frame with the code and closes the connection.
func (ws *WS) Shutdown(code int, reason string) {
	ws.shutdownOnce.Do(func() {
		ws.closing <- closeFrame{code: code, reason: reason}
	})
}

// CloseWith rejects a connection that never started serving.
func (ws *WS) CloseWith(code int, reason string) {
	_ = ws.conn.closeWith(code, reason)
	ws.Close()
	ws.startOnce.Do(func() { close(ws.done) })
}

// Close drops the connection immediately.
func (ws *WS) Close() {
	ws.closeOnce.Do(func() {
		ws.stop()
		_ = ws.conn.close()
	})
}

func (ws *WS) stop() { ws.quitOnce.Do(func() { close(ws.quit) }) }

// reader pumps messages from the websocket connection to the callback.
// Blocking, must be called as goroutine. Serializes all websocket reads.
func (ws *WS) reader(onMessage func([]byte)) {
	defer ws.stop()
	ws.conn.setup(func(conn *websocket.Conn) {
		conn.SetReadLimit(ws.opts.MaxMessageSize)
		if ws.opts.PingPong {
			_ = conn.SetReadDeadline(time.Now().Add(ws.opts.PongTimeout))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(ws.opts.PongTimeout))
			})
		}
	})
	for {
		message, err := ws.conn.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Debug().Err(err).Msg("ws read")
			}
			return
		}
		if onMessage != nil {
			onMessage(message)
		}
	}
}

// writer pumps messages from the send queue to the websocket connection.
// Blocking, must be called as goroutine. Serializes all websocket writes.
func (ws *WS) writer() {
	var tick <-chan time.Time
	if ws.opts.PingPong {
		ticker := time.NewTicker(ws.opts.PongTimeout * 9 / 10)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer ws.Close()
	for {
		select {
		case message := <-ws.send:
			if err := ws.conn.write(websocket.TextMessage, message); err != nil {
				ws.log.Debug().Err(err).Msg("ws write")
				return
			}
		case frame := <-ws.closing:
			ws.flush()
			_ = ws.conn.closeWith(frame.code, frame.reason)
			return
		case <-tick:
			if err := ws.conn.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ws.quit:
			return
		}
	}
}

func (ws *WS) flush() {
	for {
		select {
		case message := <-ws.send:
			if err := ws.conn.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
