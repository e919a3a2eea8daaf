package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Stream/internal/adapters/presence"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/dkeye/Stream/internal/transport/wire"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
}

// SignalWSController is the broker: it claims peer ids and relays
// signaling between the websocket connections that hold them.
type SignalWSController struct {
	Presence presence.Store
	Limiter  *RateLimiter
	opts     Options

	mu    sync.RWMutex
	conns map[domain.PeerID]*WsSignalConn
}

func NewSignalWSController(store presence.Store, limiter *RateLimiter, opts Options) *SignalWSController {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 65536
	}
	return &SignalWSController{
		Presence: store,
		Limiter:  limiter,
		opts:     opts,
		conns:    make(map[domain.PeerID]*WsSignalConn),
	}
}

type WsSignalConn struct {
	conn  *websocket.Conn
	send  chan []byte
	peer  domain.PeerID
	owner string

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. The write pump flushes what is queued and
// then closes the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal serves GET ?id=<peer>.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := domain.PeerID(c.Query("id"))
	if err := id.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	conn := &WsSignalConn{
		conn:  ws,
		send:  make(chan []byte, 64),
		peer:  id,
		owner: uuid.NewString(),
	}
	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cancel, conn)

	if err := ctl.Presence.Claim(ctx, id, conn.owner); err != nil {
		if !errors.Is(err, presence.ErrTaken) {
			log.Error().Err(err).Str("module", "signal").Str("peer", string(id)).Msg("claim")
		}
		log.Warn().Str("module", "signal").Str("peer", string(id)).Msg("id unavailable")
		ctl.sendMsg(conn, wire.ErrorMessage(wire.ErrUnavailableID, id, nil))
		conn.Close()
		return
	}
	ctl.register(conn)
	ctl.sendMsg(conn, wire.Message{Type: wire.TypeOpen})
	log.Info().Str("module", "signal").Str("peer", string(id)).Str("client", c.GetString("client_token")).Msg("peer open")

	go ctl.readPump(ctx, conn)
}

func (ctl *SignalWSController) register(c *WsSignalConn) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	ctl.conns[c.peer] = c
}

func (ctl *SignalWSController) unregister(c *WsSignalConn) {
	ctl.mu.Lock()
	if cur, ok := ctl.conns[c.peer]; ok && cur == c {
		delete(ctl.conns, c.peer)
	}
	ctl.mu.Unlock()
	if ctl.Limiter != nil {
		ctl.Limiter.Forget(c.peer)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctl.Presence.Release(ctx, c.peer, c.owner); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(c.peer)).Msg("release claim")
	}
	log.Info().Str("module", "signal").Str("peer", string(c.peer)).Msg("peer closed")
}

func (ctl *SignalWSController) lookup(id domain.PeerID) (*WsSignalConn, bool) {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	c, ok := ctl.conns[id]
	return c, ok
}

// Online reports whether id is connected to this broker.
func (ctl *SignalWSController) Online(id domain.PeerID) bool {
	_, ok := ctl.lookup(id)
	return ok
}
