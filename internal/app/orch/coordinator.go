package orch

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultGraceWindow = time.Second

var (
	ErrClosed     = errors.New("session closed")
	ErrNotHost    = errors.New("operation requires the host role")
	ErrNotViewer  = errors.New("operation requires the viewer role")
	ErrNoMedia    = errors.New("no local media")
	ErrNoHostLink = errors.New("no open data link to the host")
)

type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusClosed       Status = "closed"
)

// AfterFunc schedules f after d. time.AfterFunc satisfies it.
type AfterFunc func(d time.Duration, f func()) app.Timer

func realAfterFunc(d time.Duration, f func()) app.Timer { return time.AfterFunc(d, f) }

type Config struct {
	Role        domain.Role
	StreamID    domain.StreamID
	DisplayName string
	// GraceWindow bounds the wait for inbound media on a call of unknown intent.
	GraceWindow time.Duration
	MaxChatLen  int
	Policy      app.Policy
	AfterFunc   AfterFunc
	// OnChange runs on the event loop after every processed event. It must
	// not call blocking Coordinator methods.
	OnChange func(State)
}

// RelayedStream is viewer contributed media, seen from either side.
type RelayedStream struct {
	Origin      domain.PeerID
	DisplayName string
	Media       core.Media
}

// State is the observable state of a session.
type State struct {
	Identity      domain.PeerID
	Role          domain.Role
	StreamID      domain.StreamID
	DisplayName   string
	Status        Status
	Connected     bool
	Live          bool
	Sharing       bool
	ViewerCount   int
	RemoteMedia   core.Media
	OtherViewers  []RelayedStream
	ViewerStreams []RelayedStream
	ChatLog       []domain.ChatMessage
	LastError     error
	OpenLinks     int
	Pending       int
}

// Coordinator is one participant's session in a stream. Every transport
// callback and API call becomes a message on a single queue drained by one
// goroutine, so the registry is never mutated concurrently.
type Coordinator struct {
	cfg     Config
	self    *domain.Participant
	session core.TransportSession
	reg     *app.Registry
	chat    *app.ChatLog
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  *eventQueue
	done   chan struct{}

	// Owned by the loop.
	hostMedia   core.Media
	shareMedia  core.Media
	remoteMedia core.Media
	status      Status
	lastError   error
	closed      bool

	mu    sync.RWMutex
	state State
}

// Connect derives the participant identity and opens exactly one transport
// session for it.
func Connect(ctx context.Context, tr core.Transport, cfg Config) (*Coordinator, error) {
	self, err := domain.NewParticipant(cfg.Role, cfg.StreamID, cfg.DisplayName)
	if err != nil {
		return nil, err
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	if cfg.MaxChatLen <= 0 {
		cfg.MaxChatLen = domain.DefaultMaxChatLen
	}
	if cfg.Policy == nil {
		cfg.Policy = app.SimplePolicy{}
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = realAfterFunc
	}

	logger := log.With().
		Str("module", "orch").
		Str("sid", string(self.ID)).
		Str("stream", string(cfg.StreamID)).
		Logger()

	sess, err := tr.Open(ctx, self.ID)
	if err != nil {
		err = core.Classify(core.KindTransport, "open", self.ID, err)
		logger.Error().Err(err).Msg("open session failed")
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:     cfg,
		self:    self,
		session: sess,
		reg:     app.NewRegistry(self.ID),
		chat:    app.NewChatLog(),
		logger:  logger,
		ctx:     loopCtx,
		cancel:  cancel,
		queue:   newEventQueue(),
		done:    make(chan struct{}),
		status:  StatusConnected,
	}
	c.bindSession()
	c.publish()
	go c.run()

	logger.Info().Str("role", string(cfg.Role)).Msg("session open")
	return c, nil
}

func (c *Coordinator) run() {
	defer close(c.done)
	for {
		ev, ok := c.queue.pop()
		if !ok {
			return
		}
		// Callers see the state their command produced.
		if cmd, ok := ev.(command); ok {
			err := cmd.run()
			c.publish()
			cmd.done <- err
			continue
		}
		c.dispatch(ev)
		c.publish()
	}
}

// do runs fn on the loop and waits for its result.
func (c *Coordinator) do(fn func() error) error {
	cmd := command{run: fn, done: make(chan error, 1)}
	if !c.queue.push(cmd) {
		return ErrClosed
	}
	select {
	case err := <-cmd.done:
		return err
	case <-c.done:
		select {
		case err := <-cmd.done:
			return err
		default:
			return ErrClosed
		}
	}
}

func (c *Coordinator) Identity() domain.PeerID { return c.self.ID }

// Done is closed once the session is torn down.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// State returns a snapshot taken after the last processed event. The caller
// owns the returned slices.
func (c *Coordinator) State() State {
	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	st.OtherViewers = slices.Clone(st.OtherViewers)
	st.ViewerStreams = slices.Clone(st.ViewerStreams)
	st.ChatLog = slices.Clone(st.ChatLog)
	return st
}

// Teardown closes every link, releases local media and destroys the
// transport session. It may be called any number of times, concurrently.
func (c *Coordinator) Teardown() {
	_ = c.do(func() error {
		c.shutdown(StatusClosed)
		return nil
	})
	<-c.done
}

func (c *Coordinator) shutdown(status Status) {
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	n := c.reg.CloseAll()
	core.StopMedia(c.hostMedia)
	core.StopMedia(c.shareMedia)
	c.hostMedia, c.shareMedia, c.remoteMedia = nil, nil, nil
	c.session.Destroy()
	c.status = status
	c.queue.close()
	c.logger.Info().Int("closed_links", n).Str("status", string(status)).Msg("session torn down")
}

func (c *Coordinator) publish() {
	st := State{
		Identity:    c.self.ID,
		Role:        c.self.Role,
		StreamID:    c.cfg.StreamID,
		DisplayName: c.self.DisplayName,
		Status:      c.status,
		Connected:   c.status == StatusConnected,
		Live:        c.hostMedia != nil,
		Sharing:     c.reg.ShareOut() != nil,
		ViewerCount: c.reg.ViewerCount(),
		RemoteMedia: c.remoteMedia,
		ChatLog:     c.chat.Messages(),
		LastError:   c.lastError,
		OpenLinks:   c.reg.Len(),
		Pending:     c.reg.Pending(),
	}
	for _, e := range c.reg.RelaysIn() {
		if e.Media == nil {
			continue
		}
		st.OtherViewers = append(st.OtherViewers, RelayedStream{
			Origin:      e.Origin,
			DisplayName: e.Meta.DisplayName,
			Media:       e.Media,
		})
	}
	for _, vs := range c.reg.Shares() {
		st.ViewerStreams = append(st.ViewerStreams, RelayedStream{
			Origin:      vs.Entry.Peer,
			DisplayName: vs.DisplayName,
			Media:       vs.Entry.Media,
		})
	}

	c.mu.Lock()
	c.state = st
	c.mu.Unlock()

	if c.cfg.OnChange != nil {
		c.cfg.OnChange(st)
	}
}

func (c *Coordinator) onDisconnected() {
	if c.status != StatusConnected {
		return
	}
	c.status = StatusDisconnected
	c.logger.Warn().Msg("transport disconnected")
}

func (c *Coordinator) onSessionError(err error) {
	err = core.Classify(core.KindTransport, "session", "", err)
	c.lastError = err
	if core.Fatal(err) {
		c.logger.Error().Err(err).Msg("fatal session error")
		c.shutdown(StatusClosed)
		return
	}
	c.logger.Warn().Err(err).Msg("session error")
}
