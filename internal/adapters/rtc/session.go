package rtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Stream/internal/adapters/hook"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/dkeye/Stream/internal/transport/wire"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 256
)

var ErrSessionClosed = errors.New("session closed")

// Session is one identity registered with the broker. Links are keyed by
// connection id, which every signalling message carries.
type Session struct {
	t      *Transport
	id     domain.PeerID
	ws     *websocket.Conn
	logger zerolog.Logger

	send chan []byte

	mu        sync.Mutex
	links     map[string]*peer
	closed    bool
	destroyed bool

	incomingCall hook.Hook[core.MediaLink]
	incomingData hook.Hook[core.DataLink]
	disconnected hook.Hook[struct{}]
	errs         hook.Hook[error]
}

func newSession(t *Transport, id domain.PeerID, ws *websocket.Conn) *Session {
	return &Session{
		t:      t,
		id:     id,
		ws:     ws,
		logger: log.With().Str("module", "rtc").Str("sid", string(id)).Logger(),
		send:   make(chan []byte, sendBuffer),
		links:  make(map[string]*peer),
	}
}

func (s *Session) start() {
	go s.writePump()
	go s.readLoop()
}

func (s *Session) ID() domain.PeerID { return s.id }

func (s *Session) OnIncomingCall(fn func(core.MediaLink)) { s.incomingCall.Set(fn) }
func (s *Session) OnIncomingData(fn func(core.DataLink))  { s.incomingData.Set(fn) }
func (s *Session) OnDisconnected(fn func()) {
	s.disconnected.Set(func(struct{}) { fn() })
}
func (s *Session) OnError(fn func(error)) { s.errs.Set(fn) }

func (s *Session) usable(ctx context.Context, op string, remote domain.PeerID) error {
	if err := ctx.Err(); err != nil {
		return core.NewError(core.KindTransport, op, remote, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.NewError(core.KindTransport, op, remote, ErrSessionClosed)
	}
	return nil
}

func (s *Session) Call(ctx context.Context, remote domain.PeerID, local core.Media, md core.CallMetadata) (core.MediaLink, error) {
	if err := s.usable(ctx, "call", remote); err != nil {
		return nil, err
	}
	pc, err := s.t.newPeerConnection()
	if err != nil {
		return nil, core.NewError(core.KindTransport, "call", remote, err)
	}
	l := newMediaLink(s, uuid.NewString(), remote, pc, md, false)
	if local != nil {
		err = l.attach(local)
	} else {
		err = addReceivers(pc)
	}
	if err != nil {
		l.shutdown(false)
		return nil, core.NewError(core.KindTransport, "call", remote, err)
	}
	s.track(l.peer)
	if err := l.offer(wire.LinkMedia, wire.SDPPayload{Metadata: md}); err != nil {
		l.shutdown(false)
		return nil, core.NewError(core.KindTransport, "call", remote, err)
	}
	s.logger.Info().Str("peer", string(remote)).Str("conn", l.id).Str("intent", string(md.Intent)).Msg("call offered")
	return l, nil
}

func addReceivers(pc *webrtc.PeerConnection) error {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) Connect(ctx context.Context, remote domain.PeerID) (core.DataLink, error) {
	if err := s.usable(ctx, "connect", remote); err != nil {
		return nil, err
	}
	pc, err := s.t.newPeerConnection()
	if err != nil {
		return nil, core.NewError(core.KindTransport, "connect", remote, err)
	}
	l := newDataLink(s, uuid.NewString(), remote, pc)
	dc, err := pc.CreateDataChannel(dataLabel, nil)
	if err != nil {
		l.shutdown(false)
		return nil, core.NewError(core.KindTransport, "connect", remote, err)
	}
	l.bind(dc)
	s.track(l.peer)
	if err := l.offer(wire.LinkData, wire.SDPPayload{}); err != nil {
		l.shutdown(false)
		return nil, core.NewError(core.KindTransport, "connect", remote, err)
	}
	return l, nil
}

// Destroy closes every link, telling the remote sides, and leaves the
// broker. Safe to call more than once.
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	links := make([]*peer, 0, len(s.links))
	for _, p := range s.links {
		links = append(links, p)
	}
	s.mu.Unlock()

	for _, p := range links {
		p.shutdown(true)
	}
	s.closeSend()
	s.logger.Info().Int("links", len(links)).Msg("session destroyed")
}

// closeSend ends the write pump once queued frames are written.
func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

func (s *Session) track(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[p.id] = p
}

func (s *Session) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, id)
}

func (s *Session) lookup(id string) (*peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.links[id]
	return p, ok
}

func (s *Session) LinkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

// signal queues a message for dst. It never blocks; a full queue drops
// the message.
func (s *Session) signal(t wire.Type, dst domain.PeerID, payload any) {
	msg, err := wire.New(t, dst, payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("build signal")
		return
	}
	b, err := wire.Encode(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode signal")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- b:
	default:
		s.logger.Warn().Str("type", string(t)).Str("peer", string(dst)).Msg("signal queue full, dropped")
	}
}
