// Package memnet is an in-process transport. Sessions opened on the same
// Network reach each other by identity; callbacks run synchronously on the
// caller's goroutine.
package memnet

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Stream/internal/adapters/hook"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrSessionDestroyed = errors.New("session destroyed")

type Network struct {
	mu       sync.Mutex
	sessions map[domain.PeerID]*Session
}

func New() *Network {
	return &Network{sessions: make(map[domain.PeerID]*Session)}
}

// Open claims id. Identities are unique per Network.
func (n *Network) Open(ctx context.Context, id domain.PeerID) (core.TransportSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.NewError(core.KindTransport, "open", id, err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, taken := n.sessions[id]; taken {
		log.Warn().Str("module", "memnet").Str("sid", string(id)).Msg("identity taken")
		return nil, core.NewError(core.KindIdentityTaken, "open", id, nil)
	}
	s := &Session{
		net:   n,
		id:    id,
		links: make(map[any]func()),
	}
	n.sessions[id] = s
	log.Debug().Str("module", "memnet").Str("sid", string(id)).Msg("session open")
	return s, nil
}

// Online reports whether id has an open session.
func (n *Network) Online(id domain.PeerID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.sessions[id]
	return ok
}

// Disconnect simulates losing the transport: every link of id closes and
// its session is told it is disconnected.
func (n *Network) Disconnect(id domain.PeerID) bool {
	s, ok := n.remove(id)
	if !ok {
		return false
	}
	s.closeLinks()
	s.disconnected.Fire(struct{}{})
	return true
}

func (n *Network) lookup(id domain.PeerID) (*Session, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sessions[id]
	return s, ok
}

func (n *Network) remove(id domain.PeerID) (*Session, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sessions[id]
	if ok {
		delete(n.sessions, id)
	}
	return s, ok
}

type Session struct {
	net *Network
	id  domain.PeerID

	mu        sync.Mutex
	links     map[any]func()
	destroyed bool

	incomingCall hook.Hook[core.MediaLink]
	incomingData hook.Hook[core.DataLink]
	disconnected hook.Hook[struct{}]
	errs         hook.Hook[error]
}

func (s *Session) ID() domain.PeerID { return s.id }

func (s *Session) dial(ctx context.Context, op string, remote domain.PeerID) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.NewError(core.KindTransport, op, remote, err)
	}
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		return nil, core.NewError(core.KindTransport, op, remote, ErrSessionDestroyed)
	}
	dst, ok := s.net.lookup(remote)
	if !ok {
		return nil, core.NewError(core.KindPeerUnreachable, op, remote, nil)
	}
	return dst, nil
}

func (s *Session) Call(ctx context.Context, remote domain.PeerID, local core.Media, md core.CallMetadata) (core.MediaLink, error) {
	dst, err := s.dial(ctx, "call", remote)
	if err != nil {
		return nil, err
	}
	out := &mediaLink{owner: s, peer: remote, md: md}
	in := &mediaLink{owner: dst, peer: s.id, md: md, inbound: true}
	out.remote, in.remote = in, out
	s.track(out, out.Close)
	dst.track(in, in.Close)

	log.Debug().Str("module", "memnet").Str("sid", string(s.id)).Str("peer", string(remote)).Str("intent", string(md.Intent)).Msg("call")
	dst.incomingCall.Fire(in)
	if local != nil {
		in.stream.Fire(local)
	}
	return out, nil
}

func (s *Session) Connect(ctx context.Context, remote domain.PeerID) (core.DataLink, error) {
	dst, err := s.dial(ctx, "connect", remote)
	if err != nil {
		return nil, err
	}
	out := &dataLink{owner: s, peer: remote}
	in := &dataLink{owner: dst, peer: s.id}
	out.remote, in.remote = in, out
	s.track(out, out.Close)
	dst.track(in, in.Close)

	dst.incomingData.Fire(in)
	in.markOpen()
	out.markOpen()
	return out, nil
}

func (s *Session) OnIncomingCall(fn func(core.MediaLink)) { s.incomingCall.Set(fn) }
func (s *Session) OnIncomingData(fn func(core.DataLink))  { s.incomingData.Set(fn) }
func (s *Session) OnDisconnected(fn func()) {
	s.disconnected.Set(func(struct{}) { fn() })
}
func (s *Session) OnError(fn func(error)) { s.errs.Set(fn) }

// Destroy releases the identity and closes every link.
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.mu.Unlock()

	if cur, ok := s.net.lookup(s.id); ok && cur == s {
		s.net.remove(s.id)
	}
	s.closeLinks()
	log.Debug().Str("module", "memnet").Str("sid", string(s.id)).Msg("session destroyed")
}

// LinkCount is the number of links still open on this session.
func (s *Session) LinkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

func (s *Session) track(l any, closeFn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[l] = closeFn
}

func (s *Session) untrack(l any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, l)
}

func (s *Session) closeLinks() {
	s.mu.Lock()
	closers := make([]func(), 0, len(s.links))
	for _, c := range s.links {
		closers = append(closers, c)
	}
	s.mu.Unlock()
	for _, c := range closers {
		c()
	}
}
