package rtc

import (
	"errors"
	"sync"

	"github.com/dkeye/Stream/internal/adapters/hook"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/dkeye/Stream/internal/transport/wire"
	"github.com/pion/webrtc/v4"
)

var (
	ErrLinkClosed      = errors.New("link closed")
	ErrAlreadyAnswered = errors.New("call already answered")
	ErrNotInbound      = errors.New("only inbound calls can be answered")
	ErrNotOpen         = errors.New("data link not open")
	ErrUnsupported     = errors.New("media has no tracks this transport can send")
)

// peer is the signalling state of one peer connection, shared by media
// and data links.
type peer struct {
	s      *Session
	id     string
	remote domain.PeerID
	pc     *webrtc.PeerConnection

	mu          sync.Mutex
	remoteSet   bool
	remoteCands []webrtc.ICECandidateInit
	localReady  bool
	localCands  []wire.CandidatePayload
	closed      bool
	onShutdown  []func()

	closeH hook.Hook[struct{}]
	// errH is nil on data links, which report failure by closing.
	errH *hook.Hook[error]
}

func newPeer(s *Session, id string, remote domain.PeerID, pc *webrtc.PeerConnection) *peer {
	p := &peer{s: s, id: id, remote: remote, pc: pc}
	pc.OnICECandidate(p.onLocalCandidate)
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.logger.Debug().Str("peer", string(remote)).Str("conn", id).Str("state", st.String()).Msg("connection state")
		switch st {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			go p.shutdown(false)
		}
	})
	return p
}

// onLocalCandidate trickles candidates once the local description has
// been sent, so the remote side never sees a candidate before the offer.
func (p *peer) onLocalCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	init := c.ToJSON()
	cand := wire.CandidatePayload{
		ConnectionID:     p.id,
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
	p.mu.Lock()
	if !p.localReady {
		p.localCands = append(p.localCands, cand)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.s.signal(wire.TypeCandidate, p.remote, cand)
}

// sendDescription sends the local description then the candidates
// gathered so far.
func (p *peer) sendDescription(t wire.Type, payload wire.SDPPayload) {
	p.s.signal(t, p.remote, payload)
	p.mu.Lock()
	p.localReady = true
	cands := p.localCands
	p.localCands = nil
	p.mu.Unlock()
	for _, c := range cands {
		p.s.signal(wire.TypeCandidate, p.remote, c)
	}
}

func (p *peer) setRemote(desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	p.mu.Lock()
	p.remoteSet = true
	cands := p.remoteCands
	p.remoteCands = nil
	p.mu.Unlock()
	for _, c := range cands {
		if err := p.pc.AddICECandidate(c); err != nil {
			p.s.logger.Warn().Err(err).Str("peer", string(p.remote)).Msg("buffered candidate rejected")
		}
	}
	return nil
}

func (p *peer) addCandidate(c wire.CandidatePayload) error {
	init := webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
	p.mu.Lock()
	if !p.remoteSet {
		p.remoteCands = append(p.remoteCands, init)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.pc.AddICECandidate(init)
}

// answer applies an offer and replies to it.
func (p *peer) answer(kind wire.LinkKind) error {
	ans, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := p.pc.SetLocalDescription(ans); err != nil {
		return err
	}
	p.sendDescription(wire.TypeAnswer, wire.SDPPayload{ConnectionID: p.id, Kind: kind, SDP: ans.SDP})
	return nil
}

// offer creates and sends a local offer.
func (p *peer) offer(kind wire.LinkKind, md wire.SDPPayload) error {
	off, err := p.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := p.pc.SetLocalDescription(off); err != nil {
		return err
	}
	md.ConnectionID = p.id
	md.Kind = kind
	md.SDP = off.SDP
	p.sendDescription(wire.TypeOffer, md)
	return nil
}

func (p *peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *peer) whenShutdown(fn func()) {
	p.mu.Lock()
	p.onShutdown = append(p.onShutdown, fn)
	p.mu.Unlock()
}

// fail reports err on the link and closes it.
func (p *peer) fail(err error) {
	if p.isClosed() {
		return
	}
	if p.errH != nil {
		p.errH.Fire(err)
	} else {
		p.s.logger.Debug().Err(err).Str("peer", string(p.remote)).Str("conn", p.id).Msg("data link failed")
	}
	p.shutdown(false)
}

// shutdown closes the peer connection once. notify tells the remote side.
func (p *peer) shutdown(notify bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	fns := p.onShutdown
	p.onShutdown = nil
	p.mu.Unlock()

	p.s.untrack(p.id)
	if notify {
		p.s.signal(wire.TypeLeave, p.remote, wire.LeavePayload{ConnectionID: p.id})
	}
	for _, fn := range fns {
		fn()
	}
	if err := p.pc.Close(); err != nil {
		p.s.logger.Debug().Err(err).Str("peer", string(p.remote)).Msg("close peer connection")
	}
	p.closeH.Fire(struct{}{})
}
