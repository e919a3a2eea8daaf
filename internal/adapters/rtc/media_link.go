package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/Stream/internal/adapters/hook"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/dkeye/Stream/internal/transport/wire"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

type mediaLink struct {
	*peer
	md      core.CallMetadata
	inbound bool

	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex
	// preAnswered inbound calls were accepted on receipt because the caller
	// sends media; Answer then only adds local media.
	preAnswered bool
	answered    bool
	// expected is the number of tracks the remote side announced; the stream
	// fires once that many have arrived. Zero fires on the first track.
	expected int
	fired    bool
	media    *RemoteMedia

	stream hook.Hook[core.Media]
}

func newMediaLink(s *Session, id string, remote domain.PeerID, pc *webrtc.PeerConnection, md core.CallMetadata, inbound bool) *mediaLink {
	ctx, cancel := context.WithCancel(context.Background())
	l := &mediaLink{
		peer:    newPeer(s, id, remote, pc),
		md:      md,
		inbound: inbound,
		ctx:     ctx,
		cancel:  cancel,
		media:   newRemoteMedia(id),
	}
	l.errH = new(hook.Hook[error])
	l.whenShutdown(cancel)
	pc.OnTrack(l.onTrack)
	return l
}

func (l *mediaLink) Peer() domain.PeerID         { return l.remote }
func (l *mediaLink) Metadata() core.CallMetadata { return l.md }

func (l *mediaLink) onTrack(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	keyframe := func() {
		pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(remote.SSRC())}}
		if err := l.pc.WriteRTCP(pli); err != nil {
			l.s.logger.Debug().Err(err).Str("peer", string(l.remote)).Msg("keyframe request failed")
		}
	}
	fwd := newForwarder(remote, keyframe, l.s.logger)
	go fwd.loop(l.ctx)

	n := l.media.add(&RemoteTrack{remote: remote, fwd: fwd})
	l.s.logger.Info().
		Str("peer", string(l.remote)).
		Str("kind", remote.Kind().String()).
		Str("codec", remote.Codec().MimeType).
		Msg("remote track")

	l.mu.Lock()
	fire := !l.fired && n >= l.expected
	if fire {
		l.fired = true
	}
	l.mu.Unlock()
	if fire {
		l.stream.Fire(l.media)
	}
}

// attach adds the tracks of local to the peer connection.
func (l *mediaLink) attach(local core.Media) error {
	src, ok := local.(TrackSource)
	if !ok {
		return ErrUnsupported
	}
	tracks, release, err := src.LocalTracks()
	if err != nil {
		return err
	}
	if release != nil {
		l.whenShutdown(release)
	}
	for _, t := range tracks {
		sender, err := l.pc.AddTrack(t)
		if err != nil {
			return err
		}
		go drainRTCP(sender)
	}
	return nil
}

// drainRTCP reads incoming RTCP so interceptors keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (l *mediaLink) Answer(local core.Media) error {
	if !l.inbound {
		return ErrNotInbound
	}
	if l.isClosed() {
		return ErrLinkClosed
	}
	l.mu.Lock()
	if l.answered {
		l.mu.Unlock()
		return ErrAlreadyAnswered
	}
	l.answered = true
	pre := l.preAnswered
	l.mu.Unlock()

	if local != nil {
		if err := l.attach(local); err != nil {
			return err
		}
	}
	switch {
	case !pre:
		return l.answer(wire.LinkMedia)
	case local != nil:
		// The call is already up; renegotiate to add the tracks.
		return l.offer(wire.LinkMedia, wire.SDPPayload{Metadata: l.md})
	}
	return nil
}

// preAnswer accepts an inbound call that carries media of its own, so the
// media flows while the callee decides how to answer.
func (l *mediaLink) preAnswer(expected int) error {
	l.mu.Lock()
	l.preAnswered = true
	l.expected = expected
	l.mu.Unlock()
	return l.answer(wire.LinkMedia)
}

func (l *mediaLink) Close() { l.shutdown(true) }

func (l *mediaLink) OnStream(fn func(core.Media)) { l.stream.Set(fn) }
func (l *mediaLink) OnClose(fn func())            { l.closeH.Set(func(struct{}) { fn() }) }
func (l *mediaLink) OnError(fn func(error))       { l.errH.Set(fn) }
