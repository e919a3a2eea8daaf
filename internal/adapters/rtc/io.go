package rtc

import (
	"fmt"
	"time"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/transport/wire"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

func (s *Session) writePump() {
	heartbeat := time.NewTicker(s.t.cfg.HeartbeatPeriod)
	defer func() {
		heartbeat.Stop()
		_ = s.ws.Close()
	}()
	for {
		select {
		case data, ok := <-s.send:
			if err := s.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn().Err(err).Msg("broker write failed")
				return
			}
		case <-heartbeat.C:
			s.signal(wire.TypeHeartbeat, "", nil)
		}
	}
}

func (s *Session) readLoop() {
	defer s.lost()
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("broker read failed")
			}
			return
		}
		msg, err := wire.Decode(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("bad broker message dropped")
			continue
		}
		s.handle(msg)
	}
}

// lost runs when the broker connection ends. Established links keep
// running; new calls fail.
func (s *Session) lost() {
	s.closeSend()
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if !destroyed {
		s.logger.Warn().Msg("broker connection lost")
		s.disconnected.Fire(struct{}{})
	}
}

func (s *Session) handle(msg wire.Message) {
	switch msg.Type {
	case wire.TypeOffer:
		s.onOffer(msg)
	case wire.TypeAnswer:
		s.onAnswer(msg)
	case wire.TypeCandidate:
		var c wire.CandidatePayload
		if err := msg.Into(&c); err != nil {
			s.logger.Warn().Err(err).Msg("bad candidate")
			return
		}
		if p, ok := s.lookup(c.ConnectionID); ok {
			if err := p.addCandidate(c); err != nil {
				s.logger.Warn().Err(err).Str("peer", string(msg.Src)).Msg("add candidate failed")
			}
		}
	case wire.TypeLeave:
		var lv wire.LeavePayload
		if err := msg.Into(&lv); err != nil {
			return
		}
		if p, ok := s.lookup(lv.ConnectionID); ok {
			go p.shutdown(false)
		}
	case wire.TypeError:
		s.onBrokerError(msg)
	case wire.TypeOpen, wire.TypeHeartbeat:
	}
}

func (s *Session) onOffer(msg wire.Message) {
	var off wire.SDPPayload
	if err := msg.Into(&off); err != nil {
		s.logger.Warn().Err(err).Str("peer", string(msg.Src)).Msg("bad offer")
		return
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: off.SDP}

	// A known connection id is a renegotiation.
	if p, ok := s.lookup(off.ConnectionID); ok {
		if err := p.setRemote(desc); err != nil {
			p.fail(core.NewError(core.KindTransport, "renegotiate", p.remote, err))
			return
		}
		if err := p.answer(off.Kind); err != nil {
			p.fail(core.NewError(core.KindTransport, "renegotiate", p.remote, err))
		}
		return
	}

	pc, err := s.t.newPeerConnection()
	if err != nil {
		s.logger.Error().Err(err).Msg("new peer connection")
		return
	}
	switch off.Kind {
	case wire.LinkMedia:
		s.acceptCall(msg, off, pc, desc)
	case wire.LinkData:
		l := newDataLink(s, off.ConnectionID, msg.Src, pc)
		pc.OnDataChannel(l.bind)
		s.track(l.peer)
		if err := l.setRemote(desc); err != nil {
			l.fail(core.NewError(core.KindTransport, "accept", msg.Src, err))
			return
		}
		if err := l.answer(wire.LinkData); err != nil {
			l.fail(core.NewError(core.KindTransport, "accept", msg.Src, err))
			return
		}
		s.incomingData.Fire(l)
	default:
		_ = pc.Close()
		s.logger.Warn().Str("kind", string(off.Kind)).Msg("offer of unknown kind dropped")
	}
}

func (s *Session) acceptCall(msg wire.Message, off wire.SDPPayload, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) {
	md := off.Metadata
	sending, err := sendingSections(off.SDP)
	if err != nil {
		s.logger.Warn().Err(err).Str("peer", string(msg.Src)).Msg("unreadable offer sdp")
	}
	if md.Intent == core.IntentUnknown && err == nil && sending == 0 {
		md.Intent = core.IntentReceive
	}

	l := newMediaLink(s, off.ConnectionID, msg.Src, pc, md, true)
	s.track(l.peer)
	if err := l.setRemote(desc); err != nil {
		l.fail(core.NewError(core.KindTransport, "accept", msg.Src, err))
		return
	}
	if sending > 0 {
		if err := l.preAnswer(sending); err != nil {
			l.fail(core.NewError(core.KindTransport, "accept", msg.Src, err))
			return
		}
	}
	s.incomingCall.Fire(l)
}

func (s *Session) onAnswer(msg wire.Message) {
	var ans wire.SDPPayload
	if err := msg.Into(&ans); err != nil {
		s.logger.Warn().Err(err).Str("peer", string(msg.Src)).Msg("bad answer")
		return
	}
	p, ok := s.lookup(ans.ConnectionID)
	if !ok {
		return
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: ans.SDP}
	if err := p.setRemote(desc); err != nil {
		p.fail(core.NewError(core.KindTransport, "answer", p.remote, err))
	}
}

func (s *Session) onBrokerError(msg wire.Message) {
	switch msg.Error {
	case wire.ErrPeerUnavailable:
		// The payload echoes the undeliverable message.
		var ref wire.LeavePayload
		if err := msg.Into(&ref); err == nil {
			if p, ok := s.lookup(ref.ConnectionID); ok {
				p.fail(core.NewError(core.KindPeerUnreachable, "signal", msg.Src, nil))
				return
			}
		}
		s.logger.Debug().Str("peer", string(msg.Src)).Msg("peer unavailable")
	case wire.ErrUnavailableID:
		s.errs.Fire(core.NewError(core.KindIdentityTaken, "session", s.id, nil))
	default:
		s.errs.Fire(core.NewError(core.KindTransport, "session", msg.Src, fmt.Errorf("broker: %s", msg.Error)))
	}
}
