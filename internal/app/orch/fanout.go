package orch

import (
	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/app/sfu"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

// GoLive sets the host media. Calls queued while the host had no media are
// answered with it before any later arrival is looked at.
func (c *Coordinator) GoLive(media core.Media) error {
	return c.do(func() error {
		if c.self.Role != domain.RoleHost {
			return ErrNotHost
		}
		if media == nil {
			return ErrNoMedia
		}
		c.goLive(media)
		return nil
	})
}

// EndBroadcast closes the host media links and clears the host media.
// Relay calls between viewers are left alone.
func (c *Coordinator) EndBroadcast() error {
	return c.do(func() error {
		if c.self.Role != domain.RoleHost {
			return ErrNotHost
		}
		if c.hostMedia == nil {
			return nil
		}
		n := c.reg.CloseViewers()
		c.hostMedia = nil
		c.logger.Info().Int("closed", n).Msg("broadcast ended")
		return nil
	})
}

func (c *Coordinator) goLive(media core.Media) {
	if c.hostMedia != nil && c.hostMedia != media {
		n := c.reg.CloseViewers()
		c.logger.Info().Int("closed", n).Msg("host media replaced")
	}
	c.hostMedia = media

	answered := 0
	for _, e := range c.reg.DrainPending() {
		if e.State == app.LinkClosed {
			continue
		}
		if c.answerWithHostMedia(e) {
			answered++
		}
	}
	c.logger.Info().Int("answered_pending", answered).Int("viewers", c.reg.ViewerCount()).Msg("live")
}

func (c *Coordinator) onIncomingCall(link core.MediaLink) {
	if c.self.Role == domain.RoleViewer {
		c.acceptRelay(link)
		return
	}
	e := app.NewMediaEntry(link, app.Inbound, app.RoleClassifying)
	c.watchCall(e)
	c.logger.Info().
		Str("peer", string(e.Peer)).
		Str("intent", string(e.Meta.Intent)).
		Msg("incoming call")

	if e.Meta.Intent == core.IntentReceive {
		c.wantsHostMedia(e)
		return
	}
	t := c.cfg.AfterFunc(c.cfg.GraceWindow, func() { c.post(evGraceExpired{e}) })
	c.reg.StartClassify(e, t)
}

func (c *Coordinator) onGraceExpired(e *app.MediaEntry) {
	if !c.reg.StopClassify(e) {
		return
	}
	c.wantsHostMedia(e)
}

func (c *Coordinator) wantsHostMedia(e *app.MediaEntry) {
	if c.hostMedia == nil {
		c.reg.EnqueuePending(e)
		return
	}
	c.answerWithHostMedia(e)
}

func (c *Coordinator) answerWithHostMedia(e *app.MediaEntry) bool {
	if err := e.Link.Answer(c.hostMedia); err != nil {
		c.logger.Warn().Err(err).Str("peer", string(e.Peer)).Msg("answer with host media failed")
		c.reg.CloseEntry(e)
		return false
	}
	e.State = app.LinkAnswered
	c.reg.AddViewer(e)
	c.relayExistingTo(e.Peer)
	return true
}

func (c *Coordinator) classifyViewerSharing(e *app.MediaEntry, media core.Media) {
	if err := e.Link.Answer(nil); err != nil {
		c.logger.Warn().Err(err).Str("peer", string(e.Peer)).Msg("answer viewer share failed")
		c.reg.CloseEntry(e)
		return
	}
	e.State = app.LinkOpen
	e.Media = media
	vs := c.reg.AddShare(e)
	c.reg.Relays.StartRelay(e.Peer, vs.DisplayName, media)
	c.fanoutRelay(e.Peer, c.reg.ViewerPeers())
}

// relayExistingTo sends every active viewer stream to a newly answered viewer.
func (c *Coordinator) relayExistingTo(peer domain.PeerID) {
	for _, r := range c.reg.Relays.Relays() {
		c.fanoutRelay(r.Origin, []domain.PeerID{peer})
	}
}

func (c *Coordinator) fanoutRelay(origin domain.PeerID, targets []domain.PeerID) {
	res := c.reg.Relays.Fanout(origin, targets, c.dialRelay)
	if len(res.Sent) > 0 || len(res.Failed) > 0 {
		c.logger.Info().
			Str("origin", string(origin)).
			Int("sent", len(res.Sent)).
			Int("failed", len(res.Failed)).
			Msg("relay fan-out")
	}
}

func (c *Coordinator) dialRelay(target domain.PeerID, r *sfu.Relay) (core.MediaLink, error) {
	md := core.CallMetadata{
		Intent:      core.IntentRelay,
		Origin:      r.Origin,
		DisplayName: r.DisplayName,
	}
	link, err := c.session.Call(c.ctx, target, r.Media, md)
	if err != nil {
		return nil, err
	}
	origin := r.Origin
	link.OnClose(func() { c.post(evRelayClosed{origin: origin, target: target, link: link}) })
	link.OnError(func(err error) {
		c.post(evRelayError{origin: origin, target: target, link: link, err: err})
	})
	return link, nil
}

func (c *Coordinator) onRelayError(ev evRelayError) {
	err := core.NewError(core.KindRelayFailure, "relay", ev.target, ev.err)
	c.logger.Warn().Err(err).Str("origin", string(ev.origin)).Msg("relay call failed")
	if c.reg.Relays.Forget(ev.origin, ev.target, ev.link) {
		ev.link.Close()
	}
}

func (c *Coordinator) onCallStream(e *app.MediaEntry, media core.Media) {
	switch e.Role {
	case app.RoleClassifying:
		if c.reg.StopClassify(e) {
			c.classifyViewerSharing(e, media)
		}
	case app.RoleUpstream:
		if e.State == app.LinkClosed {
			return
		}
		e.State = app.LinkOpen
		e.Media = media
		c.remoteMedia = media
		c.lastError = nil
		c.logger.Info().Msg("receiving host media")
	case app.RoleRelayIn:
		if e.State == app.LinkClosed {
			return
		}
		e.State = app.LinkOpen
		e.Media = media
		c.logger.Info().Str("origin", string(e.Origin)).Msg("receiving other viewer media")
	case app.RoleHostMedia:
		if e.State == app.LinkAnswered {
			e.State = app.LinkOpen
		}
	default:
		c.logger.Debug().Str("peer", string(e.Peer)).Str("role", e.Role.String()).Msg("stream ignored")
	}
}

func (c *Coordinator) onCallClosed(e *app.MediaEntry) {
	switch e.Role {
	case app.RoleClassifying:
		c.reg.StopClassify(e)
	case app.RolePending:
		c.reg.RemovePending(e)
	case app.RoleHostMedia:
		if c.reg.RemoveViewer(e) {
			c.reg.Relays.DropTarget(e.Peer)
		}
	case app.RoleViewerShare:
		if c.reg.RemoveShare(e) {
			c.reg.Relays.StopRelay(e.Peer)
		}
	case app.RoleUpstream:
		if c.reg.ClearUpstream(e) {
			c.remoteMedia = nil
			c.logger.Info().Msg("host media link closed")
		}
	case app.RoleShareOut:
		c.reg.ClearShareOut(e)
	case app.RoleRelayIn:
		c.reg.RemoveRelayIn(e)
	}
	c.reg.CloseEntry(e)
}

// onCallError removes only the failing link.
func (c *Coordinator) onCallError(e *app.MediaEntry, err error) {
	err = core.Classify(core.KindTransport, "call", e.Peer, err)
	c.logger.Warn().Err(err).Str("peer", string(e.Peer)).Str("role", e.Role.String()).Msg("call error")
	if e.Role == app.RoleUpstream || e.Role == app.RoleShareOut {
		c.lastError = err
	}
	c.onCallClosed(e)
}
