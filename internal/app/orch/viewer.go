package orch

import (
	"context"

	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

// JoinAsViewer calls the host asking for its media and opens the chat link.
// A previous join call is replaced.
func (c *Coordinator) JoinAsViewer(ctx context.Context) error {
	return c.do(func() error {
		if c.self.Role != domain.RoleViewer {
			return ErrNotViewer
		}
		return c.joinAsViewer(ctx)
	})
}

func (c *Coordinator) hostID() domain.PeerID {
	return domain.HostPeerID(c.cfg.StreamID)
}

func (c *Coordinator) joinAsViewer(ctx context.Context) error {
	host := c.hostID()
	md := core.CallMetadata{Intent: core.IntentReceive, DisplayName: c.self.DisplayName}
	link, err := c.session.Call(ctx, host, nil, md)
	if err != nil {
		err = core.Classify(core.KindTransport, "join", host, err)
		c.lastError = err
		c.logger.Warn().Err(err).Msg("join failed")
		return err
	}
	e := app.NewMediaEntry(link, app.Outbound, app.RoleUpstream)
	c.reg.SetUpstream(e)
	c.watchCall(e)
	c.remoteMedia = nil
	c.lastError = nil
	c.logger.Info().Str("peer", string(host)).Msg("joined as viewer")

	if _, ok := c.reg.Data(host); !ok {
		if err := c.connectData(ctx, host); err != nil {
			c.lastError = err
			return err
		}
	}
	return nil
}

// ShareMedia contributes local media to the stream; the host relays it to
// the other viewers.
func (c *Coordinator) ShareMedia(ctx context.Context, media core.Media) error {
	return c.do(func() error {
		if c.self.Role != domain.RoleViewer {
			return ErrNotViewer
		}
		if media == nil {
			return ErrNoMedia
		}
		host := c.hostID()
		md := core.CallMetadata{Intent: core.IntentShare, DisplayName: c.self.DisplayName}
		link, err := c.session.Call(ctx, host, media, md)
		if err != nil {
			err = core.Classify(core.KindTransport, "share", host, err)
			c.lastError = err
			return err
		}
		e := app.NewMediaEntry(link, app.Outbound, app.RoleShareOut)
		c.reg.SetShareOut(e)
		c.watchCall(e)
		c.shareMedia = media
		c.logger.Info().Msg("sharing media with host")
		return nil
	})
}

func (c *Coordinator) StopSharing() error {
	return c.do(func() error {
		e := c.reg.ShareOut()
		if e == nil {
			return nil
		}
		c.reg.ClearShareOut(e)
		c.reg.CloseEntry(e)
		c.shareMedia = nil
		c.logger.Info().Msg("stopped sharing")
		return nil
	})
}

// acceptRelay answers any inbound call on the viewer side with no media.
func (c *Coordinator) acceptRelay(link core.MediaLink) {
	e := app.NewMediaEntry(link, app.Inbound, app.RoleRelayIn)
	e.Origin = e.Meta.Origin
	if e.Origin == "" {
		e.Origin = e.Peer
	}
	c.watchCall(e)
	if err := link.Answer(nil); err != nil {
		c.logger.Warn().Err(err).Str("peer", string(e.Peer)).Msg("answer relay failed")
		c.reg.CloseEntry(e)
		return
	}
	e.State = app.LinkAnswered
	c.reg.AddRelayIn(e)
}
