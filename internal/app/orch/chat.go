package orch

import (
	"context"

	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

// SendChatMessage appends the message locally and sends it: the host to
// every open data link, a viewer to the host only.
func (c *Coordinator) SendChatMessage(text string) (domain.ChatMessage, error) {
	var out domain.ChatMessage
	err := c.do(func() error {
		m, err := c.sendChat(text)
		out = m
		return err
	})
	return out, err
}

func (c *Coordinator) sendChat(text string) (domain.ChatMessage, error) {
	text, err := domain.NormalizeChatText(text, c.cfg.MaxChatLen)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	m := domain.NewChatMessage(c.cfg.StreamID, c.self.ID, c.self.DisplayName, text)

	if c.self.Role == domain.RoleHost {
		c.chat.Append(m)
		c.fanoutChat(m)
		return m, nil
	}

	host := c.hostID()
	e, ok := c.reg.Data(host)
	if !ok || e.State != app.DataOpen {
		return domain.ChatMessage{}, core.NewError(core.KindTransport, "chat", host, ErrNoHostLink)
	}
	payload, err := app.EncodeDataMessage(app.ChatEnvelope(m))
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if err := e.Link.Send(payload); err != nil {
		return domain.ChatMessage{}, core.Classify(core.KindTransport, "chat", host, err)
	}
	c.chat.Append(m)
	return m, nil
}

func (c *Coordinator) fanoutChat(m domain.ChatMessage) {
	payload, err := app.EncodeDataMessage(app.ChatEnvelope(m))
	if err != nil {
		c.logger.Error().Err(err).Msg("encode chat message")
		return
	}
	for _, e := range c.reg.OpenData() {
		if err := e.Link.Send(payload); err != nil {
			c.logger.Warn().Err(err).Str("peer", string(e.Peer)).Msg("chat send failed")
			if c.cfg.Policy.OnSendFailure(e.Peer, err) == app.CloseLink {
				c.reg.DropData(e)
			}
		}
	}
}

func (c *Coordinator) receiveChat(e *app.DataEntry, m domain.ChatMessage) {
	if m.StreamID != c.cfg.StreamID {
		c.logger.Warn().Str("peer", string(e.Peer)).Str("msg_stream", string(m.StreamID)).Msg("chat for another stream dropped")
		return
	}
	if c.self.Role == domain.RoleHost && m.SenderPeerID != e.Peer {
		c.logger.Warn().Str("peer", string(e.Peer)).Str("sender", string(m.SenderPeerID)).Msg("chat sender mismatch dropped")
		return
	}
	text, err := domain.NormalizeChatText(m.Text, c.cfg.MaxChatLen)
	if err != nil {
		c.logger.Warn().Err(err).Str("peer", string(e.Peer)).Int("len", len(m.Text)).Msg("chat text rejected")
		return
	}
	m.Text = text
	// Repeated ids cover both redelivery and the viewer's own echo.
	if !c.chat.Append(m) {
		c.logger.Debug().Str("id", m.ID).Msg("duplicate chat message")
		return
	}
	if c.self.Role == domain.RoleHost {
		c.fanoutChat(m)
	}
}

func (c *Coordinator) connectData(ctx context.Context, peer domain.PeerID) error {
	link, err := c.session.Connect(ctx, peer)
	if err != nil {
		err = core.Classify(core.KindTransport, "connect", peer, err)
		c.logger.Warn().Err(err).Msg("data link failed")
		return err
	}
	e := app.NewDataEntry(link, true)
	c.reg.AddData(e)
	c.watchData(e)
	return nil
}

func (c *Coordinator) onIncomingData(link core.DataLink) {
	e := app.NewDataEntry(link, false)
	c.reg.AddData(e)
	c.watchData(e)
}

func (c *Coordinator) onDataOpen(e *app.DataEntry) {
	if e.State != app.DataConnecting {
		return
	}
	e.State = app.DataOpen
	payload, err := app.EncodeDataMessage(app.HelloMessage(c.self.DisplayName))
	if err != nil {
		return
	}
	if err := e.Link.Send(payload); err != nil {
		c.logger.Warn().Err(err).Str("peer", string(e.Peer)).Msg("hello failed")
	}
}

func (c *Coordinator) onData(e *app.DataEntry, payload []byte) {
	if e.State != app.DataOpen {
		return
	}
	msg, err := app.DecodeDataMessage(payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("peer", string(e.Peer)).Msg("bad data message dropped")
		return
	}
	switch msg.Type {
	case app.MsgHello:
		name, err := domain.NormalizeDisplayName(msg.Name)
		if err != nil {
			return
		}
		c.reg.SetName(e.Peer, name)
	case app.MsgChat:
		c.receiveChat(e, *msg.Message)
	}
}
