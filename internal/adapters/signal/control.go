package signal

import (
	"context"

	"github.com/dkeye/Stream/internal/transport/wire"
	"github.com/rs/zerolog/log"
)

// handleHeartbeat keeps the peer's claim alive.
func (ctl *SignalWSController) handleHeartbeat(ctx context.Context, c *WsSignalConn) {
	if err := ctl.Presence.Refresh(ctx, c.peer, c.owner); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(c.peer)).Msg("heartbeat refresh")
	}
}

// handleForward relays offer, answer, candidate and leave to Dst, stamping
// the sender.
func (ctl *SignalWSController) handleForward(c *WsSignalConn, msg wire.Message) {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(c.peer) {
		log.Warn().
			Str("module", "signal").
			Str("peer", string(c.peer)).
			Str("type", string(msg.Type)).
			Uint64("dropped", ctl.Limiter.Dropped(c.peer)).
			Msg("rate limited")
		return
	}
	dstID := msg.Dst
	msg.Src = c.peer

	dst, ok := ctl.lookup(dstID)
	if ok {
		b, err := wire.Encode(msg)
		if err == nil && dst.TrySend(b) == nil {
			return
		}
	}
	if msg.Type == wire.TypeLeave {
		return
	}
	log.Info().Str("module", "signal").Str("peer", string(c.peer)).Str("dst", string(dstID)).Str("type", string(msg.Type)).Msg("peer unavailable")
	ctl.sendMsg(c, wire.ErrorMessage(wire.ErrPeerUnavailable, dstID, msg.Payload))
}
