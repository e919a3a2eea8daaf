package sfu

import (
	"slices"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Dialer issues one relay call carrying r.Media to target.
type Dialer func(target domain.PeerID, r *Relay) (core.MediaLink, error)

// FanoutResult reports a fan-out pass. Failures never abort the pass.
type FanoutResult struct {
	Sent   []domain.PeerID
	Failed map[domain.PeerID]error
}

// RelayManager owns the relay mesh of one host session. It is driven from
// the session's event loop and is not safe for concurrent use.
type RelayManager struct {
	self   domain.PeerID
	relays map[domain.PeerID]*Relay
	logger zerolog.Logger
}

func NewRelayManager(self domain.PeerID) *RelayManager {
	return &RelayManager{
		self:   self,
		relays: make(map[domain.PeerID]*Relay),
		logger: log.With().Str("module", "sfu").Str("sid", string(self)).Logger(),
	}
}

// StartRelay registers origin's media, replacing any previous relay of the
// same origin.
func (m *RelayManager) StartRelay(origin domain.PeerID, name string, media core.Media) *Relay {
	if old, ok := m.relays[origin]; ok {
		m.logger.Info().Str("origin", string(origin)).Msg("replacing existing relay")
		old.closeAll()
	}
	r := NewRelay(origin, name, media)
	m.relays[origin] = r
	m.logger.Info().Str("origin", string(origin)).Msg("relay started")
	return r
}

// StopRelay closes every outbound call of origin's relay.
func (m *RelayManager) StopRelay(origin domain.PeerID) int {
	r, ok := m.relays[origin]
	if !ok {
		return 0
	}
	delete(m.relays, origin)
	n := r.closeAll()
	m.logger.Info().Str("origin", string(origin)).Int("closed", n).Msg("relay stopped")
	return n
}

// Rename labels origin's relay for calls dialled from now on.
func (m *RelayManager) Rename(origin domain.PeerID, name string) bool {
	r, ok := m.relays[origin]
	if ok {
		r.DisplayName = name
	}
	return ok
}

func (m *RelayManager) HasRelay(origin domain.PeerID) bool {
	_, ok := m.relays[origin]
	return ok
}

func (m *RelayManager) Relay(origin domain.PeerID) (*Relay, bool) {
	r, ok := m.relays[origin]
	return r, ok
}

// Relays returns the active relays ordered by origin.
func (m *RelayManager) Relays() []*Relay {
	out := make([]*Relay, 0, len(m.relays))
	for _, r := range m.relays {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *Relay) int {
		switch {
		case a.Origin < b.Origin:
			return -1
		case a.Origin > b.Origin:
			return 1
		}
		return 0
	})
	return out
}

// Fanout dials every target that is not the origin and not yet subscribed.
// A failed dial is recorded as a RelayFailure and the pass continues.
func (m *RelayManager) Fanout(origin domain.PeerID, targets []domain.PeerID, dial Dialer) FanoutResult {
	res := FanoutResult{Failed: make(map[domain.PeerID]error)}
	r, ok := m.relays[origin]
	if !ok {
		return res
	}
	for _, target := range targets {
		if target == origin || target == m.self || r.Has(target) {
			continue
		}
		link, err := dial(target, r)
		if err != nil {
			err = core.NewError(core.KindRelayFailure, "relay", target, err)
			m.logger.Warn().
				Err(err).
				Str("origin", string(origin)).
				Str("peer", string(target)).
				Msg("relay call failed, skipping recipient")
			res.Failed[target] = err
			continue
		}
		r.addOutLink(NewOutLink(target, link))
		res.Sent = append(res.Sent, target)
	}
	return res
}

// Forget drops the out link of origin→target if it is still link.
// It is called when the transport reports the relay call closed.
func (m *RelayManager) Forget(origin, target domain.PeerID, link core.MediaLink) bool {
	r, ok := m.relays[origin]
	if !ok {
		return false
	}
	ol, ok := r.outLinks[target]
	if !ok || ol.Link != link {
		return false
	}
	ol.MarkDelete()
	delete(r.outLinks, target)
	m.logger.Info().Str("origin", string(origin)).Str("peer", string(target)).Msg("relay recipient gone")
	return true
}

// DropTarget closes every relay call delivered to target.
func (m *RelayManager) DropTarget(target domain.PeerID) int {
	n := 0
	for _, r := range m.relays {
		if ol, ok := r.outLinks[target]; ok {
			if ol.close() {
				n++
			}
			delete(r.outLinks, target)
		}
	}
	if n > 0 {
		m.logger.Info().Str("peer", string(target)).Int("closed", n).Msg("relay calls to recipient closed")
	}
	return n
}

// Len counts live outbound relay calls.
func (m *RelayManager) Len() int {
	n := 0
	for _, r := range m.relays {
		n += len(r.outLinks)
	}
	return n
}

func (m *RelayManager) CloseAll() int {
	n := 0
	for origin, r := range m.relays {
		n += r.closeAll()
		delete(m.relays, origin)
	}
	return n
}
