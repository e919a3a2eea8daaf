package app

import (
	"slices"

	"github.com/dkeye/Stream/internal/app/sfu"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Registry owns every link handle of one session. It is created when the
// session opens and emptied by CloseAll on teardown. All methods must be
// called from the session's event loop.
type Registry struct {
	self   domain.PeerID
	logger zerolog.Logger

	data  map[domain.PeerID]*DataEntry
	names map[domain.PeerID]string

	classifying map[*MediaEntry]Timer
	pending     []*MediaEntry
	viewers     map[domain.PeerID]*MediaEntry
	shares      map[domain.PeerID]*ViewerStream

	upstream *MediaEntry
	shareOut *MediaEntry
	relayIn  map[domain.PeerID]*MediaEntry

	Relays *sfu.RelayManager
}

func NewRegistry(self domain.PeerID) *Registry {
	return &Registry{
		self:        self,
		logger:      log.With().Str("module", "app.registry").Str("sid", string(self)).Logger(),
		data:        make(map[domain.PeerID]*DataEntry),
		names:       make(map[domain.PeerID]string),
		classifying: make(map[*MediaEntry]Timer),
		viewers:     make(map[domain.PeerID]*MediaEntry),
		shares:      make(map[domain.PeerID]*ViewerStream),
		relayIn:     make(map[domain.PeerID]*MediaEntry),
		Relays:      sfu.NewRelayManager(self),
	}
}

func sortByPeer[T any](m map[domain.PeerID]T) []T {
	keys := make([]domain.PeerID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// AddData stores a data link, closing any previous link of the same peer.
func (r *Registry) AddData(e *DataEntry) {
	if old, ok := r.data[e.Peer]; ok && old != e {
		old.close()
		r.logger.Info().Str("peer", string(e.Peer)).Msg("replaced data link")
	}
	r.data[e.Peer] = e
	r.logger.Info().Str("peer", string(e.Peer)).Bool("outbound", e.Outbound).Msg("bound data link")
}

// DropData removes e and the peer's cached display name. It is a no-op if
// e is no longer the peer's current link.
func (r *Registry) DropData(e *DataEntry) bool {
	cur, ok := r.data[e.Peer]
	e.close()
	if !ok || cur != e {
		return false
	}
	delete(r.data, e.Peer)
	delete(r.names, e.Peer)
	r.logger.Info().Str("peer", string(e.Peer)).Msg("unbound data link")
	return true
}

func (r *Registry) Data(peer domain.PeerID) (*DataEntry, bool) {
	e, ok := r.data[peer]
	return e, ok
}

// OpenData returns the open data links ordered by peer.
func (r *Registry) OpenData() []*DataEntry {
	out := make([]*DataEntry, 0, len(r.data))
	for _, e := range sortByPeer(r.data) {
		if e.State == DataOpen {
			out = append(out, e)
		}
	}
	return out
}

func (r *Registry) SetName(peer domain.PeerID, name string) {
	r.names[peer] = name
	if vs, ok := r.shares[peer]; ok {
		vs.DisplayName = name
	}
	r.Relays.Rename(peer, name)
	r.logger.Info().Str("peer", string(peer)).Str("name", name).Msg("cached display name")
}

func (r *Registry) Name(peer domain.PeerID) (string, bool) {
	n, ok := r.names[peer]
	return n, ok
}

func (r *Registry) StartClassify(e *MediaEntry, t Timer) {
	e.Role = RoleClassifying
	r.classifying[e] = t
}

// StopClassify ends the grace window of e, cancelling its timer.
func (r *Registry) StopClassify(e *MediaEntry) bool {
	t, ok := r.classifying[e]
	if !ok {
		return false
	}
	delete(r.classifying, e)
	if t != nil {
		t.Stop()
	}
	return true
}

func (r *Registry) Classifying() int { return len(r.classifying) }

func (r *Registry) EnqueuePending(e *MediaEntry) {
	e.Role = RolePending
	r.pending = append(r.pending, e)
	r.logger.Info().Str("peer", string(e.Peer)).Int("pending", len(r.pending)).Msg("call queued until host media")
}

func (r *Registry) RemovePending(e *MediaEntry) bool {
	i := slices.Index(r.pending, e)
	if i < 0 {
		return false
	}
	r.pending = slices.Delete(r.pending, i, i+1)
	return true
}

// DrainPending empties the queue and returns its calls in arrival order.
func (r *Registry) DrainPending() []*MediaEntry {
	out := r.pending
	r.pending = nil
	return out
}

func (r *Registry) Pending() int { return len(r.pending) }

// AddViewer registers e as answered with host media. A previous host link
// of the same peer is closed.
func (r *Registry) AddViewer(e *MediaEntry) {
	if old, ok := r.viewers[e.Peer]; ok && old != e {
		old.close()
		r.logger.Info().Str("peer", string(e.Peer)).Msg("replaced host media link")
	}
	e.Role = RoleHostMedia
	r.viewers[e.Peer] = e
	r.logger.Info().Str("peer", string(e.Peer)).Int("viewers", r.ViewerCount()).Msg("viewer added")
}

func (r *Registry) RemoveViewer(e *MediaEntry) bool {
	cur, ok := r.viewers[e.Peer]
	if !ok || cur != e {
		return false
	}
	delete(r.viewers, e.Peer)
	r.logger.Info().Str("peer", string(e.Peer)).Int("viewers", r.ViewerCount()).Msg("viewer removed")
	return true
}

// ViewerCount is recomputed from link states on every call.
func (r *Registry) ViewerCount() int {
	n := 0
	for _, e := range r.viewers {
		if e.Live() {
			n++
		}
	}
	return n
}

// ViewerPeers lists peers currently answered with host media.
func (r *Registry) ViewerPeers() []domain.PeerID {
	out := make([]domain.PeerID, 0, len(r.viewers))
	for _, e := range sortByPeer(r.viewers) {
		if e.Live() {
			out = append(out, e.Peer)
		}
	}
	return out
}

// CloseViewers closes only the host media links.
func (r *Registry) CloseViewers() int {
	n := 0
	for peer, e := range r.viewers {
		if e.close() {
			n++
		}
		delete(r.viewers, peer)
	}
	r.logger.Info().Int("closed", n).Msg("closed host media links")
	return n
}

// AddShare registers e as peer's ViewerStream, replacing a previous one.
func (r *Registry) AddShare(e *MediaEntry) *ViewerStream {
	if old, ok := r.shares[e.Peer]; ok && old.Entry != e {
		old.Entry.close()
	}
	name, ok := r.names[e.Peer]
	if !ok {
		name = e.Meta.DisplayName
	}
	e.Role = RoleViewerShare
	vs := &ViewerStream{Entry: e, DisplayName: name}
	r.shares[e.Peer] = vs
	r.logger.Info().Str("peer", string(e.Peer)).Str("name", name).Msg("viewer stream registered")
	return vs
}

func (r *Registry) RemoveShare(e *MediaEntry) bool {
	cur, ok := r.shares[e.Peer]
	if !ok || cur.Entry != e {
		return false
	}
	delete(r.shares, e.Peer)
	r.logger.Info().Str("peer", string(e.Peer)).Msg("viewer stream removed")
	return true
}

func (r *Registry) Shares() []*ViewerStream { return sortByPeer(r.shares) }

func (r *Registry) SetUpstream(e *MediaEntry) {
	if r.upstream != nil && r.upstream != e {
		r.upstream.close()
	}
	e.Role = RoleUpstream
	r.upstream = e
}

func (r *Registry) Upstream() *MediaEntry { return r.upstream }

func (r *Registry) ClearUpstream(e *MediaEntry) bool {
	if r.upstream != e {
		return false
	}
	r.upstream = nil
	return true
}

func (r *Registry) SetShareOut(e *MediaEntry) {
	if r.shareOut != nil && r.shareOut != e {
		r.shareOut.close()
	}
	e.Role = RoleShareOut
	r.shareOut = e
}

func (r *Registry) ShareOut() *MediaEntry { return r.shareOut }

func (r *Registry) ClearShareOut(e *MediaEntry) bool {
	if r.shareOut != e {
		return false
	}
	r.shareOut = nil
	return true
}

// AddRelayIn stores a relayed stream keyed by the viewer it originates from.
func (r *Registry) AddRelayIn(e *MediaEntry) {
	if old, ok := r.relayIn[e.Origin]; ok && old != e {
		old.close()
	}
	e.Role = RoleRelayIn
	r.relayIn[e.Origin] = e
	r.logger.Info().Str("origin", string(e.Origin)).Msg("relay from other viewer bound")
}

func (r *Registry) RemoveRelayIn(e *MediaEntry) bool {
	cur, ok := r.relayIn[e.Origin]
	if !ok || cur != e {
		return false
	}
	delete(r.relayIn, e.Origin)
	return true
}

func (r *Registry) RelaysIn() []*MediaEntry { return sortByPeer(r.relayIn) }

// CloseEntry closes e without touching the registry slots.
func (r *Registry) CloseEntry(e *MediaEntry) bool { return e.close() }

// Len counts every link handle the registry owns.
func (r *Registry) Len() int {
	n := len(r.data) + len(r.classifying) + len(r.pending) + len(r.viewers) + len(r.shares) + len(r.relayIn)
	if r.upstream != nil {
		n++
	}
	if r.shareOut != nil {
		n++
	}
	return n + r.Relays.Len()
}

// CloseAll closes every link and cancels every grace timer. Safe to call
// more than once.
func (r *Registry) CloseAll() int {
	n := r.Relays.CloseAll()
	for e, t := range r.classifying {
		if t != nil {
			t.Stop()
		}
		if e.close() {
			n++
		}
		delete(r.classifying, e)
	}
	for _, e := range r.DrainPending() {
		if e.close() {
			n++
		}
	}
	n += r.CloseViewers()
	for peer, vs := range r.shares {
		if vs.Entry.close() {
			n++
		}
		delete(r.shares, peer)
	}
	for origin, e := range r.relayIn {
		if e.close() {
			n++
		}
		delete(r.relayIn, origin)
	}
	for _, e := range []*MediaEntry{r.upstream, r.shareOut} {
		if e != nil && e.close() {
			n++
		}
	}
	r.upstream, r.shareOut = nil, nil
	for peer, e := range r.data {
		if e.close() {
			n++
		}
		delete(r.data, peer)
	}
	clear(r.names)
	if n > 0 {
		r.logger.Info().Int("closed", n).Msg("registry closed")
	}
	return n
}
