package rtc

import (
	"sync"

	"github.com/dkeye/Stream/internal/core"
	"github.com/pion/webrtc/v4"
)

// TrackSource is media this transport can send. release runs when the
// link carrying the tracks closes.
type TrackSource interface {
	LocalTracks() (tracks []webrtc.TrackLocal, release func(), err error)
}

// RemoteTrack is a track received on a media link.
type RemoteTrack struct {
	remote *webrtc.TrackRemote
	fwd    *Forwarder
}

func (t *RemoteTrack) ID() string   { return t.remote.ID() }
func (t *RemoteTrack) Kind() string { return t.remote.Kind().String() }

// Stop is a no-op; a remote track ends with its link.
func (t *RemoteTrack) Stop() {}

func (t *RemoteTrack) Packets() uint64 { return t.fwd.Packets() }

// SetEnabled pauses or resumes relaying this track to other links.
func (t *RemoteTrack) SetEnabled(on bool) { t.fwd.SetMuted(!on) }
func (t *RemoteTrack) Enabled() bool      { return !t.fwd.Muted() }

// RemoteMedia is the media received on one link. It can be sent on other
// links, which relays its packets.
type RemoteMedia struct {
	id string

	mu     sync.RWMutex
	tracks []*RemoteTrack
}

func newRemoteMedia(id string) *RemoteMedia {
	return &RemoteMedia{id: id}
}

func (m *RemoteMedia) ID() string { return m.id }

func (m *RemoteMedia) Tracks() []core.Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Track, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, t)
	}
	return out
}

func (m *RemoteMedia) add(t *RemoteTrack) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = append(m.tracks, t)
	return len(m.tracks)
}

// Packets sums the RTP packets received on every track.
func (m *RemoteMedia) Packets() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n uint64
	for _, t := range m.tracks {
		n += t.Packets()
	}
	return n
}

func (m *RemoteMedia) LocalTracks() ([]webrtc.TrackLocal, func(), error) {
	m.mu.RLock()
	tracks := append([]*RemoteTrack(nil), m.tracks...)
	m.mu.RUnlock()

	outs := make([]*OutTrack, 0, len(tracks))
	release := func() {
		for _, ot := range outs {
			ot.Release()
		}
	}
	local := make([]webrtc.TrackLocal, 0, len(tracks))
	for _, t := range tracks {
		ot, err := t.fwd.Subscribe(m.id)
		if err != nil {
			release()
			return nil, nil, err
		}
		outs = append(outs, ot)
		local = append(local, ot.Track)
	}
	return local, release, nil
}
