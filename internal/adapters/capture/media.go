//go:build cgo

package capture

import (
	"sync"

	"github.com/dkeye/Stream/internal/core"
	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Media is one capture. Its tracks can be bound to any number of peer
// connections.
type Media struct {
	id     string
	tracks []*track

	mu      sync.Mutex
	ended   bool
	onEnded []func()
}

func newMedia(tracks []mediadevices.Track) *Media {
	m := &Media{id: uuid.NewString()}
	for _, t := range tracks {
		tr := &track{Track: t}
		switch src := t.(type) {
		case *mediadevices.VideoTrack:
			src.Transform(blankVideo(&tr.gate))
		case *mediadevices.AudioTrack:
			src.Transform(silentAudio(&tr.gate))
		}
		m.tracks = append(m.tracks, tr)
		t.OnEnded(func(err error) {
			log.Info().Str("module", "capture").Err(err).Str("track", t.ID()).Msg("track ended")
			m.end()
		})
	}
	return m
}

func (m *Media) ID() string { return m.id }

func (m *Media) Tracks() []core.Track {
	out := make([]core.Track, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, t)
	}
	return out
}

// LocalTracks lends the capture tracks to a link. Closing the link does
// not stop the capture.
func (m *Media) LocalTracks() ([]webrtc.TrackLocal, func(), error) {
	out := make([]webrtc.TrackLocal, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, t.Track)
	}
	return out, nil, nil
}

// OnEnded registers fn to run once, when the first track ends.
func (m *Media) OnEnded(fn func()) {
	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		fn()
		return
	}
	m.onEnded = append(m.onEnded, fn)
	m.mu.Unlock()
}

func (m *Media) end() {
	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return
	}
	m.ended = true
	fns := m.onEnded
	m.onEnded = nil
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// track is a capture track. Disabling it keeps the device open and sends
// black frames or silence.
type track struct {
	mediadevices.Track
	gate
	once sync.Once
}

func (t *track) Kind() string { return t.Track.Kind().String() }

func (t *track) Stop() {
	t.once.Do(func() {
		if err := t.Track.Close(); err != nil {
			log.Warn().Str("module", "capture").Err(err).Str("track", t.ID()).Msg("close track")
		}
	})
}
