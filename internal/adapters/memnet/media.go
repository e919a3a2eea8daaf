package memnet

import (
	"sync/atomic"

	"github.com/dkeye/Stream/internal/core"
	"github.com/google/uuid"
)

// Track is an in-memory track that records whether it was stopped or
// disabled.
type Track struct {
	id       string
	kind     string
	stopped  atomic.Bool
	disabled atomic.Bool
}

func (t *Track) ID() string    { return t.id }
func (t *Track) Kind() string  { return t.kind }
func (t *Track) Stop()         { t.stopped.Store(true) }
func (t *Track) Stopped() bool { return t.stopped.Load() }

func (t *Track) SetEnabled(on bool) { t.disabled.Store(!on) }
func (t *Track) Enabled() bool      { return !t.disabled.Load() }

// Media is an in-memory stream. It is passed by reference between
// sessions, so a receiver sees the very same object the sender attached.
type Media struct {
	id      string
	tracks  []*Track
	onEnded atomic.Pointer[func()]
}

// NewMedia builds a stream with one track per kind ("audio", "video").
func NewMedia(kinds ...string) *Media {
	m := &Media{id: uuid.NewString()}
	for _, k := range kinds {
		m.tracks = append(m.tracks, &Track{id: uuid.NewString(), kind: k})
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

// Stopped reports whether every track was stopped.
func (m *Media) Stopped() bool {
	for _, t := range m.tracks {
		if !t.Stopped() {
			return false
		}
	}
	return true
}

func (m *Media) OnEnded(fn func()) { m.onEnded.Store(&fn) }

// End simulates the capture being ended outside the application.
func (m *Media) End() {
	for _, t := range m.tracks {
		t.Stop()
	}
	if fn := m.onEnded.Load(); fn != nil {
		(*fn)()
	}
}
