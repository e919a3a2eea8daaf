package core

import "context"

// Track is one local or remote media track.
type Track interface {
	ID() string
	// Kind is "audio" or "video".
	Kind() string
	// Stop releases the underlying capture device. Must be idempotent.
	Stop()
}

// Media is an opaque stream handle passed between the transport and the
// coordinator. Host media is only ever lent to links as an answer payload.
type Media interface {
	ID() string
	Tracks() []Track
}

// StopMedia stops every track of m. A nil m is ignored.
func StopMedia(m Media) {
	if m == nil {
		return
	}
	for _, t := range m.Tracks() {
		t.Stop()
	}
}

// CaptureSource supplies local media.
type CaptureSource interface {
	// CameraStream fails with ErrPermissionDenied or ErrDeviceUnavailable.
	CameraStream(ctx context.Context) (Media, error)
	// ScreenStream fails with ErrPermissionDenied or ErrUserCancelled.
	ScreenStream(ctx context.Context) (Media, error)
}

// EndNotifier is implemented by media whose capture can be ended outside
// the application (e.g. the user stops a screen share).
type EndNotifier interface {
	OnEnded(func())
}

// Switchable is implemented by tracks that can be paused without being
// stopped. A disabled video track sends black frames, a disabled audio
// track sends silence.
type Switchable interface {
	SetEnabled(bool)
	Enabled() bool
}

// SetEnabled switches every track of m with the given kind and returns how
// many tracks were switched.
func SetEnabled(m Media, kind string, enabled bool) int {
	if m == nil {
		return 0
	}
	n := 0
	for _, t := range m.Tracks() {
		if t.Kind() != kind {
			continue
		}
		if s, ok := t.(Switchable); ok {
			s.SetEnabled(enabled)
			n++
		}
	}
	return n
}
