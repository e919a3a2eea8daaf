// Package device binds local capture to a broadcast.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Stream/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoMedia = errors.New("no capture started")
	ErrNoTrack = errors.New("capture has no such track")
)

type Source string

const (
	SourceCamera Source = "camera"
	SourceScreen Source = "screen"
)

func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceCamera, SourceScreen:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown capture source %q", s)
}

// Feed receives the host media. *orch.Coordinator implements it.
type Feed interface {
	GoLive(core.Media) error
	EndBroadcast() error
}

// Binding owns the active capture. The previous capture is stopped only
// after a new one was acquired.
type Binding struct {
	src    core.CaptureSource
	feed   Feed
	logger zerolog.Logger

	mu     sync.Mutex
	media  core.Media
	source Source
	live   bool
	gen    uint64
}

func New(src core.CaptureSource, feed Feed) *Binding {
	return &Binding{
		src:    src,
		feed:   feed,
		logger: log.With().Str("module", "device").Logger(),
	}
}

func (b *Binding) StartCamera(ctx context.Context) (core.Media, error) {
	return b.Start(ctx, SourceCamera)
}

func (b *Binding) StartScreen(ctx context.Context) (core.Media, error) {
	return b.Start(ctx, SourceScreen)
}

// Start acquires media from s. While live the new media replaces the old
// one in the broadcast.
func (b *Binding) Start(ctx context.Context, s Source) (core.Media, error) {
	b.mu.Lock()
	m, err := b.acquire(ctx, s)
	if err != nil {
		b.mu.Unlock()
		err = core.Classify(core.KindMediaAcquisition, string(s), "", err)
		b.logger.Warn().Err(err).Str("source", string(s)).Msg("capture failed")
		return nil, err
	}

	if b.media != nil && b.media != m {
		core.StopMedia(b.media)
		b.logger.Info().Str("source", string(b.source)).Msg("previous capture stopped")
	}
	b.media, b.source = m, s
	b.gen++
	gen := b.gen
	b.logger.Info().Str("source", string(s)).Int("tracks", len(m.Tracks())).Msg("capture started")

	if b.live {
		err = b.feed.GoLive(m)
	}
	b.mu.Unlock()

	// A capture that already ended calls back at once and takes the lock.
	if en, ok := m.(core.EndNotifier); ok {
		en.OnEnded(func() { b.ended(gen) })
	}
	return m, err
}

func (b *Binding) acquire(ctx context.Context, s Source) (core.Media, error) {
	switch s {
	case SourceCamera:
		return b.src.CameraStream(ctx)
	case SourceScreen:
		return b.src.ScreenStream(ctx)
	}
	return nil, fmt.Errorf("unknown capture source %q", s)
}

// GoLive hands the active capture to the feed.
func (b *Binding) GoLive() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.media == nil {
		return ErrNoMedia
	}
	if err := b.feed.GoLive(b.media); err != nil {
		return err
	}
	b.live = true
	return nil
}

// Stop ends the broadcast and stops every track of the active capture.
func (b *Binding) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stop("stopped")
}

func (b *Binding) stop(reason string) error {
	var err error
	if b.live {
		err = b.feed.EndBroadcast()
		b.live = false
	}
	if b.media != nil {
		core.StopMedia(b.media)
		b.logger.Info().Str("source", string(b.source)).Str("reason", reason).Msg("capture released")
	}
	b.media, b.source = nil, ""
	b.gen++
	return err
}

func (b *Binding) ended(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return
	}
	if err := b.stop("ended"); err != nil {
		b.logger.Warn().Err(err).Msg("end broadcast after capture ended")
	}
}

// SetEnabled pauses or resumes every track of the given kind without
// releasing the capture.
func (b *Binding) SetEnabled(kind string, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setEnabled(kind, enabled)
}

// Toggle flips the tracks of the given kind and returns the new state.
func (b *Binding) Toggle(kind string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	enabled := !b.enabled(kind)
	return enabled, b.setEnabled(kind, enabled)
}

// Enabled reports whether any track of the given kind is enabled.
func (b *Binding) Enabled(kind string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled(kind)
}

func (b *Binding) setEnabled(kind string, enabled bool) error {
	if b.media == nil {
		return ErrNoMedia
	}
	if core.SetEnabled(b.media, kind, enabled) == 0 {
		return fmt.Errorf("%w: %s", ErrNoTrack, kind)
	}
	b.logger.Info().Str("kind", kind).Bool("enabled", enabled).Msg("track switched")
	return nil
}

func (b *Binding) enabled(kind string) bool {
	if b.media == nil {
		return false
	}
	for _, t := range b.media.Tracks() {
		if t.Kind() != kind {
			continue
		}
		if s, ok := t.(core.Switchable); !ok || s.Enabled() {
			return true
		}
	}
	return false
}

func (b *Binding) Active() core.Media {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.media
}

func (b *Binding) Live() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}
