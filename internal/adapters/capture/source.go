//go:build cgo

package capture

import (
	"context"
	"fmt"

	"github.com/dkeye/Stream/internal/core"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Source captures with the platform drivers and encodes VP8 video and
// Opus audio.
type Source struct {
	opts     Options
	selector *mediadevices.CodecSelector
	logger   zerolog.Logger
}

func New(opts Options) (*Source, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = opts.VideoBitRate
	vpxParams.KeyFrameInterval = 60
	vpxParams.RateControlEndUsage = vpx.RateControlVBR

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	opusParams.BitRate = opts.AudioBitRate
	opusParams.Latency = opus.Latency20ms

	return &Source{
		opts: opts,
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		logger: log.With().Str("module", "capture").Logger(),
	}, nil
}

func (s *Source) video(c *mediadevices.MediaTrackConstraints) {
	c.Width = prop.Int(s.opts.Width)
	c.Height = prop.Int(s.opts.Height)
	c.FrameRate = prop.Float(s.opts.FrameRate)
}

func (s *Source) CameraStream(ctx context.Context) (core.Media, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("camera", err)
	}
	constraints := mediadevices.MediaStreamConstraints{
		Video: s.video,
		Codec: s.selector,
	}
	if s.opts.Audio {
		constraints.Audio = func(c *mediadevices.MediaTrackConstraints) {
			c.ChannelCount = prop.Int(1)
		}
	}
	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		s.logger.Warn().Err(err).Msg("camera capture failed")
		return nil, classify("camera", err)
	}
	m := newMedia(stream.GetTracks())
	s.logger.Info().Str("media", m.ID()).Int("tracks", len(m.tracks)).Msg("camera capture started")
	return m, nil
}

func (s *Source) ScreenStream(ctx context.Context) (core.Media, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("screen", errCancelled)
	}
	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: s.video,
		Codec: s.selector,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("screen capture failed")
		return nil, classify("screen", err)
	}
	m := newMedia(stream.GetTracks())
	s.logger.Info().Str("media", m.ID()).Msg("screen capture started")
	return m, nil
}
