package capture

import (
	"image"
	"sync/atomic"

	"github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/wave"
)

// gate switches a capture track on and off while the device keeps running.
type gate struct {
	disabled atomic.Bool
}

func (g *gate) SetEnabled(on bool) { g.disabled.Store(!on) }
func (g *gate) Enabled() bool      { return !g.disabled.Load() }

// blankVideo replaces frames with black while g is off.
func blankVideo(g *gate) video.TransformFunc {
	return func(r video.Reader) video.Reader {
		var black *image.YCbCr
		return video.ReaderFunc(func() (image.Image, func(), error) {
			img, release, err := r.Read()
			if err != nil || g.Enabled() {
				return img, release, err
			}
			if black == nil || black.Rect != img.Bounds() {
				black = blackFrame(img.Bounds())
			}
			return black, release, nil
		})
	}
}

func blackFrame(r image.Rectangle) *image.YCbCr {
	img := image.NewYCbCr(r, image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = 16
	}
	for i := range img.Cb {
		img.Cb[i] = 128
		img.Cr[i] = 128
	}
	return img
}

// silentAudio replaces samples with silence while g is off.
func silentAudio(g *gate) audio.TransformFunc {
	return func(r audio.Reader) audio.Reader {
		return audio.ReaderFunc(func() (wave.Audio, func(), error) {
			chunk, release, err := r.Read()
			if err != nil || g.Enabled() {
				return chunk, release, err
			}
			switch c := chunk.(type) {
			case *wave.Int16Interleaved:
				clear(c.Data)
				return c, release, nil
			case *wave.Float32Interleaved:
				clear(c.Data)
				return c, release, nil
			}
			return wave.NewInt16Interleaved(chunk.ChunkInfo()), release, nil
		})
	}
}
